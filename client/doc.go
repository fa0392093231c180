// Package client is the user-space side of the tun-shm wire contract. It
// allocates the ring pair and notification eventfds an adapter registration
// needs, consumes frames the adapter sends, and produces frames for the
// adapter's receive worker.
package client
