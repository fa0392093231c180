// Package tun implements a high-throughput packet transport between a host
// network stack and exactly one cooperating user-space client, over two
// fixed-capacity shared memory rings (one per direction) with eventfd wake
// notifications.
//
// The client allocates both rings; the adapter only maps them. The wire
// contract per ring is a 12-byte header {head u32, tail u32, alertable i32}
// followed by capacity+pad data bytes holding 4-byte-aligned length-prefixed
// records. Capacity is a power of two between 128 KiB and 64 MiB.
//
// Outbound frames are appended to the send ring by any number of concurrent
// producers serialized by a short per-endpoint lock; a dedicated worker
// drains the receive ring, spinning briefly before parking on the
// notification event. Clearing a gating flag is always followed by an
// exclusive acquire/release of the transition lock, which guarantees no
// data path still touches ring memory when it is unmapped.
package tun
