// Package shm contains platform-specific helpers for mapping client-owned
// shared memory into the transport core.
package shm

import "errors"

// ErrUnsupported is returned on platforms without shared memory support.
var ErrUnsupported = errors.New("shm: not supported on this platform")

// MappedRegion is a live mapping of a client-owned shared memory object.
// The backing bytes belong to the client; the region only maps them and
// must be unmapped exactly once.
type MappedRegion struct {
	Mem []byte
}

// Size returns the mapped length in bytes.
func (r *MappedRegion) Size() int {
	if r == nil {
		return 0
	}
	return len(r.Mem)
}
