//go:build linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MapFD maps size bytes of the shared memory object behind fd. This is the
// pinning step of registration: the mapping holds the client's pages until
// the matching Unmap.
func MapFD(fd int, size int) (*MappedRegion, error) {
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %d bytes: %w", size, err)
	}
	return &MappedRegion{Mem: mem}, nil
}

// Unmap releases the mapping. The client's backing bytes are untouched.
func (r *MappedRegion) Unmap() error {
	if r == nil || r.Mem == nil {
		return nil
	}
	mem := r.Mem
	r.Mem = nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("shm: munmap: %w", err)
	}
	return nil
}

// CreateMemFD allocates an anonymous shared memory object of the given size.
// Used by the client side to host its rings.
func CreateMemFD(name string, size int) (int, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("shm: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("shm: ftruncate: %w", err)
	}
	return fd, nil
}
