//go:build !linux

package shm

// MapFD is unsupported on this platform.
func MapFD(fd int, size int) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// Unmap is a no-op on this platform.
func (r *MappedRegion) Unmap() error {
	return nil
}

// CreateMemFD is unsupported on this platform.
func CreateMemFD(name string, size int) (int, error) {
	return -1, ErrUnsupported
}
