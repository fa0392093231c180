//go:build linux

package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/srediag/tun-shm/internal/shm"
	"github.com/srediag/tun-shm/tun"
)

// ErrDetached is returned once the adapter has torn the session down and
// marked our rings with the detached sentinel.
var ErrDetached = errors.New("client: ring detached")

// ErrShmNoSpace is returned when /dev/shm lacks room for the ring pair.
var ErrShmNoSpace = errors.New("client: not enough space on /dev/shm")

// Options configures ring allocation.
type Options struct {
	// Capacity is the data capacity per ring, a power of two within
	// [tun.MinRingCapacity, tun.MaxRingCapacity]. Defaults to the minimum.
	Capacity uint32

	// Path, if set, backs the rings with files Path+".send" / Path+".recv"
	// (typically under /dev/shm) instead of anonymous memfds. The files are
	// removed on Close.
	Path string
}

type ringSide struct {
	memFD   int
	eventFD int
	region  *shm.MappedRegion
	ring    *tun.Ring
	path    string
}

// Endpoint owns the client side of the ring pair: the backing shared memory,
// both eventfds and the ring views. The adapter registers against the
// descriptors and only maps what the endpoint allocated here.
type Endpoint struct {
	capacity uint32
	send     ringSide // adapter produces, we consume
	recv     ringSide // we produce, adapter consumes
}

// AllocateRings creates the shared memory and eventfds for one registration.
func AllocateRings(opts Options) (*Endpoint, error) {
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = tun.MinRingCapacity
	}
	ringSize := tun.RingSize(capacity)
	if opts.Path != "" && !canCreateOnDevShm(2*uint64(ringSize), opts.Path+".send") {
		return nil, ErrShmNoSpace
	}

	e := &Endpoint{capacity: capacity}
	var err error
	if e.send, err = allocateSide(capacity, opts.Path, ".send"); err != nil {
		return nil, err
	}
	if e.recv, err = allocateSide(capacity, opts.Path, ".recv"); err != nil {
		releaseSide(&e.send)
		return nil, err
	}
	return e, nil
}

func allocateSide(capacity uint32, path, suffix string) (ringSide, error) {
	var side ringSide
	side.memFD = -1
	side.eventFD = -1
	ringSize := int(tun.RingSize(capacity))

	if path == "" {
		fd, err := shm.CreateMemFD("tunshm-ring"+suffix, ringSize)
		if err != nil {
			return side, err
		}
		side.memFD = fd
	} else {
		name := path + suffix
		// O_EXCL: two endpoints racing on the same path must not clobber
		// each other's ring file.
		f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err != nil {
			return side, fmt.Errorf("client: create ring file: %w", err)
		}
		if err := f.Truncate(int64(ringSize)); err != nil {
			_ = f.Close()
			_ = os.Remove(name)
			return side, fmt.Errorf("client: truncate ring file: %w", err)
		}
		side.memFD = int(f.Fd())
		side.path = name
		// Keep the fd, drop the os.File finalizer path.
		fd, err := unix.Dup(side.memFD)
		_ = f.Close()
		if err != nil {
			_ = os.Remove(name)
			return side, err
		}
		side.memFD = fd
	}

	region, err := shm.MapFD(side.memFD, ringSize)
	if err != nil {
		releaseSide(&side)
		return side, err
	}
	side.region = region

	ring, err := tun.AttachRing(region.Mem, capacity)
	if err != nil {
		releaseSide(&side)
		return side, err
	}
	side.ring = ring

	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		releaseSide(&side)
		return side, fmt.Errorf("client: eventfd: %w", err)
	}
	side.eventFD = efd
	return side, nil
}

func releaseSide(side *ringSide) {
	if side.region != nil {
		_ = side.region.Unmap()
		side.region = nil
	}
	if side.memFD >= 0 {
		_ = unix.Close(side.memFD)
		side.memFD = -1
	}
	if side.eventFD >= 0 {
		_ = unix.Close(side.eventFD)
		side.eventFD = -1
	}
	if side.path != "" {
		_ = os.Remove(side.path)
		side.path = ""
	}
}

// Descriptors returns the send and receive descriptors to pass to
// Adapter.Register. The endpoint keeps ownership of the fds.
func (e *Endpoint) Descriptors() (send, recv tun.RingDescriptor) {
	ringSize := tun.RingSize(e.capacity)
	send = tun.RingDescriptor{RingSize: ringSize, MemFD: e.send.memFD, EventFD: e.send.eventFD}
	recv = tun.RingDescriptor{RingSize: ringSize, MemFD: e.recv.memFD, EventFD: e.recv.eventFD}
	return send, recv
}

// SendRing exposes the ring the adapter writes to. Test hook.
func (e *Endpoint) SendRing() *tun.Ring { return e.send.ring }

// RecvRing exposes the ring the adapter reads from. Test hook.
func (e *Endpoint) RecvRing() *tun.Ring { return e.recv.ring }

// TryReadFrame pops one frame the adapter sent, without blocking.
func (e *Endpoint) TryReadFrame() ([]byte, bool) {
	return e.send.ring.TryPop()
}

// ReadFrame pops one frame the adapter sent, blocking on the send event
// until one arrives. Returns ErrDetached once the session is gone.
func (e *Endpoint) ReadFrame() ([]byte, error) {
	for {
		if p, ok := e.send.ring.TryPop(); ok {
			return p, nil
		}
		if e.send.ring.TailDetached() {
			return nil, ErrDetached
		}
		if err := waitEvent(e.send.eventFD); err != nil {
			return nil, err
		}
	}
}

// WriteFrame appends one frame for the adapter's receive worker and signals
// the receive event if the worker announced it is parked.
func (e *Endpoint) WriteFrame(p []byte) error {
	if len(p) > tun.MaxIPPacketSize {
		return tun.ErrInvalidLength
	}
	if e.recv.ring.HeadDetached() {
		return ErrDetached
	}
	if !e.recv.ring.TryAppend(p) {
		return tun.ErrBufferOverflow
	}
	if e.recv.ring.Alertable() {
		signalEvent(e.recv.eventFD)
	}
	return nil
}

// SignalReceive wakes the adapter's receive worker unconditionally.
func (e *Endpoint) SignalReceive() {
	signalEvent(e.recv.eventFD)
}

// Close releases the shared memory, eventfds and any backing files.
func (e *Endpoint) Close() {
	releaseSide(&e.send)
	releaseSide(&e.recv)
}

func signalEvent(fd int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(fd, buf[:])
}

func waitEvent(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("client: event wait: %w", err)
		}
		if n == 0 {
			continue
		}
		var buf [8]byte
		if _, err := unix.Read(fd, buf[:]); err == nil {
			return nil
		}
	}
}
