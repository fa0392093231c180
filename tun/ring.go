/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tun

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

const (
	// alignment of records and ring offsets, in bytes.
	alignment = 4

	// MaxIPPacketSize is the largest payload a single record may carry.
	MaxIPPacketSize = 0xFFFF

	// packetHeaderSize is the record length prefix.
	packetHeaderSize = 4

	// maxPacketSize is the largest on-wire record size.
	maxPacketSize = (packetHeaderSize + MaxIPPacketSize + alignment - 1) &^ (alignment - 1)

	// MinRingCapacity and MaxRingCapacity bound the data capacity of a ring.
	// Capacity must be a power of two.
	MinRingCapacity = 0x20000   // 128 KiB
	MaxRingCapacity = 0x4000000 // 64 MiB

	// ringHeaderSize covers head, tail and the alertable flag.
	ringHeaderSize = 12

	// ringPad trails the capacity so a maximum-size record written at the
	// last in-range offset never wraps mid-record.
	ringPad = maxPacketSize - alignment

	// Detached is the reserved offset marking a ring permanently invalid.
	// A detached tail tells the client the session is gone; a detached head
	// records that the receive worker stopped.
	Detached = ^uint32(0)
)

// RingSize returns the total shared memory size backing a ring of the given
// data capacity: header, capacity bytes and the anti-wrap pad.
func RingSize(capacity uint32) uint32 {
	return ringHeaderSize + capacity + ringPad
}

// ringCapacity inverts RingSize. Callers must range-check the result; an
// undersized ring size wraps around and fails validCapacity.
func ringCapacity(ringSize uint32) uint32 {
	return ringSize - ringHeaderSize - ringPad
}

func validCapacity(c uint32) bool {
	return c >= MinRingCapacity && c <= MaxRingCapacity && c&(c-1) == 0
}

func alignUp(n uint32) uint32 {
	return (n + alignment - 1) &^ (alignment - 1)
}

// Ring is one direction of the shared memory transport. The layout is the
// wire contract with the client: a 12-byte header {head u32, tail u32,
// alertable i32} followed by capacity+pad data bytes. Records are a u32
// little-endian payload size followed by the payload, padded to 4 bytes.
//
// The producer owns tail, the consumer owns head. Both sides read the other
// index with atomic loads; Ring itself never blocks.
type Ring struct {
	head      *uint32
	tail      *uint32
	alertable *int32
	data      []byte
	capacity  uint32
}

// AttachRing binds a Ring view to mem, which must hold at least
// RingSize(capacity) bytes of shared memory. The bytes stay owned by
// whoever allocated them.
func AttachRing(mem []byte, capacity uint32) (*Ring, error) {
	if !validCapacity(capacity) || uint32(len(mem)) < RingSize(capacity) {
		return nil, ErrInvalidParameter
	}
	return &Ring{
		head:      (*uint32)(unsafe.Pointer(&mem[0])),
		tail:      (*uint32)(unsafe.Pointer(&mem[4])),
		alertable: (*int32)(unsafe.Pointer(&mem[8])),
		data:      mem[ringHeaderSize:],
		capacity:  capacity,
	}, nil
}

// Capacity returns the ring's data capacity in bytes.
func (r *Ring) Capacity() uint32 { return r.capacity }

// Head returns the current consumer offset.
func (r *Ring) Head() uint32 { return r.loadHead() }

// Tail returns the current producer offset.
func (r *Ring) Tail() uint32 { return r.loadTail() }

func (r *Ring) loadHead() uint32     { return atomic.LoadUint32(r.head) }
func (r *Ring) loadTail() uint32     { return atomic.LoadUint32(r.tail) }
func (r *Ring) storeHead(v uint32)   { atomic.StoreUint32(r.head, v) }
func (r *Ring) storeTail(v uint32)   { atomic.StoreUint32(r.tail, v) }
func (r *Ring) wrap(v uint32) uint32 { return v & (r.capacity - 1) }

// space returns the free bytes for a given head/tail snapshot. One alignment
// unit is always held back so a full ring is distinguishable from an empty
// one.
func (r *Ring) space(head, tail uint32) uint32 {
	return r.wrap(head - tail - alignment)
}

// content returns the occupied bytes for a given head/tail snapshot.
func (r *Ring) content(head, tail uint32) uint32 {
	return r.wrap(tail - head)
}

// FreeSpace returns the bytes currently available to the producer, or 0 if
// either offset is out of range.
func (r *Ring) FreeSpace() uint32 {
	head, tail := r.loadHead(), r.loadTail()
	if head >= r.capacity || tail >= r.capacity {
		return 0
	}
	return r.space(head, tail)
}

// OccupiedSpace returns the bytes currently queued for the consumer, or 0 if
// either offset is out of range.
func (r *Ring) OccupiedSpace() uint32 {
	head, tail := r.loadHead(), r.loadTail()
	if head >= r.capacity || tail >= r.capacity {
		return 0
	}
	return r.content(head, tail)
}

// TryAppend writes one record at tail and publishes the new tail. It returns
// false without mutating the ring when the payload is oversized, the ring is
// detached or desynced, or there is not enough free space.
func (r *Ring) TryAppend(payload []byte) bool {
	if len(payload) > MaxIPPacketSize {
		return false
	}
	head, tail := r.loadHead(), r.loadTail()
	if head >= r.capacity || tail >= r.capacity {
		return false
	}
	aligned := alignUp(packetHeaderSize + uint32(len(payload)))
	if aligned > r.space(head, tail) {
		return false
	}
	r.writeRecord(tail, payload)
	r.storeTail(r.wrap(tail + aligned))
	return true
}

// TryPop reads the record at head into a fresh slice and advances head. It
// returns false when the ring is empty, detached or holds a malformed
// record; head is never advanced in those cases.
func (r *Ring) TryPop() ([]byte, bool) {
	head, tail := r.loadHead(), r.loadTail()
	if head >= r.capacity || tail >= r.capacity {
		return nil, false
	}
	content := r.content(head, tail)
	if content < packetHeaderSize {
		return nil, false
	}
	size := r.recordSizeAt(head)
	if size > MaxIPPacketSize {
		return nil, false
	}
	aligned := alignUp(packetHeaderSize + size)
	if aligned > content {
		return nil, false
	}
	payload := make([]byte, size)
	copy(payload, r.payloadAt(head, size))
	r.storeHead(r.wrap(head + aligned))
	return payload, true
}

// Alertable reports whether the consumer announced it is parked and wants a
// wakeup when the tail moves.
func (r *Ring) Alertable() bool {
	return atomic.LoadInt32(r.alertable) != 0
}

func (r *Ring) setAlertable(v bool) {
	var n int32
	if v {
		n = 1
	}
	atomic.StoreInt32(r.alertable, n)
}

// MarkHeadDetached permanently invalidates the consumer side of the ring.
func (r *Ring) MarkHeadDetached() { r.storeHead(Detached) }

// MarkTailDetached permanently invalidates the producer side of the ring.
func (r *Ring) MarkTailDetached() { r.storeTail(Detached) }

// HeadDetached reports whether the consumer marked the ring dead.
func (r *Ring) HeadDetached() bool { return r.loadHead() == Detached }

// TailDetached reports whether the producer marked the ring dead.
func (r *Ring) TailDetached() bool { return r.loadTail() == Detached }

func (r *Ring) recordSizeAt(off uint32) uint32 {
	return binary.LittleEndian.Uint32(r.data[off:])
}

func (r *Ring) payloadAt(off, size uint32) []byte {
	return r.data[off+packetHeaderSize : off+packetHeaderSize+size]
}

func (r *Ring) writeRecord(tail uint32, payload []byte) {
	binary.LittleEndian.PutUint32(r.data[tail:], uint32(len(payload)))
	copy(r.data[tail+packetHeaderSize:], payload)
}
