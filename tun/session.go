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
	"context"

	"github.com/srediag/tun-shm/internal/shm"
)

// RingDescriptor describes one client-allocated ring: the total size of its
// shared memory object, the object itself and the tail-moved notification
// eventfd. The client owns all three for the lifetime of the session.
type RingDescriptor struct {
	RingSize uint32
	MemFD    int
	EventFD  int
}

// Session is the live binding of one client's ring pair to an adapter. It is
// the owner token: only the session passed to Register can unregister.
type Session struct {
	adapter *Adapter
}

// Close unregisters the session. Safe to call more than once.
func (s *Session) Close() {
	s.adapter.Unregister(s)
}

// Register binds the client's send and receive rings to the adapter and
// starts the receive worker. At most one registration is live per adapter;
// concurrent attempts lose the owner compare-and-swap and fail with
// ErrAlreadyRegistered. Any mid-way failure unwinds all acquired resources
// in reverse order and leaves the adapter unregistered.
func (a *Adapter) Register(ctx context.Context, send, recv RingDescriptor) (*Session, error) {
	_, end := a.tel.startSpan(ctx, "tunshm.register")

	// Taken before the owner swap: Halt must never see the owner published
	// while the device fields are still unset.
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	s := &Session{adapter: a}
	if !a.device.owner.CompareAndSwap(nil, s) {
		end(ErrAlreadyRegistered)
		return nil, ErrAlreadyRegistered
	}

	var undo []func()
	fail := func(err error) (*Session, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		a.device.owner.Store(nil)
		internalLogger.warnf("adapter %s register failed: %v", a.name, err)
		end(err)
		return nil, err
	}

	if a.flags.load()&flagPresent == 0 {
		return fail(ErrAdapterRemoved)
	}

	// Send ring: we produce, the client consumes. Signal-only event
	// reference; the send path never waits on it.
	sendCap := ringCapacity(send.RingSize)
	if !validCapacity(sendCap) || send.MemFD < 0 || send.EventFD < 0 {
		return fail(ErrInvalidParameter)
	}
	sendEv, err := dupEvent(send.EventFD)
	if err != nil {
		return fail(ErrInvalidParameter)
	}
	undo = append(undo, sendEv.close)

	sendRegion, err := shm.MapFD(send.MemFD, int(send.RingSize))
	if err != nil {
		return fail(ErrInvalidClientBuffer)
	}
	undo = append(undo, func() { _ = sendRegion.Unmap() })

	sendRing, err := AttachRing(sendRegion.Mem, sendCap)
	if err != nil {
		return fail(ErrInvalidClientBuffer)
	}

	// Receive ring: the client produces, our worker consumes and also waits
	// on the event.
	recvCap := ringCapacity(recv.RingSize)
	if !validCapacity(recvCap) || recv.MemFD < 0 || recv.EventFD < 0 {
		return fail(ErrInvalidParameter)
	}
	recvEv, err := dupEvent(recv.EventFD)
	if err != nil {
		return fail(ErrInvalidParameter)
	}
	undo = append(undo, recvEv.close)

	recvRegion, err := shm.MapFD(recv.MemFD, int(recv.RingSize))
	if err != nil {
		return fail(ErrInvalidClientBuffer)
	}
	undo = append(undo, func() { _ = recvRegion.Unmap() })

	recvRing, err := AttachRing(recvRegion.Mem, recvCap)
	if err != nil {
		return fail(ErrInvalidClientBuffer)
	}

	a.device.send.region, a.device.send.ring, a.device.send.tailMoved = sendRegion, sendRing, sendEv
	a.device.recv.region, a.device.recv.ring, a.device.recv.tailMoved = recvRegion, recvRing, recvEv
	a.device.recv.done = make(chan struct{})

	a.flags.set(flagConnected)
	a.barrier()

	if err := a.pool.Submit(a.pump); err != nil {
		a.flags.clear(flagConnected)
		a.barrier()
		return fail(ErrInsufficientResources)
	}

	a.journal.record("client registered")
	internalLogger.infof("adapter %s registered rings, send capacity:%d recv capacity:%d", a.name, sendCap, recvCap)

	// Announce connected only once the worker is live.
	a.announce(true)
	end(nil)
	return s, nil
}

// Unregister tears the session down. Only the current owner's call performs
// teardown; every other call, including a second call with the same session,
// is a no-op.
func (a *Adapter) Unregister(s *Session) {
	if s == nil {
		return
	}
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if !a.device.owner.CompareAndSwap(s, nil) {
		return
	}
	a.teardown()
	a.journal.record("client unregistered")
}

// teardown runs exactly once per registration, after the caller won the
// owner compare-and-swap.
func (a *Adapter) teardown() {
	_, end := a.tel.startSpan(context.Background(), "tunshm.unregister")
	defer end(nil)

	// The clear-then-barrier must precede the wakeup, otherwise the worker
	// could re-enter its blocking wait after the signal.
	a.flags.clear(flagConnected)
	a.barrier()
	a.device.recv.tailMoved.signal()

	a.announce(false)

	<-a.device.recv.done

	// Tell the client its session is gone and wake any waiting reader.
	a.device.send.ring.MarkTailDetached()
	a.device.send.tailMoved.signal()

	if err := a.device.recv.region.Unmap(); err != nil {
		internalLogger.warnf("adapter %s unmap recv ring: %v", a.name, err)
	}
	a.device.recv.tailMoved.close()
	if err := a.device.send.region.Unmap(); err != nil {
		internalLogger.warnf("adapter %s unmap send ring: %v", a.name, err)
	}
	a.device.send.tailMoved.close()

	internalLogger.infof("adapter %s unregistered rings", a.name)
}
