//go:build linux

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
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/srediag/tun-shm/api"
	"github.com/srediag/tun-shm/internal/shm"
)

const testWait = 3 * time.Second

// testPeer plays the client: it owns both ring memories and both eventfds,
// exactly as a real client would before registering them.
type testPeer struct {
	send peerRing // adapter produces, peer consumes
	recv peerRing // peer produces, adapter consumes
}

type peerRing struct {
	memFD   int
	eventFD int
	region  *shm.MappedRegion
	ring    *Ring
	desc    RingDescriptor
}

func newPeerRing(t *testing.T, capacity uint32) peerRing {
	t.Helper()
	size := RingSize(capacity)
	memFD, err := shm.CreateMemFD("tunshm-test", int(size))
	if err != nil {
		t.Fatal(err)
	}
	region, err := shm.MapFD(memFD, int(size))
	if err != nil {
		t.Fatal(err)
	}
	ring, err := AttachRing(region.Mem, capacity)
	if err != nil {
		t.Fatal(err)
	}
	// Nonblocking so tests can read the counter without parking.
	eventFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = region.Unmap()
		_ = unix.Close(memFD)
		_ = unix.Close(eventFD)
	})
	return peerRing{
		memFD:   memFD,
		eventFD: eventFD,
		region:  region,
		ring:    ring,
		desc:    RingDescriptor{RingSize: size, MemFD: memFD, EventFD: eventFD},
	}
}

func newTestPeer(t *testing.T, capacity uint32) *testPeer {
	return &testPeer{
		send: newPeerRing(t, capacity),
		recv: newPeerRing(t, capacity),
	}
}

// writeInbound appends one frame to the receive ring and signals the event,
// the way a client delivers outbound traffic to the adapter.
func (p *testPeer) writeInbound(t *testing.T, payload []byte) {
	t.Helper()
	if !p.recv.ring.TryAppend(payload) {
		t.Fatal("receive ring full")
	}
	signalFD(t, p.recv.eventFD)
}

func signalFD(t *testing.T, fd int) {
	t.Helper()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(fd, buf[:]); err != nil {
		t.Fatal(err)
	}
}

// eventCounter consumes and returns the eventfd counter, 0 if unsignaled.
func eventCounter(t *testing.T, fd int) uint64 {
	t.Helper()
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	if err == unix.EAGAIN {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return binary.LittleEndian.Uint64(buf[:])
}

type inboundFrame struct {
	proto   api.Protocol
	payload []byte
}

// chanReceiver buffers indicated frames for test assertions. Setting failNext
// makes the next indications return an error.
type chanReceiver struct {
	ch       chan inboundFrame
	failNext atomic.Int32
}

func newChanReceiver() *chanReceiver {
	return &chanReceiver{ch: make(chan inboundFrame, 64)}
}

func (r *chanReceiver) ReceiveFrame(proto api.Protocol, payload []byte) error {
	if r.failNext.Load() > 0 {
		r.failNext.Add(-1)
		return errors.New("receiver saturated")
	}
	r.ch <- inboundFrame{proto: proto, payload: append([]byte(nil), payload...)}
	return nil
}

func (r *chanReceiver) expect(t *testing.T) inboundFrame {
	t.Helper()
	select {
	case f := <-r.ch:
		return f
	case <-time.After(testWait):
		t.Fatal("no frame indicated")
		return inboundFrame{}
	}
}

func (r *chanReceiver) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case f := <-r.ch:
		t.Fatalf("unexpected frame: proto %s, %d bytes", f.proto, len(f.payload))
	case <-time.After(d):
	}
}

// connect builds a registered adapter/peer pair on a fresh registry.
func connect(t *testing.T, cfg Config) (*Adapter, *testPeer, *Session) {
	t.Helper()
	reg := newTestRegistry(t)
	if cfg.Name == "" {
		cfg.Name = "tun0"
	}
	if cfg.Receiver == nil {
		cfg.Receiver = nopReceiver{}
	}
	a, err := reg.CreateAdapter(cfg)
	if err != nil {
		t.Fatal(err)
	}
	peer := newTestPeer(t, MinRingCapacity)
	s, err := a.Register(context.Background(), peer.send.desc, peer.recv.desc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return a, peer, s
}

// ipv4Frame builds a minimal plausible IPv4 frame of the given total size.
func ipv4Frame(size int) []byte {
	f := make([]byte, size)
	if size > 0 {
		f[0] = 0x45
	}
	return f
}

// ipv6Frame builds a minimal plausible IPv6 frame of the given total size.
func ipv6Frame(size int) []byte {
	f := make([]byte, size)
	if size > 0 {
		f[0] = 0x60
	}
	return f
}
