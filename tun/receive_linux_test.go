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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/srediag/tun-shm/api"
)

func TestReceiveIPv4(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	a.Resume()

	frame := ipv4Frame(20)
	peer.writeInbound(t, frame)

	got := rcv.expect(t)
	assert.Equal(t, api.ProtocolIPv4, got.proto)
	assert.Equal(t, true, bytes.Equal(frame, got.payload))

	assert.Eventually(t, func() bool {
		s := a.Statistics()
		return s.InPackets == 1 && s.InOctets == 20
	}, testWait, time.Millisecond)
}

func TestReceiveIPv6(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	a.Resume()

	peer.writeInbound(t, ipv6Frame(40))

	got := rcv.expect(t)
	assert.Equal(t, api.ProtocolIPv6, got.proto)
	assert.Equal(t, 40, len(got.payload))
}

func TestReceiveShortIPv4IsFatal(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	a.Resume()

	// version nibble says IPv4 but 19 bytes cannot hold an IPv4 header
	peer.writeInbound(t, ipv4Frame(19))

	assert.Eventually(t, peer.recv.ring.HeadDetached, testWait, time.Millisecond,
		"worker must stop on stream corruption")
	rcv.expectNone(t, 100*time.Millisecond)

	// dead until re-registration: the detached head refuses later traffic
	assert.Equal(t, false, peer.recv.ring.TryAppend(ipv4Frame(20)))
	assert.Equal(t, int64(0), a.Statistics().InPackets)
}

func TestReceiveUnknownVersionIsFatal(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	a.Resume()

	frame := make([]byte, 40) // version nibble 0
	peer.writeInbound(t, frame)

	assert.Eventually(t, peer.recv.ring.HeadDetached, testWait, time.Millisecond)
	assert.Equal(t, int64(0), a.Statistics().InPackets)
}

func TestReceiveDesyncedOffsetIsFatal(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	a.Resume()

	// client trashes the consumer offset it does not own
	peer.recv.ring.storeHead(MinRingCapacity)
	signalFD(t, peer.recv.eventFD)

	assert.Eventually(t, peer.recv.ring.HeadDetached, testWait, time.Millisecond)
}

func TestReceiveOversizedRecordIsFatal(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	a.Resume()

	// forge a record claiming an impossible payload size
	ring := peer.recv.ring
	ring.writeRecord(0, nil)
	ring.data[0] = 0xFF
	ring.data[1] = 0xFF
	ring.data[2] = 0x01
	ring.storeTail(8)
	signalFD(t, peer.recv.eventFD)

	assert.Eventually(t, ring.HeadDetached, testWait, time.Millisecond)
}

func TestReceiveDroppedWhilePaused(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	// not resumed: traffic is gated off but the stream stays healthy

	peer.writeInbound(t, ipv4Frame(20))

	assert.Eventually(t, func() bool {
		return a.Statistics().InDiscards == 1
	}, testWait, time.Millisecond)
	// dropped frames still advance the stream
	assert.Equal(t, uint32(0), peer.recv.ring.OccupiedSpace())
	rcv.expectNone(t, 100*time.Millisecond)

	a.Resume()
	peer.writeInbound(t, ipv4Frame(20))
	got := rcv.expect(t)
	assert.Equal(t, api.ProtocolIPv4, got.proto)
}

func TestReceiveIndicationErrorIsNotFatal(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	a.Resume()

	rcv.failNext.Store(1)
	peer.writeInbound(t, ipv4Frame(20))
	peer.writeInbound(t, ipv4Frame(24))

	// first frame dropped, second delivered
	got := rcv.expect(t)
	assert.Equal(t, 24, len(got.payload))

	s := a.Statistics()
	assert.Equal(t, int64(1), s.InPackets)
	assert.Equal(t, int64(1), s.InDiscards)
	assert.Equal(t, false, peer.recv.ring.HeadDetached())
}

func TestReceiveCopiedFrames(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv, CopyFrames: true})
	a.Resume()

	frame := ipv4Frame(20)
	frame[19] = 0x7F
	peer.writeInbound(t, frame)

	got := rcv.expect(t)
	assert.Equal(t, api.ProtocolIPv4, got.proto)
	assert.Equal(t, true, bytes.Equal(frame, got.payload))
}

func TestReceiveWakesFromParkedWorker(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	a.Resume()

	// with the ring empty past the spin budget, the worker parks and
	// announces it via the alertable flag
	assert.Eventually(t, peer.recv.ring.Alertable, testWait, time.Millisecond)

	peer.writeInbound(t, ipv4Frame(20))
	got := rcv.expect(t)
	assert.Equal(t, api.ProtocolIPv4, got.proto)

	// back to spinning or parked again, either way it cleared and re-set
	assert.Eventually(t, func() bool {
		return a.Statistics().InPackets == 1
	}, testWait, time.Millisecond)
}

func TestReceiveBackToBackFrames(t *testing.T) {
	rcv := newChanReceiver()
	a, peer, _ := connect(t, Config{Receiver: rcv})
	a.Resume()

	const n = 32
	for i := 0; i < n; i++ {
		peer.writeInbound(t, ipv4Frame(20+4*i))
	}
	for i := 0; i < n; i++ {
		got := rcv.expect(t)
		assert.Equal(t, 20+4*i, len(got.payload), "frames must arrive in ring order")
	}
	assert.Eventually(t, func() bool {
		return a.Statistics().InPackets == n
	}, testWait, time.Millisecond)
}
