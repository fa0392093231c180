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
	"runtime"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/tun-shm/api"
)

// receiveSpinBudget bounds the busy-wait on an empty receive ring before the
// worker parks on the notification event.
const receiveSpinBudget = 50 * time.Millisecond

// pump is the receive worker: exactly one per registration, the only context
// that ever blocks waiting for the client. It drains the receive ring and
// hands frames to the host receiver.
//
// Stream corruption is fatal: the worker marks head detached and stops
// without advancing, and only a fresh registration recovers service. A
// failed or gated indication is not: the frame is dropped, counted, and head
// advances.
func (a *Adapter) pump() {
	defer close(a.device.recv.done)

	a.transition.RLock()
	ring := a.device.recv.ring
	capacity := ring.capacity

	for {
		flags := a.flags.load()
		if flags&flagConnected == 0 {
			break
		}

		head := ring.loadHead()
		if head >= capacity {
			// Desynced consumer offset. Unrecoverable.
			break
		}

		tail := ring.loadTail()
		if head == tail {
			// Empty. Spin briefly before blocking: the client is usually
			// about to move the tail.
			a.transition.RUnlock()
			start := time.Now()
			for {
				tail = ring.loadTail()
				if tail != head {
					break
				}
				if a.flags.load()&flagConnected == 0 {
					break
				}
				if time.Since(start) >= receiveSpinBudget {
					break
				}
				runtime.Gosched()
			}
			if head == tail {
				ring.setAlertable(true)
				// Last-chance recheck: the client may have appended and
				// skipped the signal just before seeing alertable.
				tail = ring.loadTail()
				if head == tail {
					if err := a.device.recv.tailMoved.wait(); err != nil {
						internalLogger.errorf("adapter %s receive wait: %v", a.name, err)
					}
					ring.setAlertable(false)
					a.transition.RLock()
					continue
				}
				ring.setAlertable(false)
				a.device.recv.tailMoved.clear()
			}
			a.transition.RLock()
			continue
		}
		if tail >= capacity {
			break
		}

		content := ring.content(head, tail)
		if content < packetHeaderSize {
			break
		}
		size := ring.recordSizeAt(head)
		if size > MaxIPPacketSize {
			break
		}
		aligned := alignUp(packetHeaderSize + size)
		if aligned > content {
			break
		}

		payload := ring.payloadAt(head, size)
		var proto api.Protocol
		if size >= 20 && payload[0]>>4 == 4 {
			proto = api.ProtocolIPv4
		} else if size >= 40 && payload[0]>>4 == 6 {
			proto = api.ProtocolIPv6
		} else {
			// Neither a plausible IPv4 nor IPv6 packet. Unrecoverable.
			break
		}

		if a.indicate(flags, proto, payload) {
			a.stats.inOctets.Add(int64(size))
			a.stats.inPackets.Add(1)
			a.tel.addReceived(1)
		} else {
			a.stats.inDiscards.Add(1)
			a.tel.addDiscarded(1)
		}
		ring.storeHead(ring.wrap(head + aligned))
	}

	ring.MarkHeadDetached()
	a.transition.RUnlock()
	internalLogger.infof("adapter %s receive worker stopped", a.name)
}

// indicate hands one classified frame to the host receiver. Returns false
// when the frame must be dropped: traffic is gated off or the receiver
// rejected it.
func (a *Adapter) indicate(flags int32, proto api.Protocol, payload []byte) bool {
	if flags&(flagPresent|flagRunning) != flagPresent|flagRunning {
		return false
	}
	if a.copyFrames {
		buf := bytebufferpool.Get()
		_, _ = buf.Write(payload)
		err := a.receiver.ReceiveFrame(proto, buf.B)
		bytebufferpool.Put(buf)
		return err == nil
	}
	// Zero-copy: payload references ring memory and is only valid until the
	// receiver returns.
	return a.receiver.ReceiveFrame(proto, payload) == nil
}
