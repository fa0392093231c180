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

// Send appends one outbound frame to the send ring. It is SendBatch for a
// single frame.
func (a *Adapter) Send(frame []byte) error {
	return a.SendBatch([][]byte{frame})[0]
}

// SendBatch appends a batch of outbound frames and returns one status per
// frame; nil means accepted. Safe to call concurrently: producers race on
// the per-endpoint lock and never block beyond it. A failed frame is dropped
// and counted, the rest of the batch proceeds. Statistics are updated once
// per batch.
func (a *Adapter) SendBatch(frames [][]byte) []error {
	statuses := make([]error, len(frames))
	var sentPackets, sentBytes, discarded int64

	a.transition.RLock()
	flags := a.flags.load()

	for i, frame := range frames {
		if err := a.appendFrame(flags, frame); err != nil {
			statuses[i] = err
			discarded++
			continue
		}
		sentPackets++
		sentBytes += int64(len(frame))
	}

	a.transition.RUnlock()

	a.stats.outOctets.Add(sentBytes)
	a.stats.outPackets.Add(sentPackets)
	a.stats.outDiscards.Add(discarded)
	a.tel.addSent(sentPackets)
	a.tel.addDiscarded(discarded)
	return statuses
}

// appendFrame writes one frame into the send ring. Caller holds the shared
// transition lock; flags is the batch's flag snapshot. The first failing
// precondition wins.
func (a *Adapter) appendFrame(flags int32, frame []byte) error {
	switch {
	case flags&flagPresent == 0:
		return ErrAdapterRemoved
	case flags&flagRunning == 0:
		return ErrPaused
	case flags&flagConnected == 0:
		return ErrNotConnected
	}
	if len(frame) > MaxIPPacketSize {
		return ErrInvalidLength
	}

	ep := &a.device.send
	ring := ep.ring
	aligned := alignUp(packetHeaderSize + uint32(len(frame)))

	ep.lock.Lock()
	head := ring.loadHead()
	if head >= ring.capacity {
		ep.lock.Unlock()
		return ErrNotReady
	}
	tail := ring.loadTail()
	if tail >= ring.capacity {
		ep.lock.Unlock()
		return ErrNotReady
	}
	if aligned > ring.space(head, tail) {
		ep.lock.Unlock()
		return ErrBufferOverflow
	}
	ring.writeRecord(tail, frame)
	ring.storeTail(ring.wrap(tail + aligned))
	ep.lock.Unlock()

	ep.tailMoved.signal()
	return nil
}
