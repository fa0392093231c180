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
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

const journalCapacity = 64

// LifecycleEvent is one entry of the adapter's diagnostic event journal.
type LifecycleEvent struct {
	At   time.Time
	What string
}

// journal keeps a bounded, lock-free history of lifecycle transitions.
// Entries are dropped when the buffer is full; the journal is diagnostic
// only and never blocks a transition.
type journal struct {
	rb *queue.RingBuffer
}

func newJournal() *journal {
	return &journal{rb: queue.NewRingBuffer(journalCapacity)}
}

func (j *journal) record(what string) {
	if ok, err := j.rb.Offer(LifecycleEvent{At: time.Now(), What: what}); !ok || err != nil {
		internalLogger.debugf("journal entry dropped: %s", what)
	}
}

func (j *journal) drain() []LifecycleEvent {
	var events []LifecycleEvent
	for j.rb.Len() > 0 {
		v, err := j.rb.Poll(time.Millisecond)
		if err != nil {
			break
		}
		if e, ok := v.(LifecycleEvent); ok {
			events = append(events, e)
		}
	}
	return events
}

// Events drains and returns the adapter's recorded lifecycle transitions,
// oldest first.
func (a *Adapter) Events() []LifecycleEvent {
	return a.journal.drain()
}
