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
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/tun-shm/api"
	"github.com/srediag/tun-shm/internal/shm"
)

// Config describes one adapter instance.
type Config struct {
	// Name identifies the adapter in the registry, logs and metrics.
	Name string

	// Receiver accepts inbound frames drained from the receive ring.
	Receiver api.FrameReceiver

	// Status, if set, receives link-state announcements.
	Status api.StatusSink

	// Meter and Tracer enable optional OpenTelemetry instrumentation.
	Meter  metric.Meter
	Tracer trace.Tracer

	// CopyFrames copies each inbound payload into a pooled buffer before
	// indication instead of handing out a reference into ring memory.
	CopyFrames bool
}

// Adapter is one transport instance: a pair of client-hosted rings, the flag
// state machine gating traffic, and the receive worker. At most one client
// registration is live at a time.
type Adapter struct {
	name       string
	receiver   api.FrameReceiver
	status     api.StatusSink
	copyFrames bool

	flags adapterFlags

	// transition is used RCU-like: data paths hold the read side around one
	// flag-snapshot-plus-ring-access; flag writers that invalidate ring
	// memory acquire and release the write side immediately after the flip,
	// as a barrier, before any unmap.
	transition sync.RWMutex

	// lifecycle serializes Register, Unregister and Halt with each other, so
	// a halt can never observe a registration whose device fields are still
	// being populated. The owner pointer stays the exclusivity gate.
	lifecycle sync.Mutex

	stats   statistics
	tel     *telemetry
	journal *journal
	pool    *ants.Pool

	device struct {
		owner atomic.Pointer[Session]

		send struct {
			region    *shm.MappedRegion
			ring      *Ring
			tailMoved *event
			lock      sync.Mutex // serializes concurrent producers, held briefly
		}

		recv struct {
			region    *shm.MappedRegion
			ring      *Ring
			tailMoved *event
			done      chan struct{}
		}
	}
}

func newAdapter(cfg Config, pool *ants.Pool) *Adapter {
	a := &Adapter{
		name:       cfg.Name,
		receiver:   cfg.Receiver,
		status:     cfg.Status,
		copyFrames: cfg.CopyFrames,
		tel:        newTelemetry(cfg.Meter, cfg.Tracer),
		journal:    newJournal(),
		pool:       pool,
	}
	a.flags.set(flagPresent)
	return a
}

// attach runs the externally visible creation side effects. Called only once
// the adapter's name is reserved in the registry.
func (a *Adapter) attach() {
	a.journal.record("attached")
	a.announce(false)
}

// Name returns the adapter's registry name.
func (a *Adapter) Name() string { return a.name }

// State returns a snapshot of the adapter flags.
func (a *Adapter) State() AdapterState {
	f := a.flags.load()
	return AdapterState{
		Present:   f&flagPresent != 0,
		Running:   f&flagRunning != 0,
		Connected: f&flagConnected != 0,
	}
}

// Connected reports whether a client registration is live.
func (a *Adapter) Connected() bool {
	return a.flags.load()&flagConnected != 0
}

// barrier makes a preceding flag change visible to every data-path reader:
// once the exclusive lock has been acquired and released, any reader that
// started before the flip has finished its ring access. Must run before ring
// memory is unmapped.
func (a *Adapter) barrier() {
	a.transition.Lock()
	//lint:ignore SA2001 empty critical section is the point
	a.transition.Unlock()
}

func (a *Adapter) announce(connected bool) {
	if a.status != nil {
		a.status.LinkStateChanged(connected)
	}
}

// Resume moves the adapter to the running state. Traffic requires Present,
// Running and Connected all set.
func (a *Adapter) Resume() {
	a.flags.set(flagRunning)
	a.journal.record("resumed")
}

// Pause stops traffic in both directions. In-flight data path calls finish
// under the old state before Pause returns.
func (a *Adapter) Pause() {
	a.flags.clear(flagRunning)
	a.barrier()
	a.journal.record("paused")
}

// Removing marks the adapter removal-pending. Data paths fail with
// ErrAdapterRemoved until CancelRemove.
func (a *Adapter) Removing() {
	a.flags.clear(flagPresent)
	a.barrier()
	a.journal.record("removing")
}

// CancelRemove undoes Removing.
func (a *Adapter) CancelRemove() {
	a.flags.set(flagPresent)
	a.journal.record("remove canceled")
}

// Halt permanently stops the adapter and tears down a live registration, if
// any. Idempotent. A registration racing Halt either completes first and is
// torn down, or observes the cleared Present flag and fails.
func (a *Adapter) Halt() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	a.flags.clear(flagPresent)
	a.barrier()
	if s := a.device.owner.Load(); s != nil && a.device.owner.CompareAndSwap(s, nil) {
		a.teardown()
	}
	a.journal.record("halted")
}
