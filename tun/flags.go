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

import "sync/atomic"

// Adapter flag bits. All three must be set for traffic to flow.
const (
	flagRunning   int32 = 1 << 0 // paused vs running
	flagPresent   int32 = 1 << 1 // removal pending vs present
	flagConnected int32 = 1 << 2 // client rings registered
)

// adapterFlags is the tri-state bitset gating both data paths. Hot paths
// snapshot it once per iteration under the shared transition lock; any
// writer clearing a bit that affects ring validity must follow the clear
// with an exclusive acquire/release of the transition lock before ring
// memory goes away.
type adapterFlags struct {
	v atomic.Int32
}

func (f *adapterFlags) load() int32      { return f.v.Load() }
func (f *adapterFlags) set(mask int32)   { f.v.Or(mask) }
func (f *adapterFlags) clear(mask int32) { f.v.And(^mask) }

// AdapterState is a point-in-time snapshot of the adapter flags.
type AdapterState struct {
	Present   bool
	Running   bool
	Connected bool
}
