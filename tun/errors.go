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

import "errors"

// Registration errors. Any failure during Register unwinds everything
// acquired so far and leaves the adapter unregistered.
var (
	ErrInvalidParameter      = errors.New("tun: invalid parameter")
	ErrAlreadyRegistered     = errors.New("tun: rings already registered")
	ErrInsufficientResources = errors.New("tun: insufficient resources")
	ErrInvalidClientBuffer   = errors.New("tun: invalid client buffer")
	ErrAdapterExists         = errors.New("tun: adapter name already in use")
)

// Per-frame send errors. These are transient: the frame is dropped and
// counted as discarded, other frames in the batch are unaffected.
var (
	ErrAdapterRemoved = errors.New("tun: adapter removed")
	ErrPaused         = errors.New("tun: adapter paused")
	ErrNotConnected   = errors.New("tun: client not connected")
	ErrInvalidLength  = errors.New("tun: frame exceeds maximum packet size")
	ErrNotReady       = errors.New("tun: send ring not ready")
	ErrBufferOverflow = errors.New("tun: send ring full")
)
