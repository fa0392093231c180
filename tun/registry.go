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
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
)

const (
	// Shutdown polls for draining receive workers every interval, for at
	// most two minutes total.
	shutdownPollInterval = 50 * time.Millisecond
	shutdownMaxPolls     = 2400
)

var errWorkersDraining = errors.New("tun: receive workers still draining")

// Registry tracks adapters by name and owns the worker pool their receive
// workers run on.
type Registry struct {
	adapters cmap.ConcurrentMap[string, *Adapter]
	pool     *ants.Pool
}

// NewRegistry creates a registry whose pool can run up to maxAdapters
// receive workers concurrently (one per registered adapter).
func NewRegistry(maxAdapters int) (*Registry, error) {
	pool, err := ants.NewPool(maxAdapters, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &Registry{
		adapters: cmap.New[*Adapter](),
		pool:     pool,
	}, nil
}

// CreateAdapter creates and registers a new adapter. The adapter comes up
// present but not running; call Resume to enable traffic.
func (r *Registry) CreateAdapter(cfg Config) (*Adapter, error) {
	if cfg.Name == "" || cfg.Receiver == nil {
		return nil, ErrInvalidParameter
	}
	a := newAdapter(cfg, r.pool)
	if !r.adapters.SetIfAbsent(cfg.Name, a) {
		return nil, ErrAdapterExists
	}
	// Announce only after the name is reserved: a losing duplicate must stay
	// invisible to its status sink.
	a.attach()
	internalLogger.infof("adapter %s created", cfg.Name)
	return a, nil
}

// Adapter looks up an adapter by name.
func (r *Registry) Adapter(name string) (*Adapter, bool) {
	return r.adapters.Get(name)
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	return r.adapters.Count()
}

// RemoveAdapter halts the named adapter and removes it from the registry.
func (r *Registry) RemoveAdapter(name string) {
	a, ok := r.adapters.Pop(name)
	if !ok {
		return
	}
	a.Halt()
}

// Shutdown halts every adapter, waits for their receive workers to drain and
// releases the pool. Returns an error if workers are still running after the
// drain deadline; the pool is released regardless.
func (r *Registry) Shutdown() error {
	for _, name := range r.adapters.Keys() {
		r.RemoveAdapter(name)
	}
	err := backoff.Retry(func() error {
		if r.pool.Running() > 0 {
			return errWorkersDraining
		}
		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(shutdownPollInterval), shutdownMaxPolls))
	r.pool.Release()
	return err
}
