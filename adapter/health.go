// Package adapter provides integration glue between the tun-shm transport
// core and external systems.
package adapter

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/tun-shm/tun"
)

// NewHealthHandler builds a healthcheck handler over a registry: liveness
// fails when the registry is empty, and one readiness check per named
// adapter fails until that adapter has a client connected.
func NewHealthHandler(reg *tun.Registry, names ...string) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("adapter-registry", func() error {
		if reg.Count() == 0 {
			return fmt.Errorf("no adapters registered")
		}
		return nil
	})
	for _, name := range names {
		name := name
		h.AddReadinessCheck(name+"-connected", func() error {
			a, ok := reg.Adapter(name)
			if !ok {
				return fmt.Errorf("adapter %s not found", name)
			}
			if !a.Connected() {
				return fmt.Errorf("adapter %s has no client connected", name)
			}
			return nil
		})
	}
	return h
}
