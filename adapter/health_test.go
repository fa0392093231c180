package adapter

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srediag/tun-shm/api"
	"github.com/srediag/tun-shm/tun"
)

type nopReceiver struct{}

func (nopReceiver) ReceiveFrame(api.Protocol, []byte) error { return nil }

func TestHealthHandler(t *testing.T) {
	reg, err := tun.NewRegistry(2)
	assert.Equal(t, nil, err)
	t.Cleanup(func() { _ = reg.Shutdown() })

	h := NewHealthHandler(reg, "tun0")

	// empty registry: not live, and tun0 does not exist yet
	rec := httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest("GET", "/live", nil))
	assert.Equal(t, 503, rec.Code)

	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, 503, rec.Code)

	_, err = reg.CreateAdapter(tun.Config{Name: "tun0", Receiver: nopReceiver{}})
	assert.Equal(t, nil, err)

	rec = httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest("GET", "/live", nil))
	assert.Equal(t, 200, rec.Code)

	// present but no client registered: still not ready
	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, 503, rec.Code)
}
