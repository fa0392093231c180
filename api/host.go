// Package api defines the contracts between the tun-shm transport core and
// the host network stack embedding it.
package api

// Protocol identifies the network protocol of an inbound frame, derived from
// the first nibble of the payload.
type Protocol uint8

const (
	ProtocolIPv4 Protocol = 4
	ProtocolIPv6 Protocol = 6
)

func (p Protocol) String() string {
	switch p {
	case ProtocolIPv4:
		return "IPv4"
	case ProtocolIPv6:
		return "IPv6"
	}
	return "unknown"
}

// FrameReceiver is implemented by the host network stack to accept inbound
// frames drained from the receive ring.
//
// ReceiveFrame is called synchronously from the receive worker. Unless the
// adapter was configured with CopyFrames, payload references shared ring
// memory and is only valid until ReceiveFrame returns; the ring slot is
// recycled immediately after. A non-nil error drops the frame and counts it
// as discarded, it does not stop the worker.
type FrameReceiver interface {
	ReceiveFrame(proto Protocol, payload []byte) error
}

// StatusSink receives link-state announcements from the adapter. Connected
// is announced only after the receive worker has started; disconnected is
// announced during teardown before the worker is reaped. Announcements run
// synchronously inside the adapter's lifecycle operations, so the sink must
// not call back into Register, Unregister or Halt.
type StatusSink interface {
	LinkStateChanged(connected bool)
}
