package net

import (
	"net"
	"time"
)

// StreamLayer supplies the raw connections a NetworkTransport frames its
// RPCs over. It accepts inbound connections as a net.Listener.
type StreamLayer interface {
	net.Listener

	// Dial opens an outbound connection to address.
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr is the address other tubs should dial, as written into
	// FURL location hints.
	AdvertiseAddr() string
}
