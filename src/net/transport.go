package net

// Transport carries RPCs between tubs. A tub serves the requests arriving on
// Consumer() and uses Call and Ping to reach objects in other tubs, addressed
// by the location hint of their FURL.
type Transport interface {
	// Listen serves inbound connections until Close. Transports that need no
	// listener return immediately.
	Listen()

	// Consumer delivers inbound requests. Each must be answered with
	// RPC.Respond.
	Consumer() <-chan RPC

	// LocalAddr is the address the transport is bound to.
	LocalAddr() string

	// AdvertiseAddr is the address other tubs dial to reach us.
	AdvertiseAddr() string

	// Call invokes a method on a remote object.
	Call(target string, args *CallRequest, resp *CallResponse) error

	// Ping asks whether a remote tub holds a named object.
	Ping(target string, args *PingRequest, resp *PingResponse) error

	// Close releases the listener and every pooled connection. Calls made
	// after Close fail.
	Close() error
}
