package net

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const inmemTimeout = 500 * time.Millisecond

// randomInmemAddr names a transport that was created without an address.
func randomInmemAddr() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Errorf("reading random bytes: %v", err))
	}
	return "inmem-" + hex.EncodeToString(b[:])
}

// InmemTransport routes RPCs between transports living in the same process.
// Routes are explicit: a transport only reaches the targets it was Connected
// to, which lets tests cut individual links.
type InmemTransport struct {
	mu      sync.RWMutex
	addr    string
	inbox   chan RPC
	routes  map[string]*InmemTransport
	closed  bool
	timeout time.Duration
}

// NewInmemTransport creates a transport reachable at addr, or at a random
// address when addr is empty. The address is returned alongside.
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = randomInmemAddr()
	}
	return addr, &InmemTransport{
		addr:    addr,
		inbox:   make(chan RPC, 16),
		routes:  make(map[string]*InmemTransport),
		timeout: inmemTimeout,
	}
}

// Listen is a no-op; inbound RPCs are queued as soon as a route exists.
func (i *InmemTransport) Listen() {}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC { return i.inbox }

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string { return i.addr }

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string { return i.addr }

// Call implements the Transport interface.
func (i *InmemTransport) Call(target string, args *CallRequest, resp *CallResponse) error {
	out, err := i.deliver(target, args)
	if err != nil {
		return err
	}
	*resp = *out.(*CallResponse)
	return nil
}

// Ping implements the Transport interface.
func (i *InmemTransport) Ping(target string, args *PingRequest, resp *PingResponse) error {
	out, err := i.deliver(target, args)
	if err != nil {
		return err
	}
	*resp = *out.(*PingResponse)
	return nil
}

func (i *InmemTransport) route(target string) (*InmemTransport, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return nil, ErrTransportShutdown
	}
	peer, ok := i.routes[target]
	if !ok {
		return nil, fmt.Errorf("no route to %s", target)
	}
	return peer, nil
}

// deliver queues cmd on the target's inbox and waits for its answer. Both
// steps are bounded by the transport timeout.
func (i *InmemTransport) deliver(target string, cmd interface{}) (interface{}, error) {
	peer, err := i.route(target)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(i.timeout)
	defer timer.Stop()

	respCh := make(chan RPCResponse, 1)
	select {
	case peer.inbox <- RPC{Command: cmd, RespChan: respCh}:
	case <-timer.C:
		return nil, fmt.Errorf("%s did not accept the request in time", target)
	}

	select {
	case r := <-respCh:
		return r.Response, r.Error
	case <-timer.C:
		return nil, fmt.Errorf("%s did not answer in time", target)
	}
}

// Connect adds a route from this transport to t under the name target.
func (i *InmemTransport) Connect(target string, t Transport) {
	i.mu.Lock()
	i.routes[target] = t.(*InmemTransport)
	i.mu.Unlock()
}

// Disconnect removes the route to target.
func (i *InmemTransport) Disconnect(target string) {
	i.mu.Lock()
	delete(i.routes, target)
	i.mu.Unlock()
}

// Close drops every route. Later calls fail with ErrTransportShutdown.
func (i *InmemTransport) Close() error {
	i.mu.Lock()
	i.closed = true
	i.routes = make(map[string]*InmemTransport)
	i.mu.Unlock()
	return nil
}
