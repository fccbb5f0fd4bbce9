package net

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// Request types, sent before each request body.
const (
	rpcCall uint8 = iota
	rpcPing
)

const bufSize = 64 * 1024

// protocolMagic opens every connection. A listener closes connections that do
// not start with it.
var protocolMagic = []byte("gridrpc1")

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	errBadProtocol = errors.New("peer does not speak the grid RPC protocol")
)

// replyHeader precedes every reply body. Error is a transport-level failure;
// failures of the invoked object travel in the body.
type replyHeader struct {
	Error string `codec:"error"`
}

/*
NetworkTransport carries tub RPCs over a StreamLayer, typically TCP.

A connection starts with protocolMagic. Each request is its type byte followed
by the request body, and each reply is a replyHeader followed by the reply
body, all encoded with msgpack. Outgoing connections are pooled per target and
reused one request at a time.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	stream  StreamLayer
	pool    *connPool
	timeout time.Duration

	consumeCh chan RPC

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. maxPool bounds the idle connections kept per target. timeout is the
// I/O deadline of a request, zero means none.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &NetworkTransport{
		logger:     logger,
		stream:     stream,
		pool:       newConnPool(maxPool),
		timeout:    timeout,
		consumeCh:  make(chan RPC),
		shutdownCh: make(chan struct{}),
	}
}

// Close stops listening and closes idle connections.
func (n *NetworkTransport) Close() error {
	n.shutdownOnce.Do(func() {
		close(n.shutdownCh)
		n.stream.Close()
		n.pool.closeAll()
	})
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	if addr := n.stream.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// Port returns the bound TCP port, or 0 if the stream layer is not TCP.
func (n *NetworkTransport) Port() int {
	if tcp, ok := n.stream.(*TCPStreamLayer); ok {
		return tcp.Port()
	}
	return 0
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Call implements the Transport interface.
func (n *NetworkTransport) Call(target string, args *CallRequest, resp *CallResponse) error {
	return n.roundTrip(target, rpcCall, args, resp)
}

// Ping implements the Transport interface.
func (n *NetworkTransport) Ping(target string, args *PingRequest, resp *PingResponse) error {
	return n.roundTrip(target, rpcPing, args, resp)
}

// dial opens a connection to target and sends the protocol handshake.
func (n *NetworkTransport) dial(target string) (*outConn, error) {
	conn, err := n.stream.Dial(target, n.timeout)
	if err != nil {
		return nil, err
	}

	w := bufio.NewWriterSize(conn, bufSize)
	if _, err := w.Write(protocolMagic); err != nil {
		conn.Close()
		return nil, err
	}

	return &outConn{
		target: target,
		conn:   conn,
		w:      w,
		dec:    newStreamDecoder(bufio.NewReaderSize(conn, bufSize)),
		enc:    newStreamEncoder(w),
	}, nil
}

// roundTrip sends one request to target and decodes the reply into resp. The
// connection goes back to the pool only if the exchange completed.
func (n *NetworkTransport) roundTrip(target string, rpcType uint8, args interface{}, resp interface{}) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	c := n.pool.take(target)
	if c == nil {
		var err error
		if c, err = n.dial(target); err != nil {
			return err
		}
	}

	if n.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(n.timeout))
	}

	if err := writeRequest(c, rpcType, args); err != nil {
		c.Release()
		return err
	}

	var header replyHeader
	if err := c.dec.Decode(&header); err != nil {
		c.Release()
		return err
	}
	if err := c.dec.Decode(resp); err != nil {
		c.Release()
		return err
	}

	n.pool.put(c)

	if header.Error != "" {
		return errors.New(header.Error)
	}
	return nil
}

func writeRequest(c *outConn, rpcType uint8, args interface{}) error {
	if err := c.enc.Encode(rpcType); err != nil {
		return err
	}
	if err := c.enc.Encode(args); err != nil {
		return err
	}
	return c.w.Flush()
}

// Listen accepts incoming connections until the transport is closed.
func (n *NetworkTransport) Listen() {
	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithError(err).Error("Failed to accept connection")
			continue
		}

		n.logger.WithFields(logrus.Fields{
			"local": conn.LocalAddr(),
			"from":  conn.RemoteAddr(),
		}).Debug("Accepted connection")

		go n.serveConn(conn)
	}
}

// serveConn checks the handshake, then serves requests in order until the
// connection fails or the transport is closed.
func (n *NetworkTransport) serveConn(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReaderSize(conn, bufSize)
	if err := readHandshake(r); err != nil {
		n.logger.WithField("from", conn.RemoteAddr()).WithError(err).Warn("Rejecting connection")
		return
	}

	w := bufio.NewWriterSize(conn, bufSize)
	dec := newStreamDecoder(r)
	enc := newStreamEncoder(w)

	for {
		if err := n.serveRequest(dec, enc); err != nil {
			switch {
			case err == ErrTransportShutdown:
				n.logger.Debug("Transport closed, dropping connection")
			case err != io.EOF:
				n.logger.WithError(err).Debug("Closing inbound connection")
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.logger.WithError(err).Error("Failed to flush reply")
			return
		}
	}
}

func readHandshake(r io.Reader) error {
	buf := make([]byte, len(protocolMagic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if !bytes.Equal(buf, protocolMagic) {
		return errBadProtocol
	}
	return nil
}

// serveRequest decodes one request, hands it to the consumer and writes the
// reply.
func (n *NetworkTransport) serveRequest(dec *codec.Decoder, enc *codec.Encoder) error {
	var rpcType uint8
	if err := dec.Decode(&rpcType); err != nil {
		return err
	}

	var command interface{}
	switch rpcType {
	case rpcCall:
		req := new(CallRequest)
		if err := dec.Decode(req); err != nil {
			return err
		}
		command = req
	case rpcPing:
		req := new(PingRequest)
		if err := dec.Decode(req); err != nil {
			return err
		}
		command = req
	default:
		return fmt.Errorf("unknown rpc type %d", rpcType)
	}

	respCh := make(chan RPCResponse, 1)

	select {
	case n.consumeCh <- RPC{Command: command, RespChan: respCh}:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	var resp RPCResponse
	select {
	case resp = <-respCh:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	var header replyHeader
	if resp.Error != nil {
		header.Error = resp.Error.Error()
	}
	if err := enc.Encode(&header); err != nil {
		return err
	}
	return enc.Encode(resp.Response)
}
