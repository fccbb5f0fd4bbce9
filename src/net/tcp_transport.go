package net

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	errNotAdvertisable = errors.New("bind address is unspecified and no advertise address was given")
	errNotTCP          = errors.New("advertise address is not a TCP address")
)

// TCPStreamLayer is a StreamLayer over plain TCP sockets.
type TCPStreamLayer struct {
	*net.TCPListener
	advertise string
}

// NewTCPTransport binds bindAddr and returns a NetworkTransport on top of it.
// advertise overrides the address given to other tubs; it is required when
// bindAddr has an unspecified host such as 0.0.0.0.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	stream, err := listenTCP(bindAddr, advertise)
	if err != nil {
		return nil, err
	}
	return NewNetworkTransport(stream, maxPool, timeout, logger), nil
}

func listenTCP(bindAddr, advertise string) (*TCPStreamLayer, error) {
	l, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	listener := l.(*net.TCPListener)

	if err := checkAdvertisable(listener.Addr(), advertise); err != nil {
		listener.Close()
		return nil, err
	}

	return &TCPStreamLayer{TCPListener: listener, advertise: advertise}, nil
}

// checkAdvertisable makes sure other tubs will be able to dial us back.
func checkAdvertisable(bound net.Addr, advertise string) error {
	addr, ok := bound.(*net.TCPAddr)
	if advertise != "" {
		resolved, err := net.ResolveTCPAddr("tcp", advertise)
		if err != nil {
			return err
		}
		addr, ok = resolved, true
	}
	switch {
	case !ok:
		return errNotTCP
	case addr.IP.IsUnspecified():
		return errNotAdvertisable
	}
	return nil
}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}

// AdvertiseAddr implements the StreamLayer interface.
func (t *TCPStreamLayer) AdvertiseAddr() string {
	if t.advertise != "" {
		return t.advertise
	}
	return t.Addr().String()
}

// Port is the port the listener is bound to, which is assigned by the kernel
// when the transport was created with port 0.
func (t *TCPStreamLayer) Port() int {
	return t.Addr().(*net.TCPAddr).Port
}
