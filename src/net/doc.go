// Package net implements the transports that carry remote calls between
// gridnode tubs.
//
// A Transport moves two kinds of request: CallRequest, which invokes a method
// on an object registered in a remote tub, and PingRequest, which checks that
// a reference still resolves. There are two implementations:
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: a NetworkTransport on top of a plain TCP StreamLayer
//
// The NetworkTransport frames every request with its type followed by the
// request body, both encoded with msgpack. The response is an error string
// followed by the response object. Connections are pooled per target.
//
// Addresses are the location hints found in references. The advertise address
// is the one a node writes into its own references, so it must be reachable by
// other nodes even when the bind address is not.
package net
