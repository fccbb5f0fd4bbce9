// Package tub hosts referenceable objects and hands out references to them.
//
// A Tub is bound to the node key and to a net.Transport. Every object
// registered in a tub is reachable through a FURL:
//
//	pb://<tubID>@<hint>[,<hint>...]/<name>
//
// where tubID is derived from the node's public key, the hints are transport
// addresses at which the tub can be reached, and name is the secret
// "swissnum" under which the object was registered.
//
// References obtained from GetReference or ConnectTo implement
// RemoteReference. A reference to an object in the local tub is invoked
// in-process, but its arguments, results and errors go through the same
// encoding as a call that crosses the network, so callers cannot tell the two
// apart.
package tub
