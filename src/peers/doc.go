// Package peers keeps track of the storage peers a node knows about and ranks
// them for a given storage item.
//
// A Peer is identified by the ID of its tub and carries the FURL it announced
// along with a live handle to it. A PeerSet is an immutable collection of
// peers with at most one entry per ID; every change produces a new PeerSet,
// so readers holding a PeerSet always see a consistent snapshot.
//
// Rank orders peers by rendezvous hashing: each peer's position for a key is
// given by the SHA256 digest of the key followed by the peer ID. Every client
// that knows the same peers computes the same order for the same key, and
// adding or removing a peer never changes the relative order of the others.
package peers
