package peers

import (
	"github.com/storagegrid/gridnode/src/tub"
)

// Peer is a storage peer announced through the introducer.
type Peer struct {
	ID     string
	FURL   string
	Handle tub.RemoteReference
}

// NewPeer ...
func NewPeer(id string, furl string, handle tub.RemoteReference) *Peer {
	return &Peer{
		ID:     id,
		FURL:   furl,
		Handle: handle,
	}
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, id string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID != id {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
