package peers

import (
	"encoding/hex"
	"sort"

	"github.com/storagegrid/gridnode/src/crypto"
	"github.com/storagegrid/gridnode/src/tub"
)

// PeerSet is an immutable set of Peers, keyed by ID. Peers are kept sorted by
// ID.
type PeerSet struct {
	Peers []*Peer
	ByID  map[string]*Peer
}

/* Constructors */

// NewPeerSet creates a new PeerSet from a list of Peers. When several peers
// share an ID, the last one wins.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByID: make(map[string]*Peer),
	}

	for _, peer := range peers {
		peerSet.ByID[peer.ID] = peer
	}

	sorted := make([]*Peer, 0, len(peerSet.ByID))
	for _, peer := range peerSet.ByID {
		sorted = append(sorted, peer)
	}
	sort.Sort(ByID(sorted))

	peerSet.Peers = sorted

	return peerSet
}

// WithNewPeer returns a new PeerSet that includes peer. A peer with the same ID
// is replaced.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	_, others := ExcludePeer(peerSet.Peers, peer.ID)
	return NewPeerSet(append(others, peer))
}

// WithRemovedPeer returns a new PeerSet without the peer identified by id. It
// returns the receiver itself if there is no such peer.
func (peerSet *PeerSet) WithRemovedPeer(id string) *PeerSet {
	index, others := ExcludePeer(peerSet.Peers, id)
	if index < 0 {
		return peerSet
	}
	return NewPeerSet(others)
}

/* ToSlice Methods */

// IDs returns the sorted IDs of the peers in the PeerSet.
func (peerSet *PeerSet) IDs() []string {
	res := make([]string, 0, len(peerSet.Peers))

	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID)
	}

	return res
}

// Handles returns the handles of the peers in the PeerSet, indexed by ID.
func (peerSet *PeerSet) Handles() map[string]tub.RemoteReference {
	res := make(map[string]tub.RemoteReference, len(peerSet.Peers))

	for _, peer := range peerSet.Peers {
		res[peer.ID] = peer.Handle
	}

	return res
}

/* Utilities */

// Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByID)
}

// Hash identifies the membership of a PeerSet. It is the SHA256 digest of the
// sorted peer IDs.
func (peerSet *PeerSet) Hash() []byte {
	return crypto.SHA256Strings(peerSet.IDs())
}

// Hex is the hexadecimal representation of Hash
func (peerSet *PeerSet) Hex() string {
	return hex.EncodeToString(peerSet.Hash())
}

// ByID implements sort.Interface for Peers based on the ID field.
type ByID []*Peer

func (a ByID) Len() int           { return len(a) }
func (a ByID) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByID) Less(i, j int) bool { return a[i].ID < a[j].ID }
