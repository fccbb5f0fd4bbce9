package peers

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/storagegrid/gridnode/src/crypto"
	"github.com/storagegrid/gridnode/src/tub"
)

// RankedPeer is an entry of a ranking. Handle is the handle the peer had when
// the ranking was computed.
type RankedPeer struct {
	RankKey [crypto.DigestSize]byte
	ID      string
	Handle  tub.RemoteReference
}

// Int returns the rank key as a big-endian unsigned integer.
func (r RankedPeer) Int() *big.Int {
	return new(big.Int).SetBytes(r.RankKey[:])
}

// RankKey returns the position of peer id in the ranking for key. It only
// depends on key and id.
func RankKey(key []byte, id string) [crypto.DigestSize]byte {
	var out [crypto.DigestSize]byte
	copy(out[:], crypto.SHA256(key, []byte(id)))
	return out
}

// Rank orders peers for key, smallest rank key first. Peers with equal rank
// keys are ordered by ID. The input slice is not modified.
func Rank(key []byte, peers []*Peer) []RankedPeer {
	ranked := make([]RankedPeer, 0, len(peers))
	for _, p := range peers {
		ranked = append(ranked, RankedPeer{
			RankKey: RankKey(key, p.ID),
			ID:      p.ID,
			Handle:  p.Handle,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		c := bytes.Compare(ranked[i].RankKey[:], ranked[j].RankKey[:])
		if c != 0 {
			return c < 0
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked
}

// Rank orders the peers of the set for key.
func (peerSet *PeerSet) Rank(key []byte) []RankedPeer {
	return Rank(key, peerSet.Peers)
}
