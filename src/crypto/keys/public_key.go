package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base32"
	"strings"
)

// TubIDLength is the number of characters in a tub ID.
const TubIDLength = 32

var tubIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ToPublicKey parses an uncompressed point produced by FromPublicKey. It
// returns nil if pub is not a point on Curve().
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey encodes pub as an uncompressed point, the form TubID hashes.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// TubID derives the tub ID of a node from its public key: the lowercase base32
// encoding of the SHA256 digest of the uncompressed point, truncated to
// TubIDLength characters.
func TubID(pub *ecdsa.PublicKey) string {
	digest := sha256.Sum256(FromPublicKey(pub))
	encoded := strings.ToLower(tubIDEncoding.EncodeToString(digest[:]))
	return encoded[:TubIDLength]
}

// IsTubID reports whether s has the shape of a tub ID.
func IsTubID(s string) bool {
	if len(s) != TubIDLength {
		return false
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z') && !(c >= '2' && c <= '7') {
			return false
		}
	}
	return true
}
