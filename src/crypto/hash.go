package crypto

import (
	"crypto/sha256"
)

// DigestSize is the size of the digests returned by SHA256.
const DigestSize = sha256.Size

// SHA256 returns the SHA256 hash of the concatenation of parts.
func SHA256(parts ...[]byte) []byte {
	hasher := sha256.New()
	for _, p := range parts {
		hasher.Write(p)
	}
	return hasher.Sum(nil)
}

// SHA256Strings is SHA256 over strings, typically the sorted IDs of a set of
// peers. IDs are expected to have a fixed length, there is no separator.
func SHA256Strings(parts []string) []byte {
	hasher := sha256.New()
	for _, p := range parts {
		hasher.Write([]byte(p))
	}
	return hasher.Sum(nil)
}
