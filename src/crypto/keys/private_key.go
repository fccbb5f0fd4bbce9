package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// PrivateKeySize is the length in bytes of a serialized private key.
const PrivateKeySize = 32

// GenerateECDSAKey creates a fresh node key on Curve().
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(Curve(), rand.Reader)
}

// DumpPrivateKey serializes the scalar of priv as PrivateKeySize big-endian
// bytes.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return (*btcec.PrivateKey)(priv).Serialize()
}

// ParsePrivateKey is the inverse of DumpPrivateKey. It rejects scalars that
// are not in [1, N-1].
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != PrivateKeySize {
		return nil, fmt.Errorf("private key is %d bytes, want %d", len(d), PrivateKeySize)
	}

	scalar := new(big.Int).SetBytes(d)
	if scalar.Sign() == 0 || scalar.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("private key is out of range")
	}

	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)
	return priv.ToECDSA(), nil
}
