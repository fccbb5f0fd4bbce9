package keys

import (
	"crypto/elliptic"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// secp256k1N is the order of the curve; private scalars must be below it.
var secp256k1N = new(big.Int).Set(btcec.S256().N)

// Curve is the curve node keys live on: btcsuite's secp256k1.
func Curve() elliptic.Curve {
	return btcec.S256()
}
