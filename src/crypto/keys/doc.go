// Package keys implements the node key used to identify a gridnode on the
// network.
//
// Every node owns a secp256k1 key-pair, stored unencrypted in the data
// directory. The public key is never sent to peers directly: it is hashed into
// a tub ID, the stable component of every reference (FURL) the node hands out.
// A node that keeps its key file keeps its tub ID across restarts, and peers
// that rank storage by tub ID keep placing shares on it.
package keys
