package crypto

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestSHA256(t *testing.T) {
	expected := sha256.Sum256([]byte("storage index" + "peer"))

	if got := SHA256([]byte("storage index"), []byte("peer")); !bytes.Equal(got, expected[:]) {
		t.Fatalf("SHA256 of parts should be the digest of their concatenation")
	}

	if got := SHA256Strings([]string{"storage index", "peer"}); !bytes.Equal(got, expected[:]) {
		t.Fatalf("SHA256Strings should agree with SHA256")
	}

	empty := sha256.Sum256(nil)
	if got := SHA256(); !bytes.Equal(got, empty[:]) {
		t.Fatalf("SHA256 of nothing should be the digest of the empty string")
	}
}
