package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SimpleKeyfile keeps the node key as a single hex line in a file only its
// owner may read.
type SimpleKeyfile struct {
	mu   sync.Mutex
	path string
}

// NewSimpleKeyfile returns a SimpleKeyfile backed by path. The file is not
// touched until ReadKey or WriteKey.
func NewSimpleKeyfile(path string) *SimpleKeyfile {
	return &SimpleKeyfile{path: path}
}

// CheckFileInfo fails if the key file is missing or if group or others have
// any permission on it.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("%s is accessible to group or others (mode %o)", filepath.Base(k.path), perm)
	}
	return nil
}

// ReadKey loads the key written by WriteKey.
func (k *SimpleKeyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	content, err := ioutil.ReadFile(k.path)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(content)))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", filepath.Base(k.path), err)
	}

	return ParsePrivateKey(raw)
}

// WriteKey stores key with mode 0600, creating the parent directory if
// needed.
func (k *SimpleKeyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return err
	}

	line := hex.EncodeToString(DumpPrivateKey(key)) + "\n"
	return ioutil.WriteFile(k.path, []byte(line), 0600)
}
