package identity

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/storagegrid/gridnode/src/common"
)

// MyFURLFile is the name of the file, inside the data directory, that holds
// the node's own FURL.
const MyFURLFile = "myself.furl"

// Store persists the node's FURL.
type Store struct {
	l    sync.Mutex
	path string
}

// NewStore returns a Store backed by the myself.furl file in basedir.
func NewStore(basedir string) *Store {
	return &Store{
		path: filepath.Join(basedir, MyFURLFile),
	}
}

// Path returns the location of the underlying file.
func (s *Store) Path() string {
	return s.path
}

// Read returns the saved FURL. It returns "" and no error if nothing was saved
// yet.
func (s *Store) Read() (string, error) {
	s.l.Lock()
	defer s.l.Unlock()

	buf, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(buf)), nil
}

// Write replaces the saved FURL.
func (s *Store) Write(furl string) error {
	s.l.Lock()
	defer s.l.Unlock()

	if err := ioutil.WriteFile(s.path, []byte(furl), 0644); err != nil {
		return common.WrapGridErr(MyFURLFile, common.PersistenceFailure, err)
	}

	return nil
}
