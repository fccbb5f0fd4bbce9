package introducer

import (
	"fmt"

	"github.com/dgraph-io/badger"
)

const announcementPrefix = "announcement"

// BadgerStore is a Store backed by a badger database, so that announcements
// survive a restart of the introducer.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens, or creates, the database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{
		db:   handle,
		path: path,
	}, nil
}

func announcementKey(peerID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", announcementPrefix, peerID))
}

// Put implements the Store interface.
func (s *BadgerStore) Put(peerID string, furl string) (bool, error) {
	changed := false
	key := announcementKey(peerID)
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			old, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(old) == furl {
				return nil
			}
		case !isDBKeyNotFound(err):
			return err
		}

		changed = true
		//insert [announcement_peerID] => [furl]
		return txn.Set(key, []byte(furl))
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// Delete implements the Store interface.
func (s *BadgerStore) Delete(peerID string) (bool, error) {
	deleted := false
	key := announcementKey(peerID)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if isDBKeyNotFound(err) {
				return nil
			}
			return err
		}
		deleted = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// All implements the Store interface.
func (s *BadgerStore) All() (map[string]string, error) {
	res := make(map[string]string)
	prefix := []byte(announcementPrefix + "_")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			peerID := string(item.Key()[len(prefix):])
			res[peerID] = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath returns the location of the database.
func (s *BadgerStore) StorePath() string {
	return s.path
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}
