package introducer

import (
	"sync"
)

// Store holds the current announcements, one FURL per peer ID.
type Store interface {
	// Put records furl for peerID and reports whether anything changed.
	Put(peerID string, furl string) (bool, error)

	// Delete removes the announcement of peerID and reports whether there was
	// one.
	Delete(peerID string) (bool, error)

	// All returns every announcement, indexed by peer ID.
	All() (map[string]string, error)

	Close() error
}

// InmemStore is a Store that lives in memory.
type InmemStore struct {
	sync.RWMutex
	announcements map[string]string
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		announcements: make(map[string]string),
	}
}

// Put implements the Store interface.
func (s *InmemStore) Put(peerID string, furl string) (bool, error) {
	s.Lock()
	defer s.Unlock()

	if old, ok := s.announcements[peerID]; ok && old == furl {
		return false, nil
	}
	s.announcements[peerID] = furl
	return true, nil
}

// Delete implements the Store interface.
func (s *InmemStore) Delete(peerID string) (bool, error) {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.announcements[peerID]; !ok {
		return false, nil
	}
	delete(s.announcements, peerID)
	return true, nil
}

// All implements the Store interface.
func (s *InmemStore) All() (map[string]string, error) {
	s.RLock()
	defer s.RUnlock()

	res := make(map[string]string, len(s.announcements))
	for id, furl := range s.announcements {
		res[id] = furl
	}
	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
