package identity

import (
	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/tub"
)

// NodeIdentity is the reference a node answers to during this run.
// LogicalName is the name recovered from the previous run, empty on a first
// start.
type NodeIdentity struct {
	CurrentReference string
	LogicalName      string
}

// Minter registers an object and returns its FURL. An empty name asks for a
// fresh one. *tub.Tub implements it.
type Minter interface {
	RegisterReference(obj tub.Referenceable, name string) (string, error)
}

// LoadOrMint registers obj under the name found in the store, or under a fresh
// name if the store is empty or unreadable, and saves the resulting FURL
// before returning. A failure to save is returned as a PersistenceFailure and
// must be treated as fatal.
func LoadOrMint(store *Store,
	minter Minter,
	obj tub.Referenceable,
	logger *logrus.Entry,
) (*NodeIdentity, error) {

	logicalName := recoverName(store, logger)

	furl, err := minter.RegisterReference(obj, logicalName)
	if err != nil {
		return nil, err
	}

	if err := store.Write(furl); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"furl":      furl,
		"recovered": logicalName != "",
	}).Info("Node identity ready")

	return &NodeIdentity{
		CurrentReference: furl,
		LogicalName:      logicalName,
	}, nil
}

func recoverName(store *Store, logger *logrus.Entry) string {
	old, err := store.Read()
	if err != nil {
		logger.WithError(err).Warn("Cannot read previous FURL, minting a new one")
		return ""
	}
	if old == "" {
		return ""
	}

	f, err := tub.ParseFURL(old)
	if err != nil {
		logger.WithError(err).Warn("Previous FURL is corrupt, minting a new one")
		return ""
	}

	return f.Name
}
