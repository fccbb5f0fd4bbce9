package node

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/common"
	"github.com/storagegrid/gridnode/src/identity"
	"github.com/storagegrid/gridnode/src/tub"
)

// AllowedServices are the named services that peers may obtain through
// get_service.
var AllowedServices = map[string]bool{
	"storageserver": true,
}

// Registrar registers the node's services in its tub and remembers their
// FURLs.
type Registrar struct {
	sync.RWMutex

	minter   identity.Minter
	basedir  string
	services map[string]string
	control  string
	logger   *logrus.Entry
}

// NewRegistrar ...
func NewRegistrar(minter identity.Minter, basedir string, logger *logrus.Entry) *Registrar {
	return &Registrar{
		minter:   minter,
		basedir:  basedir,
		services: make(map[string]string),
		logger:   logger,
	}
}

// RegisterControlService registers obj and writes its FURL, followed by a
// newline, to control.furl. The file is created anew, readable by the owner
// only.
func (r *Registrar) RegisterControlService(obj tub.Referenceable) (string, error) {
	furl, err := r.minter.RegisterReference(obj, "")
	if err != nil {
		return "", err
	}

	path := filepath.Join(r.basedir, ControlFURLFile)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", common.WrapGridErr(ControlFURLFile, common.PersistenceFailure, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", common.WrapGridErr(ControlFURLFile, common.PersistenceFailure, err)
	}

	if _, err := f.WriteString(furl + "\n"); err != nil {
		f.Close()
		return "", common.WrapGridErr(ControlFURLFile, common.PersistenceFailure, err)
	}

	if err := f.Close(); err != nil {
		return "", common.WrapGridErr(ControlFURLFile, common.PersistenceFailure, err)
	}

	r.Lock()
	r.control = furl
	r.Unlock()

	r.logger.Debug("Registered control service")

	return furl, nil
}

// RegisterNamedService registers obj and records its FURL under name.
func (r *Registrar) RegisterNamedService(name string, obj tub.Referenceable) (string, error) {
	furl, err := r.minter.RegisterReference(obj, "")
	if err != nil {
		return "", err
	}

	r.Lock()
	r.services[name] = furl
	r.Unlock()

	r.logger.WithField("service", name).Debug("Registered named service")

	return furl, nil
}

// GetNamedService returns the FURL of the service registered under name.
// Names that peers are not allowed to ask for fail with PermissionDenied, even
// if such a service is registered.
func (r *Registrar) GetNamedService(name string) (string, error) {
	if !AllowedServices[name] {
		return "", common.NewGridErr(name, common.PermissionDenied, "service not available to peers")
	}

	r.RLock()
	defer r.RUnlock()

	furl, ok := r.services[name]
	if !ok {
		return "", common.NewGridErr(name, common.NotFound, "service not registered")
	}
	return furl, nil
}

// ServiceNames returns the sorted names of the registered services.
func (r *Registrar) ServiceNames() []string {
	r.RLock()
	defer r.RUnlock()

	res := make([]string, 0, len(r.services))
	for name := range r.services {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// ControlFURL returns the FURL of the control service, empty if none was
// registered.
func (r *Registrar) ControlFURL() string {
	r.RLock()
	defer r.RUnlock()
	return r.control
}
