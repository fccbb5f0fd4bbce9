package node

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/common"
	"github.com/storagegrid/gridnode/src/identity"
	"github.com/storagegrid/gridnode/src/introducer"
	"github.com/storagegrid/gridnode/src/peers"
	"github.com/storagegrid/gridnode/src/tub"
	"github.com/storagegrid/gridnode/src/version"
)

// Versions is the answer to get_versions.
type Versions struct {
	Current string `codec:"current"`
	Oldest  string `codec:"oldest"`
}

// Node is the client node of a storage grid. It is itself a Referenceable
// whose FURL is announced to the introducer.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	files     *Files
	tub       *tub.Tub
	dialer    introducer.Dialer
	services  map[string]tub.Referenceable
	registrar *Registrar

	identity   *identity.NodeIdentity
	introducer *introducer.Client

	vdriveLock       sync.RWMutex
	vdrive           tub.RemoteReference
	publicRootFURL   string
	vdriveConnecting bool

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	maintenanceTimer *ControlTimer
	hotlineTimer     *ControlTimer

	start time.Time
}

// NewNode is a factory method that returns a Node instance. The dialer opens
// sessions with the introducer designated by files.IntroducerFURL. Services
// are registered as named services during Init.
func NewNode(conf *Config,
	files *Files,
	tb *tub.Tub,
	dialer introducer.Dialer,
	services map[string]tub.Referenceable,
) *Node {

	logger := conf.Logger.WithField("tub_id", tb.TubID()[:8])

	node := Node{
		conf:             conf,
		logger:           logger,
		files:            files,
		tub:              tb,
		dialer:           dialer,
		services:         services,
		registrar:        NewRegistrar(tb, files.BaseDir, logger),
		shutdownCh:       make(chan struct{}),
		maintenanceTimer: NewFixedControlTimer(),
		hotlineTimer:     NewFixedControlTimer(),
	}

	return &node
}

// Init registers the node object under its persistent name, starts talking to
// the introducer, registers the control and named services, and starts the
// vdrive handshake. Only local failures are returned; the introducer and the
// vdrive are reached in the background.
func (n *Node) Init() error {
	n.start = time.Now()

	id, err := identity.LoadOrMint(identity.NewStore(n.files.BaseDir), n.tub, n, n.logger)
	if err != nil {
		return err
	}
	n.identity = id

	ic, err := introducer.NewClient(n.dialer,
		n.conf.IntroducerRealm,
		id.CurrentReference,
		n.tub,
		n.conf.IntroducerTimeout,
		n.logger.WithField("component", "introducer"))
	if err != nil {
		return err
	}
	n.introducer = ic

	if err := n.registerServices(); err != nil {
		// nothing has been announced yet
		n.Shutdown()
		return err
	}

	n.goFunc(n.connectIntroducer)

	if n.files.VDriveFURL != "" {
		n.startVDriveHandshake()
	}

	n.setState(Running)

	return nil
}

// registerServices writes control.furl and registers the named services.
func (n *Node) registerServices() error {
	if _, err := n.registrar.RegisterControlService(NewControlServer(n)); err != nil {
		return err
	}

	for name, obj := range n.services {
		if _, err := n.registrar.RegisterNamedService(name, obj); err != nil {
			return err
		}
	}

	return nil
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	go n.Run()
}

// Run drives the maintenance and hotline timers until the node shuts down.
func (n *Node) Run() {
	go n.maintenanceTimer.Run(n.conf.HeartbeatTimeout)

	if n.files.HotlinePath != "" {
		go n.hotlineTimer.Run(n.conf.HotlineInterval)
	}

	for {
		select {
		case <-n.maintenanceTimer.tickCh:
			n.doMaintenance()
			n.resetTimer(n.maintenanceTimer, n.conf.HeartbeatTimeout)
		case <-n.hotlineTimer.tickCh:
			if !n.CheckHotline() {
				return
			}
			n.resetTimer(n.hotlineTimer, n.conf.HotlineInterval)
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) resetTimer(timer *ControlTimer, d time.Duration) {
	select {
	case timer.resetCh <- d:
	case <-n.shutdownCh:
	}
}

// doMaintenance reconnects to the introducer and the vdrive if needed, and
// probes known peers.
func (n *Node) doMaintenance() {
	if n.getState() == Shutdown {
		return
	}

	if !n.introducer.IsConnectedToIntroducer() {
		n.goFunc(n.connectIntroducer)
	}

	if n.files.VDriveFURL != "" && !n.ConnectedToVDrive() {
		n.startVDriveHandshake()
	}

	n.goFunc(func() {
		ctx, cancel := n.shutdownContext()
		defer cancel()
		n.introducer.CheckPeers(ctx)
	})

	n.logStats()
}

func (n *Node) connectIntroducer() {
	ctx, cancel := n.shutdownContext()
	defer cancel()

	if err := n.introducer.Connect(ctx); err != nil {
		n.logger.WithError(err).Warn("Cannot connect to introducer")
	}
}

// shutdownContext returns a context that is cancelled when the node shuts
// down.
func (n *Node) shutdownContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-n.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// startVDriveHandshake connects to the vdrive server and asks it for the
// public root, unless an attempt is already running.
func (n *Node) startVDriveHandshake() {
	n.vdriveLock.Lock()
	if n.vdriveConnecting {
		n.vdriveLock.Unlock()
		return
	}
	n.vdriveConnecting = true
	n.vdriveLock.Unlock()

	n.goFunc(func() {
		defer func() {
			n.vdriveLock.Lock()
			n.vdriveConnecting = false
			n.vdriveLock.Unlock()
		}()
		n.connectVDrive()
	})
}

func (n *Node) connectVDrive() {
	ctx, cancel := n.shutdownContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, n.conf.IntroducerTimeout)
	defer cancelTimeout()

	ref, err := n.tub.ConnectTo(ctx, n.files.VDriveFURL)
	if err != nil {
		n.logger.WithError(err).Warn("Cannot connect to vdrive server")
		return
	}

	var root string
	if err := ref.CallRemote(ctx, "get_public_root_furl", nil, &root); err != nil {
		n.logger.WithError(err).Warn("Cannot get public root from vdrive server")
		return
	}

	n.vdriveLock.Lock()
	n.vdrive = ref
	n.publicRootFURL = root
	n.vdriveLock.Unlock()

	path := filepath.Join(n.files.BaseDir, PublicRootFURLFile)
	if err := ioutil.WriteFile(path, []byte(root), 0644); err != nil {
		n.logger.WithError(err).Warn("Cannot cache public root")
	}

	n.logger.Info("Connected to vdrive server")
}

// Invoke implements tub.Referenceable. This is the surface peers see.
func (n *Node) Invoke(ctx context.Context, method string, args tub.Args) (interface{}, error) {
	switch method {
	case "get_versions":
		return Versions{
			Current: version.Version,
			Oldest:  version.OldestSupported,
		}, nil
	case "get_service":
		var name string
		if err := args.Decode(&name); err != nil {
			return nil, common.WrapGridErr(method, common.RemoteFailure, err)
		}
		return n.registrar.GetNamedService(name)
	default:
		return nil, common.NewGridErr(method, common.NotFound, "no such method")
	}
}

// GetPermutedPeers ranks the known peers for key.
func (n *Node) GetPermutedPeers(key []byte) []peers.RankedPeer {
	return n.introducer.Peers().Rank(key)
}

// GetAllPeerIDs returns the sorted IDs of the known peers.
func (n *Node) GetAllPeerIDs() []string {
	return n.introducer.KnownPeerIDs()
}

// GetKnownPeers returns the known peers sorted by ID.
func (n *Node) GetKnownPeers() []*peers.Peer {
	return n.introducer.KnownPeers()
}

// GetRemoteService asks peer peerID for its service called name and returns a
// handle on it.
func (n *Node) GetRemoteService(ctx context.Context, peerID string, name string) (tub.RemoteReference, error) {
	p, ok := n.introducer.Peer(peerID)
	if !ok {
		return nil, common.NewGridErr(peerID, common.NoConnection, "unknown peer")
	}

	var furl string
	if err := p.Handle.CallRemote(ctx, "get_service", name, &furl); err != nil {
		return nil, err
	}

	return n.tub.ConnectTo(ctx, furl)
}

// ConnectedToIntroducer ...
func (n *Node) ConnectedToIntroducer() bool {
	return n.introducer != nil && n.introducer.IsConnectedToIntroducer()
}

// ConnectedToVDrive reports whether the vdrive handshake completed.
func (n *Node) ConnectedToVDrive() bool {
	n.vdriveLock.RLock()
	defer n.vdriveLock.RUnlock()
	return n.vdrive != nil
}

// PublicRootFURL returns the public root obtained from the vdrive server.
func (n *Node) PublicRootFURL() (string, bool) {
	n.vdriveLock.RLock()
	defer n.vdriveLock.RUnlock()
	return n.publicRootFURL, n.publicRootFURL != ""
}

// MyFURL returns the FURL of the node object.
func (n *Node) MyFURL() string {
	if n.identity == nil {
		return ""
	}
	return n.identity.CurrentReference
}

// Identity ...
func (n *Node) Identity() *identity.NodeIdentity {
	return n.identity
}

// Registrar ...
func (n *Node) Registrar() *Registrar {
	return n.registrar
}

// TubID ...
func (n *Node) TubID() string {
	return n.tub.TubID()
}

// State ...
func (n *Node) State() State {
	return n.getState()
}

// Shutdown withdraws the node from the introducer and closes the tub. It is
// safe to call more than once.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		if n.introducer != nil {
			n.introducer.Close()
		}

		n.waitRoutines()

		n.maintenanceTimer.Shutdown()
		n.hotlineTimer.Shutdown()

		//the tub should only be closed once all concurrent operations are
		//finished
		n.tub.Close()
	})
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	numPeers := 0
	if n.introducer != nil {
		numPeers = n.introducer.Peers().Len()
	}

	publicRoot, _ := n.PublicRootFURL()

	s := map[string]string{
		"tub_id":                  n.tub.TubID(),
		"my_furl":                 n.MyFURL(),
		"num_peers":               strconv.Itoa(numPeers),
		"connected_to_introducer": strconv.FormatBool(n.ConnectedToIntroducer()),
		"connected_to_vdrive":     strconv.FormatBool(n.ConnectedToVDrive()),
		"public_root":             publicRoot,
		"services":                fmt.Sprint(n.registrar.ServiceNames()),
		"uptime":                  time.Since(n.start).Truncate(time.Second).String(),
		"state":                   n.getState().String(),
		"version":                 version.Version,
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"num_peers":               stats["num_peers"],
		"connected_to_introducer": stats["connected_to_introducer"],
		"connected_to_vdrive":     stats["connected_to_vdrive"],
		"uptime":                  stats["uptime"],
		"state":                   stats["state"],
	}).Debug("Stats")
}
