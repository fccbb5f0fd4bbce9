package introducer

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/common"
	"github.com/storagegrid/gridnode/src/peers"
	"github.com/storagegrid/gridnode/src/tub"
	"golang.org/x/sync/errgroup"
)

// eventQueueSize bounds the number of announcement events waiting to be
// processed.
const eventQueueSize = 256

// Dialer opens a WAMP session with the introducer.
type Dialer func(ctx context.Context, cfg client.Config) (*client.Client, error)

// NetDialer returns a Dialer that connects to the router at url, a ws:// or
// wss:// websocket URL. tlscfg may be nil.
func NetDialer(url string, tlscfg *tls.Config) Dialer {
	return func(ctx context.Context, cfg client.Config) (*client.Client, error) {
		cfg.TlsCfg = tlscfg
		return client.ConnectNet(ctx, url, cfg)
	}
}

// LocalDialer returns a Dialer that opens an in-process session with r.
func LocalDialer(r router.Router) Dialer {
	return func(ctx context.Context, cfg client.Config) (*client.Client, error) {
		return client.ConnectLocal(r, cfg)
	}
}

// Connector connects to the object designated by a FURL. *tub.Tub implements
// it.
type Connector interface {
	ConnectTo(ctx context.Context, furl string) (tub.RemoteReference, error)
}

type eventKind int

const (
	announced eventKind = iota
	departed
	dialed
)

type event struct {
	kind eventKind
	arg  string // FURL for announced and dialed, peer ID for departed

	// outcome of a connection attempt, for dialed
	handle tub.RemoteReference
	err    error
}

// Client publishes the node's FURL to the introducer and maintains the table
// of peers announced by the introducer.
type Client struct {
	state

	dial      Dialer
	config    client.Config
	ownFURL   string
	ownID     string
	connector Connector
	timeout   time.Duration
	logger    *logrus.Entry

	sessLock sync.Mutex
	session  *client.Client

	peerLock sync.RWMutex
	peers    *peers.PeerSet
	pending  map[string]string // announced but unreachable, peer ID => FURL

	eventCh    chan event
	dialing    map[string]string // connection attempts in flight, peer ID => FURL; owned by processEvents
	shutdownCh chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewClient creates a Client that announces ownFURL in the given realm and
// connects to announced peers through connector. Timeout bounds each call to
// the introducer and each connection attempt to a peer.
func NewClient(dial Dialer,
	realm string,
	ownFURL string,
	connector Connector,
	timeout time.Duration,
	logger *logrus.Entry,
) (*Client, error) {

	own, err := tub.ParseFURL(ownFURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		dial: dial,
		config: client.Config{
			Realm:           realm,
			ResponseTimeout: timeout,
			Logger:          logger,
		},
		ownFURL:    ownFURL,
		ownID:      own.TubID,
		connector:  connector,
		timeout:    timeout,
		logger:     logger,
		peers:      peers.NewPeerSet([]*peers.Peer{}),
		pending:    make(map[string]string),
		eventCh:    make(chan event, eventQueueSize),
		dialing:    make(map[string]string),
		shutdownCh: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.processEvents()

	return c, nil
}

// State returns the current state of the Client.
func (c *Client) State() State {
	return c.getState()
}

// Connect opens a session with the introducer, subscribes to announcements,
// publishes our FURL and loads the current announcements. It does nothing if
// the Client is already connected.
func (c *Client) Connect(ctx context.Context) error {
	if !c.transition(Disconnected, Connecting) {
		switch c.getState() {
		case Shutdown:
			return common.NewGridErr("introducer", common.NoConnection, "client closed")
		default:
			return nil
		}
	}

	sess, err := c.openSession(ctx)
	if err != nil {
		c.transition(Connecting, Disconnected)
		return common.WrapGridErr("introducer", common.NoConnection, err)
	}

	c.sessLock.Lock()
	c.session = sess
	c.sessLock.Unlock()

	if !c.transition(Connecting, Announced) {
		// closed while connecting
		sess.Close()
		return common.NewGridErr("introducer", common.NoConnection, "client closed")
	}

	c.wg.Add(1)
	go c.watchSession(sess)

	c.logger.WithField("peers", len(c.KnownPeerIDs())).Info("Connected to introducer")

	return nil
}

func (c *Client) openSession(ctx context.Context) (*client.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sess, err := c.dial(ctx, c.config)
	if err != nil {
		return nil, err
	}

	if err := sess.Subscribe(TopicAnnounce, c.announceHandler, nil); err != nil {
		sess.Close()
		return nil, err
	}

	if err := sess.Subscribe(TopicDepart, c.departHandler, nil); err != nil {
		sess.Close()
		return nil, err
	}

	if err := c.publish(ctx, sess); err != nil {
		sess.Close()
		return nil, err
	}

	result, err := sess.Call(ctx, ProcList, nil, nil, nil, nil)
	if err != nil {
		sess.Close()
		return nil, err
	}

	for _, arg := range result.Arguments {
		if furl, ok := wamp.AsString(arg); ok {
			c.enqueue(event{kind: announced, arg: furl})
		}
	}

	return sess, nil
}

func (c *Client) publish(ctx context.Context, sess *client.Client) error {
	_, err := sess.Call(ctx, ProcPublish, discloseMe(), wamp.List{c.ownFURL}, nil, nil)
	return err
}

// discloseMe asks the router to reveal our session to the introducer, which
// ties announcements to the session that made them.
func discloseMe() wamp.Dict {
	return wamp.Dict{"disclose_me": true}
}

// watchSession marks the Client disconnected when the session ends. Known
// peers are kept.
func (c *Client) watchSession(sess *client.Client) {
	defer c.wg.Done()

	select {
	case <-sess.Done():
		c.sessLock.Lock()
		if c.session == sess {
			c.session = nil
		}
		c.sessLock.Unlock()

		if c.transition(Announced, Disconnected) {
			c.logger.Warn("Lost connection to introducer")
		}
	case <-c.shutdownCh:
	}
}

func (c *Client) currentSession() *client.Client {
	c.sessLock.Lock()
	defer c.sessLock.Unlock()
	return c.session
}

// Announce publishes our FURL again. The introducer only broadcasts it if it
// changed.
func (c *Client) Announce(ctx context.Context) error {
	sess := c.currentSession()
	if sess == nil || c.getState() != Announced {
		return common.NewGridErr("introducer", common.NoConnection, "not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.publish(ctx, sess); err != nil {
		return common.WrapGridErr("introducer", common.RemoteFailure, err)
	}
	return nil
}

// IsConnectedToIntroducer reports whether the session with the introducer is
// live.
func (c *Client) IsConnectedToIntroducer() bool {
	if c.getState() != Announced {
		return false
	}
	sess := c.currentSession()
	return sess != nil && sess.Connected()
}

func (c *Client) announceHandler(ev *wamp.Event) {
	if len(ev.Arguments) == 0 {
		return
	}
	if furl, ok := wamp.AsString(ev.Arguments[0]); ok {
		c.enqueue(event{kind: announced, arg: furl})
	}
}

func (c *Client) departHandler(ev *wamp.Event) {
	if len(ev.Arguments) == 0 {
		return
	}
	if id, ok := wamp.AsString(ev.Arguments[0]); ok {
		c.enqueue(event{kind: departed, arg: id})
	}
}

func (c *Client) enqueue(ev event) {
	select {
	case c.eventCh <- ev:
	case <-c.shutdownCh:
	}
}

// processEvents applies announcement events one at a time, in arrival order.
// Connection attempts run in the background and report back as dialed events,
// so a slow peer does not hold up the queue.
func (c *Client) processEvents() {
	defer c.wg.Done()

	for {
		select {
		case ev := <-c.eventCh:
			switch ev.kind {
			case announced:
				c.handleAnnouncement(ev.arg)
			case departed:
				delete(c.dialing, ev.arg)
				c.OnPeerLost(ev.arg)
			case dialed:
				c.handleDialed(ev)
			}
		case <-c.shutdownCh:
			return
		}
	}
}

func (c *Client) handleAnnouncement(furl string) {
	f, err := tub.ParseFURL(furl)
	if err != nil {
		c.logger.WithError(err).Warn("Ignoring bad announcement")
		return
	}

	if f.TubID == c.ownID {
		return
	}

	if p, ok := c.Peer(f.TubID); ok && p.FURL == furl {
		return
	}
	if c.dialing[f.TubID] == furl {
		return
	}
	c.dialing[f.TubID] = furl

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		handle, err := c.connector.ConnectTo(ctx, furl)
		c.enqueue(event{kind: dialed, arg: furl, handle: handle, err: err})
	}()
}

// handleDialed applies the outcome of a connection attempt, unless the peer
// departed or was announced with another FURL in the meantime.
func (c *Client) handleDialed(ev event) {
	f, err := tub.ParseFURL(ev.arg)
	if err != nil || c.dialing[f.TubID] != ev.arg {
		return
	}
	delete(c.dialing, f.TubID)

	if ev.err != nil {
		c.logger.WithFields(logrus.Fields{
			"peer":  f.TubID,
			"error": ev.err,
		}).Warn("Cannot connect to announced peer")

		c.peerLock.Lock()
		c.pending[f.TubID] = ev.arg
		c.peerLock.Unlock()
		return
	}

	c.OnPeerAnnounced(f.TubID, ev.handle)
}

// OnPeerAnnounced records handle as the handle of peer id, replacing any
// previous one.
func (c *Client) OnPeerAnnounced(id string, handle tub.RemoteReference) {
	c.peerLock.Lock()
	c.peers = c.peers.WithNewPeer(peers.NewPeer(id, handle.FURL(), handle))
	delete(c.pending, id)
	c.peerLock.Unlock()

	c.logger.WithField("peer", id).Debug("Peer announced")
}

// OnPeerLost forgets peer id.
func (c *Client) OnPeerLost(id string) {
	c.peerLock.Lock()
	c.peers = c.peers.WithRemovedPeer(id)
	delete(c.pending, id)
	c.peerLock.Unlock()

	c.logger.WithField("peer", id).Debug("Peer lost")
}

// Peers returns a snapshot of the peer table.
func (c *Client) Peers() *peers.PeerSet {
	c.peerLock.RLock()
	defer c.peerLock.RUnlock()
	return c.peers
}

// KnownPeerIDs returns the sorted IDs of the known peers.
func (c *Client) KnownPeerIDs() []string {
	return c.Peers().IDs()
}

// KnownPeers returns the known peers, sorted by ID.
func (c *Client) KnownPeers() []*peers.Peer {
	return c.Peers().Peers
}

// Peer returns the peer with the given ID.
func (c *Client) Peer(id string) (*peers.Peer, bool) {
	p, ok := c.Peers().ByID[id]
	return p, ok
}

// CheckPeers pings every known peer concurrently and forgets those that do not
// answer. Announced peers that could not be reached are tried again.
func (c *Client) CheckPeers(ctx context.Context) {
	c.peerLock.Lock()
	retry := make([]string, 0, len(c.pending))
	for _, furl := range c.pending {
		retry = append(retry, furl)
	}
	c.peerLock.Unlock()

	for _, furl := range retry {
		c.enqueue(event{kind: announced, arg: furl})
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var g errgroup.Group
	for _, p := range c.KnownPeers() {
		p := p
		g.Go(func() error {
			if err := p.Handle.Ping(ctx); err != nil {
				c.logger.WithFields(logrus.Fields{
					"peer":  p.ID,
					"error": err,
				}).Info("Peer is unreachable")
				c.forgetIfUnchanged(p)
			}
			return nil
		})
	}
	g.Wait()
}

// forgetIfUnchanged removes p unless it was re-announced in the meantime.
func (c *Client) forgetIfUnchanged(p *peers.Peer) {
	c.peerLock.Lock()
	defer c.peerLock.Unlock()

	if cur, ok := c.peers.ByID[p.ID]; ok && cur == p {
		c.peers = c.peers.WithRemovedPeer(p.ID)
		c.pending[p.ID] = p.FURL
	}
}

// Close withdraws our announcement, closes the session and stops processing
// events. The Client cannot be reconnected.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(Shutdown)

		if sess := c.currentSession(); sess != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			if _, uerr := sess.Call(ctx, ProcUnpublish, discloseMe(), wamp.List{c.ownFURL}, nil, nil); uerr != nil {
				c.logger.WithError(uerr).Debug("Failed to unpublish")
			}
			cancel()
			err = sess.Close()
		}

		close(c.shutdownCh)
		c.wg.Wait()
	})
	return err
}
