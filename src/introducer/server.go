package introducer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/tub"
)

// Server is the introducer service. It runs a WAMP router over websockets and
// a local session that serves the introducer procedures.
type Server struct {
	address    string
	realm      string
	router     router.Router
	httpServer *http.Server
	session    *client.Client
	store      Store
	logger     *logrus.Entry

	// sessionLock serializes changes to the store with their broadcasts, so
	// that clients see announce and depart events in store order.
	sessionLock sync.Mutex
	sessions    map[wamp.ID]map[string]string // session => peer ID => FURL
	restored    map[string]bool               // loaded from the store, not yet republished
	expiry      *time.Timer

	shutdownLock sync.Mutex
	shutdown     bool
}

// NewServer instantiates a new Server which can be run at a specified address.
// If certFile and keyFile are both set, the websocket listener uses TLS.
//
// Announcements already in the store have no session to withdraw them. Those
// that are not published again within restoreGrace are withdrawn; zero keeps
// them until their peer unpublishes.
func NewServer(address string,
	realm string,
	store Store,
	restoreGrace time.Duration,
	certFile string,
	keyFile string,
	logger *logrus.Entry) (*Server, error) {

	// Create router instance.
	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			{
				URI:           wamp.URI(realm),
				AnonymousAuth: true,
				AllowDisclose: true,
			},
		},
	}

	nxr, err := router.NewRouter(routerConfig, logger)
	if err != nil {
		return nil, err
	}

	wss := router.NewWebsocketServer(nxr)

	httpServer := &http.Server{
		Handler: wss,
		Addr:    address,
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			nxr.Close()
			return nil, fmt.Errorf("error loading X509 key pair: %s", err)
		}
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	res := &Server{
		address:    address,
		realm:      realm,
		router:     nxr,
		httpServer: httpServer,
		store:      store,
		logger:     logger,
		sessions:   make(map[wamp.ID]map[string]string),
		restored:   make(map[string]bool),
	}

	existing, err := store.All()
	if err != nil {
		nxr.Close()
		return nil, err
	}
	for peerID := range existing {
		res.restored[peerID] = true
	}

	if err := res.startSession(); err != nil {
		nxr.Close()
		return nil, err
	}

	if restoreGrace > 0 && len(res.restored) > 0 {
		logger.WithFields(logrus.Fields{
			"announcements": len(res.restored),
			"grace":         restoreGrace,
		}).Info("Restored announcements from store")
		res.expiry = time.AfterFunc(restoreGrace, res.expireRestored)
	}

	return res, nil
}

// startSession opens the local session that serves the introducer procedures
// and watches for departing sessions.
func (s *Server) startSession() error {
	sess, err := client.ConnectLocal(s.router, client.Config{
		Realm:  s.realm,
		Logger: s.logger,
	})
	if err != nil {
		return err
	}

	procedures := map[string]client.InvocationHandler{
		ProcPublish:   s.publishHandler,
		ProcUnpublish: s.unpublishHandler,
		ProcList:      s.listHandler,
	}
	for proc, handler := range procedures {
		if err := sess.Register(proc, handler, nil); err != nil {
			sess.Close()
			return err
		}
	}

	if err := sess.Subscribe(metaSessionOnLeave, s.sessionLeftHandler, nil); err != nil {
		sess.Close()
		return err
	}

	s.session = sess
	return nil
}

// Run starts the WAMP websocket server
func (s *Server) Run() error {
	var err error
	if s.httpServer.TLSConfig != nil {
		// The certificates are already loaded in the TLSConfig
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Run")
		return err
	}
	return nil
}

// Serve is like Run but accepts connections on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	err := s.httpServer.Serve(l)
	if err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Serve")
		return err
	}
	return nil
}

// Shutdown stops the websocket server, and the wamp router. Announcements are
// kept in the store.
func (s *Server) Shutdown() {
	s.shutdownLock.Lock()
	if s.shutdown {
		s.shutdownLock.Unlock()
		return
	}
	s.shutdown = true
	s.shutdownLock.Unlock()

	if s.expiry != nil {
		s.expiry.Stop()
	}

	defer s.router.Close()

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Error("Shutting down http server")
	}

	s.session.Close()
}

// Addr returns the address of the server
func (s *Server) Addr() string {
	return s.address
}

// Router returns the WAMP router, to open local sessions.
func (s *Server) Router() router.Router {
	return s.router
}

func (s *Server) isShutdown() bool {
	s.shutdownLock.Lock()
	defer s.shutdownLock.Unlock()
	return s.shutdown
}

// publishHandler records the FURL given as first argument and broadcasts it if
// it changed. The result is a boolean telling whether it changed. The peer
// then belongs to the calling session, if the caller disclosed it.
func (s *Server) publishHandler(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	peerID, furl, errRes := readAnnouncement(inv)
	if errRes != nil {
		return *errRes
	}

	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()

	changed, err := s.store.Put(peerID, furl)
	if err != nil {
		s.logger.WithError(err).Error("Failed to store announcement")
		return errResult(ErrStore, err.Error())
	}
	delete(s.restored, peerID)

	if caller, ok := callerID(inv); ok {
		// a peer belongs to the session that published it last
		for _, announced := range s.sessions {
			delete(announced, peerID)
		}
		if s.sessions[caller] == nil {
			s.sessions[caller] = make(map[string]string)
		}
		s.sessions[caller][peerID] = furl
	}

	s.logger.WithFields(logrus.Fields{
		"peer":    peerID,
		"changed": changed,
	}).Debug("Publish")

	if changed {
		if err := s.session.Publish(TopicAnnounce, nil, wamp.List{furl}, nil); err != nil {
			s.logger.WithError(err).Error("Failed to broadcast announcement")
		}
	}

	return client.InvokeResult{Args: wamp.List{changed}}
}

// unpublishHandler withdraws the announcement of the FURL given as first
// argument. Only the session that published that exact FURL may withdraw it,
// so callers must disclose their session.
func (s *Server) unpublishHandler(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	peerID, furl, errRes := readAnnouncement(inv)
	if errRes != nil {
		return *errRes
	}

	caller, ok := callerID(inv)
	if !ok {
		return errResult(ErrNotOwner, "unpublish requires a disclosed caller")
	}

	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()

	if owned, ok := s.sessions[caller][peerID]; !ok || owned != furl {
		s.logger.WithFields(logrus.Fields{
			"peer":   peerID,
			"caller": caller,
		}).Warn("Rejected unpublish from a session that does not own the announcement")
		return errResult(ErrNotOwner, fmt.Sprintf("session %v did not publish %s", caller, furl))
	}
	delete(s.sessions[caller], peerID)

	deleted, err := s.withdraw(peerID)
	if err != nil {
		return errResult(ErrStore, err.Error())
	}

	return client.InvokeResult{Args: wamp.List{deleted}}
}

// listHandler returns every current announcement, sorted by peer ID.
func (s *Server) listHandler(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	all, err := s.store.All()
	if err != nil {
		return errResult(ErrStore, err.Error())
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	furls := make(wamp.List, 0, len(ids))
	for _, id := range ids {
		furls = append(furls, all[id])
	}

	return client.InvokeResult{Args: furls}
}

// sessionLeftHandler withdraws the announcements of a session that left the
// realm.
func (s *Server) sessionLeftHandler(event *wamp.Event) {
	if len(event.Arguments) == 0 || s.isShutdown() {
		return
	}

	sessID, ok := wamp.AsID(event.Arguments[0])
	if !ok {
		return
	}

	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()

	announced := s.sessions[sessID]
	delete(s.sessions, sessID)

	for peerID := range announced {
		s.logger.WithField("peer", peerID).Debug("Session left")
		if _, err := s.withdraw(peerID); err != nil {
			s.logger.WithError(err).Error("Failed to withdraw announcement")
		}
	}
}

// expireRestored withdraws the restored announcements that no session
// published again.
func (s *Server) expireRestored() {
	if s.isShutdown() {
		return
	}

	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()

	for peerID := range s.restored {
		s.logger.WithField("peer", peerID).Info("Expiring announcement restored from store")
		if _, err := s.withdraw(peerID); err != nil {
			s.logger.WithError(err).Error("Failed to withdraw announcement")
		}
	}
	s.restored = make(map[string]bool)
}

// withdraw deletes the announcement of peerID and broadcasts its departure.
// The caller holds sessionLock.
func (s *Server) withdraw(peerID string) (bool, error) {
	deleted, err := s.store.Delete(peerID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to delete announcement")
		return false, err
	}

	if deleted {
		if err := s.session.Publish(TopicDepart, nil, wamp.List{peerID}, nil); err != nil {
			s.logger.WithError(err).Error("Failed to broadcast departure")
		}
	}

	return deleted, nil
}

func readAnnouncement(inv *wamp.Invocation) (string, string, *client.InvokeResult) {
	if len(inv.Arguments) != 1 {
		res := errResult(ErrBadAnnouncement,
			fmt.Sprintf("Invocation should contain 1 argument, not %d", len(inv.Arguments)))
		return "", "", &res
	}

	furl, ok := wamp.AsString(inv.Arguments[0])
	if !ok {
		res := errResult(ErrBadAnnouncement, "Error reading invocation argument")
		return "", "", &res
	}

	f, err := tub.ParseFURL(furl)
	if err != nil {
		res := errResult(ErrBadAnnouncement, err.Error())
		return "", "", &res
	}

	return f.TubID, f.String(), nil
}

// callerID returns the session ID of the caller, which the router discloses
// when the caller asks for it.
func callerID(inv *wamp.Invocation) (wamp.ID, bool) {
	v, ok := inv.Details["caller"]
	if !ok {
		return 0, false
	}
	return wamp.AsID(v)
}

func errResult(uri string, msg string) client.InvokeResult {
	return client.InvokeResult{
		Err:  wamp.URI(uri),
		Args: wamp.List{msg},
	}
}
