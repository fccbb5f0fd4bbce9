package service

import (
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/node"
)

// PeerInfo is the JSON form of a known peer.
type PeerInfo struct {
	ID   string `json:"id"`
	FURL string `json:"furl"`
}

// RankedPeerInfo is the JSON form of a ranked peer.
type RankedPeerInfo struct {
	ID      string `json:"id"`
	RankKey string `json:"rank_key"`
}

// Service exposes the status of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the Service's own ServeMux,
// so that several nodes can run in the same process.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering gridnode API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.HandleFunc("/permuted/", s.makeHandler(s.GetPermutedPeers))
	s.mux.HandleFunc("/services", s.makeHandler(s.GetServices))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the http.Handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve listens on the bind address and serves the API. This is a blocking
// call; it returns when Close is called.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving gridnode API")

	l, err := net.Listen("tcp", s.bindAddress)
	if err != nil {
		s.logger.Error(err)
		return
	}

	s.Lock()
	s.server = &http.Server{Handler: s.mux}
	s.Unlock()

	if err := s.server.Serve(l); err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Close stops the HTTP server if it is running.
func (s *Service) Close() error {
	s.Lock()
	defer s.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetPeers returns the known peers sorted by ID.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	known := s.node.GetKnownPeers()

	res := make([]PeerInfo, 0, len(known))
	for _, p := range known {
		res = append(res, PeerInfo{ID: p.ID, FURL: p.FURL})
	}

	writeJSON(w, res)
}

// GetPermutedPeers ranks the known peers for the hex-encoded key that follows
// /permuted/ in the path.
func (s *Service) GetPermutedPeers(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimPrefix(r.URL.Path, "/permuted/")

	key, err := hex.DecodeString(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing key parameter %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	ranked := s.node.GetPermutedPeers(key)

	res := make([]RankedPeerInfo, 0, len(ranked))
	for _, rp := range ranked {
		res = append(res, RankedPeerInfo{
			ID:      rp.ID,
			RankKey: hex.EncodeToString(rp.RankKey[:]),
		})
	}

	writeJSON(w, res)
}

// GetServices returns the names of the registered named services.
func (s *Service) GetServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Registrar().ServiceNames())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
