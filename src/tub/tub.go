package tub

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/common"
	"github.com/storagegrid/gridnode/src/crypto/keys"
	"github.com/storagegrid/gridnode/src/net"
)

// ErrTubClosed is returned by operations on a Tub after Close.
var ErrTubClosed = errors.New("tub closed")

// Tub holds the objects a node exposes, and creates references to objects in
// other tubs.
type Tub struct {
	tubID   string
	trans   net.Transport
	timeout time.Duration
	logger  *logrus.Entry

	refLock sync.RWMutex
	refs    map[string]Referenceable

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewTub creates a Tub whose ID is derived from key. Objects registered in it
// are advertised at the transport's advertise address. Timeout bounds how long
// an incoming call may run; zero means no bound.
func NewTub(key *ecdsa.PrivateKey,
	trans net.Transport,
	timeout time.Duration,
	logger *logrus.Entry,
) *Tub {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	tubID := keys.TubID(&key.PublicKey)

	return &Tub{
		tubID:      tubID,
		trans:      trans,
		timeout:    timeout,
		logger:     logger.WithField("tub", tubID[:8]),
		refs:       make(map[string]Referenceable),
		shutdownCh: make(chan struct{}),
	}
}

// TubID returns the ID of the tub.
func (t *Tub) TubID() string {
	return t.tubID
}

// Hints returns the location hints written into the FURLs of this tub.
func (t *Tub) Hints() []string {
	return []string{t.trans.AdvertiseAddr()}
}

// RegisterReference registers obj under name and returns its FURL. An empty
// name mints a fresh swissnum, any other name is used verbatim so that a FURL
// handed out in a previous run keeps pointing at the same object.
func (t *Tub) RegisterReference(obj Referenceable, name string) (string, error) {
	if t.isShutdown() {
		return "", ErrTubClosed
	}

	if name == "" {
		name = NewSwissnum()
	} else if !validName(name) {
		return "", fmt.Errorf("invalid object name %q", name)
	}

	t.refLock.Lock()
	t.refs[name] = obj
	t.refLock.Unlock()

	furl := &FURL{
		TubID: t.tubID,
		Hints: t.Hints(),
		Name:  name,
	}

	t.logger.WithField("name", name[:min(len(name), 8)]).Debug("registered reference")

	return furl.String(), nil
}

// UnregisterReference removes the object registered under name.
func (t *Tub) UnregisterReference(name string) {
	t.refLock.Lock()
	defer t.refLock.Unlock()
	delete(t.refs, name)
}

func (t *Tub) lookup(name string) (Referenceable, bool) {
	t.refLock.RLock()
	defer t.refLock.RUnlock()
	obj, ok := t.refs[name]
	return obj, ok
}

// GetReference returns a handle on the object designated by furl. No network
// activity takes place; use ConnectTo to check that the object is reachable.
func (t *Tub) GetReference(furl string) (RemoteReference, error) {
	f, err := ParseFURL(furl)
	if err != nil {
		return nil, err
	}

	if f.TubID == t.tubID {
		return &localReference{tub: t, furl: f}, nil
	}

	return &remoteReference{tub: t, furl: f}, nil
}

// ConnectTo returns a handle on the object designated by furl after checking
// that it answers.
func (t *Tub) ConnectTo(ctx context.Context, furl string) (RemoteReference, error) {
	if t.isShutdown() {
		return nil, ErrTubClosed
	}

	ref, err := t.GetReference(furl)
	if err != nil {
		return nil, err
	}

	if err := ref.Ping(ctx); err != nil {
		return nil, err
	}

	return ref, nil
}

// Serve processes incoming RPCs until the tub is closed. Each RPC is handled
// in its own goroutine.
func (t *Tub) Serve() {
	consumer := t.trans.Consumer()
	for {
		select {
		case rpc := <-consumer:
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.processRPC(rpc)
			}()
		case <-t.shutdownCh:
			return
		}
	}
}

func (t *Tub) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.CallRequest:
		ctx, cancel := t.callContext()
		defer cancel()
		rpc.Respond(t.handleCall(ctx, cmd), nil)
	case *net.PingRequest:
		_, ok := t.lookup(cmd.Name)
		rpc.Respond(&net.PingResponse{
			TubID:  t.tubID,
			Exists: ok && cmd.TubID == t.tubID,
		}, nil)
	default:
		t.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

// callContext returns a context that is cancelled when the tub is closed or
// when the call timeout expires.
func (t *Tub) callContext() (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), t.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	go func() {
		select {
		case <-t.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleCall invokes the object targeted by req. It is shared by incoming
// network calls and calls through local references.
func (t *Tub) handleCall(ctx context.Context, req *net.CallRequest) *net.CallResponse {
	if req.TubID != t.tubID {
		return failedResponse(common.NewGridErr(req.TubID, common.NotFound, "unknown tub"))
	}

	obj, ok := t.lookup(req.Name)
	if !ok {
		return failedResponse(common.NewGridErr(req.Name, common.NotFound, "no such object"))
	}

	result, err := obj.Invoke(ctx, req.Method, callArgs(req.Args))
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"method": req.Method,
			"error":  err,
		}).Debug("call failed")
		return failedResponse(err)
	}

	var resultBytes []byte
	if result != nil {
		resultBytes, err = net.Encode(result)
		if err != nil {
			return failedResponse(common.WrapGridErr(req.Method, common.RemoteFailure, err))
		}
	}

	return &net.CallResponse{Result: resultBytes}
}

func failedResponse(err error) *net.CallResponse {
	var gridErr common.GridErr
	if !errors.As(err, &gridErr) {
		gridErr = common.NewGridErr("call", common.RemoteFailure, err.Error())
	}
	return &net.CallResponse{
		Failed:     true,
		ErrType:    uint32(gridErr.Type()),
		ErrSubject: gridErr.Subject(),
		ErrMsg:     gridErr.Message(),
	}
}

// Close stops serving and closes the transport. Registered objects are
// forgotten.
func (t *Tub) Close() error {
	var err error
	t.shutdownOnce.Do(func() {
		close(t.shutdownCh)
		t.wg.Wait()
		err = t.trans.Close()

		t.refLock.Lock()
		t.refs = make(map[string]Referenceable)
		t.refLock.Unlock()
	})
	return err
}

func (t *Tub) isShutdown() bool {
	select {
	case <-t.shutdownCh:
		return true
	default:
		return false
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
