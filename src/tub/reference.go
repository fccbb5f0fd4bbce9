package tub

import (
	"context"

	"github.com/storagegrid/gridnode/src/common"
	"github.com/storagegrid/gridnode/src/net"
)

// Referenceable is implemented by objects that can be registered in a Tub.
// Errors returned by Invoke reach the caller with their common.ErrType
// intact; any other error is reported as common.RemoteFailure.
type Referenceable interface {
	Invoke(ctx context.Context, method string, args Args) (interface{}, error)
}

// Args gives a Referenceable access to the arguments of a call.
type Args interface {
	Decode(v interface{}) error
}

// RemoteReference is a handle on an object in some tub, possibly this one.
type RemoteReference interface {
	// CallRemote invokes method with args and decodes the result into reply,
	// which may be nil if the result is not needed.
	CallRemote(ctx context.Context, method string, args interface{}, reply interface{}) error

	// Ping checks that the object is reachable and still registered.
	Ping(ctx context.Context) error

	// FURL returns the reference string the handle was obtained from.
	FURL() string

	// TubID returns the ID of the tub hosting the object.
	TubID() string
}

type callArgs []byte

func (a callArgs) Decode(v interface{}) error {
	if len(a) == 0 {
		return nil
	}
	return net.Decode(a, v)
}

func encodeArgs(args interface{}) ([]byte, error) {
	if args == nil {
		return nil, nil
	}
	return net.Encode(args)
}

// readResponse turns a CallResponse back into an error or a decoded result.
func readResponse(resp *net.CallResponse, reply interface{}) error {
	if resp.Failed {
		return common.NewGridErr(resp.ErrSubject, common.ErrType(resp.ErrType), resp.ErrMsg)
	}
	if reply == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := net.Decode(resp.Result, reply); err != nil {
		return common.WrapGridErr("result", common.RemoteFailure, err)
	}
	return nil
}

// localReference points to an object in the local tub.
type localReference struct {
	tub  *Tub
	furl *FURL
}

func (r *localReference) CallRemote(ctx context.Context, method string, args interface{}, reply interface{}) error {
	argBytes, err := encodeArgs(args)
	if err != nil {
		return err
	}

	req := &net.CallRequest{
		TubID:  r.furl.TubID,
		Name:   r.furl.Name,
		Method: method,
		Args:   argBytes,
	}

	return readResponse(r.tub.handleCall(ctx, req), reply)
}

func (r *localReference) Ping(ctx context.Context) error {
	if _, ok := r.tub.lookup(r.furl.Name); !ok {
		return common.NewGridErr(r.furl.Name, common.NotFound, "no such object")
	}
	return nil
}

func (r *localReference) FURL() string {
	return r.furl.String()
}

func (r *localReference) TubID() string {
	return r.furl.TubID
}

// remoteReference points to an object in another tub. Hints are tried in the
// order they appear in the FURL until one of them answers.
type remoteReference struct {
	tub  *Tub
	furl *FURL
}

func (r *remoteReference) CallRemote(ctx context.Context, method string, args interface{}, reply interface{}) error {
	argBytes, err := encodeArgs(args)
	if err != nil {
		return err
	}

	req := &net.CallRequest{
		TubID:  r.furl.TubID,
		Name:   r.furl.Name,
		Method: method,
		Args:   argBytes,
	}

	var resp net.CallResponse
	err = r.withHints(ctx, func(hint string) error {
		return r.tub.trans.Call(hint, req, &resp)
	})
	if err != nil {
		return err
	}

	return readResponse(&resp, reply)
}

func (r *remoteReference) Ping(ctx context.Context) error {
	req := &net.PingRequest{
		TubID: r.furl.TubID,
		Name:  r.furl.Name,
	}

	var resp net.PingResponse
	err := r.withHints(ctx, func(hint string) error {
		return r.tub.trans.Ping(hint, req, &resp)
	})
	if err != nil {
		return err
	}

	if resp.TubID != r.furl.TubID {
		return common.NewGridErr(r.furl.TubID, common.NoConnection, "tub ID mismatch")
	}
	if !resp.Exists {
		return common.NewGridErr(r.furl.Name, common.NotFound, "no such object")
	}
	return nil
}

func (r *remoteReference) FURL() string {
	return r.furl.String()
}

func (r *remoteReference) TubID() string {
	return r.furl.TubID
}

// withHints runs rpc against each location hint in turn until one succeeds.
// The transport calls cannot be cancelled, so ctx only bounds how long the
// caller waits.
func (r *remoteReference) withHints(ctx context.Context, rpc func(hint string) error) error {
	errCh := make(chan error, 1)

	go func() {
		var lastErr error
		for _, hint := range r.furl.Hints {
			lastErr = rpc(hint)
			if lastErr == nil {
				errCh <- nil
				return
			}
			r.tub.logger.WithField("hint", hint).WithError(lastErr).Debug("location hint failed")
		}
		errCh <- lastErr
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return common.WrapGridErr(r.furl.TubID, common.NoConnection, err)
		}
		return nil
	case <-ctx.Done():
		return common.WrapGridErr(r.furl.TubID, common.NoConnection, ctx.Err())
	}
}
