package tub

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/storagegrid/gridnode/src/common"
	"github.com/storagegrid/gridnode/src/crypto/keys"
	"github.com/storagegrid/gridnode/src/net"
)

type echoObject struct{}

func (e *echoObject) Invoke(ctx context.Context, method string, args Args) (interface{}, error) {
	switch method {
	case "echo":
		var s string
		if err := args.Decode(&s); err != nil {
			return nil, err
		}
		return s, nil
	case "deny":
		return nil, common.NewGridErr("secret", common.PermissionDenied, "not for you")
	case "explode":
		return nil, errors.New("boom")
	case "block":
		<-ctx.Done()
		return nil, ctx.Err()
	default:
		return nil, common.NewGridErr(method, common.NotFound, "no such method")
	}
}

func newTestTub(t *testing.T) (*Tub, *net.InmemTransport) {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	_, trans := net.NewInmemTransport("")
	tb := NewTub(key, trans, time.Second, common.NewTestEntry(t, common.TestLogLevel))
	go tb.Serve()
	return tb, trans
}

func connectTubs(trans1, trans2 *net.InmemTransport) {
	trans1.Connect(trans2.LocalAddr(), trans2)
	trans2.Connect(trans1.LocalAddr(), trans1)
}

func TestFURLRoundTrip(t *testing.T) {
	furl := "pb://abcdefghijklmnopqrstuvwxyz234567@10.0.0.1:4000,example.org:4000/" + NewSwissnum()

	f, err := ParseFURL(furl)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.Hints) != 2 || f.Hints[0] != "10.0.0.1:4000" || f.Hints[1] != "example.org:4000" {
		t.Fatalf("bad hints: %v", f.Hints)
	}

	if f.String() != furl {
		t.Fatalf("String() should give back %s, not %s", furl, f.String())
	}

	if len(f.Name) != 32 {
		t.Fatalf("swissnum should have 32 characters, not %d", len(f.Name))
	}
}

func TestParseFURLErrors(t *testing.T) {
	bad := []string{
		"",
		"http://abcdefghijklmnopqrstuvwxyz234567@host:1/name",
		"pb://abcdefghijklmnopqrstuvwxyz234567@host:1",
		"pb://abcdefghijklmnopqrstuvwxyz234567@host:1/",
		"pb://abcdefghijklmnopqrstuvwxyz234567/name",
		"pb://abcdefghijklmnopqrstuvwxyz234567@/name",
		"pb://NOTATUBID@host:1/name",
	}

	for _, s := range bad {
		if _, err := ParseFURL(s); err == nil {
			t.Fatalf("ParseFURL(%q) should fail", s)
		}
	}
}

func TestRegisterReference(t *testing.T) {
	tb, trans := newTestTub(t)
	defer tb.Close()

	furl, err := tb.RegisterReference(&echoObject{}, "")
	if err != nil {
		t.Fatal(err)
	}

	f, err := ParseFURL(furl)
	if err != nil {
		t.Fatal(err)
	}
	if f.TubID != tb.TubID() {
		t.Fatalf("furl tub ID should be %s, not %s", tb.TubID(), f.TubID)
	}
	if f.Hints[0] != trans.AdvertiseAddr() {
		t.Fatalf("furl hint should be %s, not %s", trans.AdvertiseAddr(), f.Hints[0])
	}

	furl2, err := tb.RegisterReference(&echoObject{}, f.Name)
	if err != nil {
		t.Fatal(err)
	}
	if furl2 != furl {
		t.Fatalf("re-registering under the same name should give the same furl")
	}

	if _, err := tb.RegisterReference(&echoObject{}, "bad/name"); err == nil {
		t.Fatalf("names with slashes should be rejected")
	}
}

func TestLocalReference(t *testing.T) {
	tb, _ := newTestTub(t)
	defer tb.Close()

	furl, err := tb.RegisterReference(&echoObject{}, "")
	if err != nil {
		t.Fatal(err)
	}

	ref, err := tb.ConnectTo(context.Background(), furl)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := ref.(*localReference); !ok {
		t.Fatalf("reference to own tub should be local, not %T", ref)
	}

	var out string
	if err := ref.CallRemote(context.Background(), "echo", "hello", &out); err != nil {
		t.Fatal(err)
	}
	if out != "hello" {
		t.Fatalf("echo should return hello, not %s", out)
	}
}

func TestRemoteReference(t *testing.T) {
	tb1, trans1 := newTestTub(t)
	defer tb1.Close()
	tb2, trans2 := newTestTub(t)
	defer tb2.Close()
	connectTubs(trans1, trans2)

	furl, err := tb1.RegisterReference(&echoObject{}, "")
	if err != nil {
		t.Fatal(err)
	}

	ref, err := tb2.ConnectTo(context.Background(), furl)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := ref.(*remoteReference); !ok {
		t.Fatalf("reference to other tub should be remote, not %T", ref)
	}
	if ref.TubID() != tb1.TubID() {
		t.Fatalf("reference tub ID should be %s, not %s", tb1.TubID(), ref.TubID())
	}

	var out string
	if err := ref.CallRemote(context.Background(), "echo", "hello", &out); err != nil {
		t.Fatal(err)
	}
	if out != "hello" {
		t.Fatalf("echo should return hello, not %s", out)
	}
}

func TestErrorsCrossTheWire(t *testing.T) {
	tb1, trans1 := newTestTub(t)
	defer tb1.Close()
	tb2, trans2 := newTestTub(t)
	defer tb2.Close()
	connectTubs(trans1, trans2)

	furl, err := tb1.RegisterReference(&echoObject{}, "")
	if err != nil {
		t.Fatal(err)
	}

	local, err := tb1.GetReference(furl)
	if err != nil {
		t.Fatal(err)
	}
	remote, err := tb2.GetReference(furl)
	if err != nil {
		t.Fatal(err)
	}

	for _, ref := range []RemoteReference{local, remote} {
		err := ref.CallRemote(context.Background(), "deny", nil, nil)
		if !common.Is(err, common.PermissionDenied) {
			t.Fatalf("%T: deny should fail with PermissionDenied, got %v", ref, err)
		}
		if err.Error() != "secret, Permission Denied, not for you" {
			t.Fatalf("%T: unexpected error text: %v", ref, err)
		}

		err = ref.CallRemote(context.Background(), "explode", nil, nil)
		if !common.Is(err, common.RemoteFailure) {
			t.Fatalf("%T: explode should fail with RemoteFailure, got %v", ref, err)
		}
		if !strings.Contains(err.Error(), "boom") {
			t.Fatalf("%T: error should carry the original message: %v", ref, err)
		}

		err = ref.CallRemote(context.Background(), "nope", nil, nil)
		if !common.Is(err, common.NotFound) {
			t.Fatalf("%T: unknown method should fail with NotFound, got %v", ref, err)
		}
	}
}

func TestConnectToMissingObject(t *testing.T) {
	tb1, trans1 := newTestTub(t)
	defer tb1.Close()
	tb2, trans2 := newTestTub(t)
	defer tb2.Close()
	connectTubs(trans1, trans2)

	furl := (&FURL{
		TubID: tb1.TubID(),
		Hints: tb1.Hints(),
		Name:  NewSwissnum(),
	}).String()

	if _, err := tb2.ConnectTo(context.Background(), furl); !common.Is(err, common.NotFound) {
		t.Fatalf("ConnectTo an unregistered name should fail with NotFound, got %v", err)
	}
	if _, err := tb1.ConnectTo(context.Background(), furl); !common.Is(err, common.NotFound) {
		t.Fatalf("local ConnectTo an unregistered name should fail with NotFound, got %v", err)
	}
}

func TestConnectToUnreachable(t *testing.T) {
	tb1, _ := newTestTub(t)
	defer tb1.Close()
	tb2, _ := newTestTub(t)
	defer tb2.Close()

	furl, err := tb1.RegisterReference(&echoObject{}, "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tb2.ConnectTo(context.Background(), furl); !common.Is(err, common.NoConnection) {
		t.Fatalf("ConnectTo an unreachable tub should fail with NoConnection, got %v", err)
	}
}

func TestCallContextCancelled(t *testing.T) {
	tb1, trans1 := newTestTub(t)
	defer tb1.Close()
	tb2, trans2 := newTestTub(t)
	defer tb2.Close()
	connectTubs(trans1, trans2)

	furl, err := tb1.RegisterReference(&echoObject{}, "")
	if err != nil {
		t.Fatal(err)
	}
	ref, err := tb2.GetReference(furl)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = ref.CallRemote(ctx, "block", nil, nil)
	if !common.Is(err, common.NoConnection) {
		t.Fatalf("cancelled call should fail with NoConnection, got %v", err)
	}
}

func TestClosedTub(t *testing.T) {
	tb, _ := newTestTub(t)
	tb.Close()

	if _, err := tb.RegisterReference(&echoObject{}, ""); err != ErrTubClosed {
		t.Fatalf("RegisterReference on a closed tub should fail with ErrTubClosed, got %v", err)
	}
}
