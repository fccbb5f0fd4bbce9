package net

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/storagegrid/gridnode/src/common"
)

func newTCPTestTransport(t *testing.T) *NetworkTransport {
	trans, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	go trans.Listen()
	return trans
}

// answerPings answers every ping received by trans until it is closed.
func answerPings(trans *NetworkTransport, tubID string) {
	for {
		select {
		case rpc := <-trans.Consumer():
			rpc.Respond(&PingResponse{TubID: tubID, Exists: true}, nil)
		case <-trans.shutdownCh:
			return
		}
	}
}

func TestNetworkTransport_PoolReuse(t *testing.T) {
	server := newTCPTestTransport(t)
	defer server.Close()
	go answerPings(server, "tub")

	client := newTCPTestTransport(t)
	defer client.Close()

	target := server.AdvertiseAddr()
	for i := 0; i < 3; i++ {
		var resp PingResponse
		if err := client.Ping(target, &PingRequest{TubID: "tub", Name: "obj"}, &resp); err != nil {
			t.Fatal(err)
		}
		if !resp.Exists || resp.TubID != "tub" {
			t.Fatalf("bad ping response %#v", resp)
		}
	}

	if n := client.pool.idle(target); n != 1 {
		t.Fatalf("sequential requests should reuse one connection, %d idle", n)
	}

	client.Close()
	if n := client.pool.idle(target); n != 0 {
		t.Fatalf("Close should drop idle connections, %d idle", n)
	}

	var resp PingResponse
	if err := client.Ping(target, &PingRequest{}, &resp); err != ErrTransportShutdown {
		t.Fatalf("requests after Close should fail with ErrTransportShutdown, got %v", err)
	}
}

func TestNetworkTransport_RejectsBadHandshake(t *testing.T) {
	server := newTCPTestTransport(t)
	defer server.Close()

	conn, err := net.DialTimeout("tcp", server.AdvertiseAddr(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("garbage!")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("connection without handshake should be closed")
	}
}

func TestNetworkTransport_RemoteError(t *testing.T) {
	server := newTCPTestTransport(t)
	defer server.Close()

	go func() {
		rpc := <-server.Consumer()
		rpc.Respond(&CallResponse{}, io.ErrUnexpectedEOF)
	}()

	client := newTCPTestTransport(t)
	defer client.Close()

	var resp CallResponse
	err := client.Call(server.AdvertiseAddr(), &CallRequest{Method: "m"}, &resp)
	if err == nil || err.Error() != io.ErrUnexpectedEOF.Error() {
		t.Fatalf("transport error should be returned to the caller, got %v", err)
	}

	if n := client.pool.idle(server.AdvertiseAddr()); n != 1 {
		t.Fatalf("a completed exchange should return its connection to the pool")
	}
}
