package node

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/storagegrid/gridnode/src/common"
	"github.com/storagegrid/gridnode/src/crypto/keys"
	"github.com/storagegrid/gridnode/src/introducer"
	"github.com/storagegrid/gridnode/src/net"
	"github.com/storagegrid/gridnode/src/peers"
	"github.com/storagegrid/gridnode/src/tub"
)

const testRealm = "grid"

type echoService struct{}

func (e *echoService) Invoke(ctx context.Context, method string, args tub.Args) (interface{}, error) {
	var s string
	if err := args.Decode(&s); err != nil {
		return nil, err
	}
	return s, nil
}

type vdriveServer struct {
	root string
}

func (v *vdriveServer) Invoke(ctx context.Context, method string, args tub.Args) (interface{}, error) {
	if method == "get_public_root_furl" {
		return v.root, nil
	}
	return nil, common.NewGridErr(method, common.NotFound, "no such method")
}

type testNode struct {
	node  *Node
	key   *ecdsa.PrivateKey
	addr  string
	trans *net.InmemTransport
	dir   string
}

func newTestServer(t *testing.T) *introducer.Server {
	server, err := introducer.NewServer("127.0.0.1:0", testRealm, introducer.NewInmemStore(), 0, "", "",
		common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	return server
}

func newTestDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "gridnode-node")
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, IntroducerFURLFile), []byte("ws://introducer/\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// newTestNode builds an uninitialised node. key and addr may be reused to
// restart a node.
func newTestNode(t *testing.T,
	dir string,
	key *ecdsa.PrivateKey,
	addr string,
	dialer introducer.Dialer,
	services map[string]tub.Referenceable,
) *testNode {

	files, err := ReadFiles(dir)
	if err != nil {
		t.Fatal(err)
	}

	addr, trans := net.NewInmemTransport(addr)
	conf := TestConfig(t)
	tb := tub.NewTub(key, trans, time.Second, conf.Logger)
	go tb.Serve()

	return &testNode{
		node:  NewNode(conf, files, tb, dialer, services),
		key:   key,
		addr:  addr,
		trans: trans,
		dir:   dir,
	}
}

func connectAll(nodes ...*testNode) {
	for _, a := range nodes {
		for _, b := range nodes {
			if a != b {
				a.trans.Connect(b.addr, b.trans)
			}
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func initTestNodes(t *testing.T, server *introducer.Server, n int, services map[string]tub.Referenceable) []*testNode {
	nodes := make([]*testNode, n)
	for i := range nodes {
		nodes[i] = newTestNode(t, newTestDir(t), newTestKey(t), "",
			introducer.LocalDialer(server.Router()), services)
	}
	connectAll(nodes...)
	for _, tn := range nodes {
		if err := tn.node.Init(); err != nil {
			t.Fatal(err)
		}
	}
	return nodes
}

func shutdownTestNodes(nodes []*testNode) {
	for _, tn := range nodes {
		tn.node.Shutdown()
		os.RemoveAll(tn.dir)
	}
}

func TestReadFilesMissingIntroducer(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridnode-node")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	if _, err := ReadFiles(dir); !common.Is(err, common.ConfigMissing) {
		t.Fatalf("missing introducer.furl should be ConfigMissing, got %v", err)
	}

	if err := ioutil.WriteFile(filepath.Join(dir, IntroducerFURLFile), []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFiles(dir); !common.Is(err, common.ConfigMissing) {
		t.Fatalf("empty introducer.furl should be ConfigMissing, got %v", err)
	}
}

func TestReadFilesOptional(t *testing.T) {
	dir := newTestDir(t)
	defer os.RemoveAll(dir)

	files, err := ReadFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if files.IntroducerFURL != "ws://introducer/" {
		t.Fatalf("introducer.furl should be trimmed, got %q", files.IntroducerFURL)
	}
	if files.VDriveFURL != "" || files.HotlinePath != "" {
		t.Fatalf("optional files should be unset")
	}

	ioutil.WriteFile(filepath.Join(dir, VDriveFURLFile), []byte("pb://vdrive\n"), 0644)
	ioutil.WriteFile(filepath.Join(dir, HotlineFile), []byte(""), 0644)

	files, err = ReadFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if files.VDriveFURL != "pb://vdrive" {
		t.Fatalf("vdrive.furl should be read, got %q", files.VDriveFURL)
	}
	if files.HotlinePath != filepath.Join(dir, HotlineFile) {
		t.Fatalf("hotline path should be set, got %q", files.HotlinePath)
	}
}

func TestControlFile(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	nodes := initTestNodes(t, server, 1, nil)
	defer shutdownTestNodes(nodes)
	tn := nodes[0]

	path := filepath.Join(tn.dir, ControlFURLFile)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("control.furl should be owner-only, got %o", info.Mode().Perm())
	}

	content, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(content)
	if !strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\n\n") {
		t.Fatalf("control.furl should end with a single newline: %q", s)
	}
	if _, err := tub.ParseFURL(strings.TrimSuffix(s, "\n")); err != nil {
		t.Fatalf("control.furl should hold a valid FURL: %v", err)
	}
	if strings.TrimSuffix(s, "\n") != tn.node.Registrar().ControlFURL() {
		t.Fatalf("control.furl should hold the control service FURL")
	}
}

func TestControlFileReplaced(t *testing.T) {
	dir := newTestDir(t)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, ControlFURLFile)
	if err := ioutil.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	_, trans := net.NewInmemTransport("")
	tb := tub.NewTub(newTestKey(t), trans, time.Second, common.NewTestEntry(t, common.TestLogLevel))
	defer tb.Close()

	r := NewRegistrar(tb, dir, common.NewTestEntry(t, common.TestLogLevel))
	furl, err := r.RegisterControlService(&echoService{})
	if err != nil {
		t.Fatal(err)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Fatalf("replaced control.furl should be owner-only, got %o", info.Mode().Perm())
	}
	content, _ := ioutil.ReadFile(path)
	if string(content) != furl+"\n" {
		t.Fatalf("control.furl should be rewritten, got %q", content)
	}
}

func TestInitFailureLeavesNoTrace(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	dir := newTestDir(t)
	defer os.RemoveAll(dir)

	// a non-empty directory in place of control.furl cannot be replaced
	blocker := filepath.Join(dir, ControlFURLFile)
	if err := os.MkdirAll(filepath.Join(blocker, "keep"), 0700); err != nil {
		t.Fatal(err)
	}

	tn := newTestNode(t, dir, newTestKey(t), "", introducer.LocalDialer(server.Router()), nil)

	err := tn.node.Init()
	if !common.Is(err, common.PersistenceFailure) {
		t.Fatalf("Init should fail with PersistenceFailure, got %v", err)
	}

	if tn.node.getState() != Shutdown {
		t.Fatalf("failed node should be Shutdown, not %s", tn.node.getState())
	}
	if tn.node.introducer.State() != introducer.Shutdown {
		t.Fatalf("failed node should close its introducer client")
	}

	time.Sleep(100 * time.Millisecond)

	sess, err := client.ConnectLocal(server.Router(), client.Config{Realm: testRealm})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	res, err := sess.Call(context.Background(), introducer.ProcList, nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Arguments) != 0 {
		t.Fatalf("a node that failed to start should not be announced, got %v", res.Arguments)
	}
}

func TestRegistrarAllowList(t *testing.T) {
	dir := newTestDir(t)
	defer os.RemoveAll(dir)

	_, trans := net.NewInmemTransport("")
	tb := tub.NewTub(newTestKey(t), trans, time.Second, common.NewTestEntry(t, common.TestLogLevel))
	defer tb.Close()

	r := NewRegistrar(tb, dir, common.NewTestEntry(t, common.TestLogLevel))

	if _, err := r.GetNamedService("storageserver"); !common.Is(err, common.NotFound) {
		t.Fatalf("unregistered allowed service should be NotFound, got %v", err)
	}

	if _, err := r.RegisterNamedService("webish", &echoService{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetNamedService("webish"); !common.Is(err, common.PermissionDenied) {
		t.Fatalf("service outside the allow-list should be PermissionDenied, got %v", err)
	}

	furl, err := r.RegisterNamedService("storageserver", &echoService{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.GetNamedService("storageserver")
	if err != nil {
		t.Fatal(err)
	}
	if got != furl {
		t.Fatalf("GetNamedService should return %s, not %s", furl, got)
	}

	if !reflect.DeepEqual(r.ServiceNames(), []string{"storageserver", "webish"}) {
		t.Fatalf("bad service names %v", r.ServiceNames())
	}
}

func TestDiscoveryAndRanking(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	nodes := initTestNodes(t, server, 3, nil)
	defer shutdownTestNodes(nodes)

	for _, tn := range nodes {
		tn := tn
		waitFor(t, "discovery", func() bool {
			return len(tn.node.GetAllPeerIDs()) == 2
		})
		if !tn.node.ConnectedToIntroducer() {
			t.Fatalf("node should be connected to the introducer")
		}
	}

	a := nodes[0].node
	key := []byte("storage index")

	expected := peers.Rank(key, []*peers.Peer{
		peers.NewPeer(nodes[1].node.TubID(), "", nil),
		peers.NewPeer(nodes[2].node.TubID(), "", nil),
	})

	ranked := a.GetPermutedPeers(key)
	if len(ranked) != 2 {
		t.Fatalf("ranking should contain 2 peers, not %d", len(ranked))
	}
	for i := range ranked {
		if ranked[i].ID != expected[i].ID || ranked[i].RankKey != expected[i].RankKey {
			t.Fatalf("ranking mismatch at %d", i)
		}
		if ranked[i].Handle == nil {
			t.Fatalf("ranked peers should carry a handle")
		}
	}
}

func TestRemoteSurface(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	services := map[string]tub.Referenceable{
		"storageserver": &echoService{},
		"webish":        &echoService{},
	}

	nodes := initTestNodes(t, server, 2, services)
	defer shutdownTestNodes(nodes)

	a, b := nodes[0].node, nodes[1].node
	waitFor(t, "discovery", func() bool {
		return len(b.GetAllPeerIDs()) == 1
	})

	ctx := context.Background()

	p, _ := b.introducer.Peer(a.TubID())
	var versions Versions
	if err := p.Handle.CallRemote(ctx, "get_versions", nil, &versions); err != nil {
		t.Fatal(err)
	}
	if versions.Current == "" || versions.Oldest == "" {
		t.Fatalf("get_versions should return both versions, got %+v", versions)
	}

	storage, err := b.GetRemoteService(ctx, a.TubID(), "storageserver")
	if err != nil {
		t.Fatal(err)
	}
	var out string
	if err := storage.CallRemote(ctx, "echo", "share", &out); err != nil {
		t.Fatal(err)
	}
	if out != "share" {
		t.Fatalf("storage service should echo, got %s", out)
	}

	if _, err := b.GetRemoteService(ctx, a.TubID(), "webish"); !common.Is(err, common.PermissionDenied) {
		t.Fatalf("service outside the allow-list should be PermissionDenied, got %v", err)
	}

	if _, err := b.GetRemoteService(ctx, "unknownpeer", "storageserver"); !common.Is(err, common.NoConnection) {
		t.Fatalf("unknown peer should be NoConnection, got %v", err)
	}

	if err := p.Handle.CallRemote(ctx, "frobnicate", nil, nil); !common.Is(err, common.NotFound) {
		t.Fatalf("unknown method should be NotFound, got %v", err)
	}
}

func TestRestartKeepsFURL(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	dir := newTestDir(t)
	defer os.RemoveAll(dir)
	key := newTestKey(t)
	dialer := introducer.LocalDialer(server.Router())

	first := newTestNode(t, dir, key, "node-a", dialer, nil)
	if err := first.node.Init(); err != nil {
		t.Fatal(err)
	}
	furl := first.node.MyFURL()
	first.node.Shutdown()

	second := newTestNode(t, dir, key, "node-a", dialer, nil)
	if err := second.node.Init(); err != nil {
		t.Fatal(err)
	}
	defer second.node.Shutdown()

	if second.node.MyFURL() != furl {
		t.Fatalf("restart should keep the FURL:\n%s\n%s", furl, second.node.MyFURL())
	}
	if second.node.Identity().LogicalName == "" {
		t.Fatalf("restart should recover the logical name")
	}
}

func TestIntroducerRetry(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	var up int32
	local := introducer.LocalDialer(server.Router())
	dialer := func(ctx context.Context, cfg client.Config) (*client.Client, error) {
		if atomic.LoadInt32(&up) == 0 {
			return nil, errors.New("introducer down")
		}
		return local(ctx, cfg)
	}

	tn := newTestNode(t, newTestDir(t), newTestKey(t), "", dialer, nil)
	defer os.RemoveAll(tn.dir)

	if err := tn.node.Init(); err != nil {
		t.Fatalf("Init should not fail when the introducer is down: %v", err)
	}
	defer tn.node.Shutdown()

	tn.node.RunAsync()

	time.Sleep(100 * time.Millisecond)
	if tn.node.ConnectedToIntroducer() {
		t.Fatalf("node should not be connected yet")
	}

	atomic.StoreInt32(&up, 1)

	waitFor(t, "maintenance to reconnect", tn.node.ConnectedToIntroducer)
}

func TestVDriveHandshake(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	_, vtrans := net.NewInmemTransport("vdrive")
	vtub := tub.NewTub(newTestKey(t), vtrans, time.Second, common.NewTestEntry(t, common.TestLogLevel))
	go vtub.Serve()
	defer vtub.Close()

	root := "pb://abcdefghijklmnopqrstuvwxyz234567@host:1/root"
	vfurl, err := vtub.RegisterReference(&vdriveServer{root: root}, "")
	if err != nil {
		t.Fatal(err)
	}

	dir := newTestDir(t)
	defer os.RemoveAll(dir)
	ioutil.WriteFile(filepath.Join(dir, VDriveFURLFile), []byte(vfurl), 0644)

	tn := newTestNode(t, dir, newTestKey(t), "", introducer.LocalDialer(server.Router()), nil)
	tn.trans.Connect("vdrive", vtrans)

	if err := tn.node.Init(); err != nil {
		t.Fatal(err)
	}
	defer tn.node.Shutdown()

	waitFor(t, "vdrive handshake", tn.node.ConnectedToVDrive)

	got, ok := tn.node.PublicRootFURL()
	if !ok || got != root {
		t.Fatalf("public root should be %s, got %s", root, got)
	}

	cached, err := ioutil.ReadFile(filepath.Join(dir, PublicRootFURLFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(cached) != root {
		t.Fatalf("public_root.furl should hold the public root, got %q", cached)
	}
}

func TestVDriveUnreachable(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	dir := newTestDir(t)
	defer os.RemoveAll(dir)
	ioutil.WriteFile(filepath.Join(dir, VDriveFURLFile),
		[]byte("pb://abcdefghijklmnopqrstuvwxyz234567@nowhere/vdrive"), 0644)

	tn := newTestNode(t, dir, newTestKey(t), "", introducer.LocalDialer(server.Router()), nil)
	if err := tn.node.Init(); err != nil {
		t.Fatalf("Init should not fail when the vdrive is unreachable: %v", err)
	}
	defer tn.node.Shutdown()

	time.Sleep(100 * time.Millisecond)

	if tn.node.ConnectedToVDrive() {
		t.Fatalf("node should not be connected to an unreachable vdrive")
	}
	if _, ok := tn.node.PublicRootFURL(); ok {
		t.Fatalf("public root should be unknown")
	}
}

func TestHotline(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	dir := newTestDir(t)
	defer os.RemoveAll(dir)

	hotline := filepath.Join(dir, HotlineFile)
	if err := ioutil.WriteFile(hotline, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tn := newTestNode(t, dir, newTestKey(t), "", introducer.LocalDialer(server.Router()), nil)
	if err := tn.node.Init(); err != nil {
		t.Fatal(err)
	}
	defer tn.node.Shutdown()

	tn.node.RunAsync()

	// a fresh hotline keeps the node alive
	time.Sleep(100 * time.Millisecond)
	if tn.node.State() != Running {
		t.Fatalf("node should still be running, state is %s", tn.node.State())
	}

	stale := time.Now().Add(-time.Minute)
	if err := os.Chtimes(hotline, stale, stale); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "hotline shutdown", func() bool {
		return tn.node.State() == Shutdown
	})
}

func TestHotlineRemoved(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	dir := newTestDir(t)
	defer os.RemoveAll(dir)

	hotline := filepath.Join(dir, HotlineFile)
	ioutil.WriteFile(hotline, nil, 0644)

	tn := newTestNode(t, dir, newTestKey(t), "", introducer.LocalDialer(server.Router()), nil)
	if err := tn.node.Init(); err != nil {
		t.Fatal(err)
	}
	defer tn.node.Shutdown()

	os.Remove(hotline)

	if tn.node.CheckHotline() {
		t.Fatalf("CheckHotline should report a removed hotline")
	}
	if tn.node.State() != Shutdown {
		t.Fatalf("node should be shut down, state is %s", tn.node.State())
	}
}

func TestControlServer(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	nodes := initTestNodes(t, server, 2, nil)
	defer shutdownTestNodes(nodes)

	a := nodes[0].node
	ctl, err := a.tub.ConnectTo(context.Background(), a.Registrar().ControlFURL())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := ctl.CallRemote(ctx, "wait_for_client_connections", 1, nil); err != nil {
		t.Fatal(err)
	}

	var ids []string
	if err := ctl.CallRemote(ctx, "get_peer_ids", nil, &ids); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{nodes[1].node.TubID()}) {
		t.Fatalf("get_peer_ids should return the other node, got %v", ids)
	}

	var mem MemoryUsage
	if err := ctl.CallRemote(ctx, "get_memory_usage", nil, &mem); err != nil {
		t.Fatal(err)
	}
	if mem.Sys == 0 || mem.Goroutines == 0 {
		t.Fatalf("memory usage should be filled, got %+v", mem)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelShort()
	if err := ctl.CallRemote(short, "wait_for_client_connections", 5, nil); !common.Is(err, common.NoConnection) {
		t.Fatalf("waiting for too many peers should time out, got %v", err)
	}
}

func TestGetStats(t *testing.T) {
	server := newTestServer(t)
	defer server.Shutdown()

	nodes := initTestNodes(t, server, 1, nil)
	defer shutdownTestNodes(nodes)

	stats := nodes[0].node.GetStats()
	if stats["my_furl"] != nodes[0].node.MyFURL() {
		t.Fatalf("stats should report the node FURL")
	}
	if stats["state"] != "Running" {
		t.Fatalf("stats should report the Running state, got %s", stats["state"])
	}
}
