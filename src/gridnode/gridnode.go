// Package gridnode assembles a client node of a storage grid from its
// configuration: key, transport, tub, node and HTTP service.
package gridnode

import (
	"crypto/ecdsa"
	"crypto/tls"
	"fmt"
	"io/ioutil"
	gonet "net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/storagegrid/gridnode/src/config"
	"github.com/storagegrid/gridnode/src/crypto/keys"
	"github.com/storagegrid/gridnode/src/introducer"
	"github.com/storagegrid/gridnode/src/net"
	"github.com/storagegrid/gridnode/src/node"
	"github.com/storagegrid/gridnode/src/service"
	"github.com/storagegrid/gridnode/src/tub"
)

// GridNode is a complete grid client node.
type GridNode struct {
	Config    *config.Config
	Files     *node.Files
	Node      *node.Node
	Transport *net.NetworkTransport
	Tub       *tub.Tub
	Service   *service.Service
}

// NewGridNode ...
func NewGridNode(c *config.Config) *GridNode {
	return &GridNode{
		Config: c,
	}
}

func (g *GridNode) initFiles() error {
	files, err := node.ReadFiles(g.Config.DataDir)
	if err != nil {
		return err
	}

	g.Files = files

	return nil
}

func (g *GridNode) initKey() error {
	if g.Config.Key != nil {
		return nil
	}

	simpleKeyfile := keys.NewSimpleKeyfile(g.Config.Keyfile())

	privKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		if !os.IsNotExist(err) {
			g.Config.Logger().WithError(err).Error("Cannot read private key from file")
			return err
		}

		privKey, err = Keygen(g.Config.DataDir)
		if err != nil {
			g.Config.Logger().WithError(err).Error("Cannot generate a new private key")
			return err
		}

		g.Config.Logger().WithField("tub_id", keys.TubID(&privKey.PublicKey)).Info("Created a new key")
	}

	g.Config.Key = privKey

	return nil
}

// initTransport binds the tub's TCP transport. When the configured port is 0
// and client.port remembers a port from a previous run, that port is tried
// first so that FURLs stay valid across restarts.
func (g *GridNode) initTransport() error {
	logger := g.Config.Logger()

	bindAddr := g.Config.BindAddr
	if remembered, ok := g.rememberedBindAddr(); ok {
		transport, err := g.newTransport(remembered)
		if err == nil {
			g.Transport = transport
			return g.rememberPort()
		}
		logger.WithError(err).WithField("addr", remembered).Warn("Cannot bind remembered port")
	}

	transport, err := g.newTransport(bindAddr)
	if err != nil {
		return err
	}

	g.Transport = transport

	return g.rememberPort()
}

func (g *GridNode) newTransport(bindAddr string) (*net.NetworkTransport, error) {
	return net.NewTCPTransport(
		bindAddr,
		g.Config.AdvertiseAddr,
		g.Config.MaxPool,
		g.Config.TCPTimeout,
		g.Config.Logger(),
	)
}

func (g *GridNode) rememberedBindAddr() (string, bool) {
	host, port, err := gonet.SplitHostPort(g.Config.BindAddr)
	if err != nil || port != "0" {
		return "", false
	}

	buf, err := ioutil.ReadFile(g.Config.PortFile())
	if err != nil {
		return "", false
	}

	p, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil || p <= 0 {
		return "", false
	}

	return gonet.JoinHostPort(host, strconv.Itoa(p)), true
}

func (g *GridNode) rememberPort() error {
	port := strconv.Itoa(g.Transport.Port())
	if err := ioutil.WriteFile(g.Config.PortFile(), []byte(port+"\n"), 0644); err != nil {
		g.Transport.Close()
		return err
	}
	return nil
}

func (g *GridNode) initTub() error {
	g.Tub = tub.NewTub(g.Config.Key, g.Transport, 0, g.Config.Logger())

	go g.Transport.Listen()
	go g.Tub.Serve()

	return nil
}

func (g *GridNode) dialer() introducer.Dialer {
	var tlscfg *tls.Config
	if strings.HasPrefix(g.Files.IntroducerFURL, "wss://") {
		tlscfg = &tls.Config{
			InsecureSkipVerify: g.Config.IntroducerSkipVerify,
		}
	}
	return introducer.NetDialer(g.Files.IntroducerFURL, tlscfg)
}

func (g *GridNode) initNode() error {
	nodeConf := node.NewConfig(
		g.Config.HeartbeatTimeout,
		g.Config.IntroducerTimeout,
		g.Config.IntroducerRealm,
		g.Config.HotlineInterval,
		g.Config.HotlineThreshold,
		g.Config.Logger(),
	)

	g.Node = node.NewNode(nodeConf, g.Files, g.Tub, g.dialer(), g.Config.Services)

	if err := g.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %w", err)
	}

	return nil
}

func (g *GridNode) initService() error {
	if !g.Config.NoService {
		g.Service = service.NewService(g.Config.ServiceAddr, g.Node, g.Config.Logger())
	}
	return nil
}

// Init reads the configuration files, loads or creates the key, binds the
// transport and initialises the node. A missing introducer.furl is reported
// before any network resource is acquired. On failure, whatever was already
// acquired is released.
func (g *GridNode) Init() error {
	if err := g.initFiles(); err != nil {
		return err
	}

	if err := g.initKey(); err != nil {
		return err
	}

	if err := g.initTransport(); err != nil {
		return err
	}

	if err := g.initTub(); err != nil {
		g.Transport.Close()
		return err
	}

	if err := g.initNode(); err != nil {
		g.Tub.Close()
		return err
	}

	if err := g.initService(); err != nil {
		g.Node.Shutdown()
		return err
	}

	return nil
}

// Run starts the HTTP service, if any, and blocks until the node shuts down.
func (g *GridNode) Run() {
	if g.Service != nil {
		go g.Service.Serve()
	}

	g.Node.Run()
}

// Shutdown stops the HTTP service and the node.
func (g *GridNode) Shutdown() {
	if g.Service != nil {
		g.Service.Close()
	}

	if g.Node != nil {
		g.Node.Shutdown()
	}
}

// Keygen generates a new key and writes it to the default keyfile in datadir.
// It fails if a key already lives there.
func Keygen(datadir string) (*ecdsa.PrivateKey, error) {
	simpleKeyfile := keys.NewSimpleKeyfile(filepath.Join(datadir, config.DefaultKeyfile))

	if _, err := simpleKeyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("Another key already lives under %s", datadir)
	}

	privKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(datadir, 0700); err != nil {
		return nil, err
	}

	if err := simpleKeyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
