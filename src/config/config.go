package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/common"
	"github.com/storagegrid/gridnode/src/tub"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "node.privkey"

	// DefaultPortFile is the default name of the file remembering the port the
	// transport was bound to.
	DefaultPortFile = "client.port"

	// DefaultConfigFile is the default name of the optional configuration file.
	DefaultConfigFile = "gridnode.toml"

	// DefaultBadgerFile is the default name of the folder containing the
	// introducer's Badger database
	DefaultBadgerFile = "introducer_db"
)

// Default configuration values.
const (
	DefaultLogLevel          = "info"
	DefaultBindAddr          = "127.0.0.1:0"
	DefaultServiceAddr       = "127.0.0.1:8000"
	DefaultTCPTimeout        = 1000 * time.Millisecond
	DefaultMaxPool           = 2
	DefaultIntroducerRealm   = "grid"
	DefaultIntroducerTimeout = 10 * time.Second
	DefaultHeartbeatTimeout  = 30 * time.Second
	DefaultHotlineInterval   = 1 * time.Second
	DefaultHotlineThreshold  = 10 * time.Second
	DefaultIntroducerListen  = "0.0.0.0:8443"
	DefaultRestoreGrace      = 4 * DefaultHeartbeatTimeout
)

// Config contains all the configuration properties of a grid node.
type Config struct {
	// DataDir is the top-level directory containing the node's configuration
	// and state files.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, if set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where the node's tub listens. Port 0
	// picks a free port the first time and the same port on later starts (cf.
	// client.port).
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we write into our
	// FURLs.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP status service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP status service.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of tub RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// IntroducerRealm is the WAMP realm in which announcements are exchanged.
	IntroducerRealm string `mapstructure:"introducer-realm"`

	// IntroducerTimeout bounds each call to the introducer, and each attempt
	// to connect to an announced peer.
	IntroducerTimeout time.Duration `mapstructure:"introducer-timeout"`

	// IntroducerSkipVerify disables verification of the introducer's TLS
	// certificate. Only for testing.
	IntroducerSkipVerify bool `mapstructure:"introducer-skip-verify"`

	// HeartbeatTimeout is the period of the maintenance loop, which reconnects
	// to the introducer when needed and probes known peers.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// HotlineInterval is how often the suicide_prevention_hotline file is
	// checked, when it exists.
	HotlineInterval time.Duration `mapstructure:"hotline-interval"`

	// HotlineThreshold is the age after which the hotline file is considered
	// stale.
	HotlineThreshold time.Duration `mapstructure:"hotline-threshold"`

	// Services are additional named services to register in the node's tub.
	// Only names allowed by the node can be obtained by peers.
	Services map[string]tub.Referenceable

	// Key is the private key of the node. It is loaded from, or written to,
	// Keyfile when nil.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		BindAddr:          DefaultBindAddr,
		ServiceAddr:       DefaultServiceAddr,
		MaxPool:           DefaultMaxPool,
		TCPTimeout:        DefaultTCPTimeout,
		IntroducerRealm:   DefaultIntroducerRealm,
		IntroducerTimeout: DefaultIntroducerTimeout,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
		HotlineInterval:   DefaultHotlineInterval,
		HotlineThreshold:  DefaultHotlineThreshold,
		Services:          make(map[string]tub.Referenceable),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// PortFile returns the full path of the file remembering the bound port.
func (c *Config) PortFile() string {
	return filepath.Join(c.DataDir, DefaultPortFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "gridnode".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				c.LogFile,
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "gridnode")
}

// DefaultDataDir return the default directory name for the node's files based
// on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Gridnode")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Gridnode")
		} else {
			return filepath.Join(home, ".gridnode")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
