package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/common"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// IntroducerConfig contains the configuration of an introducer service.
type IntroducerConfig struct {
	// DataDir holds the introducer's database when Store is set.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Listen is the address:port of the websocket listener.
	Listen string `mapstructure:"listen"`

	// Realm is the WAMP realm served by the introducer.
	Realm string `mapstructure:"realm"`

	// Store keeps announcements in a Badger database so that they survive a
	// restart.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files. Defaults to
	// DataDir/introducer_db.
	DatabaseDir string `mapstructure:"db"`

	// RestoreGrace is how long announcements loaded from the database wait
	// for their peer to publish again before they are withdrawn.
	RestoreGrace time.Duration `mapstructure:"restore-grace"`

	// CertFile and KeyFile enable TLS on the websocket listener.
	CertFile string `mapstructure:"cert-file"`
	KeyFile  string `mapstructure:"key-file"`

	logger *logrus.Logger
}

// NewDefaultIntroducerConfig ...
func NewDefaultIntroducerConfig() *IntroducerConfig {
	return &IntroducerConfig{
		DataDir:  DefaultDataDir(),
		LogLevel: DefaultLogLevel,
		Listen:   DefaultIntroducerListen,
		Realm:    DefaultIntroducerRealm,

		RestoreGrace: DefaultRestoreGrace,
	}
}

// NewTestIntroducerConfig returns an introducer config whose logs go to the
// test output.
func NewTestIntroducerConfig(t testing.TB, level logrus.Level) *IntroducerConfig {
	config := NewDefaultIntroducerConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// DatabasePath returns the directory of the Badger database.
func (c *IntroducerConfig) DatabasePath() string {
	if c.DatabaseDir != "" {
		return c.DatabaseDir
	}
	return filepath.Join(c.DataDir, DefaultBadgerFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "introducer".
func (c *IntroducerConfig) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "introducer")
}
