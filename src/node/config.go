package node

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storagegrid/gridnode/src/common"
)

// Config contains the settings of a Node.
type Config struct {
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat"`
	IntroducerTimeout time.Duration `mapstructure:"introducer-timeout"`
	IntroducerRealm   string        `mapstructure:"introducer-realm"`
	HotlineInterval   time.Duration `mapstructure:"hotline-interval"`
	HotlineThreshold  time.Duration `mapstructure:"hotline-threshold"`
	Logger            *logrus.Entry
}

// NewConfig ...
func NewConfig(heartbeat time.Duration,
	introducerTimeout time.Duration,
	introducerRealm string,
	hotlineInterval time.Duration,
	hotlineThreshold time.Duration,
	logger *logrus.Entry) *Config {

	return &Config{
		HeartbeatTimeout:  heartbeat,
		IntroducerTimeout: introducerTimeout,
		IntroducerRealm:   introducerRealm,
		HotlineInterval:   hotlineInterval,
		HotlineThreshold:  hotlineThreshold,
		Logger:            logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		HeartbeatTimeout:  30 * time.Second,
		IntroducerTimeout: 10 * time.Second,
		IntroducerRealm:   "grid",
		HotlineInterval:   1 * time.Second,
		HotlineThreshold:  10 * time.Second,
		Logger:            logrus.NewEntry(logger),
	}
}

// TestConfig returns a Config with short timeouts whose logs go to the test
// output.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.HeartbeatTimeout = 50 * time.Millisecond
	config.IntroducerTimeout = time.Second
	config.HotlineInterval = 20 * time.Millisecond
	config.HotlineThreshold = 10 * time.Second
	config.Logger = common.NewTestEntry(t, common.TestLogLevel)
	return config
}
