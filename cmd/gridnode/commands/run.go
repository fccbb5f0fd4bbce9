package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/storagegrid/gridnode/src/gridnode"
)

//NewRunCmd returns the command that starts a grid node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runGridnode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runGridnode(cmd *cobra.Command, args []string) error {
	engine := gridnode.NewGridNode(&_config.Gridnode)

	if err := engine.Init(); err != nil {
		_config.Gridnode.Logger().Error("Cannot initialize node: ", err)
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		_config.Gridnode.Logger().Info("Received an interrupt, shutting down")
		engine.Shutdown()
	}()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Gridnode.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Gridnode.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Gridnode.LogFile, "Also write logs to this file")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Gridnode.BindAddr, "Listen IP:Port for the node's tub")
	cmd.Flags().StringP("advertise", "a", _config.Gridnode.AdvertiseAddr, "Advertise IP:Port written in FURLs")
	cmd.Flags().DurationP("timeout", "t", _config.Gridnode.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.Gridnode.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.Gridnode.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.Gridnode.NoService, "Disable HTTP service")

	// Introducer
	cmd.Flags().String("introducer-realm", _config.Gridnode.IntroducerRealm, "WAMP realm of the introducer")
	cmd.Flags().Duration("introducer-timeout", _config.Gridnode.IntroducerTimeout, "Timeout of introducer calls and peer connections")
	cmd.Flags().Bool("introducer-skip-verify", _config.Gridnode.IntroducerSkipVerify, "Do not verify the introducer's TLS certificate")

	// Node configuration
	cmd.Flags().Duration("heartbeat", _config.Gridnode.HeartbeatTimeout, "Time between maintenance rounds")
	cmd.Flags().Duration("hotline-interval", _config.Gridnode.HotlineInterval, "Time between hotline checks")
	cmd.Flags().Duration("hotline-threshold", _config.Gridnode.HotlineThreshold, "Age after which the hotline file is stale")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	_config.Gridnode.Logger().WithFields(logrus.Fields{
		"gridnode.DataDir":              _config.Gridnode.DataDir,
		"gridnode.BindAddr":             _config.Gridnode.BindAddr,
		"gridnode.AdvertiseAddr":        _config.Gridnode.AdvertiseAddr,
		"gridnode.ServiceAddr":          _config.Gridnode.ServiceAddr,
		"gridnode.NoService":            _config.Gridnode.NoService,
		"gridnode.MaxPool":              _config.Gridnode.MaxPool,
		"gridnode.LogLevel":             _config.Gridnode.LogLevel,
		"gridnode.LogFile":              _config.Gridnode.LogFile,
		"gridnode.TCPTimeout":           _config.Gridnode.TCPTimeout,
		"gridnode.IntroducerRealm":      _config.Gridnode.IntroducerRealm,
		"gridnode.IntroducerTimeout":    _config.Gridnode.IntroducerTimeout,
		"gridnode.IntroducerSkipVerify": _config.Gridnode.IntroducerSkipVerify,
		"gridnode.HeartbeatTimeout":     _config.Gridnode.HeartbeatTimeout,
		"gridnode.HotlineInterval":      _config.Gridnode.HotlineInterval,
		"gridnode.HotlineThreshold":     _config.Gridnode.HotlineThreshold,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/gridnode.toml (.json, .yaml also work)
	viper.SetConfigName("gridnode")               // name of config file (without extension)
	viper.AddConfigPath(_config.Gridnode.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Gridnode.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Gridnode.Logger().Debugf("No config file found in: %s", _config.Gridnode.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
