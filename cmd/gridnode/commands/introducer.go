package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/storagegrid/gridnode/src/introducer"
)

//NewIntroducerCmd returns the command that starts an introducer
func NewIntroducerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "introducer",
		Short:   "Run introducer",
		PreRunE: loadIntroducerConfig,
		RunE:    runIntroducer,
	}
	AddIntroducerFlags(cmd)
	return cmd
}

func runIntroducer(cmd *cobra.Command, args []string) error {
	logger := _introducerConfig.Logger()

	var store introducer.Store
	if _introducerConfig.Store {
		bs, err := introducer.NewBadgerStore(_introducerConfig.DatabasePath())
		if err != nil {
			logger.Error("Cannot open database: ", err)
			return err
		}
		store = bs
	} else {
		store = introducer.NewInmemStore()
	}
	defer store.Close()

	server, err := introducer.NewServer(
		_introducerConfig.Listen,
		_introducerConfig.Realm,
		store,
		_introducerConfig.RestoreGrace,
		_introducerConfig.CertFile,
		_introducerConfig.KeyFile,
		logger,
	)
	if err != nil {
		logger.Error("Cannot create introducer: ", err)
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received an interrupt, shutting down")
		server.Shutdown()
	}()

	return server.Run()
}

//AddIntroducerFlags adds flags to the introducer command
func AddIntroducerFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _introducerConfig.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _introducerConfig.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().StringP("listen", "l", _introducerConfig.Listen, "Listen IP:Port for the websocket server")
	cmd.Flags().String("realm", _introducerConfig.Realm, "WAMP realm")
	cmd.Flags().Bool("store", _introducerConfig.Store, "Keep announcements in a badger database")
	cmd.Flags().String("db", _introducerConfig.DatabaseDir, "Database directory")
	cmd.Flags().Duration("restore-grace", _introducerConfig.RestoreGrace, "Time given to stored announcements to be published again after a restart; 0 keeps them")
	cmd.Flags().String("cert-file", _introducerConfig.CertFile, "TLS certificate")
	cmd.Flags().String("key-file", _introducerConfig.KeyFile, "TLS key")
}

func loadIntroducerConfig(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := viper.Unmarshal(_introducerConfig); err != nil {
		return err
	}

	_introducerConfig.Logger().WithFields(logrus.Fields{
		"DataDir":     _introducerConfig.DataDir,
		"Listen":      _introducerConfig.Listen,
		"Realm":       _introducerConfig.Realm,
		"Store":       _introducerConfig.Store,
		"DatabaseDir": _introducerConfig.DatabasePath(),
		"TLS":         _introducerConfig.CertFile != "",
	}).Debug("INTRODUCER")

	return nil
}
