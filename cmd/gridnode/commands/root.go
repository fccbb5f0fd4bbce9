package commands

import (
	"github.com/spf13/cobra"
	"github.com/storagegrid/gridnode/src/config"
)

var (
	_config           = NewDefaultCLIConfig()
	_introducerConfig = config.NewDefaultIntroducerConfig()
)

//RootCmd is the root command for gridnode
var RootCmd = &cobra.Command{
	Use:              "gridnode",
	Short:            "storage grid client node",
	TraverseChildren: true,
}
