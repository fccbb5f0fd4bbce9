package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/storagegrid/gridnode/src/version"
)

// VersionCmd prints the application name and version
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}
