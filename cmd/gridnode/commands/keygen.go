package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/storagegrid/gridnode/src/crypto/keys"
	"github.com/storagegrid/gridnode/src/gridnode"
)

var keygenDataDir string

// NewKeygenCmd produces a KeygenCmd which creates the node's key
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the node's private key",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&keygenDataDir, "datadir", _config.Gridnode.DataDir, "Directory where the private key will be written")
}

func keygen(cmd *cobra.Command, args []string) error {
	key, err := gridnode.Keygen(keygenDataDir)
	if err != nil {
		return fmt.Errorf("Writing private key: %s", err)
	}

	fmt.Printf("Your private key has been saved under: %s\n", keygenDataDir)
	fmt.Printf("Tub ID: %s\n", keys.TubID(&key.PublicKey))

	return nil
}
