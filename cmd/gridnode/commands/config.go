package commands

import (
	"github.com/storagegrid/gridnode/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Gridnode config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Gridnode: *config.NewDefaultConfig(),
	}
}
