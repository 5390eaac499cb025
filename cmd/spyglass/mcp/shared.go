package mcp

import (
	"github.com/spyglass-browser/spyglass/internal/config"
)

// Variables shared from the parent command package.
var (
	Cfg     *config.Config
	Verbose bool
	Quiet   bool
)

// SetSharedVariables hands the loaded configuration to this package.
func SetSharedVariables(cfg *config.Config, verbose, quiet bool) {
	Cfg = cfg
	Verbose = verbose
	Quiet = quiet
}
