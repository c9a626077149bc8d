// Package cmd is the CLI of the tenet verification engine.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tenet-verify/tenet"
	"github.com/tenet-verify/tenet/logger"
)

var fVerbose bool

var rootCmd = &cobra.Command{
	Use:     "tenet",
	Short:   "tenet checks CVL-style rule specifications against a symbolic contract model",
	Version: tenet.Version.String(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !fVerbose {
			logger.Disable()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&fVerbose, "verbose", "v", false, "enable engine logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(-1)
	}
}
