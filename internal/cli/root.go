// Package cli implements the acpipe command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "acpipe",
		Short:         "acpipe: AppContainer named-pipe endpoint discovery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("acpipe {{.Version}}\n")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newProbeCmd())

	return cmd
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
