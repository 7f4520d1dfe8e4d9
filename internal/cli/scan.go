package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acpipe/acpipe/internal/appcontainer"
)

// scanFn is swapped in tests.
var scanFn = appcontainer.EnumeratePipePrefixes

func newScanCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the process table for AppContainer pipe prefixes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefixes, err := scanFn()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				if prefixes == nil {
					prefixes = []string{}
				}
				return enc.Encode(prefixes)
			}

			for _, p := range prefixes {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			if len(prefixes) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no AppContainer processes found")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as a JSON array")
	return cmd
}
