package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/acpipe/acpipe/internal/appcontainer"
)

func newProbeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe <prefix> <pipe-name>",
		Short: "Check that a discovered AppContainer pipe accepts connections",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, name := args[0], args[1]
			if _, err := appcontainer.ParsePrefix(prefix); err != nil {
				return err
			}

			full := appcontainer.JoinPipe(prefix, name)
			conn, err := dialNamedPipe(full, timeout)
			if err != nil {
				return &ExitError{code: 1, message: fmt.Sprintf("dial %s: %v", full, err)}
			}
			conn.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: accepting connections\n", full)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial timeout")
	return cmd
}
