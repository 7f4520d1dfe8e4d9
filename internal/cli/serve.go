package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acpipe/acpipe/internal/config"
	"github.com/acpipe/acpipe/internal/logging"
	"github.com/acpipe/acpipe/internal/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the discovery API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				cfg, err = config.Load(configPath)
				if err != nil {
					return err
				}
			}

			log := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if configPath != "" {
				w, err := config.NewWatcher(configPath, 0, func(next *config.Config, err error) {
					if err != nil {
						log.Warn("config reload failed", "error", err)
						return
					}
					logging.SetLevel(next.Logging.Level)
					log.Info("config reloaded", "log_level", next.Logging.Level)
				})
				if err != nil {
					return err
				}
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer w.Stop()
			}

			srv, err := server.New(cfg, log)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", getenvDefault("ACPIPE_CONFIG", ""), "path to YAML config (defaults apply when empty)")
	return cmd
}
