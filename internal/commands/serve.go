package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remitlab/sheetrelay/internal/config"
	"github.com/remitlab/sheetrelay/internal/handler"
	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the record handler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(config.RoleHandler); err != nil {
		return err
	}

	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("handler starting",
		"listen", cfg.Server.Listen,
		"path", cfg.Server.Path,
		"store", cfg.Store.Backend,
		"rate_limit", cfg.RateLimit.Limit)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving records on http://%s%s\n", cfg.Server.Listen, cfg.Server.Path)

	return server.Run(ctx, cfg.Server.Listen, handler.NewRouter(st.handler, cfg.Server.Path))
}
