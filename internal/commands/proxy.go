package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remitlab/sheetrelay/internal/config"
	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/proxy"
	"github.com/remitlab/sheetrelay/internal/server"
)

func newProxyCommand(opts *rootOptions) *cobra.Command {
	var listen, upstream string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the browser-facing proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Proxy.Listen = listen
			}
			if upstream != "" {
				cfg.Proxy.UpstreamURL = upstream
			}
			return runProxy(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&upstream, "upstream", "", "handler URL (overrides "+config.EnvUpstreamURL+")")

	return cmd
}

func newProxy(cfg *config.Config) *proxy.Proxy {
	return proxy.New(proxy.Config{
		UpstreamURL:      cfg.Proxy.UpstreamURL,
		AuthToken:        cfg.Auth.Token,
		AllowedOrigins:   cfg.Proxy.AllowedOrigins,
		Timeout:          cfg.Proxy.Timeout(),
		MaxResponseBytes: cfg.Proxy.MaxResponseBytes,
	})
}

func runProxy(cmd *cobra.Command, cfg *config.Config) error {
	// An unconfigured proxy still starts and answers 500 per request.
	if err := cfg.Validate(config.RoleProxy); err != nil {
		logging.Warn("proxy configuration incomplete", "error", err)
	}
	p := newProxy(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("proxy starting", "listen", cfg.Proxy.Listen, "path", cfg.Proxy.Path, "upstream", cfg.Proxy.UpstreamURL)
	fmt.Fprintf(cmd.OutOrStdout(), "Proxying http://%s%s\n", cfg.Proxy.Listen, cfg.Proxy.Path)

	return server.Run(ctx, cfg.Proxy.Listen, proxy.NewRouter(p, cfg.Proxy.Path))
}
