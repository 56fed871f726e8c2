package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/queryguard/internal/config"
	"github.com/vango-dev/queryguard/pkg/metrics"
	"github.com/vango-dev/queryguard/pkg/permalink"
	"github.com/vango-dev/queryguard/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath   string
		addr         string
		resolverKind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve query guards over WebSocket",
		Long: `Serve query guards over WebSocket.

Every connected tab gets its own guard over the built-in search state.
Permalinks are stored in the configured backend.

Configuration is read from --config (YAML, JSON or TOML) and QUERYGUARD_*
environment variables.

Examples:
  queryguard serve
  queryguard serve --config queryguard.yaml
  QUERYGUARD_LINKS_BACKEND=sqlite QUERYGUARD_LINKS_PATH=links.db queryguard serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg, resolverKind)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&resolverKind, "resolver", "schema", "Resolver for the search state: schema or struct")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, resolverKind string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(os.Stderr, cfg.Log)
	if path := cfg.Path(); path != "" {
		logger.Info("loaded config", "path", path)
	}

	res, def, err := searchResolver(resolverKind, logger)
	if err != nil {
		return err
	}

	links, err := permalink.Open(ctx, cfg.Permalink(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := links.Close(); err != nil {
			logger.Warn("closing permalink store", "error", err)
		}
	}()

	opts := server.Options{
		Config:   cfg,
		Resolver: res,
		Default:  def,
		Links:    links,
		Logger:   logger,
	}
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Metrics = metrics.New(
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithRegistry(registry),
		)
		opts.Gatherer = registry
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logger.Info("sessions",
					"active", srv.Sessions().Count(),
					"total", srv.Sessions().TotalCreated())
			}
		}
	})

	w := os.Stdout
	printBanner(w)
	success(w, "queryguard listening on %s", cfg.Server.Addr)
	info(w, "links backend: %s", cfg.Links.Backend)
	info(w, "resolver:      %s", resolverKind)

	if err := g.Wait(); err != nil {
		errorMsg(os.Stderr, "server stopped: %v", err)
		return err
	}
	success(w, "stopped")
	return nil
}
