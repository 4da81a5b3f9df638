package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/api"
	"github.com/roach88/authsync/internal/app"
	"github.com/roach88/authsync/internal/engine"
	"github.com/roach88/authsync/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the change consumer and the outbox relay",
		Long: `Serve the link API for every tenant.

Tenant databases found in DATA_DIR are opened at start so their pending
outbox rows are relayed. Inbound authority events are applied by a single
consumer. On SIGINT or SIGTERM the server stops accepting requests, the
consumer drains its queue and the outbox is flushed once more.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, logger, err := loadEnv(opts, false)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	a, release, err := app.FromConfig(cfg, m, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "wire services", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close tenants", zap.Error(err))
		}
		if err := release(); err != nil {
			logger.Error("release connections", zap.Error(err))
		}
	}()

	tenants, err := a.OpenExisting(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "open tenants", err)
	}
	logger.Info("tenants opened", zap.Strings("tenants", tenants))

	sched := engine.NewScheduler(logger)
	if err := a.Schedule(ctx, sched, cfg); err != nil {
		return WrapExitError(ExitCommandError, "schedule jobs", err)
	}
	sched.Start()
	defer sched.Stop()

	// The consumer outlives ctx so it can drain after a signal.
	consumerDone := make(chan error, 1)
	go func() { consumerDone <- a.Consumer().Run(context.WithoutCancel(ctx)) }()

	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           api.NewServer(a, cfg.TenantHeader, logger).Router(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			runErr = WrapExitError(ExitFailure, "http server", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	a.Consumer().Stop()
	if err := <-consumerDone; err != nil {
		logger.Error("consumer stopped", zap.Error(err))
	}
	a.Propagator().Wait()
	if n, err := a.Relay().Flush(shutdownCtx); err != nil {
		logger.Warn("final outbox flush incomplete", zap.Int("relayed", n), zap.Error(err))
	}
	return runErr
}
