package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siteqa/siteqa/internal/api"
	"github.com/siteqa/siteqa/internal/application"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the test engine as a REST API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		cfg := appCtx.Config
		log := appCtx.Logger
		defer func() { _ = log.Sync() }()

		baseCtx, stopRuns := context.WithCancel(context.Background())
		defer stopRuns()

		container, err := application.NewContainer(baseCtx, cfg.containerConfig(appCtx.DataDir), log)
		if err != nil {
			return fmt.Errorf("failed to initialize engine: %w", err)
		}

		server := api.NewServer(api.Config{
			Runs:        container.Orchestrator,
			Health:      container,
			Metrics:     container.Metrics.Handler(),
			AuthToken:   cfg.Server.AuthToken,
			Logger:      log.Named("api"),
			CORSOrigins: cfg.Server.CORSOrigins,
			RateLimit:   cfg.Server.RateLimit,
			RateBurst:   cfg.Server.RateBurst,
		})

		// No WriteTimeout: run streams stay open until the run finishes.
		httpServer := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		// Channel to listen for errors from the server
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("%s API server listening on %s (data dir: %s)\n", colorInfo("→"), cfg.Server.Addr, appCtx.DataDir)
			if !cfg.Browser.Enabled {
				fmt.Printf("%s Browser checks disabled: web vitals and login will be skipped\n", colorWarn("!"))
			}
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				_ = container.Close(context.Background())
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					log.Error("failed to close server", zap.Error(closeErr))
				}
				log.Warn("graceful shutdown incomplete", zap.Error(err))
			}
			// In-flight runs get the rest of the shutdown window.
			if err := container.Close(ctx); err != nil {
				return fmt.Errorf("failed to release engine resources: %w", err)
			}

			fmt.Printf("%s Server shutdown complete\n", colorSuccess("✓"))
		}

		return nil
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&cliConfig.Server.Addr, "addr", cliConfig.Server.Addr, "Address for the API server")
	flags.StringVar(&cliConfig.Server.AuthToken, "auth-token", "", "Optional shared secret for API requests")
	flags.DurationVar(&cliConfig.Server.ShutdownTimeout, "shutdown-timeout", cliConfig.Server.ShutdownTimeout, "Graceful shutdown timeout")
	flags.StringSliceVar(&cliConfig.Server.CORSOrigins, "cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	flags.IntVar(&cliConfig.Server.RateLimit, "rate-limit", cliConfig.Server.RateLimit, "Rate limit per IP (requests/second, 0 = disabled)")
	flags.IntVar(&cliConfig.Server.RateBurst, "rate-burst", cliConfig.Server.RateBurst, "Rate limit burst size")
	flags.BoolVar(&cliConfig.Server.RuntimeMetrics, "runtime-metrics", false, "Expose Go runtime and process metrics on /metrics")
	flags.StringSliceVar(&cliConfig.Notify.WebhookURLs, "webhook", nil, "Webhook URL for run events (repeatable)")
	rootCmd.AddCommand(serveCmd)
}
