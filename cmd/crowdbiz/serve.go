package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinusleroux/crowdbiz-graph/pkg/routes"
	"github.com/tinusleroux/crowdbiz-graph/pkg/routes/health"
	"github.com/tinusleroux/crowdbiz-graph/pkg/startup"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the import HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Apply database migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, sync, err := bootstrap()
	if err != nil {
		return err
	}
	defer sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)
	var checker *health.Checker
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	serveErr := make(chan error, 1)

	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	s.AddDependency(startup.Func{
		Name:      "tracing",
		StartFunc: a.startTracing,
	})
	s.AddDependency(startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			if err := a.connectDatabase(ctx); err != nil {
				return err
			}
			if serveMigrate {
				return a.migrate()
			}
			return nil
		},
	})
	s.AddDependency(startup.Func{
		Name:      "redis",
		StartFunc: a.connectRedis,
	})
	s.AddDependency(startup.Func{
		Name:      "graph",
		StartFunc: a.connectGraph,
	})
	s.AddDependency(startup.Func{
		Name: "kafka",
		StartFunc: func(context.Context) error {
			a.startProducer()
			return nil
		},
	})
	s.AddDependency(startup.Func{
		Name:     "http",
		Requires: []string{"database", "redis", "graph", "kafka"},
		StartFunc: func(context.Context) error {
			a.build()
			checker = health.NewChecker(health.PingerFunc(a.db.PingContext), version)
			if a.redis != nil {
				checker.AddCheck("redis", a.redis)
			}
			if a.graph != nil {
				checker.AddCheck("graph", health.PingerFunc(a.graph.VerifyConnectivity))
			}
			server.Handler = routes.New(logger, a.service, a.departments, checker, routes.Options{
				ServiceName:    cfg.AppName,
				MaxUploadBytes: cfg.MaxUploadBytes,
				Tracing:        cfg.TracingEnabled,
			})
			go func() {
				logger.Infof("Listening on %s", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()
			checker.SetReady(true)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if checker != nil {
				checker.SetReady(false)
			}
			return server.Shutdown(ctx)
		},
	})

	if err := s.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Stop(shutdownCtx)
		_ = a.Close(shutdownCtx)
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-serveErr:
		logger.WithError(err).Error("HTTP server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if stopErr := s.Stop(shutdownCtx); stopErr != nil && err == nil {
		err = stopErr
	}
	// connections close after the server drains, tracing flushes last
	if closeErr := a.Close(shutdownCtx); closeErr != nil {
		logger.WithError(closeErr).Warn("Failed to close connections")
	}
	return err
}
