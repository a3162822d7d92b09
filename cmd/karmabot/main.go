package main

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

	"github.com/okroshka/karmabot/internal/config"
	httpapi "github.com/okroshka/karmabot/internal/http"
	"github.com/okroshka/karmabot/internal/policy"
	"github.com/okroshka/karmabot/internal/reconcile"
	"github.com/okroshka/karmabot/internal/server"
	"github.com/okroshka/karmabot/internal/storage/sqlite"
	"github.com/okroshka/karmabot/internal/telegram"
	"github.com/okroshka/karmabot/internal/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "karmabot",
		Short:         "Reaction-to-karma reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newInitCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var devLogging bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the connector, reconciler, sweeper and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(resolveConfigPath(*configPath), devLogging)
		},
	}
	cmd.Flags().BoolVar(&devLogging, "dev", false, "human-readable log output")
	return cmd
}

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(*configPath)
			if err := config.WriteStarter(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return config.ResolvePath()
}

func runServe(configPath string, devLogging bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(devLogging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	base, err := sqlite.New(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	store := sqlite.NewResilient(base)
	defer store.Close()

	hub := ws.NewHub()
	rec := reconcile.New(store, policy.New(cfg.Policy), hub, logger, reconcile.Options{
		ThrottleLimit:        cfg.Throttle.Limit,
		ThrottleWindow:       cfg.Throttle.Window.Std(),
		RequireTopPercentile: cfg.Gate.TopPercentile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := sqlite.NewSweeper(store, hub, logger,
		cfg.Retention.SweepInterval.Std(), cfg.Retention.Horizon.Std(), cfg.Retention.BatchSize)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if cfg.Telegram.Token != "" {
		conn := telegram.New(cfg.Telegram.Token, cfg.Telegram.PollTimeoutSeconds, rec, logger)
		go func() {
			if err := conn.Start(ctx); err != nil {
				logger.Error("telegram connector stopped", zap.Error(err))
				stop()
			}
		}()
	} else {
		logger.Warn("telegram token not set, connector disabled")
	}

	svc := httpapi.NewService(store, logger).
		WithMetrics(rec).
		WithBreakerState(store.CircuitBreakerState)
	mux := http.NewServeMux()
	mux.Handle("/api/", httpapi.NewRouter(svc))
	mux.Handle("/ws/events", hub.Handler())

	srv, err := server.New(server.Config{
		Addr:       cfg.Server.Addr,
		SocketPath: cfg.Server.SocketPath,
		Handler:    mux,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
