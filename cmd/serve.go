package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arnold/kumbara-api/internal/app"
	"github.com/spf13/cobra"
)

var flagShutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&flagShutdownTimeout, "shutdown-timeout", 15*time.Second, "How long to wait for in-flight requests on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("failed to close app", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv)
		errCh <- a.Fiber.Listen(":" + cfg.Port)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case s := <-sig:
		slog.Info("shutting down", "signal", s.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), flagShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
