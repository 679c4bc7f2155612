package cli

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

	"github.com/lazypower/decaytrack/internal/alerts"
	"github.com/lazypower/decaytrack/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Alerts.Enabled {
		pub, err := alerts.New(cfg.Alerts, logger)
		if err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
		defer pub.Close()

		eng.SetPublisher(pub, cfg.Alerts.Threshold)
		eng.StartAlertTimer(time.Duration(cfg.Alerts.IntervalHours) * time.Hour)
		defer eng.Stop()
	}

	srv := server.New(eng, cfg.Auth, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("decaytrack serving", "addr", addr, "db", db.Path, "alerts", cfg.Alerts.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
