package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lazypower/decaytrack/internal/alerts"
	"github.com/lazypower/decaytrack/internal/engine"
)

var workerConsumer string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume decay alerts from the Redis stream",
	Long: "Reads decay alerts from the configured Redis stream through a consumer group " +
		"and logs each one with the item's projected time to forget.",
	RunE: runWorker,
}

func init() {
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	workerCmd.Flags().StringVar(&workerConsumer, "consumer", host, "consumer name within the group")
}

func runWorker(cmd *cobra.Command, args []string) error {
	if cfg.Alerts.RedisURL == "" {
		return errors.New("worker: alerts.redis_url is not configured")
	}

	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	stream, err := alerts.NewRedisStream(cfg.Alerts.RedisURL, cfg.Alerts.Stream, cfg.Alerts.Group, logger)
	if err != nil {
		return err
	}
	defer stream.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stream.Ping(ctx); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	logger.Info("worker started", "stream", cfg.Alerts.Stream, "group", cfg.Alerts.Group, "consumer", workerConsumer)
	err = stream.Consume(ctx, workerConsumer, func(ctx context.Context, a alerts.Alert) error {
		return handleAlert(ctx, eng, a)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleAlert logs an alert against the item's current state. Alerts for
// items deleted since publication are dropped.
func handleAlert(ctx context.Context, eng *engine.Engine, a alerts.Alert) error {
	v, err := eng.GetItem(ctx, a.UserID, a.ItemID)
	if errors.Is(err, engine.ErrNotFound) {
		logger.Debug("alert for deleted item", "item_id", a.ItemID)
		return nil
	}
	if err != nil {
		return err
	}

	attrs := []any{
		"item_id", v.ID,
		"user_id", v.UserID,
		"topic", v.Topic,
		"retention_at_alert", a.Retention,
		"retention_now", v.CurrentRetention,
	}
	if v.Forgets() {
		attrs = append(attrs, "days_to_forget", v.DaysToForget)
	}
	logger.Warn("knowledge decaying", attrs...)
	return nil
}
