// Package alerts publishes decay alerts for items whose retention has fallen
// below the alert threshold, and consumes them in the worker.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lazypower/decaytrack/internal/config"
)

// Alert reports an item whose retention is below the alert threshold.
type Alert struct {
	ItemID    int64
	UserID    string
	Topic     string
	Retention float64
	At        time.Time
}

// Publisher delivers alerts.
type Publisher interface {
	Publish(ctx context.Context, a Alert) error
	Close() error
}

// New returns a Redis stream publisher when a Redis URL is configured and a
// LogPublisher otherwise.
func New(cfg config.AlertsConfig, logger *slog.Logger) (Publisher, error) {
	if cfg.RedisURL == "" {
		return &LogPublisher{Logger: logger}, nil
	}
	return NewRedisStream(cfg.RedisURL, cfg.Stream, cfg.Group, logger)
}

// LogPublisher writes alerts to the log. Used when no stream is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p *LogPublisher) Publish(_ context.Context, a Alert) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("decay alert",
		"item_id", a.ItemID,
		"user_id", a.UserID,
		"topic", a.Topic,
		"retention", a.Retention,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// values encodes an alert as stream entry fields.
func (a Alert) values() map[string]any {
	return map[string]any{
		"item_id":   strconv.FormatInt(a.ItemID, 10),
		"user_id":   a.UserID,
		"topic":     a.Topic,
		"retention": strconv.FormatFloat(a.Retention, 'f', 1, 64),
		"at":        strconv.FormatInt(a.At.UnixMilli(), 10),
	}
}

// parseAlert decodes stream entry fields written by values.
func parseAlert(v map[string]any) (Alert, error) {
	str := func(key string) string {
		s, _ := v[key].(string)
		return s
	}

	var a Alert
	id, err := strconv.ParseInt(str("item_id"), 10, 64)
	if err != nil {
		return a, fmt.Errorf("parse item_id: %w", err)
	}
	a.ItemID = id
	a.UserID = str("user_id")
	a.Topic = str("topic")

	if r := str("retention"); r != "" {
		if a.Retention, err = strconv.ParseFloat(r, 64); err != nil {
			return a, fmt.Errorf("parse retention: %w", err)
		}
	}
	if at := str("at"); at != "" {
		ms, err := strconv.ParseInt(at, 10, 64)
		if err != nil {
			return a, fmt.Errorf("parse at: %w", err)
		}
		a.At = time.UnixMilli(ms)
	}
	return a, nil
}
