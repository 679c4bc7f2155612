package alerts

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/decaytrack/internal/config"
)

func TestStreamEntryFields(t *testing.T) {
	a := Alert{
		ItemID:    42,
		UserID:    "alice",
		Topic:     "Raft leader election",
		Retention: 37.46,
		At:        time.UnixMilli(1_700_000_000_000),
	}

	got, err := parseAlert(a.values())
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ItemID)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "Raft leader election", got.Topic)
	assert.InDelta(t, 37.5, got.Retention, 1e-9, "retention is written with one decimal")
	assert.True(t, got.At.Equal(a.At))
}

func TestParseAlertRejectsBadID(t *testing.T) {
	_, err := parseAlert(map[string]any{"item_id": "abc"})
	assert.Error(t, err)

	_, err = parseAlert(map[string]any{})
	assert.Error(t, err)
}

func TestParseAlertOptionalFields(t *testing.T) {
	a, err := parseAlert(map[string]any{"item_id": "7", "topic": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.ItemID)
	assert.Zero(t, a.Retention)
	assert.True(t, a.At.IsZero())
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := &LogPublisher{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	err := p.Publish(context.Background(), Alert{ItemID: 3, UserID: "1", Topic: "Go", Retention: 55})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "decay alert")
	assert.Contains(t, buf.String(), "item_id=3")
	assert.NoError(t, p.Close())
}

func TestNewWithoutRedisLogs(t *testing.T) {
	p, err := New(config.Default().Alerts, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, p)
}

func TestNewRedisStreamBadURL(t *testing.T) {
	_, err := NewRedisStream("not a url", "s", "g", nil)
	assert.Error(t, err)
}

func TestNewRedisStreamFromConfig(t *testing.T) {
	cfg := config.Default().Alerts
	cfg.RedisURL = "redis://localhost:6379/0"

	p, err := New(cfg, nil)
	require.NoError(t, err)
	defer p.Close()
	assert.IsType(t, &RedisStream{}, p)
}
