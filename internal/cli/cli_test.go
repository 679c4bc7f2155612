package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lazypower/decaytrack/internal/engine"
	"github.com/lazypower/decaytrack/internal/store"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	l := newLogger("warn", &buf)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	l = newLogger("bogus", &buf)
	l.Debug("hidden")
	l.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func seedEngine(t *testing.T) []engine.ItemHistory {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng := engine.New(db, engine.DefaultModel())
	eng.SetLogger(newLogger("error", io.Discard))
	ctx := context.Background()

	_, err = eng.CreateItem(ctx, "alice", engine.ItemInput{
		Topic: "never forgotten", Attention: 0.8, Interest: 0.5, Difficulty: 0.5,
		BaseMemory: 0.7, SleepQuality: 0.9, MemoryFloor: 0.10,
	})
	require.NoError(t, err)
	v, err := eng.CreateItem(ctx, "alice", engine.ItemInput{
		Topic: "fading", Attention: 0.8, Interest: 0.5, Difficulty: 1,
		BaseMemory: 0.7, SleepQuality: 0.3, MemoryFloor: 0.05,
	})
	require.NoError(t, err)
	_, err = eng.SubmitReview(ctx, "alice", v.ID, true, nil)
	require.NoError(t, err)

	histories, err := eng.Export(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, histories, 2)
	return histories
}

func TestWriteExportJSON(t *testing.T) {
	histories := seedEngine(t)

	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, "json", "alice", histories))

	var doc exportDoc
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "alice", doc.User)
	require.Len(t, doc.Items, 2)

	byTopic := map[string]exportedItem{}
	for _, it := range doc.Items {
		byTopic[it.Topic] = it
	}
	assert.Nil(t, byTopic["never forgotten"].DaysToForget)
	assert.Empty(t, byTopic["never forgotten"].Reviews)
	assert.NotNil(t, byTopic["fading"].DaysToForget)
	require.Len(t, byTopic["fading"].Reviews, 1)
	assert.True(t, byTopic["fading"].Reviews[0].UsedInPractice)
	assert.InDelta(t, 2.0, byTopic["fading"].UsageFrequency, 1e-9)
}

func TestWriteExportYAML(t *testing.T) {
	histories := seedEngine(t)

	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, "yaml", "alice", histories))
	assert.Contains(t, buf.String(), "k0_initial_strength:")

	var doc exportDoc
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "alice", doc.User)
	assert.Len(t, doc.Items, 2)
}

// runCLI executes the root command against a fresh config and database.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	dbPath := filepath.Join(dir, "decaytrack.db")
	toml := "[database]\npath = \"" + filepath.ToSlash(dbPath) + "\"\n\n[log]\nlevel = \"error\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(toml), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestReplayCommand(t *testing.T) {
	out, err := runCLI(t, "replay")
	require.NoError(t, err)
	assert.Equal(t, "0 items checked, 0 repaired\n", out)
}

func TestInsightsSummaryCommand(t *testing.T) {
	out, err := runCLI(t, "insights", "summary", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "items:")
	assert.True(t, strings.HasPrefix(out, "items:            0"), out)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	_, err := runCLI(t, "export", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
	exportFormat = "json"
}
