package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "knowledge_items: tracked facts and their cached decay projection",
		SQL: `
CREATE TABLE knowledge_items (
    id                    INTEGER PRIMARY KEY,
    user_id               TEXT NOT NULL,
    topic                 TEXT NOT NULL CHECK (length(topic) > 0),
    content               TEXT,

    -- Static inputs
    attention             REAL NOT NULL CHECK (attention BETWEEN 0 AND 1),
    interest              REAL NOT NULL CHECK (interest BETWEEN 0 AND 1),
    difficulty            REAL NOT NULL CHECK (difficulty BETWEEN 0 AND 1),

    -- User context snapshot
    base_memory           REAL NOT NULL CHECK (base_memory BETWEEN 0 AND 1),
    memory_floor          REAL NOT NULL CHECK (memory_floor BETWEEN 0.05 AND 0.20),
    initial_sleep_quality REAL NOT NULL CHECK (initial_sleep_quality BETWEEN 0 AND 1),

    -- Frozen at creation
    k0_initial_strength   REAL NOT NULL,

    -- Cached projection of review_events
    decay_rate            REAL NOT NULL,
    revision_frequency    REAL NOT NULL DEFAULT 0,
    usage_frequency       REAL NOT NULL DEFAULT 0,
    sleep_quality         REAL NOT NULL,
    last_reviewed         INTEGER,
    last_used             INTEGER,

    created_at            INTEGER NOT NULL,
    updated_at            INTEGER NOT NULL
);

CREATE INDEX idx_items_user_last_reviewed ON knowledge_items(user_id, last_reviewed);
CREATE INDEX idx_items_user_decay_rate    ON knowledge_items(user_id, decay_rate);
`,
	},
	{
		Version:     2,
		Description: "review_events: append-only review log per item",
		SQL: `
CREATE TABLE review_events (
    seq                   INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id               INTEGER NOT NULL,
    timestamp             INTEGER NOT NULL,
    used_in_practice      INTEGER NOT NULL DEFAULT 0,
    sleep_quality_at_time REAL NOT NULL CHECK (sleep_quality_at_time BETWEEN 0 AND 1),

    FOREIGN KEY (item_id) REFERENCES knowledge_items(id) ON DELETE CASCADE
);

CREATE INDEX idx_reviews_item_time ON review_events(item_id, timestamp, seq);
`,
	},
	{
		Version:     3,
		Description: "item_edits: history of difficulty and memory_floor changes",
		SQL: `
CREATE TABLE item_edits (
    seq               INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id           INTEGER NOT NULL,
    timestamp         INTEGER NOT NULL,
    prev_difficulty   REAL NOT NULL CHECK (prev_difficulty BETWEEN 0 AND 1),
    prev_memory_floor REAL NOT NULL CHECK (prev_memory_floor BETWEEN 0.05 AND 0.20),

    FOREIGN KEY (item_id) REFERENCES knowledge_items(id) ON DELETE CASCADE
);

CREATE INDEX idx_edits_item_time ON item_edits(item_id, timestamp, seq);
`,
	},
}

const schemaVersionsDDL = `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    description TEXT NOT NULL,
    applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
)`

// migrate applies every migration newer than the recorded schema version,
// each in its own transaction.
func (db *DB) migrate() error {
	if _, err := db.Exec(schemaVersionsDDL); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_versions (version, description) VALUES (?, ?)`, m.Version, m.Description); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration, 0 on a fresh database.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_versions`).Scan(&version)
	return version, err
}
