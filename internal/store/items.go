package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Item is a knowledge item row: identity, static inputs, the user-context
// snapshot taken at creation, and the cached decay projection.
type Item struct {
	ID      int64
	UserID  string
	Topic   string
	Content string

	Attention  float64
	Interest   float64
	Difficulty float64

	BaseMemory          float64
	MemoryFloor         float64 // fraction, 0.05–0.20
	InitialSleepQuality float64

	K0 float64 // k0_initial_strength, never rewritten

	Projection

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Projection is the part of an item derived from its review log.
type Projection struct {
	DecayRate         float64
	RevisionFrequency float64
	UsageFrequency    float64
	SleepQuality      float64
	LastReviewed      *time.Time
	LastUsed          *time.Time
}

// ItemPatch carries a partial update of an item's static inputs.
// Nil fields are left unchanged.
type ItemPatch struct {
	Topic       *string
	Content     *string
	Attention   *float64
	Interest    *float64
	Difficulty  *float64
	BaseMemory  *float64
	MemoryFloor *float64
}

const itemColumns = `id, user_id, topic, content, attention, interest, difficulty,
	base_memory, memory_floor, initial_sleep_quality, k0_initial_strength,
	decay_rate, revision_frequency, usage_frequency, sleep_quality, last_reviewed, last_used,
	created_at, updated_at`

// CreateItem inserts a new item. CreatedAt must be set by the caller; the
// assigned ID is written back into item.
func (db *DB) CreateItem(ctx context.Context, item *Item) error {
	now := time.Now().UnixMilli()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.UnixMilli(now)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO knowledge_items (user_id, topic, content, attention, interest, difficulty,
			base_memory, memory_floor, initial_sleep_quality, k0_initial_strength,
			decay_rate, revision_frequency, usage_frequency, sleep_quality, last_reviewed, last_used,
			created_at, updated_at)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.UserID, item.Topic, item.Content, item.Attention, item.Interest, item.Difficulty,
		item.BaseMemory, item.MemoryFloor, item.InitialSleepQuality, item.K0,
		item.DecayRate, item.RevisionFrequency, item.UsageFrequency, item.SleepQuality,
		millisOrNil(item.LastReviewed), millisOrNil(item.LastUsed),
		item.CreatedAt.UnixMilli(), now)
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}

	id, _ := result.LastInsertId()
	item.ID = id
	item.CreatedAt = time.UnixMilli(item.CreatedAt.UnixMilli())
	item.UpdatedAt = time.UnixMilli(now)
	return nil
}

// GetItem returns an item by ID, or nil if not found.
func (db *DB) GetItem(ctx context.Context, id int64) (*Item, error) {
	return getItem(ctx, db, id)
}

// GetItem returns an item by ID within the transaction, or nil if not found.
func (tx *Tx) GetItem(ctx context.Context, id int64) (*Item, error) {
	return getItem(ctx, tx.tx, id)
}

func getItem(ctx context.Context, q querier, id int64) (*Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM knowledge_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns all items for a user ordered by ID.
func (db *DB) ListItems(ctx context.Context, userID string) ([]Item, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM knowledge_items WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListAllItems returns every item across users ordered by ID.
func (db *DB) ListAllItems(ctx context.Context) ([]Item, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+itemColumns+` FROM knowledge_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list all items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// UpdateItem applies a patch to an item's static inputs. It never touches
// k0_initial_strength or the projection.
func (tx *Tx) UpdateItem(ctx context.Context, id int64, p ItemPatch) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Topic != nil {
		add("topic", *p.Topic)
	}
	if p.Content != nil {
		sets = append(sets, "content = NULLIF(?, '')")
		args = append(args, *p.Content)
	}
	if p.Attention != nil {
		add("attention", *p.Attention)
	}
	if p.Interest != nil {
		add("interest", *p.Interest)
	}
	if p.Difficulty != nil {
		add("difficulty", *p.Difficulty)
	}
	if p.BaseMemory != nil {
		add("base_memory", *p.BaseMemory)
	}
	if p.MemoryFloor != nil {
		add("memory_floor", *p.MemoryFloor)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UnixMilli())
	args = append(args, id)

	_, err := tx.tx.ExecContext(ctx,
		"UPDATE knowledge_items SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update item %d: %w", id, err)
	}
	return nil
}

// SaveProjection overwrites the cached projection of an item.
func (tx *Tx) SaveProjection(ctx context.Context, id int64, p Projection) error {
	_, err := tx.tx.ExecContext(ctx, `
		UPDATE knowledge_items SET decay_rate = ?, revision_frequency = ?, usage_frequency = ?,
			sleep_quality = ?, last_reviewed = ?, last_used = ?, updated_at = ?
		WHERE id = ?
	`, p.DecayRate, p.RevisionFrequency, p.UsageFrequency, p.SleepQuality,
		millisOrNil(p.LastReviewed), millisOrNil(p.LastUsed), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("save projection %d: %w", id, err)
	}
	return nil
}

// DeleteItem removes an item; its review events and edits go with it via ON
// DELETE CASCADE. Returns false if no such item existed.
func (db *DB) DeleteItem(ctx context.Context, id int64) (bool, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM knowledge_items WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete item %d: %w", id, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var it Item
	var content sql.NullString
	var lastReviewed, lastUsed sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&it.ID, &it.UserID, &it.Topic, &content,
		&it.Attention, &it.Interest, &it.Difficulty,
		&it.BaseMemory, &it.MemoryFloor, &it.InitialSleepQuality, &it.K0,
		&it.DecayRate, &it.RevisionFrequency, &it.UsageFrequency, &it.SleepQuality,
		&lastReviewed, &lastUsed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	it.Content = content.String
	it.LastReviewed = timeOrNil(lastReviewed)
	it.LastUsed = timeOrNil(lastUsed)
	it.CreatedAt = time.UnixMilli(createdAt)
	it.UpdatedAt = time.UnixMilli(updatedAt)
	return &it, nil
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func millisOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
