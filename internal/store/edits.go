package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Edit records a change to an item's decay inputs. It keeps the values the
// edit replaced, which were in effect from the previous edit (or creation)
// until Timestamp.
type Edit struct {
	Seq             int64
	ItemID          int64
	Timestamp       time.Time
	PrevDifficulty  float64
	PrevMemoryFloor float64
}

// AppendEdit appends an edit to the item's history and sets its Seq.
func (tx *Tx) AppendEdit(ctx context.Context, e *Edit) error {
	result, err := tx.tx.ExecContext(ctx, `
		INSERT INTO item_edits (item_id, timestamp, prev_difficulty, prev_memory_floor)
		VALUES (?, ?, ?, ?)
	`, e.ItemID, e.Timestamp.UnixMilli(), e.PrevDifficulty, e.PrevMemoryFloor)
	if err != nil {
		return fmt.Errorf("append edit: %w", err)
	}
	e.Seq, _ = result.LastInsertId()
	e.Timestamp = time.UnixMilli(e.Timestamp.UnixMilli())
	return nil
}

// ListEditsForUser returns the edit histories of all of a user's items, keyed
// by item ID, oldest first.
func (db *DB) ListEditsForUser(ctx context.Context, userID string) (map[int64][]Edit, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT e.seq, e.item_id, e.timestamp, e.prev_difficulty, e.prev_memory_floor
		FROM item_edits e
		JOIN knowledge_items i ON i.id = e.item_id
		WHERE i.user_id = ?
		ORDER BY e.item_id, e.timestamp, e.seq
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list edits for user: %w", err)
	}
	defer rows.Close()

	edits, err := scanEdits(rows)
	if err != nil {
		return nil, err
	}
	byItem := make(map[int64][]Edit)
	for _, e := range edits {
		byItem[e.ItemID] = append(byItem[e.ItemID], e)
	}
	return byItem, nil
}

func scanEdits(rows *sql.Rows) ([]Edit, error) {
	var edits []Edit
	for rows.Next() {
		var e Edit
		var ts int64
		if err := rows.Scan(&e.Seq, &e.ItemID, &ts, &e.PrevDifficulty, &e.PrevMemoryFloor); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		edits = append(edits, e)
	}
	return edits, rows.Err()
}
