package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Review is a single immutable review event. Events for an item are ordered by
// Timestamp, then by Seq (insertion order).
type Review struct {
	Seq            int64
	ItemID         int64
	Timestamp      time.Time
	UsedInPractice bool
	SleepQuality   float64 // sleep_quality_at_time
}

const reviewColumns = `seq, item_id, timestamp, used_in_practice, sleep_quality_at_time`

// AppendReview appends an event to the item's log and sets its Seq.
func (tx *Tx) AppendReview(ctx context.Context, r *Review) error {
	used := 0
	if r.UsedInPractice {
		used = 1
	}
	result, err := tx.tx.ExecContext(ctx, `
		INSERT INTO review_events (item_id, timestamp, used_in_practice, sleep_quality_at_time)
		VALUES (?, ?, ?, ?)
	`, r.ItemID, r.Timestamp.UnixMilli(), used, r.SleepQuality)
	if err != nil {
		return fmt.Errorf("append review: %w", err)
	}
	seq, _ := result.LastInsertId()
	r.Seq = seq
	r.Timestamp = time.UnixMilli(r.Timestamp.UnixMilli())
	return nil
}

// ListReviews returns an item's log in replay order.
func (db *DB) ListReviews(ctx context.Context, itemID int64) ([]Review, error) {
	return listReviews(ctx, db, itemID)
}

// ListReviews returns an item's log in replay order within the transaction.
func (tx *Tx) ListReviews(ctx context.Context, itemID int64) ([]Review, error) {
	return listReviews(ctx, tx.tx, itemID)
}

func listReviews(ctx context.Context, q querier, itemID int64) ([]Review, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+reviewColumns+` FROM review_events
		WHERE item_id = ? ORDER BY timestamp, seq
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()
	return scanReviews(rows)
}

// ListReviewsForUser returns the logs of all of a user's items, keyed by item
// ID, each in replay order.
func (db *DB) ListReviewsForUser(ctx context.Context, userID string) (map[int64][]Review, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.seq, r.item_id, r.timestamp, r.used_in_practice, r.sleep_quality_at_time
		FROM review_events r
		JOIN knowledge_items i ON i.id = r.item_id
		WHERE i.user_id = ?
		ORDER BY r.item_id, r.timestamp, r.seq
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reviews for user: %w", err)
	}
	defer rows.Close()

	reviews, err := scanReviews(rows)
	if err != nil {
		return nil, err
	}
	byItem := make(map[int64][]Review)
	for _, r := range reviews {
		byItem[r.ItemID] = append(byItem[r.ItemID], r)
	}
	return byItem, nil
}

func scanReviews(rows *sql.Rows) ([]Review, error) {
	var reviews []Review
	for rows.Next() {
		var r Review
		var ts int64
		var used int
		if err := rows.Scan(&r.Seq, &r.ItemID, &ts, &used, &r.SleepQuality); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts)
		r.UsedInPractice = used != 0
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
