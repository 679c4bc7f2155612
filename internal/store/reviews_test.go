package store

import (
	"context"
	"testing"
	"time"
)

// appendInTx appends r in a transaction of its own.
func appendInTx(ctx context.Context, db *DB, r *Review) error {
	return db.InTx(ctx, func(tx *Tx) error {
		return tx.AppendReview(ctx, r)
	})
}

func TestAppendAndListReviews(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	item := newItem("alice", "x")
	db.CreateItem(ctx, item)

	base := time.UnixMilli(1_700_000_000_000)
	// Inserted out of time order, plus a tie at base+1h.
	events := []*Review{
		{ItemID: item.ID, Timestamp: base.Add(2 * time.Hour), SleepQuality: 0.9},
		{ItemID: item.ID, Timestamp: base.Add(time.Hour), SleepQuality: 0.5, UsedInPractice: true},
		{ItemID: item.ID, Timestamp: base.Add(time.Hour), SleepQuality: 0.6},
	}
	for _, e := range events {
		if err := appendInTx(ctx, db, e); err != nil {
			t.Fatalf("AppendReview: %v", err)
		}
		if e.Seq == 0 {
			t.Fatal("expected Seq to be assigned")
		}
	}

	got, err := db.ListReviews(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d reviews, want 3", len(got))
	}

	wantSleep := []float64{0.5, 0.6, 0.9}
	for i, w := range wantSleep {
		if got[i].SleepQuality != w {
			t.Errorf("review[%d].SleepQuality = %v, want %v", i, got[i].SleepQuality, w)
		}
	}
	if !got[0].UsedInPractice || got[1].UsedInPractice {
		t.Error("UsedInPractice not round-tripped")
	}
	if got[0].Seq >= got[1].Seq {
		t.Error("ties must be ordered by insertion sequence")
	}
}

func TestListReviewsForUser(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	a1 := newItem("alice", "a1")
	a2 := newItem("alice", "a2")
	b1 := newItem("bob", "b1")
	for _, it := range []*Item{a1, a2, b1} {
		db.CreateItem(ctx, it)
	}
	now := time.Now()
	appendInTx(ctx, db, &Review{ItemID: a1.ID, Timestamp: now, SleepQuality: 0.8})
	appendInTx(ctx, db, &Review{ItemID: a1.ID, Timestamp: now.Add(time.Minute), SleepQuality: 0.8})
	appendInTx(ctx, db, &Review{ItemID: b1.ID, Timestamp: now, SleepQuality: 0.8})

	byItem, err := db.ListReviewsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListReviewsForUser: %v", err)
	}
	if len(byItem[a1.ID]) != 2 {
		t.Errorf("a1 reviews = %d, want 2", len(byItem[a1.ID]))
	}
	if len(byItem[a2.ID]) != 0 {
		t.Errorf("a2 reviews = %d, want 0", len(byItem[a2.ID]))
	}
	if _, ok := byItem[b1.ID]; ok {
		t.Error("bob's reviews leaked into alice's log")
	}
}
