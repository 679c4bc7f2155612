package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateItem(t *testing.T) {
	e, clock := testEngine(t)

	in := exampleInput("Go interfaces")
	in.Content = "implicit satisfaction"
	v := mustCreate(t, e, in)

	assert.NotZero(t, v.ID)
	assert.Equal(t, testUser, v.UserID)
	assert.Equal(t, "implicit satisfaction", v.Content)
	assert.InDelta(t, 68.0, v.K0, eps)
	assert.InDelta(t, 68.0, v.CurrentRetention, eps)
	assert.Zero(t, v.DaysSinceReview)
	assert.True(t, v.CreatedAt.Equal(clock.Now()))

	k := e.Model.DecayRate(0.5, 0.9, 0, 0)
	assert.InDelta(t, k, v.DecayRate, eps)
	assert.InDelta(t, math.Ln2/k, v.HalfLifeDays, eps)
	assert.Equal(t, 0.9, v.SleepQuality)
	assert.Nil(t, v.LastReviewed)

	// A 10% floor never falls to the 10% forget threshold.
	assert.False(t, v.Forgets())
}

func TestCreateItemValidationWritesNothing(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	in := exampleInput("x")
	in.MemoryFloor = 0.5
	_, err := e.CreateItem(ctx, testUser, in)
	require.ErrorIs(t, err, ErrValidation)

	items, err := e.ListItems(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGetItemNotFound(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	_, err := e.GetItem(ctx, testUser, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	v := mustCreate(t, e, exampleInput("x"))
	_, err = e.GetItem(ctx, "mallory", v.ID)
	assert.ErrorIs(t, err, ErrNotFound, "items are invisible to other users")
}

func TestReadProjectsElapsedTime(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()

	in := exampleInput("x")
	in.MemoryFloor = 0.05
	v := mustCreate(t, e, in)
	require.True(t, v.Forgets())
	initial := v.DaysToForget

	clock.Advance(36 * time.Hour)
	got, err := e.GetItem(ctx, testUser, v.ID)
	require.NoError(t, err)

	assert.InDelta(t, 1.5, got.DaysSinceReview, eps)
	assert.InDelta(t, Retention(68, v.DecayRate, 0.05, 1.5), got.CurrentRetention, eps)
	assert.InDelta(t, initial-1.5, got.DaysToForget, 1e-6)
	assert.InDelta(t, v.HalfLifeDays, got.HalfLifeDays, eps)

	// Past the forget point the remaining days bottom out at zero.
	clock.Advance(365 * 24 * time.Hour)
	got, err = e.GetItem(ctx, testUser, v.ID)
	require.NoError(t, err)
	assert.Zero(t, got.DaysToForget)
	assert.InDelta(t, 5.0, got.CurrentRetention, 1e-3)
}

func TestListItemsScopedByUser(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, exampleInput("a"))
	_, err := e.CreateItem(ctx, "bob", exampleInput("b"))
	require.NoError(t, err)
	c := mustCreate(t, e, exampleInput("c"))

	items, err := e.ListItems(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, c.ID, items[1].ID)
}

func TestListDecaying(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()

	weak := mustCreate(t, e, exampleInput("weak"))
	strong := exampleInput("strong")
	strong.Attention, strong.Interest, strong.BaseMemory = 1, 1, 1
	mustCreate(t, e, strong)

	got, err := e.ListDecaying(ctx, testUser, 60)
	require.NoError(t, err)
	assert.Empty(t, got)

	clock.Advance(3 * 24 * time.Hour)
	got, err = e.ListDecaying(ctx, testUser, 60)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, weak.ID, got[0].ID)

	got, err = e.ListDecaying(ctx, testUser, 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	for _, bad := range []float64{0, -1, 101, math.NaN()} {
		_, err = e.ListDecaying(ctx, testUser, bad)
		assert.ErrorIs(t, err, ErrValidation, "threshold=%v", bad)
	}
}

func TestUpdateItemKeepsK0Frozen(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()

	v := mustCreate(t, e, exampleInput("old"))
	clock.Advance(time.Hour)

	topic := "new"
	attention := 0.1
	difficulty := 0.9
	got, err := e.UpdateItem(ctx, testUser, v.ID, ItemUpdate{Topic: &topic, Attention: &attention, Difficulty: &difficulty})
	require.NoError(t, err)

	assert.Equal(t, "new", got.Topic)
	assert.Equal(t, 0.1, got.Attention)
	assert.InDelta(t, 68.0, got.K0, eps, "K0 is not re-derived")
	assert.InDelta(t, e.Model.DecayRate(0.9, 0.9, 0, 0), got.DecayRate, eps)
	assert.True(t, got.CreatedAt.Equal(v.CreatedAt))
}

func TestUpdateItemProjectionMatchesReplay(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()

	v := mustCreate(t, e, exampleInput("x"))
	for i := 0; i < 3; i++ {
		clock.Advance(24 * time.Hour)
		_, err := e.SubmitReview(ctx, testUser, v.ID, i%2 == 0, nil)
		require.NoError(t, err)
	}

	difficulty := 0.1
	_, err := e.UpdateItem(ctx, testUser, v.ID, ItemUpdate{Difficulty: &difficulty})
	require.NoError(t, err)

	stored, err := e.DB.GetItem(ctx, v.ID)
	require.NoError(t, err)
	events, err := e.DB.ListReviews(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, sameProjection(stored.Projection, e.Model.Replay(stored, events).Projection))
}

func TestUpdateItemErrors(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	v := mustCreate(t, e, exampleInput("x"))

	bad := 2.0
	_, err := e.UpdateItem(ctx, testUser, v.ID, ItemUpdate{Interest: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	topic := "y"
	_, err = e.UpdateItem(ctx, "mallory", v.ID, ItemUpdate{Topic: &topic})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.UpdateItem(ctx, testUser, 999, ItemUpdate{Topic: &topic})
	assert.ErrorIs(t, err, ErrNotFound)

	// An empty update is a read.
	got, err := e.UpdateItem(ctx, testUser, v.ID, ItemUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "x", got.Topic)
}

func TestDeleteItem(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	v := mustCreate(t, e, exampleInput("x"))
	_, err := e.SubmitReview(ctx, testUser, v.ID, false, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, e.DeleteItem(ctx, "mallory", v.ID), ErrNotFound)
	_, err = e.GetItem(ctx, testUser, v.ID)
	require.NoError(t, err, "another user's delete must not remove the item")

	require.NoError(t, e.DeleteItem(ctx, testUser, v.ID))

	_, err = e.GetItem(ctx, testUser, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.Reviews(ctx, testUser, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	left, err := e.DB.ListReviews(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	assert.ErrorIs(t, e.DeleteItem(ctx, testUser, v.ID), ErrNotFound)
}

func TestInvariantViolation(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	v := mustCreate(t, e, exampleInput("x"))

	_, err := e.DB.Exec("UPDATE knowledge_items SET decay_rate = 0 WHERE id = ?", v.ID)
	require.NoError(t, err)

	_, err = e.GetItem(ctx, testUser, v.ID)
	assert.ErrorIs(t, err, ErrInvariant)
	_, err = e.Summary(ctx, testUser)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestExport(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, exampleInput("a"))
	mustCreate(t, e, exampleInput("b"))
	clock.Advance(time.Hour)
	_, err := e.SubmitReview(ctx, testUser, a.ID, true, nil)
	require.NoError(t, err)

	out, err := e.Export(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, out[0].Reviews, 1)
	assert.Empty(t, out[1].Reviews)
	assert.True(t, out[0].Reviews[0].UsedInPractice)
}
