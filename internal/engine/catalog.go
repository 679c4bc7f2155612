package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lazypower/decaytrack/internal/store"
)

// ItemView is an item together with the fields derived from it at read time.
type ItemView struct {
	store.Item

	CurrentRetention float64
	HalfLifeDays     float64
	DaysToForget     float64 // remaining from now; +Inf when the floor is above the forget threshold
	DaysSinceReview  float64 // since the anchor (latest review, else creation)
}

// Forgets reports whether the item ever reaches the forget threshold.
func (v ItemView) Forgets() bool {
	return !math.IsInf(v.DaysToForget, 1)
}

// view derives the read-time fields of item as of now from its cached
// projection.
func (e *Engine) view(item *store.Item, now time.Time) (ItemView, error) {
	k := item.DecayRate
	if !(k > 0) || math.IsInf(k, 0) {
		e.Logger.Error("stored decay rate is not positive", "item_id", item.ID, "decay_rate", k)
		return ItemView{}, fmt.Errorf("item %d: decay_rate %v: %w", item.ID, k, ErrInvariant)
	}

	anchor := item.CreatedAt
	if item.LastReviewed != nil && item.LastReviewed.After(anchor) {
		anchor = *item.LastReviewed
	}
	elapsed := math.Max(0, days(now.Sub(anchor)))

	v := ItemView{
		Item:             *item,
		CurrentRetention: Retention(item.K0, k, item.MemoryFloor, elapsed),
		HalfLifeDays:     HalfLife(k),
		DaysSinceReview:  elapsed,
	}
	v.DaysToForget = math.Inf(1)
	if d, ok := DaysToForget(item.K0, k, item.MemoryFloor, e.Model.ForgetThreshold); ok {
		v.DaysToForget = math.Max(0, d-elapsed)
	}
	return v, nil
}

func (e *Engine) views(items []store.Item, now time.Time) ([]ItemView, error) {
	out := make([]ItemView, 0, len(items))
	for i := range items {
		v, err := e.view(&items[i], now)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CreateItem validates in and stores a new item for userID with no reviews.
func (e *Engine) CreateItem(ctx context.Context, userID string, in ItemInput) (*ItemView, error) {
	in, err := validateInput(in)
	if err != nil {
		return nil, err
	}

	item := &store.Item{
		UserID:              userID,
		Topic:               in.Topic,
		Content:             in.Content,
		Attention:           in.Attention,
		Interest:            in.Interest,
		Difficulty:          in.Difficulty,
		BaseMemory:          in.BaseMemory,
		MemoryFloor:         in.MemoryFloor,
		InitialSleepQuality: in.SleepQuality,
		K0:                  K0(in.Attention, in.Interest, in.BaseMemory),
		CreatedAt:           e.now(),
	}
	item.Projection = e.Model.Replay(item, nil).Projection

	if err := e.DB.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	e.Metrics.ItemsCreated.Inc()
	e.Logger.Debug("item created", "item_id", item.ID, "user_id", userID, "k0", item.K0)

	v, err := e.view(item, e.now())
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// getOwned loads an item and hides it from users who do not own it.
func (e *Engine) getOwned(ctx context.Context, userID string, id int64) (*store.Item, error) {
	item, err := e.DB.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil || item.UserID != userID {
		return nil, notFound(id)
	}
	return item, nil
}

// GetItem returns one of userID's items.
func (e *Engine) GetItem(ctx context.Context, userID string, id int64) (*ItemView, error) {
	item, err := e.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	v, err := e.view(item, e.now())
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListItems returns all of userID's items ordered by id.
func (e *Engine) ListItems(ctx context.Context, userID string) ([]ItemView, error) {
	items, err := e.DB.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.views(items, e.now())
}

// ListDecaying returns userID's items whose current retention is below
// threshold percent.
func (e *Engine) ListDecaying(ctx context.Context, userID string, threshold float64) ([]ItemView, error) {
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 100 {
		return nil, &ValidationError{Field: "threshold", Msg: "must be within (0, 100]"}
	}
	all, err := e.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemView, 0, len(all))
	for _, v := range all {
		if v.CurrentRetention < threshold {
			out = append(out, v)
		}
	}
	return out, nil
}

// UpdateItem applies a partial update to an item's static inputs. K0 stays
// frozen. Changes to difficulty or memory_floor are logged as edits so history
// queries keep the old values before the edit. The projection is replayed
// afterwards so it keeps matching the log under the new inputs.
func (e *Engine) UpdateItem(ctx context.Context, userID string, id int64, u ItemUpdate) (*ItemView, error) {
	u, err := validateUpdate(u)
	if err != nil {
		return nil, err
	}
	if u.empty() {
		return e.GetItem(ctx, userID, id)
	}

	unlock := e.locks.lock(id)
	defer unlock()

	var updated *store.Item
	err = e.DB.InTx(ctx, func(tx *store.Tx) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil || item.UserID != userID {
			return notFound(id)
		}

		patch := store.ItemPatch{
			Topic:       u.Topic,
			Content:     u.Content,
			Attention:   u.Attention,
			Interest:    u.Interest,
			Difficulty:  u.Difficulty,
			BaseMemory:  u.BaseMemory,
			MemoryFloor: u.MemoryFloor,
		}
		if err := tx.UpdateItem(ctx, id, patch); err != nil {
			return err
		}
		if changesDecayInputs(item, u) {
			edit := &store.Edit{
				ItemID:          id,
				Timestamp:       e.now(),
				PrevDifficulty:  item.Difficulty,
				PrevMemoryFloor: item.MemoryFloor,
			}
			if err := tx.AppendEdit(ctx, edit); err != nil {
				return err
			}
		}

		if updated, err = tx.GetItem(ctx, id); err != nil {
			return err
		}
		st, err := e.reproject(ctx, tx, updated)
		if err != nil {
			return err
		}
		updated.Projection = st.Projection
		return nil
	})
	if err != nil {
		return nil, err
	}

	v, err := e.view(updated, e.now())
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// changesDecayInputs reports whether u moves an input that replay reads at a
// point in time. Such changes are logged so past retention keeps its old value.
func changesDecayInputs(item *store.Item, u ItemUpdate) bool {
	return (u.Difficulty != nil && *u.Difficulty != item.Difficulty) ||
		(u.MemoryFloor != nil && *u.MemoryFloor != item.MemoryFloor)
}

// DeleteItem removes one of userID's items and its review log.
func (e *Engine) DeleteItem(ctx context.Context, userID string, id int64) error {
	unlock := e.locks.lock(id)
	defer unlock()

	if _, err := e.getOwned(ctx, userID, id); err != nil {
		return err
	}
	ok, err := e.DB.DeleteItem(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id)
	}
	e.Metrics.ItemsDeleted.Inc()
	e.Logger.Debug("item deleted", "item_id", id, "user_id", userID)
	return nil
}

// Reviews returns the review log of one of userID's items, oldest first.
func (e *Engine) Reviews(ctx context.Context, userID string, id int64) ([]store.Review, error) {
	if _, err := e.getOwned(ctx, userID, id); err != nil {
		return nil, err
	}
	return e.DB.ListReviews(ctx, id)
}

// ItemHistory is an item with its full review log.
type ItemHistory struct {
	ItemView
	Reviews []store.Review
}

// Export returns every item of userID with its review log.
func (e *Engine) Export(ctx context.Context, userID string) ([]ItemHistory, error) {
	views, err := e.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	logs, err := e.DB.ListReviewsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemHistory, 0, len(views))
	for _, v := range views {
		out = append(out, ItemHistory{ItemView: v, Reviews: logs[v.ID]})
	}
	return out, nil
}
