package engine

import (
	"context"

	"github.com/lazypower/decaytrack/internal/store"
)

// SubmitReview records a review of one of userID's items and returns the item
// as of the review. sleepQuality defaults to the item's latest snapshot when nil.
//
// The event append and the projection update commit in one transaction, and
// the projection is always the fold of the full log, so a retried or
// interrupted review never leaves the cache out of step with the log.
func (e *Engine) SubmitReview(ctx context.Context, userID string, id int64, usedInPractice bool, sleepQuality *float64) (*ItemView, error) {
	if sleepQuality != nil {
		if err := checkUnit("sleep_quality", *sleepQuality); err != nil {
			return nil, err
		}
	}

	unlock := e.locks.lock(id)
	defer unlock()

	now := e.now()
	var item *store.Item
	err := e.DB.InTx(ctx, func(tx *store.Tx) error {
		var err error
		item, err = tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil || item.UserID != userID {
			return notFound(id)
		}

		sleep := item.SleepQuality
		if sleepQuality != nil {
			sleep = *sleepQuality
		}
		ev := &store.Review{
			ItemID:         id,
			Timestamp:      now,
			UsedInPractice: usedInPractice,
			SleepQuality:   sleep,
		}
		if err := tx.AppendReview(ctx, ev); err != nil {
			return err
		}

		events, err := tx.ListReviews(ctx, id)
		if err != nil {
			return err
		}
		st := e.Model.Replay(item, events)
		if err := tx.SaveProjection(ctx, id, st.Projection); err != nil {
			return err
		}
		item.Projection = st.Projection
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Metrics.RecordReview(usedInPractice)
	e.Logger.Debug("review submitted", "item_id", id, "practice", usedInPractice, "decay_rate", item.DecayRate)

	v, err := e.view(item, now)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
