package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lazypower/decaytrack/internal/alerts"
	"github.com/lazypower/decaytrack/internal/metrics"
	"github.com/lazypower/decaytrack/internal/store"
)

// DefaultAlertThreshold is the retention percentage below which an item is
// reported by CheckDecay.
const DefaultAlertThreshold = 60

// Engine owns the decay model and applies it to the item catalog and review
// log held in the store.
type Engine struct {
	DB      *store.DB
	Model   Model
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Now is the engine clock. Tests replace it.
	Now func() time.Time

	publisher      alerts.Publisher
	alertThreshold float64

	locks    itemLocks
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Engine.
func New(db *store.DB, model Model) *Engine {
	return &Engine{
		DB:             db,
		Model:          model,
		Metrics:        metrics.NewMetrics(),
		Logger:         slog.Default(),
		Now:            time.Now,
		alertThreshold: DefaultAlertThreshold,
		stopCh:         make(chan struct{}),
	}
}

// SetPublisher configures where CheckDecay sends alerts and the retention
// threshold below which it does.
func (e *Engine) SetPublisher(p alerts.Publisher, threshold float64) {
	e.publisher = p
	if threshold > 0 {
		e.alertThreshold = threshold
	}
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.Logger = l
	}
}

func (e *Engine) now() time.Time {
	// Millisecond precision matches what the store keeps.
	return time.UnixMilli(e.Now().UnixMilli())
}

// CheckDecay publishes an alert for every item, across all users, whose
// current retention is below the alert threshold. It returns the number of
// alerts published.
func (e *Engine) CheckDecay(ctx context.Context) (int, error) {
	if e.publisher == nil {
		return 0, nil
	}
	e.Metrics.DecayChecks.Inc()

	items, err := e.DB.ListAllItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("check decay: %w", err)
	}

	now := e.now()
	published := 0
	for i := range items {
		v, err := e.view(&items[i], now)
		if err != nil {
			e.Logger.Error("check decay: skipping item", "item_id", items[i].ID, "err", err)
			continue
		}
		if v.CurrentRetention >= e.alertThreshold {
			continue
		}

		err = e.publisher.Publish(ctx, alerts.Alert{
			ItemID:    v.ID,
			UserID:    v.UserID,
			Topic:     v.Topic,
			Retention: v.CurrentRetention,
			At:        now,
		})
		e.Metrics.RecordAlert(err)
		if err != nil {
			e.Logger.Error("check decay: publish", "item_id", v.ID, "err", err)
			continue
		}
		published++
	}
	return published, nil
}

// StartAlertTimer runs CheckDecay on startup and then every interval.
func (e *Engine) StartAlertTimer(interval time.Duration) {
	run := func() {
		if n, err := e.CheckDecay(context.Background()); err != nil {
			e.Logger.Error("decay check failed", "err", err)
		} else if n > 0 {
			e.Logger.Info("decay check", "alerts", n)
		}
	}

	// Run once at startup
	run()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				run()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// RebuildResult summarizes a Rebuild pass.
type RebuildResult struct {
	Checked  int
	Repaired int
}

// Rebuild replays every item's review log and rewrites projections that no
// longer match the fold. A projection can drift only if a write was interrupted
// or the model constants changed; replaying an intact log repairs nothing.
func (e *Engine) Rebuild(ctx context.Context) (RebuildResult, error) {
	items, err := e.DB.ListAllItems(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("rebuild: %w", err)
	}

	repaired := make([]bool, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range items {
		i := i
		g.Go(func() error {
			fixed, err := e.rebuildItem(gctx, items[i].ID)
			if err != nil {
				return err
			}
			repaired[i] = fixed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RebuildResult{}, fmt.Errorf("rebuild: %w", err)
	}

	res := RebuildResult{Checked: len(items)}
	for i, fixed := range repaired {
		if fixed {
			res.Repaired++
			e.Metrics.Rebuilds.WithLabelValues("repaired").Inc()
			e.Logger.Warn("rebuild: repaired projection", "item_id", items[i].ID)
		} else {
			e.Metrics.Rebuilds.WithLabelValues("ok").Inc()
		}
	}
	return res, nil
}

func (e *Engine) rebuildItem(ctx context.Context, id int64) (bool, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	var fixed bool
	err := e.DB.InTx(ctx, func(tx *store.Tx) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil || item == nil {
			// Deleted since the listing.
			return err
		}
		st, err := e.reproject(ctx, tx, item)
		if err != nil {
			return err
		}
		fixed = !sameProjection(item.Projection, st.Projection)
		return nil
	})
	return fixed, err
}

// reproject replays the item's log within tx and saves the result if it
// differs from the cached projection.
func (e *Engine) reproject(ctx context.Context, tx *store.Tx, item *store.Item) (State, error) {
	events, err := tx.ListReviews(ctx, item.ID)
	if err != nil {
		return State{}, err
	}
	st := e.Model.Replay(item, events)
	if !sameProjection(item.Projection, st.Projection) {
		if err := tx.SaveProjection(ctx, item.ID, st.Projection); err != nil {
			return State{}, err
		}
	}
	return st, nil
}
