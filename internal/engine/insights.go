package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultLimit        = 10
	MaxLimit            = 100
	DefaultTimelineDays = 30
	MaxTimelineDays     = 365
	DefaultForgetDays   = 30
	MaxForgetDays       = 90

	goodSleep = 0.9
	poorSleep = 0.3

	nearFloorMargin = 5.0
)

// Summary aggregates a user's items at the current instant.
type Summary struct {
	TotalItems     int
	AvgRetention   float64
	AvgHalfLife    float64
	ItemsBelow60   int
	ItemsBelow40   int
	ItemsNearFloor int
}

// WeakItem is an entry of the weakest and hardest rankings.
type WeakItem struct {
	ID               int64
	Topic            string
	CurrentRetention float64
	HalfLifeDays     float64
	DecayRate        float64
}

// TimelinePoint is the average retention of a user's items at the end of one
// UTC calendar day.
type TimelinePoint struct {
	Date         time.Time // midnight UTC
	AvgRetention float64
	Items        int // items that existed on that day
}

// ForgetForecast projects when an item will reach the forget threshold.
type ForgetForecast struct {
	ID         int64
	Topic      string
	ForgetDate time.Time
	DaysLeft   float64
}

// SleepSensitivity compares an item's decay rate under good and poor sleep.
type SleepSensitivity struct {
	ID         int64
	Topic      string
	CurrentK   float64
	KGoodSleep float64
	KPoorSleep float64
	Multiplier float64 // KPoorSleep / KGoodSleep
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &ValidationError{Field: field, Msg: fmt.Sprintf("must be within [%d, %d], got %d", lo, hi, v)}
	}
	return nil
}

func (e *Engine) observe(query string, start time.Time) {
	e.Metrics.RecordQuery(query, time.Since(start).Seconds())
}

// Summary returns counts and means over userID's items. Means are 0 when the
// user has no items.
func (e *Engine) Summary(ctx context.Context, userID string) (*Summary, error) {
	defer e.observe("summary", time.Now())

	views, err := e.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	s := &Summary{TotalItems: len(views)}
	if len(views) == 0 {
		return s, nil
	}
	var sumRet, sumHalf float64
	for _, v := range views {
		sumRet += v.CurrentRetention
		sumHalf += v.HalfLifeDays
		if v.CurrentRetention < 60 {
			s.ItemsBelow60++
		}
		if v.CurrentRetention < 40 {
			s.ItemsBelow40++
		}
		if v.CurrentRetention <= v.MemoryFloor*100+nearFloorMargin {
			s.ItemsNearFloor++
		}
	}
	n := float64(len(views))
	s.AvgRetention = sumRet / n
	s.AvgHalfLife = sumHalf / n
	return s, nil
}

func weakItems(views []ItemView, limit int) []WeakItem {
	if len(views) > limit {
		views = views[:limit]
	}
	out := make([]WeakItem, len(views))
	for i, v := range views {
		out[i] = WeakItem{
			ID:               v.ID,
			Topic:            v.Topic,
			CurrentRetention: v.CurrentRetention,
			HalfLifeDays:     v.HalfLifeDays,
			DecayRate:        v.DecayRate,
		}
	}
	return out
}

// Weakest returns up to limit items with the lowest current retention.
func (e *Engine) Weakest(ctx context.Context, userID string, limit int) ([]WeakItem, error) {
	defer e.observe("weakest", time.Now())
	if err := checkRange("limit", limit, 1, MaxLimit); err != nil {
		return nil, err
	}

	views, err := e.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].CurrentRetention != views[j].CurrentRetention {
			return views[i].CurrentRetention < views[j].CurrentRetention
		}
		return views[i].ID < views[j].ID
	})
	return weakItems(views, limit), nil
}

// Hardest returns up to limit items with the shortest half-life.
func (e *Engine) Hardest(ctx context.Context, userID string, limit int) ([]WeakItem, error) {
	defer e.observe("hardest", time.Now())
	if err := checkRange("limit", limit, 1, MaxLimit); err != nil {
		return nil, err
	}

	views, err := e.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].HalfLifeDays != views[j].HalfLifeDays {
			return views[i].HalfLifeDays < views[j].HalfLifeDays
		}
		return views[i].ID < views[j].ID
	})
	return weakItems(views, limit), nil
}

// Timeline returns one point per UTC calendar day for the past days days,
// oldest first, ending today. Each point replays every item's log up to the
// end of that day (or now, for today) under the inputs the item had then, so
// later reviews and edits never leak into earlier points. Items created after
// a day's instant are left out of it.
func (e *Engine) Timeline(ctx context.Context, userID string, days int) ([]TimelinePoint, error) {
	defer e.observe("timeline", time.Now())
	if err := checkRange("days", days, 1, MaxTimelineDays); err != nil {
		return nil, err
	}

	items, err := e.DB.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []TimelinePoint{}, nil
	}
	logs, err := e.DB.ListReviewsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	edits, err := e.DB.ListEditsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	points := make([]TimelinePoint, days)
	g, gctx := errgroup.WithContext(ctx)
	for i := range points {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			day := today.AddDate(0, 0, i-(days-1))
			at := day.AddDate(0, 0, 1).Add(-time.Millisecond)
			if at.After(now) {
				at = now
			}

			p := TimelinePoint{Date: day}
			var sum float64
			for j := range items {
				if items[j].CreatedAt.After(at) {
					continue
				}
				id := items[j].ID
				sum += e.Model.RetentionAt(&items[j], logs[id], edits[id], at)
				p.Items++
			}
			if p.Items > 0 {
				p.AvgRetention = sum / float64(p.Items)
			}
			points[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// UpcomingForgets returns items that reach the forget threshold within days
// days from now, soonest first. Items that never do are left out.
func (e *Engine) UpcomingForgets(ctx context.Context, userID string, days int) ([]ForgetForecast, error) {
	defer e.observe("upcoming_forgets", time.Now())
	if err := checkRange("days", days, 1, MaxForgetDays); err != nil {
		return nil, err
	}

	views, err := e.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	out := []ForgetForecast{}
	for _, v := range views {
		if !v.Forgets() || v.DaysToForget > float64(days) {
			continue
		}
		out = append(out, ForgetForecast{
			ID:         v.ID,
			Topic:      v.Topic,
			ForgetDate: now.Add(time.Duration(v.DaysToForget * 24 * float64(time.Hour))),
			DaysLeft:   v.DaysToForget,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysLeft != out[j].DaysLeft {
			return out[i].DaysLeft < out[j].DaysLeft
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MostReviewed returns up to limit items with the highest combined revision
// and usage frequency.
func (e *Engine) MostReviewed(ctx context.Context, userID string, limit int) ([]ItemView, error) {
	defer e.observe("most_reviewed", time.Now())
	if err := checkRange("limit", limit, 1, MaxLimit); err != nil {
		return nil, err
	}

	views, err := e.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	total := func(v ItemView) float64 { return v.RevisionFrequency + v.UsageFrequency }
	sort.SliceStable(views, func(i, j int) bool {
		if ti, tj := total(views[i]), total(views[j]); ti != tj {
			return ti > tj
		}
		return views[i].ID < views[j].ID
	})
	if len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

// SleepImpact evaluates each item's decay rate under good (0.9) and poor (0.3)
// sleep with its difficulty and frequencies held fixed, most sensitive first.
func (e *Engine) SleepImpact(ctx context.Context, userID string) ([]SleepSensitivity, error) {
	defer e.observe("sleep_impact", time.Now())

	views, err := e.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]SleepSensitivity, 0, len(views))
	for _, v := range views {
		good := e.Model.DecayRate(v.Difficulty, goodSleep, v.RevisionFrequency, v.UsageFrequency)
		poor := e.Model.DecayRate(v.Difficulty, poorSleep, v.RevisionFrequency, v.UsageFrequency)
		out = append(out, SleepSensitivity{
			ID:         v.ID,
			Topic:      v.Topic,
			CurrentK:   v.DecayRate,
			KGoodSleep: good,
			KPoorSleep: poor,
			Multiplier: poor / good,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		di := out[i].KPoorSleep - out[i].KGoodSleep
		dj := out[j].KPoorSleep - out[j].KGoodSleep
		if di != dj {
			return di > dj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
