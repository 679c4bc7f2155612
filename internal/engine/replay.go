package engine

import (
	"time"

	"github.com/lazypower/decaytrack/internal/store"
)

// State is an item's decay state as of some instant, derived by folding its
// review log.
type State struct {
	store.Projection
	Anchor time.Time // later of created_at and the latest folded review
}

// Replay folds events, which must be in log order, into the state they imply
// for item. It reads only the item's static inputs and creation snapshot, never
// its cached projection, so Replay of the same log always yields the same State.
func (m Model) Replay(item *store.Item, events []store.Review) State {
	st := State{Anchor: item.CreatedAt}
	st.SleepQuality = item.InitialSleepQuality

	for i := range events {
		ev := &events[i]
		ts := ev.Timestamp
		if ev.UsedInPractice {
			st.UsageFrequency += m.PracticeWeight
			st.LastUsed = &ts
		} else {
			st.RevisionFrequency += m.RevisionWeight
		}
		st.SleepQuality = ev.SleepQuality
		st.LastReviewed = &ts
		if ts.After(st.Anchor) {
			st.Anchor = ts
		}
	}

	st.DecayRate = m.DecayRate(item.Difficulty, st.SleepQuality, st.RevisionFrequency, st.UsageFrequency)
	return st
}

// ReplayAt folds the prefix of events with timestamp at or before t, under
// the difficulty and memory floor the item had at t.
func (m Model) ReplayAt(item *store.Item, events []store.Review, edits []store.Edit, t time.Time) State {
	return m.Replay(inputsAt(item, edits, t), eventsUpTo(events, t))
}

// RetentionAt returns the item's retention at t as implied by its logs.
func (m Model) RetentionAt(item *store.Item, events []store.Review, edits []store.Edit, t time.Time) float64 {
	at := inputsAt(item, edits, t)
	st := m.Replay(at, eventsUpTo(events, t))
	return Retention(at.K0, st.DecayRate, at.MemoryFloor, days(t.Sub(st.Anchor)))
}

// inputsAt returns item as it stood at t. Edits are oldest first; the first
// one made after t holds the values that were in effect at t.
func inputsAt(item *store.Item, edits []store.Edit, t time.Time) *store.Item {
	for i := range edits {
		if edits[i].Timestamp.After(t) {
			past := *item
			past.Difficulty = edits[i].PrevDifficulty
			past.MemoryFloor = edits[i].PrevMemoryFloor
			return &past
		}
	}
	return item
}

func eventsUpTo(events []store.Review, t time.Time) []store.Review {
	n := 0
	for n < len(events) && !events[n].Timestamp.After(t) {
		n++
	}
	return events[:n]
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}

// sameProjection reports whether two projections agree to the precision the
// store keeps (milliseconds for timestamps).
func sameProjection(a, b store.Projection) bool {
	const eps = 1e-12
	near := func(x, y float64) bool {
		d := x - y
		return d < eps && d > -eps
	}
	return near(a.DecayRate, b.DecayRate) &&
		near(a.RevisionFrequency, b.RevisionFrequency) &&
		near(a.UsageFrequency, b.UsageFrequency) &&
		near(a.SleepQuality, b.SleepQuality) &&
		sameTime(a.LastReviewed, b.LastReviewed) &&
		sameTime(a.LastUsed, b.LastUsed)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UnixMilli() == b.UnixMilli()
}
