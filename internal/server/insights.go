package server

import (
	"net/http"
	"time"

	"github.com/lazypower/decaytrack/internal/engine"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.Summary(r.Context(), userFrom(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_items":      sum.TotalItems,
		"avg_retention":    pct(sum.AvgRetention),
		"avg_half_life":    days(sum.AvgHalfLife),
		"items_below_60":   sum.ItemsBelow60,
		"items_below_40":   sum.ItemsBelow40,
		"items_near_floor": sum.ItemsNearFloor,
	})
}

type weakItemJSON struct {
	ID               int64   `json:"id"`
	Topic            string  `json:"topic"`
	CurrentRetention float64 `json:"current_retention"`
	HalfLifeDays     float64 `json:"half_life_days"`
	DecayRate        float64 `json:"decay_rate"`
}

func toWeakJSON(items []engine.WeakItem) []weakItemJSON {
	out := make([]weakItemJSON, len(items))
	for i, it := range items {
		out[i] = weakItemJSON{
			ID:               it.ID,
			Topic:            it.Topic,
			CurrentRetention: pct(it.CurrentRetention),
			HalfLifeDays:     days(it.HalfLifeDays),
			DecayRate:        rate(it.DecayRate),
		}
	}
	return out
}

func (s *Server) handleWeakest(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", engine.DefaultLimit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	items, err := s.engine.Weakest(r.Context(), userFrom(r), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeakJSON(items))
}

func (s *Server) handleHardest(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", engine.DefaultLimit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	items, err := s.engine.Hardest(r.Context(), userFrom(r), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeakJSON(items))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "days", engine.DefaultTimelineDays)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	points, err := s.engine.Timeline(r.Context(), userFrom(r), n)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	type pointJSON struct {
		Date      string  `json:"date"`
		Retention float64 `json:"retention"`
		Items     int     `json:"items"`
	}
	out := make([]pointJSON, len(points))
	for i, p := range points {
		out[i] = pointJSON{
			Date:      p.Date.Format(time.DateOnly),
			Retention: pct(p.AvgRetention),
			Items:     p.Items,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpcomingForgets(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "days", engine.DefaultForgetDays)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	forecasts, err := s.engine.UpcomingForgets(r.Context(), userFrom(r), n)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	type forecastJSON struct {
		ID         int64     `json:"id"`
		Topic      string    `json:"topic"`
		ForgetDate time.Time `json:"forget_date"`
		DaysLeft   float64   `json:"days_left"`
	}
	out := make([]forecastJSON, len(forecasts))
	for i, f := range forecasts {
		out[i] = forecastJSON{
			ID:         f.ID,
			Topic:      f.Topic,
			ForgetDate: f.ForgetDate.UTC(),
			DaysLeft:   days(f.DaysLeft),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMostReviewed(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", engine.DefaultLimit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	views, err := s.engine.MostReviewed(r.Context(), userFrom(r), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemsJSON(views))
}

func (s *Server) handleSleepImpact(w http.ResponseWriter, r *http.Request) {
	items, err := s.engine.SleepImpact(r.Context(), userFrom(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	type sleepJSON struct {
		ID         int64   `json:"id"`
		Topic      string  `json:"topic"`
		CurrentK   float64 `json:"current_k"`
		KGoodSleep float64 `json:"k_good_sleep"`
		KPoorSleep float64 `json:"k_poor_sleep"`
		Multiplier float64 `json:"multiplier"`
	}
	out := make([]sleepJSON, len(items))
	for i, it := range items {
		out[i] = sleepJSON{
			ID:         it.ID,
			Topic:      it.Topic,
			CurrentK:   rate(it.CurrentK),
			KGoodSleep: rate(it.KGoodSleep),
			KPoorSleep: rate(it.KPoorSleep),
			Multiplier: round(it.Multiplier, 2),
		}
	}
	writeJSON(w, http.StatusOK, out)
}
