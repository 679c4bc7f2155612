package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/lazypower/decaytrack/internal/engine"
	"github.com/lazypower/decaytrack/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine errors onto status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Presentation precision. Values are rounded here and nowhere else.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func pct(v float64) float64  { return round(v, 1) }
func days(v float64) float64 { return round(v, 1) }
func rate(v float64) float64 { return round(v, 4) }
func freq(v float64) float64 { return round(v, 3) }

type itemJSON struct {
	ID                int64      `json:"id"`
	UserID            string     `json:"user_id"`
	Topic             string     `json:"topic"`
	Content           string     `json:"content,omitempty"`
	Attention         float64    `json:"attention"`
	Interest          float64    `json:"interest"`
	Difficulty        float64    `json:"difficulty"`
	BaseMemory        float64    `json:"base_memory"`
	MemoryFloor       float64    `json:"memory_floor"`
	K0                float64    `json:"k0_initial_strength"`
	DecayRate         float64    `json:"decay_rate"`
	RevisionFrequency float64    `json:"revision_frequency"`
	UsageFrequency    float64    `json:"usage_frequency"`
	SleepQuality      float64    `json:"sleep_quality"`
	CreatedAt         time.Time  `json:"created_at"`
	LastReviewed      *time.Time `json:"last_reviewed"`
	LastUsed          *time.Time `json:"last_used"`

	CurrentRetention float64  `json:"current_retention"`
	HalfLifeDays     float64  `json:"half_life_days"`
	DaysToForget     *float64 `json:"days_to_forget"` // null: never
	DaysSinceReview  float64  `json:"days_since_review"`
}

func toItemJSON(v *engine.ItemView) itemJSON {
	out := itemJSON{
		ID:                v.ID,
		UserID:            v.UserID,
		Topic:             v.Topic,
		Content:           v.Content,
		Attention:         v.Attention,
		Interest:          v.Interest,
		Difficulty:        v.Difficulty,
		BaseMemory:        v.BaseMemory,
		MemoryFloor:       v.MemoryFloor,
		K0:                pct(v.K0),
		DecayRate:         rate(v.DecayRate),
		RevisionFrequency: freq(v.RevisionFrequency),
		UsageFrequency:    freq(v.UsageFrequency),
		SleepQuality:      v.SleepQuality,
		CreatedAt:         v.CreatedAt.UTC(),
		LastReviewed:      utc(v.LastReviewed),
		LastUsed:          utc(v.LastUsed),
		CurrentRetention:  pct(v.CurrentRetention),
		HalfLifeDays:      days(v.HalfLifeDays),
		DaysSinceReview:   days(v.DaysSinceReview),
	}
	if v.Forgets() {
		d := days(v.DaysToForget)
		out.DaysToForget = &d
	}
	return out
}

func toItemsJSON(views []engine.ItemView) []itemJSON {
	out := make([]itemJSON, len(views))
	for i := range views {
		out[i] = toItemJSON(&views[i])
	}
	return out
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

type reviewJSON struct {
	Seq            int64     `json:"seq"`
	Timestamp      time.Time `json:"timestamp"`
	UsedInPractice bool      `json:"used_in_practice"`
	SleepQuality   float64   `json:"sleep_quality_at_time"`
}

func toReviewsJSON(reviews []store.Review) []reviewJSON {
	out := make([]reviewJSON, len(reviews))
	for i, r := range reviews {
		out[i] = reviewJSON{
			Seq:            r.Seq,
			Timestamp:      r.Timestamp.UTC(),
			UsedInPractice: r.UsedInPractice,
			SleepQuality:   r.SleepQuality,
		}
	}
	return out
}

// intParam reads an integer query parameter, returning def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &engine.ValidationError{Field: name, Msg: "must be an integer"}
	}
	return n, nil
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &engine.ValidationError{Field: name, Msg: "must be a number"}
	}
	return f, nil
}
