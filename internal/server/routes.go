package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/decaytrack/internal/engine"
)

// Defaults applied to omitted create fields.
const (
	defaultBaseMemory   = 0.7
	defaultSleepQuality = 0.8
	defaultMemoryFloor  = 0.10
	defaultDecaying     = 60.0
)

func itemID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &engine.ValidationError{Field: "id", Msg: "must be a positive integer"}
	}
	return id, nil
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &engine.ValidationError{Field: "body", Msg: "invalid json"}
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic        string   `json:"topic"`
		Content      string   `json:"content"`
		Attention    *float64 `json:"attention"`
		Interest     *float64 `json:"interest"`
		Difficulty   *float64 `json:"difficulty"`
		BaseMemory   *float64 `json:"base_memory"`
		SleepQuality *float64 `json:"sleep_quality"`
		MemoryFloor  *float64 `json:"memory_floor"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	required := []struct {
		name string
		v    *float64
	}{{"attention", req.Attention}, {"interest", req.Interest}, {"difficulty", req.Difficulty}}
	for _, f := range required {
		if f.v == nil {
			s.writeEngineError(w, r, &engine.ValidationError{Field: f.name, Msg: "required"})
			return
		}
	}
	or := func(p *float64, def float64) float64 {
		if p == nil {
			return def
		}
		return *p
	}

	v, err := s.engine.CreateItem(r.Context(), userFrom(r), engine.ItemInput{
		Topic:        req.Topic,
		Content:      req.Content,
		Attention:    *req.Attention,
		Interest:     *req.Interest,
		Difficulty:   *req.Difficulty,
		BaseMemory:   or(req.BaseMemory, defaultBaseMemory),
		SleepQuality: or(req.SleepQuality, defaultSleepQuality),
		MemoryFloor:  or(req.MemoryFloor, defaultMemoryFloor),
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemJSON(v))
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	views, err := s.engine.ListItems(r.Context(), userFrom(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemsJSON(views))
}

func (s *Server) handleListDecaying(w http.ResponseWriter, r *http.Request) {
	threshold, err := floatParam(r, "threshold", defaultDecaying)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	views, err := s.engine.ListDecaying(r.Context(), userFrom(r), threshold)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemsJSON(views))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	v, err := s.engine.GetItem(r.Context(), userFrom(r), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemJSON(v))
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	var req struct {
		Topic       *string  `json:"topic"`
		Content     *string  `json:"content"`
		Attention   *float64 `json:"attention"`
		Interest    *float64 `json:"interest"`
		Difficulty  *float64 `json:"difficulty"`
		BaseMemory  *float64 `json:"base_memory"`
		MemoryFloor *float64 `json:"memory_floor"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	v, err := s.engine.UpdateItem(r.Context(), userFrom(r), id, engine.ItemUpdate{
		Topic:       req.Topic,
		Content:     req.Content,
		Attention:   req.Attention,
		Interest:    req.Interest,
		Difficulty:  req.Difficulty,
		BaseMemory:  req.BaseMemory,
		MemoryFloor: req.MemoryFloor,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemJSON(v))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if err := s.engine.DeleteItem(r.Context(), userFrom(r), id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	var req struct {
		UsedInPractice bool     `json:"used_in_practice"`
		SleepQuality   *float64 `json:"sleep_quality"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	v, err := s.engine.SubmitReview(r.Context(), userFrom(r), id, req.UsedInPractice, req.SleepQuality)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemJSON(v))
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	reviews, err := s.engine.Reviews(r.Context(), userFrom(r), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item_id": id,
		"count":   len(reviews),
		"reviews": toReviewsJSON(reviews),
	})
}
