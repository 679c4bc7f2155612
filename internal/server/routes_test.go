package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

// The worked example: K0 = 100*(0.4*0.8 + 0.3*0.5 + 0.3*0.7) = 68.
const exampleItem = `{"topic":"Go generics","content":"type sets","attention":0.8,"interest":0.5,"difficulty":0.5,"base_memory":0.7,"sleep_quality":0.9,"memory_floor":0.10}`

func createItem(t *testing.T, srv *Server, user, body string) map[string]any {
	t.Helper()
	w := do(t, srv, "POST", "/api/items", user, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	return decode[map[string]any](t, w)
}

func itemPath(item map[string]any, suffix string) string {
	return fmt.Sprintf("/api/items/%d%s", int64(item["id"].(float64)), suffix)
}

func TestCreateItem(t *testing.T) {
	srv := testServer(t)

	item := createItem(t, srv, "alice", exampleItem)

	if item["k0_initial_strength"] != 68.0 {
		t.Errorf("k0_initial_strength = %v, want 68", item["k0_initial_strength"])
	}
	if item["current_retention"] != 68.0 {
		t.Errorf("current_retention = %v, want 68", item["current_retention"])
	}
	if item["days_to_forget"] != nil {
		t.Errorf("days_to_forget = %v, want null (floor at threshold)", item["days_to_forget"])
	}
	if item["days_since_review"] != 0.0 {
		t.Errorf("days_since_review = %v, want 0", item["days_since_review"])
	}
	// k = ln2/14 * 1.5 * 1.25 = 0.09284; half-life 7.47 days.
	if item["decay_rate"] != 0.0928 {
		t.Errorf("decay_rate = %v, want 0.0928", item["decay_rate"])
	}
	if item["half_life_days"] != 7.5 {
		t.Errorf("half_life_days = %v, want 7.5", item["half_life_days"])
	}
	if item["last_reviewed"] != nil {
		t.Errorf("last_reviewed = %v, want null", item["last_reviewed"])
	}
}

func TestCreateItemDefaults(t *testing.T) {
	srv := testServer(t)

	item := createItem(t, srv, "alice", `{"topic":"x","attention":0.5,"interest":0.5,"difficulty":0.5}`)
	if item["base_memory"] != 0.7 || item["memory_floor"] != 0.1 || item["sleep_quality"] != 0.8 {
		t.Errorf("defaults = %v/%v/%v, want 0.7/0.1/0.8", item["base_memory"], item["memory_floor"], item["sleep_quality"])
	}
}

func TestCreateItemValidation(t *testing.T) {
	srv := testServer(t)

	bodies := []string{
		`{"topic":"","attention":0.5,"interest":0.5,"difficulty":0.5}`,
		`{"topic":"x","interest":0.5,"difficulty":0.5}`,
		`{"topic":"x","attention":1.5,"interest":0.5,"difficulty":0.5}`,
		`{"topic":"x","attention":0.5,"interest":0.5,"difficulty":0.5,"memory_floor":0.3}`,
		`{not json`,
	}
	for _, body := range bodies {
		w := do(t, srv, "POST", "/api/items", "alice", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
		if resp := decode[map[string]string](t, w); resp["error"] == "" {
			t.Errorf("body %s: missing error message", body)
		}
	}

	w := do(t, srv, "GET", "/api/items", "alice", "")
	if items := decode[[]any](t, w); len(items) != 0 {
		t.Errorf("rejected creates stored %d items", len(items))
	}
}

func TestGetItem(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv, "alice", exampleItem)

	w := do(t, srv, "GET", itemPath(item, ""), "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]any](t, w); got["topic"] != "Go generics" {
		t.Errorf("topic = %v", got["topic"])
	}

	if w := do(t, srv, "GET", itemPath(item, ""), "bob", ""); w.Code != http.StatusNotFound {
		t.Errorf("other user: status = %d, want 404", w.Code)
	}
	if w := do(t, srv, "GET", "/api/items/9999", "alice", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", w.Code)
	}
	if w := do(t, srv, "GET", "/api/items/abc", "alice", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestListItems(t *testing.T) {
	srv := testServer(t)
	createItem(t, srv, "alice", exampleItem)
	createItem(t, srv, "alice", exampleItem)
	createItem(t, srv, "bob", exampleItem)

	w := do(t, srv, "GET", "/api/items", "alice", "")
	if items := decode[[]map[string]any](t, w); len(items) != 2 {
		t.Errorf("alice items = %d, want 2", len(items))
	}
}

func TestUpdateItem(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv, "alice", exampleItem)

	w := do(t, srv, "PATCH", itemPath(item, ""), "alice", `{"topic":"Go type sets","attention":0.1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	got := decode[map[string]any](t, w)
	if got["topic"] != "Go type sets" {
		t.Errorf("topic = %v", got["topic"])
	}
	if got["k0_initial_strength"] != 68.0 {
		t.Errorf("k0_initial_strength = %v, want 68 (frozen)", got["k0_initial_strength"])
	}

	if w := do(t, srv, "PATCH", itemPath(item, ""), "alice", `{"difficulty":3}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid patch: status = %d, want 400", w.Code)
	}
	if w := do(t, srv, "PATCH", itemPath(item, ""), "bob", `{"topic":"y"}`); w.Code != http.StatusNotFound {
		t.Errorf("other user: status = %d, want 404", w.Code)
	}
}

func TestDeleteItem(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv, "alice", exampleItem)

	w := do(t, srv, "DELETE", itemPath(item, ""), "alice", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w := do(t, srv, "GET", itemPath(item, ""), "alice", ""); w.Code != http.StatusNotFound {
		t.Errorf("after delete: status = %d, want 404", w.Code)
	}
	if w := do(t, srv, "DELETE", itemPath(item, ""), "alice", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

func TestSubmitReview(t *testing.T) {
	srv, clock := testServerWithClock(t)
	item := createItem(t, srv, "alice", exampleItem)
	clock.t = clock.t.Add(3 * 24 * time.Hour)

	got := decode[map[string]any](t, do(t, srv, "GET", itemPath(item, ""), "alice", ""))
	if got["days_since_review"] != 3.0 {
		t.Fatalf("days_since_review = %v, want 3", got["days_since_review"])
	}

	w := do(t, srv, "POST", itemPath(item, "/review"), "alice", `{"used_in_practice":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	got = decode[map[string]any](t, w)
	if got["usage_frequency"] != 2.0 {
		t.Errorf("usage_frequency = %v, want 2", got["usage_frequency"])
	}
	if got["days_since_review"] != 0.0 {
		t.Errorf("days_since_review = %v, want 0", got["days_since_review"])
	}
	if got["current_retention"] != 68.0 {
		t.Errorf("current_retention = %v, want 68", got["current_retention"])
	}
	if got["last_used"] == nil {
		t.Error("last_used should be set after practice")
	}

	// Empty body: passive review with the carried-over sleep snapshot.
	w = do(t, srv, "POST", itemPath(item, "/review"), "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("empty body: status = %d; body: %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]any](t, w); got["revision_frequency"] != 1.0 {
		t.Errorf("revision_frequency = %v, want 1", got["revision_frequency"])
	}

	w = do(t, srv, "GET", itemPath(item, "/reviews"), "alice", "")
	log := decode[map[string]any](t, w)
	if log["count"] != 2.0 {
		t.Errorf("review count = %v, want 2", log["count"])
	}
}

func TestSubmitReviewErrors(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv, "alice", exampleItem)

	if w := do(t, srv, "POST", itemPath(item, "/review"), "alice", `{"sleep_quality":2}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad sleep: status = %d, want 400", w.Code)
	}
	if w := do(t, srv, "POST", "/api/items/9999/review", "alice", `{}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown item: status = %d, want 404", w.Code)
	}
	if w := do(t, srv, "POST", itemPath(item, "/review"), "bob", `{}`); w.Code != http.StatusNotFound {
		t.Errorf("other user: status = %d, want 404", w.Code)
	}
	if w := do(t, srv, "GET", itemPath(item, "/reviews"), "bob", ""); w.Code != http.StatusNotFound {
		t.Errorf("other user's log: status = %d, want 404", w.Code)
	}
}

func TestListDecaying(t *testing.T) {
	srv, clock := testServerWithClock(t)
	createItem(t, srv, "alice", exampleItem)
	createItem(t, srv, "alice", `{"topic":"strong","attention":1,"interest":1,"difficulty":0.5,"base_memory":1,"sleep_quality":0.9}`)

	if items := decode[[]any](t, do(t, srv, "GET", "/api/items/decaying", "alice", "")); len(items) != 0 {
		t.Errorf("fresh items decaying = %d, want 0", len(items))
	}

	clock.t = clock.t.Add(3 * 24 * time.Hour)
	if items := decode[[]any](t, do(t, srv, "GET", "/api/items/decaying", "alice", "")); len(items) != 1 {
		t.Errorf("after 3 days decaying = %d, want 1", len(items))
	}
	if items := decode[[]any](t, do(t, srv, "GET", "/api/items/decaying?threshold=90", "alice", "")); len(items) != 2 {
		t.Errorf("threshold 90 decaying = %d, want 2", len(items))
	}
	if w := do(t, srv, "GET", "/api/items/decaying?threshold=abc", "alice", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad threshold: status = %d, want 400", w.Code)
	}
}

func TestInvariantViolationIs500(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv, "alice", exampleItem)

	if _, err := srv.db.Exec("UPDATE knowledge_items SET decay_rate = -1"); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	w := do(t, srv, "GET", itemPath(item, ""), "alice", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
