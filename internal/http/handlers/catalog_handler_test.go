package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/slotboard/internal/domain"
)

func TestCatalog_Episodes(t *testing.T) {
	e := newEnv(t)

	body := map[string]any{"number": 11, "name": "Eleven"}
	w := e.do(e.admin, http.MethodPost, "/api/episodes", body)
	wantStatus(t, w, http.StatusCreated)
	first := decodeJSON[domain.Episode](t, w)

	// Creating it again is not an error.
	w = e.do(e.admin, http.MethodPost, "/api/episodes", body)
	wantStatus(t, w, http.StatusOK)
	if again := decodeJSON[domain.Episode](t, w); again.ID != first.ID {
		t.Fatalf("repeat create returned %+v, want %+v", again, first)
	}

	wantError(t, e.do(e.editor, http.MethodPost, "/api/episodes", body), http.StatusForbidden, ErrCodeForbidden)
	wantError(t, e.do(nil, http.MethodPost, "/api/episodes", body), http.StatusUnauthorized, ErrCodeUnauthorized)
	wantError(t, e.do(e.admin, http.MethodPost, "/api/episodes", map[string]any{"number": 12}), http.StatusBadRequest, ErrCodeBadRequest)

	w = e.do(nil, http.MethodGet, "/api/episodes", nil)
	wantStatus(t, w, http.StatusOK)
	if items := decodeJSON[[]domain.Episode](t, w); len(items) != 2 {
		t.Fatalf("episodes = %+v", items)
	}
}

func TestCatalog_Maps(t *testing.T) {
	e := newEnv(t)
	wantStatus(t, e.do(e.admin, http.MethodPost, "/api/episodes", map[string]any{"number": 11, "name": "Eleven"}), http.StatusCreated)

	w := e.do(e.admin, http.MethodPost, "/api/maps", map[string]any{"episode_number": 11, "name": "Fjord", "level": 55, "favourite": true})
	wantStatus(t, w, http.StatusCreated)
	if m := decodeJSON[domain.Map](t, w); m.Level != 55 || !m.Favourite {
		t.Fatalf("map = %+v", m)
	}
	wantError(t, e.do(e.admin, http.MethodPost, "/api/maps", map[string]any{"episode_number": 99, "name": "Nowhere"}), http.StatusBadRequest, ErrCodeValidation)
	wantError(t, e.do(e.chatter, http.MethodPost, "/api/maps", map[string]any{"episode_number": 11, "name": "Fjord"}), http.StatusForbidden, ErrCodeForbidden)

	w = e.do(nil, http.MethodGet, "/api/maps", nil)
	wantStatus(t, w, http.StatusOK)
	if items := decodeJSON[[]domain.Map](t, w); len(items) != 2 {
		t.Fatalf("all maps = %+v", items)
	}

	w = e.do(nil, http.MethodGet, "/api/maps?episode_number=10", nil)
	wantStatus(t, w, http.StatusOK)
	items := decodeJSON[[]domain.Map](t, w)
	if len(items) != 1 || items[0].Name != "Harbor" {
		t.Fatalf("episode 10 maps = %+v", items)
	}

	wantError(t, e.do(nil, http.MethodGet, "/api/maps?episode_number=x", nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestCatalog_Channels(t *testing.T) {
	e := newEnv(t)
	w := e.do(nil, http.MethodGet, "/api/channels", nil)
	wantStatus(t, w, http.StatusOK)
	items := decodeJSON[[]domain.Channel](t, w)
	if len(items) != 1 || items[0].ID != 3 {
		t.Fatalf("channels = %+v", items)
	}
}
