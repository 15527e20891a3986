package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric/noop"

	"corpsim/internal/game"
	"corpsim/internal/metadata"
	"corpsim/internal/observe"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	srv := New(metadata.NewFileStore(t.TempDir(), nil), m, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGamesRoundTripThroughHTTPStore(t *testing.T) {
	ts := newTestServer(t)
	store := metadata.NewHTTPStore(ts.URL)
	ctx := context.Background()

	md, err := store.CreateGame(ctx, "Acme Holdings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if md.ID == uuid.Nil || md.Name != "Acme Holdings" {
		t.Fatalf("unexpected metadata: %+v", md)
	}

	if _, err := store.CreateGame(ctx, "acme holdings"); !errors.Is(err, metadata.ErrGameExists) {
		t.Fatalf("expected ErrGameExists, got %v", err)
	}
	if _, err := store.CreateGame(ctx, "bad/name"); !errors.Is(err, game.ErrInvalidGameName) {
		t.Fatalf("expected ErrInvalidGameName, got %v", err)
	}

	games, err := store.ListGames(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(games) != 1 || games[0].ID != md.ID {
		t.Fatalf("unexpected games: %+v", games)
	}

	got, err := store.GetGame(ctx, md.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != md.Name {
		t.Fatalf("expected %q, got %q", md.Name, got.Name)
	}

	if err := store.DeleteGame(ctx, md.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetGame(ctx, md.ID); !errors.Is(err, metadata.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
	if err := store.DeleteGame(ctx, md.ID); !errors.Is(err, metadata.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound on second delete, got %v", err)
	}
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad id", http.MethodGet, "/v1/games/not-a-uuid", "", http.StatusBadRequest},
		{"bad delete id", http.MethodDelete, "/v1/games/42", "", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/games", `{"name":"x","extra":1}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/v1/games", `{`, http.StatusBadRequest},
		{"missing game", http.MethodGet, "/v1/games/" + uuid.NewString(), "", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}
