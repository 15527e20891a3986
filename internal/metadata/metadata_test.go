package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"corpsim/internal/eventlog"
	"corpsim/internal/game"
)

func TestFileStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir, nil)
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	a, err := s.CreateGame(ctx, "alpha")
	if err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	b, err := s.CreateGame(ctx, "beta")
	if err != nil {
		t.Fatalf("create beta: %v", err)
	}
	if _, err := s.CreateGame(ctx, "ALPHA"); !errors.Is(err, ErrGameExists) {
		t.Fatalf("duplicate err=%v want ErrGameExists", err)
	}
	if _, err := s.CreateGame(ctx, "no/slashes"); !errors.Is(err, game.ErrInvalidGameName) {
		t.Fatalf("invalid err=%v want ErrInvalidGameName", err)
	}

	games, err := s.ListGames(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(games) != 2 || games[0].ID != a.ID || games[1].ID != b.ID {
		t.Fatalf("games=%+v", games)
	}

	got, err := s.GetGame(ctx, b.ID)
	if err != nil || got.Name != "beta" {
		t.Fatalf("get=%+v err=%v", got, err)
	}
	if _, err := s.GetGame(ctx, uuid.New()); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("get missing err=%v", err)
	}

	layout := eventlog.Layout{DataDir: dir}
	w, err := eventlog.Create[eventlog.LoggedEvent](layout.EventDir(a.ID), time.Now())
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	_ = w.Write(eventlog.NewLoggedEvent(time.Now(), a.ID, game.AdvanceWeek{}))
	_ = w.Close()

	if err := s.DeleteGame(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(layout.GameDir(a.ID)); !os.IsNotExist(err) {
		t.Fatalf("game dir still present: %v", err)
	}
	archived, err := eventlog.ListFiles(filepath.Join(layout.ArchiveDir(a.ID), "event_stream"))
	if err != nil || len(archived) != 1 {
		t.Fatalf("archived=%v err=%v", archived, err)
	}
	if _, err := os.Stat(filepath.Join(layout.ArchiveDir(a.ID), "metadata.json")); err != nil {
		t.Fatalf("archived metadata: %v", err)
	}
	if err := s.DeleteGame(ctx, a.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("second delete err=%v", err)
	}

	games, _ = s.ListGames(ctx)
	if len(games) != 1 || games[0].ID != b.ID {
		t.Fatalf("after delete games=%+v", games)
	}
}

func TestFileStoreIgnoresDirsWithoutMetadata(t *testing.T) {
	dir := t.TempDir()
	layout := eventlog.Layout{DataDir: dir}
	if err := os.MkdirAll(layout.EventDir(uuid.New()), 0o755); err != nil {
		t.Fatal(err)
	}
	games, err := NewFileStore(dir, nil).ListGames(context.Background())
	if err != nil || len(games) != 0 {
		t.Fatalf("games=%v err=%v", games, err)
	}
}

func TestHTTPStoreMapsStatuses(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"exists"}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"game not found"}`))
		case r.URL.Path == "/v1/games":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"games":[{"id":"` + id.String() + `","name":"x","created_at":"2024-01-01T00:00:00Z"}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL + "/")
	ctx := context.Background()

	if _, err := s.CreateGame(ctx, "x"); !errors.Is(err, ErrGameExists) {
		t.Fatalf("create err=%v want ErrGameExists", err)
	}
	if err := s.DeleteGame(ctx, id); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("delete err=%v want ErrGameNotFound", err)
	}
	games, err := s.ListGames(ctx)
	if err != nil || len(games) != 1 || games[0].ID != id {
		t.Fatalf("games=%v err=%v", games, err)
	}
	var se *StatusError
	if _, err := s.GetGame(ctx, id); !errors.As(err, &se) || se.Status != http.StatusInternalServerError {
		t.Fatalf("get err=%v", err)
	}
}
