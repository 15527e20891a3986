package cli

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric/noop"

	"corpsim/internal/config"
	"corpsim/internal/engine"
	"corpsim/internal/game"
	"corpsim/internal/metadata"
	"corpsim/internal/observe"
	"corpsim/internal/server"
)

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected error without a session file")
	}
	id := uuid.New()
	if err := SaveSession(Session{ServerAddr: "127.0.0.1:4000", GameID: id.String(), GameName: "Acme"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s, err := LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := s.Game()
	if err != nil || got != id {
		t.Fatalf("expected game %s, got %s (%v)", id, got, err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected error after clear")
	}
}

func TestLoadSessionRequiresGame(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := SaveSession(Session{ServerAddr: "127.0.0.1:4000"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected error for a session without a game")
	}
}

func startGameServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	eng := engine.New(engine.Config{
		DataDir:   dir,
		TickEvery: 2 * time.Millisecond,
		Redrive:   config.RedriveNone,
		OrgCount:  game.DefaultOrgCount,
	}, metadata.NewFileStore(dir, nil), m, nil)
	srv := server.New(eng, server.Config{}, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	engDone := make(chan struct{})
	srvDone := make(chan struct{})
	go func() {
		_ = eng.Run(ctx)
		close(engDone)
	}()
	go func() {
		_ = srv.Serve(ctx, ln)
		close(srvDone)
	}()
	t.Cleanup(func() {
		cancel()
		<-srvDone
		<-engDone
	})
	return ln.Addr().String()
}

func TestClientAgainstServer(t *testing.T) {
	c := NewClient(startGameServer(t))
	c.Timeout = 10 * time.Second
	ctx := context.Background()

	created, err := c.CreateGame(ctx, "Acme Holdings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.CreateGame(ctx, "Acme Holdings"); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}

	games, err := c.ListGames(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(games) != 1 || games[0].ID != created.GameID {
		t.Fatalf("unexpected games: %+v", games)
	}

	st, err := c.Snapshot(ctx, created.GameID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if st.Week != 0 {
		t.Fatalf("expected week 0, got %d", st.Week)
	}

	st, err = c.Submit(ctx, created.GameID, game.DoNothing{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.Week != 1 {
		t.Fatalf("expected week 1 after a command, got %d", st.Week)
	}

	if err := c.DeleteGame(ctx, created.GameID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.DeleteGame(ctx, created.GameID); err == nil {
		t.Fatalf("expected second delete to fail")
	}
}

func TestClientConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewClient(addr)
	c.Timeout = 5 * time.Second
	if _, err := c.ListGames(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}
