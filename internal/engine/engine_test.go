package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"corpsim/internal/config"
	"corpsim/internal/eventlog"
	"corpsim/internal/game"
	"corpsim/internal/metadata"
	"corpsim/internal/observe"
	"corpsim/internal/protocol"
)

type fakeStore struct {
	mu      sync.Mutex
	games   map[uuid.UUID]game.Metadata
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{games: map[uuid.UUID]game.Metadata{}}
}

func (s *fakeStore) CreateGame(_ context.Context, name string) (game.Metadata, error) {
	if err := game.ValidateGameName(name); err != nil {
		return game.Metadata{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	md := game.Metadata{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	s.games[md.ID] = md
	return md, nil
}

func (s *fakeStore) ListGames(context.Context) ([]game.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]game.Metadata, 0, len(s.games))
	for _, md := range s.games {
		out = append(out, md)
	}
	return out, nil
}

func (s *fakeStore) GetGame(_ context.Context, id uuid.UUID) (game.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.games[id]
	if !ok {
		return game.Metadata{}, errors.New("game not found")
	}
	return md, nil
}

func (s *fakeStore) DeleteGame(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return errors.New("game not found")
	}
	delete(s.games, id)
	return nil
}

func newTestEngine(t *testing.T, dir string, mode config.RedriveMode, store *fakeStore, m *observe.Metrics) *Engine {
	t.Helper()
	if m == nil {
		var err error
		if m, err = observe.NewMetrics(noop.NewMeterProvider()); err != nil {
			t.Fatalf("metrics: %v", err)
		}
	}
	if store == nil {
		store = newFakeStore()
	}
	e := New(Config{
		DataDir:   dir,
		Redrive:   mode,
		OrgCount:  game.DefaultOrgCount,
		StartWeek: 0,
	}, store, m, nil)
	t.Cleanup(e.shutdown)
	return e
}

func newClient(queue int) *Client {
	return &Client{ID: uuid.New(), Mode: protocol.ModeOperator, Out: make(chan []byte, queue)}
}

// connect registers c attached to gameID and runs the tick that handles it.
func connect(t *testing.T, e *Engine, c *Client, gameID uuid.UUID) Attachment {
	t.Helper()
	replyCh := make(chan Attachment, 1)
	id := gameID
	if err := e.Send(context.Background(), Connected{Client: c, GameID: &id, Reply: replyCh}); err != nil {
		t.Fatalf("send: %v", err)
	}
	e.tick(context.Background())
	select {
	case att := <-replyCh:
		if !att.Attached() || att.GameID != gameID {
			t.Fatalf("attachment=%+v", att)
		}
		return att
	default:
		t.Fatalf("no attachment reply")
		return Attachment{}
	}
}

func drainOut(c *Client) []protocol.ServerEvent {
	var out []protocol.ServerEvent
	for {
		select {
		case p := <-c.Out:
			ev, err := protocol.DecodeServer(p)
			if err == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func latestState(t *testing.T, c *Client) *game.GameState {
	t.Helper()
	var st *game.GameState
	for _, ev := range drainOut(c) {
		if fs, ok := ev.(protocol.FullState); ok {
			st = fs.State
		}
	}
	if st == nil {
		t.Fatalf("no full state received")
	}
	return st
}

func submit(t *testing.T, att Attachment, c *Client, cmd game.Command) {
	t.Helper()
	select {
	case att.Commands <- Envelope{ClientID: c.ID, GameID: att.GameID, Command: cmd}:
	default:
		t.Fatalf("command queue full")
	}
}

func firstOrganization(t *testing.T, st *game.GameState) game.Organization {
	t.Helper()
	var best *game.Organization
	for _, o := range st.Organizations {
		o := o
		if best == nil || o.ID.String() < best.ID.String() {
			best = &o
		}
	}
	if best == nil {
		t.Fatalf("no organizations")
	}
	return *best
}

func TestColdStartBroadcastsAndLogsGenerateWorld(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, dir, config.RedriveEvent, nil, nil)
	gameID := uuid.MustParse("00000000-0000-3039-8000-000000000001")
	c := newClient(8)
	connect(t, e, c, gameID)

	evs := drainOut(c)
	if len(evs) != 2 {
		t.Fatalf("got %d messages want full state and history", len(evs))
	}
	fs, ok := evs[0].(protocol.FullState)
	if !ok || fs.GameID != gameID || len(fs.State.Organizations) != game.DefaultOrgCount {
		t.Fatalf("first message %#v", evs[0])
	}
	if _, ok := evs[1].(protocol.HistoryState); !ok {
		t.Fatalf("second message %#v", evs[1])
	}

	path, err := eventlog.LatestFile(eventlog.Layout{DataDir: dir}.EventDir(gameID))
	if err != nil {
		t.Fatalf("latest event file: %v", err)
	}
	var first game.Event
	_, err = eventlog.ReadFile(path, func(le eventlog.LoggedEvent) error {
		if first == nil {
			first = le.Event.Event
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	gen, ok := first.(game.GenerateWorld)
	if !ok || gen.Seed != 12345 || gen.OrgCount != game.DefaultOrgCount {
		t.Fatalf("first logged event %#v", first)
	}

	e.tick(context.Background())
	if extra := drainOut(c); len(extra) != 0 {
		t.Fatalf("clean instance broadcast %d messages", len(extra))
	}
}

func TestFireVPThroughEngine(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), config.RedriveNone, nil, nil)
	c := newClient(16)
	att := connect(t, e, c, uuid.New())
	st := latestState(t, c)
	org := firstOrganization(t, st)

	submit(t, att, c, game.FireEmployee{EmployeeID: *org.VP})
	e.tick(context.Background())

	st = latestState(t, c)
	if st.Week != 1 {
		t.Fatalf("week=%d want 1", st.Week)
	}
	if st.Organizations[org.ID].VP != nil {
		t.Fatalf("vp not cleared")
	}
	if st.Entities[*org.VP].Employment != nil {
		t.Fatalf("fired vp still employed")
	}
}

func runScenario(t *testing.T, e *Engine, gameID uuid.UUID) []byte {
	t.Helper()
	c := newClient(64)
	att := connect(t, e, c, gameID)
	st := latestState(t, c)
	org := firstOrganization(t, st)

	var staff uuid.UUID
	var idle uuid.UUID
	for id, ent := range st.Entities {
		if ent.Employment != nil && ent.Employment.OrganizationID == org.ID && ent.Employment.Role != game.RoleVP && (staff == uuid.Nil || id.String() < staff.String()) {
			staff = id
		}
		if ent.EntityType.IsHuman() && ent.Employment == nil && (idle == uuid.Nil || id.String() < idle.String()) {
			idle = id
		}
	}

	cmds := []game.Command{
		game.GiveRaise{EmployeeID: staff, Amount: 1_500},
		game.LaunchPRCampaign{},
		game.HireEmployee{OrganizationID: org.ID, EmployeeID: idle},
		game.PromoteToVp{OrganizationID: org.ID, EmployeeID: staff},
		game.UpdateBudget{OrganizationID: org.ID, OrganizationBudget: game.Budget{Marketing: 3, RnD: 2, Training: 1}},
		game.FireEmployee{EmployeeID: idle},
		game.DoNothing{},
	}
	for _, cmd := range cmds {
		submit(t, att, c, cmd)
	}
	e.tick(context.Background())

	in := e.instances[gameID]
	if in.World.State.Week != uint16(len(cmds)) {
		t.Fatalf("week=%d want %d", in.World.State.Week, len(cmds))
	}
	return snapshot(t, in)
}

func snapshot(t *testing.T, in *Instance) []byte {
	t.Helper()
	raw, err := json.Marshal(struct {
		State   *game.GameState
		History *game.HistoryState
	}{in.World.State, in.World.History})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestEventRedriveMatchesLiveState(t *testing.T) {
	dir := t.TempDir()
	gameID := uuid.New()
	live := newTestEngine(t, dir, config.RedriveEvent, nil, nil)
	want := runScenario(t, live, gameID)
	live.shutdown()

	restarted := newTestEngine(t, dir, config.RedriveEvent, nil, nil)
	if err := restarted.Redrive(context.Background()); err != nil {
		t.Fatalf("redrive: %v", err)
	}
	in, ok := restarted.instances[gameID]
	if !ok {
		t.Fatalf("game not loaded at startup")
	}
	if got := snapshot(t, in); string(got) != string(want) {
		t.Fatalf("replayed state differs from live state")
	}
}

func TestCommandRedriveMatchesLiveState(t *testing.T) {
	dir := t.TempDir()
	gameID := uuid.New()
	live := newTestEngine(t, dir, config.RedriveEvent, nil, nil)
	want := runScenario(t, live, gameID)
	live.shutdown()

	restarted := newTestEngine(t, dir, config.RedriveCommand, nil, nil)
	if err := restarted.Redrive(context.Background()); err != nil {
		t.Fatalf("redrive: %v", err)
	}
	in, ok := restarted.instances[gameID]
	if !ok {
		t.Fatalf("game not loaded at startup")
	}
	if got := snapshot(t, in); string(got) != string(want) {
		t.Fatalf("command redrive state differs from live state")
	}
}

func TestRedriveNoneStartsFresh(t *testing.T) {
	dir := t.TempDir()
	gameID := uuid.New()
	live := newTestEngine(t, dir, config.RedriveEvent, nil, nil)
	runScenario(t, live, gameID)
	live.shutdown()

	fresh := newTestEngine(t, dir, config.RedriveNone, nil, nil)
	if err := fresh.Redrive(context.Background()); err != nil {
		t.Fatalf("redrive: %v", err)
	}
	if len(fresh.instances) != 0 {
		t.Fatalf("redrive none loaded %d games", len(fresh.instances))
	}
	c := newClient(8)
	connect(t, fresh, c, gameID)
	if st := latestState(t, c); st.Week != 0 {
		t.Fatalf("week=%d want fresh world", st.Week)
	}
}

func TestFullClientQueueDropsAndCounts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	e := newTestEngine(t, t.TempDir(), config.RedriveNone, nil, m)
	slow := newClient(1)
	fast := newClient(8)
	connect(t, e, slow, uuid.Nil)
	_ = e.Send(context.Background(), Connected{Client: fast, GameID: &uuid.Nil})
	e.tick(context.Background())

	if got := len(drainOut(slow)); got != 1 {
		t.Fatalf("slow client got %d messages want 1", got)
	}
	if got := len(drainOut(fast)); got != 2 {
		t.Fatalf("fast client got %d messages want 2", got)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var dropped int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "corpsim.broadcasts.dropped" {
				continue
			}
			for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
				dropped += dp.Value
			}
		}
	}
	if dropped < 1 {
		t.Fatalf("dropped=%d want at least 1", dropped)
	}
}

func tickUntil(t *testing.T, e *Engine, c *Client, match func(protocol.ServerEvent) bool) protocol.ServerEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.tick(context.Background())
		for _, ev := range drainOut(c) {
			if match(ev) {
				return ev
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected message never arrived")
	return nil
}

func TestDeleteGameTearsDownInstance(t *testing.T) {
	store := newFakeStore()
	md, _ := store.CreateGame(context.Background(), "doomed")
	e := newTestEngine(t, t.TempDir(), config.RedriveNone, store, nil)

	watcher := newClient(8)
	att := connect(t, e, watcher, md.ID)
	requester := newClient(8)
	if err := e.Send(context.Background(), Connected{Client: requester}); err != nil {
		t.Fatal(err)
	}
	if err := e.Send(context.Background(), DeleteGame{ClientID: requester.ID, GameID: md.ID}); err != nil {
		t.Fatal(err)
	}

	tickUntil(t, e, watcher, func(ev protocol.ServerEvent) bool {
		d, ok := ev.(protocol.GameDeleted)
		return ok && d.GameID == md.ID
	})
	select {
	case <-att.Done:
	default:
		t.Fatalf("attachment not closed")
	}
	if _, ok := e.instances[md.ID]; ok {
		t.Fatalf("instance still registered")
	}
	evs := drainOut(requester)
	found := false
	for _, ev := range evs {
		if _, ok := ev.(protocol.GameDeleted); ok {
			found = true
		}
	}
	if !found {
		t.Fatalf("requester not told about deletion: %#v", evs)
	}

	if err := e.Send(context.Background(), DeleteGame{ClientID: requester.ID, GameID: md.ID}); err != nil {
		t.Fatal(err)
	}
	tickUntil(t, e, requester, func(ev protocol.ServerEvent) bool {
		_, ok := ev.(protocol.GameDeletionFailed)
		return ok
	})
}

func countAdvanceWeek(t *testing.T, dir string) int {
	t.Helper()
	files, err := eventlog.ListFiles(dir)
	if err != nil {
		t.Fatalf("list %s: %v", dir, err)
	}
	n := 0
	for _, f := range files {
		if _, err := eventlog.ReadFile(f, func(le eventlog.LoggedEvent) error {
			if le.Event.Event != nil && le.Event.Event.Kind() == game.KindAdvanceWeek {
				n++
			}
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	return n
}

func TestDeletedGameStaysDeleted(t *testing.T) {
	dir := t.TempDir()
	store := metadata.NewFileStore(dir, nil)
	md, err := store.CreateGame(context.Background(), "short lived")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e := New(Config{DataDir: dir, Redrive: config.RedriveEvent, OrgCount: game.DefaultOrgCount}, store, nil, nil)
	t.Cleanup(e.shutdown)

	c := newClient(16)
	att := connect(t, e, c, md.ID)
	// Queued right before the delete: it must be processed and end up in the archive.
	submit(t, att, c, game.DoNothing{})
	if err := e.Send(context.Background(), DeleteGame{ClientID: c.ID, GameID: md.ID}); err != nil {
		t.Fatal(err)
	}
	tickUntil(t, e, c, func(ev protocol.ServerEvent) bool {
		d, ok := ev.(protocol.GameDeleted)
		return ok && d.GameID == md.ID
	})

	if got := countAdvanceWeek(t, filepath.Join(e.layout.ArchiveDir(md.ID), "event_stream")); got != 1 {
		t.Fatalf("archived AdvanceWeek events=%d want 1", got)
	}

	replyCh := make(chan Attachment, 1)
	_ = e.Send(context.Background(), Attach{ClientID: c.ID, GameID: md.ID, Reply: replyCh})
	e.tick(context.Background())
	again := <-replyCh
	if again.Attached() || !errors.Is(again.Err, ErrGameDeleted) {
		t.Fatalf("attach after delete=%+v", again)
	}
	if _, ok := e.instances[md.ID]; ok {
		t.Fatalf("deleted game was cold-started again")
	}
	if _, err := os.Stat(e.layout.GameDir(md.ID)); !os.IsNotExist(err) {
		t.Fatalf("game dir recreated: %v", err)
	}

	restarted := New(Config{DataDir: dir, Redrive: config.RedriveEvent, OrgCount: game.DefaultOrgCount}, store, nil, nil)
	t.Cleanup(restarted.shutdown)
	if err := restarted.Redrive(context.Background()); err != nil {
		t.Fatalf("redrive: %v", err)
	}
	if len(restarted.instances) != 0 {
		t.Fatalf("redrive loaded %d games after delete", len(restarted.instances))
	}
}

func TestFailedDeleteResumesLogging(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), config.RedriveNone, nil, nil)
	gameID := uuid.New()
	c := newClient(16)
	att := connect(t, e, c, gameID)

	if err := e.Send(context.Background(), DeleteGame{ClientID: c.ID, GameID: gameID}); err != nil {
		t.Fatal(err)
	}
	tickUntil(t, e, c, func(ev protocol.ServerEvent) bool {
		f, ok := ev.(protocol.GameDeletionFailed)
		return ok && f.GameID == gameID
	})
	if _, ok := e.deleting[gameID]; ok {
		t.Fatalf("game still marked as deleting")
	}

	submit(t, att, c, game.DoNothing{})
	e.tick(context.Background())
	if st := latestState(t, c); st.Week != 1 {
		t.Fatalf("week=%d want 1", st.Week)
	}
	if got := countAdvanceWeek(t, e.layout.EventDir(gameID)); got != 1 {
		t.Fatalf("logged AdvanceWeek events=%d want 1", got)
	}
}

func TestLifecycleResults(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, t.TempDir(), config.RedriveNone, store, nil)
	c := newClient(8)
	_ = e.Send(context.Background(), Connected{Client: c})

	_ = e.Send(context.Background(), CreateGame{ClientID: c.ID, Name: "new game"})
	created := tickUntil(t, e, c, func(ev protocol.ServerEvent) bool {
		_, ok := ev.(protocol.GameCreated)
		return ok
	}).(protocol.GameCreated)
	if created.Name != "new game" {
		t.Fatalf("created=%+v", created)
	}

	_ = e.Send(context.Background(), CreateGame{ClientID: c.ID, Name: "bad/name"})
	tickUntil(t, e, c, func(ev protocol.ServerEvent) bool {
		f, ok := ev.(protocol.GameCreationFailed)
		return ok && f.Name == "bad/name" && f.Reason != ""
	})

	_ = e.Send(context.Background(), ListGames{ClientID: c.ID})
	list := tickUntil(t, e, c, func(ev protocol.ServerEvent) bool {
		_, ok := ev.(protocol.GameList)
		return ok
	}).(protocol.GameList)
	if len(list.Games) != 1 || list.Games[0].ID != created.GameID {
		t.Fatalf("games=%+v", list.Games)
	}

	store.mu.Lock()
	store.listErr = errors.New("backend unavailable")
	store.mu.Unlock()
	_ = e.Send(context.Background(), ListGames{ClientID: c.ID})
	tickUntil(t, e, c, func(ev protocol.ServerEvent) bool {
		f, ok := ev.(protocol.ListGamesFailed)
		return ok && f.Reason == "backend unavailable"
	})
}

func TestDisconnectKeepsInstance(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), config.RedriveNone, nil, nil)
	gameID := uuid.New()
	a := newClient(8)
	b := newClient(8)
	connect(t, e, a, gameID)
	connect(t, e, b, gameID)

	_ = e.Send(context.Background(), Disconnected{ClientID: a.ID})
	e.tick(context.Background())
	in, ok := e.instances[gameID]
	if !ok {
		t.Fatalf("instance torn down on disconnect")
	}
	if _, still := in.clients[a.ID]; still {
		t.Fatalf("disconnected client still attached")
	}
	if _, ok := e.clients[a.ID]; ok {
		t.Fatalf("disconnected client still registered")
	}
}

func TestAttachMovesClient(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), config.RedriveNone, nil, nil)
	c := newClient(8)
	first := uuid.New()
	second := uuid.New()
	connect(t, e, c, first)

	replyCh := make(chan Attachment, 1)
	_ = e.Send(context.Background(), Attach{ClientID: c.ID, GameID: second, Reply: replyCh})
	e.tick(context.Background())
	att := <-replyCh
	if att.GameID != second {
		t.Fatalf("attached to %s want %s", att.GameID, second)
	}
	if _, ok := e.instances[first].clients[c.ID]; ok {
		t.Fatalf("client still attached to the first game")
	}
	if _, ok := e.instances[second].clients[c.ID]; !ok {
		t.Fatalf("client not attached to the second game")
	}
}
