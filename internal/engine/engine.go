package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"corpsim/internal/config"
	"corpsim/internal/eventlog"
	"corpsim/internal/game"
	"corpsim/internal/metadata"
	"corpsim/internal/observe"
	"corpsim/internal/protocol"
)

var (
	ErrStopped      = errors.New("engine stopped")
	ErrGameDeleted  = errors.New("game deleted")
	ErrGameDeleting = errors.New("game is being deleted")
)

type Config struct {
	DataDir         string
	TickEvery       time.Duration
	StartWeek       uint16
	OrgCount        int
	Redrive         config.RedriveMode
	CommandQueue    int
	ControlQueue    int
	MetadataTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.TickEvery <= 0 {
		c.TickEvery = time.Second / 128
	}
	if c.CommandQueue <= 0 {
		c.CommandQueue = 256
	}
	if c.ControlQueue <= 0 {
		c.ControlQueue = 1024
	}
	if c.MetadataTimeout <= 0 {
		c.MetadataTimeout = 5 * time.Second
	}
	if c.Redrive == "" {
		c.Redrive = config.RedriveEvent
	}
}

type clientEntry struct {
	client *Client
	gameID uuid.UUID
	bound  bool
}

// Engine owns every instance and every registered client. Run is the only
// goroutine that touches them; everything else talks to it through Send and
// the per-instance command channels.
type Engine struct {
	cfg     Config
	layout  eventlog.Layout
	store   metadata.Store
	log     *slog.Logger
	metrics *observe.Metrics
	now     func() time.Time

	control chan Control
	stopped chan struct{}

	instances map[uuid.UUID]*Instance
	clients   map[uuid.UUID]*clientEntry

	// deleting holds games whose store delete is in flight; deleted holds
	// games removed since startup. Neither may be attached or cold-started.
	deleting map[uuid.UUID]struct{}
	deleted  map[uuid.UUID]struct{}
}

func New(cfg Config, store metadata.Store, m *observe.Metrics, logger *slog.Logger) *Engine {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Engine{
		cfg:       cfg,
		layout:    eventlog.Layout{DataDir: cfg.DataDir},
		store:     store,
		log:       logger,
		metrics:   m,
		now:       time.Now,
		control:   make(chan Control, cfg.ControlQueue),
		stopped:   make(chan struct{}),
		instances: map[uuid.UUID]*Instance{},
		clients:   map[uuid.UUID]*clientEntry{},
		deleting:  map[uuid.UUID]struct{}{},
		deleted:   map[uuid.UUID]struct{}{},
	}
}

// Send queues a control message for the next tick.
func (e *Engine) Send(ctx context.Context, c Control) error {
	select {
	case e.control <- c:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Redrive loads every game that has logs on disk. It must run before Run.
func (e *Engine) Redrive(ctx context.Context) error {
	if e.cfg.Redrive == config.RedriveNone {
		return nil
	}
	ids, err := e.layout.GameIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		var dir string
		if e.cfg.Redrive == config.RedriveCommand {
			dir = e.layout.CommandDir(id)
		} else {
			dir = e.layout.EventDir(id)
		}
		if _, err := eventlog.LatestFile(dir); err != nil {
			if errors.Is(err, eventlog.ErrNoLog) {
				continue
			}
			return err
		}
		if _, err := e.instance(ctx, id); err != nil {
			return err
		}
	}
	e.log.Info("startup redrive complete", "mode", e.cfg.Redrive, "games", len(e.instances))
	return nil
}

// Run drives the fixed tick until ctx is cancelled, then closes every log.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickEvery)
	defer ticker.Stop()
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	start := time.Now()
	for n := len(e.control); n > 0; n-- {
		e.handle(ctx, <-e.control)
	}
	for id, in := range e.instances {
		if _, ok := e.deleting[id]; ok {
			continue
		}
		in.drain(ctx)
	}
	e.broadcast(ctx)
	e.metrics.TickDuration.Record(ctx, time.Since(start).Seconds())
}

func (e *Engine) shutdown() {
	for id, in := range e.instances {
		if err := in.close(); err != nil {
			e.log.Error("close game logs", "game_id", id, "err", err)
		}
	}
}

func (e *Engine) handle(ctx context.Context, c Control) {
	switch m := c.(type) {
	case Connected:
		if m.Client == nil {
			return
		}
		e.clients[m.Client.ID] = &clientEntry{client: m.Client}
		e.metrics.ConnectedClients.Add(ctx, 1)
		e.log.Info("client connected", "client_id", m.Client.ID, "mode", m.Client.Mode)
		var att Attachment
		if m.GameID != nil {
			att = e.attach(ctx, m.Client.ID, *m.GameID)
		}
		reply(m.Reply, att)

	case Attach:
		reply(m.Reply, e.attach(ctx, m.ClientID, m.GameID))

	case Disconnected:
		ce, ok := e.clients[m.ClientID]
		if !ok {
			return
		}
		e.detach(ce)
		delete(e.clients, m.ClientID)
		e.metrics.ConnectedClients.Add(ctx, -1)
		e.log.Info("client disconnected", "client_id", m.ClientID)

	case CreateGame:
		e.lifecycle(ctx, m.ClientID, "create", func(ctx context.Context) lifecycleDone {
			md, err := e.store.CreateGame(ctx, m.Name)
			if err != nil {
				return lifecycleDone{event: protocol.GameCreationFailed{Name: m.Name, Reason: err.Error()}}
			}
			return lifecycleDone{event: protocol.GameCreated{GameID: md.ID, Name: md.Name}}
		})

	case ListGames:
		e.lifecycle(ctx, m.ClientID, "list", func(ctx context.Context) lifecycleDone {
			games, err := e.store.ListGames(ctx)
			if err != nil {
				return lifecycleDone{event: protocol.ListGamesFailed{Reason: err.Error()}}
			}
			if games == nil {
				games = []game.Metadata{}
			}
			return lifecycleDone{event: protocol.GameList{Games: games}}
		})

	case DeleteGame:
		id := m.GameID
		if _, ok := e.deleting[id]; ok {
			e.sendTo(ctx, m.ClientID, protocol.GameDeletionFailed{GameID: id, Reason: ErrGameDeleting.Error()})
			return
		}
		e.suspend(ctx, id)
		e.lifecycle(ctx, m.ClientID, "delete", func(ctx context.Context) lifecycleDone {
			if err := e.store.DeleteGame(ctx, id); err != nil {
				return lifecycleDone{event: protocol.GameDeletionFailed{GameID: id, Reason: err.Error()}, target: &id}
			}
			return lifecycleDone{event: protocol.GameDeleted{GameID: id}, target: &id, deleted: true}
		})

	case lifecycleDone:
		notified := false
		if m.target != nil {
			id := *m.target
			delete(e.deleting, id)
			if m.deleted {
				e.deleted[id] = struct{}{}
				notified = e.teardown(ctx, id, m.clientID)
			} else {
				e.resume(id)
			}
		}
		if !notified {
			e.sendTo(ctx, m.clientID, m.event)
		}
	}
}

func reply(ch chan<- Attachment, att Attachment) {
	if ch == nil {
		return
	}
	select {
	case ch <- att:
	default:
	}
}

// lifecycle runs a metadata call off the engine goroutine and posts its
// result back as a control message.
func (e *Engine) lifecycle(ctx context.Context, clientID uuid.UUID, op string, call func(context.Context) lifecycleDone) {
	go func() {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.MetadataTimeout)
		res := call(cctx)
		cancel()
		res.clientID = clientID
		if err := e.Send(ctx, res); err != nil {
			e.log.Warn("drop metadata result", "op", op, "client_id", clientID, "err", err)
		}
	}()
}

// instance returns the running instance for id, cold-starting it if needed.
func (e *Engine) instance(ctx context.Context, id uuid.UUID) (*Instance, error) {
	if in, ok := e.instances[id]; ok {
		return in, nil
	}
	in, err := e.startInstance(ctx, id, e.cfg.Redrive)
	if err != nil {
		return nil, err
	}
	e.instances[id] = in
	e.metrics.ActiveInstances.Add(ctx, 1)
	e.log.Info("instance started", "game_id", id, "week", in.World.State.Week)
	return in, nil
}

func (e *Engine) attach(ctx context.Context, clientID, gameID uuid.UUID) Attachment {
	ce, ok := e.clients[clientID]
	if !ok {
		return Attachment{}
	}
	if _, ok := e.deleted[gameID]; ok {
		return Attachment{GameID: gameID, Err: ErrGameDeleted}
	}
	if _, ok := e.deleting[gameID]; ok {
		return Attachment{GameID: gameID, Err: ErrGameDeleting}
	}
	in, err := e.instance(ctx, gameID)
	if err != nil {
		e.log.Error("start instance", "game_id", gameID, "err", err)
		return Attachment{GameID: gameID, Err: err}
	}
	if ce.bound && ce.gameID != gameID {
		e.detach(ce)
	}
	ce.gameID = gameID
	ce.bound = true
	in.clients[clientID] = struct{}{}
	in.World.NeedsBroadcast = true
	in.World.NeedsStateUpdate = true
	return in.attachment()
}

func (e *Engine) detach(ce *clientEntry) {
	if !ce.bound {
		return
	}
	if in, ok := e.instances[ce.gameID]; ok {
		delete(in.clients, ce.client.ID)
	}
	ce.bound = false
}

// suspend processes whatever is queued for id and closes its logs, so the
// store can archive and remove the streams while nothing appends to them.
func (e *Engine) suspend(ctx context.Context, id uuid.UUID) {
	e.deleting[id] = struct{}{}
	in, ok := e.instances[id]
	if !ok {
		return
	}
	in.drain(ctx)
	if err := in.close(); err != nil {
		e.log.Error("close game logs", "game_id", id, "err", err)
	}
	in.cmdLog, in.evLog = nil, nil
}

// resume reopens the logs of an instance whose delete failed.
func (e *Engine) resume(id uuid.UUID) {
	in, ok := e.instances[id]
	if !ok {
		return
	}
	now := e.now()
	var err error
	if in.evLog, err = eventlog.OpenLatest[eventlog.LoggedEvent](e.layout.EventDir(id), now); err != nil {
		e.log.Error("reopen event log", "game_id", id, "err", err)
	}
	if in.cmdLog, err = eventlog.OpenLatest[eventlog.LoggedCommand](e.layout.CommandDir(id), now); err != nil {
		e.log.Error("reopen command log", "game_id", id, "err", err)
	}
}

// teardown removes a deleted game. Attached clients get GameDeleted; the
// return value reports whether requester was among them.
func (e *Engine) teardown(ctx context.Context, id, requester uuid.UUID) bool {
	in, ok := e.instances[id]
	if !ok {
		return false
	}
	delete(e.instances, id)
	close(in.done)
	if err := in.close(); err != nil {
		e.log.Error("close game logs", "game_id", id, "err", err)
	}
	e.metrics.ActiveInstances.Add(ctx, -1)

	payload, err := protocol.EncodeServer(protocol.GameDeleted{GameID: id})
	if err != nil {
		e.log.Error("encode game deleted", "err", err)
		return false
	}
	notified := false
	for cid := range in.clients {
		if ce, ok := e.clients[cid]; ok {
			ce.bound = false
			e.deliver(ctx, ce.client, payload)
		}
		if cid == requester {
			notified = true
		}
	}
	e.log.Info("instance removed", "game_id", id, "clients", len(in.clients))
	return notified
}

func (e *Engine) sendTo(ctx context.Context, clientID uuid.UUID, ev protocol.ServerEvent) {
	ce, ok := e.clients[clientID]
	if !ok {
		return
	}
	payload, err := protocol.EncodeServer(ev)
	if err != nil {
		e.log.Error("encode server event", "err", err)
		return
	}
	e.deliver(ctx, ce.client, payload)
}

func (e *Engine) deliver(ctx context.Context, c *Client, payload []byte) bool {
	select {
	case c.Out <- payload:
		e.metrics.BroadcastsSent.Add(ctx, 1)
		return true
	default:
		e.metrics.BroadcastsDropped.Add(ctx, 1)
		e.log.Debug("client queue full, dropping message", "client_id", c.ID)
		return false
	}
}

// broadcast pushes dirty snapshots to every attached client. Each payload is
// encoded once per instance.
func (e *Engine) broadcast(ctx context.Context) {
	for id, in := range e.instances {
		w := in.World
		if !w.NeedsBroadcast && !w.NeedsStateUpdate {
			continue
		}
		var payloads [][]byte
		if w.NeedsBroadcast {
			if p, err := protocol.EncodeServer(protocol.FullState{GameID: id, State: w.State}); err == nil {
				payloads = append(payloads, p)
			} else {
				e.log.Error("encode full state", "game_id", id, "err", err)
			}
		}
		if w.NeedsStateUpdate {
			if p, err := protocol.EncodeServer(protocol.HistoryState{GameID: id, History: w.History}); err == nil {
				payloads = append(payloads, p)
			} else {
				e.log.Error("encode history", "game_id", id, "err", err)
			}
		}
		w.NeedsBroadcast = false
		w.NeedsStateUpdate = false

		for cid := range in.clients {
			ce, ok := e.clients[cid]
			if !ok {
				continue
			}
			for _, p := range payloads {
				e.deliver(ctx, ce.client, p)
			}
		}
	}
}

// RejectCommand is used by connections for commands that cannot be routed.
func (e *Engine) RejectCommand(ctx context.Context, reason string) {
	e.metrics.CommandsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
