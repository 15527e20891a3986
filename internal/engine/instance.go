package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"corpsim/internal/config"
	"corpsim/internal/eventlog"
	"corpsim/internal/game"
	"corpsim/internal/observe"
)

// Instance is one running game. Everything on it is touched only by the
// engine goroutine except the commands channel.
type Instance struct {
	ID    uuid.UUID
	World *game.World

	commands chan Envelope
	done     chan struct{}
	clients  map[uuid.UUID]struct{}

	// queue holds events produced but not yet applied.
	queue []game.Event

	cmdLog *eventlog.Writer[eventlog.LoggedCommand]
	evLog  *eventlog.Writer[eventlog.LoggedEvent]

	now     func() time.Time
	log     *slog.Logger
	metrics *observe.Metrics
}

func (in *Instance) attachment() Attachment {
	return Attachment{GameID: in.ID, Commands: in.commands, Done: in.done}
}

// Process runs one command: log it, interpret it, apply and log the resulting
// events, then apply and log the rollup that follows every command.
func (in *Instance) Process(ctx context.Context, env Envelope) {
	start := time.Now()
	in.logCommand(ctx, env)

	in.enqueue(game.Interpret(in.World.State, env.Command)...)
	in.flush(ctx, true)
	in.enqueue(game.Rollup(in.World.State)...)
	in.flush(ctx, true)

	in.metrics.CommandsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(env.Command.CommandKind())),
	))
	in.metrics.CommandDuration.Record(ctx, time.Since(start).Seconds())
}

func (in *Instance) enqueue(evs ...game.Event) {
	in.queue = append(in.queue, evs...)
}

// flush applies every queued event in order, appending each to the event log
// when persist is set.
func (in *Instance) flush(ctx context.Context, persist bool) {
	for _, ev := range in.queue {
		game.Apply(ev, in.World)
		if persist {
			in.logEvent(ctx, ev)
		}
	}
	if n := len(in.queue); n > 0 {
		in.metrics.EventsApplied.Add(ctx, int64(n))
	}
	in.queue = in.queue[:0]
}

// drain processes the commands queued at the start of the call.
func (in *Instance) drain(ctx context.Context) {
	for n := len(in.commands); n > 0; n-- {
		in.Process(ctx, <-in.commands)
	}
}

func (in *Instance) logCommand(ctx context.Context, env Envelope) {
	if in.cmdLog == nil {
		return
	}
	rec := eventlog.NewLoggedCommand(in.now(), env.ClientID, in.ID, env.Command)
	if err := in.cmdLog.Write(rec); err != nil {
		in.log.Error("command log write failed", "game_id", in.ID, "err", err)
		in.metrics.LogWriteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stream", "command")))
	}
}

func (in *Instance) logEvent(ctx context.Context, ev game.Event) {
	if in.evLog == nil {
		return
	}
	if err := in.evLog.Write(eventlog.NewLoggedEvent(in.now(), in.ID, ev)); err != nil {
		in.log.Error("event log write failed", "game_id", in.ID, "kind", ev.Kind(), "err", err)
		in.metrics.LogWriteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stream", "event")))
	}
}

func (in *Instance) close() error {
	var errs []error
	if in.cmdLog != nil {
		errs = append(errs, in.cmdLog.Close())
	}
	if in.evLog != nil {
		errs = append(errs, in.evLog.Close())
	}
	return errors.Join(errs...)
}

// startInstance builds an instance for id according to mode:
//
//   - event: replay the newest event file and keep appending to it.
//   - command: regenerate the world and re-run the newest command file
//     through the processor, writing fresh streams.
//   - none, or no usable log: generate a new world.
func (e *Engine) startInstance(ctx context.Context, id uuid.UUID, mode config.RedriveMode) (*Instance, error) {
	in := &Instance{
		ID:       id,
		World:    game.NewWorld(),
		commands: make(chan Envelope, e.cfg.CommandQueue),
		done:     make(chan struct{}),
		clients:  map[uuid.UUID]struct{}{},
		now:      e.now,
		log:      e.log.With("game_id", id),
		metrics:  e.metrics,
	}
	cmdDir := e.layout.CommandDir(id)
	evDir := e.layout.EventDir(id)
	now := e.now()

	switch mode {
	case config.RedriveEvent:
		path, err := eventlog.LatestFile(evDir)
		if err == nil {
			if err := e.replayEvents(ctx, in, path); err != nil {
				return nil, err
			}
			if in.evLog, err = eventlog.OpenLatest[eventlog.LoggedEvent](evDir, now); err != nil {
				return nil, err
			}
			if in.cmdLog, err = eventlog.OpenLatest[eventlog.LoggedCommand](cmdDir, now); err != nil {
				_ = in.close()
				return nil, err
			}
			return in, nil
		}
		if !errors.Is(err, eventlog.ErrNoLog) {
			return nil, err
		}

	case config.RedriveCommand:
		path, err := eventlog.LatestFile(cmdDir)
		if err == nil {
			var cmds []eventlog.LoggedCommand
			st, err := eventlog.ReadFile(path, func(c eventlog.LoggedCommand) error {
				cmds = append(cmds, c)
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("read command log: %w", err)
			}
			e.countSkipped(ctx, in, st)
			if err := e.openFresh(in, now); err != nil {
				return nil, err
			}
			e.generate(ctx, in)
			for _, c := range cmds {
				if c.Command.Command == nil {
					continue
				}
				in.Process(ctx, Envelope{ClientID: c.ClientID, GameID: id, Command: c.Command.Command})
			}
			in.log.Info("command log redriven", "path", path, "commands", len(cmds))
			return in, nil
		}
		if !errors.Is(err, eventlog.ErrNoLog) {
			return nil, err
		}
	}

	if err := e.openFresh(in, now); err != nil {
		return nil, err
	}
	e.generate(ctx, in)
	return in, nil
}

func (e *Engine) openFresh(in *Instance, now time.Time) error {
	var err error
	if in.cmdLog, err = eventlog.Create[eventlog.LoggedCommand](e.layout.CommandDir(in.ID), now); err != nil {
		return err
	}
	if in.evLog, err = eventlog.Create[eventlog.LoggedEvent](e.layout.EventDir(in.ID), now); err != nil {
		_ = in.cmdLog.Close()
		return err
	}
	return nil
}

// generate seeds the world. The GenerateWorld event is logged like any other
// so an event replay starts from the same world.
func (e *Engine) generate(ctx context.Context, in *Instance) {
	in.enqueue(game.GenerateWorld{
		Seed:     game.SeedForGame(in.ID),
		Week:     e.cfg.StartWeek,
		OrgCount: e.cfg.OrgCount,
	})
	in.flush(ctx, true)
}

func (e *Engine) replayEvents(ctx context.Context, in *Instance, path string) error {
	st, err := eventlog.ReadFile(path, func(le eventlog.LoggedEvent) error {
		in.enqueue(le.Event.Event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	in.flush(ctx, false)
	e.countSkipped(ctx, in, st)
	in.log.Info("event log replayed", "path", path, "events", st.Lines, "skipped", st.Skipped, "week", in.World.State.Week)
	return nil
}

func (e *Engine) countSkipped(ctx context.Context, in *Instance, st eventlog.Stats) {
	if st.Skipped == 0 {
		return
	}
	in.log.Warn("skipped malformed log lines", "count", st.Skipped)
	e.metrics.LogLinesSkipped.Add(ctx, int64(st.Skipped))
}
