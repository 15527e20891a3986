package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"corpsim/internal/client"
	"corpsim/internal/game"
	"corpsim/internal/protocol"
)

// Client runs one-shot request/response exchanges against the game server.
// Every call opens its own connection.
type Client struct {
	Addr    string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewClient(addr string) *Client {
	return &Client{
		Addr:    addr,
		Timeout: 30 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// ErrUnreachable means no connection could be established.
var ErrUnreachable = errors.New("game server unreachable")

// RejectedError is a CommandRejected reply.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "command rejected: " + e.Reason
}

type exchange struct {
	conn   *client.Conn
	cancel context.CancelFunc
	done   chan error
}

func (c *Client) open(ctx context.Context, mode protocol.Mode, gameID *uuid.UUID) (*exchange, context.Context, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	conn := client.New(client.Config{Addr: c.Addr, Mode: mode, GameID: gameID}, c.Logger)
	x := &exchange{conn: conn, cancel: cancel, done: make(chan error, 1)}
	go func() { x.done <- conn.Run(ctx) }()

	for {
		select {
		case s := <-conn.States():
			switch s.Kind {
			case client.Connected:
				return x, ctx, nil
			case client.Error:
				x.close()
				return nil, nil, fmt.Errorf("%w: %s: %s", ErrUnreachable, c.Addr, s.Reason)
			case client.Rejected:
				x.close()
				return nil, nil, fmt.Errorf("connect %s: %s", c.Addr, s.Reason)
			}
		case <-ctx.Done():
			x.close()
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, c.Addr, ctx.Err())
		}
	}
}

func (x *exchange) close() {
	x.cancel()
	<-x.done
}

func (x *exchange) send(ctx context.Context, m protocol.ClientMessage) error {
	return x.conn.Send(ctx, m)
}

// await returns the first event accepted by match. A CommandRejected reply
// or a dropped connection ends the wait with an error.
func (x *exchange) await(ctx context.Context, match func(protocol.ServerEvent) bool) (protocol.ServerEvent, error) {
	for {
		select {
		case ev := <-x.conn.Events():
			if r, ok := ev.(protocol.CommandRejected); ok {
				return nil, &RejectedError{Reason: r.Reason}
			}
			if match(ev) {
				return ev, nil
			}
		case s := <-x.conn.States():
			if s.Kind == client.Error || s.Kind == client.Rejected {
				return nil, errors.New(s.Reason)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func isFullState(gameID uuid.UUID) func(protocol.ServerEvent) bool {
	return func(ev protocol.ServerEvent) bool {
		fs, ok := ev.(protocol.FullState)
		return ok && fs.GameID == gameID && fs.State != nil
	}
}

func (c *Client) CreateGame(ctx context.Context, name string) (protocol.GameCreated, error) {
	x, ctx, err := c.open(ctx, protocol.ModeOperator, nil)
	if err != nil {
		return protocol.GameCreated{}, err
	}
	defer x.close()
	if err := x.send(ctx, protocol.CreateGame{GameName: name}); err != nil {
		return protocol.GameCreated{}, err
	}
	ev, err := x.await(ctx, func(ev protocol.ServerEvent) bool {
		switch ev.(type) {
		case protocol.GameCreated, protocol.GameCreationFailed:
			return true
		}
		return false
	})
	if err != nil {
		return protocol.GameCreated{}, err
	}
	if f, ok := ev.(protocol.GameCreationFailed); ok {
		return protocol.GameCreated{}, fmt.Errorf("create game %q: %s", f.Name, f.Reason)
	}
	return ev.(protocol.GameCreated), nil
}

func (c *Client) ListGames(ctx context.Context) ([]game.Metadata, error) {
	x, ctx, err := c.open(ctx, protocol.ModeOperator, nil)
	if err != nil {
		return nil, err
	}
	defer x.close()
	if err := x.send(ctx, protocol.ListGames{}); err != nil {
		return nil, err
	}
	ev, err := x.await(ctx, func(ev protocol.ServerEvent) bool {
		switch ev.(type) {
		case protocol.GameList, protocol.ListGamesFailed:
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if f, ok := ev.(protocol.ListGamesFailed); ok {
		return nil, fmt.Errorf("list games: %s", f.Reason)
	}
	return ev.(protocol.GameList).Games, nil
}

func (c *Client) DeleteGame(ctx context.Context, id uuid.UUID) error {
	x, ctx, err := c.open(ctx, protocol.ModeOperator, nil)
	if err != nil {
		return err
	}
	defer x.close()
	if err := x.send(ctx, protocol.DeleteGame{GameID: id}); err != nil {
		return err
	}
	ev, err := x.await(ctx, func(ev protocol.ServerEvent) bool {
		switch e := ev.(type) {
		case protocol.GameDeleted:
			return e.GameID == id
		case protocol.GameDeletionFailed:
			return e.GameID == id
		}
		return false
	})
	if err != nil {
		return err
	}
	if f, ok := ev.(protocol.GameDeletionFailed); ok {
		return fmt.Errorf("delete game %s: %s", id, f.Reason)
	}
	return nil
}

// Snapshot attaches as a viewer and returns the first full state.
func (c *Client) Snapshot(ctx context.Context, gameID uuid.UUID) (*game.GameState, error) {
	x, ctx, err := c.open(ctx, protocol.ModeDashboardViewer, &gameID)
	if err != nil {
		return nil, err
	}
	defer x.close()
	ev, err := x.await(ctx, isFullState(gameID))
	if err != nil {
		return nil, err
	}
	return ev.(protocol.FullState).State, nil
}

// Submit sends cmd to gameID and returns the state broadcast after it was
// processed.
func (c *Client) Submit(ctx context.Context, gameID uuid.UUID, cmd game.Command) (*game.GameState, error) {
	x, ctx, err := c.open(ctx, protocol.ModeOperator, &gameID)
	if err != nil {
		return nil, err
	}
	defer x.close()
	if _, err := x.await(ctx, isFullState(gameID)); err != nil {
		return nil, err
	}
	if err := x.send(ctx, protocol.Action{RequestedGameID: gameID, Command: game.CommandJSON{Command: cmd}}); err != nil {
		return nil, err
	}
	ev, err := x.await(ctx, isFullState(gameID))
	if err != nil {
		return nil, err
	}
	return ev.(protocol.FullState).State, nil
}

// Watch streams events for gameID until ctx ends, reconnecting with backoff.
// onState sees every connection transition.
func (c *Client) Watch(ctx context.Context, gameID uuid.UUID, onEvent func(protocol.ServerEvent), onState func(client.State)) error {
	conn := client.New(client.Config{Addr: c.Addr, Mode: protocol.ModeDashboardViewer, GameID: &gameID}, c.Logger)
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()
	for {
		select {
		case ev := <-conn.Events():
			onEvent(ev)
		case s := <-conn.States():
			onState(s)
		case err := <-done:
			return err
		}
	}
}
