package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"corpsim/internal/protocol"
)

var ErrRejected = errors.New("server rejected hello")

const (
	maxBackoffExponent = 6
	maxBackoff         = 30 * time.Second
	republishEvery     = time.Second
)

// Backoff is the wait before reconnect attempt n: 2^min(n,6) seconds, capped
// at 30s.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxBackoffExponent {
		attempts = maxBackoffExponent
	}
	d := time.Duration(1<<attempts) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

type StateKind string

const (
	Connecting   StateKind = "connecting"
	Connected    StateKind = "connected"
	Reconnecting StateKind = "reconnecting"
	Disconnected StateKind = "disconnected"
	Error        StateKind = "error"
	Rejected     StateKind = "rejected"
)

// State is one connection state transition. Attempts and NextAttemptIn are
// set only for Reconnecting, Reason only for Error and Rejected.
type State struct {
	Kind          StateKind
	Attempts      int
	NextAttemptIn time.Duration
	Reason        string
}

func (s State) String() string {
	switch s.Kind {
	case Reconnecting:
		return fmt.Sprintf("reconnecting (attempt %d, next in %s)", s.Attempts, s.NextAttemptIn.Round(time.Second))
	case Error, Rejected:
		return fmt.Sprintf("%s: %s", s.Kind, s.Reason)
	default:
		return string(s.Kind)
	}
}

type Config struct {
	Addr        string
	Mode        protocol.Mode
	GameID      *uuid.UUID
	DialTimeout time.Duration
	Queue       int
}

// Conn keeps one logical session to the game server alive across TCP
// reconnects. Messages queued with Send while disconnected are delivered
// after the next successful handshake.
type Conn struct {
	cfg Config
	log *slog.Logger

	states chan State
	events chan protocol.ServerEvent
	out    chan protocol.ClientMessage

	mu       sync.Mutex
	clientID string
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
}

func New(cfg Config, logger *slog.Logger) *Conn {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 64
	}
	if cfg.Mode == "" {
		cfg.Mode = protocol.ModeOperator
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Conn{
		cfg:    cfg,
		log:    logger,
		states: make(chan State, 16),
		events: make(chan protocol.ServerEvent, cfg.Queue),
		out:    make(chan protocol.ClientMessage, cfg.Queue),
		dial:   d.DialContext,
	}
}

// States publishes connection transitions. Old states are dropped when the
// reader falls behind.
func (c *Conn) States() <-chan State { return c.states }

func (c *Conn) Events() <-chan protocol.ServerEvent { return c.events }

// ClientID is the id assigned by the server on the last accepted hello.
func (c *Conn) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *Conn) Send(ctx context.Context, m protocol.ClientMessage) error {
	select {
	case c.out <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) publish(s State) {
	for {
		select {
		case c.states <- s:
			return
		default:
		}
		select {
		case <-c.states:
		default:
		}
	}
}

// Run connects and reconnects until ctx is cancelled or the server rejects
// the hello.
func (c *Conn) Run(ctx context.Context) error {
	attempts := 0
	for {
		c.publish(State{Kind: Connecting})
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			c.publish(State{Kind: Disconnected})
			return nil
		}
		if errors.Is(err, ErrRejected) {
			c.publish(State{Kind: Rejected, Reason: err.Error()})
			return err
		}
		if err != nil {
			c.log.Warn("connection lost", "addr", c.cfg.Addr, "err", err)
			c.publish(State{Kind: Error, Reason: err.Error()})
		}
		if connected {
			attempts = 0
		}
		attempts++
		if !c.wait(ctx, attempts) {
			c.publish(State{Kind: Disconnected})
			return nil
		}
	}
}

// wait sleeps for the backoff of attempts, republishing Reconnecting every
// second. It returns false when ctx ends first.
func (c *Conn) wait(ctx context.Context, attempts int) bool {
	delay := Backoff(attempts)
	deadline := time.Now().Add(delay)
	ticker := time.NewTicker(republishEvery)
	defer ticker.Stop()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	c.publish(State{Kind: Reconnecting, Attempts: attempts, NextAttemptIn: delay})
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-ticker.C:
			left := time.Until(deadline)
			if left < 0 {
				left = 0
			}
			c.publish(State{Kind: Reconnecting, Attempts: attempts, NextAttemptIn: left})
		}
	}
}

// session runs one connection. connected reports whether the handshake
// succeeded, which resets the backoff.
func (c *Conn) session(ctx context.Context) (connected bool, err error) {
	conn, err := c.dial(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	defer conn.Close()

	if err := c.handshake(conn); err != nil {
		return false, err
	}
	c.publish(State{Kind: Connected})
	c.log.Info("connected", "addr", c.cfg.Addr, "client_id", c.ClientID())

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sctx.Done()
		_ = conn.Close()
	}()

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(sctx, conn)
	}()

	for {
		select {
		case <-sctx.Done():
			return true, nil
		case err := <-readErr:
			return true, err
		case m := <-c.out:
			b, err := protocol.EncodeClient(m)
			if err != nil {
				c.log.Error("encode client message", "err", err)
				continue
			}
			if err := protocol.WriteFrame(conn, b); err != nil {
				return true, fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (c *Conn) handshake(conn net.Conn) error {
	_ = conn.SetDeadline(time.Now().Add(c.cfg.DialTimeout))
	defer conn.SetDeadline(time.Time{})

	b, err := protocol.EncodeClient(protocol.Hello{Mode: c.cfg.Mode, GameID: c.cfg.GameID, ProtocolVersion: protocol.Version})
	if err != nil {
		return err
	}
	if err := protocol.WriteFrame(conn, b); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	raw, err := protocol.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("read hello reply: %w", err)
	}
	ev, err := protocol.DecodeServer(raw)
	if err != nil {
		return fmt.Errorf("decode hello reply: %w", err)
	}
	reply, ok := ev.(protocol.HelloReply)
	if !ok {
		return fmt.Errorf("expected hello reply, got %T", ev)
	}
	if !reply.Accepted {
		return fmt.Errorf("%w: %s", ErrRejected, reply.Reason)
	}
	c.mu.Lock()
	c.clientID = reply.ClientID
	c.mu.Unlock()
	return nil
}

func (c *Conn) readLoop(ctx context.Context, conn net.Conn) error {
	for {
		raw, err := protocol.ReadFrame(conn)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		ev, err := protocol.DecodeServer(raw)
		if err != nil {
			c.log.Warn("skipping undecodable server event", "err", err)
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
