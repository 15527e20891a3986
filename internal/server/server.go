package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"corpsim/internal/engine"
	"corpsim/internal/protocol"
)

type Config struct {
	ClientQueue      int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Server accepts TCP connections, runs the hello handshake and moves frames
// between each connection and the engine.
type Server struct {
	eng     *engine.Engine
	cfg     Config
	log     *slog.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]net.Conn
}

func New(eng *engine.Engine, cfg Config, logger *slog.Logger) *Server {
	if cfg.ClientQueue <= 0 {
		cfg.ClientQueue = 64
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		eng:   eng,
		cfg:   cfg,
		log:   logger,
		conns: map[uuid.UUID]net.Conn{},
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts until ctx is cancelled, then closes the listener and every
// open connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("game server listening", "addr", ln.Addr().String())
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeAll()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn("accept failed", "err", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Connections reports how many clients are past the handshake.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(id uuid.UUID, conn net.Conn) {
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
}

func (s *Server) untrack(id uuid.UUID) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) handshake(conn net.Conn) (protocol.Hello, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	raw, err := protocol.ReadFrame(conn)
	if err != nil {
		return protocol.Hello{}, err
	}
	msg, err := protocol.DecodeClient(raw)
	if err != nil {
		return protocol.Hello{}, err
	}
	hello, ok := msg.(protocol.Hello)
	if !ok {
		return protocol.Hello{}, errors.New("expected hello")
	}
	if hello.ProtocolVersion != protocol.Version {
		return protocol.Hello{}, fmt.Errorf("protocol version %d not supported, server speaks %d", hello.ProtocolVersion, protocol.Version)
	}
	return hello, nil
}

func (s *Server) writeNow(conn net.Conn, ev protocol.ServerEvent) error {
	payload, err := protocol.EncodeServer(ev)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return protocol.WriteFrame(conn, payload)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	hello, err := s.handshake(conn)
	if err != nil {
		s.log.Info("handshake rejected", "remote", remote, "err", err)
		if !errors.Is(err, io.EOF) {
			_ = s.writeNow(conn, protocol.HelloReply{Accepted: false, Reason: err.Error()})
		}
		return
	}

	client := &engine.Client{
		ID:   uuid.New(),
		Mode: hello.Mode,
		Out:  make(chan []byte, s.cfg.ClientQueue),
	}
	if err := s.writeNow(conn, protocol.HelloReply{Accepted: true, ClientID: client.ID.String()}); err != nil {
		return
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.track(client.ID, conn)
	defer s.untrack(client.ID)

	replyCh := make(chan engine.Attachment, 1)
	if err := s.eng.Send(cctx, engine.Connected{Client: client, GameID: hello.GameID, Reply: replyCh}); err != nil {
		return
	}
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), time.Second)
		defer dcancel()
		_ = s.eng.Send(dctx, engine.Disconnected{ClientID: client.ID})
	}()

	var att engine.Attachment
	select {
	case att = <-replyCh:
	case <-cctx.Done():
		return
	}
	s.log.Info("client connected", "client_id", client.ID, "remote", remote, "mode", hello.Mode, "game_id", att.GameID)

	go s.writeLoop(cctx, cancel, conn, client)

	c := &session{srv: s, client: client, att: att}
	for {
		raw, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && cctx.Err() == nil {
				s.log.Info("client read failed", "client_id", client.ID, "err", err)
			}
			return
		}
		msg, err := protocol.DecodeClient(raw)
		if err != nil {
			s.log.Warn("malformed client payload, disconnecting", "client_id", client.ID, "err", err)
			return
		}
		if err := c.dispatch(cctx, msg); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn net.Conn, client *engine.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-client.Out:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := protocol.WriteFrame(conn, b); err != nil {
				s.log.Info("client write failed", "client_id", client.ID, "err", err)
				cancel()
				_ = conn.Close()
				return
			}
		}
	}
}

// session is the per-connection routing state owned by the reader goroutine.
type session struct {
	srv    *Server
	client *engine.Client
	att    engine.Attachment
}

func (c *session) dispatch(ctx context.Context, msg protocol.ClientMessage) error {
	eng := c.srv.eng
	switch m := msg.(type) {
	case protocol.Hello:
		c.srv.log.Debug("ignoring repeated hello", "client_id", c.client.ID)
		return nil
	case protocol.Action:
		c.route(ctx, m)
		return nil
	case protocol.CreateGame:
		return eng.Send(ctx, engine.CreateGame{ClientID: c.client.ID, Name: m.GameName})
	case protocol.ListGames:
		return eng.Send(ctx, engine.ListGames{ClientID: c.client.ID})
	case protocol.DeleteGame:
		return eng.Send(ctx, engine.DeleteGame{ClientID: c.client.ID, GameID: m.GameID})
	default:
		return nil
	}
}

func (c *session) route(ctx context.Context, a protocol.Action) {
	if c.client.Mode != protocol.ModeOperator {
		c.reject(ctx, "dashboard viewers cannot send commands")
		return
	}
	if c.att.Attached() && c.att.GameID == a.RequestedGameID {
		select {
		case <-c.att.Done:
			c.att = engine.Attachment{}
		default:
		}
	}
	if !c.att.Attached() || c.att.GameID != a.RequestedGameID {
		replyCh := make(chan engine.Attachment, 1)
		if err := c.srv.eng.Send(ctx, engine.Attach{ClientID: c.client.ID, GameID: a.RequestedGameID, Reply: replyCh}); err != nil {
			c.reject(ctx, "server shutting down")
			return
		}
		select {
		case c.att = <-replyCh:
		case <-ctx.Done():
			return
		}
		if !c.att.Attached() {
			reason := "game unavailable"
			if errors.Is(c.att.Err, engine.ErrGameDeleted) || errors.Is(c.att.Err, engine.ErrGameDeleting) {
				reason = c.att.Err.Error()
			}
			c.reject(ctx, reason)
			return
		}
	}

	env := engine.Envelope{ClientID: c.client.ID, GameID: a.RequestedGameID, Command: a.Command.Command}
	select {
	case <-c.att.Done:
		c.att = engine.Attachment{}
		c.reject(ctx, "game deleted")
		return
	default:
	}
	select {
	case c.att.Commands <- env:
	default:
		c.reject(ctx, "command queue full")
	}
}

func (c *session) reject(ctx context.Context, reason string) {
	c.srv.eng.RejectCommand(ctx, reason)
	payload, err := protocol.EncodeServer(protocol.CommandRejected{Reason: reason})
	if err != nil {
		return
	}
	select {
	case c.client.Out <- payload:
	default:
	}
}
