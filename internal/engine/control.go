package engine

import (
	"github.com/google/uuid"

	"corpsim/internal/game"
	"corpsim/internal/protocol"
)

// Client is the engine's view of one connection. Out is owned by the
// connection; the engine only ever does non-blocking sends on it and never
// closes it.
type Client struct {
	ID   uuid.UUID
	Mode protocol.Mode
	Out  chan []byte
}

// Envelope is a command on its way into an instance.
type Envelope struct {
	ClientID uuid.UUID
	GameID   uuid.UUID
	Command  game.Command
}

// Attachment is handed back to a connection once it is bound to an instance.
// Sends on Commands must be non-blocking; Done is closed when the instance is
// torn down. Err says why an attach was refused.
type Attachment struct {
	GameID   uuid.UUID
	Commands chan<- Envelope
	Done     <-chan struct{}
	Err      error
}

// Attached reports whether the attachment refers to an instance.
func (a Attachment) Attached() bool { return a.Commands != nil }

// Control is a message on the engine's control channel.
type Control interface {
	control()
}

// Connected registers a client. With a GameID it is also attached, and the
// attachment is sent on Reply.
type Connected struct {
	Client *Client
	GameID *uuid.UUID
	Reply  chan<- Attachment
}

// Attach moves a registered client to another game, cold-starting it when
// needed.
type Attach struct {
	ClientID uuid.UUID
	GameID   uuid.UUID
	Reply    chan<- Attachment
}

type Disconnected struct {
	ClientID uuid.UUID
}

type CreateGame struct {
	ClientID uuid.UUID
	Name     string
}

type ListGames struct {
	ClientID uuid.UUID
}

type DeleteGame struct {
	ClientID uuid.UUID
	GameID   uuid.UUID
}

// lifecycleDone carries the result of a metadata call back onto the engine
// goroutine.
type lifecycleDone struct {
	clientID uuid.UUID
	event    protocol.ServerEvent
	target   *uuid.UUID
	deleted  bool
}

func (Connected) control()     {}
func (Attach) control()        {}
func (Disconnected) control()  {}
func (CreateGame) control()    {}
func (ListGames) control()     {}
func (DeleteGame) control()    {}
func (lifecycleDone) control() {}
