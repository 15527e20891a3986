package protocol

import (
	"github.com/google/uuid"

	"corpsim/internal/game"
)

const Version = 1

// Message types.
const (
	TypeHello      = "hello"
	TypeAction     = "action"
	TypeCreateGame = "create_game"
	TypeListGames  = "list_games"
	TypeDeleteGame = "delete_game"

	TypeNone               = "none"
	TypeFullState          = "full_state"
	TypeHistoryState       = "history_state"
	TypeGameCreated        = "game_created"
	TypeGameCreationFailed = "game_creation_failed"
	TypeListGamesFailed    = "list_games_failed"
	TypeGameDeleted        = "game_deleted"
	TypeGameDeletionFailed = "game_deletion_failed"
	TypeCommandRejected    = "command_rejected"
)

type Mode string

const (
	ModeOperator        Mode = "operator"
	ModeDashboardViewer Mode = "dashboard_viewer"
)

func (m Mode) Valid() bool { return m == ModeOperator || m == ModeDashboardViewer }

// ClientMessage is anything a client may send after connecting.
type ClientMessage interface {
	clientType() string
}

// Hello must be the first frame on every connection.
type Hello struct {
	Mode            Mode       `json:"mode"`
	GameID          *uuid.UUID `json:"game_id,omitempty"`
	ProtocolVersion int        `json:"protocol_version"`
}

type Action struct {
	RequestedGameID uuid.UUID        `json:"requested_game_id"`
	Command         game.CommandJSON `json:"command"`
}

type CreateGame struct {
	GameName string `json:"game_name"`
}

type ListGames struct{}

type DeleteGame struct {
	GameID uuid.UUID `json:"game_id"`
}

func (Hello) clientType() string      { return TypeHello }
func (Action) clientType() string     { return TypeAction }
func (CreateGame) clientType() string { return TypeCreateGame }
func (ListGames) clientType() string  { return TypeListGames }
func (DeleteGame) clientType() string { return TypeDeleteGame }

// ServerEvent is anything the server pushes to a client.
type ServerEvent interface {
	serverType() string
}

type None struct{}

// HelloReply answers a Hello. Reason is set only when Accepted is false.
type HelloReply struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

type FullState struct {
	GameID uuid.UUID       `json:"game_id"`
	State  *game.GameState `json:"state"`
}

type HistoryState struct {
	GameID  uuid.UUID          `json:"game_id"`
	History *game.HistoryState `json:"history"`
}

type GameCreated struct {
	GameID uuid.UUID `json:"game_id"`
	Name   string    `json:"name"`
}

type GameCreationFailed struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type GameList struct {
	Games []game.Metadata `json:"games"`
}

type ListGamesFailed struct {
	Reason string `json:"reason"`
}

type GameDeleted struct {
	GameID uuid.UUID `json:"game_id"`
}

type GameDeletionFailed struct {
	GameID uuid.UUID `json:"game_id"`
	Reason string    `json:"reason"`
}

type CommandRejected struct {
	Reason string `json:"reason"`
}

func (None) serverType() string               { return TypeNone }
func (HelloReply) serverType() string         { return TypeHello }
func (FullState) serverType() string          { return TypeFullState }
func (HistoryState) serverType() string       { return TypeHistoryState }
func (GameCreated) serverType() string        { return TypeGameCreated }
func (GameCreationFailed) serverType() string { return TypeGameCreationFailed }
func (GameList) serverType() string           { return TypeListGames }
func (ListGamesFailed) serverType() string    { return TypeListGamesFailed }
func (GameDeleted) serverType() string        { return TypeGameDeleted }
func (GameDeletionFailed) serverType() string { return TypeGameDeletionFailed }
func (CommandRejected) serverType() string    { return TypeCommandRejected }
