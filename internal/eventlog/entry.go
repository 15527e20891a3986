package eventlog

import (
	"time"

	"github.com/google/uuid"

	"corpsim/internal/game"
)

// Version is written into every log line.
const Version = 1

// LoggedCommand is one line of a command stream.
type LoggedCommand struct {
	Version   int              `json:"version"`
	Timestamp int64            `json:"timestamp"`
	ClientID  uuid.UUID        `json:"client_id"`
	GameID    uuid.UUID        `json:"game_id"`
	Command   game.CommandJSON `json:"command"`
}

// LoggedEvent is one line of an event stream.
type LoggedEvent struct {
	Version   int            `json:"version"`
	Timestamp int64          `json:"timestamp"`
	GameID    uuid.UUID      `json:"game_id"`
	Event     game.EventJSON `json:"event"`
}

func NewLoggedCommand(now time.Time, clientID, gameID uuid.UUID, cmd game.Command) LoggedCommand {
	return LoggedCommand{
		Version:   Version,
		Timestamp: now.UnixMilli(),
		ClientID:  clientID,
		GameID:    gameID,
		Command:   game.CommandJSON{Command: cmd},
	}
}

func NewLoggedEvent(now time.Time, gameID uuid.UUID, ev game.Event) LoggedEvent {
	return LoggedEvent{
		Version:   Version,
		Timestamp: now.UnixMilli(),
		GameID:    gameID,
		Event:     game.EventJSON{Event: ev},
	}
}
