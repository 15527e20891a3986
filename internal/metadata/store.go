package metadata

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"corpsim/internal/game"
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrGameExists   = errors.New("a game with that name already exists")
)

// Store is the game metadata collaborator. Every method may fail with a
// reason that is reported back to the requesting client.
type Store interface {
	CreateGame(ctx context.Context, name string) (game.Metadata, error)
	ListGames(ctx context.Context) ([]game.Metadata, error)
	GetGame(ctx context.Context, id uuid.UUID) (game.Metadata, error)
	DeleteGame(ctx context.Context, id uuid.UUID) error
}
