package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"corpsim/internal/game"
)

// PostgresStore keeps metadata in corpsim.games. The schema is created by
// db.EnsureSchema.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateGame(ctx context.Context, name string) (game.Metadata, error) {
	name = strings.TrimSpace(name)
	if err := game.ValidateGameName(name); err != nil {
		return game.Metadata{}, err
	}
	md := game.Metadata{ID: uuid.New(), Name: name}
	err := s.db.QueryRow(ctx, `
		INSERT INTO corpsim.games (id, name)
		VALUES ($1, $2)
		RETURNING created_at
	`, md.ID, md.Name).Scan(&md.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return game.Metadata{}, fmt.Errorf("%w: %q", ErrGameExists, name)
		}
		return game.Metadata{}, fmt.Errorf("insert game: %w", err)
	}
	md.CreatedAt = md.CreatedAt.UTC()
	return md, nil
}

func (s *PostgresStore) ListGames(ctx context.Context) ([]game.Metadata, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, created_at
		FROM corpsim.games
		ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	out := []game.Metadata{}
	for rows.Next() {
		var md game.Metadata
		if err := rows.Scan(&md.ID, &md.Name, &md.CreatedAt); err != nil {
			return nil, err
		}
		md.CreatedAt = md.CreatedAt.UTC()
		out = append(out, md)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetGame(ctx context.Context, id uuid.UUID) (game.Metadata, error) {
	md := game.Metadata{ID: id}
	err := s.db.QueryRow(ctx, `
		SELECT name, created_at FROM corpsim.games WHERE id = $1
	`, id).Scan(&md.Name, &md.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Metadata{}, ErrGameNotFound
		}
		return game.Metadata{}, fmt.Errorf("get game: %w", err)
	}
	md.CreatedAt = md.CreatedAt.UTC()
	return md, nil
}

func (s *PostgresStore) DeleteGame(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM corpsim.games WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
