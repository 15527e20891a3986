package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"corpsim/internal/eventlog"
	"corpsim/internal/game"
)

// FileStore keeps metadata.json next to each game's log streams.
type FileStore struct {
	layout eventlog.Layout
	log    *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

func NewFileStore(dataDir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		layout: eventlog.Layout{DataDir: dataDir},
		log:    logger,
		now:    time.Now,
	}
}

func (s *FileStore) CreateGame(_ context.Context, name string) (game.Metadata, error) {
	name = strings.TrimSpace(name)
	if err := game.ValidateGameName(name); err != nil {
		return game.Metadata{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.listLocked()
	if err != nil {
		return game.Metadata{}, err
	}
	for _, m := range existing {
		if strings.EqualFold(m.Name, name) {
			return game.Metadata{}, fmt.Errorf("%w: %q", ErrGameExists, name)
		}
	}

	md := game.Metadata{ID: uuid.New(), Name: name, CreatedAt: s.now().UTC()}
	if err := os.MkdirAll(s.layout.GameDir(md.ID), 0o755); err != nil {
		return game.Metadata{}, fmt.Errorf("create game dir: %w", err)
	}
	raw, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return game.Metadata{}, err
	}
	if err := os.WriteFile(s.layout.MetadataPath(md.ID), raw, 0o644); err != nil {
		return game.Metadata{}, fmt.Errorf("write metadata: %w", err)
	}
	return md, nil
}

func (s *FileStore) ListGames(_ context.Context) ([]game.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *FileStore) listLocked() ([]game.Metadata, error) {
	ids, err := s.layout.GameIDs()
	if err != nil {
		return nil, err
	}
	out := make([]game.Metadata, 0, len(ids))
	for _, id := range ids {
		md, err := s.read(id)
		if err != nil {
			if !os.IsNotExist(err) {
				s.log.Warn("skip unreadable game metadata", "game_id", id, "err", err)
			}
			continue
		}
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *FileStore) read(id uuid.UUID) (game.Metadata, error) {
	raw, err := os.ReadFile(s.layout.MetadataPath(id))
	if err != nil {
		return game.Metadata{}, err
	}
	var md game.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return game.Metadata{}, err
	}
	return md, nil
}

func (s *FileStore) GetGame(_ context.Context, id uuid.UUID) (game.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, err := s.read(id)
	if err != nil {
		if os.IsNotExist(err) {
			return game.Metadata{}, ErrGameNotFound
		}
		return game.Metadata{}, err
	}
	return md, nil
}

// DeleteGame compresses the game's streams into the archive directory and
// then removes the live game directory.
func (s *FileStore) DeleteGame(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.layout.MetadataPath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrGameNotFound
		}
		return err
	}

	archive := s.layout.ArchiveDir(id)
	if _, err := eventlog.Archive(s.layout.CommandDir(id), filepath.Join(archive, "command_stream")); err != nil {
		return fmt.Errorf("archive commands: %w", err)
	}
	if _, err := eventlog.Archive(s.layout.EventDir(id), filepath.Join(archive, "event_stream")); err != nil {
		return fmt.Errorf("archive events: %w", err)
	}
	if raw, err := os.ReadFile(s.layout.MetadataPath(id)); err == nil {
		if err := os.MkdirAll(archive, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(archive, "metadata.json"), raw, 0o644); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(s.layout.GameDir(id)); err != nil {
		return fmt.Errorf("remove game dir: %w", err)
	}
	s.log.Info("game archived", "game_id", id, "archive", archive)
	return nil
}
