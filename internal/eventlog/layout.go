package eventlog

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	fileTimeLayout = "20060102T150405.000Z"

	ExtPlain = ".ndjson"
	ExtZstd  = ".ndjson.zst"
)

var ErrNoLog = errors.New("no log file")

// Layout resolves paths under a data directory:
//
//	<data>/games/<id>/metadata.json
//	<data>/games/<id>/command_stream/*.ndjson
//	<data>/games/<id>/event_stream/*.ndjson
//	<data>/archive/<id>/...
type Layout struct {
	DataDir string
}

func (l Layout) GamesDir() string { return filepath.Join(l.DataDir, "games") }

func (l Layout) GameDir(id uuid.UUID) string { return filepath.Join(l.GamesDir(), id.String()) }

func (l Layout) MetadataPath(id uuid.UUID) string {
	return filepath.Join(l.GameDir(id), "metadata.json")
}

func (l Layout) CommandDir(id uuid.UUID) string {
	return filepath.Join(l.GameDir(id), "command_stream")
}

func (l Layout) EventDir(id uuid.UUID) string {
	return filepath.Join(l.GameDir(id), "event_stream")
}

func (l Layout) ArchiveDir(id uuid.UUID) string {
	return filepath.Join(l.DataDir, "archive", id.String())
}

// GameIDs lists every game directory whose name parses as a UUID.
func (l Layout) GameIDs() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(l.GamesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// FileName is the name of a stream file started at t.
func FileName(t time.Time) string {
	return t.UTC().Format(fileTimeLayout) + ExtPlain
}

func isLogFile(name string) bool {
	return strings.HasSuffix(name, ExtPlain) || strings.HasSuffix(name, ExtZstd)
}

// ListFiles returns the stream files in dir, oldest first. Names are start
// timestamps, so lexical order is chronological.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isLogFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out, nil
}

// LatestFile returns the newest stream file in dir, or ErrNoLog.
func LatestFile(dir string) (string, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoLog
	}
	return files[len(files)-1], nil
}
