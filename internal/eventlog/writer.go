package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Writer appends one JSON object per line and flushes after every write.
type Writer[T any] struct {
	mu   sync.Mutex
	path string
	c    io.Closer
	w    *bufio.Writer
}

// NewWriter wraps an arbitrary destination. Close closes dst when it is an
// io.Closer.
func NewWriter[T any](dst io.Writer) *Writer[T] {
	w := &Writer[T]{w: bufio.NewWriterSize(dst, 64*1024)}
	if c, ok := dst.(io.Closer); ok {
		w.c = c
	}
	return w
}

// Create starts a new stream file in dir named after now.
func Create[T any](dir string, now time.Time) (*Writer[T], error) {
	return open[T](filepath.Join(dir, FileName(now)))
}

// OpenLatest appends to the newest plain stream file in dir, creating one when
// dir has none. A compressed newest file is never appended to.
func OpenLatest[T any](dir string, now time.Time) (*Writer[T], error) {
	path, err := LatestFile(dir)
	if err != nil && err != ErrNoLog {
		return nil, err
	}
	if err == ErrNoLog || !strings.HasSuffix(path, ExtPlain) {
		return Create[T](dir, now)
	}
	return open[T](path)
}

func open[T any](path string) (*Writer[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	w := NewWriter[T](f)
	w.path = path
	return w, nil
}

func (w *Writer[T]) Path() string { return w.path }

func (w *Writer[T]) Write(v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	err := w.w.Flush()
	w.w = nil
	if w.c != nil {
		if cerr := w.c.Close(); err == nil {
			err = cerr
		}
		w.c = nil
	}
	return err
}
