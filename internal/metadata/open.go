package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"corpsim/internal/db"
)

type Options struct {
	Backend     string
	DataDir     string
	DatabaseURL string
	URL         string
	Logger      *slog.Logger
}

// Open builds the store named by opts.Backend. The returned func releases
// whatever the store holds and is never nil.
func Open(ctx context.Context, opts Options) (Store, func(), error) {
	noop := func() {}
	switch opts.Backend {
	case "", "file":
		return NewFileStore(opts.DataDir, opts.Logger), noop, nil
	case "postgres":
		pool, err := db.Connect(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("db connect: %w", err)
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("ensure schema: %w", err)
		}
		return NewPostgresStore(pool), pool.Close, nil
	case "http":
		return NewHTTPStore(opts.URL), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown metadata backend %q", opts.Backend)
	}
}
