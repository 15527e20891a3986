package metadata

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"corpsim/internal/game"
	"corpsim/internal/observe"
)

// Instrumented counts every call to the wrapped store by operation and
// outcome.
type Instrumented struct {
	next    Store
	metrics *observe.Metrics
}

func NewInstrumented(next Store, m *observe.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (s *Instrumented) record(ctx context.Context, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.MetadataRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

func (s *Instrumented) CreateGame(ctx context.Context, name string) (game.Metadata, error) {
	md, err := s.next.CreateGame(ctx, name)
	s.record(ctx, "create", err)
	return md, err
}

func (s *Instrumented) ListGames(ctx context.Context) ([]game.Metadata, error) {
	games, err := s.next.ListGames(ctx)
	s.record(ctx, "list", err)
	return games, err
}

func (s *Instrumented) GetGame(ctx context.Context, id uuid.UUID) (game.Metadata, error) {
	md, err := s.next.GetGame(ctx, id)
	s.record(ctx, "get", err)
	return md, err
}

func (s *Instrumented) DeleteGame(ctx context.Context, id uuid.UUID) error {
	err := s.next.DeleteGame(ctx, id)
	s.record(ctx, "delete", err)
	return err
}
