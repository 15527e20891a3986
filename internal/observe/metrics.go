// Package observe holds the OpenTelemetry metric instruments shared by the
// game server and the metadata service, and the Prometheus bridge that exposes
// them on /metrics.
//
// Tests should build their own [Metrics] with [NewMetrics] and a manual reader
// instead of relying on the global provider.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "corpsim"

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// CommandsProcessed counts commands run through an instance. Attribute:
	//   attribute.String("kind", ...)
	CommandsProcessed metric.Int64Counter

	// CommandsRejected counts commands that never reached an instance.
	// Attribute: attribute.String("reason", ...)
	CommandsRejected metric.Int64Counter

	EventsApplied metric.Int64Counter

	// CommandDuration is the time from dequeue to the last rollup event.
	CommandDuration metric.Float64Histogram

	// TickDuration is the wall time of one engine tick.
	TickDuration metric.Float64Histogram

	BroadcastsSent metric.Int64Counter

	// BroadcastsDropped counts snapshots not delivered because a client's
	// outbound queue was full.
	BroadcastsDropped metric.Int64Counter

	// LogWriteErrors counts lost log lines. Attribute:
	//   attribute.String("stream", "command"|"event")
	LogWriteErrors metric.Int64Counter

	// LogLinesSkipped counts malformed lines ignored during replay.
	LogLinesSkipped metric.Int64Counter

	ActiveInstances  metric.Int64UpDownCounter
	ConnectedClients metric.Int64UpDownCounter

	// MetadataRequests counts metadata store calls. Attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	MetadataRequests metric.Int64Counter

	// HTTPRequestDuration tracks the metadata API. Attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CommandsProcessed, err = m.Int64Counter("corpsim.commands.processed",
		metric.WithDescription("Commands processed by kind."),
	); err != nil {
		return nil, err
	}
	if met.CommandsRejected, err = m.Int64Counter("corpsim.commands.rejected",
		metric.WithDescription("Commands that could not be routed to an instance."),
	); err != nil {
		return nil, err
	}
	if met.EventsApplied, err = m.Int64Counter("corpsim.events.applied",
		metric.WithDescription("Internal events applied to game state."),
	); err != nil {
		return nil, err
	}
	if met.CommandDuration, err = m.Float64Histogram("corpsim.command.duration",
		metric.WithDescription("Time to interpret, apply and roll up one command."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("corpsim.tick.duration",
		metric.WithDescription("Wall time of one engine tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BroadcastsSent, err = m.Int64Counter("corpsim.broadcasts.sent",
		metric.WithDescription("Snapshots queued to clients."),
	); err != nil {
		return nil, err
	}
	if met.BroadcastsDropped, err = m.Int64Counter("corpsim.broadcasts.dropped",
		metric.WithDescription("Snapshots dropped because a client queue was full."),
	); err != nil {
		return nil, err
	}
	if met.LogWriteErrors, err = m.Int64Counter("corpsim.log.write_errors",
		metric.WithDescription("Log lines lost to write failures by stream."),
	); err != nil {
		return nil, err
	}
	if met.LogLinesSkipped, err = m.Int64Counter("corpsim.log.lines_skipped",
		metric.WithDescription("Malformed log lines skipped during replay."),
	); err != nil {
		return nil, err
	}
	if met.ActiveInstances, err = m.Int64UpDownCounter("corpsim.active_instances",
		metric.WithDescription("Game instances currently loaded."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedClients, err = m.Int64UpDownCounter("corpsim.connected_clients",
		metric.WithDescription("Clients past the handshake."),
	); err != nil {
		return nil, err
	}
	if met.MetadataRequests, err = m.Int64Counter("corpsim.metadata.requests",
		metric.WithDescription("Metadata store calls by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("corpsim.http.request.duration",
		metric.WithDescription("Metadata API latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide instance bound to the global meter
// provider, so it must be called after InitProvider to reach Prometheus.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
