package tracker

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/mapcrafter/playermarkers/internal/tracker"

type metrics struct {
	polls   metric.Int64Counter
	skipped metric.Int64Counter
	online  metric.Int64Gauge
	added   metric.Int64Counter
	removed metric.Int64Counter
}

// newMetrics uses the global meter provider; it is a no-op until one is set.
func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		out metrics
		err error
	)

	if out.polls, err = m.Int64Counter("tracker.polls",
		metric.WithDescription("Snapshots applied")); err != nil {
		return nil, fmt.Errorf("creating polls counter: %w", err)
	}
	if out.skipped, err = m.Int64Counter("tracker.polls.skipped",
		metric.WithDescription("Polls skipped because the fetch failed or returned no payload")); err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}
	if out.online, err = m.Int64Gauge("tracker.players.online",
		metric.WithDescription("Live markers after the last applied snapshot")); err != nil {
		return nil, fmt.Errorf("creating online gauge: %w", err)
	}
	if out.added, err = m.Int64Counter("tracker.markers.added",
		metric.WithDescription("Markers created")); err != nil {
		return nil, fmt.Errorf("creating added counter: %w", err)
	}
	if out.removed, err = m.Int64Counter("tracker.markers.removed",
		metric.WithDescription("Markers destroyed")); err != nil {
		return nil, fmt.Errorf("creating removed counter: %w", err)
	}
	return &out, nil
}

func (m *metrics) recordApply(r Result, total int) {
	ctx := context.Background()
	m.polls.Add(ctx, 1)
	m.online.Record(ctx, int64(total))
	if n := len(r.Added); n > 0 {
		m.added.Add(ctx, int64(n))
	}
	if n := len(r.Removed); n > 0 {
		m.removed.Add(ctx, int64(n))
	}
}

func (m *metrics) recordSkip() {
	m.skipped.Add(context.Background(), 1)
}
