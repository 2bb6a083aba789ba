// Package observability holds the OpenTelemetry instruments the engine and
// the event consumer report to.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "flowhook/backend"

// Metrics bundles the engine counters. A nil *Metrics is valid and records
// nothing, so wiring stays optional in tests.
type Metrics struct {
	eventsConsumed metric.Int64Counter
	eventsDropped  metric.Int64Counter
	runsStarted    metric.Int64Counter
	runsSucceeded  metric.Int64Counter
	runsFailed     metric.Int64Counter
}

// NewMetrics registers the counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	eventsConsumed, err := meter.Int64Counter("flowhook.events.consumed",
		metric.WithDescription("Change/webhook events accepted for trigger matching"))
	if err != nil {
		return nil, err
	}
	eventsDropped, err := meter.Int64Counter("flowhook.events.dropped",
		metric.WithDescription("Events discarded before trigger matching"))
	if err != nil {
		return nil, err
	}
	runsStarted, err := meter.Int64Counter("flowhook.runs.started",
		metric.WithDescription("Workflow runs created"))
	if err != nil {
		return nil, err
	}
	runsSucceeded, err := meter.Int64Counter("flowhook.runs.succeeded",
		metric.WithDescription("Workflow runs that reached SUCCESS"))
	if err != nil {
		return nil, err
	}
	runsFailed, err := meter.Int64Counter("flowhook.runs.failed",
		metric.WithDescription("Workflow runs that reached FAILED"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsConsumed: eventsConsumed,
		eventsDropped:  eventsDropped,
		runsStarted:    runsStarted,
		runsSucceeded:  runsSucceeded,
		runsFailed:     runsFailed,
	}, nil
}

func (m *Metrics) EventConsumed(ctx context.Context) {
	if m != nil && m.eventsConsumed != nil {
		m.eventsConsumed.Add(ctx, 1)
	}
}

func (m *Metrics) EventDropped(ctx context.Context) {
	if m != nil && m.eventsDropped != nil {
		m.eventsDropped.Add(ctx, 1)
	}
}

func (m *Metrics) RunStarted(ctx context.Context) {
	if m != nil && m.runsStarted != nil {
		m.runsStarted.Add(ctx, 1)
	}
}

func (m *Metrics) RunSucceeded(ctx context.Context) {
	if m != nil && m.runsSucceeded != nil {
		m.runsSucceeded.Add(ctx, 1)
	}
}

func (m *Metrics) RunFailed(ctx context.Context) {
	if m != nil && m.runsFailed != nil {
		m.runsFailed.Add(ctx, 1)
	}
}
