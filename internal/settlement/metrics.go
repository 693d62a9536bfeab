package settlement

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/settlement"

type metrics struct {
	attempts   metric.Int64Counter
	duration   metric.Float64Histogram
	revenue    metric.Float64Counter
	commission metric.Float64Counter
	mismatches metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(meterName)

	attempts, err := meter.Int64Counter("settlement.attempts",
		metric.WithDescription("Settlement attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("settlement.duration",
		metric.WithDescription("Wall-clock time of a settlement"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	revenue, err := meter.Float64Counter("settlement.revenue",
		metric.WithDescription("Order totals of committed settlements"),
	)
	if err != nil {
		return nil, err
	}

	commission, err := meter.Float64Counter("settlement.commission",
		metric.WithDescription("Commission booked by committed settlements"),
	)
	if err != nil {
		return nil, err
	}

	mismatches, err := meter.Int64Counter("settlement.amount_mismatches",
		metric.WithDescription("Settlements whose total differs from the gateway order amount"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		attempts:   attempts,
		duration:   duration,
		revenue:    revenue,
		commission: commission,
		mismatches: mismatches,
	}, nil
}

func (m *metrics) record(ctx context.Context, outcome string, started time.Time) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.attempts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, time.Since(started).Seconds(), attrs)
}

func metricVendor(vendorID string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("vendor.id", vendorID))
}
