package impl

import (
	"context"
	"fmt"

	"github.com/textileio/go-durablevote/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
)

func (p *MemoryPool) initMetrics() error {
	meter := global.MeterProvider().Meter("durablevote")
	attrs := append([]attribute.KeyValue{
		attribute.String("policy", string(p.policy)),
	}, metrics.BaseAttrs...)

	mAvailable, err := meter.Int64ObservableGauge("durablevote.noncepool.available")
	if err != nil {
		return fmt.Errorf("creating available nonces metric: %s", err)
	}
	mLeased, err := meter.Int64ObservableGauge("durablevote.noncepool.leased")
	if err != nil {
		return fmt.Errorf("creating leased nonces metric: %s", err)
	}

	if _, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			o.ObserveInt64(mAvailable, int64(len(p.entries)), attrs...)
			o.ObserveInt64(mLeased, int64(len(p.leased)), attrs...)
			return nil
		}, []instrument.Asynchronous{
			mAvailable,
			mLeased,
		}...); err != nil {
		return fmt.Errorf("registering async metric callback: %s", err)
	}

	return nil
}

func (m *Manager) initMetrics() error {
	meter := global.MeterProvider().Meter("durablevote")

	var err error
	m.mCreated, err = meter.Int64Counter("durablevote.nonces.created")
	if err != nil {
		return fmt.Errorf("creating nonces created metric: %s", err)
	}
	m.mCreateLatency, err = meter.Int64Histogram("durablevote.nonces.create.latency")
	if err != nil {
		return fmt.Errorf("creating nonces create latency metric: %s", err)
	}

	return nil
}
