package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/textileio/go-durablevote/pkg/metrics"
	"github.com/textileio/go-durablevote/pkg/votestore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
)

// InstrumentedStore implements an instrumented votestore.Store.
type InstrumentedStore struct {
	store            votestore.Store
	backend          string
	callCount        instrument.Int64Counter
	latencyHistogram instrument.Int64Histogram
}

var _ votestore.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore creates a new InstrumentedStore. backend names the wrapped implementation.
func NewInstrumentedStore(store votestore.Store, backend string) (*InstrumentedStore, error) {
	meter := global.MeterProvider().Meter("durablevote")
	callCount, err := meter.Int64Counter("durablevote.votestore.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %s", err)
	}
	latencyHistogram, err := meter.Int64Histogram("durablevote.votestore.call.latency")
	if err != nil {
		return nil, fmt.Errorf("registering latency histogram: %s", err)
	}

	return &InstrumentedStore{store, backend, callCount, latencyHistogram}, nil
}

// Insert implements votestore.Store.
func (s *InstrumentedStore) Insert(ctx context.Context, v votestore.PendingVote) (votestore.PendingVote, error) {
	start := time.Now()
	inserted, err := s.store.Insert(ctx, v)
	s.record(ctx, "Insert", start, err)
	return inserted, err
}

// Get implements votestore.Store.
func (s *InstrumentedStore) Get(ctx context.Context, id string) (votestore.PendingVote, error) {
	start := time.Now()
	v, err := s.store.Get(ctx, id)
	s.record(ctx, "Get", start, err)
	return v, err
}

// ListByPoll implements votestore.Store.
func (s *InstrumentedStore) ListByPoll(
	ctx context.Context, pollID solana.PublicKey, status votestore.Status,
) ([]votestore.PendingVote, error) {
	start := time.Now()
	votes, err := s.store.ListByPoll(ctx, pollID, status)
	s.record(ctx, "ListByPoll", start, err)
	return votes, err
}

// MarkSubmitted implements votestore.Store.
func (s *InstrumentedStore) MarkSubmitted(ctx context.Context, id string, signature solana.Signature) error {
	start := time.Now()
	err := s.store.MarkSubmitted(ctx, id, signature)
	s.record(ctx, "MarkSubmitted", start, err)
	return err
}

// MarkFailed implements votestore.Store.
func (s *InstrumentedStore) MarkFailed(ctx context.Context, id string, reason string) error {
	start := time.Now()
	err := s.store.MarkFailed(ctx, id, reason)
	s.record(ctx, "MarkFailed", start, err)
	return err
}

// Requeue implements votestore.Store.
func (s *InstrumentedStore) Requeue(ctx context.Context, pollID solana.PublicKey) (int, error) {
	start := time.Now()
	n, err := s.store.Requeue(ctx, pollID)
	s.record(ctx, "Requeue", start, err)
	return n, err
}

// DeleteSubmitted implements votestore.Store.
func (s *InstrumentedStore) DeleteSubmitted(ctx context.Context, pollID solana.PublicKey) (int, error) {
	start := time.Now()
	n, err := s.store.DeleteSubmitted(ctx, pollID)
	s.record(ctx, "DeleteSubmitted", start, err)
	return n, err
}

// CountByPoll implements votestore.Store.
func (s *InstrumentedStore) CountByPoll(ctx context.Context, pollID solana.PublicKey) (votestore.Counts, error) {
	start := time.Now()
	counts, err := s.store.CountByPoll(ctx, pollID)
	s.record(ctx, "CountByPoll", start, err)
	return counts, err
}

// Close implements votestore.Store.
func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

func (s *InstrumentedStore) record(ctx context.Context, method string, start time.Time, err error) {
	latency := time.Since(start).Milliseconds()
	attributes := append([]attribute.KeyValue{
		{Key: "method", Value: attribute.StringValue(method)},
		{Key: "success", Value: attribute.BoolValue(err == nil)},
		{Key: "backend", Value: attribute.StringValue(s.backend)},
	}, metrics.BaseAttrs...)

	s.callCount.Add(ctx, 1, attributes...)
	s.latencyHistogram.Record(ctx, latency, attributes...)
}
