package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/textileio/go-durablevote/internal/durablevote"
	"github.com/textileio/go-durablevote/pkg/metrics"
	"github.com/textileio/go-durablevote/pkg/nonce"
	"github.com/textileio/go-durablevote/pkg/poll"
	"github.com/textileio/go-durablevote/pkg/votestore"
	"github.com/textileio/go-durablevote/pkg/wallet"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
)

// InstrumentedDurableVote wraps a DurableVote recording call counts and latencies.
type InstrumentedDurableVote struct {
	durablevote      durablevote.DurableVote
	callCount        instrument.Int64Counter
	latencyHistogram instrument.Int64Histogram
	votesCounted     instrument.Int64Counter
}

var _ durablevote.DurableVote = (*InstrumentedDurableVote)(nil)

type recordData struct {
	method  string
	poll    solana.PublicKey
	success bool
	latency int64
}

// NewInstrumentedDurableVote creates a new InstrumentedDurableVote.
func NewInstrumentedDurableVote(dv durablevote.DurableVote) (*InstrumentedDurableVote, error) {
	meter := global.MeterProvider().Meter("durablevote")
	callCount, err := meter.Int64Counter("durablevote.service.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %s", err)
	}
	latencyHistogram, err := meter.Int64Histogram("durablevote.service.call.latency")
	if err != nil {
		return nil, fmt.Errorf("registering latency histogram: %s", err)
	}
	votesCounted, err := meter.Int64Counter("durablevote.votes.counted")
	if err != nil {
		return nil, fmt.Errorf("registering counted votes counter: %s", err)
	}

	return &InstrumentedDurableVote{dv, callCount, latencyHistogram, votesCounted}, nil
}

// CreatePoll implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) CreatePoll(ctx context.Context) (*poll.Poll, error) {
	start := time.Now()
	p, err := d.durablevote.CreatePoll(ctx)
	latency := time.Since(start).Milliseconds()
	var address solana.PublicKey
	if p != nil {
		address = p.Address
	}
	d.record(ctx, recordData{"CreatePoll", address, err == nil, latency})
	return p, err
}

// FetchPoll implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) FetchPoll(ctx context.Context, address solana.PublicKey) (*poll.Poll, error) {
	start := time.Now()
	p, err := d.durablevote.FetchPoll(ctx, address)
	latency := time.Since(start).Milliseconds()
	d.record(ctx, recordData{"FetchPoll", address, err == nil, latency})
	return p, err
}

// Tally implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) Tally(address solana.PublicKey) (poll.Tally, bool) {
	return d.durablevote.Tally(address)
}

// CreateNonces implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) CreateNonces(ctx context.Context, n int) ([]nonce.Entry, error) {
	start := time.Now()
	entries, err := d.durablevote.CreateNonces(ctx, n)
	latency := time.Since(start).Milliseconds()
	d.record(ctx, recordData{"CreateNonces", solana.PublicKey{}, err == nil, latency})
	return entries, err
}

// PoolStats implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) PoolStats() durablevote.PoolStats {
	return d.durablevote.PoolStats()
}

// PrepareVote implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) PrepareVote(
	ctx context.Context, req durablevote.PrepareVoteRequest,
) (durablevote.Reservation, error) {
	start := time.Now()
	res, err := d.durablevote.PrepareVote(ctx, req)
	latency := time.Since(start).Milliseconds()
	d.record(ctx, recordData{"PrepareVote", req.Poll, err == nil, latency})
	return res, err
}

// CommitVote implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) CommitVote(
	ctx context.Context, req durablevote.CommitVoteRequest,
) (votestore.PendingVote, error) {
	start := time.Now()
	v, err := d.durablevote.CommitVote(ctx, req)
	latency := time.Since(start).Milliseconds()
	d.record(ctx, recordData{"CommitVote", req.Poll, err == nil, latency})
	return v, err
}

// AbortVote implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) AbortVote(ctx context.Context, pollID solana.PublicKey, reservationID string) error {
	start := time.Now()
	err := d.durablevote.AbortVote(ctx, pollID, reservationID)
	latency := time.Since(start).Milliseconds()
	d.record(ctx, recordData{"AbortVote", pollID, err == nil, latency})
	return err
}

// CastVote implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) CastVote(
	ctx context.Context, pollID solana.PublicKey, c poll.Candidate, signer wallet.Signer,
) (votestore.PendingVote, error) {
	start := time.Now()
	v, err := d.durablevote.CastVote(ctx, pollID, c, signer)
	latency := time.Since(start).Milliseconds()
	d.record(ctx, recordData{"CastVote", pollID, err == nil, latency})
	return v, err
}

// ListVotes implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) ListVotes(
	ctx context.Context, pollID solana.PublicKey, status votestore.Status,
) ([]votestore.PendingVote, error) {
	start := time.Now()
	votes, err := d.durablevote.ListVotes(ctx, pollID, status)
	latency := time.Since(start).Milliseconds()
	d.record(ctx, recordData{"ListVotes", pollID, err == nil, latency})
	return votes, err
}

// CountVotes implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) CountVotes(
	ctx context.Context, pollID solana.PublicKey,
) (durablevote.CountResult, error) {
	start := time.Now()
	res, err := d.durablevote.CountVotes(ctx, pollID)
	latency := time.Since(start).Milliseconds()
	d.record(ctx, recordData{"CountVotes", pollID, err == nil, latency})

	attrs := append([]attribute.KeyValue{
		{Key: "poll", Value: attribute.StringValue(pollID.String())},
	}, metrics.BaseAttrs...)
	d.votesCounted.Add(ctx, int64(res.Submitted),
		append(attrs, attribute.KeyValue{Key: "status", Value: attribute.StringValue("submitted")})...)
	d.votesCounted.Add(ctx, int64(res.Failed),
		append(attrs, attribute.KeyValue{Key: "status", Value: attribute.StringValue("failed")})...)

	return res, err
}

// RequeueFailed implements durablevote.DurableVote.
func (d *InstrumentedDurableVote) RequeueFailed(ctx context.Context, pollID solana.PublicKey) (int, error) {
	start := time.Now()
	n, err := d.durablevote.RequeueFailed(ctx, pollID)
	latency := time.Since(start).Milliseconds()
	d.record(ctx, recordData{"RequeueFailed", pollID, err == nil, latency})
	return n, err
}

func (d *InstrumentedDurableVote) record(ctx context.Context, data recordData) {
	attributes := append([]attribute.KeyValue{
		{Key: "method", Value: attribute.StringValue(data.method)},
		{Key: "success", Value: attribute.BoolValue(data.success)},
	}, metrics.BaseAttrs...)
	if !data.poll.IsZero() {
		attributes = append(attributes, attribute.String("poll", data.poll.String()))
	}

	d.callCount.Add(ctx, 1, attributes...)
	d.latencyHistogram.Record(ctx, data.latency, attributes...)
}
