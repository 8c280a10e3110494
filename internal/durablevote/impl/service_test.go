package impl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/textileio/go-durablevote/internal/durablevote"
	"github.com/textileio/go-durablevote/pkg/database"
	"github.com/textileio/go-durablevote/pkg/nonce"
	nonceimpl "github.com/textileio/go-durablevote/pkg/nonce/impl"
	"github.com/textileio/go-durablevote/pkg/poll"
	"github.com/textileio/go-durablevote/pkg/votestore"
	storeimpl "github.com/textileio/go-durablevote/pkg/votestore/impl"
	"github.com/textileio/go-durablevote/pkg/wallet"
	"github.com/textileio/go-durablevote/tests"
)

func TestTwoNoncesThreeVoters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	p := env.createPoll(t)

	_, err := env.dv.CreateNonces(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, env.dv.PoolStats().Available)

	_, err = env.dv.CastVote(ctx, p, poll.Ethereum, newVoter(t))
	require.NoError(t, err)
	_, err = env.dv.CastVote(ctx, p, poll.Solana, newVoter(t))
	require.NoError(t, err)
	require.Equal(t, 0, env.dv.PoolStats().Available)
	require.Equal(t, 0, env.dv.PoolStats().Leased)

	sends := env.sim.Sends()
	_, err = env.dv.CastVote(ctx, p, poll.Polygon, newVoter(t))
	require.ErrorIs(t, err, durablevote.ErrNoNonces)
	require.Equal(t, sends, env.sim.Sends())

	votes, err := env.dv.ListVotes(ctx, p, "")
	require.NoError(t, err)
	require.Len(t, votes, 2)

	// staging doesn't touch the ledger
	tally, err := env.sim.Tally(p)
	require.NoError(t, err)
	require.Equal(t, poll.Tally{}, tally)

	res, err := env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 2, res.Submitted)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, poll.Tally{Ethereum: 1, Solana: 1}, res.Tally)
}

func TestCountVotes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	p := env.createPoll(t)

	_, err := env.dv.CreateNonces(ctx, 3)
	require.NoError(t, err)
	for _, c := range []poll.Candidate{poll.Ethereum, poll.Polygon, poll.Ethereum} {
		_, err := env.dv.CastVote(ctx, p, c, newVoter(t))
		require.NoError(t, err)
	}

	res, err := env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 3, res.Submitted)

	votes, err := env.dv.ListVotes(ctx, p, "")
	require.NoError(t, err)
	require.Empty(t, votes)

	onChain, err := env.sim.Tally(p)
	require.NoError(t, err)
	require.Equal(t, poll.Tally{Ethereum: 2, Polygon: 1}, onChain)
	mirror, ok := env.dv.Tally(p)
	require.True(t, ok)
	require.Equal(t, onChain, mirror)

	// a second pass has nothing to submit
	sends := env.sim.Sends()
	res, err = env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 0, res.Submitted)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, onChain, res.Tally)
	require.Equal(t, sends, env.sim.Sends())
}

func TestDurableTransactionOutlivesBlockhashWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	p := env.createPoll(t)

	_, err := env.dv.CreateNonces(ctx, 1)
	require.NoError(t, err)
	_, err = env.dv.CastVote(ctx, p, poll.Solana, newVoter(t))
	require.NoError(t, err)

	// any recent blockhash would have expired by now
	env.sim.ProduceBlocks(200)

	res, err := env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 1, res.Submitted)
	require.Equal(t, poll.Tally{Solana: 1}, res.Tally)
}

func TestAdvancedNonceInvalidatesVote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	p := env.createPoll(t)

	entries, err := env.dv.CreateNonces(ctx, 1)
	require.NoError(t, err)
	_, err = env.dv.CastVote(ctx, p, poll.Polygon, newVoter(t))
	require.NoError(t, err)

	env.advanceNonce(t, entries[0].Address)

	res, err := env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 0, res.Submitted)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, poll.Tally{}, res.Tally)

	// failed votes are kept for inspection
	failed, err := env.dv.ListVotes(ctx, p, votestore.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, 1, failed[0].Attempts)
	require.NotEmpty(t, failed[0].Error)

	n, err := env.dv.RequeueFailed(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// the nonce is gone for good, so the retry fails again
	res, err = env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	failed, err = env.dv.ListVotes(ctx, p, votestore.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, 2, failed[0].Attempts)
}

func TestPrepareVotePreconditions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	p := env.createPoll(t)
	voter := newVoter(t).PublicKey()

	// empty pool
	_, err := env.dv.PrepareVote(ctx, durablevote.PrepareVoteRequest{Poll: p, Voter: voter, Candidate: poll.Solana})
	require.ErrorIs(t, err, durablevote.ErrNoNonces)

	_, err = env.dv.CreateNonces(ctx, 1)
	require.NoError(t, err)
	sends := env.sim.Sends()

	_, err = env.dv.PrepareVote(ctx, durablevote.PrepareVoteRequest{Poll: p, Candidate: poll.Solana})
	require.ErrorIs(t, err, durablevote.ErrNoVoter)
	_, err = env.dv.PrepareVote(ctx, durablevote.PrepareVoteRequest{Voter: voter, Candidate: poll.Solana})
	require.ErrorIs(t, err, durablevote.ErrNoPoll)
	_, err = env.dv.PrepareVote(ctx, durablevote.PrepareVoteRequest{Poll: p, Voter: voter, Candidate: 42})
	require.ErrorIs(t, err, durablevote.ErrInvalidCandidate)

	require.Equal(t, sends, env.sim.Sends())
	require.Equal(t, 1, env.dv.PoolStats().Available)
	require.Equal(t, 0, env.dv.PoolStats().Reservations)

	votes, err := env.dv.ListVotes(ctx, p, "")
	require.NoError(t, err)
	require.Empty(t, votes)
}

func TestCommitVote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	p := env.createPoll(t)

	_, err := env.dv.CreateNonces(ctx, 2)
	require.NoError(t, err)

	voter := newVoter(t)
	r1, err := env.dv.PrepareVote(ctx, durablevote.PrepareVoteRequest{
		Poll: p, Voter: voter.PublicKey(), Candidate: poll.Ethereum,
	})
	require.NoError(t, err)
	r2, err := env.dv.PrepareVote(ctx, durablevote.PrepareVoteRequest{
		Poll: p, Voter: voter.PublicKey(), Candidate: poll.Solana,
	})
	require.NoError(t, err)
	require.NotEqual(t, r1.NonceAccount, r2.NonceAccount)
	require.Equal(t, 2, env.dv.PoolStats().Leased)

	signed2, err := wallet.SignEncoded(ctx, voter, r2.Transaction)
	require.NoError(t, err)

	t.Run("unknown reservation", func(t *testing.T) {
		_, err := env.dv.CommitVote(ctx, durablevote.CommitVoteRequest{
			Poll: p, ReservationID: "nope", Transaction: signed2,
		})
		require.ErrorIs(t, err, durablevote.ErrReservationNotFound)

		other := solana.NewWallet().PublicKey()
		_, err = env.dv.CommitVote(ctx, durablevote.CommitVoteRequest{
			Poll: other, ReservationID: r2.ID, Transaction: signed2,
		})
		require.ErrorIs(t, err, durablevote.ErrReservationNotFound)
	})

	t.Run("another transaction", func(t *testing.T) {
		_, err := env.dv.CommitVote(ctx, durablevote.CommitVoteRequest{
			Poll: p, ReservationID: r1.ID, Transaction: signed2,
		})
		require.ErrorIs(t, err, durablevote.ErrTransactionMismatch)

		_, err = env.dv.CommitVote(ctx, durablevote.CommitVoteRequest{
			Poll: p, ReservationID: r1.ID, Transaction: "not base58 0OIl",
		})
		require.ErrorIs(t, err, durablevote.ErrTransactionMismatch)
	})

	t.Run("missing voter signature", func(t *testing.T) {
		_, err := env.dv.CommitVote(ctx, durablevote.CommitVoteRequest{
			Poll: p, ReservationID: r1.ID, Transaction: r1.Transaction,
		})
		require.ErrorIs(t, err, durablevote.ErrInvalidSignature)
	})

	t.Run("signed", func(t *testing.T) {
		signed1, err := wallet.SignEncoded(ctx, voter, r1.Transaction)
		require.NoError(t, err)
		v, err := env.dv.CommitVote(ctx, durablevote.CommitVoteRequest{
			Poll: p, ReservationID: r1.ID, Transaction: signed1,
		})
		require.NoError(t, err)
		_, err = uuid.Parse(v.ID)
		require.NoError(t, err)
		require.Equal(t, votestore.StatusPending, v.Status)
		require.Equal(t, voter.PublicKey(), v.PublicKey)
		require.Equal(t, p, v.PollID)
		require.Equal(t, poll.Ethereum, v.Candidate)
		require.Equal(t, r1.NonceAccount, v.NonceAccount)
		require.Equal(t, r1.NonceValue, v.NonceValue)

		// a reservation is used once
		_, err = env.dv.CommitVote(ctx, durablevote.CommitVoteRequest{
			Poll: p, ReservationID: r1.ID, Transaction: signed1,
		})
		require.ErrorIs(t, err, durablevote.ErrReservationNotFound)
	})

	require.NoError(t, env.dv.AbortVote(ctx, p, r2.ID))
	require.ErrorIs(t, env.dv.AbortVote(ctx, p, r2.ID), durablevote.ErrReservationNotFound)

	stats := env.dv.PoolStats()
	require.Equal(t, 1, stats.Available)
	require.Equal(t, 0, stats.Leased)
	require.Equal(t, 0, stats.Reservations)
}

func TestReservationExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t, WithReservationTTL(time.Minute))
	p := env.createPoll(t)

	now := time.Now()
	var mu sync.Mutex
	env.dv.clock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	elapse := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	_, err := env.dv.CreateNonces(ctx, 1)
	require.NoError(t, err)

	voter := newVoter(t)
	res, err := env.dv.PrepareVote(ctx, durablevote.PrepareVoteRequest{
		Poll: p, Voter: voter.PublicKey(), Candidate: poll.Polygon,
	})
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Minute), res.ExpiresAt)
	signed, err := wallet.SignEncoded(ctx, voter, res.Transaction)
	require.NoError(t, err)

	elapse(time.Minute)
	_, err = env.dv.CommitVote(ctx, durablevote.CommitVoteRequest{
		Poll: p, ReservationID: res.ID, Transaction: signed,
	})
	require.ErrorIs(t, err, durablevote.ErrReservationExpired)
	require.Equal(t, 1, env.dv.PoolStats().Available)

	// the sweeper releases abandoned reservations
	_, err = env.dv.PrepareVote(ctx, durablevote.PrepareVoteRequest{
		Poll: p, Voter: voter.PublicKey(), Candidate: poll.Polygon,
	})
	require.NoError(t, err)
	require.Equal(t, 0, env.dv.SweepExpired())
	elapse(2 * time.Minute)
	require.Equal(t, 1, env.dv.SweepExpired())
	require.Equal(t, 1, env.dv.PoolStats().Available)
	require.Equal(t, 0, env.dv.PoolStats().Reservations)
}

func TestStoreFailureReleasesNonce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	p := env.createPoll(t)

	failing := &failingStore{Store: env.store, err: errors.New("store is down")}
	dv, err := NewDurableVoteService(env.sim, env.nonces, failing, poll.NewProgram(env.sim.ProgramID), env.authority)
	require.NoError(t, err)

	_, err = dv.CreateNonces(ctx, 1)
	require.NoError(t, err)

	_, err = dv.CastVote(ctx, p, poll.Ethereum, newVoter(t))
	require.ErrorIs(t, err, failing.err)
	require.Equal(t, 1, dv.PoolStats().Available)
	require.Equal(t, 0, dv.PoolStats().Leased)

	// the released nonce backs the next vote
	failing.err = nil
	_, err = dv.CastVote(ctx, p, poll.Ethereum, newVoter(t))
	require.NoError(t, err)
	res, err := dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, poll.Tally{Ethereum: 1}, res.Tally)
}

func TestCountInProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	p := env.createPoll(t)

	_, err := env.dv.CreateNonces(ctx, 1)
	require.NoError(t, err)
	_, err = env.dv.CastVote(ctx, p, poll.Solana, newVoter(t))
	require.NoError(t, err)

	var concurrent error
	env.sim.FailWith(func(*solana.Transaction) error {
		_, concurrent = env.dv.CountVotes(ctx, p)
		return nil
	})

	res, err := env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 1, res.Submitted)
	require.ErrorIs(t, concurrent, durablevote.ErrCountInProgress)

	// the guard is released when the pass ends
	env.sim.FailWith(nil)
	_, err = env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Empty(t, env.dv.counting)
}

func TestVoteRequiresKnownPoll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	_, err := env.dv.CreateNonces(ctx, 1)
	require.NoError(t, err)
	sends := env.sim.Sends()

	unknown := solana.NewWallet().PublicKey()
	_, err = env.dv.CastVote(ctx, unknown, poll.Solana, newVoter(t))
	require.ErrorIs(t, err, durablevote.ErrPollNotFound)
	require.Equal(t, 1, env.dv.PoolStats().Available)
	require.Equal(t, 0, env.dv.PoolStats().Reservations)
	votes, err := env.dv.ListVotes(ctx, unknown, "")
	require.NoError(t, err)
	require.Empty(t, votes)

	_, err = env.dv.CountVotes(ctx, unknown)
	require.ErrorIs(t, err, durablevote.ErrPollNotFound)
	require.Equal(t, sends, env.sim.Sends())

	// a poll created elsewhere is read from the ledger on first use
	other, err := NewDurableVoteService(env.sim, env.nonces, env.store, poll.NewProgram(env.sim.ProgramID), env.authority)
	require.NoError(t, err)
	p, err := other.CreatePoll(ctx)
	require.NoError(t, err)
	_, ok := env.dv.Tally(p.Address)
	require.False(t, ok)

	_, err = env.dv.CastVote(ctx, p.Address, poll.Solana, newVoter(t))
	require.NoError(t, err)
	_, ok = env.dv.Tally(p.Address)
	require.True(t, ok)
}

func TestCountRetriesDeletingSubmitted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)
	p := env.createPoll(t)

	failing := &failingStore{Store: env.store, deleteErr: errors.New("store is down")}
	dv, err := NewDurableVoteService(env.sim, env.nonces, failing, poll.NewProgram(env.sim.ProgramID), env.authority)
	require.NoError(t, err)

	_, err = dv.CreateNonces(ctx, 1)
	require.NoError(t, err)
	_, err = dv.CastVote(ctx, p, poll.Polygon, newVoter(t))
	require.NoError(t, err)

	_, err = dv.CountVotes(ctx, p)
	require.ErrorIs(t, err, failing.deleteErr)
	submitted, err := dv.ListVotes(ctx, p, votestore.StatusSubmitted)
	require.NoError(t, err)
	require.Len(t, submitted, 1)

	// nothing is pending, the leftover row goes anyway
	failing.deleteErr = nil
	res, err := dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 0, res.Submitted)
	require.Equal(t, poll.Tally{Polygon: 1}, res.Tally)
	votes, err := dv.ListVotes(ctx, p, "")
	require.NoError(t, err)
	require.Empty(t, votes)
}

func TestRecycleNonces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t, WithRecycle(true))
	p := env.createPoll(t)

	entries, err := env.dv.CreateNonces(ctx, 1)
	require.NoError(t, err)
	_, err = env.dv.CastVote(ctx, p, poll.Ethereum, newVoter(t))
	require.NoError(t, err)
	require.Equal(t, 0, env.dv.PoolStats().Available)

	_, err = env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 1, env.dv.PoolStats().Available)

	// same account, advanced value
	entry, err := env.nonces.Pool().Acquire()
	require.NoError(t, err)
	require.Equal(t, entries[0].Address, entry.Address)
	require.NotEqual(t, entries[0].Value, entry.Value)
	require.NoError(t, env.nonces.Pool().Release(entry))

	_, err = env.dv.CastVote(ctx, p, poll.Ethereum, newVoter(t))
	require.NoError(t, err)
	res, err := env.dv.CountVotes(ctx, p)
	require.NoError(t, err)
	require.Equal(t, poll.Tally{Ethereum: 2}, res.Tally)
}

func TestFetchPoll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)

	_, err := env.dv.FetchPoll(ctx, solana.NewWallet().PublicKey())
	require.ErrorIs(t, err, durablevote.ErrPollNotFound)
	_, err = env.dv.FetchPoll(ctx, solana.PublicKey{})
	require.ErrorIs(t, err, durablevote.ErrNoPoll)

	p := env.createPoll(t)
	tally, ok := env.dv.Tally(p)
	require.True(t, ok)
	require.Equal(t, poll.Tally{}, tally)

	fetched, err := env.dv.FetchPoll(ctx, p)
	require.NoError(t, err)
	require.Equal(t, p, fetched.Address)

	_, ok = env.dv.Tally(solana.NewWallet().PublicKey())
	require.False(t, ok)
}

func TestInstrumentedDurableVote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setup(t)

	dv, err := NewInstrumentedDurableVote(env.dv)
	require.NoError(t, err)

	p, err := dv.CreatePoll(ctx)
	require.NoError(t, err)
	_, err = dv.CreateNonces(ctx, 1)
	require.NoError(t, err)
	_, err = dv.CastVote(ctx, p.Address, poll.Solana, newVoter(t))
	require.NoError(t, err)

	res, err := dv.CountVotes(ctx, p.Address)
	require.NoError(t, err)
	require.Equal(t, poll.Tally{Solana: 1}, res.Tally)
	require.Equal(t, 0, dv.PoolStats().Available)
}

type environment struct {
	dv        *DurableVoteService
	sim       *tests.SimulatedLedger
	nonces    *nonceimpl.Manager
	store     votestore.Store
	authority *wallet.Wallet
}

func setup(t *testing.T, opts ...Option) *environment {
	t.Helper()

	sim := tests.NewSimulatedLedger(poll.DefaultProgramID)
	authority, err := wallet.NewRandomWallet()
	require.NoError(t, err)

	pool, err := nonceimpl.NewMemoryPool(nonce.FIFO)
	require.NoError(t, err)
	manager, err := nonceimpl.NewManager(pool, sim, authority)
	require.NoError(t, err)

	sqliteDB, err := database.Open(tests.Sqlite3URL())
	require.NoError(t, err)
	store := storeimpl.NewSQLiteStore(sqliteDB)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	dv, err := NewDurableVoteService(sim, manager, store, poll.NewProgram(sim.ProgramID), authority, opts...)
	require.NoError(t, err)

	return &environment{
		dv:        dv,
		sim:       sim,
		nonces:    manager,
		store:     store,
		authority: authority,
	}
}

func (env *environment) createPoll(t *testing.T) solana.PublicKey {
	t.Helper()

	p, err := env.dv.CreatePoll(context.Background())
	require.NoError(t, err)
	return p.Address
}

// advanceNonce advances a nonce account outside of any vote.
func (env *environment) advanceNonce(t *testing.T, address solana.PublicKey) {
	t.Helper()

	ctx := context.Background()
	blockhash, err := env.sim.LatestBlockhash(ctx)
	require.NoError(t, err)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewAdvanceNonceAccountInstruction(
				address,
				solana.SysVarRecentBlockHashesPubkey,
				env.authority.PublicKey(),
			).Build(),
		},
		blockhash,
		solana.TransactionPayer(env.authority.PublicKey()),
	)
	require.NoError(t, err)
	require.NoError(t, env.authority.SignTransaction(ctx, tx))
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	_, err = env.sim.SendAndConfirm(ctx, raw)
	require.NoError(t, err)
}

func newVoter(t *testing.T) *wallet.Wallet {
	t.Helper()

	w, err := wallet.NewRandomWallet()
	require.NoError(t, err)
	return w
}

type failingStore struct {
	votestore.Store
	err       error
	deleteErr error
}

func (s *failingStore) Insert(ctx context.Context, v votestore.PendingVote) (votestore.PendingVote, error) {
	if s.err != nil {
		return votestore.PendingVote{}, s.err
	}
	return s.Store.Insert(ctx, v)
}

func (s *failingStore) DeleteSubmitted(ctx context.Context, pollID solana.PublicKey) (int, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return s.Store.DeleteSubmitted(ctx, pollID)
}
