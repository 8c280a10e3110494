package client

import (
	"context"
	"net/http"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"github.com/textileio/go-durablevote/pkg/wallet"
	"github.com/textileio/go-durablevote/tests/fullstack"
)

func TestVoteAndCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := setup(t)

	p, err := c.CreatePoll(ctx)
	require.NoError(t, err)
	pollID := solana.MustPublicKeyFromBase58(p.Address)

	entries, err := c.CreateNonces(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	stats, err := c.NonceStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Available)

	for _, candidate := range []string{"eth", "sol"} {
		voter, err := wallet.NewRandomWallet()
		require.NoError(t, err)
		v, err := c.Vote(ctx, pollID, candidate, voter)
		require.NoError(t, err)
		require.Equal(t, "pending", v.Status)
		require.Equal(t, voter.PublicKey().String(), v.Voter)
	}

	// the pool is drained
	voter, err := wallet.NewRandomWallet()
	require.NoError(t, err)
	_, err = c.Vote(ctx, pollID, "pol", voter)
	require.Equal(t, http.StatusConflict, StatusCode(err))

	votes, err := c.ListVotes(ctx, pollID, "")
	require.NoError(t, err)
	require.Len(t, votes, 2)

	res, err := c.Count(ctx, pollID)
	require.NoError(t, err)
	require.Equal(t, 2, res.Submitted)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, uint64(1), res.Tally.Ethereum)
	require.Equal(t, uint64(1), res.Tally.Solana)

	p, err = c.GetPoll(ctx, pollID)
	require.NoError(t, err)
	require.Equal(t, res.Tally, p.Tally)

	votes, err = c.ListVotes(ctx, pollID, "")
	require.NoError(t, err)
	require.Empty(t, votes)

	n, err := c.Requeue(ctx, pollID)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestPrepareAndAbort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := setup(t)

	p, err := c.CreatePoll(ctx)
	require.NoError(t, err)
	pollID := solana.MustPublicKeyFromBase58(p.Address)
	_, err = c.CreateNonces(ctx, 1)
	require.NoError(t, err)

	voter, err := wallet.NewRandomWallet()
	require.NoError(t, err)
	res, err := c.PrepareVote(ctx, pollID, voter.PublicKey(), "pol")
	require.NoError(t, err)
	require.Equal(t, "pol", res.Candidate)

	stats, err := c.NonceStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Leased)
	require.Equal(t, 1, stats.Reservations)

	require.NoError(t, c.AbortVote(ctx, pollID, res.ID))
	err = c.AbortVote(ctx, pollID, res.ID)
	require.Equal(t, http.StatusNotFound, StatusCode(err))

	stats, err = c.NonceStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Available)
	require.Equal(t, 0, stats.Leased)

	// committing an unsigned transaction is rejected and keeps the reservation
	res, err = c.PrepareVote(ctx, pollID, voter.PublicKey(), "pol")
	require.NoError(t, err)
	_, err = c.CommitVote(ctx, pollID, res.ID, res.Transaction)
	require.Equal(t, http.StatusBadRequest, StatusCode(err))

	signed, err := wallet.SignEncoded(ctx, voter, res.Transaction)
	require.NoError(t, err)
	v, err := c.CommitVote(ctx, pollID, res.ID, signed)
	require.NoError(t, err)
	require.Equal(t, "pol", v.Candidate)
}

func TestErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := setup(t)

	_, err := c.GetPoll(ctx, solana.NewWallet().PublicKey())
	require.Equal(t, http.StatusNotFound, StatusCode(err))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.NotEmpty(t, apiErr.Message)

	_, err = c.CreateNonces(ctx, 0)
	require.Equal(t, http.StatusBadRequest, StatusCode(err))

	_, err = c.ListVotes(ctx, solana.NewWallet().PublicKey(), "lost")
	require.Equal(t, http.StatusBadRequest, StatusCode(err))

	_, err = NewClient("not a url")
	require.Error(t, err)
}

func TestHealthAndVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := setup(t)

	healthy, err := c.CheckHealth(ctx)
	require.NoError(t, err)
	require.True(t, healthy)

	_, err = c.Version(ctx)
	require.NoError(t, err)
}

func setup(t *testing.T) *Client {
	t.Helper()

	stack := fullstack.CreateFullStack(t, fullstack.Deps{})
	c, err := NewClient(stack.Server.URL, NewClientHTTPClient(stack.Server.Client()))
	require.NoError(t, err)
	return c
}
