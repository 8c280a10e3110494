package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gagliardetto/solana-go"
	"github.com/textileio/go-durablevote/internal/router/controllers/apiv1"
	"github.com/textileio/go-durablevote/pkg/wallet"
)

// CreatePoll creates a new poll account funded by the service authority.
func (c *Client) CreatePoll(ctx context.Context) (apiv1.Poll, error) {
	var p apiv1.Poll
	err := c.do(ctx, http.MethodPost, "/polls", nil, nil, &p)
	return p, err
}

// GetPoll returns a poll and its on-chain tally.
func (c *Client) GetPoll(ctx context.Context, pollID solana.PublicKey) (apiv1.Poll, error) {
	var p apiv1.Poll
	err := c.do(ctx, http.MethodGet, "/polls/"+pollID.String(), nil, nil, &p)
	return p, err
}

// CreateNonces asks the service to create n nonce accounts.
func (c *Client) CreateNonces(ctx context.Context, n int) ([]apiv1.NonceEntry, error) {
	var entries []apiv1.NonceEntry
	err := c.do(ctx, http.MethodPost, "/nonces", nil, apiv1.CreateNoncesRequest{Count: n}, &entries)
	return entries, err
}

// NonceStats reports the state of the service nonce pool.
func (c *Client) NonceStats(ctx context.Context) (apiv1.PoolStats, error) {
	var stats apiv1.PoolStats
	err := c.do(ctx, http.MethodGet, "/nonces", nil, nil, &stats)
	return stats, err
}

// PrepareVote reserves a nonce and returns the vote transaction to be signed by voter.
func (c *Client) PrepareVote(
	ctx context.Context, pollID, voter solana.PublicKey, candidate string,
) (apiv1.Reservation, error) {
	var res apiv1.Reservation
	req := apiv1.PrepareVoteRequest{Voter: voter.String(), Candidate: candidate}
	err := c.do(ctx, http.MethodPost, "/polls/"+pollID.String()+"/votes/prepare", nil, req, &res)
	return res, err
}

// CommitVote hands back a prepared transaction signed by the voter.
func (c *Client) CommitVote(
	ctx context.Context, pollID solana.PublicKey, reservationID, signedTx string,
) (apiv1.Vote, error) {
	var v apiv1.Vote
	req := apiv1.CommitVoteRequest{ReservationID: reservationID, Transaction: signedTx}
	err := c.do(ctx, http.MethodPost, "/polls/"+pollID.String()+"/votes", nil, req, &v)
	return v, err
}

// AbortVote drops a reservation so its nonce returns to the pool.
func (c *Client) AbortVote(ctx context.Context, pollID solana.PublicKey, reservationID string) error {
	path := "/polls/" + pollID.String() + "/votes/reservations/" + url.PathEscape(reservationID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Vote prepares a vote, signs it with signer and commits it. The reservation is
// aborted if signing fails.
func (c *Client) Vote(
	ctx context.Context, pollID solana.PublicKey, candidate string, signer wallet.Signer,
) (apiv1.Vote, error) {
	res, err := c.PrepareVote(ctx, pollID, signer.PublicKey(), candidate)
	if err != nil {
		return apiv1.Vote{}, err
	}
	signed, err := wallet.SignEncoded(ctx, signer, res.Transaction)
	if err != nil {
		_ = c.AbortVote(ctx, pollID, res.ID)
		return apiv1.Vote{}, err
	}
	return c.CommitVote(ctx, pollID, res.ID, signed)
}

// ListVotes lists the staged votes of a poll with the given status. An empty
// status lists all of them.
func (c *Client) ListVotes(ctx context.Context, pollID solana.PublicKey, status string) ([]apiv1.Vote, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": []string{status}}
	}
	var votes []apiv1.Vote
	err := c.do(ctx, http.MethodGet, "/polls/"+pollID.String()+"/votes", query, nil, &votes)
	return votes, err
}

// Count submits the pending votes of a poll and returns the resulting tally.
func (c *Client) Count(ctx context.Context, pollID solana.PublicKey) (apiv1.CountResult, error) {
	var res apiv1.CountResult
	err := c.do(ctx, http.MethodPost, "/polls/"+pollID.String()+"/count", nil, nil, &res)
	return res, err
}

// Requeue moves the failed votes of a poll back to pending.
func (c *Client) Requeue(ctx context.Context, pollID solana.PublicKey) (int, error) {
	var res apiv1.RequeueResult
	err := c.do(ctx, http.MethodPost, "/polls/"+pollID.String()+"/votes/requeue", nil, nil, &res)
	return res.Requeued, err
}
