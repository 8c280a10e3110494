package durablevote

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/textileio/go-durablevote/pkg/nonce"
	"github.com/textileio/go-durablevote/pkg/poll"
	"github.com/textileio/go-durablevote/pkg/votestore"
	"github.com/textileio/go-durablevote/pkg/wallet"
)

var (
	// ErrNoNonces indicates that the nonce pool is empty.
	ErrNoNonces = errors.New("no nonces left")

	// ErrNoVoter indicates that the voter public key is missing.
	ErrNoVoter = errors.New("voter public key is required")

	// ErrNoPoll indicates that the poll address is missing.
	ErrNoPoll = errors.New("poll is required")

	// ErrPollNotFound indicates that there's no poll account at the given address.
	ErrPollNotFound = errors.New("poll not found")

	// ErrInvalidCandidate indicates that the candidate isn't one of the poll options.
	ErrInvalidCandidate = poll.ErrInvalidCandidate

	// ErrInvalidCount indicates that the requested amount of nonces is out of range.
	ErrInvalidCount = nonce.ErrInvalidCount

	// ErrReservationNotFound indicates that the reservation doesn't exist or was already used.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationExpired indicates that the reservation expired and its nonce was released.
	ErrReservationExpired = errors.New("reservation expired")

	// ErrTransactionMismatch indicates that a signed transaction differs from the prepared one.
	ErrTransactionMismatch = errors.New("transaction doesn't match the prepared one")

	// ErrInvalidSignature indicates that a signed transaction has missing or invalid signatures.
	ErrInvalidSignature = errors.New("invalid transaction signature")

	// ErrCountInProgress indicates that a count of the same poll is already running.
	ErrCountInProgress = errors.New("a count for this poll is already in progress")
)

// PrepareVoteRequest asks for a vote transaction to be built and co-signed by the nonce authority.
type PrepareVoteRequest struct {
	Poll      solana.PublicKey
	Voter     solana.PublicKey
	Candidate poll.Candidate
}

// Reservation is a prepared vote transaction waiting for the voter signature.
// Its nonce is held until the reservation is committed, aborted or expires.
type Reservation struct {
	ID           string           `json:"id"`
	Poll         solana.PublicKey `json:"poll"`
	Voter        solana.PublicKey `json:"voter"`
	Candidate    string           `json:"candidate"`
	Transaction  string           `json:"transaction"`
	NonceAccount solana.PublicKey `json:"nonceAccount"`
	NonceValue   solana.Hash      `json:"nonceValue"`
	ExpiresAt    time.Time        `json:"expiresAt"`
}

// CommitVoteRequest hands back a prepared transaction signed by the voter.
type CommitVoteRequest struct {
	Poll          solana.PublicKey
	ReservationID string
	// Transaction is the base58 encoded wire transaction.
	Transaction string
}

// CountResult summarizes a count pass.
type CountResult struct {
	Poll      solana.PublicKey `json:"poll"`
	Submitted int              `json:"submitted"`
	Failed    int              `json:"failed"`
	Tally     poll.Tally       `json:"tally"`
}

// PoolStats reports the state of the nonce pool.
type PoolStats struct {
	Available    int `json:"available"`
	Leased       int `json:"leased"`
	Reservations int `json:"reservations"`
}

// DurableVote defines the operations of the durable vote service.
type DurableVote interface {
	CreatePoll(context.Context) (*poll.Poll, error)
	FetchPoll(context.Context, solana.PublicKey) (*poll.Poll, error)
	Tally(solana.PublicKey) (poll.Tally, bool)

	CreateNonces(ctx context.Context, n int) ([]nonce.Entry, error)
	PoolStats() PoolStats

	PrepareVote(context.Context, PrepareVoteRequest) (Reservation, error)
	CommitVote(context.Context, CommitVoteRequest) (votestore.PendingVote, error)
	AbortVote(ctx context.Context, pollID solana.PublicKey, reservationID string) error
	CastVote(
		ctx context.Context, pollID solana.PublicKey, c poll.Candidate, signer wallet.Signer,
	) (votestore.PendingVote, error)
	ListVotes(ctx context.Context, pollID solana.PublicKey, status votestore.Status) ([]votestore.PendingVote, error)

	CountVotes(ctx context.Context, pollID solana.PublicKey) (CountResult, error)
	RequeueFailed(ctx context.Context, pollID solana.PublicKey) (int, error)
}
