package votestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/textileio/go-durablevote/pkg/poll"
)

// Status is the submission state of a staged vote.
type Status string

const (
	// StatusPending means the vote waits for the next count.
	StatusPending Status = "pending"
	// StatusSubmitted means the vote was confirmed by the ledger.
	StatusSubmitted Status = "submitted"
	// StatusFailed means the ledger rejected the vote.
	StatusFailed Status = "failed"
)

// ParseStatus parses a status name. The empty string is accepted and means any status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case "", StatusPending, StatusSubmitted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown vote status %q", s)
}

// ErrNotFound indicates that the staged vote doesn't exist.
var ErrNotFound = errors.New("vote not found")

// ErrNotPending indicates that a status transition was attempted on a vote that isn't pending.
var ErrNotPending = errors.New("vote is not pending")

// ErrDuplicateNonce indicates that a vote using the same nonce account and value is already staged.
var ErrDuplicateNonce = errors.New("a vote using this nonce is already staged")

// PendingVote is a fully signed vote transaction staged for a later count.
type PendingVote struct {
	// ID is a globally unique identifier, a UUID unless the caller sets its own.
	ID string
	// Transaction is the base58 encoded wire transaction.
	Transaction  string
	PublicKey    solana.PublicKey
	PollID       solana.PublicKey
	Candidate    poll.Candidate
	NonceAccount solana.PublicKey
	NonceValue   solana.Hash
	Status       Status
	Error        string
	Attempts     int
	Signature    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Counts is the number of staged votes of a poll per status.
type Counts struct {
	Pending   int `json:"pending"`
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
}

// Store persists staged votes between the moment they're signed and the moment they're counted.
type Store interface {
	// Insert stages a new pending vote. A vote without ID gets a new UUID.
	Insert(context.Context, PendingVote) (PendingVote, error)

	// Get returns a staged vote by ID.
	Get(context.Context, string) (PendingVote, error)

	// ListByPoll lists the staged votes of a poll, oldest first. An empty status lists all.
	ListByPoll(ctx context.Context, pollID solana.PublicKey, status Status) ([]PendingVote, error)

	// MarkSubmitted moves a pending vote to submitted.
	MarkSubmitted(ctx context.Context, id string, signature solana.Signature) error

	// MarkFailed moves a pending vote to failed and records the reason.
	MarkFailed(ctx context.Context, id string, reason string) error

	// Requeue moves every failed vote of a poll back to pending.
	Requeue(ctx context.Context, pollID solana.PublicKey) (int, error)

	// DeleteSubmitted removes every submitted vote of a poll.
	DeleteSubmitted(ctx context.Context, pollID solana.PublicKey) (int, error)

	// CountByPoll returns the number of staged votes of a poll per status.
	CountByPoll(ctx context.Context, pollID solana.PublicKey) (Counts, error)

	// Close releases the store resources.
	Close() error
}
