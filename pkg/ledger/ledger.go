package ledger

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// Commitment is the ledger confirmation level a request waits for.
type Commitment string

const (
	// CommitmentProcessed is the lowest confirmation level.
	CommitmentProcessed Commitment = "processed"
	// CommitmentConfirmed waits for a supermajority vote on the block.
	CommitmentConfirmed Commitment = "confirmed"
	// CommitmentFinalized waits for the block to be rooted.
	CommitmentFinalized Commitment = "finalized"
)

// ParseCommitment parses a commitment level name.
func ParseCommitment(s string) (Commitment, error) {
	switch c := Commitment(s); c {
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return c, nil
	}
	return "", errors.New("unknown commitment level")
}

// Reached tells if a confirmation status satisfies the commitment c.
func (c Commitment) Reached(status Commitment) bool {
	return rank(status) >= rank(c)
}

func rank(c Commitment) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	}
	return 0
}

// ErrAccountNotFound indicates that the account doesn't exist in the ledger.
var ErrAccountNotFound = errors.New("account not found")

// ErrTransactionFailed indicates that the ledger rejected or failed to execute a transaction.
var ErrTransactionFailed = errors.New("transaction failed")

// ErrConfirmationTimeout indicates that a submitted transaction wasn't confirmed in time.
var ErrConfirmationTimeout = errors.New("transaction confirmation timeout")

// Client provides the basic api the ledger RPC needs to provide.
type Client interface {
	// LatestBlockhash returns a recent blockhash to build short-lived transactions.
	LatestBlockhash(context.Context) (solana.Hash, error)

	// AccountData returns the raw data of an account, or ErrAccountNotFound.
	AccountData(context.Context, solana.PublicKey) ([]byte, error)

	// MinimumBalanceForRentExemption returns the lamports an account of the given size needs.
	MinimumBalanceForRentExemption(context.Context, uint64) (uint64, error)

	// SendAndConfirm submits a serialized signed transaction and waits for its confirmation.
	SendAndConfirm(context.Context, []byte) (solana.Signature, error)
}
