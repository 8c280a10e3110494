package nonce

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// AccountSize is the space a nonce account reserves for its state.
const AccountSize = 80

// DefaultLamports is the balance each new nonce account is funded with.
const DefaultLamports = 1_500_000

// Entry pairs a nonce value with the nonce account that holds it.
type Entry struct {
	Value   solana.Hash
	Address solana.PublicKey
}

func (e Entry) String() string {
	return fmt.Sprintf("%s@%s", e.Value, e.Address)
}

// Policy decides which pooled entry is handed out next.
type Policy string

const (
	// FIFO hands out the oldest entry first.
	FIFO Policy = "fifo"
	// LIFO hands out the most recently added entry first.
	LIFO Policy = "lifo"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case FIFO, LIFO:
		return p, nil
	}
	return "", fmt.Errorf("unknown nonce ordering policy %q", s)
}

// ErrPoolEmpty indicates that there are no unused nonces left.
var ErrPoolEmpty = errors.New("no nonces left")

// ErrInvalidCount indicates that the amount of nonces requested isn't valid.
var ErrInvalidCount = errors.New("invalid nonce count")

// ErrDuplicateEntry indicates that a nonce account is already pooled or leased.
var ErrDuplicateEntry = errors.New("nonce account already tracked")

// ErrNotLeased indicates that an entry wasn't handed out by the pool.
var ErrNotLeased = errors.New("nonce entry is not leased")

// ErrUninitialized indicates that a nonce account isn't initialized.
var ErrUninitialized = errors.New("nonce account is not initialized")

// ErrWrongAuthority indicates that a nonce account is controlled by another authority.
var ErrWrongAuthority = errors.New("nonce account has a different authority")

// Pool tracks the unused nonce entries of the process.
type Pool interface {
	// Acquire leases the next entry according to the pool policy.
	// It returns ErrPoolEmpty if there are no entries left.
	Acquire() (Entry, error)

	// Release returns a leased entry to the pool so it can be handed out again.
	Release(Entry) error

	// Consume marks a leased entry as used. It won't be handed out again.
	Consume(Entry) error

	// Refill adds new entries. Entries whose account is already pooled or leased are rejected.
	Refill(...Entry) error

	// Len returns the number of entries that can be acquired.
	Len() int

	// Leased returns the number of entries acquired but not yet released or consumed.
	Leased() int
}

// Manager creates nonce accounts in the ledger and keeps the pool filled.
type Manager interface {
	// CreateNonces creates n nonce accounts in a single logical batch and adds them to the pool.
	// If any part of the batch fails the pool isn't modified.
	CreateNonces(ctx context.Context, n int) ([]Entry, error)

	// Refresh reads the current nonce value of an existing nonce account.
	Refresh(ctx context.Context, address solana.PublicKey) (Entry, error)

	// Pool returns the pool the manager fills.
	Pool() Pool
}

// State of a nonce account.
const (
	StateUninitialized uint32 = 0
	StateInitialized   uint32 = 1
)

// Account is the decoded state of a nonce account.
type Account struct {
	Version              uint32
	State                uint32
	Authority            solana.PublicKey
	Nonce                solana.Hash
	LamportsPerSignature uint64
}

// DecodeAccount decodes the data of a nonce account.
func DecodeAccount(data []byte) (Account, error) {
	if len(data) != AccountSize {
		return Account{}, fmt.Errorf("nonce account data has %d bytes, expected %d", len(data), AccountSize)
	}
	var acc Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return Account{}, fmt.Errorf("decoding nonce account: %s", err)
	}
	return acc, nil
}

// EncodeAccount encodes a nonce account state.
func EncodeAccount(acc Account) ([]byte, error) {
	data, err := bin.MarshalBin(&acc)
	if err != nil {
		return nil, fmt.Errorf("encoding nonce account: %s", err)
	}
	return data, nil
}
