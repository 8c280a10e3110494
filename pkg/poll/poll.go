package poll

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the address of the deployed poll program.
var DefaultProgramID = solana.MustPublicKeyFromBase58("5MgjVvaSLj6zmxuYhSST1M4LBiXoiSMrJPDZTRPQoiw8")

// ErrInvalidCandidate indicates that the candidate isn't one of the poll options.
var ErrInvalidCandidate = errors.New("invalid candidate")

// ErrInvalidAccount indicates that account data isn't a poll account.
var ErrInvalidAccount = errors.New("invalid poll account")

// Candidate is one of the poll options.
type Candidate int

// The poll options.
const (
	Ethereum Candidate = iota
	Solana
	Polygon
)

// Candidates lists all poll options.
var Candidates = []Candidate{Ethereum, Solana, Polygon}

// Code returns the short code the program expects in a vote instruction.
func (c Candidate) Code() string {
	switch c {
	case Ethereum:
		return "eth"
	case Solana:
		return "sol"
	case Polygon:
		return "pol"
	}
	return ""
}

func (c Candidate) String() string {
	switch c {
	case Ethereum:
		return "ethereum"
	case Solana:
		return "solana"
	case Polygon:
		return "polygon"
	}
	return "unknown"
}

// ParseCandidate accepts a short code ("sol"), a name ("solana") or an index ("1").
func ParseCandidate(s string) (Candidate, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Candidates {
		if s == c.Code() || s == c.String() || s == strconv.Itoa(int(c)) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrInvalidCandidate)
}

// Tally holds the vote counts of a poll.
type Tally struct {
	Ethereum uint64 `json:"ethereum"`
	Solana   uint64 `json:"solana"`
	Polygon  uint64 `json:"polygon"`
}

// Total returns the sum of all votes.
func (t Tally) Total() uint64 {
	return t.Ethereum + t.Solana + t.Polygon
}

// Count returns the votes of a single candidate.
func (t Tally) Count(c Candidate) uint64 {
	switch c {
	case Ethereum:
		return t.Ethereum
	case Solana:
		return t.Solana
	case Polygon:
		return t.Polygon
	}
	return 0
}

// Add returns a copy of the tally with one more vote for c.
func (t Tally) Add(c Candidate) Tally {
	switch c {
	case Ethereum:
		t.Ethereum++
	case Solana:
		t.Solana++
	case Polygon:
		t.Polygon++
	}
	return t
}

// Poll is the decoded state of a poll account.
type Poll struct {
	Address solana.PublicKey
	Tally
}

// Anchor discriminators of the program instructions and accounts.
var (
	CreateDiscriminator  = discriminator("global", "create")
	VoteDiscriminator    = discriminator("global", "vote")
	AccountDiscriminator = discriminator("account", "Poll")
)

// AccountSize is the space reserved for a poll account.
const AccountSize = 8 + 3*8

func discriminator(namespace, name string) [8]byte {
	var d [8]byte
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	copy(d[:], sum[:8])
	return d
}

// Program builds instructions for the poll program.
type Program struct {
	id solana.PublicKey
}

// NewProgram creates a Program for the program deployed at id.
func NewProgram(id solana.PublicKey) *Program {
	return &Program{id: id}
}

// ID returns the program address.
func (p *Program) ID() solana.PublicKey {
	return p.id
}

// CreateInstruction initializes a poll account paid by user. Both must sign.
func (p *Program) CreateInstruction(pollAccount, user solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		p.id,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(pollAccount, true, true),
			solana.NewAccountMeta(user, true, true),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		},
		CreateDiscriminator[:],
	)
}

type voteArgs struct {
	Vote string
}

// VoteInstruction casts a vote for c in pollAccount signed by voter.
func (p *Program) VoteInstruction(pollAccount, voter solana.PublicKey, c Candidate) (solana.Instruction, error) {
	if c.Code() == "" {
		return nil, ErrInvalidCandidate
	}
	args, err := bin.MarshalBorsh(&voteArgs{Vote: c.Code()})
	if err != nil {
		return nil, fmt.Errorf("encoding vote args: %s", err)
	}
	data := append(VoteDiscriminator[:], args...)

	return solana.NewInstruction(
		p.id,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(pollAccount, true, false),
			solana.NewAccountMeta(voter, false, true),
		},
		data,
	), nil
}

// DecodeVoteInstruction returns the candidate of a vote instruction data.
func DecodeVoteInstruction(data []byte) (Candidate, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], VoteDiscriminator[:]) {
		return 0, errors.New("not a vote instruction")
	}
	var args voteArgs
	if err := bin.NewBorshDecoder(data[8:]).Decode(&args); err != nil {
		return 0, fmt.Errorf("decoding vote args: %s", err)
	}
	for _, c := range Candidates {
		if c.Code() == args.Vote {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", args.Vote, ErrInvalidCandidate)
}

type accountState struct {
	Ethereum uint64
	Solana   uint64
	Polygon  uint64
}

// DecodeAccount decodes the data of the poll account at address.
func DecodeAccount(address solana.PublicKey, data []byte) (*Poll, error) {
	if len(data) < AccountSize || !bytes.Equal(data[:8], AccountDiscriminator[:]) {
		return nil, ErrInvalidAccount
	}
	var state accountState
	if err := bin.NewBorshDecoder(data[8:]).Decode(&state); err != nil {
		return nil, fmt.Errorf("decoding poll account: %s", err)
	}
	return &Poll{
		Address: address,
		Tally: Tally{
			Ethereum: state.Ethereum,
			Solana:   state.Solana,
			Polygon:  state.Polygon,
		},
	}, nil
}

// EncodeAccount encodes a tally with the poll account layout.
func EncodeAccount(t Tally) ([]byte, error) {
	state, err := bin.MarshalBorsh(&accountState{
		Ethereum: t.Ethereum,
		Solana:   t.Solana,
		Polygon:  t.Polygon,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding poll account: %s", err)
	}
	return append(AccountDiscriminator[:], state...), nil
}
