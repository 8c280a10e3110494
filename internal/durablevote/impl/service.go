package impl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"github.com/textileio/go-durablevote/internal/durablevote"
	"github.com/textileio/go-durablevote/pkg/ledger"
	"github.com/textileio/go-durablevote/pkg/nonce"
	"github.com/textileio/go-durablevote/pkg/poll"
	"github.com/textileio/go-durablevote/pkg/votestore"
	"github.com/textileio/go-durablevote/pkg/wallet"
)

// DurableVoteService implements durablevote.DurableVote on top of a nonce manager,
// a vote store and the ledger.
type DurableVoteService struct {
	log       zerolog.Logger
	ledger    ledger.Client
	nonces    nonce.Manager
	store     votestore.Store
	program   *poll.Program
	authority *wallet.Wallet

	recycle        bool
	reservationTTL time.Duration
	clock          func() time.Time

	reservations *reservations
	tallies      *lru.Cache

	countingMu sync.Mutex
	counting   map[solana.PublicKey]struct{}
}

var _ durablevote.DurableVote = (*DurableVoteService)(nil)

type config struct {
	recycle        bool
	reservationTTL time.Duration
	tallyCacheSize int
}

// Option modifies the service configuration.
type Option func(*config) error

// WithRecycle makes the counter return nonce accounts to the pool once their vote is confirmed.
func WithRecycle(recycle bool) Option {
	return func(c *config) error {
		c.recycle = recycle
		return nil
	}
}

// WithReservationTTL sets how long a prepared vote holds its nonce.
func WithReservationTTL(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.New("reservation ttl must be positive")
		}
		c.reservationTTL = d
		return nil
	}
}

// WithTallyCacheSize sets how many poll tallies are mirrored in memory.
func WithTallyCacheSize(size int) Option {
	return func(c *config) error {
		if size <= 0 {
			return errors.New("tally cache size must be positive")
		}
		c.tallyCacheSize = size
		return nil
	}
}

// NewDurableVoteService creates a new service.
func NewDurableVoteService(
	client ledger.Client,
	nonces nonce.Manager,
	store votestore.Store,
	program *poll.Program,
	authority *wallet.Wallet,
	opts ...Option,
) (*DurableVoteService, error) {
	cfg := config{
		reservationTTL: 2 * time.Minute,
		tallyCacheSize: 1024,
	}
	for _, o := range opts {
		if err := o(&cfg); err != nil {
			return nil, fmt.Errorf("applying option: %s", err)
		}
	}

	tallies, err := lru.New(cfg.tallyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating tally cache: %s", err)
	}

	return &DurableVoteService{
		log:            logger.With().Str("component", "durablevote").Logger(),
		ledger:         client,
		nonces:         nonces,
		store:          store,
		program:        program,
		authority:      authority,
		recycle:        cfg.recycle,
		reservationTTL: cfg.reservationTTL,
		clock:          time.Now,
		reservations:   newReservations(),
		tallies:        tallies,
		counting:       map[solana.PublicKey]struct{}{},
	}, nil
}

// CreatePoll implements durablevote.DurableVote.
func (s *DurableVoteService) CreatePoll(ctx context.Context) (*poll.Poll, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating poll key: %s", err)
	}
	address := key.PublicKey()
	payer := s.authority.PublicKey()

	blockhash, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %s", err)
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{s.program.CreateInstruction(address, payer)},
		blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("building transaction: %s", err)
	}
	if err := s.authority.SignTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("authority signing: %s", err)
	}
	if err := wallet.PartialSign(tx, key); err != nil {
		return nil, fmt.Errorf("poll signing: %s", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling transaction: %s", err)
	}
	sig, err := s.ledger.SendAndConfirm(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("creating poll: %w", err)
	}

	s.tallies.Add(address, poll.Tally{})
	s.log.Info().
		Str("poll", address.String()).
		Str("signature", sig.String()).
		Msg("poll created")

	return &poll.Poll{Address: address}, nil
}

// FetchPoll implements durablevote.DurableVote.
func (s *DurableVoteService) FetchPoll(ctx context.Context, address solana.PublicKey) (*poll.Poll, error) {
	if address.IsZero() {
		return nil, durablevote.ErrNoPoll
	}
	data, err := s.ledger.AccountData(ctx, address)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, durablevote.ErrPollNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get poll account: %s", err)
	}
	p, err := poll.DecodeAccount(address, data)
	if errors.Is(err, poll.ErrInvalidAccount) {
		return nil, durablevote.ErrPollNotFound
	}
	if err != nil {
		return nil, err
	}

	s.tallies.Add(address, p.Tally)
	return p, nil
}

// knownPoll checks that the poll was created or fetched before, reading it
// from the ledger when it isn't mirrored.
func (s *DurableVoteService) knownPoll(ctx context.Context, address solana.PublicKey) error {
	if s.tallies.Contains(address) {
		return nil
	}
	_, err := s.FetchPoll(ctx, address)
	return err
}

// Tally implements durablevote.DurableVote. It returns the last tally read from the ledger.
func (s *DurableVoteService) Tally(address solana.PublicKey) (poll.Tally, bool) {
	v, ok := s.tallies.Get(address)
	if !ok {
		return poll.Tally{}, false
	}
	return v.(poll.Tally), true
}

// CreateNonces implements durablevote.DurableVote.
func (s *DurableVoteService) CreateNonces(ctx context.Context, n int) ([]nonce.Entry, error) {
	return s.nonces.CreateNonces(ctx, n)
}

// PoolStats implements durablevote.DurableVote.
func (s *DurableVoteService) PoolStats() durablevote.PoolStats {
	return durablevote.PoolStats{
		Available:    s.nonces.Pool().Len(),
		Leased:       s.nonces.Pool().Leased(),
		Reservations: s.reservations.len(),
	}
}

// PrepareVote implements durablevote.DurableVote.
func (s *DurableVoteService) PrepareVote(
	ctx context.Context, req durablevote.PrepareVoteRequest,
) (durablevote.Reservation, error) {
	if req.Voter.IsZero() {
		return durablevote.Reservation{}, durablevote.ErrNoVoter
	}
	if req.Poll.IsZero() {
		return durablevote.Reservation{}, durablevote.ErrNoPoll
	}
	if req.Candidate.Code() == "" {
		return durablevote.Reservation{}, durablevote.ErrInvalidCandidate
	}
	if err := s.knownPoll(ctx, req.Poll); err != nil {
		return durablevote.Reservation{}, err
	}

	s.SweepExpired()

	entry, err := s.nonces.Pool().Acquire()
	if errors.Is(err, nonce.ErrPoolEmpty) {
		return durablevote.Reservation{}, durablevote.ErrNoNonces
	}
	if err != nil {
		return durablevote.Reservation{}, fmt.Errorf("acquiring nonce: %s", err)
	}

	res, err := s.buildReservation(ctx, req, entry)
	if err != nil {
		s.release(entry)
		return durablevote.Reservation{}, err
	}
	s.reservations.put(res)

	s.log.Debug().
		Str("reservation", res.ID).
		Str("poll", req.Poll.String()).
		Str("voter", req.Voter.String()).
		Str("nonce_account", entry.Address.String()).
		Msg("vote prepared")

	return res.Reservation, nil
}

func (s *DurableVoteService) buildReservation(
	ctx context.Context, req durablevote.PrepareVoteRequest, entry nonce.Entry,
) (*reservation, error) {
	vote, err := s.program.VoteInstruction(req.Poll, req.Voter, req.Candidate)
	if err != nil {
		return nil, err
	}
	advance := system.NewAdvanceNonceAccountInstruction(
		entry.Address,
		solana.SysVarRecentBlockHashesPubkey,
		s.authority.PublicKey(),
	).Build()

	// the nonce value replaces the recent blockhash, so the transaction stays
	// valid until the nonce account is advanced.
	tx, err := solana.NewTransaction(
		[]solana.Instruction{advance, vote},
		entry.Value,
		solana.TransactionPayer(req.Voter),
	)
	if err != nil {
		return nil, fmt.Errorf("building transaction: %s", err)
	}
	if err := s.authority.SignTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("authority signing: %s", err)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling message: %s", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling transaction: %s", err)
	}

	return &reservation{
		Reservation: durablevote.Reservation{
			ID:           uuid.NewString(),
			Poll:         req.Poll,
			Voter:        req.Voter,
			Candidate:    req.Candidate.Code(),
			Transaction:  base58.Encode(raw),
			NonceAccount: entry.Address,
			NonceValue:   entry.Value,
			ExpiresAt:    s.clock().Add(s.reservationTTL),
		},
		candidate: req.Candidate,
		entry:     entry,
		message:   message,
	}, nil
}

// CommitVote implements durablevote.DurableVote.
func (s *DurableVoteService) CommitVote(
	ctx context.Context, req durablevote.CommitVoteRequest,
) (votestore.PendingVote, error) {
	res, ok := s.reservations.take(req.Poll, req.ReservationID)
	if !ok {
		return votestore.PendingVote{}, durablevote.ErrReservationNotFound
	}
	if !s.clock().Before(res.ExpiresAt) {
		s.release(res.entry)
		return votestore.PendingVote{}, durablevote.ErrReservationExpired
	}

	if err := s.verifySigned(res, req.Transaction); err != nil {
		// the voter may retry with a correct signature
		s.reservations.put(res)
		return votestore.PendingVote{}, err
	}

	vote, err := s.store.Insert(ctx, votestore.PendingVote{
		ID:           uuid.NewString(),
		Transaction:  req.Transaction,
		PublicKey:    res.Voter,
		PollID:       res.Poll,
		Candidate:    res.candidate,
		NonceAccount: res.entry.Address,
		NonceValue:   res.entry.Value,
	})
	if err != nil {
		s.release(res.entry)
		return votestore.PendingVote{}, fmt.Errorf("staging vote: %w", err)
	}

	if err := s.nonces.Pool().Consume(res.entry); err != nil {
		s.log.Error().Err(err).Str("nonce_account", res.entry.Address.String()).Msg("consuming nonce")
	}

	s.log.Info().
		Str("id", vote.ID).
		Str("poll", vote.PollID.String()).
		Str("voter", vote.PublicKey.String()).
		Msg("vote staged")

	return vote, nil
}

func (s *DurableVoteService) verifySigned(res *reservation, encoded string) error {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return fmt.Errorf("%w: decoding base58: %s", durablevote.ErrTransactionMismatch, err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return fmt.Errorf("%w: decoding transaction: %s", durablevote.ErrTransactionMismatch, err)
	}
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%w: marshaling message: %s", durablevote.ErrTransactionMismatch, err)
	}
	if !bytes.Equal(message, res.message) {
		return durablevote.ErrTransactionMismatch
	}
	if err := wallet.VerifySignatures(tx); err != nil {
		return fmt.Errorf("%w: %s", durablevote.ErrInvalidSignature, err)
	}
	return nil
}

// AbortVote implements durablevote.DurableVote.
func (s *DurableVoteService) AbortVote(_ context.Context, pollID solana.PublicKey, reservationID string) error {
	res, ok := s.reservations.take(pollID, reservationID)
	if !ok {
		return durablevote.ErrReservationNotFound
	}
	s.release(res.entry)
	return nil
}

// CastVote implements durablevote.DurableVote. It prepares, signs and commits a vote in a single call.
func (s *DurableVoteService) CastVote(
	ctx context.Context, pollID solana.PublicKey, c poll.Candidate, signer wallet.Signer,
) (votestore.PendingVote, error) {
	res, err := s.PrepareVote(ctx, durablevote.PrepareVoteRequest{
		Poll:      pollID,
		Voter:     signer.PublicKey(),
		Candidate: c,
	})
	if err != nil {
		return votestore.PendingVote{}, err
	}

	signed, err := wallet.SignEncoded(ctx, signer, res.Transaction)
	if err != nil {
		if abortErr := s.AbortVote(ctx, pollID, res.ID); abortErr != nil {
			s.log.Error().Err(abortErr).Str("reservation", res.ID).Msg("aborting vote")
		}
		return votestore.PendingVote{}, fmt.Errorf("voter signing: %s", err)
	}

	return s.CommitVote(ctx, durablevote.CommitVoteRequest{
		Poll:          pollID,
		ReservationID: res.ID,
		Transaction:   signed,
	})
}

// ListVotes implements durablevote.DurableVote.
func (s *DurableVoteService) ListVotes(
	ctx context.Context, pollID solana.PublicKey, status votestore.Status,
) ([]votestore.PendingVote, error) {
	if pollID.IsZero() {
		return nil, durablevote.ErrNoPoll
	}
	return s.store.ListByPoll(ctx, pollID, status)
}

// RequeueFailed implements durablevote.DurableVote.
func (s *DurableVoteService) RequeueFailed(ctx context.Context, pollID solana.PublicKey) (int, error) {
	if pollID.IsZero() {
		return 0, durablevote.ErrNoPoll
	}
	n, err := s.store.Requeue(ctx, pollID)
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("poll", pollID.String()).Int("count", n).Msg("failed votes requeued")
	return n, nil
}

// SweepExpired releases the nonces of expired reservations.
func (s *DurableVoteService) SweepExpired() int {
	expired := s.reservations.expired(s.clock())
	for _, res := range expired {
		s.release(res.entry)
		s.log.Debug().Str("reservation", res.ID).Msg("reservation expired")
	}
	return len(expired)
}

// RunSweeper sweeps expired reservations every interval until ctx is done.
func (s *DurableVoteService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepExpired(); n > 0 {
				s.log.Info().Int("count", n).Msg("expired reservations released")
			}
		}
	}
}

func (s *DurableVoteService) release(e nonce.Entry) {
	if err := s.nonces.Pool().Release(e); err != nil {
		s.log.Error().Err(err).Str("nonce_account", e.Address.String()).Msg("releasing nonce")
	}
}
