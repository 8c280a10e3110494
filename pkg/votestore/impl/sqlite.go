package impl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/textileio/go-durablevote/pkg/database"
	"github.com/textileio/go-durablevote/pkg/database/db"
	"github.com/textileio/go-durablevote/pkg/poll"
	"github.com/textileio/go-durablevote/pkg/votestore"
)

// SQLiteStore implements votestore.Store on top of a local SQLite database.
type SQLiteStore struct {
	log      zerolog.Logger
	sqliteDB *database.SQLiteDB
}

var _ votestore.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new vote store backed by sqliteDB.
func NewSQLiteStore(sqliteDB *database.SQLiteDB) *SQLiteStore {
	log := sqliteDB.Log.With().
		Str("component", "votestore").
		Logger()

	return &SQLiteStore{
		log:      log,
		sqliteDB: sqliteDB,
	}
}

// Insert implements votestore.Store.
func (s *SQLiteStore) Insert(ctx context.Context, v votestore.PendingVote) (votestore.PendingVote, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now()
	err := s.sqliteDB.Queries.InsertDurableTransaction(ctx, db.InsertDurableTransactionParams{
		ID:           v.ID,
		Transaction:  v.Transaction,
		PublicKey:    v.PublicKey.String(),
		PollID:       v.PollID.String(),
		Candidate:    v.Candidate.Code(),
		NonceAccount: v.NonceAccount.String(),
		NonceValue:   v.NonceValue.String(),
		CreatedAt:    now.Unix(),
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: durable_transactions.nonce_account") {
			return votestore.PendingVote{}, votestore.ErrDuplicateNonce
		}
		return votestore.PendingVote{}, fmt.Errorf("vote store insert: %s", err)
	}

	v.Status = votestore.StatusPending
	v.Error = ""
	v.Attempts = 0
	v.Signature = ""
	v.CreatedAt = time.Unix(now.Unix(), 0)
	v.UpdatedAt = v.CreatedAt

	s.log.Debug().
		Str("id", v.ID).
		Str("poll", v.PollID.String()).
		Str("nonce_account", v.NonceAccount.String()).
		Msg("vote staged")

	return v, nil
}

// Get implements votestore.Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (votestore.PendingVote, error) {
	r, err := s.sqliteDB.Queries.GetDurableTransaction(ctx, id)
	if err == sql.ErrNoRows {
		return votestore.PendingVote{}, votestore.ErrNotFound
	}
	if err != nil {
		return votestore.PendingVote{}, fmt.Errorf("vote store get: %s", err)
	}
	return fromRecord(r)
}

// ListByPoll implements votestore.Store.
func (s *SQLiteStore) ListByPoll(
	ctx context.Context, pollID solana.PublicKey, status votestore.Status,
) ([]votestore.PendingVote, error) {
	var (
		rows []db.DurableTransaction
		err  error
	)
	if status == "" {
		rows, err = s.sqliteDB.Queries.ListDurableTransactionsByPoll(ctx, pollID.String())
	} else {
		rows, err = s.sqliteDB.Queries.ListDurableTransactionsByPollAndStatus(
			ctx, db.ListDurableTransactionsByPollAndStatusParams{
				PollID: pollID.String(),
				Status: string(status),
			})
	}
	if err != nil {
		return nil, fmt.Errorf("vote store list: %s", err)
	}

	return fromRecords(rows)
}

// MarkSubmitted implements votestore.Store.
func (s *SQLiteStore) MarkSubmitted(ctx context.Context, id string, signature solana.Signature) error {
	n, err := s.sqliteDB.Queries.MarkDurableTransactionSubmitted(ctx, db.MarkDurableTransactionSubmittedParams{
		ID:        id,
		Signature: signature.String(),
		UpdatedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("vote store mark submitted: %s", err)
	}
	return s.checkTransition(ctx, id, n)
}

// MarkFailed implements votestore.Store.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, reason string) error {
	n, err := s.sqliteDB.Queries.MarkDurableTransactionFailed(ctx, db.MarkDurableTransactionFailedParams{
		ID:        id,
		Error:     reason,
		UpdatedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("vote store mark failed: %s", err)
	}
	return s.checkTransition(ctx, id, n)
}

// Requeue implements votestore.Store.
func (s *SQLiteStore) Requeue(ctx context.Context, pollID solana.PublicKey) (int, error) {
	n, err := s.sqliteDB.Queries.RequeueFailedDurableTransactions(ctx, db.RequeueFailedDurableTransactionsParams{
		PollID:    pollID.String(),
		UpdatedAt: time.Now().Unix(),
	})
	if err != nil {
		return 0, fmt.Errorf("vote store requeue: %s", err)
	}
	return int(n), nil
}

// DeleteSubmitted implements votestore.Store.
func (s *SQLiteStore) DeleteSubmitted(ctx context.Context, pollID solana.PublicKey) (int, error) {
	n, err := s.sqliteDB.Queries.DeleteSubmittedDurableTransactions(ctx, pollID.String())
	if err != nil {
		return 0, fmt.Errorf("vote store delete submitted: %s", err)
	}
	return int(n), nil
}

// CountByPoll implements votestore.Store.
func (s *SQLiteStore) CountByPoll(ctx context.Context, pollID solana.PublicKey) (votestore.Counts, error) {
	rows, err := s.sqliteDB.Queries.CountDurableTransactionsByStatus(ctx, pollID.String())
	if err != nil {
		return votestore.Counts{}, fmt.Errorf("vote store count: %s", err)
	}
	var counts votestore.Counts
	for _, r := range rows {
		switch votestore.Status(r.Status) {
		case votestore.StatusPending:
			counts.Pending = int(r.Count)
		case votestore.StatusSubmitted:
			counts.Submitted = int(r.Count)
		case votestore.StatusFailed:
			counts.Failed = int(r.Count)
		}
	}
	return counts, nil
}

// Close implements votestore.Store.
func (s *SQLiteStore) Close() error {
	return s.sqliteDB.Close()
}

func (s *SQLiteStore) checkTransition(ctx context.Context, id string, affected int64) error {
	if affected == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("vote %s: %w", id, votestore.ErrNotPending)
}

func fromRecords(rows []db.DurableTransaction) ([]votestore.PendingVote, error) {
	votes := make([]votestore.PendingVote, 0, len(rows))
	for _, r := range rows {
		v, err := fromRecord(r)
		if err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, nil
}

func fromRecord(r db.DurableTransaction) (votestore.PendingVote, error) {
	voter, err := solana.PublicKeyFromBase58(r.PublicKey)
	if err != nil {
		return votestore.PendingVote{}, fmt.Errorf("vote %s: decoding public key: %s", r.ID, err)
	}
	pollID, err := solana.PublicKeyFromBase58(r.PollID)
	if err != nil {
		return votestore.PendingVote{}, fmt.Errorf("vote %s: decoding poll id: %s", r.ID, err)
	}
	candidate, err := poll.ParseCandidate(r.Candidate)
	if err != nil {
		return votestore.PendingVote{}, fmt.Errorf("vote %s: %w", r.ID, err)
	}
	nonceAccount, err := solana.PublicKeyFromBase58(r.NonceAccount)
	if err != nil {
		return votestore.PendingVote{}, fmt.Errorf("vote %s: decoding nonce account: %s", r.ID, err)
	}
	nonceValue, err := solana.HashFromBase58(r.NonceValue)
	if err != nil {
		return votestore.PendingVote{}, fmt.Errorf("vote %s: decoding nonce value: %s", r.ID, err)
	}

	return votestore.PendingVote{
		ID:           r.ID,
		Transaction:  r.Transaction,
		PublicKey:    voter,
		PollID:       pollID,
		Candidate:    candidate,
		NonceAccount: nonceAccount,
		NonceValue:   nonceValue,
		Status:       votestore.Status(r.Status),
		Error:        r.Error,
		Attempts:     int(r.Attempts),
		Signature:    r.Signature,
		CreatedAt:    time.Unix(r.CreatedAt, 0),
		UpdatedAt:    time.Unix(r.UpdatedAt, 0),
	}, nil
}
