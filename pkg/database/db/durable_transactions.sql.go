package db

import (
	"context"
	"database/sql"
)

const durableTransactionColumns = `id, "transaction", public_key, poll_id, candidate, nonce_account, nonce_value, status, error, attempts, signature, created_at, updated_at`

const insertDurableTransaction = `
INSERT INTO durable_transactions (id, "transaction", public_key, poll_id, candidate, nonce_account, nonce_value, status, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, 'pending', ?8, ?8)
`

type InsertDurableTransactionParams struct {
	ID           string
	Transaction  string
	PublicKey    string
	PollID       string
	Candidate    string
	NonceAccount string
	NonceValue   string
	CreatedAt    int64
}

func (q *Queries) InsertDurableTransaction(ctx context.Context, arg InsertDurableTransactionParams) error {
	_, err := q.db.ExecContext(ctx, insertDurableTransaction,
		arg.ID,
		arg.Transaction,
		arg.PublicKey,
		arg.PollID,
		arg.Candidate,
		arg.NonceAccount,
		arg.NonceValue,
		arg.CreatedAt,
	)
	return err
}

const getDurableTransaction = `
SELECT ` + durableTransactionColumns + ` FROM durable_transactions WHERE id = ?1
`

func (q *Queries) GetDurableTransaction(ctx context.Context, id string) (DurableTransaction, error) {
	row := q.db.QueryRowContext(ctx, getDurableTransaction, id)
	var i DurableTransaction
	err := scanDurableTransaction(row, &i)
	return i, err
}

const listDurableTransactionsByPoll = `
SELECT ` + durableTransactionColumns + ` FROM durable_transactions WHERE poll_id = ?1 ORDER BY created_at, rowid
`

func (q *Queries) ListDurableTransactionsByPoll(ctx context.Context, pollID string) ([]DurableTransaction, error) {
	rows, err := q.db.QueryContext(ctx, listDurableTransactionsByPoll, pollID)
	if err != nil {
		return nil, err
	}
	return collectDurableTransactions(rows)
}

const listDurableTransactionsByPollAndStatus = `
SELECT ` + durableTransactionColumns + ` FROM durable_transactions WHERE poll_id = ?1 AND status = ?2 ORDER BY created_at, rowid
`

type ListDurableTransactionsByPollAndStatusParams struct {
	PollID string
	Status string
}

func (q *Queries) ListDurableTransactionsByPollAndStatus(
	ctx context.Context, arg ListDurableTransactionsByPollAndStatusParams,
) ([]DurableTransaction, error) {
	rows, err := q.db.QueryContext(ctx, listDurableTransactionsByPollAndStatus, arg.PollID, arg.Status)
	if err != nil {
		return nil, err
	}
	return collectDurableTransactions(rows)
}

const markDurableTransactionSubmitted = `
UPDATE durable_transactions
SET status = 'submitted', signature = ?2, attempts = attempts + 1, error = '', updated_at = ?3
WHERE id = ?1 AND status = 'pending'
`

type MarkDurableTransactionSubmittedParams struct {
	ID        string
	Signature string
	UpdatedAt int64
}

func (q *Queries) MarkDurableTransactionSubmitted(
	ctx context.Context, arg MarkDurableTransactionSubmittedParams,
) (int64, error) {
	res, err := q.db.ExecContext(ctx, markDurableTransactionSubmitted, arg.ID, arg.Signature, arg.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markDurableTransactionFailed = `
UPDATE durable_transactions
SET status = 'failed', error = ?2, attempts = attempts + 1, updated_at = ?3
WHERE id = ?1 AND status = 'pending'
`

type MarkDurableTransactionFailedParams struct {
	ID        string
	Error     string
	UpdatedAt int64
}

func (q *Queries) MarkDurableTransactionFailed(ctx context.Context, arg MarkDurableTransactionFailedParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markDurableTransactionFailed, arg.ID, arg.Error, arg.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const requeueFailedDurableTransactions = `
UPDATE durable_transactions SET status = 'pending', updated_at = ?2 WHERE poll_id = ?1 AND status = 'failed'
`

type RequeueFailedDurableTransactionsParams struct {
	PollID    string
	UpdatedAt int64
}

func (q *Queries) RequeueFailedDurableTransactions(
	ctx context.Context, arg RequeueFailedDurableTransactionsParams,
) (int64, error) {
	res, err := q.db.ExecContext(ctx, requeueFailedDurableTransactions, arg.PollID, arg.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteSubmittedDurableTransactions = `
DELETE FROM durable_transactions WHERE poll_id = ?1 AND status = 'submitted'
`

func (q *Queries) DeleteSubmittedDurableTransactions(ctx context.Context, pollID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteSubmittedDurableTransactions, pollID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countDurableTransactionsByStatus = `
SELECT status, count(*) FROM durable_transactions WHERE poll_id = ?1 GROUP BY status
`

type CountDurableTransactionsByStatusRow struct {
	Status string
	Count  int64
}

func (q *Queries) CountDurableTransactionsByStatus(
	ctx context.Context, pollID string,
) ([]CountDurableTransactionsByStatusRow, error) {
	rows, err := q.db.QueryContext(ctx, countDurableTransactionsByStatus, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountDurableTransactionsByStatusRow
	for rows.Next() {
		var i CountDurableTransactionsByStatusRow
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDurableTransaction(s scanner, i *DurableTransaction) error {
	return s.Scan(
		&i.ID,
		&i.Transaction,
		&i.PublicKey,
		&i.PollID,
		&i.Candidate,
		&i.NonceAccount,
		&i.NonceValue,
		&i.Status,
		&i.Error,
		&i.Attempts,
		&i.Signature,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
}

func collectDurableTransactions(rows *sql.Rows) ([]DurableTransaction, error) {
	defer rows.Close()
	var items []DurableTransaction
	for rows.Next() {
		var i DurableTransaction
		if err := scanDurableTransaction(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
