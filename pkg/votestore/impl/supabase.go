package impl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"github.com/textileio/go-durablevote/pkg/database/db"
	"github.com/textileio/go-durablevote/pkg/votestore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultSupabaseTable is the table the hosted store reads and writes.
const DefaultSupabaseTable = "durableTransactions"

// SupabaseStore implements votestore.Store on top of a Supabase (PostgREST) table.
type SupabaseStore struct {
	log        zerolog.Logger
	http       *http.Client
	projectURL string
	table      string
	apiKey     string
}

var _ votestore.Store = (*SupabaseStore)(nil)

// SupabaseOption modifies the Supabase store.
type SupabaseOption func(*SupabaseStore)

// WithHTTPClient sets the HTTP client used to reach PostgREST.
func WithHTTPClient(c *http.Client) SupabaseOption {
	return func(s *SupabaseStore) {
		s.http = c
	}
}

// WithTable sets the table name.
func WithTable(table string) SupabaseOption {
	return func(s *SupabaseStore) {
		s.table = table
	}
}

// NewSupabaseStore creates a store for the Supabase project at projectURL authenticated with apiKey.
func NewSupabaseStore(projectURL, apiKey string, opts ...SupabaseOption) (*SupabaseStore, error) {
	u, err := url.Parse(projectURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid supabase url %q", projectURL)
	}
	if apiKey == "" {
		return nil, errors.New("supabase api key is empty")
	}

	s := &SupabaseStore{
		log: logger.With().
			Str("component", "votestore").
			Str("backend", "supabase").
			Logger(),
		http: &http.Client{
			Timeout: time.Second * 30,
		},
		projectURL: strings.TrimSuffix(u.String(), "/"),
		table:      DefaultSupabaseTable,
		apiKey:     apiKey,
	}
	for _, o := range opts {
		o(s)
	}

	return s, nil
}

type supabaseRow struct {
	ID           string `json:"id"`
	Transaction  string `json:"transaction"`
	PublicKey    string `json:"publicKey"`
	PollID       string `json:"pollId"`
	Candidate    string `json:"candidate"`
	NonceAccount string `json:"nonceAccount"`
	NonceValue   string `json:"nonceValue"`
	Status       string `json:"status"`
	Error        string `json:"error"`
	Attempts     int64  `json:"attempts"`
	Signature    string `json:"signature"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

func (r supabaseRow) record() db.DurableTransaction {
	return db.DurableTransaction(r)
}

// Insert implements votestore.Store.
func (s *SupabaseStore) Insert(ctx context.Context, v votestore.PendingVote) (votestore.PendingVote, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	row := supabaseRow{
		ID:           v.ID,
		Transaction:  v.Transaction,
		PublicKey:    v.PublicKey.String(),
		PollID:       v.PollID.String(),
		Candidate:    v.Candidate.Code(),
		NonceAccount: v.NonceAccount.String(),
		NonceValue:   v.NonceValue.String(),
		Status:       string(votestore.StatusPending),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var rows []supabaseRow
	status, err := s.do(ctx, http.MethodPost, nil, row, &rows)
	if status == http.StatusConflict {
		return votestore.PendingVote{}, votestore.ErrDuplicateNonce
	}
	if err != nil {
		return votestore.PendingVote{}, fmt.Errorf("vote store insert: %s", err)
	}
	if len(rows) != 1 {
		return votestore.PendingVote{}, fmt.Errorf("vote store insert: %d rows returned", len(rows))
	}

	return fromRecord(rows[0].record())
}

// Get implements votestore.Store.
func (s *SupabaseStore) Get(ctx context.Context, id string) (votestore.PendingVote, error) {
	row, err := s.get(ctx, id)
	if err != nil {
		return votestore.PendingVote{}, err
	}
	return fromRecord(row.record())
}

// ListByPoll implements votestore.Store.
func (s *SupabaseStore) ListByPoll(
	ctx context.Context, pollID solana.PublicKey, status votestore.Status,
) ([]votestore.PendingVote, error) {
	q := url.Values{}
	q.Set("pollId", "eq."+pollID.String())
	if status != "" {
		q.Set("status", "eq."+string(status))
	}
	q.Set("order", "createdAt.asc,id.asc")

	var rows []supabaseRow
	if _, err := s.do(ctx, http.MethodGet, q, nil, &rows); err != nil {
		return nil, fmt.Errorf("vote store list: %s", err)
	}

	records := make([]db.DurableTransaction, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return fromRecords(records)
}

// MarkSubmitted implements votestore.Store.
func (s *SupabaseStore) MarkSubmitted(ctx context.Context, id string, signature solana.Signature) error {
	return s.transition(ctx, id, func(r *supabaseRow) {
		r.Status = string(votestore.StatusSubmitted)
		r.Signature = signature.String()
		r.Error = ""
	})
}

// MarkFailed implements votestore.Store.
func (s *SupabaseStore) MarkFailed(ctx context.Context, id string, reason string) error {
	return s.transition(ctx, id, func(r *supabaseRow) {
		r.Status = string(votestore.StatusFailed)
		r.Error = reason
	})
}

// Requeue implements votestore.Store.
func (s *SupabaseStore) Requeue(ctx context.Context, pollID solana.PublicKey) (int, error) {
	q := url.Values{}
	q.Set("pollId", "eq."+pollID.String())
	q.Set("status", "eq."+string(votestore.StatusFailed))

	patch := map[string]interface{}{
		"status":    votestore.StatusPending,
		"updatedAt": time.Now().Unix(),
	}
	var rows []supabaseRow
	if _, err := s.do(ctx, http.MethodPatch, q, patch, &rows); err != nil {
		return 0, fmt.Errorf("vote store requeue: %s", err)
	}
	return len(rows), nil
}

// DeleteSubmitted implements votestore.Store.
func (s *SupabaseStore) DeleteSubmitted(ctx context.Context, pollID solana.PublicKey) (int, error) {
	q := url.Values{}
	q.Set("pollId", "eq."+pollID.String())
	q.Set("status", "eq."+string(votestore.StatusSubmitted))

	var rows []supabaseRow
	if _, err := s.do(ctx, http.MethodDelete, q, nil, &rows); err != nil {
		return 0, fmt.Errorf("vote store delete submitted: %s", err)
	}
	return len(rows), nil
}

// CountByPoll implements votestore.Store.
func (s *SupabaseStore) CountByPoll(ctx context.Context, pollID solana.PublicKey) (votestore.Counts, error) {
	q := url.Values{}
	q.Set("pollId", "eq."+pollID.String())
	q.Set("select", "status")

	var rows []struct {
		Status votestore.Status `json:"status"`
	}
	if _, err := s.do(ctx, http.MethodGet, q, nil, &rows); err != nil {
		return votestore.Counts{}, fmt.Errorf("vote store count: %s", err)
	}

	var counts votestore.Counts
	for _, r := range rows {
		switch r.Status {
		case votestore.StatusPending:
			counts.Pending++
		case votestore.StatusSubmitted:
			counts.Submitted++
		case votestore.StatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

// Close implements votestore.Store.
func (s *SupabaseStore) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func (s *SupabaseStore) get(ctx context.Context, id string) (supabaseRow, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)

	var rows []supabaseRow
	if _, err := s.do(ctx, http.MethodGet, q, nil, &rows); err != nil {
		return supabaseRow{}, fmt.Errorf("vote store get: %s", err)
	}
	if len(rows) == 0 {
		return supabaseRow{}, votestore.ErrNotFound
	}
	return rows[0], nil
}

// transition updates a pending row. The status filter makes the update a no-op
// if another writer moved the row first.
func (s *SupabaseStore) transition(ctx context.Context, id string, update func(*supabaseRow)) error {
	row, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if row.Status != string(votestore.StatusPending) {
		return fmt.Errorf("vote %s: %w", id, votestore.ErrNotPending)
	}

	update(&row)
	patch := map[string]interface{}{
		"status":    row.Status,
		"error":     row.Error,
		"signature": row.Signature,
		"attempts":  row.Attempts + 1,
		"updatedAt": time.Now().Unix(),
	}

	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("status", "eq."+string(votestore.StatusPending))

	var rows []supabaseRow
	if _, err := s.do(ctx, http.MethodPatch, q, patch, &rows); err != nil {
		return fmt.Errorf("vote store update: %s", err)
	}
	if len(rows) != 1 {
		return fmt.Errorf("vote %s: %w", id, votestore.ErrNotPending)
	}

	return nil
}

func (s *SupabaseStore) do(
	ctx context.Context, method string, query url.Values, body interface{}, out interface{},
) (int, error) {
	endpoint := s.projectURL + "/rest/v1/" + s.table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling body: %s", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %s", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	res, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http %s error: %s", strings.ToLower(method), err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(res.Body)
		s.log.Warn().
			Str("method", method).
			Int("status", res.StatusCode).
			Str("body", string(msg)).
			Msg("postgrest call failed")
		return res.StatusCode, fmt.Errorf("failed call (status: %d, body: %s)", res.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return res.StatusCode, fmt.Errorf("unmarshaling result: %s", err)
		}
	}
	return res.StatusCode, nil
}
