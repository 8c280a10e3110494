package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/textileio/go-durablevote/buildinfo"
	"github.com/textileio/go-durablevote/internal/durablevote"
	"github.com/textileio/go-durablevote/internal/router/controllers/apiv1"
	serviceerrors "github.com/textileio/go-durablevote/pkg/errors"
	"github.com/textileio/go-durablevote/pkg/poll"
	"github.com/textileio/go-durablevote/pkg/votestore"
)

// Controller defines the HTTP handlers of the durable vote API.
type Controller struct {
	durablevote durablevote.DurableVote
}

// NewController creates a new Controller.
func NewController(dv durablevote.DurableVote) *Controller {
	return &Controller{durablevote: dv}
}

// Version returns git information of the running binary.
func (c *Controller) Version(rw http.ResponseWriter, _ *http.Request) {
	summary := buildinfo.GetSummary()
	writeJSON(rw, http.StatusOK, apiv1.VersionInfo{
		GitCommit:     summary.GitCommit,
		GitBranch:     summary.GitBranch,
		GitState:      summary.GitState,
		GitSummary:    summary.GitSummary,
		BuildDate:     summary.BuildDate,
		BinaryVersion: summary.Version,
	})
}

// CreatePoll creates a new poll account.
func (c *Controller) CreatePoll(rw http.ResponseWriter, r *http.Request) {
	p, err := c.durablevote.CreatePoll(r.Context())
	if err != nil {
		writeError(rw, r, err, "create poll")
		return
	}
	writeJSON(rw, http.StatusOK, toPoll(p.Address, p.Tally))
}

// GetPoll reads a poll account from the ledger.
func (c *Controller) GetPoll(rw http.ResponseWriter, r *http.Request) {
	pollID, ok := pollFromPath(rw, r)
	if !ok {
		return
	}
	p, err := c.durablevote.FetchPoll(r.Context(), pollID)
	if err != nil {
		writeError(rw, r, err, "fetch poll")
		return
	}
	writeJSON(rw, http.StatusOK, toPoll(p.Address, p.Tally))
}

// CreateNonces creates a batch of nonce accounts.
func (c *Controller) CreateNonces(rw http.ResponseWriter, r *http.Request) {
	var req apiv1.CreateNoncesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(rw, http.StatusBadRequest, "Invalid request body")
		return
	}
	entries, err := c.durablevote.CreateNonces(r.Context(), req.Count)
	if err != nil {
		writeError(rw, r, err, "create nonces")
		return
	}

	out := make([]apiv1.NonceEntry, len(entries))
	for i, e := range entries {
		out[i] = apiv1.NonceEntry{Account: e.Address.String(), Value: e.Value.String()}
	}
	writeJSON(rw, http.StatusOK, out)
}

// GetNonces reports the state of the nonce pool.
func (c *Controller) GetNonces(rw http.ResponseWriter, _ *http.Request) {
	stats := c.durablevote.PoolStats()
	writeJSON(rw, http.StatusOK, apiv1.PoolStats{
		Available:    stats.Available,
		Leased:       stats.Leased,
		Reservations: stats.Reservations,
	})
}

// PrepareVote builds a vote transaction for the voter to sign.
func (c *Controller) PrepareVote(rw http.ResponseWriter, r *http.Request) {
	pollID, ok := pollFromPath(rw, r)
	if !ok {
		return
	}
	var req apiv1.PrepareVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(rw, http.StatusBadRequest, "Invalid request body")
		return
	}

	var voter solana.PublicKey
	if req.Voter != "" {
		var err error
		if voter, err = solana.PublicKeyFromBase58(req.Voter); err != nil {
			writeMessage(rw, http.StatusBadRequest, "Invalid voter public key")
			return
		}
	}
	candidate, err := poll.ParseCandidate(req.Candidate)
	if err != nil {
		writeError(rw, r, err, "parse candidate")
		return
	}

	res, err := c.durablevote.PrepareVote(r.Context(), durablevote.PrepareVoteRequest{
		Poll:      pollID,
		Voter:     voter,
		Candidate: candidate,
	})
	if err != nil {
		writeError(rw, r, err, "prepare vote")
		return
	}

	writeJSON(rw, http.StatusOK, apiv1.Reservation{
		ID:           res.ID,
		Poll:         res.Poll.String(),
		Voter:        res.Voter.String(),
		Candidate:    res.Candidate,
		Transaction:  res.Transaction,
		NonceAccount: res.NonceAccount.String(),
		NonceValue:   res.NonceValue.String(),
		ExpiresAt:    res.ExpiresAt.Unix(),
	})
}

// CommitVote stages a vote signed by the voter.
func (c *Controller) CommitVote(rw http.ResponseWriter, r *http.Request) {
	pollID, ok := pollFromPath(rw, r)
	if !ok {
		return
	}
	var req apiv1.CommitVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(rw, http.StatusBadRequest, "Invalid request body")
		return
	}

	v, err := c.durablevote.CommitVote(r.Context(), durablevote.CommitVoteRequest{
		Poll:          pollID,
		ReservationID: req.ReservationID,
		Transaction:   req.Transaction,
	})
	if err != nil {
		writeError(rw, r, err, "commit vote")
		return
	}
	writeJSON(rw, http.StatusOK, toVote(v))
}

// AbortVote drops a reservation and returns its nonce to the pool.
func (c *Controller) AbortVote(rw http.ResponseWriter, r *http.Request) {
	pollID, ok := pollFromPath(rw, r)
	if !ok {
		return
	}
	if err := c.durablevote.AbortVote(r.Context(), pollID, mux.Vars(r)["id"]); err != nil {
		writeError(rw, r, err, "abort vote")
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// ListVotes lists the staged votes of a poll.
func (c *Controller) ListVotes(rw http.ResponseWriter, r *http.Request) {
	pollID, ok := pollFromPath(rw, r)
	if !ok {
		return
	}
	status, err := votestore.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeMessage(rw, http.StatusBadRequest, "Invalid status")
		return
	}

	votes, err := c.durablevote.ListVotes(r.Context(), pollID, status)
	if err != nil {
		writeError(rw, r, err, "list votes")
		return
	}
	out := make([]apiv1.Vote, len(votes))
	for i, v := range votes {
		out[i] = toVote(v)
	}
	writeJSON(rw, http.StatusOK, out)
}

// CountVotes submits the pending votes of a poll.
func (c *Controller) CountVotes(rw http.ResponseWriter, r *http.Request) {
	pollID, ok := pollFromPath(rw, r)
	if !ok {
		return
	}
	res, err := c.durablevote.CountVotes(r.Context(), pollID)
	if err != nil {
		writeError(rw, r, err, "count votes")
		return
	}
	writeJSON(rw, http.StatusOK, apiv1.CountResult{
		Poll:      res.Poll.String(),
		Submitted: res.Submitted,
		Failed:    res.Failed,
		Tally:     toTally(res.Tally),
	})
}

// RequeueFailed moves the failed votes of a poll back to pending.
func (c *Controller) RequeueFailed(rw http.ResponseWriter, r *http.Request) {
	pollID, ok := pollFromPath(rw, r)
	if !ok {
		return
	}
	n, err := c.durablevote.RequeueFailed(r.Context(), pollID)
	if err != nil {
		writeError(rw, r, err, "requeue votes")
		return
	}
	writeJSON(rw, http.StatusOK, apiv1.RequeueResult{Requeued: n})
}

func pollFromPath(rw http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	pollID, err := solana.PublicKeyFromBase58(mux.Vars(r)["poll"])
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("invalid poll address")
		writeMessage(rw, http.StatusBadRequest, "Invalid poll address")
		return solana.PublicKey{}, false
	}
	return pollID, true
}

// errorStatus maps service errors to a status code and a user facing message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, durablevote.ErrNoNonces):
		return http.StatusConflict, "No more nonces left, create some."
	case errors.Is(err, durablevote.ErrCountInProgress),
		errors.Is(err, votestore.ErrDuplicateNonce):
		return http.StatusConflict, err.Error()
	case errors.Is(err, durablevote.ErrNoVoter),
		errors.Is(err, durablevote.ErrNoPoll),
		errors.Is(err, durablevote.ErrInvalidCandidate),
		errors.Is(err, durablevote.ErrInvalidCount),
		errors.Is(err, durablevote.ErrTransactionMismatch),
		errors.Is(err, durablevote.ErrInvalidSignature):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, durablevote.ErrPollNotFound),
		errors.Is(err, durablevote.ErrReservationNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, durablevote.ErrReservationExpired):
		return http.StatusGone, err.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}

func writeError(rw http.ResponseWriter, r *http.Request, err error, op string) {
	status, msg := errorStatus(err)
	event := log.Ctx(r.Context()).Warn()
	if status == http.StatusInternalServerError {
		event = log.Ctx(r.Context()).Error()
	}
	event.Err(err).Msg(op)
	writeMessage(rw, status, msg)
}

func writeMessage(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, serviceerrors.ServiceError{Message: msg})
}

func writeJSON(rw http.ResponseWriter, status int, body interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(body)
}

func toTally(t poll.Tally) apiv1.Tally {
	return apiv1.Tally{Ethereum: t.Ethereum, Solana: t.Solana, Polygon: t.Polygon}
}

func toPoll(address solana.PublicKey, t poll.Tally) apiv1.Poll {
	return apiv1.Poll{Address: address.String(), Tally: toTally(t)}
}

func toVote(v votestore.PendingVote) apiv1.Vote {
	return apiv1.Vote{
		ID:           v.ID,
		Poll:         v.PollID.String(),
		Voter:        v.PublicKey.String(),
		Candidate:    v.Candidate.Code(),
		Transaction:  v.Transaction,
		NonceAccount: v.NonceAccount.String(),
		NonceValue:   v.NonceValue.String(),
		Status:       string(v.Status),
		Error:        v.Error,
		Attempts:     v.Attempts,
		Signature:    v.Signature,
		CreatedAt:    v.CreatedAt.Unix(),
		UpdatedAt:    v.UpdatedAt.Unix(),
	}
}
