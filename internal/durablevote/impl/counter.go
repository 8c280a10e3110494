package impl

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/textileio/go-durablevote/internal/durablevote"
	"github.com/textileio/go-durablevote/pkg/votestore"
)

// CountVotes implements durablevote.DurableVote.
//
// Pending votes are submitted one by one in the order they were staged. A ledger
// rejection marks the row as failed and the pass goes on. Only submitted rows are
// deleted, failed ones stay in the store until they're requeued.
func (s *DurableVoteService) CountVotes(ctx context.Context, pollID solana.PublicKey) (durablevote.CountResult, error) {
	if pollID.IsZero() {
		return durablevote.CountResult{}, durablevote.ErrNoPoll
	}
	if err := s.knownPoll(ctx, pollID); err != nil {
		return durablevote.CountResult{}, err
	}

	if !s.startCount(pollID) {
		return durablevote.CountResult{}, durablevote.ErrCountInProgress
	}
	defer s.endCount(pollID)

	log := s.log.With().Str("poll", pollID.String()).Logger()

	votes, err := s.store.ListByPoll(ctx, pollID, votestore.StatusPending)
	if err != nil {
		return durablevote.CountResult{}, fmt.Errorf("listing pending votes: %w", err)
	}

	result := durablevote.CountResult{Poll: pollID}
	for _, v := range votes {
		sig, err := s.submit(ctx, v)
		if err != nil {
			log.Warn().Err(err).Str("id", v.ID).Msg("vote submission failed")
			if err := s.store.MarkFailed(ctx, v.ID, err.Error()); err != nil {
				return result, fmt.Errorf("marking vote %s as failed: %w", v.ID, err)
			}
			result.Failed++
			continue
		}
		if err := s.store.MarkSubmitted(ctx, v.ID, sig); err != nil {
			return result, fmt.Errorf("marking vote %s as submitted: %w", v.ID, err)
		}
		result.Submitted++

		if s.recycle {
			s.recycleNonce(ctx, v.NonceAccount)
		}
	}

	// also clears rows left behind by a pass that failed to delete them
	deleted, err := s.store.DeleteSubmitted(ctx, pollID)
	if err != nil {
		return result, fmt.Errorf("deleting submitted votes: %w", err)
	}
	if deleted > 0 {
		log.Debug().Int("deleted", deleted).Msg("submitted votes removed")
	}

	p, err := s.FetchPoll(ctx, pollID)
	if err != nil {
		return result, fmt.Errorf("refreshing tally: %w", err)
	}
	result.Tally = p.Tally

	log.Info().
		Int("submitted", result.Submitted).
		Int("failed", result.Failed).
		Uint64("total", result.Tally.Total()).
		Msg("votes counted")

	return result, nil
}

func (s *DurableVoteService) submit(ctx context.Context, v votestore.PendingVote) (solana.Signature, error) {
	raw, err := base58.Decode(v.Transaction)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("decoding base58: %s", err)
	}
	return s.ledger.SendAndConfirm(ctx, raw)
}

// recycleNonce puts an advanced nonce account back in the pool with its new value.
func (s *DurableVoteService) recycleNonce(ctx context.Context, address solana.PublicKey) {
	entry, err := s.nonces.Refresh(ctx, address)
	if err != nil {
		s.log.Warn().Err(err).Str("nonce_account", address.String()).Msg("refreshing nonce")
		return
	}
	if err := s.nonces.Pool().Refill(entry); err != nil {
		s.log.Warn().Err(err).Str("nonce_account", address.String()).Msg("recycling nonce")
	}
}

// startCount marks a pass over pollID as running. It returns false if one already is.
func (s *DurableVoteService) startCount(pollID solana.PublicKey) bool {
	s.countingMu.Lock()
	defer s.countingMu.Unlock()
	if _, ok := s.counting[pollID]; ok {
		return false
	}
	s.counting[pollID] = struct{}{}
	return true
}

func (s *DurableVoteService) endCount(pollID solana.PublicKey) {
	s.countingMu.Lock()
	defer s.countingMu.Unlock()
	delete(s.counting, pollID)
}
