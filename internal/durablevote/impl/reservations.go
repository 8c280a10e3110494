package impl

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/textileio/go-durablevote/internal/durablevote"
	"github.com/textileio/go-durablevote/pkg/nonce"
	"github.com/textileio/go-durablevote/pkg/poll"
)

type reservation struct {
	durablevote.Reservation
	candidate poll.Candidate
	entry     nonce.Entry
	message   []byte
}

// reservations holds the prepared votes waiting for a voter signature.
type reservations struct {
	mu   sync.Mutex
	byID map[string]*reservation
}

func newReservations() *reservations {
	return &reservations{byID: map[string]*reservation{}}
}

func (r *reservations) put(res *reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[res.ID] = res
}

// take removes and returns the reservation of pollID with the given id.
func (r *reservations) take(pollID solana.PublicKey, id string) (*reservation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byID[id]
	if !ok || !res.Poll.Equals(pollID) {
		return nil, false
	}
	delete(r.byID, id)
	return res, true
}

// expired removes and returns every reservation that expired at now.
func (r *reservations) expired(now time.Time) []*reservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reservation
	for id, res := range r.byID {
		if !now.Before(res.ExpiresAt) {
			out = append(out, res)
			delete(r.byID, id)
		}
	}
	return out
}

func (r *reservations) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
