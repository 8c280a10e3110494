package impl

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	logger "github.com/rs/zerolog/log"
	"github.com/textileio/go-durablevote/pkg/nonce"
)

var log = logger.With().Str("component", "nonce").Logger()

// MemoryPool implements a nonce pool that lives in process memory.
// Entries are lost when the process exits.
type MemoryPool struct {
	policy nonce.Policy

	mu      sync.Mutex
	entries []nonce.Entry
	leased  map[solana.PublicKey]nonce.Entry
}

var _ nonce.Pool = (*MemoryPool)(nil)

// NewMemoryPool creates an empty pool with the given ordering policy.
func NewMemoryPool(policy nonce.Policy) (*MemoryPool, error) {
	if _, err := nonce.ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	p := &MemoryPool{
		policy: policy,
		leased: map[solana.PublicKey]nonce.Entry{},
	}
	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %s", err)
	}
	return p, nil
}

// Acquire implements nonce.Pool.
func (p *MemoryPool) Acquire() (nonce.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return nonce.Entry{}, nonce.ErrPoolEmpty
	}

	var e nonce.Entry
	switch p.policy {
	case nonce.LIFO:
		e = p.entries[len(p.entries)-1]
		p.entries = p.entries[:len(p.entries)-1]
	default:
		e = p.entries[0]
		p.entries = p.entries[1:]
	}
	p.leased[e.Address] = e

	log.Debug().
		Str("address", e.Address.String()).
		Str("nonce", e.Value.String()).
		Int("available", len(p.entries)).
		Msg("nonce acquired")

	return e, nil
}

// Release implements nonce.Pool. The entry goes back to the position it was acquired from.
func (p *MemoryPool) Release(e nonce.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.unlease(e); err != nil {
		return err
	}
	switch p.policy {
	case nonce.LIFO:
		p.entries = append(p.entries, e)
	default:
		p.entries = append([]nonce.Entry{e}, p.entries...)
	}

	log.Debug().
		Str("address", e.Address.String()).
		Int("available", len(p.entries)).
		Msg("nonce released")

	return nil
}

// Consume implements nonce.Pool.
func (p *MemoryPool) Consume(e nonce.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.unlease(e)
}

// Refill implements nonce.Pool. Either all entries are added or none.
func (p *MemoryPool) Refill(entries ...nonce.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[solana.PublicKey]struct{}, len(p.entries)+len(entries))
	for _, e := range p.entries {
		seen[e.Address] = struct{}{}
	}
	for _, e := range entries {
		_, pooled := seen[e.Address]
		_, leased := p.leased[e.Address]
		if pooled || leased {
			return fmt.Errorf("%s: %w", e.Address, nonce.ErrDuplicateEntry)
		}
		seen[e.Address] = struct{}{}
	}

	p.entries = append(p.entries, entries...)
	return nil
}

// Len implements nonce.Pool.
func (p *MemoryPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Leased implements nonce.Pool.
func (p *MemoryPool) Leased() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

func (p *MemoryPool) unlease(e nonce.Entry) error {
	leased, ok := p.leased[e.Address]
	if !ok || leased.Value != e.Value {
		return fmt.Errorf("%s: %w", e.Address, nonce.ErrNotLeased)
	}
	delete(p.leased, e.Address)
	return nil
}
