package impl

import (
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"github.com/textileio/go-durablevote/pkg/nonce"
)

func TestPoolOrdering(t *testing.T) {
	t.Parallel()

	t.Run("fifo", func(t *testing.T) {
		t.Parallel()

		p := newPool(t, nonce.FIFO)
		entries := randomEntries(3)
		require.NoError(t, p.Refill(entries...))

		for _, want := range entries {
			got, err := p.Acquire()
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
	})

	t.Run("lifo", func(t *testing.T) {
		t.Parallel()

		p := newPool(t, nonce.LIFO)
		entries := randomEntries(3)
		require.NoError(t, p.Refill(entries...))

		for i := len(entries) - 1; i >= 0; i-- {
			got, err := p.Acquire()
			require.NoError(t, err)
			require.Equal(t, entries[i], got)
		}
	})
}

func TestPoolEmpty(t *testing.T) {
	t.Parallel()

	p := newPool(t, nonce.FIFO)
	_, err := p.Acquire()
	require.ErrorIs(t, err, nonce.ErrPoolEmpty)

	require.NoError(t, p.Refill(randomEntries(1)...))
	_, err = p.Acquire()
	require.NoError(t, err)

	_, err = p.Acquire()
	require.ErrorIs(t, err, nonce.ErrPoolEmpty)
	require.Equal(t, 0, p.Len())
	require.Equal(t, 1, p.Leased())
}

func TestPoolReleaseAndConsume(t *testing.T) {
	t.Parallel()

	p := newPool(t, nonce.FIFO)
	entries := randomEntries(2)
	require.NoError(t, p.Refill(entries...))

	e, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	// a released entry is handed out next
	require.NoError(t, p.Release(e))
	require.Equal(t, 2, p.Len())
	require.Equal(t, 0, p.Leased())
	again, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, e, again)

	require.NoError(t, p.Consume(again))
	require.Equal(t, 1, p.Len())
	require.Equal(t, 0, p.Leased())

	require.ErrorIs(t, p.Consume(again), nonce.ErrNotLeased)
	require.ErrorIs(t, p.Release(again), nonce.ErrNotLeased)

	// a lease is identified by both address and value
	last, err := p.Acquire()
	require.NoError(t, err)
	stale := nonce.Entry{Address: last.Address, Value: solana.Hash{1}}
	require.ErrorIs(t, p.Release(stale), nonce.ErrNotLeased)
}

func TestPoolRefillRejectsDuplicates(t *testing.T) {
	t.Parallel()

	p := newPool(t, nonce.FIFO)
	entries := randomEntries(2)
	require.NoError(t, p.Refill(entries...))

	err := p.Refill(entries[0])
	require.ErrorIs(t, err, nonce.ErrDuplicateEntry)

	leased, err := p.Acquire()
	require.NoError(t, err)
	refreshed := nonce.Entry{Address: leased.Address, Value: solana.Hash{9}}
	require.ErrorIs(t, p.Refill(refreshed), nonce.ErrDuplicateEntry)

	// a batch with an internal duplicate is rejected as a whole
	fresh := randomEntries(1)[0]
	require.ErrorIs(t, p.Refill(fresh, fresh), nonce.ErrDuplicateEntry)
	require.Equal(t, 1, p.Len())

	// once consumed, the account can be pooled again with its new value
	require.NoError(t, p.Consume(leased))
	require.NoError(t, p.Refill(refreshed))
	require.Equal(t, 2, p.Len())
}

func TestPoolConcurrentAcquire(t *testing.T) {
	t.Parallel()

	p := newPool(t, nonce.FIFO)
	require.NoError(t, p.Refill(randomEntries(50)...))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[solana.PublicKey]struct{}{}
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := p.Acquire()
			if err != nil {
				require.ErrorIs(t, err, nonce.ErrPoolEmpty)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_, dup := seen[e.Address]
			require.False(t, dup)
			seen[e.Address] = struct{}{}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 50)
	require.Equal(t, 0, p.Len())
	require.Equal(t, 50, p.Leased())
}

func TestNewMemoryPoolInvalidPolicy(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryPool(nonce.Policy("random"))
	require.Error(t, err)
}

func newPool(t *testing.T, policy nonce.Policy) *MemoryPool {
	t.Helper()

	p, err := NewMemoryPool(policy)
	require.NoError(t, err)
	return p
}

func randomEntries(n int) []nonce.Entry {
	entries := make([]nonce.Entry, n)
	for i := range entries {
		entries[i] = nonce.Entry{
			Value:   solana.Hash(solana.NewWallet().PublicKey()),
			Address: solana.NewWallet().PublicKey(),
		}
	}
	return entries
}
