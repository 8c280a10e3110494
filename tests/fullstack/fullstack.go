package fullstack

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/textileio/go-durablevote/internal/durablevote"
	"github.com/textileio/go-durablevote/internal/durablevote/impl"
	"github.com/textileio/go-durablevote/internal/router"
	"github.com/textileio/go-durablevote/pkg/database"
	"github.com/textileio/go-durablevote/pkg/nonce"
	nonceimpl "github.com/textileio/go-durablevote/pkg/nonce/impl"
	"github.com/textileio/go-durablevote/pkg/poll"
	"github.com/textileio/go-durablevote/pkg/votestore"
	storeimpl "github.com/textileio/go-durablevote/pkg/votestore/impl"
	"github.com/textileio/go-durablevote/pkg/wallet"
	"github.com/textileio/go-durablevote/tests"
)

// FullStack holds all potentially useful components of the durable vote test stack.
type FullStack struct {
	Ledger    *tests.SimulatedLedger
	Authority *wallet.Wallet
	Nonces    *nonceimpl.Manager
	Store     votestore.Store
	Service   durablevote.DurableVote
	Server    *httptest.Server
}

// Deps holds possile dependencies that can optionally be provided to spin up the full stack.
type Deps struct {
	DBURI   string
	Policy  nonce.Policy
	Store   votestore.Store
	Options []impl.Option
}

// CreateFullStack creates a running API server backed by a simulated ledger with the
// provided dependencies, or defaults otherwise.
func CreateFullStack(t *testing.T, deps Deps) FullStack {
	t.Helper()

	sim := tests.NewSimulatedLedger(poll.DefaultProgramID)
	authority, err := wallet.NewRandomWallet()
	require.NoError(t, err)

	policy := deps.Policy
	if policy == "" {
		policy = nonce.FIFO
	}
	pool, err := nonceimpl.NewMemoryPool(policy)
	require.NoError(t, err)
	manager, err := nonceimpl.NewManager(pool, sim, authority)
	require.NoError(t, err)

	store := deps.Store
	if store == nil {
		dbURI := deps.DBURI
		if dbURI == "" {
			dbURI = tests.Sqlite3URL()
		}
		sqliteDB, err := database.Open(dbURI)
		require.NoError(t, err)
		store = storeimpl.NewSQLiteStore(sqliteDB)
	}
	store, err = storeimpl.NewInstrumentedStore(store, "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	svc, err := impl.NewDurableVoteService(sim, manager, store, poll.NewProgram(sim.ProgramID), authority, deps.Options...)
	require.NoError(t, err)
	dv, err := impl.NewInstrumentedDurableVote(svc)
	require.NoError(t, err)

	rtr, err := router.ConfiguredRouter(dv, router.Config{
		MaxRPI:          1000,
		RateLimInterval: time.Second,
	})
	require.NoError(t, err)

	server := httptest.NewServer(rtr.Handler())
	t.Cleanup(server.Close)

	return FullStack{
		Ledger:    sim,
		Authority: authority,
		Nonces:    manager,
		Store:     store,
		Service:   dv,
		Server:    server,
	}
}
