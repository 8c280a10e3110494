package impl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rs/zerolog"
	"github.com/textileio/go-durablevote/pkg/ledger"
	"github.com/textileio/go-durablevote/pkg/metrics"
	"github.com/textileio/go-durablevote/pkg/nonce"
	"github.com/textileio/go-durablevote/pkg/wallet"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/instrument"
	"golang.org/x/sync/errgroup"
)

// Manager creates nonce accounts controlled by the authority wallet and fills a pool with them.
type Manager struct {
	pool      nonce.Pool
	ledger    ledger.Client
	authority *wallet.Wallet
	log       zerolog.Logger

	lamports      uint64
	perTx         int
	maxPerRequest int

	mCreated       instrument.Int64Counter
	mCreateLatency instrument.Int64Histogram
}

var _ nonce.Manager = (*Manager)(nil)

type managerConfig struct {
	lamports      uint64
	perTx         int
	maxPerRequest int
}

// ManagerOption modifies the manager configuration.
type ManagerOption func(*managerConfig) error

// WithLamports sets the balance each nonce account is funded with.
func WithLamports(lamports uint64) ManagerOption {
	return func(c *managerConfig) error {
		if lamports == 0 {
			return errors.New("lamports must be positive")
		}
		c.lamports = lamports
		return nil
	}
}

// WithNoncesPerTransaction sets how many nonce accounts are created in a single transaction.
func WithNoncesPerTransaction(n int) ManagerOption {
	return func(c *managerConfig) error {
		if n <= 0 {
			return errors.New("nonces per transaction must be positive")
		}
		c.perTx = n
		return nil
	}
}

// WithMaxPerRequest sets the maximum amount of nonces a single CreateNonces call accepts.
func WithMaxPerRequest(n int) ManagerOption {
	return func(c *managerConfig) error {
		if n <= 0 {
			return errors.New("max nonces per request must be positive")
		}
		c.maxPerRequest = n
		return nil
	}
}

// NewManager returns a nonce manager.
func NewManager(
	pool nonce.Pool,
	client ledger.Client,
	authority *wallet.Wallet,
	opts ...ManagerOption,
) (*Manager, error) {
	cfg := managerConfig{
		lamports:      nonce.DefaultLamports,
		perTx:         4,
		maxPerRequest: 64,
	}
	for _, o := range opts {
		if err := o(&cfg); err != nil {
			return nil, fmt.Errorf("applying option: %s", err)
		}
	}

	m := &Manager{
		pool:      pool,
		ledger:    client,
		authority: authority,
		log: log.With().
			Str("authority", authority.PublicKey().String()).
			Logger(),
		lamports:      cfg.lamports,
		perTx:         cfg.perTx,
		maxPerRequest: cfg.maxPerRequest,
	}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %s", err)
	}

	return m, nil
}

// Pool implements nonce.Manager.
func (m *Manager) Pool() nonce.Pool {
	return m.pool
}

// CreateNonces implements nonce.Manager.
func (m *Manager) CreateNonces(ctx context.Context, n int) (entries []nonce.Entry, err error) {
	if n <= 0 || n > m.maxPerRequest {
		return nil, fmt.Errorf("%d not in [1, %d]: %w", n, m.maxPerRequest, nonce.ErrInvalidCount)
	}

	start := time.Now()
	defer func() {
		attrs := append([]attribute.KeyValue{attribute.Bool("success", err == nil)}, metrics.BaseAttrs...)
		m.mCreateLatency.Record(ctx, time.Since(start).Milliseconds(), attrs...)
		if err == nil {
			m.mCreated.Add(ctx, int64(len(entries)), attrs...)
		}
	}()

	lamports, err := m.fundingLamports(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]solana.PrivateKey, n)
	for i := range keys {
		keys[i], err = solana.NewRandomPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("generating nonce account key: %s", err)
		}
	}

	for from := 0; from < n; from += m.perTx {
		to := from + m.perTx
		if to > n {
			to = n
		}
		sig, err := m.createChunk(ctx, keys[from:to], lamports)
		if err != nil {
			return nil, fmt.Errorf("creating nonce accounts %d to %d: %w", from, to-1, err)
		}
		m.log.Debug().
			Int("from", from).
			Int("to", to-1).
			Str("signature", sig.String()).
			Msg("nonce accounts created")
	}

	entries = make([]nonce.Entry, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.perTx)
	for i := range keys {
		i := i
		g.Go(func() error {
			e, err := m.Refresh(gctx, keys[i].PublicKey())
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reading created nonce accounts: %w", err)
	}

	if err := m.pool.Refill(entries...); err != nil {
		return nil, fmt.Errorf("refilling pool: %w", err)
	}

	m.log.Info().
		Int("count", n).
		Int("available", m.pool.Len()).
		Msg("nonces created")

	return entries, nil
}

// Refresh implements nonce.Manager.
func (m *Manager) Refresh(ctx context.Context, address solana.PublicKey) (nonce.Entry, error) {
	data, err := m.ledger.AccountData(ctx, address)
	if err != nil {
		return nonce.Entry{}, fmt.Errorf("get nonce account %s: %w", address, err)
	}
	acc, err := nonce.DecodeAccount(data)
	if err != nil {
		return nonce.Entry{}, fmt.Errorf("nonce account %s: %w", address, err)
	}
	if acc.State != nonce.StateInitialized {
		return nonce.Entry{}, fmt.Errorf("%s: %w", address, nonce.ErrUninitialized)
	}
	if !acc.Authority.Equals(m.authority.PublicKey()) {
		return nonce.Entry{}, fmt.Errorf("%s: %w", address, nonce.ErrWrongAuthority)
	}

	return nonce.Entry{Value: acc.Nonce, Address: address}, nil
}

func (m *Manager) fundingLamports(ctx context.Context) (uint64, error) {
	minimum, err := m.ledger.MinimumBalanceForRentExemption(ctx, nonce.AccountSize)
	if err != nil {
		return 0, fmt.Errorf("get rent exemption balance: %s", err)
	}
	if m.lamports < minimum {
		m.log.Warn().
			Uint64("configured", m.lamports).
			Uint64("minimum", minimum).
			Msg("configured nonce balance is below rent exemption, using the minimum")
		return minimum, nil
	}
	return m.lamports, nil
}

func (m *Manager) createChunk(ctx context.Context, keys []solana.PrivateKey, lamports uint64) (solana.Signature, error) {
	authority := m.authority.PublicKey()

	ixs := make([]solana.Instruction, 0, 2*len(keys))
	for _, key := range keys {
		ixs = append(ixs,
			system.NewCreateAccountInstruction(
				lamports,
				nonce.AccountSize,
				solana.SystemProgramID,
				authority,
				key.PublicKey(),
			).Build(),
			system.NewInitializeNonceAccountInstruction(
				authority,
				key.PublicKey(),
				solana.SysVarRecentBlockHashesPubkey,
				solana.SysVarRentPubkey,
			).Build(),
		)
	}

	blockhash, err := m.ledger.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %s", err)
	}
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(authority))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("building transaction: %s", err)
	}
	if err := m.authority.SignTransaction(ctx, tx); err != nil {
		return solana.Signature{}, fmt.Errorf("authority signing: %s", err)
	}
	if err := wallet.PartialSign(tx, keys...); err != nil {
		return solana.Signature{}, fmt.Errorf("nonce account signing: %s", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("marshaling transaction: %s", err)
	}
	return m.ledger.SendAndConfirm(ctx, raw)
}
