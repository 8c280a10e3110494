package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"github.com/textileio/go-durablevote/buildinfo"
	"github.com/textileio/go-durablevote/internal/durablevote/impl"
	"github.com/textileio/go-durablevote/internal/router"
	"github.com/textileio/go-durablevote/pkg/backup"
	"github.com/textileio/go-durablevote/pkg/backup/restorer"
	"github.com/textileio/go-durablevote/pkg/database"
	"github.com/textileio/go-durablevote/pkg/ledger"
	ledgerimpl "github.com/textileio/go-durablevote/pkg/ledger/impl"
	"github.com/textileio/go-durablevote/pkg/logging"
	"github.com/textileio/go-durablevote/pkg/metrics"
	"github.com/textileio/go-durablevote/pkg/nonce"
	nonceimpl "github.com/textileio/go-durablevote/pkg/nonce/impl"
	"github.com/textileio/go-durablevote/pkg/poll"
	"github.com/textileio/go-durablevote/pkg/votestore"
	storeimpl "github.com/textileio/go-durablevote/pkg/votestore/impl"
	"github.com/textileio/go-durablevote/pkg/wallet"
)

func main() {
	config, dirPath := setupConfig()
	if err := logging.SetupLogger(buildinfo.GitCommit, config.Log.Level, config.Log.Human); err != nil {
		log.Fatal().Err(err).Msg("setting up logger")
	}

	inst, err := metrics.SetupInstrumentation(":"+config.Metrics.Port, "durablevote")
	if err != nil {
		log.Fatal().Err(err).Str("port", config.Metrics.Port).Msg("could not setup instrumentation")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	authority, err := wallet.NewWallet(config.Authority.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("creating authority wallet from private key")
	}

	ledgerClient, err := createLedgerClient(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Str("endpoint", config.Ledger.Endpoint).Msg("creating ledger client")
	}

	store, closeStore, err := createStore(ctx, config, dirPath)
	if err != nil {
		log.Fatal().Err(err).Str("backend", config.Store.Backend).Msg("creating vote store")
	}

	policy, err := nonce.ParsePolicy(config.Nonces.Policy)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing nonce policy")
	}
	pool, err := nonceimpl.NewMemoryPool(policy)
	if err != nil {
		log.Fatal().Err(err).Msg("creating nonce pool")
	}
	managerOpts := []nonceimpl.ManagerOption{
		nonceimpl.WithNoncesPerTransaction(config.Nonces.PerTransaction),
		nonceimpl.WithMaxPerRequest(config.Nonces.MaxPerRequest),
	}
	if config.Nonces.Lamports > 0 {
		managerOpts = append(managerOpts, nonceimpl.WithLamports(config.Nonces.Lamports))
	}
	manager, err := nonceimpl.NewManager(pool, ledgerClient, authority, managerOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("creating nonce manager")
	}

	programID := poll.DefaultProgramID
	if config.Ledger.ProgramID != "" {
		if programID, err = solana.PublicKeyFromBase58(config.Ledger.ProgramID); err != nil {
			log.Fatal().Err(err).Msg("parsing poll program id")
		}
	}

	reservationTTL, err := time.ParseDuration(config.Nonces.ReservationTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing reservation ttl")
	}
	svc, err := impl.NewDurableVoteService(
		ledgerClient,
		manager,
		store,
		poll.NewProgram(programID),
		authority,
		impl.WithRecycle(config.Nonces.Recycle),
		impl.WithReservationTTL(reservationTTL),
		impl.WithTallyCacheSize(config.TallyCacheSize),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("creating durable vote service")
	}
	dv, err := impl.NewInstrumentedDurableVote(svc)
	if err != nil {
		log.Fatal().Err(err).Msg("instrumenting durable vote service")
	}

	sweeperInterval, err := time.ParseDuration(config.Nonces.SweeperInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing sweeper interval")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.RunSweeper(ctx, sweeperInterval)
	}()

	if config.Backup.Enabled && config.Store.Backend == "sqlite" {
		scheduler, err := createBackupScheduler(config, dirPath)
		if err != nil {
			log.Fatal().Err(err).Msg("creating backup scheduler")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	}

	server, err := createAPIServer(config, dv)
	if err != nil {
		log.Fatal().Err(err).Msg("creating api server")
	}
	go func() {
		log.Info().Str("port", config.HTTP.Port).Msg("serving durable vote api")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("port", config.HTTP.Port).Msg("could not start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutting down api server")
	}
	wg.Wait()

	if err := closeStore(); err != nil {
		log.Error().Err(err).Msg("closing vote store")
	}
	if c, ok := ledgerClient.(interface{ Close() }); ok {
		c.Close()
	}
	if err := inst.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutting down instrumentation")
	}
	log.Info().Msg("daemon closed")
}

func createLedgerClient(ctx context.Context, config *config) (ledger.Client, error) {
	endpoint, err := url.Parse(config.Ledger.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %s", err)
	}
	if config.Ledger.APIKey != "" {
		query := endpoint.Query()
		query.Set("api-key", config.Ledger.APIKey)
		endpoint.RawQuery = query.Encode()
	}

	commitment, err := ledger.ParseCommitment(config.Ledger.Commitment)
	if err != nil {
		return nil, fmt.Errorf("parsing commitment: %s", err)
	}
	confirmTimeout, err := time.ParseDuration(config.Ledger.ConfirmTimeout)
	if err != nil {
		return nil, fmt.Errorf("parsing confirm timeout: %s", err)
	}
	pollInterval, err := time.ParseDuration(config.Ledger.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing poll interval: %s", err)
	}

	client, err := ledgerimpl.NewClient(
		ctx,
		endpoint.String(),
		ledgerimpl.WithCommitment(commitment),
		ledgerimpl.WithConfirmTimeout(confirmTimeout),
		ledgerimpl.WithPollInterval(pollInterval),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func sqlitePath(config *config, dirPath string) string {
	if config.Store.SQLite.Path != "" {
		return config.Store.SQLite.Path
	}
	return path.Join(dirPath, "votes.db")
}

func createStore(ctx context.Context, config *config, dirPath string) (votestore.Store, func() error, error) {
	var store votestore.Store
	switch config.Store.Backend {
	case "sqlite":
		dbPath := sqlitePath(config, dirPath)
		if config.Backup.RestoreFrom != "" {
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				log.Info().Str("from", config.Backup.RestoreFrom).Str("path", dbPath).Msg("restoring vote store")
				if err := restorer.NewBackupRestorer(config.Backup.RestoreFrom, dbPath).Restore(ctx); err != nil {
					return nil, nil, fmt.Errorf("restoring backup: %s", err)
				}
			}
		}
		sqliteDB, err := database.Open(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite database: %s", err)
		}
		store = storeimpl.NewSQLiteStore(sqliteDB)
	case "supabase":
		s, err := storeimpl.NewSupabaseStore(
			config.Store.Supabase.URL,
			config.Store.Supabase.APIKey,
			storeimpl.WithTable(config.Store.Supabase.Table),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("creating supabase store: %s", err)
		}
		store = s
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", config.Store.Backend)
	}

	instrumented, err := storeimpl.NewInstrumentedStore(store, config.Store.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("instrumenting store: %s", err)
	}
	return instrumented, instrumented.Close, nil
}

func createBackupScheduler(config *config, dirPath string) (*backup.Scheduler, error) {
	frequency, err := time.ParseDuration(config.Backup.Frequency)
	if err != nil {
		return nil, fmt.Errorf("parsing backup frequency: %s", err)
	}
	backupDir := config.Backup.Dir
	if backupDir == "" {
		backupDir = path.Join(dirPath, "backups")
	}

	backuper, err := backup.NewBackuper(
		sqlitePath(config, dirPath),
		backupDir,
		backup.WithCompression(config.Backup.Compression),
		backup.WithVacuum(config.Backup.Vacuum),
		backup.WithPruning(true, config.Backup.KeepFiles),
	)
	if err != nil {
		return nil, fmt.Errorf("creating backuper: %s", err)
	}
	return backup.NewScheduler(frequency, backuper)
}

func createAPIServer(config *config, dv *impl.InstrumentedDurableVote) (*http.Server, error) {
	rateLimInterval, err := time.ParseDuration(config.HTTP.RateLimInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing http ratelimiter interval: %s", err)
	}
	nonceRateLimInterval, err := time.ParseDuration(config.HTTP.NonceRateLimInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing nonce ratelimiter interval: %s", err)
	}

	rtr, err := router.ConfiguredRouter(dv, router.Config{
		MaxRPI:               config.HTTP.MaxRequestPerInterval,
		RateLimInterval:      rateLimInterval,
		MaxNonceRPI:          config.HTTP.NonceMaxRequestPerInterval,
		NonceRateLimInterval: nonceRateLimInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring router: %s", err)
	}

	return &http.Server{
		Addr:              ":" + config.HTTP.Port,
		Handler:           rtr.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}, nil
}
