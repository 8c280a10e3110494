package impl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"github.com/textileio/go-durablevote/pkg/ledger"
)

// Client is the JSON-RPC implementation of ledger.Client.
type Client struct {
	rpc *rpc.Client
	log zerolog.Logger

	commitment     ledger.Commitment
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

var _ ledger.Client = (*Client)(nil)

type config struct {
	commitment     ledger.Commitment
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Option modifies the client configuration.
type Option func(*config) error

// WithCommitment sets the commitment used for reads and confirmations.
func WithCommitment(c ledger.Commitment) Option {
	return func(cfg *config) error {
		cfg.commitment = c
		return nil
	}
}

// WithConfirmTimeout sets how long SendAndConfirm waits for a confirmation.
func WithConfirmTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("confirm timeout must be positive")
		}
		cfg.confirmTimeout = d
		return nil
	}
}

// WithPollInterval sets the interval between signature status checks.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// NewClient dials the ledger JSON-RPC endpoint.
func NewClient(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	cfg := config{
		commitment:     ledger.CommitmentConfirmed,
		confirmTimeout: time.Minute,
		pollInterval:   500 * time.Millisecond,
	}
	for _, o := range opts {
		if err := o(&cfg); err != nil {
			return nil, fmt.Errorf("applying option: %s", err)
		}
	}

	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing ledger rpc: %s", err)
	}

	return &Client{
		rpc:            c,
		log:            logger.With().Str("component", "ledger").Logger(),
		commitment:     cfg.commitment,
		confirmTimeout: cfg.confirmTimeout,
		pollInterval:   cfg.pollInterval,
	}, nil
}

// Close closes the underlying rpc client.
func (c *Client) Close() {
	c.rpc.Close()
}

type commitmentOpts struct {
	Commitment ledger.Commitment `json:"commitment,omitempty"`
}

type accountInfoOpts struct {
	Encoding   solana.EncodingType `json:"encoding"`
	Commitment ledger.Commitment   `json:"commitment,omitempty"`
}

type sendOpts struct {
	Encoding            solana.EncodingType `json:"encoding"`
	SkipPreflight       bool                `json:"skipPreflight"`
	PreflightCommitment ledger.Commitment   `json:"preflightCommitment,omitempty"`
}

type statusOpts struct {
	SearchTransactionHistory bool `json:"searchTransactionHistory"`
}

// LatestBlockhash implements ledger.Client.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var res solrpc.GetLatestBlockhashResult
	if err := c.rpc.CallContext(ctx, &res, "getLatestBlockhash", commitmentOpts{c.commitment}); err != nil {
		return solana.Hash{}, fmt.Errorf("calling getLatestBlockhash: %s", err)
	}
	if res.Value == nil {
		return solana.Hash{}, errors.New("empty getLatestBlockhash result")
	}
	return res.Value.Blockhash, nil
}

// AccountData implements ledger.Client.
func (c *Client) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	var res solrpc.GetAccountInfoResult
	opts := accountInfoOpts{Encoding: solana.EncodingBase64, Commitment: c.commitment}
	if err := c.rpc.CallContext(ctx, &res, "getAccountInfo", account, opts); err != nil {
		return nil, fmt.Errorf("calling getAccountInfo: %s", err)
	}
	if res.Value == nil {
		return nil, ledger.ErrAccountNotFound
	}
	if res.Value.Data == nil || res.Value.Data.GetBinary() == nil {
		return []byte{}, nil
	}
	return res.Value.Data.GetBinary(), nil
}

// MinimumBalanceForRentExemption implements ledger.Client.
func (c *Client) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	var lamports uint64
	if err := c.rpc.CallContext(
		ctx, &lamports, "getMinimumBalanceForRentExemption", size, commitmentOpts{c.commitment},
	); err != nil {
		return 0, fmt.Errorf("calling getMinimumBalanceForRentExemption: %s", err)
	}
	return lamports, nil
}

// SendAndConfirm implements ledger.Client.
func (c *Client) SendAndConfirm(ctx context.Context, raw []byte) (solana.Signature, error) {
	var sig solana.Signature
	opts := sendOpts{Encoding: solana.EncodingBase64, PreflightCommitment: c.commitment}
	if err := c.rpc.CallContext(
		ctx, &sig, "sendTransaction", base64.StdEncoding.EncodeToString(raw), opts,
	); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %s", ledger.ErrTransactionFailed, err)
	}

	c.log.Debug().Str("signature", sig.String()).Msg("transaction sent, waiting for confirmation")

	if err := c.waitConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (c *Client) waitConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var res solrpc.GetSignatureStatusesResult
		err := c.rpc.CallContext(ctx, &res, "getSignatureStatuses", []solana.Signature{sig}, statusOpts{true})
		if err != nil {
			c.log.Warn().Err(err).Str("signature", sig.String()).Msg("get signature statuses")
		} else if len(res.Value) == 1 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ledger.ErrTransactionFailed, status.Err)
			}
			if c.commitment.Reached(ledger.Commitment(status.ConfirmationStatus)) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ledger.ErrConfirmationTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
