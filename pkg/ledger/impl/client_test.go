package impl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"github.com/textileio/go-durablevote/pkg/ledger"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcServer struct {
	t *testing.T

	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(params []json.RawMessage) (interface{}, *rpcError)
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newRPCServer(t *testing.T) (*rpcServer, string) {
	s := &rpcServer{
		t:        t,
		calls:    map[string]int{},
		handlers: map[string]func([]json.RawMessage) (interface{}, *rpcError){},
	}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func (s *rpcServer) handle(method string, f func([]json.RawMessage) (interface{}, *rpcError)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = f
}

func (s *rpcServer) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *rpcServer) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))

	s.mu.Lock()
	s.calls[req.Method]++
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = rpcError{Code: -32601, Message: "method not found"}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func TestLatestBlockhash(t *testing.T) {
	t.Parallel()

	srv, url := newRPCServer(t)
	hash := solana.Hash(solana.NewWallet().PublicKey())
	srv.handle("getLatestBlockhash", func([]json.RawMessage) (interface{}, *rpcError) {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value":   map[string]interface{}{"blockhash": hash.String(), "lastValidBlockHeight": 100},
		}, nil
	})

	c, err := NewClient(context.Background(), url)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.LatestBlockhash(context.Background())
	require.NoError(t, err)
	require.Equal(t, hash, got)
}

func TestAccountData(t *testing.T) {
	t.Parallel()

	srv, url := newRPCServer(t)
	existing := solana.NewWallet().PublicKey()
	empty := solana.NewWallet().PublicKey()
	data := []byte{1, 2, 3, 4}
	srv.handle("getAccountInfo", func(params []json.RawMessage) (interface{}, *rpcError) {
		var account string
		require.NoError(t, json.Unmarshal(params[0], &account))
		var opts map[string]string
		require.NoError(t, json.Unmarshal(params[1], &opts))
		require.Equal(t, "base64", opts["encoding"])

		encoded := base64.StdEncoding.EncodeToString(data)
		switch account {
		case existing.String():
		case empty.String():
			encoded = ""
		default:
			return map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": nil}, nil
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": map[string]interface{}{
				"data":     []string{encoded, "base64"},
				"lamports": 1500000,
				"owner":    solana.SystemProgramID.String(),
			},
		}, nil
	})

	c, err := NewClient(context.Background(), url)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.AccountData(context.Background(), existing)
	require.NoError(t, err)
	require.Equal(t, data, got)

	got, err = c.AccountData(context.Background(), empty)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = c.AccountData(context.Background(), solana.NewWallet().PublicKey())
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestSendAndConfirm(t *testing.T) {
	t.Parallel()

	srv, url := newRPCServer(t)
	sig := solana.Signature{1, 2, 3}
	srv.handle("sendTransaction", func([]json.RawMessage) (interface{}, *rpcError) {
		return sig.String(), nil
	})
	srv.handle("getSignatureStatuses", func([]json.RawMessage) (interface{}, *rpcError) {
		// the first check finds the transaction only processed
		if srv.count("getSignatureStatuses") < 2 {
			return map[string]interface{}{"value": []interface{}{
				map[string]interface{}{"slot": 5, "err": nil, "confirmationStatus": "processed"},
			}}, nil
		}
		return map[string]interface{}{"value": []interface{}{
			map[string]interface{}{"slot": 5, "err": nil, "confirmationStatus": "confirmed"},
		}}, nil
	})

	c, err := NewClient(context.Background(), url, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	got, err := c.SendAndConfirm(context.Background(), []byte{0xde, 0xad})
	require.NoError(t, err)
	require.Equal(t, sig, got)
	require.Equal(t, 2, srv.count("getSignatureStatuses"))
}

func TestSendAndConfirmFailures(t *testing.T) {
	t.Parallel()

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()
		srv, url := newRPCServer(t)
		srv.handle("sendTransaction", func([]json.RawMessage) (interface{}, *rpcError) {
			return nil, &rpcError{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}
		})
		c, err := NewClient(context.Background(), url)
		require.NoError(t, err)
		defer c.Close()

		_, err = c.SendAndConfirm(context.Background(), []byte{1})
		require.ErrorIs(t, err, ledger.ErrTransactionFailed)
	})

	t.Run("execution error", func(t *testing.T) {
		t.Parallel()
		srv, url := newRPCServer(t)
		srv.handle("sendTransaction", func([]json.RawMessage) (interface{}, *rpcError) {
			return solana.Signature{9}.String(), nil
		})
		srv.handle("getSignatureStatuses", func([]json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{"value": []interface{}{
				map[string]interface{}{"slot": 5, "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
			}}, nil
		})
		c, err := NewClient(context.Background(), url, WithPollInterval(10*time.Millisecond))
		require.NoError(t, err)
		defer c.Close()

		_, err = c.SendAndConfirm(context.Background(), []byte{1})
		require.ErrorIs(t, err, ledger.ErrTransactionFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		srv, url := newRPCServer(t)
		srv.handle("sendTransaction", func([]json.RawMessage) (interface{}, *rpcError) {
			return solana.Signature{7}.String(), nil
		})
		srv.handle("getSignatureStatuses", func([]json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{"value": []interface{}{nil}}, nil
		})
		c, err := NewClient(
			context.Background(), url,
			WithPollInterval(10*time.Millisecond),
			WithConfirmTimeout(100*time.Millisecond),
		)
		require.NoError(t, err)
		defer c.Close()

		_, err = c.SendAndConfirm(context.Background(), []byte{1})
		require.ErrorIs(t, err, ledger.ErrConfirmationTimeout)
	})
}

func TestCommitmentReached(t *testing.T) {
	t.Parallel()

	require.True(t, ledger.CommitmentConfirmed.Reached(ledger.CommitmentFinalized))
	require.True(t, ledger.CommitmentConfirmed.Reached(ledger.CommitmentConfirmed))
	require.False(t, ledger.CommitmentConfirmed.Reached(ledger.CommitmentProcessed))
	require.False(t, ledger.CommitmentProcessed.Reached(""))

	_, err := ledger.ParseCommitment("eventual")
	require.Error(t, err)
}
