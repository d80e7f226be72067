package solana

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasfix/betsol/internal/domain"
)

const treasury = "FQAcCiCAjciPALCbrrpGU24JLHCU8qYEAhhQvQC5cUnm"

// rpcFixture routes canned JSON-RPC results by method, with per-signature
// getTransaction responses.
type rpcFixture struct {
	signatures   string
	transactions map[string]string
}

func (f rpcFixture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		switch req.Method {
		case "getSignaturesForAddress":
			io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":`+f.signatures+`}`)
		case "getTransaction":
			var sig string
			require.NoError(t, json.Unmarshal(req.Params[0], &sig))
			res, ok := f.transactions[sig]
			if !ok {
				io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":null}`)
				return
			}
			io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":`+res+`}`)
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}
	}
}

func TestListRecentTransfers(t *testing.T) {
	fixture := rpcFixture{
		signatures: `[
			{"signature":"sigA","blockTime":1700000000,"err":null},
			{"signature":"sigFailed","blockTime":1700000100,"err":{"InstructionError":[0,"Custom"]}},
			{"signature":"sigOut","blockTime":1700000200,"err":null}
		]`,
		transactions: map[string]string{
			// 0.5 SOL into the treasury from sender1.
			"sigA": `{
				"blockTime":1700000000,
				"meta":{"err":null,"preBalances":[2000000000,1000000000],"postBalances":[1499995000,1500000000]},
				"transaction":{"message":{"accountKeys":["sender1","` + treasury + `"]}}
			}`,
			// Outbound: treasury balance decreased, must be skipped.
			"sigOut": `{
				"blockTime":1700000200,
				"meta":{"err":null,"preBalances":[3000000000,1000000000],"postBalances":[2000000000,1999995000]},
				"transaction":{"message":{"accountKeys":["` + treasury + `","someone"]}}
			}`,
		},
	}

	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	c := NewClient(Config{RPCURL: srv.URL}, slog.New(slog.DiscardHandler))

	transfers, err := c.ListRecentTransfers(context.Background(), treasury, 20)
	require.NoError(t, err)
	require.Len(t, transfers, 1)

	got := transfers[0]
	assert.Equal(t, "sigA", got.Ref)
	assert.Equal(t, "sender1", got.Source)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("0.5")), "got %s", got.Amount)
	assert.Equal(t, int64(1700000000), got.ObservedAt.Unix())
}

func TestListRecentTransfersNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{RPCURL: srv.URL}, slog.New(slog.DiscardHandler))

	_, err := c.ListRecentTransfers(context.Background(), treasury, 20)
	assert.ErrorIs(t, err, domain.ErrNetworkFailure)
}

func TestCallMapsInsufficientFunds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"Transaction simulation failed: insufficient lamports"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{RPCURL: srv.URL}, slog.New(slog.DiscardHandler))

	err := c.call(context.Background(), "sendTransaction", nil, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}
