package explorer_test

import (
	"LiqWatch/internal/explorer"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const txListOK = `{
  "status": "1",
  "message": "OK",
  "result": [
    {
      "hash": "0xaaa",
      "from": "0x01",
      "to": "0x02",
      "value": "1500000000000000000",
      "timeStamp": "1700000000",
      "blockNumber": "18500000",
      "methodId": "",
      "functionName": "supply(address asset,uint256 amount,address onBehalfOf,uint16 referralCode)",
      "input": "0x617ba037000000000000",
      "isError": "0"
    },
    {
      "hash": "0xbbb",
      "from": "0x01",
      "to": "0x03",
      "value": "0",
      "timeStamp": "1699999000",
      "blockNumber": "18499990",
      "methodId": "0xa415bcad",
      "functionName": "",
      "input": "0xa415bcad00",
      "isError": "1"
    }
  ]
}`

func newClient(url string) *explorer.Client {
	return explorer.NewClient(url, "KEY", 5*time.Second, zerolog.Nop())
}

// ============================================================================
// Test: request and normalization
// ============================================================================

func TestRecentTransactions_Normalizes(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		_, _ = w.Write([]byte(txListOK))
	}))
	defer srv.Close()

	txs, err := newClient(srv.URL).RecentTransactions(context.Background(), "0x01", 0, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	q := query.Load().(url.Values)
	assert.Equal(t, []string{"txlist"}, q["action"])
	assert.Equal(t, []string{"desc"}, q["sort"])
	assert.Equal(t, []string{"1"}, q["page"])
	assert.Equal(t, []string{"10"}, q["offset"])
	assert.Equal(t, []string{"KEY"}, q["apikey"])

	first := txs[0]
	assert.Equal(t, "0xaaa", first.Hash)
	assert.Equal(t, "0x617ba037", first.MethodID, "falls back to input selector")
	assert.Equal(t, "supply", first.FunctionName)
	assert.Equal(t, int64(1700000000), first.Timestamp)
	assert.Equal(t, uint64(18500000), first.BlockNumber)
	assert.False(t, first.IsError)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), first.Time())

	second := txs[1]
	assert.Equal(t, "0xa415bcad", second.MethodID)
	assert.Empty(t, second.FunctionName)
	assert.True(t, second.IsError)
}

func TestRecentTransactions_StatusNotOneIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	}))
	defer srv.Close()

	txs, err := newClient(srv.URL).RecentTransactions(context.Background(), "0x01", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.NotNil(t, txs)
}

func TestRecentTransactions_NonArrayResultIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":"Max rate limit reached"}`))
	}))
	defer srv.Close()

	txs, err := newClient(srv.URL).RecentTransactions(context.Background(), "0x01", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// ============================================================================
// Test: resilience
// ============================================================================

func TestRecentTransactions_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(txListOK))
	}))
	defer srv.Close()

	txs, err := newClient(srv.URL).RecentTransactions(context.Background(), "0x01", 1, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRecentTransactions_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).RecentTransactions(context.Background(), "0x01", 1, 10)
	require.Error(t, err)

	var apiErr *explorer.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRecentTransactions_PersistentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).RecentTransactions(context.Background(), "0x01", 1, 10)
	assert.Error(t, err)
}

func TestURLs(t *testing.T) {
	assert.Equal(t, "https://etherscan.io/tx/0xabc", explorer.TxURL("0xabc"))
	assert.Equal(t, "https://etherscan.io/address/0x01", explorer.AddressURL("0x01"))
	assert.Equal(t, "https://debank.com/profile/0x01", explorer.DeBankURL("0x01"))
}
