package evm

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestAccountTxList_Success(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "account", r.URL.Query().Get("module"))
		assert.Equal(t, "txlist", r.URL.Query().Get("action"))
		assert.Equal(t, "0xabc", r.URL.Query().Get("address"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{
			"status": "1",
			"message": "OK",
			"result": [
				{"hash":"0xAAA","from":"0xF1","to":"0xF2","value":"1000","input":"0x","timeStamp":"1700000000","confirmations":"12","isError":"0"}
			]
		}`))
	})

	client := NewClient(srv.URL, "test-key", 5*time.Second, slog.Default())
	txs, err := client.AccountTxList(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "0xAAA", txs[0].Hash)
	assert.Equal(t, "1000", txs[0].Value)
}

func TestAccountTxList_NoTransactionsFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	})

	client := NewClient(srv.URL, "", 5*time.Second, slog.Default())
	txs, err := client.AccountTxList(context.Background(), "0xabc")
	require.NoError(t, err, "an empty history is not an error")
	assert.Empty(t, txs)
}

func TestAccountTxList_ExplorerError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK: invalid API key","result":null}`))
	})

	client := NewClient(srv.URL, "bad", 5*time.Second, slog.Default())
	_, err := client.AccountTxList(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key")
}

func TestAccountTxList_MalformedBodyIsEmptyNotError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"not json", "<html>gateway error</html>"},
		{"wrong envelope", `["unexpected","array"]`},
		{"result not an array", `{"status":"1","message":"OK","result":"Max rate limit reached"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tc.body))
			})
			client := NewClient(srv.URL, "", 5*time.Second, slog.Default())
			txs, err := client.AccountTxList(context.Background(), "0xabc")
			require.NoError(t, err, "unusable payloads degrade to an empty page")
			assert.Empty(t, txs)
		})
	}
}

func TestAccountTxList_HTTPErrorStatus(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client := NewClient(srv.URL, "", 5*time.Second, slog.Default())
	_, err := client.AccountTxList(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http status 502")
}

func TestFetchTransactions_NormalizesAndFilters(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"status": "1",
			"message": "OK",
			"result": [
				{"hash":"0xAAA","from":"0xF1","to":"0xF2","value":"1000","input":"0x","timeStamp":"1700000000","confirmations":"12","isError":"0"},
				{"hash":"0xBBB","from":"0xF1","to":"0xF2","value":"5","isError":"1"},
				{"hash":"","from":"0xF1","to":"0xF2","value":"7","isError":"0"}
			]
		}`))
	})

	adapter := NewAdapterWithChain("ethereum", srv.URL, "", 5*time.Second, slog.Default())
	txs, err := adapter.FetchTransactions(context.Background(), "0xabc")
	require.NoError(t, err)

	require.Len(t, txs, 1, "failed and hashless entries are dropped")
	assert.Equal(t, "0xaaa", txs[0].Hash, "hashes normalize to lowercase")
	assert.Equal(t, "0xf1", txs[0].From)
	assert.Equal(t, "0xf2", txs[0].To)
	assert.Equal(t, int64(12), txs[0].Confirmations)
	require.NotNil(t, txs[0].BlockTime)
	assert.Equal(t, int64(1700000000), txs[0].BlockTime.Unix())
}

func TestFetchTransactions_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	adapter := NewAdapterWithChain("ethereum", srv.URL, "", 5*time.Second, slog.Default())

	for i := 0; i < 10; i++ {
		_, err := adapter.FetchTransactions(context.Background(), "0xabc")
		require.Error(t, err)
	}

	// By now the breaker is open and refuses without a round trip.
	_, err := adapter.FetchTransactions(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
}
