package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// AccountClient abstracts the Solana account-transactions endpoint for testing.
type AccountClient interface {
	AccountTransactions(ctx context.Context, address string) ([]accountTx, error)
}

// accountTx is one entry of the account transaction list. The public API
// returns a bare JSON array; any other top-level shape is "no usable data".
type accountTx struct {
	TxHash    string `json:"txHash"`
	Signer    []string `json:"signer"`
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Lamport   int64  `json:"lamport"`
	BlockTime int64  `json:"blockTime"`
	Status    string `json:"status"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// AccountTransactions fetches recent transfers touching the address.
func (c *Client) AccountTransactions(ctx context.Context, address string) ([]accountTx, error) {
	q := url.Values{}
	q.Set("account", address)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/account/solTransfers?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("token", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		// Unknown account: empty history, not an error.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	var txs []accountTx
	if err := json.Unmarshal(body, &txs); err != nil {
		// The endpoint sometimes wraps the list in {"data": [...]}.
		var wrapped struct {
			Data []accountTx `json:"data"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			c.logger.Warn("unexpected account response shape", "address", address, "error", err)
			return nil, nil
		}
		txs = wrapped.Data
	}
	return txs, nil
}
