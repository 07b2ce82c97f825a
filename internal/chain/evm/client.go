package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// noTransactionsMessage is the explorer's "empty history" sentinel; it rides
// on a status=0 envelope but is not an error.
const noTransactionsMessage = "no transactions found"

// ExplorerClient abstracts the etherscan-style account API for testing.
type ExplorerClient interface {
	AccountTxList(ctx context.Context, address string) ([]explorerTx, error)
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

// AccountTxList fetches the address's transaction list, newest-first.
func (c *Client) AccountTxList(ctx context.Context, address string) ([]explorerTx, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("sort", "desc")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var envelope explorerResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Any other top-level shape means "no usable data".
		c.logger.Warn("unexpected explorer response shape", "address", address, "error", err)
		return nil, nil
	}

	if envelope.Status != "1" {
		if strings.EqualFold(strings.TrimSpace(envelope.Message), noTransactionsMessage) {
			return nil, nil
		}
		return nil, fmt.Errorf("explorer status %s: %s", envelope.Status, envelope.Message)
	}

	var txs []explorerTx
	if err := json.Unmarshal(envelope.Result, &txs); err != nil {
		c.logger.Warn("unexpected explorer result shape", "address", address, "error", err)
		return nil, nil
	}
	return txs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
