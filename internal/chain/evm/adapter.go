package evm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kodax/deposit-reconciler/internal/chain"
	"github.com/kodax/deposit-reconciler/internal/chain/ratelimit"
	"github.com/kodax/deposit-reconciler/internal/circuitbreaker"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
)

const (
	defaultRPS   = 4
	defaultBurst = 2
)

// Adapter serves any etherscan-compatible EVM chain. The per-chain packages
// are thin constructors over this type.
type Adapter struct {
	chainID model.Chain
	client  ExplorerClient
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

var _ chain.Adapter = (*Adapter)(nil)

func NewAdapterWithChain(chainID model.Chain, baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Adapter {
	l := logger.With("chain", chainID)
	return &Adapter{
		chainID: chainID,
		client:  NewClient(baseURL, apiKey, timeout, l),
		limiter: ratelimit.NewLimiter(defaultRPS, defaultBurst, string(chainID)),
		breaker: circuitbreaker.New(circuitbreaker.Config{}),
		logger:  l,
	}
}

func (a *Adapter) Chain() model.Chain {
	return a.chainID
}

// FetchTransactions fetches the address's history, newest-first. An open
// circuit breaker short-circuits the chain without a network round trip.
func (a *Adapter) FetchTransactions(ctx context.Context, address string) ([]model.RawTransaction, error) {
	if err := a.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%s explorer: %w", a.chainID, err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	txs, err := a.client.AccountTxList(ctx, address)
	if err != nil {
		a.breaker.RecordFailure()
		return nil, fmt.Errorf("fetch txlist for %s: %w", address, err)
	}
	a.breaker.RecordSuccess()

	out := make([]model.RawTransaction, 0, len(txs))
	for _, tx := range txs {
		if strings.TrimSpace(tx.Hash) == "" {
			continue
		}
		// Failed transactions never move value.
		if tx.IsError == "1" {
			continue
		}
		raw := model.RawTransaction{
			Chain: a.chainID,
			Hash:  strings.ToLower(strings.TrimSpace(tx.Hash)),
			From:  strings.ToLower(strings.TrimSpace(tx.From)),
			To:    strings.ToLower(strings.TrimSpace(tx.To)),
			Value: strings.TrimSpace(tx.Value),
			Input: strings.TrimSpace(tx.Input),
		}
		if ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64); err == nil && ts > 0 {
			t := time.Unix(ts, 0).UTC()
			raw.BlockTime = &t
		}
		if conf, err := strconv.ParseInt(tx.Confirmations, 10, 64); err == nil {
			raw.Confirmations = conf
		}
		out = append(out, raw)
	}

	a.logger.Debug("fetched transactions", "address", address, "count", len(out))
	return out, nil
}
