package solana

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

type Adapter struct {
	client  AccountClient
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

var _ chain.Adapter = (*Adapter)(nil)

func NewAdapter(explorerURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Adapter {
	l := logger.With("chain", model.ChainSolana)
	return &Adapter{
		client:  NewClient(explorerURL, apiKey, timeout, l),
		limiter: ratelimit.NewLimiter(defaultRPS, defaultBurst, string(model.ChainSolana)),
		breaker: circuitbreaker.New(circuitbreaker.Config{}),
		logger:  l,
	}
}

func (a *Adapter) Chain() model.Chain {
	return model.ChainSolana
}

// FetchTransactions fetches SOL transfers touching the address. Solana
// addresses are case-sensitive base58, so no lowercasing here.
func (a *Adapter) FetchTransactions(ctx context.Context, address string) ([]model.RawTransaction, error) {
	if err := a.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("solana explorer: %w", err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	txs, err := a.client.AccountTransactions(ctx, address)
	if err != nil {
		a.breaker.RecordFailure()
		return nil, fmt.Errorf("fetch transfers for %s: %w", address, err)
	}
	a.breaker.RecordSuccess()

	out := make([]model.RawTransaction, 0, len(txs))
	for _, tx := range txs {
		if strings.TrimSpace(tx.TxHash) == "" {
			continue
		}
		if tx.Status != "" && !strings.EqualFold(tx.Status, "success") {
			continue
		}
		raw := model.RawTransaction{
			Chain: model.ChainSolana,
			Hash:  strings.TrimSpace(tx.TxHash),
			From:  strings.TrimSpace(tx.Src),
			To:    strings.TrimSpace(tx.Dst),
			Value: strconv.FormatInt(tx.Lamport, 10),
		}
		if tx.BlockTime > 0 {
			t := time.Unix(tx.BlockTime, 0).UTC()
			raw.BlockTime = &t
		}
		out = append(out, raw)
	}

	a.logger.Debug("fetched transfers", "address", address, "count", len(out))
	return out, nil
}
