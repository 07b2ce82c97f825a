package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kodax/deposit-reconciler/internal/cache"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/kodax/deposit-reconciler/internal/metrics"
	"github.com/kodax/deposit-reconciler/internal/store"
	"github.com/shopspring/decimal"
)

const (
	seenCacheCapacity = 65536
	seenCacheTTL      = time.Hour
	hotCacheTTL       = 24 * time.Hour
)

// HotCache is the optional redis layer in front of the store. Failures here
// degrade to store reads and never affect correctness.
type HotCache interface {
	SetProcessed(ctx context.Context, key string, ttl time.Duration) error
	IsProcessed(ctx context.Context, key string) (bool, error)
}

// Ledger is the dedup ledger: the durable record of which (chain, txHash)
// pairs have been credited. Its first-writer-wins mark plus the per-key lock
// is the whole defense against double-crediting.
type Ledger struct {
	repo   store.LedgerRepository
	hot    HotCache
	seen   *cache.LRU[string, struct{}]
	locks  keyLock
	logger *slog.Logger
}

// Metadata rides along with a mark into the durable record.
type Metadata struct {
	UserID string
	Token  string
	Amount decimal.Decimal
}

// New creates a ledger. hot may be nil to disable the redis layer.
func New(repo store.LedgerRepository, hot HotCache, logger *slog.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		hot:    hot,
		seen:   cache.NewLRU[string, struct{}](seenCacheCapacity, seenCacheTTL),
		logger: logger.With("component", "ledger"),
	}
}

// Lock serializes check→credit→mark for one transaction. Callers must defer
// the returned unlock.
func (l *Ledger) Lock(chain model.Chain, txHash string) func() {
	return l.locks.lock(model.LedgerKey(chain, txHash))
}

// IsProcessed reports whether the transaction has already been credited.
// Positive answers can come from the in-process cache or redis; a store read
// settles everything else. Only positive results are cached; a "not
// processed" answer must always reflect the store.
func (l *Ledger) IsProcessed(ctx context.Context, chain model.Chain, txHash string) (bool, error) {
	key := model.LedgerKey(chain, txHash)

	if _, ok := l.seen.Get(key); ok {
		metrics.LedgerCacheHits.WithLabelValues("lru").Inc()
		return true, nil
	}

	if l.hot != nil {
		hit, err := l.hot.IsProcessed(ctx, key)
		if err != nil {
			l.logger.Warn("hot cache lookup failed", "key", key, "error", err)
		} else if hit {
			metrics.LedgerCacheHits.WithLabelValues("redis").Inc()
			l.seen.Put(key, struct{}{})
			return true, nil
		}
	}

	exists, err := l.repo.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", key, err)
	}
	if exists {
		l.seen.Put(key, struct{}{})
	}
	return exists, nil
}

// MarkProcessed durably records the transaction as credited. Idempotent:
// marking an already-marked key succeeds without overwriting the original
// record (first-writer-wins).
func (l *Ledger) MarkProcessed(ctx context.Context, chain model.Chain, txHash string, meta Metadata) error {
	key := model.LedgerKey(chain, txHash)

	inserted, err := l.repo.Insert(ctx, &model.ProcessedTransaction{
		Key:    key,
		Chain:  chain,
		TxHash: txHash,
		UserID: meta.UserID,
		Token:  meta.Token,
		Amount: meta.Amount,
	})
	if err != nil {
		return fmt.Errorf("ledger mark %s: %w", key, err)
	}

	if inserted {
		metrics.LedgerMarks.WithLabelValues("inserted").Inc()
	} else {
		metrics.LedgerMarks.WithLabelValues("duplicate").Inc()
		l.logger.Debug("ledger key already marked", "key", key)
	}

	l.seen.Put(key, struct{}{})
	if l.hot != nil {
		if err := l.hot.SetProcessed(ctx, key, hotCacheTTL); err != nil {
			l.logger.Warn("hot cache mark failed", "key", key, "error", err)
		}
	}
	return nil
}
