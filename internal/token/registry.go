package token

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kodax/deposit-reconciler/internal/cache"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"gopkg.in/yaml.v3"
)

const (
	cacheCapacity = 4096
	cacheTTL      = 10 * time.Minute
)

// Lookup is the slice of the token store the registry needs.
type Lookup interface {
	FindToken(ctx context.Context, chain model.Chain, contractAddress string) (*model.Token, error)
}

// Registry resolves token contracts to symbol/decimals. Known contracts come
// from a static YAML seed merged with store-backed entries; unknown contracts
// resolve to the UNKNOWN sentinel rather than failing, so a missing registry
// row never drops a deposit.
type Registry struct {
	seed   map[string]model.Token // keyed by "{chain}:{contract}"
	store  Lookup
	cache  *cache.LRU[string, model.Token]
	logger *slog.Logger
}

// seedFile is the YAML shape of the registry seed.
type seedFile struct {
	Tokens []seedEntry `yaml:"tokens"`
}

type seedEntry struct {
	Chain    string `yaml:"chain"`
	Contract string `yaml:"contract"`
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
}

// NewRegistry builds a registry. store may be nil (seed-only); path may be
// empty (store-only).
func NewRegistry(path string, store Lookup, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		seed:   make(map[string]model.Token),
		store:  store,
		cache:  cache.NewLRU[string, model.Token](cacheCapacity, cacheTTL),
		logger: logger.With("component", "token_registry"),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read token registry %s: %w", path, err)
		}
		var f seedFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse token registry %s: %w", path, err)
		}
		for _, e := range f.Tokens {
			ch, err := model.ParseChain(e.Chain)
			if err != nil {
				return nil, fmt.Errorf("token registry entry %s/%s: %w", e.Chain, e.Symbol, err)
			}
			contract := strings.ToLower(strings.TrimSpace(e.Contract))
			if contract == "" || e.Symbol == "" {
				return nil, fmt.Errorf("token registry entry for %s: contract and symbol are required", e.Chain)
			}
			r.seed[seedKey(ch, contract)] = model.Token{
				Chain:           ch,
				ContractAddress: contract,
				Symbol:          e.Symbol,
				Decimals:        e.Decimals,
			}
		}
		r.logger.Info("token registry seeded", "path", path, "tokens", len(r.seed))
	}

	return r, nil
}

// Resolve never fails: a contract missing from seed and store yields the
// UNKNOWN sentinel with default decimals.
func (r *Registry) Resolve(ctx context.Context, chain model.Chain, contractAddress string) model.Token {
	contract := strings.ToLower(strings.TrimSpace(contractAddress))
	key := seedKey(chain, contract)

	if tok, ok := r.cache.Get(key); ok {
		return tok
	}
	if tok, ok := r.seed[key]; ok {
		r.cache.Put(key, tok)
		return tok
	}

	if r.store != nil {
		tok, err := r.store.FindToken(ctx, chain, contract)
		if err != nil {
			r.logger.Warn("token store lookup failed", "chain", chain, "contract", contract, "error", err)
		} else if tok != nil {
			r.cache.Put(key, *tok)
			return *tok
		}
	}

	unknown := model.UnknownToken(chain, contract)
	r.cache.Put(key, unknown)
	return unknown
}

func seedKey(chain model.Chain, contract string) string {
	return string(chain) + ":" + contract
}
