package ethereum

import (
	"log/slog"
	"time"

	"github.com/kodax/deposit-reconciler/internal/chain"
	"github.com/kodax/deposit-reconciler/internal/chain/evm"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
)

// NewAdapter creates an explorer adapter configured for Ethereum.
func NewAdapter(explorerURL, apiKey string, timeout time.Duration, logger *slog.Logger) chain.Adapter {
	return evm.NewAdapterWithChain(model.ChainEthereum, explorerURL, apiKey, timeout, logger)
}
