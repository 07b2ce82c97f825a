package config

import (
	"testing"
	"time"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/reconciler")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Scan.Interval)
	assert.Equal(t, 10*time.Second, cfg.Scan.FetchTimeout)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, "0.1", cfg.Commission.Rate.String())
	assert.Equal(t, 8081, cfg.Server.AdminPort)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)

	// Every known chain is enabled by default with its public explorer.
	assert.Len(t, cfg.Chains, len(model.AllChains))
	assert.Equal(t, "https://api.etherscan.io/api", cfg.Chains[model.ChainEthereum].ExplorerURL)
}

func TestLoad_MissingDBURL(t *testing.T) {
	t.Setenv("DB_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_URL")
}

func TestLoad_ChainSubset(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/reconciler")
	t.Setenv("CHAINS", "ethereum, solana")
	t.Setenv("ETHEREUM_API_KEY", "eth-key")
	t.Setenv("SOLANA_EXPLORER_URL", "https://solscan.internal")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Chains, 2)
	assert.Equal(t, "eth-key", cfg.Chains[model.ChainEthereum].APIKey)
	assert.Equal(t, "https://solscan.internal", cfg.Chains[model.ChainSolana].ExplorerURL)
}

func TestLoad_UnknownChain(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/reconciler")
	t.Setenv("CHAINS", "dogecoin")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_CommissionRateBounds(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/reconciler")

	t.Setenv("COMMISSION_RATE", "1.5")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("COMMISSION_RATE", "-0.1")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("COMMISSION_RATE", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Commission.Rate.IsZero())
}

func TestLoad_InvalidWorkerCount(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/reconciler")
	t.Setenv("SCAN_WORKERS", "-2")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_DurationOverrides(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/reconciler")
	t.Setenv("SCAN_INTERVAL", "30s")
	t.Setenv("FETCH_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Scan.Interval)
	assert.Equal(t, 3*time.Second, cfg.Scan.FetchTimeout)
}
