package arbitrum

import (
	"log/slog"
	"testing"
	"time"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/stretchr/testify/assert"
)

func TestAdapter_Chain(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter("https://api.arbiscan.io/api", "", time.Second, slog.Default())
	assert.Equal(t, model.ChainArbitrum, adapter.Chain())
}
