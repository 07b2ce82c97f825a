package base

import (
	"log/slog"
	"testing"
	"time"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/stretchr/testify/assert"
)

func TestAdapter_Chain(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter("https://api.basescan.org/api", "", time.Second, slog.Default())
	assert.Equal(t, model.ChainBase, adapter.Chain())
}
