package polygon

import (
	"log/slog"
	"testing"
	"time"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/stretchr/testify/assert"
)

func TestAdapter_Chain(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter("https://api.polygonscan.com/api", "", time.Second, slog.Default())
	assert.Equal(t, model.ChainPolygon, adapter.Chain())
}
