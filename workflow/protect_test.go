package workflow

import (
	"testing"

	"github.com/bhargavap21/tradeforge/strategy"
	"github.com/stretchr/testify/assert"
)

func TestExtractProtectedParams(t *testing.T) {
	got := extractProtectedParams("buy AAPL when RSI below 28, take profit at 10%, stop loss of 5%")
	assert.Equal(t, 28.0, got["rsi_threshold"])
	assert.InDelta(t, 0.10, got["take_profit"], 1e-9)
	assert.InDelta(t, 0.05, got["stop_loss"], 1e-9)
}

func TestApplyProtection_RestoresOverriddenThreshold(t *testing.T) {
	protected := map[string]any{"rsi_threshold": 28.0}
	tp := 10.0
	spec := &strategy.Spec{
		EntryParameters: map[string]any{"threshold": 35.0},
		Exit:            strategy.Exit{TakeProfit: &tp},
	}

	downgraded := applyProtection(spec, protected)
	assert.Equal(t, 28.0, spec.EntryParameters["threshold"])
	assert.Len(t, downgraded, 1)
}

func TestApplyProtection_NoopWhenNothingProtected(t *testing.T) {
	spec := &strategy.Spec{EntryParameters: map[string]any{"threshold": 35.0}}
	downgraded := applyProtection(spec, nil)
	assert.Empty(t, downgraded)
	assert.Equal(t, 35.0, spec.EntryParameters["threshold"])
}
