package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_StopLossNegativePercent(t *testing.T) {
	raw := map[string]any{
		"name":         "RSI reversion",
		"entry_signal": "rsi",
		"exit": map[string]any{
			"stop_loss": -10.0,
		},
	}

	spec, verr := Normalize(raw)
	require.Nil(t, verr)
	require.NotNil(t, spec.Exit.StopLoss)
	assert.InDelta(t, 0.10, *spec.Exit.StopLoss, 1e-9)
}

func TestNormalize_PercentageLaws(t *testing.T) {
	raw := map[string]any{
		"name":         "breakout",
		"entry_signal": "price",
		"exit": map[string]any{
			"take_profit":            250.0,
			"stop_loss":              -50.0,
			"take_profit_pct_shares": 0.5,
		},
		"risk": map[string]any{
			"position_size": 0.2,
			"max_positions": 3,
		},
	}

	spec, verr := Normalize(raw)
	require.Nil(t, verr)
	assert.LessOrEqual(t, *spec.Exit.StopLoss, 1.0)
	assert.LessOrEqual(t, *spec.Exit.TakeProfit, 1.0)
	assert.GreaterOrEqual(t, spec.Exit.TakeProfitPctShares, 0.0)
	assert.LessOrEqual(t, spec.Exit.TakeProfitPctShares, 1.0)
	assert.GreaterOrEqual(t, spec.Risk.PositionSize, 0.0)
	assert.LessOrEqual(t, spec.Risk.PositionSize, 1.0)
}

func TestNormalize_TwoPhaseExitDetection(t *testing.T) {
	raw := map[string]any{
		"name":         "partial exit",
		"entry_signal": "rsi",
		"exit": map[string]any{
			"take_profit":            0.05,
			"take_profit_pct_shares": 0.5,
			"stop_loss":              0.02,
		},
	}
	spec, verr := Normalize(raw)
	require.Nil(t, verr)
	assert.True(t, spec.Exit.HasTrailingStop)
}

func TestNormalize_UnknownEntrySignalFallsBackToCustom(t *testing.T) {
	raw := map[string]any{
		"name":         "weird",
		"entry_signal": "moon-phase",
	}
	spec, verr := Normalize(raw)
	require.Nil(t, verr)
	assert.Equal(t, SignalCustom, spec.EntrySignal)
}

func TestNormalize_MissingNameProducesValidationError(t *testing.T) {
	raw := map[string]any{"entry_signal": "rsi"}
	_, verr := Normalize(raw)
	require.NotNil(t, verr)
	assert.Contains(t, verr.Fields, "name")
}

func TestNormalize_StructuralRewriteOfTopLevelParameters(t *testing.T) {
	raw := map[string]any{
		"name":         "top-level params",
		"entry_signal": "rsi",
		"entry_conditions": map[string]any{
			"threshold":  30.0,
			"comparison": "below",
		},
	}
	spec, verr := Normalize(raw)
	require.Nil(t, verr)
	assert.Equal(t, 30.0, spec.EntryParameters["threshold"])
	assert.Equal(t, "below", spec.EntryParameters["comparison"])
}
