package workflow

import (
	"testing"

	"github.com/bhargavap21/tradeforge/strategy"
	"github.com/stretchr/testify/assert"
)

func TestSyncParameters_MirrorsTopLevelIntoConditions(t *testing.T) {
	tp := 12.0
	sl := 6.0
	spec := &strategy.Spec{
		EntrySignal:     strategy.SignalRSI,
		EntryParameters: map[string]any{"threshold": 25.0},
		EntryConditions: []strategy.Condition{
			{Kind: strategy.SignalRSI, Parameters: map[string]any{"threshold": 99.0}},
		},
		ExitConditions: []strategy.Condition{
			{Kind: strategy.SignalCustom, Parameters: map[string]any{}},
		},
		Exit: strategy.Exit{TakeProfit: &tp, StopLoss: &sl},
	}

	syncParameters(spec)

	assert.Equal(t, 25.0, spec.EntryConditions[0].Parameters["threshold"])
	assert.Equal(t, 12.0, spec.ExitConditions[0].Parameters["take_profit"])
	assert.Equal(t, 6.0, spec.ExitConditions[0].Parameters["stop_loss"])
}
