package agents

import (
	"testing"

	"github.com/bhargavap21/tradeforge/backtest"
	"github.com/stretchr/testify/assert"
)

func TestRecommend_ComputesIndicatorStats(t *testing.T) {
	result := &backtest.Result{
		Summary: backtest.Summary{TotalTrades: 3},
		AdditionalInfo: []backtest.AdditionalInfoRow{
			{Indicators: map[string]float64{"rsi": 20}},
			{Indicators: map[string]float64{"rsi": 40}},
			{Indicators: map[string]float64{"rsi": 60}},
		},
	}

	insights := Recommend(result)
	stats := insights["indicator_stats"].(map[string]Stats)
	rsi := stats["rsi"]
	assert.Equal(t, 3, rsi.Count)
	assert.Equal(t, 20.0, rsi.Min)
	assert.Equal(t, 60.0, rsi.Max)
	assert.InDelta(t, 40.0, rsi.Mean, 0.001)
	assert.InDelta(t, 40.0, rsi.P50, 0.001)
	assert.Contains(t, insights, "note")
}

func TestRecommend_NoNoteWhenEnoughTrades(t *testing.T) {
	result := &backtest.Result{Summary: backtest.Summary{TotalTrades: 20}}
	insights := Recommend(result)
	assert.NotContains(t, insights, "note")
}
