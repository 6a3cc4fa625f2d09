package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhargavap21/tradeforge/market"
)

func feedCloses(e *Engine, symbol string, closes []float64) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, c := range closes {
		e.OnBar(symbol, market.Bar{Symbol: symbol, Timestamp: ts, Open: c, High: c, Low: c, Close: c, Volume: 100})
		ts = ts.AddDate(0, 0, 1)
	}
}

func TestRSI_InsufficientDataReportsUnavailable(t *testing.T) {
	e := NewEngine()
	feedCloses(e, "AAPL", []float64{100, 101, 102})
	v := e.RSI("AAPL", 14)
	assert.False(t, v.Ready)
	assert.Equal(t, 50.0, v.V)
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	e := NewEngine()
	closes := make([]float64, 0, 20)
	price := 100.0
	for i := 0; i < 20; i++ {
		closes = append(closes, price)
		price += 1
	}
	feedCloses(e, "AAPL", closes)
	v := e.RSI("AAPL", 14)
	require.True(t, v.Ready)
	assert.InDelta(t, 100.0, v.V, 1e-9)
}

func TestSMA(t *testing.T) {
	e := NewEngine()
	feedCloses(e, "AAPL", []float64{1, 2, 3, 4, 5})
	v := e.SMA("AAPL", 5)
	require.True(t, v.Ready)
	assert.InDelta(t, 3.0, v.V, 1e-9)
}

func TestMACD_UnavailableBeforeSlowWindow(t *testing.T) {
	e := NewEngine()
	feedCloses(e, "AAPL", []float64{1, 2, 3})
	macd, signal, hist := e.MACD("AAPL")
	assert.False(t, macd.Ready)
	assert.False(t, signal.Ready)
	assert.False(t, hist.Ready)
}

func TestIndicatorsNeverStaleAcrossSymbols(t *testing.T) {
	e := NewEngine()
	feedCloses(e, "AAPL", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})
	v := e.RSI("MSFT", 14)
	assert.False(t, v.Ready, "a symbol never fed must never report data borrowed from another symbol")
}
