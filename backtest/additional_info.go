package backtest

import (
	"time"

	"github.com/bhargavap21/tradeforge/broker"
	"github.com/bhargavap21/tradeforge/condition"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/runtime"
	"github.com/bhargavap21/tradeforge/strategy"
)

// buildAdditionalInfoRow implements spec.md §4.5 step 4: active indicator
// values relevant to the strategy's conditions, sentiment for each
// sentiment-using condition, and position/exit-level diagnostics.
func buildAdditionalInfoRow(spec *strategy.Spec, rt *runtime.Runtime, sim *broker.Simulated, symbol string, bar market.Bar, date time.Time, lot *openLot, sentiment condition.SentimentLookup) AdditionalInfoRow {
	row := AdditionalInfoRow{
		Date:       date,
		Symbol:     symbol,
		Indicators: make(map[string]float64),
		Sentiment:  make(map[string]float64),
	}

	conditions := append(append([]strategy.Condition{}, entryConditionsOf(spec)...), spec.ExitConditions...)
	for _, c := range conditions {
		switch c.Kind {
		case strategy.SignalRSI:
			period := intParam(c.Parameters, "period", 14)
			if v := rt.Indicators().RSI(symbol, period); v.Ready {
				row.Indicators["rsi"] = v.V
			}
		case strategy.SignalSMA:
			fast := intParam(c.Parameters, "fast_period", 10)
			slow := intParam(c.Parameters, "slow_period", 30)
			if v := rt.Indicators().SMA(symbol, fast); v.Ready {
				row.Indicators["sma_fast"] = v.V
			}
			if v := rt.Indicators().SMA(symbol, slow); v.Ready {
				row.Indicators["sma_slow"] = v.V
			}
		case strategy.SignalMACD:
			macd, signal, hist := rt.Indicators().MACD(symbol)
			if macd.Ready {
				row.Indicators["macd"] = macd.V
			}
			if signal.Ready {
				row.Indicators["macd_signal"] = signal.V
			}
			if hist.Ready {
				row.Indicators["macd_histogram"] = hist.V
			}
		case strategy.SignalSentiment:
			if sentiment == nil {
				continue
			}
			source := stringParam(c.Parameters, "source", "news")
			if score, err := sentiment(symbol, source, date); err == nil && score != nil {
				row.Sentiment[source] = *score
			}
		}
	}

	if lot != nil {
		if pos, ok, _ := sim.GetPosition(symbol); ok && pos.Quantity > 0 {
			row.PositionHeld = true
			row.EntryPrice = lot.EntryPrice
			row.UnrealizedPL = pos.UnrealizedPL
			if spec.Exit.StopLoss != nil {
				level := lot.EntryPrice * (1 - *spec.Exit.StopLoss)
				row.StopLossLevel = &level
			}
			if spec.Exit.TakeProfit != nil {
				level := lot.EntryPrice * (1 + *spec.Exit.TakeProfit)
				row.TakeProfitLevel = &level
			}
		}
	}

	return row
}

func entryConditionsOf(spec *strategy.Spec) []strategy.Condition {
	if len(spec.EntryConditions) > 0 {
		return spec.EntryConditions
	}
	return []strategy.Condition{{Kind: spec.EntrySignal, Parameters: spec.EntryParameters}}
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}
