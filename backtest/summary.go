package backtest

import "math"

// computeSummary implements spec.md §4.5 step 6.
func computeSummary(initialCapital float64, history []PortfolioPoint, trades []TradeRecord) Summary {
	s := Summary{InitialEquity: initialCapital, ExitReasonCounts: make(map[string]int)}

	if len(history) == 0 {
		s.FinalEquity = initialCapital
		return s
	}

	last := history[len(history)-1]
	s.FinalEquity = last.PortfolioValue
	if initialCapital != 0 {
		s.TotalReturnPct = (last.PortfolioValue/initialCapital - 1) * 100
	}
	if last.BuyHoldValue > 0 && initialCapital != 0 {
		s.BuyHoldReturnPct = (last.BuyHoldValue/initialCapital - 1) * 100
	}

	s.Sharpe = sharpeRatio(history)
	s.MaxDrawdownPct = maxDrawdown(history)

	var closed []TradeRecord
	for _, t := range trades {
		s.ExitReasonCounts[t.ExitReason]++
		if t.Closed {
			closed = append(closed, t)
		}
	}
	s.TotalTrades = len(closed)

	var wins, losses []float64
	var daysHeldSum float64
	for _, t := range closed {
		if t.PnL > 0 {
			wins = append(wins, t.PnL)
		} else if t.PnL < 0 {
			losses = append(losses, t.PnL)
		}
		daysHeldSum += t.ExitDate.Sub(t.EntryDate).Hours() / 24
	}
	if len(closed) > 0 {
		s.WinRatePct = float64(len(wins)) / float64(len(closed)) * 100
		s.AvgDaysHeld = daysHeldSum / float64(len(closed))
	}

	var winSum, lossSum float64
	for _, w := range wins {
		winSum += w
		if w > s.LargestWin {
			s.LargestWin = w
		}
	}
	for _, l := range losses {
		lossSum += l
		if l < s.LargestLoss {
			s.LargestLoss = l
		}
	}
	if len(wins) > 0 {
		s.AvgWin = winSum / float64(len(wins))
	}
	if len(losses) > 0 {
		s.AvgLoss = lossSum / float64(len(losses))
	}
	if lossSum != 0 {
		s.ProfitFactor = winSum / math.Abs(lossSum)
	}

	return s
}

func sharpeRatio(history []PortfolioPoint) float64 {
	if len(history) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].PortfolioValue
		if prev == 0 {
			continue
		}
		returns = append(returns, (history[i].PortfolioValue-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}
	return (mean / stdev) * math.Sqrt(252)
}

func maxDrawdown(history []PortfolioPoint) float64 {
	peak := history[0].PortfolioValue
	maxDD := 0.0
	for _, p := range history {
		if p.PortfolioValue > peak {
			peak = p.PortfolioValue
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.PortfolioValue) / peak * 100
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
