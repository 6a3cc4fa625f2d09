package backtest

import (
	"context"
	"sort"
	"time"

	"github.com/bhargavap21/tradeforge/broker"
	"github.com/bhargavap21/tradeforge/condition"
	"github.com/bhargavap21/tradeforge/errs"
	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/runtime"
	"github.com/bhargavap21/tradeforge/strategy"
)

// Options configures one Run invocation.
type Options struct {
	Start           time.Time
	End             time.Time
	InitialCapital  float64
	SentimentLookup condition.SentimentLookup
	NewsLookup      condition.NewsLookup
}

// Run drives the strategy runtime over historical bars and produces the
// full Result (spec.md §4.5).
func Run(ctx context.Context, spec *strategy.Spec, provider market.Provider, opts Options) (*Result, error) {
	symbolBars := make(map[string][]market.Bar)
	var warnings []string
	for _, symbol := range spec.Assets {
		bars, err := provider.GetBars(ctx, symbol, opts.Start, opts.End)
		if err != nil {
			logger.Warnf("backtest: no market data for %s: %v", symbol, err)
			warnings = append(warnings, "no market data for "+symbol)
			continue
		}
		symbolBars[symbol] = bars
	}
	if len(symbolBars) == 0 {
		return nil, errs.UpstreamData("no symbol yielded market data for the requested range", nil)
	}

	dates, barsByDate := unionDates(symbolBars)

	sim := broker.NewSimulated(opts.InitialCapital)
	rt := runtime.New(spec)
	rt.Sentiment = opts.SentimentLookup
	rt.News = opts.NewsLookup
	rt.Initialize()

	benchmark := ""
	if len(spec.Assets) > 0 {
		benchmark = spec.Assets[0]
	}

	openLots := make(map[string]*openLot)
	var trades []TradeRecord
	var portfolioHistory []PortfolioPoint
	var additionalInfo []AdditionalInfoRow
	exitHistogram := make(map[string]int)

	var buyHoldShares float64
	buyHoldInitialized := false

	for _, date := range dates {
		currentBars := make(map[string]market.Bar)
		for symbol, byDate := range barsByDate {
			if bar, ok := byDate[date]; ok {
				currentBars[symbol] = bar
				sim.SetPrice(symbol, bar.Close)
			}
		}
		if len(currentBars) == 0 {
			continue
		}

		positions := snapshotPositions(sim)
		signals := rt.GenerateSignals(date, currentBars, positions)

		for _, sig := range signals {
			applySignal(sim, spec, date, sig, openLots, &trades, exitHistogram)
		}

		account, err := sim.GetAccount()
		if err != nil {
			continue
		}

		benchPrice := 0.0
		if bar, ok := currentBars[benchmark]; ok {
			benchPrice = bar.Close
		}
		if !buyHoldInitialized && benchPrice > 0 {
			buyHoldShares = opts.InitialCapital / benchPrice
			buyHoldInitialized = true
		}
		buyHoldValue := account.PortfolioValue
		if buyHoldInitialized {
			buyHoldValue = buyHoldShares * benchPrice
		}

		portfolioHistory = append(portfolioHistory, PortfolioPoint{
			Date: date, PortfolioValue: account.PortfolioValue, Cash: account.Cash,
			PositionsValue: account.PositionsValue, Price: benchPrice, BuyHoldValue: buyHoldValue,
		})

		for _, symbol := range sortedSymbols(currentBars) {
			additionalInfo = append(additionalInfo, buildAdditionalInfoRow(spec, rt, sim, symbol, currentBars[symbol], date, openLots[symbol], opts.SentimentLookup))
		}
	}

	if len(dates) > 0 {
		forceCloseRemaining(sim, dates[len(dates)-1], openLots, &trades, exitHistogram)
	}

	summary := computeSummary(opts.InitialCapital, portfolioHistory, trades)

	return &Result{
		Summary:               summary,
		PortfolioHistory:      portfolioHistory,
		Trades:                trades,
		AdditionalInfo:        additionalInfo,
		ExitConditionAnalysis: exitHistogram,
		Warnings:              warnings,
	}, nil
}

// unionDates computes the ascending union of trading dates across symbols
// and an index from (symbol, date) to its bar (spec.md §4.5 step 2).
func unionDates(symbolBars map[string][]market.Bar) ([]time.Time, map[string]map[time.Time]market.Bar) {
	dateSet := make(map[time.Time]bool)
	byDate := make(map[string]map[time.Time]market.Bar, len(symbolBars))
	for symbol, bars := range symbolBars {
		index := make(map[time.Time]market.Bar, len(bars))
		for _, b := range bars {
			d := truncateDay(b.Timestamp)
			index[d] = b
			dateSet[d] = true
		}
		byDate[symbol] = index
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, byDate
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// sortedSymbols fixes the per-day row order: identical inputs must yield
// identical additional_info rows across runs (spec.md §4.5 "Determinism").
func sortedSymbols(bars map[string]market.Bar) []string {
	symbols := make([]string, 0, len(bars))
	for symbol := range bars {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func snapshotPositions(sim *broker.Simulated) map[string]*runtime.OpenPosition {
	out := make(map[string]*runtime.OpenPosition)
	positions, err := sim.GetAllPositions()
	if err != nil {
		return out
	}
	for _, p := range positions {
		out[p.Symbol] = &runtime.OpenPosition{Quantity: p.Quantity, AvgEntryPrice: p.AvgEntryPrice}
	}
	return out
}

func applySignal(sim *broker.Simulated, spec *strategy.Spec, date time.Time, sig runtime.Signal,
	openLots map[string]*openLot, trades *[]TradeRecord, exitHistogram map[string]int) {

	qty, err := runtime.Size(sim, spec, sig)
	if err != nil || qty <= 0 {
		return
	}
	side := broker.SideBuy
	if sig.Action == runtime.ActionSell {
		side = broker.SideSell
	}
	order, err := sim.SubmitOrder(broker.Order{Symbol: sig.Symbol, Side: side, Type: broker.TypeMarket, Quantity: qty})
	if err != nil || order.Status != broker.StatusFilled {
		return // BrokerError (spec.md §7): order rejected and recorded, backtest continues.
	}

	switch sig.Action {
	case runtime.ActionBuy:
		lot, ok := openLots[sig.Symbol]
		if !ok {
			openLots[sig.Symbol] = &openLot{EntryDate: date, EntryPrice: order.FilledAvgPrice, EntryReason: sig.Reason, InitialShares: order.FilledQty}
		} else {
			lot.InitialShares += order.FilledQty
		}

	case runtime.ActionSell:
		lot := openLots[sig.Symbol]
		if lot == nil {
			return
		}
		pnl := (order.FilledAvgPrice - lot.EntryPrice) * order.FilledQty
		pnlPct := 0.0
		if lot.EntryPrice != 0 {
			pnlPct = (order.FilledAvgPrice - lot.EntryPrice) / lot.EntryPrice
		}
		_, stillOpen, _ := sim.GetPosition(sig.Symbol)
		exitType := sig.ExitType
		if exitType == "" {
			exitType = "full"
		}
		*trades = append(*trades, TradeRecord{
			EntryDate: lot.EntryDate, ExitDate: date, EntryPrice: lot.EntryPrice, ExitPrice: order.FilledAvgPrice,
			Shares: order.FilledQty, PnL: pnl, PnLPct: pnlPct, EntryReason: lot.EntryReason,
			ExitReason: sig.Reason, ExitType: exitType, Closed: !stillOpen,
		})
		exitHistogram[exitType]++
		if !stillOpen {
			delete(openLots, sig.Symbol)
		}
	}
}

// forceCloseRemaining implements spec.md §4.5 step 5: at the final date,
// forcibly close any open position at the last close and record a
// synthetic "end_of_period" trade.
func forceCloseRemaining(sim *broker.Simulated, lastDate time.Time, openLots map[string]*openLot, trades *[]TradeRecord, exitHistogram map[string]int) {
	symbols := make([]string, 0, len(openLots))
	for symbol := range openLots {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		lot := openLots[symbol]
		pos, ok, _ := sim.GetPosition(symbol)
		if !ok || pos.Quantity <= 0 {
			continue
		}
		order, err := sim.SubmitOrder(broker.Order{Symbol: symbol, Side: broker.SideSell, Type: broker.TypeMarket, Quantity: pos.Quantity})
		if err != nil || order.Status != broker.StatusFilled {
			continue
		}
		pnl := (order.FilledAvgPrice - lot.EntryPrice) * order.FilledQty
		pnlPct := 0.0
		if lot.EntryPrice != 0 {
			pnlPct = (order.FilledAvgPrice - lot.EntryPrice) / lot.EntryPrice
		}
		*trades = append(*trades, TradeRecord{
			EntryDate: lot.EntryDate, ExitDate: lastDate, EntryPrice: lot.EntryPrice, ExitPrice: order.FilledAvgPrice,
			Shares: order.FilledQty, PnL: pnl, PnLPct: pnlPct, EntryReason: lot.EntryReason,
			ExitReason: "end_of_period", ExitType: "end_of_period", Closed: true,
		})
		exitHistogram["end_of_period"]++
	}
}
