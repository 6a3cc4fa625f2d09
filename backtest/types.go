// Package backtest implements the deterministic event-driven simulator of
// spec.md §4.5: it replays historical bars against a strategy runtime,
// maintaining positions, cash, indicator state, and trade history, and
// emits a metrics bundle plus per-day time series consumed by the analyst
// agent. Driver shape (fetch → union dates → per-date apply → summarize)
// is grounded on the teacher's AutoTrader.runCycle per-cycle structure
// (trader/auto_trader.go), generalized from "one live cycle" to "replay N
// historical cycles in one pass".
package backtest

import "time"

// TradeRecord is a closed (or partially closed) round-trip event (spec.md
// §3 "Trade record", extended per SPEC_FULL.md §3.1 with ExitType).
type TradeRecord struct {
	EntryDate   time.Time `json:"entry_date"`
	ExitDate    time.Time `json:"exit_date"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Shares      float64   `json:"shares"`
	PnL         float64   `json:"pnl"`
	PnLPct      float64   `json:"pnl_pct"`
	EntryReason string    `json:"entry_reason"`
	ExitReason  string    `json:"exit_reason"`
	ExitType    string    `json:"exit_type"`
	// Closed reports whether this sell brought the position to zero —
	// spec.md §3 "summary.total_trades = count of closed round-trips (not
	// sum of buy+sell actions)" is computed only over Closed==true records.
	Closed bool `json:"closed"`
}

// PortfolioPoint is one day's equity-curve entry (spec.md §4.5 step 3).
type PortfolioPoint struct {
	Date           time.Time `json:"date"`
	PortfolioValue float64   `json:"portfolio_value"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	Price          float64   `json:"price"`
	BuyHoldValue   float64   `json:"buy_hold_value"`
}

// AdditionalInfoRow is one per-day, per-symbol diagnostic row (spec.md
// §4.5 step 4).
type AdditionalInfoRow struct {
	Date            time.Time          `json:"date"`
	Symbol          string             `json:"symbol"`
	Indicators      map[string]float64 `json:"indicators"`
	Sentiment       map[string]float64 `json:"sentiment"`
	PositionHeld    bool               `json:"position_held"`
	EntryPrice      float64            `json:"entry_price,omitempty"`
	UnrealizedPL    float64            `json:"unrealized_pl,omitempty"`
	StopLossLevel   *float64           `json:"stop_loss_level,omitempty"`
	TakeProfitLevel *float64           `json:"take_profit_level,omitempty"`
}

// Summary is the metrics bundle of spec.md §4.5 step 6.
type Summary struct {
	InitialEquity      float64        `json:"initial_equity"`
	FinalEquity        float64        `json:"final_equity"`
	TotalReturnPct     float64        `json:"total_return_pct"`
	BuyHoldReturnPct   float64        `json:"buy_hold_return_pct"`
	Sharpe             float64        `json:"sharpe"`
	MaxDrawdownPct     float64        `json:"max_drawdown_pct"`
	WinRatePct         float64        `json:"win_rate_pct"`
	AvgWin             float64        `json:"avg_win"`
	AvgLoss            float64        `json:"avg_loss"`
	LargestWin         float64        `json:"largest_win"`
	LargestLoss        float64        `json:"largest_loss"`
	AvgDaysHeld        float64        `json:"avg_days_held"`
	ProfitFactor       float64        `json:"profit_factor"`
	TotalTrades        int            `json:"total_trades"`
	ExitReasonCounts   map[string]int `json:"exit_reason_counts"`
}

// Result is the full backtest artifact (spec.md §3 "Backtest result").
type Result struct {
	Summary               Summary              `json:"summary"`
	PortfolioHistory      []PortfolioPoint      `json:"portfolio_history"`
	Trades                []TradeRecord        `json:"trades"`
	AdditionalInfo        []AdditionalInfoRow   `json:"additional_info"`
	ExitConditionAnalysis map[string]int        `json:"exit_condition_analysis"`
	Warnings              []string             `json:"warnings,omitempty"`
}

type openLot struct {
	EntryDate     time.Time
	EntryPrice    float64
	EntryReason   string
	InitialShares float64
}
