package live

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bhargavap21/tradeforge/broker"
	"github.com/bhargavap21/tradeforge/condition"
	"github.com/bhargavap21/tradeforge/indicator"
	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/metrics"
	"github.com/bhargavap21/tradeforge/store"
	"github.com/bhargavap21/tradeforge/strategy"
)

// tick executes one evaluation cycle for a deployment (spec.md §4.8
// "Per-deployment tick"): load the bot's strategy, evaluate entry/exit
// conditions against live data with the same semantics as the backtest,
// route any resulting order through the live broker, then rebuild the
// deployment's virtual portfolio and snapshot metrics.
func (e *Engine) tick(d *store.Deployment) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.TickBudget)
	defer cancel()

	dep, err := e.Store.Deployment().GetByID(d.ID)
	if err != nil {
		return err
	}
	bot, err := e.Store.Bot().Get(dep.UserID, dep.BotID)
	if err != nil {
		return err
	}
	raw, err := bot.ParseStrategy()
	if err != nil {
		return err
	}
	spec, verr := strategy.Normalize(raw)
	if verr != nil {
		return verr
	}

	now := time.Now().UTC()
	trades, err := e.Store.Trade().List(dep.ID)
	if err != nil {
		return err
	}
	positions, err := e.Store.Position().List(dep.ID)
	if err != nil {
		return err
	}
	cashBefore := Reconstruct(dep.InitialCapital, trades, positions, nil).VirtualCash

	prices := make(map[string]float64, len(spec.Assets))
	for _, symbol := range spec.Assets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("tick budget exceeded: %w", err)
		}

		history, bar, price, herr := e.loadMarketState(ctx, symbol, now)
		if herr != nil {
			// Per-symbol data failure is a skip with a warning, not a tick
			// failure (spec.md §7 UpstreamDataError).
			logger.Warnf("deployment %s: no market data for %s: %v", dep.ID, symbol, herr)
			continue
		}
		prices[symbol] = price

		ind := indicator.NewEngine()
		for _, b := range history {
			ind.OnBar(symbol, b)
		}

		pos, held, err := e.Store.Position().Get(dep.ID, symbol)
		if err != nil {
			return err
		}

		if held && pos.Quantity > 0 {
			if err := e.evaluateExit(dep, spec, symbol, pos, bar, history, ind, price, now); err != nil {
				return err
			}
		} else {
			if err := e.evaluateEntry(dep, spec, symbol, bar, history, ind, price, cashBefore, now); err != nil {
				return err
			}
		}
	}

	// Rebuild the virtual portfolio from the (possibly updated) ledgers and
	// sync the deployment aggregates (spec.md §4.9).
	trades, err = e.Store.Trade().List(dep.ID)
	if err != nil {
		return err
	}
	positions, err = e.Store.Position().List(dep.ID)
	if err != nil {
		return err
	}
	snap := Reconstruct(dep.InitialCapital, trades, positions, prices)

	if err := e.Store.Deployment().UpdateCapital(dep.ID, snap.PortfolioValue,
		snap.RealizedPnL+snap.UnrealizedPnL, snap.TotalReturnPct); err != nil {
		return err
	}
	if err := e.Store.Metric().Insert(&store.MetricsSnapshot{
		ID: uuid.NewString(), DeploymentID: dep.ID,
		PortfolioValue: snap.PortfolioValue, Cash: snap.VirtualCash,
		RealizedPnL: snap.RealizedPnL, UnrealizedPnL: snap.UnrealizedPnL,
		TotalReturnPct: snap.TotalReturnPct, PositionsCount: snap.PositionsCount,
		RecordedAt: now,
	}); err != nil {
		return err
	}
	metrics.UpdateDeploymentMetrics(dep.ID, snap.PortfolioValue, snap.RealizedPnL)

	return e.Store.Deployment().UpdateLastExecution(dep.ID, now)
}

// loadMarketState fetches the recent bar history and current price for one
// symbol. The price fetch happens here, inside the asynchronous tick — never
// from the scheduler (spec.md §9 flags the source's mixed-blocking pattern
// as a bug not to replicate).
func (e *Engine) loadMarketState(ctx context.Context, symbol string, now time.Time) ([]market.Bar, market.Bar, float64, error) {
	lookback := e.LookbackDays
	if lookback <= 0 {
		lookback = 90
	}
	history, err := e.Market.GetBars(ctx, symbol, now.AddDate(0, 0, -lookback), now)
	if err != nil {
		return nil, market.Bar{}, 0, err
	}
	if len(history) == 0 {
		return nil, market.Bar{}, 0, fmt.Errorf("no bars for %s", symbol)
	}
	bar := history[len(history)-1]

	price, err := e.Broker.GetCurrentPrice(symbol)
	if err != nil || price <= 0 {
		price = bar.Close
	}
	return history, bar, price, nil
}

func (e *Engine) evaluateEntry(dep *store.Deployment, spec *strategy.Spec, symbol string,
	bar market.Bar, history []market.Bar, ind *indicator.Engine, price, virtualCash float64, now time.Time) error {

	matched, reason := e.matchConditions(entryConditions(spec), symbol, bar, history, ind, now, nil)
	if !matched {
		return nil
	}

	// Position sizing (spec.md §4.8 step 3): prefer max_position_size, else
	// 10% of current virtual cash.
	allocated := virtualCash * 0.10
	if dep.MaxPositionSize != nil && *dep.MaxPositionSize > 0 {
		allocated = *dep.MaxPositionSize
	}
	if allocated > virtualCash {
		allocated = virtualCash
	}
	shares := math.Floor(allocated / price)
	if shares <= 0 {
		return nil
	}

	order, err := e.Broker.SubmitOrder(broker.Order{
		Symbol: symbol, Side: broker.SideBuy, Type: broker.TypeMarket, Quantity: shares,
	})
	if err != nil {
		metrics.BrokerErrorsTotal.Inc()
		return err
	}
	metrics.BrokerOrdersTotal.WithLabelValues(string(order.Side), string(order.Status)).Inc()
	if order.Status != broker.StatusFilled {
		logger.Warnf("deployment %s: buy order for %s not filled (%s)", dep.ID, symbol, order.Status)
		return nil
	}

	fillPrice := order.FilledAvgPrice
	fillQty := order.FilledQty
	if err := e.Store.Trade().Insert(&store.DeploymentTrade{
		ID: uuid.NewString(), DeploymentID: dep.ID, Symbol: symbol, Side: "buy",
		Quantity: fillQty, Price: fillPrice, Notional: fillQty * fillPrice,
		VendorOrderID: order.ID, Status: string(order.Status), Reason: reason, ExecutedAt: now,
	}); err != nil {
		return err
	}

	// Weighted-average entry on add (spec.md §4.9 "Virtual positions").
	pos, held, err := e.Store.Position().Get(dep.ID, symbol)
	if err != nil {
		return err
	}
	if !held {
		pos = &store.DeploymentPosition{DeploymentID: dep.ID, Symbol: symbol}
	}
	newQty := pos.Quantity + fillQty
	pos.AvgEntryPrice = (pos.Quantity*pos.AvgEntryPrice + fillQty*fillPrice) / newQty
	pos.Quantity = newQty
	return e.Store.Position().Upsert(pos)
}

// evaluateExit applies the same exit ladder as the backtest runtime
// (spec.md §4.5 "Exit priority", §4.8 step 2): custom exit conditions
// first; after a partial exit only the trailing stop governs the
// remainder; then stop-loss; then take-profit (partial once if configured).
// At most one exit per tick.
func (e *Engine) evaluateExit(dep *store.Deployment, spec *strategy.Spec, symbol string,
	pos *store.DeploymentPosition, bar market.Bar, history []market.Bar,
	ind *indicator.Engine, price float64, now time.Time) error {

	posState := &condition.PositionState{EntryPrice: pos.AvgEntryPrice, Quantity: pos.Quantity}

	if matched, reason := e.matchConditions(spec.ExitConditions, symbol, bar, history, ind, now, posState); matched {
		return e.sell(dep, pos, pos.Quantity, price, reason, now)
	}

	pnlPct := 0.0
	if pos.AvgEntryPrice > 0 {
		pnlPct = (price - pos.AvgEntryPrice) / pos.AvgEntryPrice
	}

	if pos.PartialExited {
		if spec.Exit.HasTrailingStop {
			if price > pos.PeakPrice {
				pos.PeakPrice = price
				if err := e.Store.Position().Upsert(pos); err != nil {
					return err
				}
			}
			stopLoss := 0.0
			if spec.Exit.StopLoss != nil {
				stopLoss = *spec.Exit.StopLoss
			}
			if stopLoss > 0 && pos.PeakPrice > 0 && price <= pos.PeakPrice*(1-stopLoss) {
				return e.sell(dep, pos, pos.Quantity, price, "trailing stop triggered on remainder", now)
			}
		}
		return nil
	}

	if sl := spec.Exit.StopLoss; sl != nil && *sl > 0 && pnlPct <= -*sl {
		return e.sell(dep, pos, pos.Quantity, price, "stop-loss threshold breached", now)
	}

	if tp := spec.Exit.TakeProfit; tp != nil && *tp > 0 && pnlPct >= *tp {
		if spec.Exit.TakeProfitPctShares < 1 {
			qty := math.Round(pos.Quantity * spec.Exit.TakeProfitPctShares)
			if qty <= 0 {
				qty = pos.Quantity
			}
			pos.PartialExited = true
			pos.PeakPrice = price
			if err := e.Store.Position().Upsert(pos); err != nil {
				return err
			}
			return e.sell(dep, pos, qty, price, "partial take-profit", now)
		}
		return e.sell(dep, pos, pos.Quantity, price, "take-profit threshold reached", now)
	}

	return nil
}

// sell routes a sell order through the live broker and updates the virtual
// ledgers: trade row with realized P&L, position reduced or deleted.
func (e *Engine) sell(dep *store.Deployment, pos *store.DeploymentPosition,
	qty, price float64, reason string, now time.Time) error {

	order, err := e.Broker.SubmitOrder(broker.Order{
		Symbol: pos.Symbol, Side: broker.SideSell, Type: broker.TypeMarket, Quantity: qty,
	})
	if err != nil {
		metrics.BrokerErrorsTotal.Inc()
		return err
	}
	metrics.BrokerOrdersTotal.WithLabelValues(string(order.Side), string(order.Status)).Inc()
	if order.Status != broker.StatusFilled {
		logger.Warnf("deployment %s: sell order for %s not filled (%s)", dep.ID, pos.Symbol, order.Status)
		return nil
	}

	fillPrice := order.FilledAvgPrice
	fillQty := order.FilledQty
	realized := (fillPrice - pos.AvgEntryPrice) * fillQty

	if err := e.Store.Trade().Insert(&store.DeploymentTrade{
		ID: uuid.NewString(), DeploymentID: dep.ID, Symbol: pos.Symbol, Side: "sell",
		Quantity: fillQty, Price: fillPrice, Notional: fillQty * fillPrice,
		VendorOrderID: order.ID, Status: string(order.Status), Reason: reason,
		RealizedPnL: realized, ExecutedAt: now,
	}); err != nil {
		return err
	}

	remaining := pos.Quantity - fillQty
	if remaining <= 0 {
		return e.Store.Position().Delete(dep.ID, pos.Symbol)
	}
	pos.Quantity = remaining
	return e.Store.Position().Upsert(pos)
}

func (e *Engine) matchConditions(conditions []strategy.Condition, symbol string,
	bar market.Bar, history []market.Bar, ind *indicator.Engine, now time.Time,
	pos *condition.PositionState) (bool, string) {

	for _, c := range conditions {
		res := condition.Evaluate(condition.Input{
			Condition: c, Bar: bar, History: history, Indicator: ind,
			Date: now, Symbol: symbol, Position: pos,
			Sentiment: e.Sentiment, News: e.News,
		})
		if res.Warning != "" {
			logger.Warnf("condition warning for %s: %s", symbol, res.Warning)
		}
		if res.Matched {
			return true, res.Reason
		}
	}
	return false, ""
}

func entryConditions(spec *strategy.Spec) []strategy.Condition {
	if len(spec.EntryConditions) > 0 {
		return spec.EntryConditions
	}
	return []strategy.Condition{{Kind: spec.EntrySignal, Parameters: spec.EntryParameters}}
}
