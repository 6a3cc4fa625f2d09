package runtime

import (
	"math"

	"github.com/bhargavap21/tradeforge/broker"
	"github.com/bhargavap21/tradeforge/strategy"
)

// Size implements the default position-sizer (spec.md §4.3): on buy it
// spends `risk.position_size` of current portfolio value, capped by
// buying power; `risk.max_positions` does not change the buy amount and
// no equal-weight split across slots is applied; on sell it uses the signal's quantity if the exit ladder already fixed
// one (e.g. a partial exit), else the full current position.
func Size(b broker.Broker, spec *strategy.Spec, sig Signal) (float64, error) {
	switch sig.Action {
	case ActionBuy:
		account, err := b.GetAccount()
		if err != nil {
			return 0, err
		}
		price, err := b.GetCurrentPrice(sig.Symbol)
		if err != nil {
			return 0, err
		}
		if price <= 0 {
			return 0, nil
		}
		slots := spec.Risk.MaxPositions
		if slots < 1 {
			slots = 1
		}
		notional := account.PortfolioValue * spec.Risk.PositionSize
		if notional > account.BuyingPower {
			notional = account.BuyingPower
		}
		qty := math.Floor(notional / price)
		if qty <= 0 {
			return 0, nil
		}
		return qty, nil

	case ActionSell:
		if sig.Quantity != nil {
			return *sig.Quantity, nil
		}
		pos, ok, err := b.GetPosition(sig.Symbol)
		if err != nil || !ok {
			return 0, err
		}
		return pos.Quantity, nil
	}
	return 0, nil
}

// Execute turns signals into broker orders using the default sizer, and
// `rebalance` target-weight execution (spec.md §4.3). It never halts on a
// single rejected order — BrokerError is recorded, per spec.md §7, and
// execution continues with the remaining signals.
func Execute(b broker.Broker, spec *strategy.Spec, signals []Signal) []*broker.Order {
	var orders []*broker.Order
	for _, sig := range signals {
		switch sig.Action {
		case ActionBuy, ActionSell:
			qty, err := Size(b, spec, sig)
			if err != nil || qty <= 0 {
				continue
			}
			side := broker.SideBuy
			if sig.Action == ActionSell {
				side = broker.SideSell
			}
			order, _ := b.SubmitOrder(broker.Order{Symbol: sig.Symbol, Side: side, Type: broker.TypeMarket, Quantity: qty})
			if order != nil {
				orders = append(orders, order)
			}
		case ActionRebalance:
			orders = append(orders, rebalance(b, spec)...)
		}
	}
	return orders
}

// rebalance implements target-weight rebalancing (spec.md §4.3): equal
// target weight across the spec's assets, one market order per symbol
// equal to the delta between current and target shares.
func rebalance(b broker.Broker, spec *strategy.Spec) []*broker.Order {
	if len(spec.Assets) == 0 {
		return nil
	}
	account, err := b.GetAccount()
	if err != nil {
		return nil
	}
	targetValue := account.PortfolioValue / float64(len(spec.Assets))

	var orders []*broker.Order
	for _, symbol := range spec.Assets {
		price, err := b.GetCurrentPrice(symbol)
		if err != nil || price <= 0 {
			continue
		}
		targetShares := math.Floor(targetValue / price)

		currentShares := 0.0
		if pos, ok, _ := b.GetPosition(symbol); ok {
			currentShares = pos.Quantity
		}

		delta := targetShares - currentShares
		if delta == 0 {
			continue
		}
		side := broker.SideBuy
		qty := delta
		if delta < 0 {
			side = broker.SideSell
			qty = -delta
		}
		order, err := b.SubmitOrder(broker.Order{Symbol: symbol, Side: side, Type: broker.TypeMarket, Quantity: qty})
		if err == nil && order != nil {
			orders = append(orders, order)
		}
	}
	return orders
}
