package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Simulated is the backtest core's in-memory broker (spec.md §4.4).
// Market orders fill immediately at the current price; a buy rejects if
// cash is short of notional, a sell rejects if the position is short of
// quantity. Entry price is weighted-average on repeated buys; cost basis
// reduces proportionally on a partial sell.
type Simulated struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*Position
	prices    map[string]float64
	orders    map[string]*Order
	orderSeq  []string
}

func NewSimulated(initialCash float64) *Simulated {
	return &Simulated{
		cash:      initialCash,
		positions: make(map[string]*Position),
		prices:    make(map[string]float64),
		orders:    make(map[string]*Order),
	}
}

// SetPrice advances the broker's view of a symbol's current price — called
// by the backtest driver once per bar per symbol (spec.md §4.5 step 3).
func (s *Simulated) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
	if pos, ok := s.positions[symbol]; ok {
		s.markPosition(pos, price)
	}
}

func (s *Simulated) markPosition(pos *Position, price float64) {
	pos.CurrentPrice = price
	pos.MarketValue = pos.Quantity * price
	pos.UnrealizedPL = pos.MarketValue - pos.CostBasis
	if pos.CostBasis != 0 {
		pos.UnrealizedPLPct = pos.UnrealizedPL / pos.CostBasis
	}
}

func (s *Simulated) GetAccount() (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	positionsValue := 0.0
	for _, p := range s.positions {
		positionsValue += p.MarketValue
	}
	portfolioValue := s.cash + positionsValue
	return &Account{
		Equity:         portfolioValue,
		Cash:           s.cash,
		BuyingPower:    s.cash,
		PortfolioValue: portfolioValue,
		PositionsValue: positionsValue,
	}, nil
}

func (s *Simulated) GetPosition(symbol string) (*Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return nil, false, nil
	}
	cp := *pos
	return &cp, true, nil
}

func (s *Simulated) GetAllPositions() ([]*Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Position, 0, len(s.positions))
	for _, p := range s.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Simulated) GetCurrentPrice(symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no current price for %s", symbol)
	}
	return price, nil
}

// SubmitOrder fills a market order immediately at the current price. Limit
// and stop order types are accepted but, in the simulated broker, are
// treated as market for fill purposes — the strategy runtime only ever
// issues market orders (spec.md §4.3).
func (s *Simulated) SubmitOrder(order Order) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.ID = uuid.NewString()
	order.CreatedAt = time.Now()

	price, ok := s.prices[order.Symbol]
	if !ok {
		order.Status = StatusRejected
		s.orders[order.ID] = &order
		return &order, fmt.Errorf("no current price for %s", order.Symbol)
	}

	notional := order.Quantity * price

	switch order.Side {
	case SideBuy:
		if notional > s.cash+1e-9 {
			order.Status = StatusRejected
			s.orders[order.ID] = &order
			return &order, fmt.Errorf("insufficient cash: need %.2f, have %.2f", notional, s.cash)
		}
		s.cash -= notional
		pos, exists := s.positions[order.Symbol]
		if !exists {
			pos = &Position{Symbol: order.Symbol}
			s.positions[order.Symbol] = pos
		}
		totalCost := pos.CostBasis + notional
		totalQty := pos.Quantity + order.Quantity
		pos.Quantity = totalQty
		pos.CostBasis = totalCost
		if totalQty > 0 {
			pos.AvgEntryPrice = totalCost / totalQty
		}
		s.markPosition(pos, price)

	case SideSell:
		pos, exists := s.positions[order.Symbol]
		if !exists || pos.Quantity < order.Quantity-1e-9 {
			order.Status = StatusRejected
			s.orders[order.ID] = &order
			return &order, fmt.Errorf("insufficient position in %s to sell %.4f", order.Symbol, order.Quantity)
		}
		proceeds := order.Quantity * price
		s.cash += proceeds
		fraction := order.Quantity / pos.Quantity
		pos.CostBasis -= pos.CostBasis * fraction
		pos.Quantity -= order.Quantity
		if pos.Quantity <= 1e-9 {
			delete(s.positions, order.Symbol)
		} else {
			s.markPosition(pos, price)
		}
	}

	order.Status = StatusFilled
	order.FilledQty = order.Quantity
	order.FilledAvgPrice = price
	now := time.Now()
	order.FilledAt = &now
	s.orders[order.ID] = &order
	s.orderSeq = append(s.orderSeq, order.ID)
	return &order, nil
}

func (s *Simulated) CancelOrder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	if o.isTerminal() {
		return fmt.Errorf("order %s already terminal", id)
	}
	o.Status = StatusCancelled
	return nil
}

func (s *Simulated) GetOrder(id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s not found", id)
	}
	cp := *o
	return &cp, nil
}

func (s *Simulated) ClosePosition(symbol string) (*Order, error) {
	s.mu.Lock()
	pos, ok := s.positions[symbol]
	var qty float64
	if ok {
		qty = pos.Quantity
	}
	s.mu.Unlock()
	if !ok || qty <= 0 {
		return nil, fmt.Errorf("no open position in %s", symbol)
	}
	return s.SubmitOrder(Order{Symbol: symbol, Side: SideSell, Type: TypeMarket, Quantity: qty})
}

func (s *Simulated) CloseAllPositions() ([]*Order, error) {
	s.mu.Lock()
	symbols := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()

	var orders []*Order
	for _, sym := range symbols {
		o, err := s.ClosePosition(sym)
		if err != nil {
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}
