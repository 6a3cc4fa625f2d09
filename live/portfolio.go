package live

import (
	"github.com/bhargavap21/tradeforge/store"
)

// Snapshot is one deployment's virtual portfolio reconstruction (spec.md
// §4.9): cash, positions, and P&L derived from the deployment's own trade
// and position rows, never from the shared broker account aggregate.
type Snapshot struct {
	VirtualCash    float64
	PositionsValue float64
	PortfolioValue float64
	RealizedPnL    float64
	UnrealizedPnL  float64
	TotalReturnPct float64
	PositionsCount int
}

// Reconstruct computes the virtual portfolio view from the deployment's
// ledgers. prices supplies the current price per held symbol; a symbol
// missing from prices is valued at its entry price (flat unrealized P&L)
// rather than dropped, so the conservation identity
// cash + Σ qty×price = portfolio_value still holds.
func Reconstruct(initialCapital float64, trades []*store.DeploymentTrade,
	positions []*store.DeploymentPosition, prices map[string]float64) Snapshot {

	snap := Snapshot{VirtualCash: initialCapital}
	for _, t := range trades {
		if t.Status != "filled" {
			continue
		}
		switch t.Side {
		case "buy":
			snap.VirtualCash -= t.Notional
		case "sell":
			snap.VirtualCash += t.Notional
			snap.RealizedPnL += t.RealizedPnL
		}
	}

	for _, p := range positions {
		price, ok := prices[p.Symbol]
		if !ok || price <= 0 {
			price = p.AvgEntryPrice
		}
		snap.PositionsValue += p.Quantity * price
		snap.UnrealizedPnL += p.Quantity * (price - p.AvgEntryPrice)
		snap.PositionsCount++
	}

	snap.PortfolioValue = snap.VirtualCash + snap.PositionsValue
	if initialCapital > 0 {
		snap.TotalReturnPct = (snap.PortfolioValue - initialCapital) / initialCapital * 100
	}
	return snap
}
