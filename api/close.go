package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bhargavap21/tradeforge/broker"
	"github.com/bhargavap21/tradeforge/store"
)

// closeDeploymentPositions sells every virtual position of a deployment
// through the live broker and settles the ledgers, used by stop with
// close_all_positions. Only this deployment's rows are touched — other
// deployments sharing the broker account keep their virtual positions
// (spec.md §4.9).
func (s *Server) closeDeploymentPositions(d *store.Deployment) error {
	positions, err := s.store.Position().List(d.ID)
	if err != nil {
		return err
	}

	var firstErr error
	for _, pos := range positions {
		order, err := s.live.Broker.SubmitOrder(broker.Order{
			Symbol: pos.Symbol, Side: broker.SideSell, Type: broker.TypeMarket, Quantity: pos.Quantity,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if order.Status != broker.StatusFilled {
			if firstErr == nil {
				firstErr = fmt.Errorf("close order for %s not filled (%s)", pos.Symbol, order.Status)
			}
			continue
		}

		realized := (order.FilledAvgPrice - pos.AvgEntryPrice) * order.FilledQty
		if err := s.store.Trade().Insert(&store.DeploymentTrade{
			ID: uuid.NewString(), DeploymentID: d.ID, Symbol: pos.Symbol, Side: "sell",
			Quantity: order.FilledQty, Price: order.FilledAvgPrice,
			Notional: order.FilledQty * order.FilledAvgPrice,
			VendorOrderID: order.ID, Status: string(order.Status),
			Reason: "deployment stopped", RealizedPnL: realized, ExecutedAt: time.Now().UTC(),
		}); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.store.Position().Delete(d.ID, pos.Symbol); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
