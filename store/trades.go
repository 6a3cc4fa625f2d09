package store

import (
	"database/sql"
	"time"

	"github.com/bhargavap21/tradeforge/errs"
)

// DeploymentTradeStore per-deployment trade ledger. These rows are the
// source of truth for the deployment's virtual portfolio (spec.md §4.9):
// virtual cash and realized P&L are reconstructed from filled rows only,
// never from the shared broker account.
type DeploymentTradeStore struct {
	db *sql.DB
}

type DeploymentTrade struct {
	ID           string    `json:"id"`
	DeploymentID string    `json:"deployment_id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"` // buy, sell
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	Notional     float64   `json:"notional"`
	VendorOrderID string   `json:"vendor_order_id"`
	Status       string    `json:"status"` // mirrors the broker order status
	Reason       string    `json:"reason"`
	RealizedPnL  float64   `json:"realized_pnl"` // (exit − entry) × qty, sells only
	ExecutedAt   time.Time `json:"executed_at"`
}

func (s *DeploymentTradeStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployment_trades (
			id TEXT PRIMARY KEY,
			deployment_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			notional REAL NOT NULL,
			vendor_order_id TEXT DEFAULT '',
			status TEXT NOT NULL DEFAULT 'filled',
			reason TEXT DEFAULT '',
			realized_pnl REAL NOT NULL DEFAULT 0,
			executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_deployment_trades_deployment_id ON deployment_trades(deployment_id)`)
	return nil
}

// Insert insert a trade row
func (s *DeploymentTradeStore) Insert(t *DeploymentTrade) error {
	_, err := s.db.Exec(`
		INSERT INTO deployment_trades (id, deployment_id, symbol, side, quantity, price, notional,
			vendor_order_id, status, reason, realized_pnl, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.DeploymentID, t.Symbol, t.Side, t.Quantity, t.Price, t.Notional,
		t.VendorOrderID, t.Status, t.Reason, t.RealizedPnL, formatTime(t.ExecutedAt))
	if err != nil {
		return errs.Repository("failed to insert deployment trade", err)
	}
	return nil
}

// List get a deployment's trades, oldest first
func (s *DeploymentTradeStore) List(deploymentID string) ([]*DeploymentTrade, error) {
	rows, err := s.db.Query(`
		SELECT id, deployment_id, symbol, side, quantity, price, notional,
			vendor_order_id, status, reason, realized_pnl, executed_at
		FROM deployment_trades WHERE deployment_id = ? ORDER BY executed_at ASC, id ASC
	`, deploymentID)
	if err != nil {
		return nil, errs.Repository("failed to list deployment trades", err)
	}
	defer rows.Close()

	var out []*DeploymentTrade
	for rows.Next() {
		var t DeploymentTrade
		var executedAt string
		err := rows.Scan(&t.ID, &t.DeploymentID, &t.Symbol, &t.Side, &t.Quantity, &t.Price,
			&t.Notional, &t.VendorOrderID, &t.Status, &t.Reason, &t.RealizedPnL, &executedAt)
		if err != nil {
			return nil, errs.Repository("failed to read deployment trade", err)
		}
		t.ExecutedAt = parseTime(executedAt)
		out = append(out, &t)
	}
	return out, nil
}
