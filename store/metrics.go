package store

import (
	"database/sql"
	"time"

	"github.com/bhargavap21/tradeforge/errs"
)

// DeploymentMetricsStore per-deployment metrics snapshot ledger, appended
// after each tick (spec.md §4.8 step 6).
type DeploymentMetricsStore struct {
	db *sql.DB
}

type MetricsSnapshot struct {
	ID             string    `json:"id"`
	DeploymentID   string    `json:"deployment_id"`
	PortfolioValue float64   `json:"portfolio_value"`
	Cash           float64   `json:"cash"`
	RealizedPnL    float64   `json:"realized_pnl"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	TotalReturnPct float64   `json:"total_return_pct"`
	PositionsCount int       `json:"positions_count"`
	RecordedAt     time.Time `json:"recorded_at"`
}

func (s *DeploymentMetricsStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployment_metrics (
			id TEXT PRIMARY KEY,
			deployment_id TEXT NOT NULL,
			portfolio_value REAL NOT NULL,
			cash REAL NOT NULL,
			realized_pnl REAL NOT NULL DEFAULT 0,
			unrealized_pnl REAL NOT NULL DEFAULT 0,
			total_return_pct REAL NOT NULL DEFAULT 0,
			positions_count INTEGER NOT NULL DEFAULT 0,
			recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_deployment_metrics_deployment_id ON deployment_metrics(deployment_id)`)
	return nil
}

// Insert append a snapshot
func (s *DeploymentMetricsStore) Insert(m *MetricsSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO deployment_metrics (id, deployment_id, portfolio_value, cash, realized_pnl,
			unrealized_pnl, total_return_pct, positions_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.DeploymentID, m.PortfolioValue, m.Cash, m.RealizedPnL,
		m.UnrealizedPnL, m.TotalReturnPct, m.PositionsCount, formatTime(m.RecordedAt))
	if err != nil {
		return errs.Repository("failed to insert metrics snapshot", err)
	}
	return nil
}

// List get a deployment's snapshots, oldest first
func (s *DeploymentMetricsStore) List(deploymentID string) ([]*MetricsSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT id, deployment_id, portfolio_value, cash, realized_pnl, unrealized_pnl,
			total_return_pct, positions_count, recorded_at
		FROM deployment_metrics WHERE deployment_id = ? ORDER BY recorded_at ASC, id ASC
	`, deploymentID)
	if err != nil {
		return nil, errs.Repository("failed to list metrics snapshots", err)
	}
	defer rows.Close()

	var out []*MetricsSnapshot
	for rows.Next() {
		var m MetricsSnapshot
		var recordedAt string
		err := rows.Scan(&m.ID, &m.DeploymentID, &m.PortfolioValue, &m.Cash, &m.RealizedPnL,
			&m.UnrealizedPnL, &m.TotalReturnPct, &m.PositionsCount, &recordedAt)
		if err != nil {
			return nil, errs.Repository("failed to read metrics snapshot", err)
		}
		m.RecordedAt = parseTime(recordedAt)
		out = append(out, &m)
	}
	return out, nil
}
