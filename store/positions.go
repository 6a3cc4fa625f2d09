package store

import (
	"database/sql"
	"time"

	"github.com/bhargavap21/tradeforge/errs"
)

// DeploymentPositionStore per-deployment virtual position table, keyed by
// (deployment_id, symbol) (spec.md §4.9 "Virtual positions"). Buys update
// the row with weighted-average entry; sells reduce quantity; the row is
// deleted when quantity reaches 0.
type DeploymentPositionStore struct {
	db *sql.DB
}

type DeploymentPosition struct {
	DeploymentID  string    `json:"deployment_id"`
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	// PartialExited records that the two-phase exit already fired its
	// partial sell, so a repeat take-profit match must not re-trigger on
	// the remainder (spec.md §4.5 "no cascading partial exit").
	PartialExited bool      `json:"partial_exited"`
	// PeakPrice is the highest observed price since the partial exit, for
	// the trailing stop governing the remainder.
	PeakPrice float64   `json:"peak_price"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *DeploymentPositionStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployment_positions (
			deployment_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			quantity REAL NOT NULL,
			avg_entry_price REAL NOT NULL,
			partial_exited BOOLEAN NOT NULL DEFAULT 0,
			peak_price REAL NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (deployment_id, symbol)
		)
	`)
	return err
}

// Upsert insert or replace the row for (deployment_id, symbol). Ticks for
// one deployment are non-overlapping (spec.md §5), so this single-row
// upsert is the only atomicity the table needs.
func (s *DeploymentPositionStore) Upsert(p *DeploymentPosition) error {
	_, err := s.db.Exec(`
		INSERT INTO deployment_positions (deployment_id, symbol, quantity, avg_entry_price, partial_exited, peak_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(deployment_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			avg_entry_price = excluded.avg_entry_price,
			partial_exited = excluded.partial_exited,
			peak_price = excluded.peak_price,
			updated_at = excluded.updated_at
	`, p.DeploymentID, p.Symbol, p.Quantity, p.AvgEntryPrice, p.PartialExited, p.PeakPrice, formatTime(time.Now()))
	if err != nil {
		return errs.Repository("failed to upsert deployment position", err)
	}
	return nil
}

// Get get the row for (deployment_id, symbol); ok=false when no position.
func (s *DeploymentPositionStore) Get(deploymentID, symbol string) (*DeploymentPosition, bool, error) {
	var p DeploymentPosition
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT deployment_id, symbol, quantity, avg_entry_price, partial_exited, peak_price, updated_at
		FROM deployment_positions WHERE deployment_id = ? AND symbol = ?
	`, deploymentID, symbol).Scan(&p.DeploymentID, &p.Symbol, &p.Quantity, &p.AvgEntryPrice,
		&p.PartialExited, &p.PeakPrice, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Repository("failed to read deployment position", err)
	}
	p.UpdatedAt = parseTime(updatedAt)
	return &p, true, nil
}

// List get all of a deployment's open positions
func (s *DeploymentPositionStore) List(deploymentID string) ([]*DeploymentPosition, error) {
	rows, err := s.db.Query(`
		SELECT deployment_id, symbol, quantity, avg_entry_price, partial_exited, peak_price, updated_at
		FROM deployment_positions WHERE deployment_id = ? ORDER BY symbol ASC
	`, deploymentID)
	if err != nil {
		return nil, errs.Repository("failed to list deployment positions", err)
	}
	defer rows.Close()

	var out []*DeploymentPosition
	for rows.Next() {
		var p DeploymentPosition
		var updatedAt string
		err := rows.Scan(&p.DeploymentID, &p.Symbol, &p.Quantity, &p.AvgEntryPrice,
			&p.PartialExited, &p.PeakPrice, &updatedAt)
		if err != nil {
			return nil, errs.Repository("failed to read deployment position", err)
		}
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, &p)
	}
	return out, nil
}

// Delete remove the row, used when quantity reaches 0.
func (s *DeploymentPositionStore) Delete(deploymentID, symbol string) error {
	_, err := s.db.Exec(`DELETE FROM deployment_positions WHERE deployment_id = ? AND symbol = ?`,
		deploymentID, symbol)
	if err != nil {
		return errs.Repository("failed to delete deployment position", err)
	}
	return nil
}
