package store

import (
	"database/sql"
	"time"

	"github.com/bhargavap21/tradeforge/errs"
)

// Deployment statuses (spec.md §3 "Deployment"). stopped and error are
// terminal with respect to execution; paused ↔ running is reversible.
const (
	StatusRunning = "running"
	StatusPaused  = "paused"
	StatusStopped = "stopped"
	StatusError   = "error"
)

// DeploymentStore deployment storage
type DeploymentStore struct {
	db *sql.DB
}

type Deployment struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	BotID              string     `json:"bot_id"`
	Status             string     `json:"status"`
	InitialCapital     float64    `json:"initial_capital"`
	CurrentCapital     float64    `json:"current_capital"`
	TotalPnL           float64    `json:"total_pnl"`
	TotalReturnPct     float64    `json:"total_return_pct"`
	ExecutionFrequency string     `json:"execution_frequency"` // 1m, 5m, 15m, 30m, 1h
	MaxPositionSize    *float64   `json:"max_position_size,omitempty"`
	DailyLossLimit     *float64   `json:"daily_loss_limit,omitempty"`
	BrokerAccountRef   string     `json:"broker_account_ref,omitempty"`
	DeploymentToken    string     `json:"deployment_token,omitempty"`
	DeployedAt         time.Time  `json:"deployed_at"`
	StoppedAt          *time.Time `json:"stopped_at,omitempty"`
	LastExecutionAt    *time.Time `json:"last_execution_at,omitempty"`
}

func (s *DeploymentStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			bot_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			initial_capital REAL NOT NULL,
			current_capital REAL NOT NULL,
			total_pnl REAL NOT NULL DEFAULT 0,
			total_return_pct REAL NOT NULL DEFAULT 0,
			execution_frequency TEXT NOT NULL DEFAULT '5m',
			max_position_size REAL,
			daily_loss_limit REAL,
			broker_account_ref TEXT DEFAULT '',
			deployment_token TEXT DEFAULT '',
			deployed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			stopped_at DATETIME,
			last_execution_at DATETIME
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_deployments_user_id ON deployments(user_id)`)
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployments(status)`)
	return nil
}

// Create create a deployment
func (s *DeploymentStore) Create(d *Deployment) error {
	_, err := s.db.Exec(`
		INSERT INTO deployments (id, user_id, bot_id, status, initial_capital, current_capital,
			execution_frequency, max_position_size, daily_loss_limit, broker_account_ref, deployment_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.UserID, d.BotID, d.Status, d.InitialCapital, d.CurrentCapital,
		d.ExecutionFrequency, d.MaxPositionSize, d.DailyLossLimit, d.BrokerAccountRef, d.DeploymentToken)
	if err != nil {
		return errs.Repository("failed to create deployment", err)
	}
	return nil
}

// Get get a single deployment scoped by owner
func (s *DeploymentStore) Get(userID, id string) (*Deployment, error) {
	return scanDeployment(s.db.QueryRow(deploymentSelect+` WHERE id = ? AND user_id = ?`, id, userID))
}

// GetByID get a deployment without owner scoping (engine-internal reads)
func (s *DeploymentStore) GetByID(id string) (*Deployment, error) {
	return scanDeployment(s.db.QueryRow(deploymentSelect+` WHERE id = ?`, id))
}

// List get user's deployments, newest first
func (s *DeploymentStore) List(userID string) ([]*Deployment, error) {
	rows, err := s.db.Query(deploymentSelect+` WHERE user_id = ? ORDER BY deployed_at DESC`, userID)
	if err != nil {
		return nil, errs.Repository("failed to list deployments", err)
	}
	return scanDeployments(rows)
}

// ListByStatus get all deployments with the given status, across users —
// the live engine's per-minute sync loop reads status = running this way.
func (s *DeploymentStore) ListByStatus(status string) ([]*Deployment, error) {
	rows, err := s.db.Query(deploymentSelect+` WHERE status = ?`, status)
	if err != nil {
		return nil, errs.Repository("failed to list deployments by status", err)
	}
	return scanDeployments(rows)
}

// UpdateStatus transitions a deployment's status, stamping stopped_at for
// terminal transitions.
func (s *DeploymentStore) UpdateStatus(id, status string) error {
	var err error
	if status == StatusStopped || status == StatusError {
		_, err = s.db.Exec(`UPDATE deployments SET status = ?, stopped_at = ? WHERE id = ?`,
			status, formatTime(time.Now()), id)
	} else {
		_, err = s.db.Exec(`UPDATE deployments SET status = ?, stopped_at = NULL WHERE id = ?`, status, id)
	}
	if err != nil {
		return errs.Repository("failed to update deployment status", err)
	}
	return nil
}

// UpdateCapital syncs the aggregate virtual-portfolio fields after a tick
// (spec.md §4.9 "kept in sync with this reconstruction after each tick").
func (s *DeploymentStore) UpdateCapital(id string, currentCapital, totalPnL, totalReturnPct float64) error {
	_, err := s.db.Exec(`
		UPDATE deployments SET current_capital = ?, total_pnl = ?, total_return_pct = ? WHERE id = ?
	`, currentCapital, totalPnL, totalReturnPct, id)
	if err != nil {
		return errs.Repository("failed to update deployment capital", err)
	}
	return nil
}

// UpdateLastExecution stamps last_execution_at.
func (s *DeploymentStore) UpdateLastExecution(id string, t time.Time) error {
	_, err := s.db.Exec(`UPDATE deployments SET last_execution_at = ? WHERE id = ?`, formatTime(t), id)
	if err != nil {
		return errs.Repository("failed to update last execution", err)
	}
	return nil
}

const deploymentSelect = `
	SELECT id, user_id, bot_id, status, initial_capital, current_capital, total_pnl, total_return_pct,
		execution_frequency, max_position_size, daily_loss_limit, broker_account_ref, deployment_token,
		deployed_at, stopped_at, last_execution_at
	FROM deployments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeploymentFrom(sc rowScanner) (*Deployment, error) {
	var d Deployment
	var deployedAt string
	var stoppedAt, lastExecutionAt sql.NullString
	err := sc.Scan(&d.ID, &d.UserID, &d.BotID, &d.Status, &d.InitialCapital, &d.CurrentCapital,
		&d.TotalPnL, &d.TotalReturnPct, &d.ExecutionFrequency, &d.MaxPositionSize, &d.DailyLossLimit,
		&d.BrokerAccountRef, &d.DeploymentToken, &deployedAt, &stoppedAt, &lastExecutionAt)
	if err == sql.ErrNoRows {
		return nil, errs.Repository("deployment not found", err)
	}
	if err != nil {
		return nil, errs.Repository("failed to read deployment", err)
	}
	d.DeployedAt = parseTime(deployedAt)
	if stoppedAt.Valid {
		t := parseTime(stoppedAt.String)
		d.StoppedAt = &t
	}
	if lastExecutionAt.Valid {
		t := parseTime(lastExecutionAt.String)
		d.LastExecutionAt = &t
	}
	return &d, nil
}

func scanDeployment(row *sql.Row) (*Deployment, error) {
	return scanDeploymentFrom(row)
}

func scanDeployments(rows *sql.Rows) ([]*Deployment, error) {
	defer rows.Close()
	var out []*Deployment
	for rows.Next() {
		d, err := scanDeploymentFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
