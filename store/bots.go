package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/bhargavap21/tradeforge/errs"
)

// BotStore trading bot artifact storage. A bot is the saved output of one
// completed workflow session: the normalized strategy spec, the backtest
// result, and the insights config, linked to the session that produced it
// via session_id (spec.md §6 "trading_bots.session_id links a bot to the
// workflow session that created it").
type BotStore struct {
	db *sql.DB
}

type Bot struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Strategy    string    `json:"strategy"` // normalized spec in JSON format
	Backtest    string    `json:"backtest"` // full backtest result in JSON format
	Insights    string    `json:"insights"` // insights config in JSON format
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *BotStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trading_bots (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			description TEXT DEFAULT '',
			strategy TEXT NOT NULL DEFAULT '{}',
			backtest TEXT NOT NULL DEFAULT '{}',
			insights TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_trading_bots_user_id ON trading_bots(user_id)`)
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_trading_bots_session_id ON trading_bots(session_id)`)
	return nil
}

// Create create a bot
func (s *BotStore) Create(b *Bot) error {
	_, err := s.db.Exec(`
		INSERT INTO trading_bots (id, user_id, session_id, name, description, strategy, backtest, insights)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.UserID, b.SessionID, b.Name, b.Description, b.Strategy, b.Backtest, b.Insights)
	if err != nil {
		return errs.Repository("failed to create bot", err)
	}
	return nil
}

// Get get a single bot
func (s *BotStore) Get(userID, id string) (*Bot, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, session_id, name, description, strategy, backtest, insights, created_at, updated_at
		FROM trading_bots WHERE id = ? AND user_id = ?
	`, id, userID)
	return scanBot(row)
}

// List get user's bot list, newest first
func (s *BotStore) List(userID string) ([]*Bot, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, session_id, name, description, strategy, backtest, insights, created_at, updated_at
		FROM trading_bots WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, errs.Repository("failed to list bots", err)
	}
	defer rows.Close()

	var bots []*Bot
	for rows.Next() {
		b, err := scanBotRows(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, nil
}

// Delete delete a bot
func (s *BotStore) Delete(userID, id string) error {
	_, err := s.db.Exec(`DELETE FROM trading_bots WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return errs.Repository("failed to delete bot", err)
	}
	return nil
}

// ParseStrategy parse the stored strategy spec JSON into a raw map for
// normalization by the strategy package.
func (b *Bot) ParseStrategy() (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(b.Strategy), &raw); err != nil {
		return nil, errs.Repository("failed to parse bot strategy", err)
	}
	return raw, nil
}

func scanBot(row *sql.Row) (*Bot, error) {
	var b Bot
	var createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.UserID, &b.SessionID, &b.Name, &b.Description,
		&b.Strategy, &b.Backtest, &b.Insights, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.Repository("bot not found", err)
	}
	if err != nil {
		return nil, errs.Repository("failed to read bot", err)
	}
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func scanBotRows(rows *sql.Rows) (*Bot, error) {
	var b Bot
	var createdAt, updatedAt string
	err := rows.Scan(&b.ID, &b.UserID, &b.SessionID, &b.Name, &b.Description,
		&b.Strategy, &b.Backtest, &b.Insights, &createdAt, &updatedAt)
	if err != nil {
		return nil, errs.Repository("failed to read bot", err)
	}
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}
