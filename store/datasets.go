package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bhargavap21/tradeforge/errs"
	"github.com/bhargavap21/tradeforge/sentiment"
)

const dateLayout = "2006-01-02"

// DatasetStore trading dataset cache storage. Implements sentiment.Cache:
// lookups match rows whose [start, end] covers the requested date, and
// Upsert is an idempotent merge keyed on (ticker, source, start, end)
// (spec.md §4.6, and the §9 note requiring a batched upsert rather than
// the source's per-date stub).
type DatasetStore struct {
	db *sql.DB
}

type DatasetRow struct {
	ID         string                           `json:"id"`
	Ticker     string                           `json:"ticker"`
	DataSource string                           `json:"data_source"`
	StartDate  time.Time                        `json:"start_date"`
	EndDate    time.Time                        `json:"end_date"`
	Data       map[string]sentiment.CacheEntry  `json:"data"`
	Metadata   map[string]any                   `json:"metadata"`
	SessionID  string                           `json:"session_id,omitempty"`
	BotID      string                           `json:"bot_id,omitempty"`
}

func (s *DatasetStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trading_datasets (
			id TEXT PRIMARY KEY,
			ticker TEXT NOT NULL,
			data_source TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			metadata TEXT NOT NULL DEFAULT '{}',
			session_id TEXT DEFAULT '',
			bot_id TEXT DEFAULT '',
			UNIQUE (ticker, data_source, start_date, end_date)
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_trading_datasets_lookup ON trading_datasets(ticker, data_source)`)
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_trading_datasets_session_id ON trading_datasets(session_id)`)
	return nil
}

// Lookup find a covering row's entry for date, if any.
func (s *DatasetStore) Lookup(ticker string, source sentiment.Source, date time.Time) (*sentiment.CacheEntry, bool) {
	day := date.UTC().Format(dateLayout)
	rows, err := s.db.Query(`
		SELECT data FROM trading_datasets
		WHERE ticker = ? AND data_source = ? AND start_date <= ? AND end_date >= ?
	`, ticker, string(source), day, day)
	if err != nil {
		return nil, false
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		var data map[string]sentiment.CacheEntry
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		if entry, ok := data[day]; ok {
			return &entry, true
		}
	}
	return nil, false
}

// Upsert insert or merge a dataset row on its logical key. Existing per-date
// entries survive; incoming entries win on date collision.
func (s *DatasetStore) Upsert(row sentiment.Row) error {
	start := row.Start.UTC().Format(dateLayout)
	end := row.End.UTC().Format(dateLayout)

	tx, err := s.db.Begin()
	if err != nil {
		return errs.Repository("failed to begin dataset upsert", err)
	}
	defer tx.Rollback()

	var id, existingData string
	err = tx.QueryRow(`
		SELECT id, data FROM trading_datasets
		WHERE ticker = ? AND data_source = ? AND start_date = ? AND end_date = ?
	`, row.Ticker, string(row.DataSource), start, end).Scan(&id, &existingData)

	merged := make(map[string]sentiment.CacheEntry)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
	case err != nil:
		return errs.Repository("failed to read dataset row", err)
	default:
		if err := json.Unmarshal([]byte(existingData), &merged); err != nil {
			merged = make(map[string]sentiment.CacheEntry)
		}
	}
	for day, entry := range row.Data {
		merged[day] = entry
	}

	dataJSON, err := json.Marshal(merged)
	if err != nil {
		return errs.Repository("failed to serialize dataset data", err)
	}
	metaJSON, err := json.Marshal(row.Metadata)
	if err != nil {
		return errs.Repository("failed to serialize dataset metadata", err)
	}

	_, err = tx.Exec(`
		INSERT INTO trading_datasets (id, ticker, data_source, start_date, end_date, data, metadata, session_id, bot_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, data_source, start_date, end_date) DO UPDATE SET
			data = excluded.data,
			metadata = excluded.metadata,
			session_id = CASE WHEN excluded.session_id != '' THEN excluded.session_id ELSE trading_datasets.session_id END
	`, id, row.Ticker, string(row.DataSource), start, end, string(dataJSON), string(metaJSON), row.SessionID, row.BotID)
	if err != nil {
		return errs.Repository("failed to upsert dataset row", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.Repository("failed to commit dataset upsert", err)
	}
	return nil
}

// AssociateSession link every row created under sessionID to botID
// (spec.md §4.6 "when a workflow later saves a bot").
func (s *DatasetStore) AssociateSession(sessionID, botID string) error {
	if sessionID == "" {
		return nil
	}
	_, err := s.db.Exec(`UPDATE trading_datasets SET bot_id = ? WHERE session_id = ?`, botID, sessionID)
	if err != nil {
		return errs.Repository("failed to associate datasets with bot", err)
	}
	return nil
}

// ListBySession get rows created under a workflow session.
func (s *DatasetStore) ListBySession(sessionID string) ([]*DatasetRow, error) {
	rows, err := s.db.Query(`
		SELECT id, ticker, data_source, start_date, end_date, data, metadata, session_id, bot_id
		FROM trading_datasets WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return nil, errs.Repository("failed to list dataset rows", err)
	}
	defer rows.Close()

	var out []*DatasetRow
	for rows.Next() {
		var r DatasetRow
		var start, end, data, meta string
		if err := rows.Scan(&r.ID, &r.Ticker, &r.DataSource, &start, &end, &data, &meta, &r.SessionID, &r.BotID); err != nil {
			return nil, errs.Repository("failed to read dataset row", err)
		}
		r.StartDate, _ = time.Parse(dateLayout, start)
		r.EndDate, _ = time.Parse(dateLayout, end)
		json.Unmarshal([]byte(data), &r.Data)
		json.Unmarshal([]byte(meta), &r.Metadata)
		out = append(out, &r)
	}
	return out, nil
}
