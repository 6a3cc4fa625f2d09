package sentiment

import (
	"sync"
	"time"
)

// MemCache is an in-memory reference Cache implementation — used by tests
// and as the default when no sqlite-backed repo.DatasetCache is wired.
// Grounded on the teacher's market/ai100_client.go TTL-cache pattern
// (cacheMu sync.RWMutex) generalized from one vendor's single TTL entry to
// a keyed set of date-range rows.
type MemCache struct {
	mu   sync.RWMutex
	rows map[string]*Row // key: ticker|source|start|end
}

func NewMemCache() *MemCache {
	return &MemCache{rows: make(map[string]*Row)}
}

func rowKey(ticker string, source Source, start, end time.Time) string {
	return ticker + "|" + string(source) + "|" + start.Format("2006-01-02") + "|" + end.Format("2006-01-02")
}

func (c *MemCache) Lookup(ticker string, source Source, date time.Time) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dateKey := date.Format("2006-01-02")
	for _, row := range c.rows {
		if row.Ticker != ticker || row.DataSource != source {
			continue
		}
		if date.Before(row.Start) || date.After(row.End) {
			continue
		}
		if entry, ok := row.Data[dateKey]; ok {
			cp := entry
			return &cp, true
		}
	}
	return nil, false
}

func (c *MemCache) Upsert(row Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := rowKey(row.Ticker, row.DataSource, row.Start, row.End)
	existing, ok := c.rows[key]
	if !ok {
		cp := row
		cp.Data = make(map[string]CacheEntry, len(row.Data))
		for k, v := range row.Data {
			cp.Data[k] = v
		}
		c.rows[key] = &cp
		return nil
	}
	for k, v := range row.Data {
		existing.Data[k] = v
	}
	if row.SessionID != "" {
		existing.SessionID = row.SessionID
	}
	if row.BotID != "" {
		existing.BotID = row.BotID
	}
	return nil
}

func (c *MemCache) AssociateSession(sessionID, botID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.rows {
		if row.SessionID == sessionID {
			row.BotID = botID
		}
	}
	return nil
}
