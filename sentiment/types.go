// Package sentiment implements the sentiment adapter and dataset cache of
// spec.md §4.6: a per-(symbol, source, date) sentiment scalar, resolved
// cache-first with score-weighted live retrieval as a fallback, under a
// strict no-cross-source-fallback rule and a per-provider rolling-window
// rate limit. TTL-cache idiom is grounded on the teacher's
// market/ai100_client.go (cacheMu sync.RWMutex / cacheExpiry time.Time).
package sentiment

import (
	"context"
	"time"
)

// Source names a sentiment/news provider (spec.md §4.6). The adapter never
// substitutes one for another (spec.md §8 "source strictness").
type Source string

const (
	SourceReddit  Source = "reddit"
	SourceTwitter Source = "twitter"
	SourceNews    Source = "news"
)

// Post is one raw social/news item a Provider yields for scoring.
type Post struct {
	Text  string
	Score float64 // upstream score (upvotes, retweets, engagement, ...)
}

// Provider fetches raw posts for a symbol/date from one named source. Each
// concrete Provider only ever serves its own Source() — the Adapter
// enforces strictness by keying providers on it, never falling through.
type Provider interface {
	Source() Source
	Fetch(ctx context.Context, symbol string, date time.Time) ([]Post, error)
}

// TextSentimentFunc scores one piece of text into [-1, 1]. The default
// (see lexicon.go) is a classic lexicon/VADER-style compound scorer;
// callers may plug in a different scorer.
type TextSentimentFunc func(text string) float64

// CacheEntry is one date's resolved value within a dataset cache row.
type CacheEntry struct {
	Sentiment float64 `json:"sentiment"`
}

// Row mirrors spec.md §3 "Dataset cache row": `(ticker, data_source,
// start_date, end_date, data: date → {sentiment, ...}, metadata,
// session_id?, bot_id?)`.
type Row struct {
	Ticker     string
	DataSource Source
	Start      time.Time
	End        time.Time
	Data       map[string]CacheEntry // date (2006-01-02) -> entry
	Metadata   map[string]any
	SessionID  string
	BotID      string
}

// Cache is the dataset-cache contract. Upsert is idempotent: the logical
// key is (ticker, source, start, end); repeated upserts merge per-date
// entries rather than overwrite the row (spec.md §4.6).
type Cache interface {
	Lookup(ticker string, source Source, date time.Time) (*CacheEntry, bool)
	Upsert(row Row) error
	// AssociateSession links every cache row created under sessionID to
	// botID, run when a workflow saves its resulting bot (spec.md §4.6
	// last bullet).
	AssociateSession(sessionID, botID string) error
}
