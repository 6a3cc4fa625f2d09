package sentiment

import (
	"context"
	"math"
	"time"

	"github.com/bhargavap21/tradeforge/logger"
)

// Adapter implements spec.md §4.6's sentiment() interface: cache lookup
// first, falling through to score-weighted live retrieval from the single
// provider registered for the requested source — never any other.
type Adapter struct {
	cache         Cache
	providers     map[Source]Provider
	limiters      map[Source]*RateLimiter
	textSentiment TextSentimentFunc
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

func WithTextSentiment(fn TextSentimentFunc) Option {
	return func(a *Adapter) { a.textSentiment = fn }
}

// WithProvider registers a provider for its own Source, and a rolling rate
// limiter bounding calls to it (spec.md §4.6 "each external provider has a
// rolling-window call counter").
func WithProvider(p Provider, window time.Duration, cap int) Option {
	return func(a *Adapter) {
		a.providers[p.Source()] = p
		a.limiters[p.Source()] = NewRateLimiter(window, cap)
	}
}

func NewAdapter(cache Cache, opts ...Option) *Adapter {
	a := &Adapter{
		cache:         cache,
		providers:     make(map[Source]Provider),
		limiters:      make(map[Source]*RateLimiter),
		textSentiment: LexiconSentiment,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sentiment resolves the sentiment scalar for (symbol, source, date),
// returning nil when no data is available — never a synthesized zero
// (spec.md §4.6, §8 "source strictness").
func (a *Adapter) Sentiment(ctx context.Context, symbol string, source Source, date time.Time) (*float64, error) {
	if entry, ok := a.cache.Lookup(symbol, source, date); ok {
		v := entry.Sentiment
		return &v, nil
	}

	provider, ok := a.providers[source]
	if !ok {
		// Source strictness: no provider registered for this exact source
		// means no data — never fall back to a different source's data.
		return nil, nil
	}

	if limiter, ok := a.limiters[source]; ok {
		limiter.Wait()
	}

	posts, err := provider.Fetch(ctx, symbol, date)
	if err != nil {
		logger.Warnf("sentiment: %s fetch failed for %s on %s: %v", source, symbol, date.Format("2006-01-02"), err)
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}

	score := a.weightedScore(posts)
	if err := a.cache.Upsert(Row{
		Ticker: symbol, DataSource: source, Start: date, End: date,
		Data: map[string]CacheEntry{date.Format("2006-01-02"): {Sentiment: score}},
	}); err != nil {
		logger.Warnf("sentiment: failed to cache %s/%s/%s: %v", symbol, source, date.Format("2006-01-02"), err)
	}
	return &score, nil
}

// AsLookup adapts Sentiment to the condition package's untyped
// SentimentLookup signature, for wiring into the backtest core and the
// strategy runtime (both of which are source-agnostic at the type level).
func (a *Adapter) AsLookup() func(symbol, source string, date time.Time) (*float64, error) {
	return func(symbol, source string, date time.Time) (*float64, error) {
		return a.Sentiment(context.Background(), symbol, Source(source), date)
	}
}

// weightedScore aggregates posts with weight log10(post_score + 10),
// guarding non-positive scores (spec.md §4.6 "Retrieval is score-weighted").
func (a *Adapter) weightedScore(posts []Post) float64 {
	var weightedSum, weightSum float64
	for _, p := range posts {
		base := p.Score + 10
		if base <= 0 {
			base = 1 // guard non-positive scores
		}
		weight := math.Log10(base)
		weightedSum += weight * a.textSentiment(p.Text)
		weightSum += weight
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}
