package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bhargavap21/tradeforge/security"
)

// HTTPProvider is a generic vendor-agnostic Provider: it fetches a JSON
// array of {text, score} items from a configured URL template, guarded by
// the SSRF allowlist (spec.md SPEC_FULL.md §1.1 "SSRF-safe outbound
// HTTP"), grounded on the teacher's decision/engine.go external-source
// fetch idiom (security.ValidateURL / SafeGet) generalized to one
// provider per sentiment source rather than one per strategy-config URL.
type HTTPProvider struct {
	source  Source
	urlTmpl string // must contain {symbol} and {date}
	apiKey  string
	timeout time.Duration
}

func NewHTTPProvider(source Source, urlTmpl, apiKey string) *HTTPProvider {
	return &HTTPProvider{source: source, urlTmpl: urlTmpl, apiKey: apiKey, timeout: 15 * time.Second}
}

func (p *HTTPProvider) Source() Source { return p.source }

type httpProviderItem struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

func (p *HTTPProvider) Fetch(ctx context.Context, symbol string, date time.Time) ([]Post, error) {
	url := strings.NewReplacer("{symbol}", symbol, "{date}", date.Format("2006-01-02")).Replace(p.urlTmpl)
	if p.apiKey != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url = url + sep + "auth=" + p.apiKey
	}

	resp, err := security.SafeGet(url, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s provider request failed: %w", p.source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s provider error (status %d): %s", p.source, resp.StatusCode, string(body))
	}

	var items []httpProviderItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse %s provider response: %w", p.source, err)
	}

	posts := make([]Post, 0, len(items))
	for _, it := range items {
		posts = append(posts, Post{Text: it.Text, Score: it.Score})
	}
	return posts, nil
}
