package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/security"
)

const alpacaDataBaseURL = "https://data.alpaca.markets/v2/stocks"

// alpacaBar mirrors the teacher's AlpacaBar JSON shape
// (market/historical.go).
type alpacaBar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

type alpacaBarsResponse struct {
	Bars          []alpacaBar `json:"bars"`
	NextPageToken string      `json:"next_page_token"`
}

// AlpacaProvider fetches daily OHLCV bars from the Alpaca market-data API.
// HTTP/auth idiom grounded on trader/alpaca_trader.go's doRequest.
type AlpacaProvider struct {
	APIKey    string
	SecretKey string
}

func NewAlpacaProvider(apiKey, secretKey string) *AlpacaProvider {
	return &AlpacaProvider{APIKey: apiKey, SecretKey: secretKey}
}

func (p *AlpacaProvider) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	symbol = Normalize(symbol)
	url := fmt.Sprintf("%s/%s/bars?timeframe=1Day&start=%s&end=%s&limit=10000",
		alpacaDataBaseURL, symbol, start.Format(time.RFC3339), end.Format(time.RFC3339))

	if err := security.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("market data URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", p.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", p.SecretKey)

	client := security.SafeHTTPClient(30 * time.Second)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bars request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read bars response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("alpaca bars error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed alpacaBarsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse bars response: %w", err)
	}
	if len(parsed.Bars) == 0 {
		return nil, &ErrNoData{Symbol: symbol}
	}

	bars := make([]Bar, 0, len(parsed.Bars))
	for _, b := range parsed.Bars {
		ts, err := time.Parse(time.RFC3339, b.Timestamp)
		if err != nil {
			logger.Warnf("skipping bar with unparsable timestamp %q for %s", b.Timestamp, symbol)
			continue
		}
		bars = append(bars, Bar{
			Symbol: symbol, Timestamp: ts,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func (p *AlpacaProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = Normalize(symbol)
	url := fmt.Sprintf("%s/%s/trades/latest", alpacaDataBaseURL, symbol)
	if err := security.ValidateURL(url); err != nil {
		return 0, fmt.Errorf("market data URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("APCA-API-KEY-ID", p.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", p.SecretKey)

	client := security.SafeHTTPClient(10 * time.Second)
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("alpaca quote error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse quote response: %w", err)
	}
	return parsed.Trade.Price, nil
}

// isStockSymbol mirrors the teacher's heuristic in decision/engine.go
// fetchMarketDataWithStrategy for distinguishing stock tickers from crypto
// pairs. Nothing in this repository calls it.
func isStockSymbol(symbol string) bool {
	symbol = strings.ToUpper(symbol)
	for _, suffix := range []string{"USDT", "BUSD", "USDC", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, suffix) {
			return false
		}
	}
	if len(symbol) > 5 {
		return false
	}
	for _, r := range symbol {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
