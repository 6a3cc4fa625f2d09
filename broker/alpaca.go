package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/security"
)

// Alpaca is the thin adapter to Alpaca's paper/live trading REST API
// (spec.md §4.4 "Live broker"). HTTP/auth shape is adapted from the
// teacher's trader/alpaca_trader.go AlpacaTrader.doRequest.
type Alpaca struct {
	apiKey    string
	secretKey string
	baseURL   string
}

func NewAlpaca(apiKey, secretKey string, paper bool) *Alpaca {
	baseURL := "https://api.alpaca.markets"
	if paper {
		baseURL = "https://paper-api.alpaca.markets"
	}
	return &Alpaca{apiKey: apiKey, secretKey: secretKey, baseURL: baseURL}
}

func (a *Alpaca) doRequest(method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(b)
	}

	url := a.baseURL + path
	if err := security.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("broker URL rejected: %w", err)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)
	req.Header.Set("Content-Type", "application/json")

	client := security.SafeHTTPClient(30 * time.Second)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("alpaca API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (a *Alpaca) GetAccount() (*Account, error) {
	resp, err := a.doRequest("GET", "/v2/account", nil)
	if err != nil {
		return nil, fmt.Errorf("get account failed: %w", err)
	}
	var raw struct {
		Equity         string `json:"equity"`
		Cash           string `json:"cash"`
		BuyingPower    string `json:"buying_power"`
		PortfolioValue string `json:"portfolio_value"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse account: %w", err)
	}
	equity, _ := strconv.ParseFloat(raw.Equity, 64)
	cash, _ := strconv.ParseFloat(raw.Cash, 64)
	buyingPower, _ := strconv.ParseFloat(raw.BuyingPower, 64)
	portfolioValue, _ := strconv.ParseFloat(raw.PortfolioValue, 64)
	return &Account{
		Equity:         equity,
		Cash:           cash,
		BuyingPower:    buyingPower,
		PortfolioValue: portfolioValue,
		PositionsValue: portfolioValue - cash,
	}, nil
}

type alpacaPosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	CurrentPrice  string `json:"current_price"`
	MarketValue   string `json:"market_value"`
	CostBasis     string `json:"cost_basis"`
	UnrealizedPL  string `json:"unrealized_pl"`
	UnrealizedPLPercent string `json:"unrealized_plpc"`
}

func toPosition(p alpacaPosition) *Position {
	qty, _ := strconv.ParseFloat(p.Qty, 64)
	entry, _ := strconv.ParseFloat(p.AvgEntryPrice, 64)
	cur, _ := strconv.ParseFloat(p.CurrentPrice, 64)
	mv, _ := strconv.ParseFloat(p.MarketValue, 64)
	cb, _ := strconv.ParseFloat(p.CostBasis, 64)
	upl, _ := strconv.ParseFloat(p.UnrealizedPL, 64)
	uplPct, _ := strconv.ParseFloat(p.UnrealizedPLPercent, 64)
	return &Position{
		Symbol: p.Symbol, Quantity: qty, AvgEntryPrice: entry, CurrentPrice: cur,
		MarketValue: mv, CostBasis: cb, UnrealizedPL: upl, UnrealizedPLPct: uplPct,
	}
}

func (a *Alpaca) GetPosition(symbol string) (*Position, bool, error) {
	resp, err := a.doRequest("GET", "/v2/positions/"+symbol, nil)
	if err != nil {
		return nil, false, nil // Alpaca 404s when no position exists.
	}
	var raw alpacaPosition
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, false, fmt.Errorf("failed to parse position: %w", err)
	}
	return toPosition(raw), true, nil
}

func (a *Alpaca) GetAllPositions() ([]*Position, error) {
	resp, err := a.doRequest("GET", "/v2/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("get positions failed: %w", err)
	}
	var raw []alpacaPosition
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse positions: %w", err)
	}
	out := make([]*Position, 0, len(raw))
	for _, p := range raw {
		out = append(out, toPosition(p))
	}
	return out, nil
}

func (a *Alpaca) GetCurrentPrice(symbol string) (float64, error) {
	resp, err := a.doRequest("GET", "/v2/stocks/"+symbol+"/trades/latest", nil)
	if err != nil {
		return 0, fmt.Errorf("get quote failed: %w", err)
	}
	var raw struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return 0, fmt.Errorf("failed to parse quote: %w", err)
	}
	return raw.Trade.Price, nil
}

func (a *Alpaca) SubmitOrder(order Order) (*Order, error) {
	side := "buy"
	if order.Side == SideSell {
		side = "sell"
	}
	body := map[string]interface{}{
		"symbol":        order.Symbol,
		"qty":           strconv.FormatFloat(order.Quantity, 'f', -1, 64),
		"side":          side,
		"type":          "market",
		"time_in_force": "day",
	}
	resp, err := a.doRequest("POST", "/v2/orders", body)
	if err != nil {
		order.Status = StatusRejected
		return &order, fmt.Errorf("order rejected: %w", err)
	}
	var raw struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		FilledQty string `json:"filled_qty"`
		FilledAvg string `json:"filled_avg_price"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return &order, fmt.Errorf("failed to parse order response: %w", err)
	}
	order.ID = raw.ID
	order.Status = mapStatus(raw.Status)
	order.FilledQty, _ = strconv.ParseFloat(raw.FilledQty, 64)
	order.FilledAvgPrice, _ = strconv.ParseFloat(raw.FilledAvg, 64)
	logger.Infof("[alpaca] submitted %s %s qty=%.4f -> %s", side, order.Symbol, order.Quantity, order.Status)
	return &order, nil
}

func mapStatus(s string) OrderStatus {
	switch s {
	case "filled":
		return StatusFilled
	case "partially_filled":
		return StatusPartiallyFilled
	case "canceled":
		return StatusCancelled
	case "rejected":
		return StatusRejected
	default:
		return StatusPending
	}
}

func (a *Alpaca) CancelOrder(id string) error {
	_, err := a.doRequest("DELETE", "/v2/orders/"+id, nil)
	return err
}

func (a *Alpaca) GetOrder(id string) (*Order, error) {
	resp, err := a.doRequest("GET", "/v2/orders/"+id, nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		ID        string `json:"id"`
		Symbol    string `json:"symbol"`
		Status    string `json:"status"`
		FilledQty string `json:"filled_qty"`
		FilledAvg string `json:"filled_avg_price"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse order: %w", err)
	}
	o := &Order{ID: raw.ID, Symbol: raw.Symbol, Status: mapStatus(raw.Status)}
	o.FilledQty, _ = strconv.ParseFloat(raw.FilledQty, 64)
	o.FilledAvgPrice, _ = strconv.ParseFloat(raw.FilledAvg, 64)
	return o, nil
}

func (a *Alpaca) ClosePosition(symbol string) (*Order, error) {
	resp, err := a.doRequest("DELETE", "/v2/positions/"+symbol, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to close position: %w", err)
	}
	var raw struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	json.Unmarshal(resp, &raw)
	return &Order{ID: raw.ID, Symbol: symbol, Side: SideSell, Status: mapStatus(raw.Status)}, nil
}

func (a *Alpaca) CloseAllPositions() ([]*Order, error) {
	_, err := a.doRequest("DELETE", "/v2/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to close all positions: %w", err)
	}
	return nil, nil
}
