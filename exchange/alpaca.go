// exchange/alpaca.go
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"riskgate/logs"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

var _ Client = (*AlpacaClient)(nil)

// AlpacaClient talks to the Alpaca trading and market data REST APIs.
type AlpacaClient struct {
	trading *resty.Client
	data    *resty.Client
	feed    string
	now     func() time.Time
}

type alpacaError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type alpacaClock struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// Alpaca encodes most numerics as strings; decimal accepts both forms.
type alpacaAccount struct {
	Equity      decimal.Decimal `json:"equity"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	Status      string          `json:"status"`
}

type alpacaPosition struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
}

type alpacaOrderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type alpacaOrder struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Symbol         string              `json:"symbol"`
	Qty            decimal.Decimal     `json:"qty"`
	FilledQty      decimal.Decimal     `json:"filled_qty"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	Side           string              `json:"side"`
	Type           string              `json:"type"`
	TimeInForce    string              `json:"time_in_force"`
	Status         string              `json:"status"`
	SubmittedAt    time.Time           `json:"submitted_at"`
}

type alpacaBar struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V float64   `json:"v"`
}

type alpacaBarsResponse struct {
	Symbol string      `json:"symbol"`
	Bars   []alpacaBar `json:"bars"`
}

type alpacaLatestTrade struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		T time.Time `json:"t"`
		P float64   `json:"p"`
		S float64   `json:"s"`
	} `json:"trade"`
}

// NewAlpacaClient creates a client for the given trading and data base URLs.
func NewAlpacaClient(apiKey, apiSecret, baseURL, dataURL string, timeoutSeconds int) *AlpacaClient {
	timeout := time.Duration(timeoutSeconds) * time.Second
	newRest := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimRight(base, "/")).
			SetTimeout(timeout).
			SetHeader("APCA-API-KEY-ID", apiKey).
			SetHeader("APCA-API-SECRET-KEY", apiSecret).
			SetHeader("Accept", "application/json")
	}
	return &AlpacaClient{
		trading: newRest(baseURL),
		data:    newRest(dataURL),
		feed:    "iex",
		now:     time.Now,
	}
}

// SetFeed selects the market data feed ("iex" or "sip").
func (c *AlpacaClient) SetFeed(feed string) {
	if feed != "" {
		c.feed = feed
	}
}

// do executes a prepared request and decodes a successful body into target.
func do(req *resty.Request, method, endpoint string, target interface{}) error {
	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return fmt.Errorf("failed to execute %s %s: %w", method, endpoint, err)
	}
	if resp.IsError() {
		var apiErr alpacaError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("API error: %s (code: %d, HTTP %d)", apiErr.Message, apiErr.Code, resp.StatusCode())
		}
		return fmt.Errorf("API error: HTTP %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}
	if target != nil {
		if err := json.Unmarshal(resp.Body(), target); err != nil {
			return fmt.Errorf("failed to decode JSON: %w, body: %s", err, string(resp.Body()))
		}
	}
	return nil
}

func (c *AlpacaClient) IsMarketOpen(ctx context.Context) (bool, error) {
	var clock alpacaClock
	if err := do(c.trading.R().SetContext(ctx), resty.MethodGet, "/v2/clock", &clock); err != nil {
		return false, err
	}
	logs.Debugf("[Alpaca] market open=%v next open %s", clock.IsOpen, clock.NextOpen.Format(time.RFC3339))
	return clock.IsOpen, nil
}

func (c *AlpacaClient) GetAccount(ctx context.Context) (*Account, error) {
	var raw alpacaAccount
	if err := do(c.trading.R().SetContext(ctx), resty.MethodGet, "/v2/account", &raw); err != nil {
		return nil, err
	}
	acct := &Account{Status: raw.Status}
	acct.Equity, _ = raw.Equity.Float64()
	acct.Cash, _ = raw.Cash.Float64()
	acct.BuyingPower, _ = raw.BuyingPower.Float64()
	return acct, nil
}

func (c *AlpacaClient) GetPositions(ctx context.Context) ([]Position, error) {
	var raw []alpacaPosition
	if err := do(c.trading.R().SetContext(ctx), resty.MethodGet, "/v2/positions", &raw); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		pos := Position{Ticker: p.Symbol, Shares: p.Qty.IntPart()}
		pos.AvgEntryPrice, _ = p.AvgEntryPrice.Float64()
		pos.MarketValue, _ = p.MarketValue.Float64()
		pos.CurrentPrice, _ = p.CurrentPrice.Float64()
		pos.UnrealizedPL, _ = p.UnrealizedPL.Float64()
		out = append(out, pos)
	}
	return out, nil
}

func (c *AlpacaClient) GetLatestPrice(ctx context.Context, ticker string) (float64, error) {
	var raw alpacaLatestTrade
	req := c.data.R().SetContext(ctx).
		SetPathParam("symbol", ticker).
		SetQueryParam("feed", c.feed)
	if err := do(req, resty.MethodGet, "/v2/stocks/{symbol}/trades/latest", &raw); err != nil {
		return 0, err
	}
	if raw.Trade.P <= 0 {
		return 0, fmt.Errorf("no latest trade for %s", ticker)
	}
	return raw.Trade.P, nil
}

// alpacaTimeframe maps internal timeframes to the data API's names and a lookback
// long enough to cover limit bars across weekends and closed sessions.
func alpacaTimeframe(timeframe string, limit int) (string, time.Duration, error) {
	day := 24 * time.Hour
	switch timeframe {
	case Timeframe15m:
		return "15Min", time.Duration(limit/26+5) * 2 * day, nil
	case Timeframe1h:
		return "1Hour", time.Duration(limit/7+5) * 2 * day, nil
	case Timeframe1D, "":
		return "1Day", time.Duration(limit*2+10) * day, nil
	}
	return "", 0, fmt.Errorf("unsupported timeframe %q", timeframe)
}

func (c *AlpacaClient) GetBars(ctx context.Context, ticker, timeframe string, limit int) ([]Bar, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("bar limit must be positive")
	}
	tf, lookback, err := alpacaTimeframe(timeframe, limit)
	if err != nil {
		return nil, err
	}

	var raw alpacaBarsResponse
	req := c.data.R().SetContext(ctx).
		SetPathParam("symbol", ticker).
		SetQueryParams(map[string]string{
			"timeframe":  tf,
			"start":      c.now().Add(-lookback).UTC().Format(time.RFC3339),
			"limit":      fmt.Sprintf("%d", limit),
			"sort":       "desc",
			"feed":       c.feed,
			"adjustment": "raw",
		})
	if err := do(req, resty.MethodGet, "/v2/stocks/{symbol}/bars", &raw); err != nil {
		return nil, err
	}

	// Requested newest first so the limit keeps the latest bars; return oldest first.
	bars := make([]Bar, len(raw.Bars))
	for i, b := range raw.Bars {
		bars[len(raw.Bars)-1-i] = Bar{Time: b.T, Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V}
	}
	return bars, nil
}

func (c *AlpacaClient) PlaceOrder(ctx context.Context, order *Order) (*Order, error) {
	if order == nil || order.Shares <= 0 {
		return nil, fmt.Errorf("order quantity must be positive")
	}
	body := alpacaOrderRequest{
		Symbol:        order.Ticker,
		Qty:           fmt.Sprintf("%d", order.Shares),
		Side:          string(order.Side),
		Type:          string(Market),
		TimeInForce:   "day",
		ClientOrderID: order.ClientOrderID,
	}
	if order.Type != "" {
		body.Type = string(order.Type)
	}
	if order.TimeInForce != "" {
		body.TimeInForce = order.TimeInForce
	}

	var raw alpacaOrder
	req := c.trading.R().SetContext(ctx).SetBody(body)
	if err := do(req, resty.MethodPost, "/v2/orders", &raw); err != nil {
		return nil, err
	}

	out := &Order{
		ID:            raw.ID,
		ClientOrderID: raw.ClientOrderID,
		Ticker:        raw.Symbol,
		Side:          OrderSide(raw.Side),
		Type:          OrderType(raw.Type),
		TimeInForce:   raw.TimeInForce,
		Shares:        raw.Qty.IntPart(),
		Status:        OrderStatus(raw.Status),
		FilledShares:  raw.FilledQty.IntPart(),
		SubmittedAt:   raw.SubmittedAt,
	}
	if raw.FilledAvgPrice.Valid {
		out.FilledAvgPrice, _ = raw.FilledAvgPrice.Decimal.Float64()
	}
	logs.Infof("[Alpaca] order %s submitted: %s %d %s, status %s", out.ID, out.Side, out.Shares, out.Ticker, out.Status)
	return out, nil
}
