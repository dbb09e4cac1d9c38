package exchange

import (
	"context"
	"time"
)

// OrderSide defines the order direction.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderType defines the order type. Only market orders are submitted.
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// OrderStatus defines the order status.
type OrderStatus string

const (
	New             OrderStatus = "new"
	Accepted        OrderStatus = "accepted"
	PartiallyFilled OrderStatus = "partially_filled"
	Filled          OrderStatus = "filled"
	Canceled        OrderStatus = "canceled"
	Rejected        OrderStatus = "rejected"
)

// Bar timeframes accepted by GetBars.
const (
	Timeframe15m = "15m"
	Timeframe1h  = "1h"
	Timeframe1D  = "1D"
)

// Account is the brokerage account summary.
type Account struct {
	Equity      float64
	Cash        float64
	BuyingPower float64
	Status      string
}

// Position is one open equity position.
type Position struct {
	Ticker        string
	Shares        int64
	AvgEntryPrice float64
	MarketValue   float64
	CurrentPrice  float64
	UnrealizedPL  float64
}

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Order is a submitted order and its fill state.
type Order struct {
	ID             string      `json:"id"`
	ClientOrderID  string      `json:"client_order_id"`
	Ticker         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	TimeInForce    string      `json:"time_in_force"`
	Shares         int64       `json:"qty"`
	Status         OrderStatus `json:"status"`
	FilledShares   int64       `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	SubmittedAt    time.Time   `json:"submitted_at"`
}

// IsFilled reports whether any quantity executed.
func (o *Order) IsFilled() bool {
	return o.Status == Filled || (o.Status == PartiallyFilled && o.FilledShares > 0)
}

// Client is what the rest of the system needs from a brokerage.
type Client interface {
	// IsMarketOpen reports whether the regular session is open.
	IsMarketOpen(ctx context.Context) (bool, error)

	GetAccount(ctx context.Context) (*Account, error)

	GetPositions(ctx context.Context) ([]Position, error)

	// GetLatestPrice returns the last trade price for ticker.
	GetLatestPrice(ctx context.Context, ticker string) (float64, error)

	// GetBars returns up to limit bars for timeframe, oldest first.
	GetBars(ctx context.Context, ticker, timeframe string, limit int) ([]Bar, error)

	// PlaceOrder submits a new order.
	PlaceOrder(ctx context.Context, order *Order) (*Order, error)
}
