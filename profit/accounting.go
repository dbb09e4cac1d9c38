package profit

import (
	"sync"
	"time"

	"riskgate/utils"

	"github.com/shopspring/decimal"
)

// Fill is one executed trade, the unit of profit/loss tracking.
type Fill struct {
	Ticker    string
	Side      string // "BUY" or "SELL"
	Price     float64
	Shares    int64
	Timestamp time.Time
	OrderID   string
}

// PositionState is the position in one ticker. Long only: equities are never shorted here.
type PositionState struct {
	Shares           int64   `json:"shares"`
	AverageCost      float64 `json:"average_cost"`
	RealizedProfit   float64 `json:"realized_profit"`
	UnrealizedProfit float64 `json:"unrealized_profit"`
}

// Accountant tracks one ticker using the weighted average cost method.
type Accountant struct {
	mu       sync.Mutex
	shares   int64
	cost     decimal.Decimal // total cost basis of the open shares
	realized decimal.Decimal
	mark     decimal.Decimal
	history  []Fill
}

func NewAccountant() *Accountant {
	return &Accountant{history: make([]Fill, 0)}
}

// RecordFill applies a fill and returns the profit it realized.
// Sells beyond the open position are capped at the open quantity.
func (a *Accountant) RecordFill(f Fill) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history, f)
	price := utils.Dec(f.Price)

	if f.Side != "SELL" {
		a.cost = a.cost.Add(price.Mul(decimal.NewFromInt(f.Shares)))
		a.shares += f.Shares
		return 0
	}

	qty := f.Shares
	if qty > a.shares {
		qty = a.shares
	}
	if qty <= 0 {
		return 0
	}
	avg := a.cost.Div(decimal.NewFromInt(a.shares))
	closed := decimal.NewFromInt(qty)
	pnl := price.Sub(avg).Mul(closed)

	a.realized = a.realized.Add(pnl)
	a.shares -= qty
	if a.shares == 0 {
		a.cost = decimal.Zero
	} else {
		a.cost = a.cost.Sub(avg.Mul(closed))
	}
	out, _ := pnl.Float64()
	return out
}

// Mark sets the price used for unrealized profit and market value.
func (a *Accountant) Mark(price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mark = utils.Dec(price)
}

// GetPositionState returns a copy of the current position state.
func (a *Accountant) GetPositionState() PositionState {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps := PositionState{Shares: a.shares}
	ps.RealizedProfit, _ = a.realized.Float64()
	if a.shares > 0 {
		avg := a.cost.Div(decimal.NewFromInt(a.shares))
		ps.AverageCost, _ = avg.Round(4).Float64()
		if a.mark.IsPositive() {
			ps.UnrealizedProfit, _ = a.mark.Sub(avg).Mul(decimal.NewFromInt(a.shares)).Round(2).Float64()
		}
	}
	return ps
}

// Restore seeds an open position, e.g. from the broker at startup.
func (a *Accountant) Restore(shares int64, averageCost float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if shares < 0 {
		shares = 0
	}
	a.shares = shares
	a.cost = utils.Dec(averageCost).Mul(decimal.NewFromInt(shares))
}

// GetRealizedPNL returns cumulative realized profit.
func (a *Accountant) GetRealizedPNL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, _ := a.realized.Float64()
	return out
}

// History returns a copy of recorded fills.
func (a *Accountant) History() []Fill {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Fill, len(a.history))
	copy(out, a.history)
	return out
}
