package profit

import (
	"sort"
	"strings"
	"sync"
)

// Ledger holds one Accountant per ticker.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*Accountant
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*Accountant)}
}

func (l *Ledger) account(ticker string) *Accountant {
	key := strings.ToUpper(strings.TrimSpace(ticker))
	l.mu.RLock()
	a, ok := l.accounts[key]
	l.mu.RUnlock()
	if ok {
		return a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[key]; !ok {
		a = NewAccountant()
		l.accounts[key] = a
	}
	return a
}

// RecordFill books a fill against its ticker and returns the realized profit.
func (l *Ledger) RecordFill(f Fill) float64 {
	return l.account(f.Ticker).RecordFill(f)
}

func (l *Ledger) Restore(ticker string, shares int64, averageCost float64) {
	l.account(ticker).Restore(shares, averageCost)
}

func (l *Ledger) Mark(ticker string, price float64) {
	l.account(ticker).Mark(price)
}

func (l *Ledger) Position(ticker string) PositionState {
	return l.account(ticker).GetPositionState()
}

// Positions returns every ticker with open shares.
func (l *Ledger) Positions() map[string]PositionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]PositionState, len(l.accounts))
	for k, a := range l.accounts {
		if ps := a.GetPositionState(); ps.Shares > 0 {
			out[k] = ps
		}
	}
	return out
}

// Tickers returns held tickers in sorted order.
func (l *Ledger) Tickers() []string {
	pos := l.Positions()
	out := make([]string, 0, len(pos))
	for k := range pos {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RealizedPNL sums realized profit across all tickers.
func (l *Ledger) RealizedPNL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, a := range l.accounts {
		total += a.GetRealizedPNL()
	}
	return total
}
