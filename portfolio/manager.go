// portfolio/manager.go
package portfolio

import (
	"context"
	"fmt"
	"strings"

	"riskgate/exchange"
	"riskgate/logs"
	"riskgate/risk"
)

// IClient is the slice of the brokerage client this module needs, convenient for testing.
type IClient interface {
	GetAccount(ctx context.Context) (*exchange.Account, error)
	GetPositions(ctx context.Context) ([]exchange.Position, error)
}

// Manager builds the read-only portfolio view that every cycle is evaluated against.
type Manager struct {
	client       IClient
	isAccountBad bool
}

func NewManager(client IClient) *Manager {
	return &Manager{client: client}
}

// Snapshot reads the account and positions once and freezes them for a cycle.
func (m *Manager) Snapshot(ctx context.Context) (risk.PortfolioSnapshot, error) {
	acct, err := m.client.GetAccount(ctx)
	if err != nil {
		return risk.PortfolioSnapshot{}, fmt.Errorf("failed to get account: %w", err)
	}
	positions, err := m.client.GetPositions(ctx)
	if err != nil {
		return risk.PortfolioSnapshot{}, fmt.Errorf("failed to get positions: %w", err)
	}

	if acct.Equity <= 0 {
		if !m.isAccountBad {
			logs.Warnf("[Portfolio] Account equity is %.2f, every buy will be rejected until it recovers.", acct.Equity)
		}
		m.isAccountBad = true
	} else if m.isAccountBad {
		logs.Infof("[Portfolio] Account equity recovered to %.2f.", acct.Equity)
		m.isAccountBad = false
	}

	snap := risk.PortfolioSnapshot{
		Equity:   acct.Equity,
		Cash:     acct.Cash,
		Holdings: make(map[string]risk.Holding, len(positions)),
	}
	for _, p := range positions {
		if p.Shares <= 0 {
			continue
		}
		value := p.MarketValue
		if value <= 0 {
			value = float64(p.Shares) * p.CurrentPrice
		}
		snap.Holdings[strings.ToUpper(p.Ticker)] = risk.Holding{Shares: p.Shares, MarketValue: value}
	}
	logs.Debugf("[Portfolio] snapshot equity %.2f cash %.2f, %d holdings", snap.Equity, snap.Cash, len(snap.Holdings))
	return snap, nil
}

// IsAccountImpaired reports whether the last snapshot had non-positive equity.
func (m *Manager) IsAccountImpaired() bool {
	return m.isAccountBad
}
