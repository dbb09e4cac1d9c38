package risk

import (
	"fmt"
	"strings"
)

// Side is the direction of a proposed trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts buy/sell in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("unknown trade side %q", s)
}

// Verdict is the outcome of evaluating one proposal.
type Verdict string

const (
	Accept Verdict = "accept"
	Reject Verdict = "reject"
	Resize Verdict = "resize"
)

// ProposedTrade is one trade suggested by the upstream proposer for the current cycle.
// Shares takes precedence over Notional when both are set.
type ProposedTrade struct {
	Ticker    string  `json:"ticker" yaml:"ticker"`
	Side      Side    `json:"side" yaml:"side"`
	Shares    int64   `json:"shares,omitempty" yaml:"shares"`
	Notional  float64 `json:"notional,omitempty" yaml:"notional"`
	Reasoning string  `json:"reasoning,omitempty" yaml:"reason"`
}

// Holding is a currently held position.
type Holding struct {
	Shares      int64   `json:"shares"`
	MarketValue float64 `json:"market_value"`
}

// PortfolioSnapshot is a point-in-time, read-only view of the account for one cycle.
type PortfolioSnapshot struct {
	Equity   float64            `json:"equity"`
	Cash     float64            `json:"cash"`
	Holdings map[string]Holding `json:"holdings"`
}

// Holding returns the position for ticker, or a zero Holding.
func (p PortfolioSnapshot) Holding(ticker string) Holding {
	if p.Holdings == nil {
		return Holding{}
	}
	if h, ok := p.Holdings[NormalizeTicker(ticker)]; ok {
		return h
	}
	return p.Holdings[ticker]
}

// Timeframe is the bar interval ATR was computed on.
type Timeframe string

const (
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1D  Timeframe = "1D"
)

// VolatilityContext carries ATR and the reference price for one ticker.
// A zero ATR means volatility data was unavailable.
type VolatilityContext struct {
	Ticker         string    `json:"ticker"`
	ATR            float64   `json:"atr"`
	ReferencePrice float64   `json:"reference_price"`
	Timeframe      Timeframe `json:"timeframe"`
}

// Decision is the immutable verdict for a single ProposedTrade.
type Decision struct {
	Ticker          string       `json:"ticker"`
	Side            Side         `json:"side"`
	Verdict         Verdict      `json:"verdict"`
	RequestedShares int64        `json:"requested_shares"`
	Shares          int64        `json:"shares"`
	ReferencePrice  float64      `json:"reference_price"`
	Notional        float64      `json:"notional"`
	Reason          ReasonCode   `json:"reason"`
	Adjustments     []ReasonCode `json:"adjustments,omitempty"`
	Detail          string       `json:"detail,omitempty"`
}

// Executable reports whether the decision should be forwarded to execution.
func (d Decision) Executable() bool {
	return (d.Verdict == Accept || d.Verdict == Resize) && d.Shares > 0
}

func (d Decision) String() string {
	return fmt.Sprintf("%s %s %d/%d @ %.2f -> %s (%s)", d.Side, d.Ticker, d.Shares, d.RequestedShares, d.ReferencePrice, d.Verdict, d.Reason)
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
