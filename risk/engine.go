package risk

import (
	"fmt"
	"time"

	"riskgate/logs"
	"riskgate/utils"
)

// Engine validates every proposed trade against the configured limits and produces one Decision each.
// It performs no I/O; the only mutable state it touches is the cooldown tracker (read) and the cycle limiter.
type Engine struct {
	limits    Limits
	sizer     PositionSizer
	exposure  ExposureTracker
	cooldowns *CooldownTracker
	limiter   *CycleLimiter
	clock     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source used by the cooldown guard.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine builds an engine. Nil trackers are created from the limits.
func NewEngine(limits Limits, cooldowns *CooldownTracker, limiter *CycleLimiter, opts ...Option) (*Engine, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk limits: %w", err)
	}
	if cooldowns == nil {
		cooldowns = NewCooldownTracker()
	}
	if limiter == nil {
		limiter = NewCycleLimiter(limits.MaxTradesPerCycle)
	}
	e := &Engine{
		limits:    limits,
		sizer:     PositionSizer{StopMultiple: limits.ATRStopMultiple},
		cooldowns: cooldowns,
		limiter:   limiter,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Limits() Limits              { return e.limits }
func (e *Engine) Cooldowns() *CooldownTracker { return e.cooldowns }
func (e *Engine) Limiter() *CycleLimiter      { return e.limiter }

// Now reads the engine clock, so callers count cooldowns against the same time the guards use.
func (e *Engine) Now() time.Time { return e.clock() }

// BeginCycle resets the per-cycle trade counter.
func (e *Engine) BeginCycle() {
	e.limiter.Reset()
}

// Evaluate runs the guard pipeline for one proposal against an immutable snapshot.
func (e *Engine) Evaluate(proposed ProposedTrade, portfolio PortfolioSnapshot, volatility VolatilityContext) Decision {
	proposed.Ticker = NormalizeTicker(proposed.Ticker)
	d := Decision{
		Ticker:         proposed.Ticker,
		Side:           proposed.Side,
		ReferencePrice: volatility.ReferencePrice,
	}

	ev, rej := e.prepare(proposed, portfolio, volatility)
	if rej == nil {
		d.RequestedShares = ev.requested
		for _, s := range pipeline {
			if !s.applies(proposed.Side) {
				continue
			}
			if rej = s.run(e, ev); rej != nil {
				break
			}
		}
		d.Adjustments = ev.adjustments
	}

	if rej != nil {
		d.Verdict = Reject
		d.Reason = rej.reason
		d.Detail = rej.detail
		e.logDecision(d)
		return d
	}

	d.Shares = ev.shares
	d.Notional = utils.Notional(ev.shares, volatility.ReferencePrice)
	if ev.shares == ev.requested {
		d.Verdict = Accept
		d.Reason = ReasonApproved
	} else {
		d.Verdict = Resize
		d.Reason = ev.adjustments[len(ev.adjustments)-1]
		d.Detail = fmt.Sprintf("resized %d -> %d shares", ev.requested, ev.shares)
	}
	e.logDecision(d)
	return d
}

// prepare validates input values and converts the request to whole shares.
func (e *Engine) prepare(p ProposedTrade, portfolio PortfolioSnapshot, vol VolatilityContext) (*evaluation, *rejection) {
	if p.Ticker == "" {
		return nil, reject(ReasonInvalidProposal, "empty ticker")
	}
	if p.Side != Buy && p.Side != Sell {
		return nil, reject(ReasonInvalidProposal, "unknown side %q", p.Side)
	}
	price := utils.Dec(vol.ReferencePrice)
	if !price.IsPositive() {
		return nil, reject(ReasonInvalidPrice, "no usable reference price for %s", p.Ticker)
	}

	ev := &evaluation{trade: p, portfolio: portfolio, vol: vol, price: price}
	switch {
	case p.Shares > 0:
		ev.requested = p.Shares
	case p.Shares == 0 && p.Notional > 0:
		ev.requested = utils.FloorShares(utils.Dec(p.Notional), price)
	default:
		return nil, reject(ReasonInvalidProposal, "request must carry positive shares or notional")
	}
	ev.shares = ev.requested
	return ev, nil
}

// EvaluateCycle resets the limiter and evaluates proposals in order against the cycle's opening state.
// Volatility is looked up by normalized ticker.
func (e *Engine) EvaluateCycle(proposals []ProposedTrade, portfolio PortfolioSnapshot, volatility map[string]VolatilityContext) []Decision {
	e.BeginCycle()
	decisions := make([]Decision, 0, len(proposals))
	for _, p := range proposals {
		decisions = append(decisions, e.Evaluate(p, portfolio, volatility[NormalizeTicker(p.Ticker)]))
	}
	return decisions
}

func (e *Engine) logDecision(d Decision) {
	entry := logs.WithFields(logs.Fields{
		"ticker":  d.Ticker,
		"side":    d.Side,
		"verdict": d.Verdict,
		"reason":  d.Reason,
		"shares":  d.Shares,
	})
	if d.Verdict == Reject {
		entry.Infof("[Risk] rejected: %s", d.Detail)
		return
	}
	entry.Debugf("[Risk] %s %d/%d shares", d.Verdict, d.Shares, d.RequestedShares)
}
