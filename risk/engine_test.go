package risk

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, limits Limits, now *time.Time) *Engine {
	t.Helper()
	e, err := NewEngine(limits, nil, nil, WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return e
}

func cashPortfolio(equity float64) PortfolioSnapshot {
	return PortfolioSnapshot{Equity: equity, Cash: equity, Holdings: map[string]Holding{}}
}

func vol(ticker string, atr, price float64) VolatilityContext {
	return VolatilityContext{Ticker: ticker, ATR: atr, ReferencePrice: price, Timeframe: Timeframe1D}
}

func TestNewEngineRejectsBadLimits(t *testing.T) {
	l := DefaultLimits()
	l.MaxNotional = 100
	_, err := NewEngine(l, nil, nil)
	assert.Error(t, err)
}

func TestEvaluateAcceptsWithinAllLimits(t *testing.T) {
	now := testNow
	e := newTestEngine(t, DefaultLimits(), &now)
	e.BeginCycle()

	d := e.Evaluate(ProposedTrade{Ticker: "aapl", Side: Buy, Shares: 250}, cashPortfolio(100000), vol("AAPL", 2, 50))

	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, ReasonApproved, d.Reason)
	assert.Equal(t, "AAPL", d.Ticker)
	assert.Equal(t, int64(250), d.Shares)
	assert.Equal(t, 12500.0, d.Notional)
	assert.Empty(t, d.Adjustments)
	assert.True(t, d.Executable())
}

func TestEvaluateVolatilityResize(t *testing.T) {
	now := testNow
	e := newTestEngine(t, DefaultLimits(), &now)
	e.BeginCycle()

	d := e.Evaluate(ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 400}, cashPortfolio(100000), vol("AAPL", 2, 50))

	assert.Equal(t, Resize, d.Verdict)
	assert.Equal(t, ReasonVolatilityResized, d.Reason)
	assert.Equal(t, int64(400), d.RequestedShares)
	assert.Equal(t, int64(250), d.Shares)
	assert.True(t, d.Executable())
}

func TestEvaluateExposureCap(t *testing.T) {
	now := testNow
	pf := PortfolioSnapshot{
		Equity:   100000,
		Cash:     81000,
		Holdings: map[string]Holding{"AAPL": {Shares: 380, MarketValue: 19000}},
	}

	t.Run("room below minimum trade rejects", func(t *testing.T) {
		e := newTestEngine(t, DefaultLimits(), &now)
		e.BeginCycle()
		d := e.Evaluate(ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 200}, pf, vol("AAPL", 0.5, 50))
		assert.Equal(t, Reject, d.Verdict)
		assert.Equal(t, ReasonExposureCapExceeded, d.Reason)
		assert.False(t, d.Executable())
	})

	t.Run("room above minimum trade resizes", func(t *testing.T) {
		l := DefaultLimits()
		l.MinNotional = 500
		e := newTestEngine(t, l, &now)
		e.BeginCycle()
		d := e.Evaluate(ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 200}, pf, vol("AAPL", 0.5, 50))
		assert.Equal(t, Resize, d.Verdict)
		assert.Equal(t, ReasonExposureResized, d.Reason)
		assert.Equal(t, int64(20), d.Shares)
		assert.Equal(t, 1000.0, d.Notional)
	})
}

func TestEvaluateCooldown(t *testing.T) {
	now := testNow
	e := newTestEngine(t, DefaultLimits(), &now)
	e.Cooldowns().RecordSell("AAPL", testNow)
	proposal := ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 200}

	now = testNow.Add(10 * time.Minute)
	e.BeginCycle()
	d := e.Evaluate(proposal, cashPortfolio(100000), vol("AAPL", 2, 50))
	assert.Equal(t, Reject, d.Verdict)
	assert.Equal(t, ReasonCooldownActive, d.Reason)

	now = testNow.Add(31 * time.Minute)
	e.BeginCycle()
	d = e.Evaluate(proposal, cashPortfolio(100000), vol("AAPL", 2, 50))
	assert.Equal(t, Accept, d.Verdict)

	// A sell of a cooling ticker is never blocked.
	now = testNow.Add(time.Minute)
	e.BeginCycle()
	pf := cashPortfolio(100000)
	pf.Holdings["AAPL"] = Holding{Shares: 200, MarketValue: 10000}
	d = e.Evaluate(ProposedTrade{Ticker: "AAPL", Side: Sell, Shares: 200}, pf, vol("AAPL", 2, 50))
	assert.Equal(t, Accept, d.Verdict)
}

func TestEvaluateCycleCap(t *testing.T) {
	now := testNow
	e := newTestEngine(t, DefaultLimits(), &now)

	tickers := []string{"AAPL", "MSFT", "NVDA", "AMD", "SPY"}
	proposals := make([]ProposedTrade, 0, len(tickers))
	vols := make(map[string]VolatilityContext)
	for _, tk := range tickers {
		proposals = append(proposals, ProposedTrade{Ticker: tk, Side: Buy, Shares: 200})
		vols[tk] = vol(tk, 2, 50)
	}

	decisions := e.EvaluateCycle(proposals, cashPortfolio(100000), vols)
	require.Len(t, decisions, 5)
	for i, d := range decisions[:3] {
		assert.Equal(t, Accept, d.Verdict, "proposal %d", i)
		assert.Equal(t, tickers[i], d.Ticker)
	}
	for _, d := range decisions[3:] {
		assert.Equal(t, Reject, d.Verdict)
		assert.Equal(t, ReasonCycleLimitReached, d.Reason)
	}

	// A fresh cycle starts a fresh budget.
	again := e.EvaluateCycle(proposals[3:], cashPortfolio(100000), vols)
	assert.Equal(t, Accept, again[0].Verdict)
	assert.Equal(t, Accept, again[1].Verdict)
}

func TestEvaluateRejectedTradesDoNotConsumeCycleSlots(t *testing.T) {
	now := testNow
	e := newTestEngine(t, DefaultLimits(), &now)
	proposals := []ProposedTrade{
		{Ticker: "AAPL", Side: Buy, Shares: 10}, // too small
		{Ticker: "MSFT", Side: Buy, Shares: 200},
		{Ticker: "NVDA", Side: Buy, Shares: 200},
		{Ticker: "AMD", Side: Buy, Shares: 200},
	}
	vols := map[string]VolatilityContext{
		"AAPL": vol("AAPL", 2, 50),
		"MSFT": vol("MSFT", 2, 50),
		"NVDA": vol("NVDA", 2, 50),
		"AMD":  vol("AMD", 2, 50),
	}
	decisions := e.EvaluateCycle(proposals, cashPortfolio(100000), vols)
	assert.Equal(t, ReasonNotionalTooSmall, decisions[0].Reason)
	for _, d := range decisions[1:] {
		assert.Equal(t, Accept, d.Verdict)
	}
	assert.Equal(t, 3, e.Limiter().Count())
}

func TestEvaluateRejections(t *testing.T) {
	held := PortfolioSnapshot{
		Equity:   100000,
		Cash:     90000,
		Holdings: map[string]Holding{"AAPL": {Shares: 200, MarketValue: 10000}, "MSFT": {Shares: 50, MarketValue: 2500}},
	}
	poor := PortfolioSnapshot{Equity: 100000, Cash: 4000, Holdings: map[string]Holding{}}

	tests := []struct {
		name   string
		trade  ProposedTrade
		pf     PortfolioSnapshot
		vol    VolatilityContext
		reason ReasonCode
	}{
		{"empty ticker", ProposedTrade{Ticker: " ", Side: Buy, Shares: 100}, held, vol("", 2, 50), ReasonInvalidProposal},
		{"unknown side", ProposedTrade{Ticker: "AAPL", Side: "HOLD", Shares: 100}, held, vol("AAPL", 2, 50), ReasonInvalidProposal},
		{"no size", ProposedTrade{Ticker: "AAPL", Side: Buy}, held, vol("AAPL", 2, 50), ReasonInvalidProposal},
		{"negative shares", ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: -5}, held, vol("AAPL", 2, 50), ReasonInvalidProposal},
		{"missing price", ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 100}, held, vol("AAPL", 2, 0), ReasonInvalidPrice},
		{"nan price", ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 100}, held, vol("AAPL", 2, math.NaN()), ReasonInvalidPrice},
		{"below minimum", ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 99}, held, vol("AAPL", 2, 50), ReasonNotionalTooSmall},
		{"notional below minimum", ProposedTrade{Ticker: "AAPL", Side: Buy, Notional: 4999}, held, vol("AAPL", 2, 50), ReasonNotionalTooSmall},
		{"missing atr", ProposedTrade{Ticker: "AMD", Side: Buy, Shares: 200}, held, vol("AMD", 0, 50), ReasonMissingVolatilityData},
		{"one share above max", ProposedTrade{Ticker: "BRK", Side: Buy, Shares: 1}, held, vol("BRK", 200, 30000), ReasonSizeCollapsedToZero},
		{"atr too wide", ProposedTrade{Ticker: "AMD", Side: Buy, Shares: 200}, held, vol("AMD", 1000, 50), ReasonSizeCollapsedToZero},
		{"volatility leaves too little", ProposedTrade{Ticker: "AMD", Side: Buy, Shares: 200}, held, vol("AMD", 6, 50), ReasonNotionalTooSmall},
		{"cannot fund minimum", ProposedTrade{Ticker: "AMD", Side: Buy, Shares: 200}, poor, vol("AMD", 0.5, 50), ReasonInsufficientCash},
		{"sell without position", ProposedTrade{Ticker: "NVDA", Side: Sell, Shares: 200}, held, vol("NVDA", 2, 50), ReasonInsufficientShares},
		{"sell of small position", ProposedTrade{Ticker: "MSFT", Side: Sell, Shares: 50}, held, vol("MSFT", 2, 50), ReasonNotionalTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := testNow
			e := newTestEngine(t, DefaultLimits(), &now)
			e.BeginCycle()
			d := e.Evaluate(tt.trade, tt.pf, tt.vol)
			assert.Equal(t, Reject, d.Verdict)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Zero(t, d.Shares)
			assert.NotEmpty(t, d.Detail)
			assert.Equal(t, 0, e.Limiter().Count(), "rejections must not consume a slot")
		})
	}
}

func TestEvaluateResizes(t *testing.T) {
	rich := PortfolioSnapshot{Equity: 200000, Cash: 200000, Holdings: map[string]Holding{}}
	thin := PortfolioSnapshot{Equity: 100000, Cash: 6000, Holdings: map[string]Holding{}}
	held := PortfolioSnapshot{
		Equity:   100000,
		Cash:     90000,
		Holdings: map[string]Holding{"AAPL": {Shares: 200, MarketValue: 10000}},
	}

	tests := []struct {
		name        string
		trade       ProposedTrade
		pf          PortfolioSnapshot
		vol         VolatilityContext
		verdict     Verdict
		reason      ReasonCode
		shares      int64
		adjustments []ReasonCode
	}{
		{
			name: "clamped to max notional", trade: ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 600},
			pf: rich, vol: vol("AAPL", 0.1, 50),
			verdict: Resize, reason: ReasonNotionalTooLarge, shares: 500,
			adjustments: []ReasonCode{ReasonNotionalTooLarge},
		},
		{
			name: "huge notional request saturates then clamps", trade: ProposedTrade{Ticker: "AAPL", Side: Buy, Notional: 1e22},
			pf: rich, vol: vol("AAPL", 0.1, 50),
			verdict: Resize, reason: ReasonNotionalTooLarge, shares: 500,
			adjustments: []ReasonCode{ReasonNotionalTooLarge},
		},
		{
			name: "max then volatility", trade: ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 600},
			pf: cashPortfolio(100000), vol: vol("AAPL", 2, 50),
			verdict: Resize, reason: ReasonVolatilityResized, shares: 250,
			adjustments: []ReasonCode{ReasonNotionalTooLarge, ReasonVolatilityResized},
		},
		{
			name: "cash limited", trade: ProposedTrade{Ticker: "AAPL", Side: Buy, Shares: 200},
			pf: thin, vol: vol("AAPL", 0.5, 50),
			verdict: Resize, reason: ReasonCashResized, shares: 120,
			adjustments: []ReasonCode{ReasonCashResized},
		},
		{
			name: "notional request floored to shares", trade: ProposedTrade{Ticker: "AAPL", Side: Buy, Notional: 12020},
			pf: cashPortfolio(100000), vol: vol("AAPL", 2, 50),
			verdict: Accept, reason: ReasonApproved, shares: 240,
		},
		{
			name: "sell within holdings", trade: ProposedTrade{Ticker: "AAPL", Side: Sell, Shares: 150},
			pf: held, vol: vol("AAPL", 0, 50),
			verdict: Accept, reason: ReasonApproved, shares: 150,
		},
		{
			name: "sell clamped to holdings", trade: ProposedTrade{Ticker: "AAPL", Side: Sell, Shares: 300},
			pf: held, vol: vol("AAPL", 0, 50),
			verdict: Resize, reason: ReasonHoldingsResized, shares: 200,
			adjustments: []ReasonCode{ReasonHoldingsResized},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := testNow
			e := newTestEngine(t, DefaultLimits(), &now)
			e.BeginCycle()
			d := e.Evaluate(tt.trade, tt.pf, tt.vol)
			assert.Equal(t, tt.verdict, d.Verdict)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.shares, d.Shares)
			assert.Equal(t, tt.adjustments, d.Adjustments)
			assert.True(t, d.Executable())
			assert.Equal(t, 1, e.Limiter().Count())
		})
	}
}

func TestEvaluateHugeNotionalKeepsRequestPositive(t *testing.T) {
	now := testNow
	e := newTestEngine(t, DefaultLimits(), &now)
	e.BeginCycle()
	d := e.Evaluate(ProposedTrade{Ticker: "AAPL", Side: Buy, Notional: 1e22}, PortfolioSnapshot{Equity: 200000, Cash: 200000}, vol("AAPL", 0.1, 50))
	assert.Equal(t, int64(math.MaxInt64), d.RequestedShares)
	assert.Equal(t, Resize, d.Verdict)
	assert.Equal(t, int64(500), d.Shares)
	assert.InDelta(t, 25000.0, d.Notional, 1e-6)
}

func TestEvaluateCycleIsIdempotent(t *testing.T) {
	now := testNow
	e := newTestEngine(t, DefaultLimits(), &now)
	e.Cooldowns().RecordSell("NVDA", testNow.Add(-5*time.Minute))

	pf := PortfolioSnapshot{
		Equity:   150000,
		Cash:     60000,
		Holdings: map[string]Holding{"AAPL": {Shares: 300, MarketValue: 27000}, "MSFT": {Shares: 40, MarketValue: 16000}},
	}
	proposals := []ProposedTrade{
		{Ticker: "AAPL", Side: Buy, Shares: 100},
		{Ticker: "NVDA", Side: Buy, Notional: 9000},
		{Ticker: "MSFT", Side: Sell, Shares: 40},
		{Ticker: "AMD", Side: Buy, Shares: 500},
		{Ticker: "SPY", Side: Buy, Shares: 20},
	}
	vols := map[string]VolatilityContext{
		"AAPL": vol("AAPL", 3.1, 90),
		"NVDA": vol("NVDA", 12, 120),
		"MSFT": vol("MSFT", 6.4, 400),
		"AMD":  vol("AMD", 4.2, 160),
		"SPY":  vol("SPY", 5, 520),
	}

	first := e.EvaluateCycle(proposals, pf, vols)
	second := e.EvaluateCycle(proposals, pf, vols)
	assert.Equal(t, first, second)

	e.BeginCycle()
	a := e.Evaluate(proposals[0], pf, vols["AAPL"])
	e.BeginCycle()
	b := e.Evaluate(proposals[0], pf, vols["AAPL"])
	assert.Equal(t, a, b)
}

func TestEvaluatePropertiesHoldForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tickers := []string{"AAPL", "MSFT", "NVDA", "AMD", "SPY", "QQQ"}
	limits := DefaultLimits()
	const eps = 1e-6

	for cycle := 0; cycle < 300; cycle++ {
		now := testNow.Add(time.Duration(cycle) * time.Minute)
		e := newTestEngine(t, limits, &now)
		e.Cooldowns().RecordSell(tickers[rng.Intn(len(tickers))], now.Add(-time.Duration(rng.Intn(60))*time.Minute))

		pf := PortfolioSnapshot{
			Equity:   20000 + rng.Float64()*480000,
			Holdings: map[string]Holding{},
		}
		pf.Cash = pf.Equity * rng.Float64()
		vols := map[string]VolatilityContext{}
		for _, tk := range tickers {
			price := math.Round((1+rng.Float64()*999)*100) / 100
			vols[tk] = vol(tk, price*rng.Float64()*0.1, price)
			if rng.Intn(2) == 0 {
				shares := int64(rng.Intn(400))
				pf.Holdings[tk] = Holding{Shares: shares, MarketValue: float64(shares) * price}
			}
		}

		proposals := make([]ProposedTrade, 0, 6)
		for i := 0; i < 6; i++ {
			p := ProposedTrade{Ticker: tickers[rng.Intn(len(tickers))], Side: Buy}
			if rng.Intn(3) == 0 {
				p.Side = Sell
			}
			if rng.Intn(2) == 0 {
				p.Shares = int64(rng.Intn(1000))
			} else {
				p.Notional = rng.Float64() * 60000
			}
			proposals = append(proposals, p)
		}

		executable := 0
		for _, d := range e.EvaluateCycle(proposals, pf, vols) {
			assert.Contains(t, AllReasons, d.Reason)
			if !d.Executable() {
				assert.Equal(t, Reject, d.Verdict)
				continue
			}
			executable++
			assert.LessOrEqual(t, d.Shares, d.RequestedShares)
			assert.GreaterOrEqual(t, d.Notional, limits.MinNotional-eps, "%s", d)
			assert.LessOrEqual(t, d.Notional, limits.MaxNotional+eps, "%s", d)
			switch d.Side {
			case Buy:
				existing := pf.Holding(d.Ticker).MarketValue
				assert.LessOrEqual(t, existing+d.Notional, limits.MaxPositionFraction*pf.Equity+eps, "%s", d)
				assert.LessOrEqual(t, d.Notional, pf.Cash+eps, "%s", d)
				assert.False(t, e.Cooldowns().IsActive(d.Ticker, now, limits.CooldownWindow), "%s", d)
			case Sell:
				assert.LessOrEqual(t, d.Shares, pf.Holding(d.Ticker).Shares)
			}
		}
		assert.LessOrEqual(t, executable, limits.MaxTradesPerCycle)
	}
}
