package risk

import (
	"fmt"
	"time"

	"riskgate/utils"

	"github.com/shopspring/decimal"
)

// evaluation is the working state threaded through the guard stages for one proposal.
type evaluation struct {
	trade       ProposedTrade
	portfolio   PortfolioSnapshot
	vol         VolatilityContext
	price       decimal.Decimal
	requested   int64
	shares      int64
	adjustments []ReasonCode
}

// rejection short-circuits the pipeline.
type rejection struct {
	reason ReasonCode
	detail string
}

func reject(reason ReasonCode, format string, args ...interface{}) *rejection {
	return &rejection{reason: reason, detail: fmt.Sprintf(format, args...)}
}

func (ev *evaluation) notional(shares int64) decimal.Decimal {
	return decimal.NewFromInt(shares).Mul(ev.price)
}

// minShares is the smallest whole share count whose notional reaches the minimum.
func (ev *evaluation) minShares(minNotional decimal.Decimal) int64 {
	return minNotional.Div(ev.price).Ceil().IntPart()
}

// clamp lowers the working size to limit. It never raises it.
// Zero shares collapse the trade; a non-zero size under the minimum rejects with belowMin.
func (ev *evaluation) clamp(limit int64, code, belowMin ReasonCode, minNotional decimal.Decimal) *rejection {
	if limit >= ev.shares {
		return nil
	}
	if limit <= 0 {
		return reject(ReasonSizeCollapsedToZero, "%s reduced %d shares to zero", code, ev.shares)
	}
	prev := ev.shares
	ev.shares = limit
	ev.adjustments = append(ev.adjustments, code)
	if ev.notional(limit).LessThan(minNotional) {
		return reject(belowMin, "%s reduced %d -> %d shares, notional %s below minimum %s",
			code, prev, limit, ev.notional(limit).StringFixed(2), minNotional.StringFixed(2))
	}
	return nil
}

// stage is one guard in the evaluation pipeline.
type stage struct {
	name     string
	buyOnly  bool
	sellOnly bool
	run      func(e *Engine, ev *evaluation) *rejection
}

func (s stage) applies(side Side) bool {
	if s.buyOnly {
		return side == Buy
	}
	if s.sellOnly {
		return side == Sell
	}
	return true
}

// pipeline is the fixed evaluation order. The cycle guard must stay last because it consumes a slot.
var pipeline = []stage{
	{name: "notional", run: notionalGuard},
	{name: "volatility", buyOnly: true, run: volatilityGuard},
	{name: "exposure", buyOnly: true, run: exposureGuard},
	{name: "buying_power", buyOnly: true, run: buyingPowerGuard},
	{name: "holdings", sellOnly: true, run: holdingsGuard},
	{name: "cooldown", buyOnly: true, run: cooldownGuard},
	{name: "cycle", run: cycleGuard},
}

func notionalGuard(e *Engine, ev *evaluation) *rejection {
	lo, hi := utils.Dec(e.limits.MinNotional), utils.Dec(e.limits.MaxNotional)
	requested := ev.notional(ev.shares)
	if requested.LessThan(lo) {
		return reject(ReasonNotionalTooSmall, "notional %s below minimum %s", requested.StringFixed(2), lo.StringFixed(2))
	}
	if requested.GreaterThan(hi) {
		return ev.clamp(utils.FloorShares(hi, ev.price), ReasonNotionalTooLarge, ReasonNotionalTooSmall, lo)
	}
	return nil
}

func volatilityGuard(e *Engine, ev *evaluation) *rejection {
	if ev.vol.ATR <= 0 || !utils.Dec(ev.vol.ATR).IsPositive() {
		return reject(ReasonMissingVolatilityData, "no ATR for %s, cannot size safely", ev.trade.Ticker)
	}
	recommended := e.sizer.RecommendedShares(ev.portfolio.Equity, e.limits.RiskPerTrade, ev.vol.ATR, ev.vol.ReferencePrice)
	return ev.clamp(recommended, ReasonVolatilityResized, ReasonNotionalTooSmall, utils.Dec(e.limits.MinNotional))
}

func exposureGuard(e *Engine, ev *evaluation) *rejection {
	lo := utils.Dec(e.limits.MinNotional)
	price, _ := ev.price.Float64()
	allowed := e.exposure.MaxAdditionalShares(ev.trade.Ticker, ev.portfolio, price, e.limits.MaxPositionFraction)
	if need := ev.minShares(lo); allowed < need {
		return reject(ReasonExposureCapExceeded, "%s can take %d more shares under the %.0f%% cap, minimum trade needs %d",
			ev.trade.Ticker, allowed, e.limits.MaxPositionFraction*100, need)
	}
	return ev.clamp(allowed, ReasonExposureResized, ReasonExposureCapExceeded, lo)
}

func buyingPowerGuard(e *Engine, ev *evaluation) *rejection {
	lo := utils.Dec(e.limits.MinNotional)
	affordable := utils.FloorShares(utils.Dec(ev.portfolio.Cash), ev.price)
	if affordable < ev.minShares(lo) {
		return reject(ReasonInsufficientCash, "cash %.2f cannot fund the minimum trade", ev.portfolio.Cash)
	}
	return ev.clamp(affordable, ReasonCashResized, ReasonInsufficientCash, lo)
}

func holdingsGuard(e *Engine, ev *evaluation) *rejection {
	held := ev.portfolio.Holding(ev.trade.Ticker).Shares
	if held <= 0 {
		return reject(ReasonInsufficientShares, "cannot sell %d %s, none held", ev.shares, ev.trade.Ticker)
	}
	return ev.clamp(held, ReasonHoldingsResized, ReasonNotionalTooSmall, utils.Dec(e.limits.MinNotional))
}

func cooldownGuard(e *Engine, ev *evaluation) *rejection {
	now := e.clock()
	if e.cooldowns.IsActive(ev.trade.Ticker, now, e.limits.CooldownWindow) {
		last, _ := e.cooldowns.LastSell(ev.trade.Ticker)
		return reject(ReasonCooldownActive, "%s sold %s ago, cooldown is %s",
			ev.trade.Ticker, now.Sub(last).Truncate(time.Second), e.limits.CooldownWindow)
	}
	return nil
}

func cycleGuard(e *Engine, ev *evaluation) *rejection {
	if !e.limiter.TryAcquire() {
		return reject(ReasonCycleLimitReached, "cycle cap of %d trades reached", e.limiter.Cap())
	}
	return nil
}
