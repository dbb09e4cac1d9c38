package risk

import (
	"fmt"
	"time"
)

// Limits is the configuration surface of the engine, fixed for the process lifetime.
type Limits struct {
	MinNotional         float64
	MaxNotional         float64
	MaxPositionFraction float64 // per-ticker cap as a fraction of total equity
	CooldownWindow      time.Duration
	MaxTradesPerCycle   int
	RiskPerTrade        float64 // fraction of equity risked per trade
	ATRStopMultiple     float64 // stop distance in ATR units
}

// DefaultLimits mirrors the production constants: $5k-$25k per trade, 20% per ticker,
// 30 minute cooldown, 3 trades per cycle, 1% risk with a 2 ATR stop.
func DefaultLimits() Limits {
	return Limits{
		MinNotional:         5000,
		MaxNotional:         25000,
		MaxPositionFraction: 0.20,
		CooldownWindow:      30 * time.Minute,
		MaxTradesPerCycle:   3,
		RiskPerTrade:        0.01,
		ATRStopMultiple:     2,
	}
}

// Validate checks that the limits describe a usable engine.
func (l Limits) Validate() error {
	if l.MinNotional <= 0 {
		return fmt.Errorf("min notional must be positive, got %.2f", l.MinNotional)
	}
	if l.MaxNotional < l.MinNotional {
		return fmt.Errorf("max notional %.2f below min notional %.2f", l.MaxNotional, l.MinNotional)
	}
	if l.MaxPositionFraction <= 0 || l.MaxPositionFraction > 1 {
		return fmt.Errorf("max position fraction must be in (0, 1], got %.4f", l.MaxPositionFraction)
	}
	if l.CooldownWindow < 0 {
		return fmt.Errorf("cooldown window cannot be negative")
	}
	if l.MaxTradesPerCycle < 0 {
		return fmt.Errorf("max trades per cycle cannot be negative")
	}
	if l.RiskPerTrade <= 0 || l.RiskPerTrade >= 1 {
		return fmt.Errorf("risk per trade must be in (0, 1), got %.4f", l.RiskPerTrade)
	}
	if l.ATRStopMultiple <= 0 {
		return fmt.Errorf("ATR stop multiple must be positive, got %.4f", l.ATRStopMultiple)
	}
	return nil
}
