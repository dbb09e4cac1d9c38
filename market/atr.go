package market

import (
	"errors"
	"math"

	"riskgate/exchange"
)

// ErrInsufficientBars is returned when fewer than period+1 bars are available.
var ErrInsufficientBars = errors.New("insufficient bars for ATR calculation")

// ATR is the Average True Range, computed as the simple mean of the last period true ranges.
type ATR struct {
	period int
}

func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Calculate returns the ATR over the most recent bars. Bars must be oldest first.
func (a *ATR) Calculate(bars []exchange.Bar) (float64, error) {
	if a.period <= 0 {
		return 0, errors.New("ATR period must be positive")
	}
	if len(bars) < a.GetRequiredPeriods() {
		return 0, ErrInsufficientBars
	}

	window := bars[len(bars)-a.period-1:]
	var sum float64
	for i := 1; i < len(window); i++ {
		sum += trueRange(window[i], window[i-1].Close)
	}
	atr := sum / float64(a.period)
	if math.IsNaN(atr) || math.IsInf(atr, 0) {
		return 0, errors.New("ATR is not a finite number")
	}
	return atr, nil
}

// trueRange = max(High-Low, |High-PrevClose|, |Low-PrevClose|)
func trueRange(bar exchange.Bar, prevClose float64) float64 {
	hl := bar.High - bar.Low
	hc := math.Abs(bar.High - prevClose)
	lc := math.Abs(bar.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// GetRequiredPeriods returns the minimum number of bars needed; the first bar only supplies a previous close.
func (a *ATR) GetRequiredPeriods() int {
	return a.period + 1
}
