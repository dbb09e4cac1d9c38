package risk

import (
	"riskgate/utils"

	"github.com/shopspring/decimal"
)

// ExposureTracker enforces per-ticker concentration. It holds no state.
type ExposureTracker struct{}

// MaxAdditionalShares returns floor(max(0, capFraction*equity - currentValue) / referencePrice).
func (ExposureTracker) MaxAdditionalShares(ticker string, portfolio PortfolioSnapshot, referencePrice, capFraction float64) int64 {
	if referencePrice <= 0 || capFraction <= 0 || portfolio.Equity <= 0 {
		return 0
	}
	price := utils.Dec(referencePrice)
	capValue := utils.Dec(portfolio.Equity).Mul(utils.Dec(capFraction))
	room := capValue.Sub(currentValue(portfolio.Holding(ticker), price))
	if !room.IsPositive() {
		return 0
	}
	return utils.FloorShares(room, price)
}

// currentValue prefers the broker's market value and falls back to shares at the reference price.
func currentValue(h Holding, price decimal.Decimal) decimal.Decimal {
	if h.MarketValue > 0 {
		return utils.Dec(h.MarketValue)
	}
	if h.Shares > 0 {
		return decimal.NewFromInt(h.Shares).Mul(price)
	}
	return decimal.Zero
}
