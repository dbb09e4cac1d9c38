package risk

import "riskgate/utils"

// PositionSizer turns volatility into a share count that risks a fixed slice of equity.
type PositionSizer struct {
	StopMultiple float64
}

// RecommendedShares returns floor((equity * riskFraction) / (atr * StopMultiple)).
// It returns 0 whenever the inputs cannot produce a safe size, including a zero or missing ATR.
func (s PositionSizer) RecommendedShares(equity, riskFraction, atr, referencePrice float64) int64 {
	if atr <= 0 || equity <= 0 || riskFraction <= 0 || s.StopMultiple <= 0 || referencePrice <= 0 {
		return 0
	}
	budget := utils.Dec(equity).Mul(utils.Dec(riskFraction))
	riskPerShare := utils.Dec(atr).Mul(utils.Dec(s.StopMultiple))
	return utils.FloorShares(budget, riskPerShare)
}
