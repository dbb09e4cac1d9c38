package risk

// ReasonCode explains a decision. Rejections are values, never errors: a bad proposal must not halt the cycle.
type ReasonCode string

// Terminal reasons. A resize that leaves zero shares always reports ReasonSizeCollapsedToZero;
// a resize that leaves a non-zero size below the minimum notional reports the resizing stage's own code.
const (
	ReasonApproved              ReasonCode = "APPROVED"
	ReasonInvalidProposal       ReasonCode = "INVALID_PROPOSAL"
	ReasonInvalidPrice          ReasonCode = "INVALID_PRICE"
	ReasonNotionalTooSmall      ReasonCode = "NOTIONAL_TOO_SMALL"
	ReasonMissingVolatilityData ReasonCode = "MISSING_VOLATILITY_DATA"
	ReasonExposureCapExceeded   ReasonCode = "EXPOSURE_CAP_EXCEEDED"
	ReasonInsufficientCash      ReasonCode = "INSUFFICIENT_CASH"
	ReasonInsufficientShares    ReasonCode = "INSUFFICIENT_SHARES"
	ReasonCooldownActive        ReasonCode = "COOLDOWN_ACTIVE"
	ReasonCycleLimitReached     ReasonCode = "CYCLE_LIMIT_REACHED"
	ReasonSizeCollapsedToZero   ReasonCode = "SIZE_COLLAPSED_TO_ZERO"
)

// Resize reasons, recorded in Decision.Adjustments in the order applied.
const (
	ReasonNotionalTooLarge  ReasonCode = "NOTIONAL_TOO_LARGE"
	ReasonVolatilityResized ReasonCode = "VOLATILITY_RESIZED"
	ReasonExposureResized   ReasonCode = "EXPOSURE_RESIZED"
	ReasonCashResized       ReasonCode = "CASH_RESIZED"
	ReasonHoldingsResized   ReasonCode = "HOLDINGS_RESIZED"
)

// AllReasons lists every code, used to pre-register metric label values.
var AllReasons = []ReasonCode{
	ReasonApproved,
	ReasonInvalidProposal,
	ReasonInvalidPrice,
	ReasonNotionalTooSmall,
	ReasonMissingVolatilityData,
	ReasonExposureCapExceeded,
	ReasonInsufficientCash,
	ReasonInsufficientShares,
	ReasonCooldownActive,
	ReasonCycleLimitReached,
	ReasonSizeCollapsedToZero,
	ReasonNotionalTooLarge,
	ReasonVolatilityResized,
	ReasonExposureResized,
	ReasonCashResized,
	ReasonHoldingsResized,
}
