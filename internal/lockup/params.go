package lockup

import (
	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
)

// Lock-up parameters.
const (
	PrecisionExponent = 12

	MinDurationInMonths = 3
	MaxDurationInMonths = 120
	BoostStepInMonths   = 3

	SecondsPerMonth = 30 * 24 * 60 * 60

	PenaltyPercent = 10
	FeePercent     = 3

	// DurationPolicyVersion identifies the [3,120] duration policy. Version 1
	// accepted [0,120] and is no longer supported.
	DurationPolicyVersion = 2
)

// Precision scales the per-share accumulators.
var Precision = sdkmath.NewIntWithDecimal(1, PrecisionExponent)

// Boost returns the effective-stake factor for a duration.
func Boost(months uint64) uint64 {
	if months < MinDurationInMonths {
		return 0
	}
	return months / BoostStepInMonths
}

// ValidateDuration checks months against the lock-up duration policy.
func ValidateDuration(months uint64) error {
	if months < MinDurationInMonths || months > MaxDurationInMonths {
		return domain.ErrInvalidDuration.Wrapf("%d months, allowed [%d, %d]", months, MinDurationInMonths, MaxDurationInMonths)
	}
	return nil
}

// EffectiveAmount returns amount weighted by the duration boost.
func EffectiveAmount(amount sdkmath.Int, months uint64) sdkmath.Int {
	return amount.Mul(sdkmath.NewIntFromUint64(Boost(months)))
}

// EarlyExitCut returns the penalty and platform fee charged on a forced exit
// of principal amount.
func EarlyExitCut(amount sdkmath.Int) (penalty, fee sdkmath.Int) {
	penalty = amount.MulRaw(PenaltyPercent).QuoRaw(100)
	fee = amount.MulRaw(FeePercent).QuoRaw(100)
	return penalty, fee
}

// Accumulated returns stake * acc / Precision.
func Accumulated(stake, acc sdkmath.Int) sdkmath.Int {
	return stake.Mul(acc).Quo(Precision)
}

// Pending returns what stake has earned at acc since debt was taken, floored at zero.
func Pending(stake, acc, debt sdkmath.Int) sdkmath.Int {
	p := Accumulated(stake, acc).Sub(debt)
	if p.IsNegative() {
		return sdkmath.ZeroInt()
	}
	return p
}

// PerShare returns the accumulator increase for distributing amount over
// stake. stake must be positive.
func PerShare(amount, stake sdkmath.Int) sdkmath.Int {
	return amount.Mul(Precision).Quo(stake)
}
