package market

import "math/big"

var rateScalerInt = new(big.Int).SetUint64(RateScaler)

// mulDivDown computes a*b/denom rounded towards zero. A nil or zero input
// yields zero; the denominator must be positive.
func mulDivDown(a, b, denom *big.Int) *big.Int {
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Div(out, denom)
}

// mulDivUp computes a*b/denom rounded away from zero.
func mulDivUp(a, b, denom *big.Int) *big.Int {
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	rem := new(big.Int)
	out.DivMod(out, denom, rem)
	if rem.Sign() > 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}

func mulDiv(a, b, denom *big.Int, roundUp bool) *big.Int {
	if roundUp {
		return mulDivUp(a, b, denom)
	}
	return mulDivDown(a, b, denom)
}

// rateAmount scales amount by a basis-point rate. Amounts a user must pay
// round up; amounts a user receives round down.
func rateAmount(amount *big.Int, rateBps uint64, roundUp bool) *big.Int {
	return mulDiv(amount, new(big.Int).SetUint64(rateBps), rateScalerInt, roundUp)
}

// collateralPortion sizes the deposit required against a notional amount.
// The seller of points carries full notional plus margin; the buyer carries
// only the margin above par. isMaker selects whether the actor stands on the
// offer's own side or takes the opposite one.
func collateralPortion(offerType OfferType, collateralRate uint64, amount *big.Int, isMaker bool, roundUp bool) *big.Int {
	sellerSide := (offerType == OfferTypeAsk) == isMaker
	if sellerSide {
		return rateAmount(amount, collateralRate, roundUp)
	}
	if collateralRate <= RateScaler {
		return big.NewInt(0)
	}
	return rateAmount(amount, collateralRate-RateScaler, roundUp)
}

// unusedCollateral computes the collateral attributable to the unused part of
// an offer: the close refund when rounding down, the relist re-deposit when
// rounding up. The asymmetric rounding keeps the re-deposit at or above the
// refund.
func unusedCollateral(offer *Offer, roundUp bool) *big.Int {
	used := mulDiv(offer.Amount, offer.UsedPoints, offer.Points, !roundUp)
	unused := new(big.Int).Sub(offer.Amount, used)
	if unused.Sign() <= 0 {
		return big.NewInt(0)
	}
	return collateralPortion(offer.OfferType, offer.CollateralRate, unused, true, roundUp)
}

// usedCollateral computes the collateral attributable to the already-used
// part of an offer.
func usedCollateral(offer *Offer, roundUp bool) *big.Int {
	used := mulDiv(offer.Amount, offer.UsedPoints, offer.Points, roundUp)
	if used.Sign() <= 0 {
		return big.NewInt(0)
	}
	return collateralPortion(offer.OfferType, offer.CollateralRate, used, true, roundUp)
}

// abortRefund is the maker's refundable remainder on an aborted ask offer:
// the excess of collateral for the remaining amount (rounded against the
// maker) over collateral for the used amount (rounded for the protocol),
// floored at zero.
func abortRefund(offer *Offer) *big.Int {
	remainingPoints := new(big.Int).Sub(offer.Points, offer.UsedPoints)
	remainingAmount := mulDivDown(offer.Amount, remainingPoints, offer.Points)
	remaining := collateralPortion(offer.OfferType, offer.CollateralRate, remainingAmount, true, false)
	used := usedCollateral(offer, true)
	refund := new(big.Int).Sub(remaining, used)
	if refund.Sign() < 0 {
		return big.NewInt(0)
	}
	return refund
}

// referralSplit divides a platform fee between the registered referrer, the
// acting taker and the maker's retained remainder. The three parts always
// sum to the original fee exactly.
type referralSplit struct {
	Referrer       [20]byte
	ReferrerBonus  *big.Int
	AuthorityBonus *big.Int
	Remainder      *big.Int
}

func splitPlatformFee(fee *big.Int, info *ReferralInfo) referralSplit {
	split := referralSplit{
		ReferrerBonus:  big.NewInt(0),
		AuthorityBonus: big.NewInt(0),
		Remainder:      cloneBigInt(fee),
	}
	if fee == nil || fee.Sign() <= 0 || info == nil || info.Referrer == ([20]byte{}) {
		return split
	}
	split.Referrer = info.Referrer
	split.ReferrerBonus = rateAmount(fee, info.ReferrerRate, false)
	split.AuthorityBonus = rateAmount(fee, info.AuthorityRate, false)
	split.Remainder = new(big.Int).Sub(fee, split.ReferrerBonus)
	split.Remainder.Sub(split.Remainder, split.AuthorityBonus)
	return split
}
