// Package payout computes the commission/payout split for a confirmed tip.
package payout

import "math"

// CommissionRate is the flat platform cut on tips paid without a referral credit.
const CommissionRate = 0.03

// Result is what a confirmed amount breaks down into. NewReferralCredits is the
// balance the caller must persist back to the worker together with the
// transaction fields, in one commit.
type Result struct {
	Payout             int64
	Commission         int64
	UsedReferralCredit bool
	NewReferralCredits int
}

// Calculate splits a confirmed amount. A worker holding referral credits gets
// the full amount and burns one credit; otherwise the commission is rounded to
// the nearest whole currency unit and the payout is the remainder, so the two
// always add back up to the amount.
func Calculate(referralCredits int, amount int64) Result {
	if referralCredits > 0 {
		return Result{
			Payout:             amount,
			Commission:         0,
			UsedReferralCredit: true,
			NewReferralCredits: referralCredits - 1,
		}
	}

	commission := int64(math.Round(CommissionRate * float64(amount)))
	return Result{
		Payout:             amount - commission,
		Commission:         commission,
		UsedReferralCredit: false,
		NewReferralCredits: referralCredits,
	}
}
