// Package entitlement decides whether an account's paper conversion may
// proceed for free, for a fee, or not at all.
package entitlement

import (
	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/types"
)

// PricePerConversion is the charge for a free-tier conversion once the
// free allowance is used up.
var PricePerConversion = types.USD(500) // $5.00

// Reason explains a decision.
type Reason string

const (
	// ReasonFirstFree — free tier, no completed conversions this month.
	ReasonFirstFree Reason = "first-free"

	// ReasonWithinLimit — paid tier, monthly limit not yet reached.
	ReasonWithinLimit Reason = "within-limit"

	// ReasonPaymentAvailable — free allowance used, but a paid path is
	// offered. The product never hard-denies free-tier accounts.
	ReasonPaymentAvailable Reason = "limit-exceeded-payment-available"

	// ReasonDenied — paid tier at its monthly cap. Surfaced to the user as
	// an upgrade prompt, not an error.
	ReasonDenied Reason = "limit-exceeded-denied"
)

// Decision is the computed entitlement for one prospective conversion.
// It is never persisted; it is a pure function of the account and the
// month's completed attempt count.
type Decision struct {
	CanProceed      bool        `json:"can_proceed"`
	RequiresPayment bool        `json:"requires_payment"`
	AmountDue       types.Money `json:"amount_due"`
	Reason          Reason      `json:"reason"`
}

// Evaluate computes the entitlement decision for an account given the number
// of completed conversion attempts in the current calendar month. It has no
// side effects and is deterministic for identical inputs.
//
// Free tier: the first completed conversion each month is free; every one
// after that is offered at PricePerConversion. Paid tiers: allowed while
// under the monthly limit, denied at it. A limit of account.Unlimited is
// never denied.
func Evaluate(acc *account.Account, completedThisMonth int64) Decision {
	if acc.IsFree() {
		if completedThisMonth == 0 {
			return Decision{
				CanProceed:      true,
				RequiresPayment: false,
				AmountDue:       types.Zero(PricePerConversion.Currency),
				Reason:          ReasonFirstFree,
			}
		}
		return Decision{
			CanProceed:      true,
			RequiresPayment: true,
			AmountDue:       PricePerConversion,
			Reason:          ReasonPaymentAvailable,
		}
	}

	limit := acc.EffectiveLimit()
	if limit == account.Unlimited || completedThisMonth < limit {
		return Decision{
			CanProceed:      true,
			RequiresPayment: false,
			AmountDue:       types.Zero(PricePerConversion.Currency),
			Reason:          ReasonWithinLimit,
		}
	}

	return Decision{
		CanProceed:      false,
		RequiresPayment: false,
		AmountDue:       types.Zero(PricePerConversion.Currency),
		Reason:          ReasonDenied,
	}
}
