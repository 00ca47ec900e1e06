package entitlement

import (
	"testing"

	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/types"
)

func acc(tier account.Tier, limit int64) *account.Account {
	return &account.Account{Tier: tier, MonthlyLimit: limit}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name            string
		account         *account.Account
		completed       int64
		canProceed      bool
		requiresPayment bool
		amountDue       types.Money
		reason          Reason
	}{
		{
			name:       "free tier first conversion is free",
			account:    acc(account.TierFree, 1),
			completed:  0,
			canProceed: true,
			amountDue:  types.USD(0),
			reason:     ReasonFirstFree,
		},
		{
			name:            "free tier second conversion requires payment",
			account:         acc(account.TierFree, 1),
			completed:       1,
			canProceed:      true,
			requiresPayment: true,
			amountDue:       PricePerConversion,
			reason:          ReasonPaymentAvailable,
		},
		{
			name:            "free tier never denied regardless of volume",
			account:         acc(account.TierFree, 1),
			completed:       1000,
			canProceed:      true,
			requiresPayment: true,
			amountDue:       PricePerConversion,
			reason:          ReasonPaymentAvailable,
		},
		{
			name:       "team tier under limit proceeds free",
			account:    acc(account.TierTeam, 500),
			completed:  499,
			canProceed: true,
			amountDue:  types.USD(0),
			reason:     ReasonWithinLimit,
		},
		{
			name:       "team tier at limit is denied",
			account:    acc(account.TierTeam, 500),
			completed:  500,
			canProceed: false,
			amountDue:  types.USD(0),
			reason:     ReasonDenied,
		},
		{
			name:       "team tier over limit is denied",
			account:    acc(account.TierTeam, 500),
			completed:  501,
			canProceed: false,
			amountDue:  types.USD(0),
			reason:     ReasonDenied,
		},
		{
			name:       "pro tier is unlimited",
			account:    acc(account.TierPro, account.Unlimited),
			completed:  1 << 40,
			canProceed: true,
			amountDue:  types.USD(0),
			reason:     ReasonWithinLimit,
		},
		{
			name:       "unset limit falls back to tier default",
			account:    acc(account.TierTeam, 0),
			completed:  500,
			canProceed: false,
			amountDue:  types.USD(0),
			reason:     ReasonDenied,
		},
		{
			name:       "custom team limit respected",
			account:    acc(account.TierTeam, 10),
			completed:  10,
			canProceed: false,
			amountDue:  types.USD(0),
			reason:     ReasonDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.account, tt.completed)

			if d.CanProceed != tt.canProceed {
				t.Errorf("CanProceed: got %v, want %v", d.CanProceed, tt.canProceed)
			}
			if d.RequiresPayment != tt.requiresPayment {
				t.Errorf("RequiresPayment: got %v, want %v", d.RequiresPayment, tt.requiresPayment)
			}
			if !d.AmountDue.Equal(tt.amountDue) {
				t.Errorf("AmountDue: got %v, want %v", d.AmountDue, tt.amountDue)
			}
			if d.Reason != tt.reason {
				t.Errorf("Reason: got %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	a := acc(account.TierFree, 1)
	first := Evaluate(a, 3)
	for i := 0; i < 10; i++ {
		if got := Evaluate(a, 3); got != first {
			t.Fatalf("evaluation not deterministic: %+v != %+v", got, first)
		}
	}
}

func TestEvaluateNeverRequiresPaymentWhenDenied(t *testing.T) {
	// A denied decision must never carry a paid path.
	for completed := int64(500); completed < 510; completed++ {
		d := Evaluate(acc(account.TierTeam, 500), completed)
		if d.CanProceed || d.RequiresPayment || !d.AmountDue.IsZero() {
			t.Fatalf("denied decision carries payment: %+v", d)
		}
	}
}
