// Package account defines billing accounts and their subscription tiers.
package account

import (
	"github.com/paperforge/ledger/id"
	"github.com/paperforge/ledger/types"
)

// Tier is the subscription tier of an account.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierTeam Tier = "team"
)

// Unlimited is the MonthlyLimit value meaning no cap on completed
// conversions for non-free tiers.
const Unlimited int64 = -1

// Account is a billing account. Accounts are created at signup and never
// deleted; tier and limit changes come from an external billing process.
type Account struct {
	types.Entity
	ID           id.AccountID      `json:"id"`
	Subject      string            `json:"subject"` // external auth subject, stable, never reused
	Email        string            `json:"email"`
	Tier         Tier              `json:"tier"`
	MonthlyLimit int64             `json:"monthly_limit"`
	Demo         bool              `json:"demo"` // demo accounts use the simulated gateway, same code path
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DefaultLimit returns the default monthly completed-conversion limit for a
// tier. The free tier gets a single free conversion; Pro is uncapped and
// Team carries a high monthly allowance.
func DefaultLimit(tier Tier) int64 {
	switch tier {
	case TierPro:
		return Unlimited
	case TierTeam:
		return 500
	default:
		return 1
	}
}

// IsFree reports whether the account is on the free tier.
func (a *Account) IsFree() bool {
	return a.Tier == TierFree
}

// EffectiveLimit returns the account's monthly limit, falling back to the
// tier default when the stored value is zero (unset).
func (a *Account) EffectiveLimit() int64 {
	if a.MonthlyLimit == 0 {
		return DefaultLimit(a.Tier)
	}
	return a.MonthlyLimit
}
