// Package payment defines the gateway strategy interface for charging and
// refunding conversions. The ledger never talks to a processor directly;
// callers inject a Gateway so tests can use deterministic implementations.
package payment

import (
	"context"

	"github.com/paperforge/ledger/types"
)

// ChargeRequest describes a single charge.
type ChargeRequest struct {
	Amount   types.Money       `json:"amount"`
	PaperRef string            `json:"paper_ref"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Outcome is the gateway's answer to a charge. A declined or timed-out
// charge returns Success=false with no Reference; the ledger performs no
// automatic retry, so a failed payment stays failed until the user
// re-initiates. That is what prevents double-charging.
type Outcome struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference,omitempty"` // processor id, e.g. "pi_…"
	Decline   string `json:"decline,omitempty"`   // human-readable decline reason
}

// Gateway authorizes charges and refunds against an external processor.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Outcome, error)
	Refund(ctx context.Context, reference, reason string) error
}
