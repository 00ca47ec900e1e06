package entitlement

import (
	"time"

	"github.com/paperforge/ledger/id"
	"github.com/paperforge/ledger/types"
)

// Event is an analytics record of one evaluated decision. Unlike the
// attempt log it is loss-tolerant: events are buffered in memory and
// flushed in batches, so a crash can drop the tail of the stream without
// corrupting entitlement state.
type Event struct {
	ID         id.DecisionID `json:"id"`
	AccountID  id.AccountID  `json:"account_id"`
	CanProceed bool          `json:"can_proceed"`
	Reason     Reason        `json:"reason"`
	AmountDue  types.Money   `json:"amount_due"`
	Timestamp  time.Time     `json:"timestamp"`
}
