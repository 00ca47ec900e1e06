package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"
	ActionTierChanged    = "account.tier_changed"

	// Entitlement actions
	ActionDecisionEvaluated = "entitlement.evaluated"
	ActionFreeGranted       = "entitlement.free_granted"
	ActionLimitExceeded     = "entitlement.limit_exceeded"

	// Usage actions
	ActionAttemptRecorded  = "attempt.recorded"
	ActionDecisionsFlushed = "decisions.flushed"

	// Payment actions
	ActionPaymentCharged = "payment.charged"
	ActionPaymentFailed  = "payment.failed"
	ActionRefundIssued   = "payment.refunded"
)

// Resource constants for audit events.
const (
	ResourceAccount     = "account"
	ResourceEntitlement = "entitlement"
	ResourceAttempt     = "attempt"
	ResourcePayment     = "payment"
)

// Category constants for audit events.
const (
	CategoryAccount = "account"
	CategoryAccess  = "access"
	CategoryUsage   = "usage"
	CategoryPayment = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
