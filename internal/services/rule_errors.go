package services

import "errors"

var (
	// ErrRuleInvalidInput signals bad request data such as a missing org or rule identifier.
	ErrRuleInvalidInput = errors.New("rule service: invalid input")
	// ErrRuleUnavailable indicates the rule store could not be reached.
	ErrRuleUnavailable = errors.New("rule service: store unavailable")
)

// LookupReason classifies why a discount lookup failed to produce a usable rule.
type LookupReason string

const (
	LookupNotFound   LookupReason = "not_found"
	LookupWrongMode  LookupReason = "wrong_mode"
	LookupArchived   LookupReason = "archived"
	LookupNotStarted LookupReason = "not_started"
	LookupExpired    LookupReason = "expired"
)

// DiscountLookupError reports a discount lookup miss. Message is safe to show
// to the operator at the register; Reason is for logs and metrics.
type DiscountLookupError struct {
	Reason  LookupReason
	Message string
}

func (e *DiscountLookupError) Error() string {
	return "rule service: discount lookup failed: " + string(e.Reason)
}
