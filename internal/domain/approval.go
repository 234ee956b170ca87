package domain

import "time"

type ApprovalStatus string

const (
	ApprovalNoneRequired    ApprovalStatus = "none_required"
	ApprovalRequiredNotSent ApprovalStatus = "required_not_sent"
	ApprovalPending         ApprovalStatus = "pending"
	ApprovalApproved        ApprovalStatus = "approved"
	ApprovalRejected        ApprovalStatus = "rejected"
)

// Terminal reports whether the status is a human decision that live
// re-evaluation must never overwrite.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// ApprovalDecision is the outcome of running the rule set over one
// DerivedMetrics. Reasons keep rule order.
type ApprovalDecision struct {
	Status      ApprovalStatus `json:"status"`
	Reasons     []string       `json:"reasons,omitempty"`
	EvaluatedAt time.Time      `json:"evaluatedAt"`
	DecidedBy   string         `json:"decidedBy,omitempty"`
}
