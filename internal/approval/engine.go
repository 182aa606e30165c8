// Package approval implements the requisition approval state machine:
// PENDING -> FINANCE_APPROVED -> APPROVED, with REJECTED reachable from either
// non-terminal status. The engine is pure — it decides transitions but performs
// no persistence, so the service layer owns the conditional write.
package approval

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnauthorized means the actor's role does not permit the requested
	// transition in the requisition's current status.
	ErrUnauthorized = errors.New("role not permitted to perform this transition")

	// ErrInvalidState means the requisition is already approved or rejected.
	ErrInvalidState = errors.New("requisition already finalized")

	// ErrConflict means a conditional write lost the race to a concurrent
	// transition. Raised by the store, not by the engine itself.
	ErrConflict = errors.New("requisition status changed concurrently")
)

// ValidationError reports malformed caller input (non-positive amount, empty
// required field, empty rejection reason). Kept distinct from the sentinels so
// handlers can map it separately.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Stamp identifies which audit field group a transition writes
type Stamp string

const (
	StampFinance    Stamp = "FINANCE_APPROVAL"
	StampSuperAdmin Stamp = "SUPER_ADMIN_APPROVAL"
	StampRejection  Stamp = "REJECTION"
)

// amountBucket positions a requisition's amount relative to the threshold
type amountBucket int

const (
	anyAmount amountBucket = iota
	belowThreshold
	atOrAboveThreshold
)

// approveRule is one row of the approval transition table:
// (status, role, amount bucket) -> (next status, stamp group).
type approveRule struct {
	from   Status
	role   Role
	amount amountBucket
	to     Status
	stamp  Stamp
}

// The super admin rows finalize from PENDING at any amount with only the super
// admin stamp — an escalation path that skips the finance stage even below
// threshold. Preserved as observed behavior, pending product-owner confirmation.
var approveRules = []approveRule{
	{StatusPending, RoleFinance, belowThreshold, StatusApproved, StampFinance},
	{StatusPending, RoleFinance, atOrAboveThreshold, StatusFinanceApproved, StampFinance},
	{StatusPending, RoleAdmin, belowThreshold, StatusApproved, StampFinance},
	{StatusPending, RoleAdmin, atOrAboveThreshold, StatusFinanceApproved, StampFinance},
	{StatusPending, RoleSuperAdmin, anyAmount, StatusApproved, StampSuperAdmin},
	{StatusFinanceApproved, RoleSuperAdmin, anyAmount, StatusApproved, StampSuperAdmin},
}

// Decision describes the single legal transition for a successful attempt.
// Exactly one stamp group is written per decision.
type Decision struct {
	From  Status
	To    Status
	Stamp Stamp
	At    time.Time
}

// Engine evaluates transition attempts against the rule table
type Engine struct {
	threshold decimal.Decimal
	now       func() time.Time
}

func NewEngine(policy Policy) *Engine {
	return &Engine{
		threshold: policy.Threshold,
		now:       time.Now,
	}
}

func (e *Engine) bucket(amount decimal.Decimal) amountBucket {
	if amount.LessThan(e.threshold) {
		return belowThreshold
	}
	return atOrAboveThreshold
}

// Approve decides the transition for an approval attempt. It returns
// ErrInvalidState for finalized requisitions and ErrUnauthorized when no table
// row matches the actor's role in the current status.
func (e *Engine) Approve(status Status, amount decimal.Decimal, role Role) (Decision, error) {
	if status.Terminal() {
		return Decision{}, ErrInvalidState
	}

	bucket := e.bucket(amount)
	for _, rule := range approveRules {
		if rule.from != status || rule.role != role {
			continue
		}
		if rule.amount != anyAmount && rule.amount != bucket {
			continue
		}
		return Decision{From: status, To: rule.to, Stamp: rule.stamp, At: e.now()}, nil
	}

	return Decision{}, ErrUnauthorized
}

// CanApprove reports whether Approve would accept the same attempt. Shares the
// exact decision path so the eligibility check never diverges from the engine.
func (e *Engine) CanApprove(status Status, amount decimal.Decimal, role Role) bool {
	_, err := e.Approve(status, amount, role)
	return err == nil
}

// Reject decides the transition for a rejection attempt. The reason is required
// and may not be whitespace-only, regardless of role and status.
func (e *Engine) Reject(status Status, role Role, reason string) (Decision, error) {
	if strings.TrimSpace(reason) == "" {
		return Decision{}, &ValidationError{Msg: "rejection reason is required"}
	}
	if status.Terminal() {
		return Decision{}, ErrInvalidState
	}
	if !role.CanReview() {
		return Decision{}, ErrUnauthorized
	}

	return Decision{From: status, To: StatusRejected, Stamp: StampRejection, At: e.now()}, nil
}

// CanReject reports whether Reject would accept the attempt, reason aside
func (e *Engine) CanReject(status Status, role Role) bool {
	_, err := e.Reject(status, role, "eligibility probe")
	return err == nil
}
