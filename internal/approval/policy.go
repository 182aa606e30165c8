package approval

import (
	"os"

	"github.com/shopspring/decimal"
)

// DefaultThreshold is the amount at or above which a requisition needs a second
// (super admin) approval stage.
var DefaultThreshold = decimal.NewFromInt(100000)

// Policy carries the approval threshold. It is injected into the engine so
// deployments and tests can vary it without touching the transition table.
type Policy struct {
	Threshold decimal.Decimal
}

// PolicyFromEnv reads APPROVAL_THRESHOLD, falling back to DefaultThreshold when
// the variable is unset, unparseable, or not positive.
func PolicyFromEnv() Policy {
	if raw := os.Getenv("APPROVAL_THRESHOLD"); raw != "" {
		if t, err := decimal.NewFromString(raw); err == nil && t.IsPositive() {
			return Policy{Threshold: t}
		}
	}
	return Policy{Threshold: DefaultThreshold}
}
