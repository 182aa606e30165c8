package approval

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *Engine {
	return NewEngine(Policy{Threshold: decimal.NewFromInt(100000)})
}

func TestApprove_TransitionTable(t *testing.T) {
	below := decimal.NewFromInt(99999)
	atThreshold := decimal.NewFromInt(100000)
	above := decimal.NewFromInt(250000)

	tests := []struct {
		name      string
		status    Status
		amount    decimal.Decimal
		role      Role
		wantTo    Status
		wantStamp Stamp
	}{
		{"finance below threshold finalizes", StatusPending, below, RoleFinance, StatusApproved, StampFinance},
		{"admin below threshold finalizes", StatusPending, below, RoleAdmin, StatusApproved, StampFinance},
		{"finance at threshold needs second stage", StatusPending, atThreshold, RoleFinance, StatusFinanceApproved, StampFinance},
		{"finance above threshold needs second stage", StatusPending, above, RoleFinance, StatusFinanceApproved, StampFinance},
		{"admin above threshold needs second stage", StatusPending, above, RoleAdmin, StatusFinanceApproved, StampFinance},
		{"super admin finalizes from pending below threshold", StatusPending, below, RoleSuperAdmin, StatusApproved, StampSuperAdmin},
		{"super admin finalizes from pending above threshold", StatusPending, above, RoleSuperAdmin, StatusApproved, StampSuperAdmin},
		{"super admin finalizes second stage", StatusFinanceApproved, above, RoleSuperAdmin, StatusApproved, StampSuperAdmin},
	}

	engine := testEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := engine.Approve(tt.status, tt.amount, tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.status, decision.From)
			assert.Equal(t, tt.wantTo, decision.To)
			assert.Equal(t, tt.wantStamp, decision.Stamp)
			assert.False(t, decision.At.IsZero())
		})
	}
}

func TestApprove_Unauthorized(t *testing.T) {
	amount := decimal.NewFromInt(500)

	tests := []struct {
		name   string
		status Status
		role   Role
	}{
		{"requester cannot approve pending", StatusPending, RoleRequester},
		{"requester cannot approve second stage", StatusFinanceApproved, RoleRequester},
		{"finance cannot approve second stage", StatusFinanceApproved, RoleFinance},
		{"admin cannot approve second stage", StatusFinanceApproved, RoleAdmin},
	}

	engine := testEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Approve(tt.status, amount, tt.role)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestApprove_TerminalStatus(t *testing.T) {
	engine := testEngine()
	amount := decimal.NewFromInt(500)

	for _, status := range []Status{StatusApproved, StatusRejected} {
		for _, role := range []Role{RoleRequester, RoleFinance, RoleAdmin, RoleSuperAdmin} {
			_, err := engine.Approve(status, amount, role)
			assert.ErrorIs(t, err, ErrInvalidState, "status=%s role=%s", status, role)
		}
	}
}

func TestReject(t *testing.T) {
	engine := testEngine()

	t.Run("reviewer roles reject from non-terminal states", func(t *testing.T) {
		for _, status := range []Status{StatusPending, StatusFinanceApproved} {
			for _, role := range []Role{RoleFinance, RoleAdmin, RoleSuperAdmin} {
				decision, err := engine.Reject(status, role, "over budget")
				require.NoError(t, err, "status=%s role=%s", status, role)
				assert.Equal(t, StatusRejected, decision.To)
				assert.Equal(t, StampRejection, decision.Stamp)
			}
		}
	})

	t.Run("requester cannot reject", func(t *testing.T) {
		_, err := engine.Reject(StatusPending, RoleRequester, "over budget")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("terminal states refuse rejection", func(t *testing.T) {
		for _, status := range []Status{StatusApproved, StatusRejected} {
			_, err := engine.Reject(status, RoleSuperAdmin, "over budget")
			assert.ErrorIs(t, err, ErrInvalidState, "status=%s", status)
		}
	})

	t.Run("empty reason fails before any other check", func(t *testing.T) {
		for _, reason := range []string{"", "   ", "\t\n"} {
			for _, status := range []Status{StatusPending, StatusFinanceApproved, StatusApproved, StatusRejected} {
				for _, role := range []Role{RoleRequester, RoleFinance, RoleAdmin, RoleSuperAdmin} {
					_, err := engine.Reject(status, role, reason)
					var vErr *ValidationError
					assert.ErrorAs(t, err, &vErr, "status=%s role=%s reason=%q", status, role, reason)
				}
			}
		}
	})
}

// CanApprove and CanReject must agree with Approve and Reject across the whole
// input space so the eligibility endpoint never advertises a doomed attempt.
func TestEligibilityMatchesDecisions(t *testing.T) {
	engine := testEngine()
	statuses := []Status{StatusPending, StatusFinanceApproved, StatusApproved, StatusRejected}
	roles := []Role{RoleRequester, RoleFinance, RoleAdmin, RoleSuperAdmin}
	amounts := []decimal.Decimal{
		decimal.NewFromInt(1),
		decimal.NewFromInt(99999),
		decimal.NewFromInt(100000),
		decimal.NewFromInt(1000000),
	}

	for _, status := range statuses {
		for _, role := range roles {
			for _, amount := range amounts {
				_, approveErr := engine.Approve(status, amount, role)
				assert.Equal(t, approveErr == nil, engine.CanApprove(status, amount, role),
					"approve status=%s role=%s amount=%s", status, role, amount)
			}
			_, rejectErr := engine.Reject(status, role, "probe")
			assert.Equal(t, rejectErr == nil, engine.CanReject(status, role),
				"reject status=%s role=%s", status, role)
		}
	}
}

func TestApprove_ThresholdBoundary(t *testing.T) {
	engine := NewEngine(Policy{Threshold: decimal.NewFromInt(100)})

	decision, err := engine.Approve(StatusPending, decimal.RequireFromString("99.99"), RoleFinance)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, decision.To)

	decision, err = engine.Approve(StatusPending, decimal.NewFromInt(100), RoleFinance)
	require.NoError(t, err)
	assert.Equal(t, StatusFinanceApproved, decision.To)
}

func TestResolveRole(t *testing.T) {
	assert.Equal(t, RoleFinance, ResolveRole("finance"))
	assert.Equal(t, RoleSuperAdmin, ResolveRole("super_admin"))
	assert.Equal(t, RoleRequester, ResolveRole("intern"))
	assert.Equal(t, RoleRequester, ResolveRole(""))
}

func TestPolicyFromEnv(t *testing.T) {
	t.Run("unset falls back to default", func(t *testing.T) {
		t.Setenv("APPROVAL_THRESHOLD", "")
		assert.True(t, PolicyFromEnv().Threshold.Equal(DefaultThreshold))
	})

	t.Run("valid value is used", func(t *testing.T) {
		t.Setenv("APPROVAL_THRESHOLD", "50000")
		assert.True(t, PolicyFromEnv().Threshold.Equal(decimal.NewFromInt(50000)))
	})

	t.Run("garbage falls back to default", func(t *testing.T) {
		t.Setenv("APPROVAL_THRESHOLD", "not-a-number")
		assert.True(t, PolicyFromEnv().Threshold.Equal(DefaultThreshold))
	})

	t.Run("non-positive falls back to default", func(t *testing.T) {
		t.Setenv("APPROVAL_THRESHOLD", "-5")
		assert.True(t, PolicyFromEnv().Threshold.Equal(DefaultThreshold))
	})
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusFinanceApproved.Terminal())

	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("DRAFT").Valid())
}

func TestValidationErrorIsNotSentinel(t *testing.T) {
	_, err := testEngine().Reject(StatusPending, RoleFinance, "  ")
	assert.False(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrUnauthorized))
}
