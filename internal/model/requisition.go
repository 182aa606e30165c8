package model

import (
	"time"

	"crm-backend/internal/approval"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Requisition represents a monetary expense request moving through approval.
// Requester, amount, and category are immutable after submission; only the
// approval engine flips status, and each transition writes exactly one of the
// three stamp groups below. APPROVED and REJECTED are terminal.
type Requisition struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequesterID uuid.UUID `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester   *User     `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`

	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Category    string          `gorm:"type:varchar(100);not null" json:"category"` // name from the category registry; presence-checked only
	ProjectID   *uuid.UUID      `gorm:"type:uuid;index" json:"project_id"`          // informational link
	Project     *Project        `gorm:"foreignKey:ProjectID" json:"project,omitempty"`

	Status approval.Status `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`

	FinanceApprovedBy *uuid.UUID `gorm:"type:uuid" json:"finance_approved_by"`
	FinanceApprover   *User      `gorm:"foreignKey:FinanceApprovedBy" json:"finance_approver,omitempty"`
	FinanceApprovedAt *time.Time `json:"finance_approved_at"`

	SuperAdminApprovedBy *uuid.UUID `gorm:"type:uuid" json:"super_admin_approved_by"`
	SuperAdminApprover   *User      `gorm:"foreignKey:SuperAdminApprovedBy" json:"super_admin_approver,omitempty"`
	SuperAdminApprovedAt *time.Time `json:"super_admin_approved_at"`

	RejectedBy      *uuid.UUID `gorm:"type:uuid" json:"rejected_by"`
	Rejecter        *User      `gorm:"foreignKey:RejectedBy" json:"rejecter,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason"` // mandatory whenever status is REJECTED

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
