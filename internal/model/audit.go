package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionSubmitRequisition  = "SUBMIT_REQUISITION"
	ActionApproveRequisition = "APPROVE_REQUISITION"
	ActionRejectRequisition  = "REJECT_REQUISITION"

	ActionCreateCategory = "CREATE_CATEGORY"
	ActionCreateProject  = "CREATE_PROJECT"
	ActionCreateUser     = "CREATE_USER"
)

// AuditLog tracks Who, What, and When for every requisition transition and the
// supporting record changes around it
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
