package model

import (
	"time"

	"github.com/google/uuid"
)

// ProjectStatus enum constants
const (
	ProjectStatusActive   = "ACTIVE"
	ProjectStatusArchived = "ARCHIVED"
)

// Project is an informational record a requisition may link to. It carries no
// approval semantics of its own.
type Project struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code        string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Status      string    `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"` // ACTIVE, ARCHIVED
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
