package model

import (
	"time"

	"github.com/google/uuid"
)

// ExpenseCategory is the category registry requisitions reference by name.
// The approval engine only requires a submission to name a non-empty category;
// the registry itself is plain CRUD managed outside the engine.
type ExpenseCategory struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
