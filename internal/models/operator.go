package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is an operator's permission level.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleReception Role = "reception"
)

// Operator is a staff member who books places and runs admissions.
type Operator struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
