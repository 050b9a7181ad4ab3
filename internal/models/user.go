package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User roles
const (
	UserRoleAdmin    = "ADMIN"
	UserRoleOperator = "OPERATOR"
	UserRoleViewer   = "VIEWER"
)

// User statuses
const (
	UserStatusActive   = "ACTIVE"
	UserStatusInactive = "INACTIVE"
	UserStatusLocked   = "LOCKED"
)

// User represents a console user scoped to a tenant. Authentication is
// handled by the identity provider; only the profile lives here.
type User struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`

	Email     string `json:"email" gorm:"uniqueIndex;not null;size:255" validate:"required,email"`
	FirstName string `json:"first_name" gorm:"size:100"`
	LastName  string `json:"last_name" gorm:"size:100"`
	Role      string `json:"role" gorm:"size:20;default:'VIEWER';index" validate:"oneof=ADMIN OPERATOR VIEWER"`
	Status    string `json:"status" gorm:"size:20;default:'ACTIVE';index" validate:"oneof=ACTIVE INACTIVE LOCKED"`
	Timezone  string `json:"timezone" gorm:"size:50;default:'UTC'"`
	Locale    string `json:"locale" gorm:"size:10;default:'en'"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName overrides the default table name
func (User) TableName() string {
	return "console_users"
}

// BeforeCreate generates the ID if missing
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
