package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PathSeparator joins the chain of slugs that forms a tenant's
// materialized path
const PathSeparator = "/"

// Tenant types
const (
	TenantTypeAdmin      = "ADMIN"
	TenantTypeWholesaler = "WHOLESALER"
	TenantTypePartner    = "PARTNER"
	TenantTypeClient     = "CLIENT"
)

// Tenant statuses
const (
	TenantStatusActive         = "ACTIVE"
	TenantStatusSuspended      = "SUSPENDED"
	TenantStatusPendingClosure = "PENDING_CLOSURE"
	TenantStatusClosed         = "CLOSED"
)

// ValidTenantTypes lists all accepted tenant type values
var ValidTenantTypes = []string{TenantTypeAdmin, TenantTypeWholesaler, TenantTypePartner, TenantTypeClient}

// ValidTenantStatuses lists all accepted tenant status values
var ValidTenantStatuses = []string{TenantStatusActive, TenantStatusSuspended, TenantStatusPendingClosure, TenantStatusClosed}

// Tenant represents an organization node in the tenant tree.
//
// Tree position is encoded in the materialized path: the slugs of the
// ancestor chain joined by "/" (e.g. "acme/division-1/team-3"). Level is
// the zero-based depth and always equals the number of path segments
// minus one. Both are derived from the parent chain and recomputed on
// every structural change; descendant and ancestor queries run as
// string-prefix matches on path.
//
// Slug and external-ID uniqueness is enforced only among live rows; a
// soft delete frees both identifiers for reuse.
type Tenant struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Name        string     `json:"name" gorm:"not null;size:255" validate:"required,min=1,max=255"`
	DisplayName string     `json:"display_name" gorm:"size:255"`
	Slug        string     `json:"slug" gorm:"uniqueIndex:idx_tenants_slug,where:deleted_at IS NULL;not null;size:255"`
	ExternalID  *string    `json:"external_id,omitempty" gorm:"uniqueIndex:idx_tenants_external_id,where:deleted_at IS NULL;size:255"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty" gorm:"type:uuid;index"`
	Path        string     `json:"path" gorm:"not null;index;size:1024"`
	Level       int        `json:"level" gorm:"not null;default:0;index"`

	TenantType string `json:"tenant_type" gorm:"not null;default:'CLIENT';index" validate:"oneof=ADMIN WHOLESALER PARTNER CLIENT"`
	Status     string `json:"status" gorm:"not null;default:'ACTIVE';index" validate:"oneof=ACTIVE SUSPENDED PENDING_CLOSURE CLOSED"`

	SuspensionReason string `json:"suspension_reason,omitempty" gorm:"size:500"`

	// Business metadata, not touched by the hierarchy logic
	Industry     string `json:"industry,omitempty" gorm:"size:100"`
	SizeCategory string `json:"size_category,omitempty" gorm:"size:50"`
	Timezone     string `json:"timezone" gorm:"size:50;default:'UTC'"`
	Locale       string `json:"locale" gorm:"size:10;default:'en'"`
	Currency     string `json:"currency" gorm:"size:3;default:'USD'"`
	Country      string `json:"country,omitempty" gorm:"size:2"`

	// Quotas
	MaxUsers      int   `json:"max_users" gorm:"default:10"`
	MaxAgents     int   `json:"max_agents" gorm:"default:5"`
	MaxStorageGB  int   `json:"max_storage_gb" gorm:"default:100"`
	UsedStorageGB int64 `json:"used_storage_gb" gorm:"default:0"`

	// Billing
	BillingContactEmail   string     `json:"billing_contact_email,omitempty" gorm:"size:255"`
	BillingAddress        JSONB      `json:"billing_address,omitempty" gorm:"type:jsonb"`
	ContractNumber        string     `json:"contract_number,omitempty" gorm:"size:100"`
	SubscriptionPlan      string     `json:"subscription_plan" gorm:"size:50;default:'standard'"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`

	Settings         JSONB `json:"settings,omitempty" gorm:"type:jsonb;default:'{}'"`
	CustomAttributes JSONB `json:"custom_attributes,omitempty" gorm:"type:jsonb;default:'{}'"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	SuspendedAt *time.Time `json:"suspended_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName overrides the default table name
func (Tenant) TableName() string {
	return "tenants"
}

// BeforeCreate generates the ID if missing
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.DisplayName == "" {
		t.DisplayName = t.Name
	}
	return nil
}

// IsRoot reports whether the tenant has no parent
func (t *Tenant) IsRoot() bool {
	return t.ParentID == nil
}

// IsActive reports whether the tenant is in ACTIVE status and not deleted
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive && t.DeletedAt == nil
}

// IsDeleted reports whether the tenant is soft-deleted
func (t *Tenant) IsDeleted() bool {
	return t.DeletedAt != nil
}

// PathSegments returns the slugs composing the path, root first
func (t *Tenant) PathSegments() []string {
	if t.Path == "" {
		return nil
	}
	return strings.Split(t.Path, PathSeparator)
}

// RootSlug returns the first segment of the path (the root ancestor's slug)
func (t *Tenant) RootSlug() string {
	segments := t.PathSegments()
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

// CountPathSegments returns the number of "/"-separated segments in a path
func CountPathSegments(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, PathSeparator) + 1
}

// LevelForPath derives the zero-based level from a materialized path
func LevelForPath(path string) int {
	return CountPathSegments(path) - 1
}

// Tenant activity actions
const (
	ActivityTenantCreated   = "TENANT_CREATED"
	ActivityTenantUpdated   = "TENANT_UPDATED"
	ActivityTenantMoved     = "TENANT_MOVED"
	ActivityTenantDeleted   = "TENANT_DELETED"
	ActivityTenantSuspended = "TENANT_SUSPENDED"
	ActivityTenantRestored  = "TENANT_RESTORED"
)

// TenantActivityLog records a lifecycle action taken on a tenant
type TenantActivityLog struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	TenantID  uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Action    string     `json:"action" gorm:"not null;size:50;index"`
	Detail    JSONB      `json:"detail,omitempty" gorm:"type:jsonb"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt time.Time  `json:"created_at" gorm:"index"`
}

// TableName overrides the default table name
func (TenantActivityLog) TableName() string {
	return "tenant_activity_logs"
}

// BeforeCreate generates the ID if missing
func (l *TenantActivityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
