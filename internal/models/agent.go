package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Agent statuses
const (
	AgentStatusOnline      = "ONLINE"
	AgentStatusOffline     = "OFFLINE"
	AgentStatusConnecting  = "CONNECTING"
	AgentStatusError       = "ERROR"
	AgentStatusMaintenance = "MAINTENANCE"
)

// ValidAgentStatuses lists all accepted agent status values
var ValidAgentStatuses = []string{AgentStatusOnline, AgentStatusOffline, AgentStatusConnecting, AgentStatusError, AgentStatusMaintenance}

// Agent connection types
const (
	ConnectionTypeWebsocket   = "WEBSOCKET"
	ConnectionTypeLongPolling = "LONG_POLLING"
)

// Agent represents a backup agent installed on a machine belonging to a tenant
type Agent struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`

	Name         string `json:"name" gorm:"not null;size:100" validate:"required,max=100"`
	Hostname     string `json:"hostname" gorm:"not null;size:255" validate:"required,max=255"`
	IPAddress    string `json:"ip_address,omitempty" gorm:"size:45"`
	OSType       string `json:"os_type" gorm:"not null;size:50" validate:"required"`
	OSVersion    string `json:"os_version,omitempty" gorm:"size:100"`
	AgentVersion string `json:"agent_version" gorm:"not null;size:20" validate:"required"`

	// Only the bcrypt hash of the API key is stored; the plaintext key is
	// returned once at registration
	APIKeyHash      string     `json:"-" gorm:"not null;size:60"`
	APIKeyCreatedAt time.Time  `json:"api_key_created_at"`
	APIKeyExpiresAt *time.Time `json:"api_key_expires_at,omitempty"`

	ConnectionType string     `json:"connection_type" gorm:"size:20;default:'WEBSOCKET'" validate:"oneof=WEBSOCKET LONG_POLLING"`
	Status         string     `json:"status" gorm:"size:20;default:'OFFLINE';index" validate:"oneof=ONLINE OFFLINE CONNECTING ERROR MAINTENANCE"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty" gorm:"index"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`

	AssignedUserID *uuid.UUID `json:"assigned_user_id,omitempty" gorm:"type:uuid;index"`
	Configuration  JSONB      `json:"configuration,omitempty" gorm:"type:jsonb;default:'{}'"`
	Tags           string     `json:"tags,omitempty" gorm:"size:500"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the default table name
func (Agent) TableName() string {
	return "agents"
}

// BeforeCreate generates the ID if missing
func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.APIKeyCreatedAt.IsZero() {
		a.APIKeyCreatedAt = time.Now().UTC()
	}
	return nil
}

// IsOnline reports whether the agent currently reports as connected
func (a *Agent) IsOnline() bool {
	return a.Status == AgentStatusOnline
}
