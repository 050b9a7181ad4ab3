package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"console-service/internal/models"
	"console-service/internal/repository"
)

// AgentService manages backup agents registered under tenants. API keys
// are issued once at registration; only their bcrypt hash is stored.
type AgentService struct {
	agents  *repository.AgentRepository
	tenants *TenantService
	logger  *logrus.Logger

	offlineThreshold time.Duration
	apiKeyExpiry     time.Duration
}

// NewAgentService creates a new agent service
func NewAgentService(agents *repository.AgentRepository, tenants *TenantService, logger *logrus.Logger, offlineThreshold time.Duration, apiKeyExpiryDays int) *AgentService {
	if logger == nil {
		logger = logrus.New()
	}
	if offlineThreshold <= 0 {
		offlineThreshold = 5 * time.Minute
	}
	return &AgentService{
		agents:           agents,
		tenants:          tenants,
		logger:           logger,
		offlineThreshold: offlineThreshold,
		apiKeyExpiry:     time.Duration(apiKeyExpiryDays) * 24 * time.Hour,
	}
}

// RegisterAgentRequest holds the fields for agent registration
type RegisterAgentRequest struct {
	TenantID      uuid.UUID    `json:"tenant_id" binding:"required"`
	Name          string       `json:"name" binding:"required"`
	Hostname      string       `json:"hostname" binding:"required"`
	IPAddress     string       `json:"ip_address"`
	OSType        string       `json:"os_type" binding:"required"`
	OSVersion     string       `json:"os_version"`
	AgentVersion  string       `json:"agent_version" binding:"required"`
	Tags          string       `json:"tags"`
	Configuration models.JSONB `json:"configuration"`
}

// HeartbeatRequest holds the fields an agent reports on heartbeat
type HeartbeatRequest struct {
	Status        string       `json:"status"`
	IPAddress     string       `json:"ip_address"`
	AgentVersion  string       `json:"agent_version"`
	Configuration models.JSONB `json:"configuration"`
}

// Register creates an agent under a tenant and returns it together with
// the one-time plaintext API key
func (s *AgentService) Register(ctx context.Context, req RegisterAgentRequest) (*models.Agent, string, error) {
	tenant, err := s.tenants.Get(ctx, req.TenantID)
	if err != nil {
		return nil, "", err
	}
	if tenant.IsDeleted() || tenant.Status != models.TenantStatusActive {
		return nil, "", NewValidationError("tenant_id", "tenant is not active")
	}

	count, err := s.agents.CountByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, "", NewStorageError("count agents", err)
	}
	if tenant.MaxAgents > 0 && count >= int64(tenant.MaxAgents) {
		return nil, "", NewValidationError("tenant_id", fmt.Sprintf("agent quota of %d reached", tenant.MaxAgents))
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate API key: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash API key: %w", err)
	}

	expires := time.Now().UTC().Add(s.apiKeyExpiry)
	agent := &models.Agent{
		TenantID:        tenant.ID,
		Name:            req.Name,
		Hostname:        req.Hostname,
		IPAddress:       req.IPAddress,
		OSType:          req.OSType,
		OSVersion:       req.OSVersion,
		AgentVersion:    req.AgentVersion,
		Tags:            req.Tags,
		Configuration:   req.Configuration,
		APIKeyHash:      string(hash),
		APIKeyExpiresAt: &expires,
		Status:          models.AgentStatusOffline,
		ConnectionType:  models.ConnectionTypeWebsocket,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, "", NewStorageError("register agent", err)
	}

	s.logger.WithFields(logrus.Fields{
		"agent":  agent.ID,
		"tenant": tenant.ID,
	}).Info("Agent registered")

	return agent, apiKey, nil
}

// Heartbeat verifies the agent's API key and records its reported state
func (s *AgentService) Heartbeat(ctx context.Context, agentID uuid.UUID, apiKey string, req HeartbeatRequest) (*models.Agent, error) {
	if req.Status != "" && !isValidAgentStatus(req.Status) {
		return nil, NewValidationError("status", fmt.Sprintf("must be one of %v", models.ValidAgentStatuses))
	}

	agent, err := s.agents.FindByID(ctx, agentID)
	if err != nil {
		return nil, NewStorageError("find agent", err)
	}
	if agent == nil {
		return nil, NewNotFoundError("agent", agentID.String())
	}

	if err := bcrypt.CompareHashAndPassword([]byte(agent.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, NewValidationError("api_key", "invalid API key")
	}
	if agent.APIKeyExpiresAt != nil && time.Now().After(*agent.APIKeyExpiresAt) {
		return nil, NewValidationError("api_key", "API key expired")
	}

	now := time.Now().UTC()
	agent.LastHeartbeat = &now
	agent.LastSeen = &now
	agent.Status = models.AgentStatusOnline
	if req.Status != "" {
		agent.Status = req.Status
	}
	if req.IPAddress != "" {
		agent.IPAddress = req.IPAddress
	}
	if req.AgentVersion != "" {
		agent.AgentVersion = req.AgentVersion
	}
	if req.Configuration != nil {
		agent.Configuration = req.Configuration
	}

	if err := s.agents.Save(ctx, agent); err != nil {
		return nil, NewStorageError("save agent", err)
	}
	return agent, nil
}

// Get fetches an agent by id
func (s *AgentService) Get(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	agent, err := s.agents.FindByID(ctx, id)
	if err != nil {
		return nil, NewStorageError("find agent", err)
	}
	if agent == nil {
		return nil, NewNotFoundError("agent", id.String())
	}
	return agent, nil
}

// ListByTenant returns the agents of a tenant, optionally filtered by status
func (s *AgentService) ListByTenant(ctx context.Context, tenantID uuid.UUID, status string) ([]*models.Agent, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	var agents []*models.Agent
	var err error
	if status != "" {
		agents, err = s.agents.FindByTenantAndStatus(ctx, tenantID, status)
	} else {
		agents, err = s.agents.FindByTenant(ctx, tenantID)
	}
	if err != nil {
		return nil, NewStorageError("list agents", err)
	}
	return agents, nil
}

// Decommission permanently removes an agent
func (s *AgentService) Decommission(ctx context.Context, id uuid.UUID) error {
	agent, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.agents.Delete(ctx, agent.ID); err != nil {
		return NewStorageError("delete agent", err)
	}
	s.logger.WithField("agent", id).Info("Agent decommissioned")
	return nil
}

// SweepOffline marks agents OFFLINE whose heartbeat is older than the
// configured threshold. Called by the background runner.
func (s *AgentService) SweepOffline(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.offlineThreshold)
	swept, err := s.agents.MarkStaleOffline(ctx, cutoff)
	if err != nil {
		return 0, NewStorageError("sweep offline", err)
	}
	if swept > 0 {
		s.logger.WithField("count", swept).Info("Marked stale agents offline")
	}
	return swept, nil
}

func isValidAgentStatus(s string) bool {
	for _, valid := range models.ValidAgentStatuses {
		if s == valid {
			return true
		}
	}
	return false
}

// generateAPIKey returns a 64-character hex key from a CSPRNG
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
