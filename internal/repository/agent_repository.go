package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"console-service/internal/models"
)

// AgentRepository provides access to the agents table
type AgentRepository struct {
	db *gorm.DB
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *gorm.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create inserts a new agent
func (r *AgentRepository) Create(ctx context.Context, agent *models.Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

// Save persists all fields of an existing agent
func (r *AgentRepository) Save(ctx context.Context, agent *models.Agent) error {
	return r.db.WithContext(ctx).Save(agent).Error
}

// FindByID fetches an agent by id
func (r *AgentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// FindByTenant returns all agents registered under a tenant
func (r *AgentRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Agent, error) {
	var agents []*models.Agent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name ASC").
		Find(&agents).Error
	return agents, err
}

// FindByTenantAndStatus returns a tenant's agents filtered by status
func (r *AgentRepository) FindByTenantAndStatus(ctx context.Context, tenantID uuid.UUID, status string) ([]*models.Agent, error) {
	var agents []*models.Agent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("name ASC").
		Find(&agents).Error
	return agents, err
}

// CountByTenant counts the agents registered under a tenant
func (r *AgentRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Agent{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}

// MarkStaleOffline flips agents to OFFLINE whose last heartbeat is older
// than the cutoff. Returns the number of agents affected.
func (r *AgentRepository) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Agent{}).
		Where("status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)", models.AgentStatusOnline, cutoff).
		Updates(map[string]interface{}{
			"status":     models.AgentStatusOffline,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

// Delete permanently removes an agent
func (r *AgentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Agent{}, "id = ?", id).Error
}
