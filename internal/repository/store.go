package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"console-service/internal/models"
)

// TenantStore is the persistence contract the hierarchy logic is written
// against. TenantRepository is the PostgreSQL implementation; tests use an
// in-memory one.
type TenantStore interface {
	// Transaction runs fn against a store bound to one transaction;
	// everything fn does commits or rolls back atomically
	Transaction(ctx context.Context, fn func(tx TenantStore) error) error

	Create(ctx context.Context, tenant *models.Tenant) error
	Save(ctx context.Context, tenant *models.Tenant) error
	SaveAll(ctx context.Context, tenants []*models.Tenant) error

	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Tenant, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	SlugExistsExcluding(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error)

	FindRoots(ctx context.Context) ([]*models.Tenant, error)
	FindDirectChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Tenant, error)
	FindDirectChildrenByStatus(ctx context.Context, parentID uuid.UUID, status string) ([]*models.Tenant, error)
	// FindDirectChildrenPage returns one page of a parent's children plus
	// the total count
	FindDirectChildrenPage(ctx context.Context, parentID uuid.UUID, page, size int) ([]*models.Tenant, int64, error)
	FindDescendants(ctx context.Context, path string) ([]*models.Tenant, error)
	// FindDescendantsPage returns one page of the subtree below path plus
	// the total count
	FindDescendantsPage(ctx context.Context, path string, page, size int) ([]*models.Tenant, int64, error)
	FindActiveDescendants(ctx context.Context, path string) ([]*models.Tenant, error)
	FindDescendantsForUpdate(ctx context.Context, path string) ([]*models.Tenant, error)
	FindAncestors(ctx context.Context, path string) ([]*models.Tenant, error)
	FindAtLevel(ctx context.Context, level int) ([]*models.Tenant, error)
	FindByTypeInBranch(ctx context.Context, tenantType, path string) ([]*models.Tenant, error)

	CountDirectChildren(ctx context.Context, parentID uuid.UUID) (int64, error)
	CountDescendants(ctx context.Context, path string) (int64, error)
	CountActiveDescendants(ctx context.Context, path string) (int64, error)
	MaxLevel(ctx context.Context) (int, error)
	IsInSubtree(ctx context.Context, id uuid.UUID, path string) (bool, error)

	Search(ctx context.Context, filter SearchFilter) ([]*models.Tenant, int64, error)

	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CreateActivity(ctx context.Context, entry *models.TenantActivityLog) error
	FindRecentActivity(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.TenantActivityLog, error)
}

var _ TenantStore = (*TenantRepository)(nil)
