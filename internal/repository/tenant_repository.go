package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"console-service/internal/models"
)

// SearchFilter holds the optional criteria for tenant search
type SearchFilter struct {
	Term       string
	TenantType string
	Status     string
	// ParentPath restricts results to the subtree below this path
	ParentPath string
	Page       int
	Size       int
}

// TenantRepository provides access to the tenants table. All list queries
// exclude soft-deleted rows; only FindByID exposes them so callers can
// inspect CLOSED records.
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Transaction runs fn inside a database transaction, giving it a store
// bound to the transaction
func (r *TenantRepository) Transaction(ctx context.Context, fn func(tx TenantStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TenantRepository{db: tx})
	})
}

func (r *TenantRepository) alive(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Where("deleted_at IS NULL")
}

// Create inserts a new tenant
func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	return r.db.WithContext(ctx).Create(tenant).Error
}

// Save persists all fields of an existing tenant
func (r *TenantRepository) Save(ctx context.Context, tenant *models.Tenant) error {
	return r.db.WithContext(ctx).Save(tenant).Error
}

// SaveAll persists a batch of tenants (descendant path rewrites)
func (r *TenantRepository) SaveAll(ctx context.Context, tenants []*models.Tenant) error {
	if len(tenants) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Save(tenants).Error
}

// FindByID fetches a tenant by id, including soft-deleted rows
func (r *TenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindBySlug fetches a non-deleted tenant by slug
func (r *TenantRepository) FindBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.alive(ctx).First(&tenant, "slug = ?", slug).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByExternalID fetches a non-deleted tenant by external reference
func (r *TenantRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.alive(ctx).First(&tenant, "external_id = ?", externalID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// SlugExists reports whether any non-deleted tenant holds the slug
func (r *TenantRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.alive(ctx).Model(&models.Tenant{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

// SlugExistsExcluding reports whether a non-deleted tenant other than
// excludeID holds the slug
func (r *TenantRepository) SlugExistsExcluding(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	var count int64
	err := r.alive(ctx).Model(&models.Tenant{}).
		Where("slug = ? AND id != ?", slug, excludeID).
		Count(&count).Error
	return count > 0, err
}

// FindRoots returns all non-deleted root tenants ordered by name
func (r *TenantRepository) FindRoots(ctx context.Context) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.alive(ctx).
		Where("parent_id IS NULL").
		Order("name ASC").
		Find(&tenants).Error
	return tenants, err
}

// FindDirectChildren returns the non-deleted children of a parent ordered by name
func (r *TenantRepository) FindDirectChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.alive(ctx).
		Where("parent_id = ?", parentID).
		Order("name ASC").
		Find(&tenants).Error
	return tenants, err
}

// FindDirectChildrenByStatus returns children filtered to one status
func (r *TenantRepository) FindDirectChildrenByStatus(ctx context.Context, parentID uuid.UUID, status string) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.alive(ctx).
		Where("parent_id = ? AND status = ?", parentID, status).
		Order("name ASC").
		Find(&tenants).Error
	return tenants, err
}

// FindDirectChildrenPage returns one page of a parent's non-deleted
// children ordered by name, plus the total count
func (r *TenantRepository) FindDirectChildrenPage(ctx context.Context, parentID uuid.UUID, page, size int) ([]*models.Tenant, int64, error) {
	query := r.alive(ctx).Model(&models.Tenant{}).Where("parent_id = ?", parentID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size = normalizePage(page, size)
	var tenants []*models.Tenant
	err := query.
		Order("name ASC").
		Offset(page * size).
		Limit(size).
		Find(&tenants).Error
	return tenants, total, err
}

// FindDescendants returns every non-deleted tenant whose path lies under
// the given path, ordered by level then name
func (r *TenantRepository) FindDescendants(ctx context.Context, path string) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.alive(ctx).
		Where("path LIKE ?", likePrefix(path)).
		Order("level ASC, name ASC").
		Find(&tenants).Error
	return tenants, err
}

// FindDescendantsPage returns one page of the subtree below path ordered
// by level then name, plus the total count
func (r *TenantRepository) FindDescendantsPage(ctx context.Context, path string, page, size int) ([]*models.Tenant, int64, error) {
	query := r.alive(ctx).Model(&models.Tenant{}).Where("path LIKE ?", likePrefix(path))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size = normalizePage(page, size)
	var tenants []*models.Tenant
	err := query.
		Order("level ASC, name ASC").
		Offset(page * size).
		Limit(size).
		Find(&tenants).Error
	return tenants, total, err
}

// FindActiveDescendants returns descendants filtered to ACTIVE status
func (r *TenantRepository) FindActiveDescendants(ctx context.Context, path string) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.alive(ctx).
		Where("path LIKE ? AND status = ?", likePrefix(path), models.TenantStatusActive).
		Order("level ASC, name ASC").
		Find(&tenants).Error
	return tenants, err
}

// FindDescendantsForUpdate returns descendants with their rows locked for
// the duration of the surrounding transaction. Used by move and cascade
// delete so concurrent moves of overlapping subtrees serialize.
func (r *TenantRepository) FindDescendantsForUpdate(ctx context.Context, path string) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.alive(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("path LIKE ?", likePrefix(path)).
		Order("level ASC, name ASC").
		Find(&tenants).Error
	return tenants, err
}

// FindAncestors returns every non-deleted tenant whose path is a proper
// prefix of the given path, plus the root of the branch, ordered root
// first. The caller's own row is included when its path matches and
// should be filtered out by the caller.
func (r *TenantRepository) FindAncestors(ctx context.Context, path string) ([]*models.Tenant, error) {
	rootSlug := path
	if idx := strings.Index(path, models.PathSeparator); idx > 0 {
		rootSlug = path[:idx]
	}

	var tenants []*models.Tenant
	err := r.alive(ctx).
		Where("? LIKE path || '/%' OR path = ?", path, rootSlug).
		Order("level ASC").
		Find(&tenants).Error
	return tenants, err
}

// FindAtLevel returns all non-deleted tenants at the given level
func (r *TenantRepository) FindAtLevel(ctx context.Context, level int) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.alive(ctx).
		Where("level = ?", level).
		Order("name ASC").
		Find(&tenants).Error
	return tenants, err
}

// FindByTypeInBranch returns all non-deleted tenants of one type within
// the subtree rooted at path (the root of the branch included)
func (r *TenantRepository) FindByTypeInBranch(ctx context.Context, tenantType, path string) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.alive(ctx).
		Where("tenant_type = ? AND (path = ? OR path LIKE ?)", tenantType, path, likePrefix(path)).
		Order("level ASC, name ASC").
		Find(&tenants).Error
	return tenants, err
}

// CountDirectChildren counts the non-deleted children of a parent
func (r *TenantRepository) CountDirectChildren(ctx context.Context, parentID uuid.UUID) (int64, error) {
	var count int64
	err := r.alive(ctx).Model(&models.Tenant{}).
		Where("parent_id = ?", parentID).
		Count(&count).Error
	return count, err
}

// CountDescendants counts every non-deleted tenant under the given path
func (r *TenantRepository) CountDescendants(ctx context.Context, path string) (int64, error) {
	var count int64
	err := r.alive(ctx).Model(&models.Tenant{}).
		Where("path LIKE ?", likePrefix(path)).
		Count(&count).Error
	return count, err
}

// CountActiveDescendants counts ACTIVE tenants under the given path
func (r *TenantRepository) CountActiveDescendants(ctx context.Context, path string) (int64, error) {
	var count int64
	err := r.alive(ctx).Model(&models.Tenant{}).
		Where("path LIKE ? AND status = ?", likePrefix(path), models.TenantStatusActive).
		Count(&count).Error
	return count, err
}

// MaxLevel returns the deepest level currently present in the tree
func (r *TenantRepository) MaxLevel(ctx context.Context) (int, error) {
	var level *int
	err := r.alive(ctx).Model(&models.Tenant{}).
		Select("MAX(level)").
		Scan(&level).Error
	if err != nil {
		return 0, err
	}
	if level == nil {
		return 0, nil
	}
	return *level, nil
}

// IsInSubtree reports whether the tenant identified by id sits inside the
// subtree below path (used for the move cycle check)
func (r *TenantRepository) IsInSubtree(ctx context.Context, id uuid.UUID, path string) (bool, error) {
	var count int64
	err := r.alive(ctx).Model(&models.Tenant{}).
		Where("id = ? AND path LIKE ?", id, likePrefix(path)).
		Count(&count).Error
	return count > 0, err
}

// Search filters tenants by free text, type, status and subtree, paginated
// and ordered by level then name. Returns the page and the total count.
func (r *TenantRepository) Search(ctx context.Context, filter SearchFilter) ([]*models.Tenant, int64, error) {
	query := r.alive(ctx).Model(&models.Tenant{})

	if term := strings.TrimSpace(filter.Term); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(display_name) LIKE ? OR slug LIKE ?", like, like, like)
	}
	if filter.TenantType != "" {
		query = query.Where("tenant_type = ?", filter.TenantType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ParentPath != "" {
		query = query.Where("path LIKE ?", likePrefix(filter.ParentPath))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(filter.Page, filter.Size)

	var tenants []*models.Tenant
	err := query.
		Order("level ASC, name ASC").
		Offset(page * size).
		Limit(size).
		Find(&tenants).Error
	return tenants, total, err
}

// PurgeDeletedBefore permanently removes tenants soft-deleted before the
// cutoff. Returns the number of rows removed.
func (r *TenantRepository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Delete(&models.Tenant{})
	return result.RowsAffected, result.Error
}

// CreateActivity records a tenant lifecycle action
func (r *TenantRepository) CreateActivity(ctx context.Context, entry *models.TenantActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// FindRecentActivity returns the latest activity entries for a tenant
func (r *TenantRepository) FindRecentActivity(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.TenantActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*models.TenantActivityLog
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// likePrefix builds the LIKE pattern matching everything strictly below path
func likePrefix(path string) string {
	return path + models.PathSeparator + "%"
}

// normalizePage clamps a page/size pair to sane values, defaulting the
// page size to 20
func normalizePage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	return page, size
}
