package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"console-service/internal/cache"
	"console-service/internal/models"
	natsClient "console-service/internal/nats"
	"console-service/internal/repository"
	"console-service/internal/slug"
)

// EventPublisher publishes tenant lifecycle events
type EventPublisher interface {
	PublishTenantEvent(ctx context.Context, eventType string, event *natsClient.TenantEvent) error
}

// TenantService owns the tenant tree: depth limit, path computation, cycle
// prevention, cascading moves and deletes, and all navigation built on the
// store. Controllers and collaborators call this; nothing else touches the
// tree.
type TenantService struct {
	store       repository.TenantStore
	cache       *cache.HierarchyCache
	events      EventPublisher
	logger      *logrus.Logger
	maxDepth    int
	slugRetries int
}

// NewTenantService creates a new tenant service. Cache and events may be
// nil; the service then runs uncached and silent.
func NewTenantService(store repository.TenantStore, hierarchyCache *cache.HierarchyCache, events EventPublisher, logger *logrus.Logger, maxDepth, slugRetries int) *TenantService {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	if slugRetries < 0 {
		slugRetries = 2
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TenantService{
		store:       store,
		cache:       hierarchyCache,
		events:      events,
		logger:      logger,
		maxDepth:    maxDepth,
		slugRetries: slugRetries,
	}
}

// MaxDepth returns the configured depth bound (exclusive)
func (s *TenantService) MaxDepth() int {
	return s.maxDepth
}

// CreateTenantRequest holds the fields for tenant creation
type CreateTenantRequest struct {
	Name        string     `json:"name" binding:"required"`
	DisplayName string     `json:"display_name"`
	TenantType  string     `json:"tenant_type"`
	ParentID    *uuid.UUID `json:"parent_id"`
	ExternalID  *string    `json:"external_id"`

	Industry     string       `json:"industry"`
	SizeCategory string       `json:"size_category"`
	Timezone     string       `json:"timezone"`
	Locale       string       `json:"locale"`
	Currency     string       `json:"currency"`
	Country      string       `json:"country"`
	Settings     models.JSONB `json:"settings"`
}

// UpdateTenantRequest holds the mutable fields for tenant update. Nil
// pointers leave the field untouched.
type UpdateTenantRequest struct {
	Name             *string      `json:"name"`
	DisplayName      *string      `json:"display_name"`
	TenantType       *string      `json:"tenant_type"`
	Status           *string      `json:"status"`
	SuspensionReason *string      `json:"suspension_reason"`
	Settings         models.JSONB `json:"settings"`
}

// Create creates a tenant under the optional parent, generating a unique
// slug from the name and computing path and level from the parent chain.
func (s *TenantService) Create(ctx context.Context, req CreateTenantRequest) (*models.Tenant, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, NewValidationError("name", "must not be blank")
	}
	tenantType := req.TenantType
	if tenantType == "" {
		tenantType = models.TenantTypeClient
	}
	if !isValidTenantType(tenantType) {
		return nil, NewValidationError("tenant_type", "unknown tenant type "+tenantType)
	}

	var parent *models.Tenant
	if req.ParentID != nil {
		var err error
		parent, err = s.loadAlive(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		// Depth bound is exclusive: the child would land at parent.Level+1
		if parent.Level >= s.maxDepth-1 {
			return nil, NewDepthExceededError("", parent.ID.String(), s.maxDepth)
		}
	}

	tenant := &models.Tenant{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		TenantType:   tenantType,
		ExternalID:   req.ExternalID,
		Industry:     req.Industry,
		SizeCategory: req.SizeCategory,
		Timezone:     defaultString(req.Timezone, "UTC"),
		Locale:       defaultString(req.Locale, "en"),
		Currency:     defaultString(req.Currency, "USD"),
		Country:      req.Country,
		Settings:     req.Settings,
		Status:       models.TenantStatusActive,
	}
	if parent != nil {
		tenant.ParentID = &parent.ID
	}
	now := time.Now().UTC()
	tenant.ActivatedAt = &now

	// The existence pre-check keeps slugs readable; the unique index is
	// the final arbiter and a violation at commit time is retried with a
	// fresh slug.
	for attempt := 0; ; attempt++ {
		newSlug, err := s.uniqueSlug(ctx, req.Name, nil)
		if err != nil {
			return nil, err
		}
		tenant.Slug = newSlug
		if parent != nil {
			tenant.Path = parent.Path + models.PathSeparator + newSlug
			tenant.Level = parent.Level + 1
		} else {
			tenant.Path = newSlug
			tenant.Level = 0
		}

		err = s.store.Transaction(ctx, func(tx repository.TenantStore) error {
			if err := tx.Create(ctx, tenant); err != nil {
				return err
			}
			return tx.CreateActivity(ctx, activity(tenant.ID, models.ActivityTenantCreated, map[string]interface{}{
				"path": tenant.Path, "slug": tenant.Slug,
			}))
		})
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if attempt < s.slugRetries {
				s.logger.WithField("slug", tenant.Slug).Warn("Slug conflict at commit, regenerating")
				continue
			}
			return nil, NewSlugConflictError(tenant.Slug)
		}
		return nil, NewStorageError("create tenant", err)
	}

	s.afterMutation(ctx, natsClient.EventTenantCreated, tenant, "", false)
	return tenant, nil
}

// Update applies name, type, status and metadata changes. A name change
// regenerates the slug and, since the slug is embedded in the materialized
// path, recomputes the path of the tenant and of every descendant in the
// same transaction (path follows slug).
func (s *TenantService) Update(ctx context.Context, id uuid.UUID, req UpdateTenantRequest) (*models.Tenant, error) {
	tenant, err := s.loadAlive(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.TenantType != nil {
		if !isValidTenantType(*req.TenantType) {
			return nil, NewValidationError("tenant_type", "unknown tenant type "+*req.TenantType)
		}
		tenant.TenantType = *req.TenantType
	}
	if req.DisplayName != nil {
		tenant.DisplayName = *req.DisplayName
	}
	if req.Settings != nil {
		tenant.Settings = req.Settings
	}
	if req.SuspensionReason != nil {
		tenant.SuspensionReason = *req.SuspensionReason
	}
	if req.Status != nil {
		if err := s.applyStatus(tenant, *req.Status); err != nil {
			return nil, err
		}
	}

	nameChanged := req.Name != nil && strings.TrimSpace(*req.Name) != "" && *req.Name != tenant.Name

	if !nameChanged {
		err = s.store.Transaction(ctx, func(tx repository.TenantStore) error {
			if err := tx.Save(ctx, tenant); err != nil {
				return err
			}
			return tx.CreateActivity(ctx, activity(tenant.ID, models.ActivityTenantUpdated, nil))
		})
		if err != nil {
			return nil, NewStorageError("update tenant", err)
		}
		s.afterMutation(ctx, natsClient.EventTenantUpdated, tenant, "", false)
		return tenant, nil
	}

	parentPath := ""
	if !tenant.IsRoot() {
		if idx := strings.LastIndex(tenant.Path, models.PathSeparator); idx >= 0 {
			parentPath = tenant.Path[:idx]
		}
	}

	for attempt := 0; ; attempt++ {
		newSlug, err := s.uniqueSlug(ctx, *req.Name, &tenant.ID)
		if err != nil {
			return nil, err
		}

		oldPath := tenant.Path
		tenant.Name = *req.Name
		tenant.Slug = newSlug
		if parentPath == "" {
			tenant.Path = newSlug
		} else {
			tenant.Path = parentPath + models.PathSeparator + newSlug
		}

		err = s.store.Transaction(ctx, func(tx repository.TenantStore) error {
			if err := tx.Save(ctx, tenant); err != nil {
				return err
			}
			if err := s.rewriteSubtree(ctx, tx, oldPath, tenant.Path); err != nil {
				return err
			}
			return tx.CreateActivity(ctx, activity(tenant.ID, models.ActivityTenantUpdated, map[string]interface{}{
				"old_path": oldPath, "new_path": tenant.Path,
			}))
		})
		if err == nil {
			s.afterMutation(ctx, natsClient.EventTenantUpdated, tenant, oldPath, false)
			return tenant, nil
		}
		tenant.Path = oldPath
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if attempt < s.slugRetries {
				continue
			}
			return nil, NewSlugConflictError(newSlug)
		}
		return nil, NewStorageError("update tenant", err)
	}
}

// Move re-parents a tenant. The tenant's path and level are recomputed
// from the new parent, and every descendant's path is rewritten by
// replacing the old prefix, all in one transaction: either the whole
// subtree moves or nothing does.
func (s *TenantService) Move(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.loadAlive(ctx, id)
	if err != nil {
		return nil, err
	}

	var newParent *models.Tenant
	if newParentID != nil {
		if *newParentID == id {
			return nil, NewCircularReferenceError(id.String(), newParentID.String())
		}
		newParent, err = s.loadAlive(ctx, *newParentID)
		if err != nil {
			return nil, err
		}
		if newParent.Level >= s.maxDepth-1 {
			return nil, NewDepthExceededError(id.String(), newParent.ID.String(), s.maxDepth)
		}
		// The new parent must not sit inside the moved subtree
		inSubtree, err := s.store.IsInSubtree(ctx, *newParentID, tenant.Path)
		if err != nil {
			return nil, NewStorageError("cycle check", err)
		}
		if inSubtree {
			return nil, NewCircularReferenceError(id.String(), newParentID.String())
		}
	}

	oldPath := tenant.Path
	if newParent != nil {
		tenant.ParentID = &newParent.ID
		tenant.Path = newParent.Path + models.PathSeparator + tenant.Slug
		tenant.Level = newParent.Level + 1
	} else {
		tenant.ParentID = nil
		tenant.Path = tenant.Slug
		tenant.Level = 0
	}

	err = s.store.Transaction(ctx, func(tx repository.TenantStore) error {
		if err := tx.Save(ctx, tenant); err != nil {
			return err
		}
		if err := s.rewriteSubtree(ctx, tx, oldPath, tenant.Path); err != nil {
			return err
		}
		return tx.CreateActivity(ctx, activity(tenant.ID, models.ActivityTenantMoved, map[string]interface{}{
			"old_path": oldPath, "new_path": tenant.Path,
		}))
	})
	if err != nil {
		tenant.Path = oldPath
		return nil, NewStorageError("move tenant", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant":   tenant.ID,
		"old_path": oldPath,
		"new_path": tenant.Path,
	}).Info("Tenant moved")

	s.afterMutation(ctx, natsClient.EventTenantMoved, tenant, oldPath, false)
	return tenant, nil
}

// CanMove dry-runs the depth and cycle checks of Move without mutating
func (s *TenantService) CanMove(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (bool, string, error) {
	tenant, err := s.loadAlive(ctx, id)
	if err != nil {
		return false, "", err
	}
	if newParentID == nil {
		return true, "", nil
	}
	if *newParentID == id {
		return false, "target parent is the tenant itself", nil
	}
	newParent, err := s.loadAlive(ctx, *newParentID)
	if err != nil {
		if _, ok := IsNotFoundError(err); ok {
			return false, "target parent not found", nil
		}
		return false, "", err
	}
	if newParent.Level >= s.maxDepth-1 {
		return false, "target parent is at the maximum depth", nil
	}
	inSubtree, err := s.store.IsInSubtree(ctx, *newParentID, tenant.Path)
	if err != nil {
		return false, "", NewStorageError("cycle check", err)
	}
	if inSubtree {
		return false, "target parent is a descendant of the tenant", nil
	}
	return true, "", nil
}

// Delete soft-deletes a tenant. With cascade it also soft-deletes every
// descendant in the same transaction; without it the call is rejected
// while direct children exist.
func (s *TenantService) Delete(ctx context.Context, id uuid.UUID, cascade bool) error {
	tenant, err := s.loadAlive(ctx, id)
	if err != nil {
		return err
	}

	if !cascade {
		count, err := s.store.CountDirectChildren(ctx, id)
		if err != nil {
			return NewStorageError("count children", err)
		}
		if count > 0 {
			return NewHasChildrenError(id.String(), count)
		}
	}

	now := time.Now().UTC()
	err = s.store.Transaction(ctx, func(tx repository.TenantStore) error {
		if cascade {
			descendants, err := tx.FindDescendantsForUpdate(ctx, tenant.Path)
			if err != nil {
				return err
			}
			for _, d := range descendants {
				d.Status = models.TenantStatusClosed
				d.DeletedAt = &now
			}
			if err := tx.SaveAll(ctx, descendants); err != nil {
				return err
			}
		}
		tenant.Status = models.TenantStatusClosed
		tenant.DeletedAt = &now
		if err := tx.Save(ctx, tenant); err != nil {
			return err
		}
		return tx.CreateActivity(ctx, activity(tenant.ID, models.ActivityTenantDeleted, map[string]interface{}{
			"cascade": cascade, "path": tenant.Path,
		}))
	})
	if err != nil {
		return NewStorageError("delete tenant", err)
	}

	s.afterMutation(ctx, natsClient.EventTenantDeleted, tenant, "", cascade)
	return nil
}

// Get fetches a tenant by id. Soft-deleted tenants are returned as CLOSED
// records so callers can inspect them.
func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	if s.cache != nil {
		if tenant, err := s.cache.GetTenant(ctx, cache.KeyTenant(id.String())); err == nil {
			return tenant, nil
		}
	}

	tenant, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, NewStorageError("find tenant", err)
	}
	if tenant == nil {
		return nil, NewNotFoundError("tenant", id.String())
	}

	if s.cache != nil {
		s.cache.SetTenant(ctx, cache.KeyTenant(id.String()), tenant)
	}
	return tenant, nil
}

// GetBySlug fetches a non-deleted tenant by slug
func (s *TenantService) GetBySlug(ctx context.Context, slugValue string) (*models.Tenant, error) {
	if s.cache != nil {
		if tenant, err := s.cache.GetTenant(ctx, cache.KeySlug(slugValue)); err == nil {
			return tenant, nil
		}
	}

	tenant, err := s.store.FindBySlug(ctx, slugValue)
	if err != nil {
		return nil, NewStorageError("find tenant by slug", err)
	}
	if tenant == nil {
		return nil, NewNotFoundError("tenant", slugValue)
	}

	if s.cache != nil {
		s.cache.SetTenant(ctx, cache.KeySlug(slugValue), tenant)
	}
	return tenant, nil
}

// GetByExternalID fetches a non-deleted tenant by external reference
func (s *TenantService) GetByExternalID(ctx context.Context, externalID string) (*models.Tenant, error) {
	tenant, err := s.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, NewStorageError("find tenant by external id", err)
	}
	if tenant == nil {
		return nil, NewNotFoundError("tenant", externalID)
	}
	return tenant, nil
}

// Roots returns all root tenants
func (s *TenantService) Roots(ctx context.Context) ([]*models.Tenant, error) {
	if s.cache != nil {
		if tenants, err := s.cache.GetTenantList(ctx, cache.KeyRoots()); err == nil {
			return tenants, nil
		}
	}

	tenants, err := s.store.FindRoots(ctx)
	if err != nil {
		return nil, NewStorageError("find roots", err)
	}

	if s.cache != nil {
		s.cache.SetTenantList(ctx, cache.KeyRoots(), tenants)
	}
	return tenants, nil
}

// Children returns the direct children of a tenant
func (s *TenantService) Children(ctx context.Context, parentID uuid.UUID) ([]*models.Tenant, error) {
	if s.cache != nil {
		if tenants, err := s.cache.GetTenantList(ctx, cache.KeyChildren(parentID.String())); err == nil {
			return tenants, nil
		}
	}

	tenants, err := s.store.FindDirectChildren(ctx, parentID)
	if err != nil {
		return nil, NewStorageError("find children", err)
	}

	if s.cache != nil {
		s.cache.SetTenantList(ctx, cache.KeyChildren(parentID.String()), tenants)
	}
	return tenants, nil
}

// ChildrenPage returns one page of a tenant's direct children plus the
// total count. Uncached; paginated views fragment the key space too much
// for wholesale invalidation to pay off.
func (s *TenantService) ChildrenPage(ctx context.Context, parentID uuid.UUID, page, size int) ([]*models.Tenant, int64, error) {
	tenants, total, err := s.store.FindDirectChildrenPage(ctx, parentID, page, size)
	if err != nil {
		return nil, 0, NewStorageError("find children", err)
	}
	return tenants, total, nil
}

// ChildrenByStatus returns the direct children of a tenant that are in
// the given status. Uncached; status-filtered views are rare enough that
// the wholesale invalidation would cost more than the reads save.
func (s *TenantService) ChildrenByStatus(ctx context.Context, parentID uuid.UUID, status string) ([]*models.Tenant, error) {
	if !isValidTenantStatus(status) {
		return nil, NewValidationError("status", "unknown status "+status)
	}
	tenants, err := s.store.FindDirectChildrenByStatus(ctx, parentID, status)
	if err != nil {
		return nil, NewStorageError("find children", err)
	}
	return tenants, nil
}

// Descendants returns every tenant below the given one, ordered by level
// then name
func (s *TenantService) Descendants(ctx context.Context, id uuid.UUID) ([]*models.Tenant, error) {
	if s.cache != nil {
		if tenants, err := s.cache.GetTenantList(ctx, cache.KeyDescendants(id.String())); err == nil {
			return tenants, nil
		}
	}

	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tenants, err := s.store.FindDescendants(ctx, tenant.Path)
	if err != nil {
		return nil, NewStorageError("find descendants", err)
	}

	if s.cache != nil {
		s.cache.SetTenantList(ctx, cache.KeyDescendants(id.String()), tenants)
	}
	return tenants, nil
}

// DescendantsPage returns one page of the subtree below the given tenant
// plus the total count. Uncached, like ChildrenPage.
func (s *TenantService) DescendantsPage(ctx context.Context, id uuid.UUID, page, size int) ([]*models.Tenant, int64, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	tenants, total, err := s.store.FindDescendantsPage(ctx, tenant.Path, page, size)
	if err != nil {
		return nil, 0, NewStorageError("find descendants", err)
	}
	return tenants, total, nil
}

// ActiveDescendants returns the ACTIVE tenants below the given one
func (s *TenantService) ActiveDescendants(ctx context.Context, id uuid.UUID) ([]*models.Tenant, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tenants, err := s.store.FindActiveDescendants(ctx, tenant.Path)
	if err != nil {
		return nil, NewStorageError("find active descendants", err)
	}
	return tenants, nil
}

// Ancestors returns the chain of ancestors of a tenant, root first
func (s *TenantService) Ancestors(ctx context.Context, id uuid.UUID) ([]*models.Tenant, error) {
	if s.cache != nil {
		if tenants, err := s.cache.GetTenantList(ctx, cache.KeyAncestors(id.String())); err == nil {
			return tenants, nil
		}
	}

	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.FindAncestors(ctx, tenant.Path)
	if err != nil {
		return nil, NewStorageError("find ancestors", err)
	}

	// The reverse-prefix query matches the tenant's own row too
	ancestors := make([]*models.Tenant, 0, len(rows))
	for _, row := range rows {
		if row.ID != tenant.ID {
			ancestors = append(ancestors, row)
		}
	}

	if s.cache != nil {
		s.cache.SetTenantList(ctx, cache.KeyAncestors(id.String()), ancestors)
	}
	return ancestors, nil
}

// AtLevel returns all tenants at the given depth
func (s *TenantService) AtLevel(ctx context.Context, level int) ([]*models.Tenant, error) {
	if level < 0 || level >= s.maxDepth {
		return nil, NewValidationError("level", "out of range")
	}
	tenants, err := s.store.FindAtLevel(ctx, level)
	if err != nil {
		return nil, NewStorageError("find at level", err)
	}
	return tenants, nil
}

// ByTypeInBranch returns tenants of one type within the subtree rooted at
// the given tenant (the root included)
func (s *TenantService) ByTypeInBranch(ctx context.Context, tenantType string, rootID uuid.UUID) ([]*models.Tenant, error) {
	if !isValidTenantType(tenantType) {
		return nil, NewValidationError("tenant_type", "unknown tenant type "+tenantType)
	}
	root, err := s.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}
	tenants, err := s.store.FindByTypeInBranch(ctx, tenantType, root.Path)
	if err != nil {
		return nil, NewStorageError("find by type in branch", err)
	}
	return tenants, nil
}

// Search filters tenants by free text, type, status and subtree
func (s *TenantService) Search(ctx context.Context, filter repository.SearchFilter) ([]*models.Tenant, int64, error) {
	if filter.TenantType != "" && !isValidTenantType(filter.TenantType) {
		return nil, 0, NewValidationError("tenant_type", "unknown tenant type "+filter.TenantType)
	}
	if filter.Status != "" && !isValidTenantStatus(filter.Status) {
		return nil, 0, NewValidationError("status", "unknown status "+filter.Status)
	}
	tenants, total, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, 0, NewStorageError("search tenants", err)
	}
	return tenants, total, nil
}

// SearchInSubtree is Search constrained to the subtree of parentID
func (s *TenantService) SearchInSubtree(ctx context.Context, parentID uuid.UUID, filter repository.SearchFilter) ([]*models.Tenant, int64, error) {
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, 0, err
	}
	filter.ParentPath = parent.Path
	return s.Search(ctx, filter)
}

// IsSlugAvailable reports whether a slug can still be claimed, optionally
// ignoring one tenant (for updates)
func (s *TenantService) IsSlugAvailable(ctx context.Context, slugValue string, excludeID *uuid.UUID) (bool, error) {
	if !slug.IsValid(slugValue) {
		return false, nil
	}
	var exists bool
	var err error
	if excludeID != nil {
		exists, err = s.store.SlugExistsExcluding(ctx, slugValue, *excludeID)
	} else {
		exists, err = s.store.SlugExists(ctx, slugValue)
	}
	if err != nil {
		return false, NewStorageError("slug check", err)
	}
	return !exists, nil
}

// CurrentMaxLevel returns the deepest level present in the tree
func (s *TenantService) CurrentMaxLevel(ctx context.Context) (int, error) {
	level, err := s.store.MaxLevel(ctx)
	if err != nil {
		return 0, NewStorageError("max level", err)
	}
	return level, nil
}

// CountDirectChildren counts the direct children of a tenant
func (s *TenantService) CountDirectChildren(ctx context.Context, id uuid.UUID) (int64, error) {
	count, err := s.store.CountDirectChildren(ctx, id)
	if err != nil {
		return 0, NewStorageError("count children", err)
	}
	return count, nil
}

// CountDescendants counts every tenant below the given one
func (s *TenantService) CountDescendants(ctx context.Context, id uuid.UUID) (int64, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	count, err := s.store.CountDescendants(ctx, tenant.Path)
	if err != nil {
		return 0, NewStorageError("count descendants", err)
	}
	return count, nil
}

// CountActiveDescendants counts the ACTIVE tenants below the given one
func (s *TenantService) CountActiveDescendants(ctx context.Context, id uuid.UUID) (int64, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	count, err := s.store.CountActiveDescendants(ctx, tenant.Path)
	if err != nil {
		return 0, NewStorageError("count active descendants", err)
	}
	return count, nil
}

// RecentActivity returns the latest lifecycle entries for a tenant
func (s *TenantService) RecentActivity(ctx context.Context, id uuid.UUID, limit int) ([]*models.TenantActivityLog, error) {
	entries, err := s.store.FindRecentActivity(ctx, id, limit)
	if err != nil {
		return nil, NewStorageError("find activity", err)
	}
	return entries, nil
}

// PurgeDeleted permanently removes tenants soft-deleted before the cutoff
func (s *TenantService) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	purged, err := s.store.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return 0, NewStorageError("purge deleted", err)
	}
	if purged > 0 && s.cache != nil {
		s.cache.InvalidateAll(ctx)
	}
	return purged, nil
}

// rewriteSubtree replaces the oldPath prefix with newPath in every
// descendant row and recomputes levels from the rewritten paths. The rows
// are locked for the surrounding transaction so concurrent moves of
// overlapping subtrees serialize.
func (s *TenantService) rewriteSubtree(ctx context.Context, tx repository.TenantStore, oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	descendants, err := tx.FindDescendantsForUpdate(ctx, oldPath)
	if err != nil {
		return err
	}
	for _, d := range descendants {
		d.Path = newPath + strings.TrimPrefix(d.Path, oldPath)
		d.Level = models.LevelForPath(d.Path)
	}
	return tx.SaveAll(ctx, descendants)
}

// loadAlive fetches a tenant by id and rejects missing or soft-deleted ones
func (s *TenantService) loadAlive(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, NewStorageError("find tenant", err)
	}
	if tenant == nil || tenant.IsDeleted() {
		return nil, NewNotFoundError("tenant", id.String())
	}
	return tenant, nil
}

// uniqueSlug generates a slug from text that no other non-deleted tenant
// holds. A store failure aborts generation instead of looping.
func (s *TenantService) uniqueSlug(ctx context.Context, text string, excludeID *uuid.UUID) (string, error) {
	var predErr error
	result := slug.GenerateUnique(text, func(candidate string) bool {
		if predErr != nil {
			return false
		}
		var exists bool
		var err error
		if excludeID != nil {
			exists, err = s.store.SlugExistsExcluding(ctx, candidate, *excludeID)
		} else {
			exists, err = s.store.SlugExists(ctx, candidate)
		}
		if err != nil {
			predErr = err
			return false
		}
		return exists
	})
	if predErr != nil {
		return "", NewStorageError("slug check", predErr)
	}
	return result, nil
}

// applyStatus validates a status transition and maintains the status
// timestamps
func (s *TenantService) applyStatus(tenant *models.Tenant, status string) error {
	if !isValidTenantStatus(status) {
		return NewValidationError("status", "unknown status "+status)
	}
	if status == tenant.Status {
		return nil
	}
	now := time.Now().UTC()
	switch status {
	case models.TenantStatusSuspended:
		tenant.SuspendedAt = &now
	case models.TenantStatusActive:
		tenant.ActivatedAt = &now
		tenant.SuspensionReason = ""
		tenant.SuspendedAt = nil
	}
	tenant.Status = status
	return nil
}

// afterMutation runs the post-commit side effects: cache invalidation
// first so no reader can repopulate stale data, then event publishing.
func (s *TenantService) afterMutation(ctx context.Context, eventType string, tenant *models.Tenant, oldPath string, cascade bool) {
	if s.cache != nil {
		s.cache.InvalidateAll(ctx)
	}
	if s.events == nil {
		return
	}

	event := &natsClient.TenantEvent{
		TenantID:   tenant.ID.String(),
		Name:       tenant.Name,
		Slug:       tenant.Slug,
		Path:       tenant.Path,
		Level:      tenant.Level,
		TenantType: tenant.TenantType,
		Status:     tenant.Status,
		OldPath:    oldPath,
		Cascade:    cascade,
	}
	if tenant.ParentID != nil {
		event.ParentID = tenant.ParentID.String()
	}
	if err := s.events.PublishTenantEvent(ctx, eventType, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":  eventType,
			"tenant": tenant.ID,
		}).Warn("Failed to publish tenant event")
	}
}

func activity(tenantID uuid.UUID, action string, detail map[string]interface{}) *models.TenantActivityLog {
	entry := &models.TenantActivityLog{
		TenantID:  tenantID,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
	if detail != nil {
		if data, err := models.NewJSONB(detail); err == nil {
			entry.Detail = data
		}
	}
	return entry
}

func isValidTenantType(t string) bool {
	for _, valid := range models.ValidTenantTypes {
		if t == valid {
			return true
		}
	}
	return false
}

func isValidTenantStatus(s string) bool {
	for _, valid := range models.ValidTenantStatuses {
		if s == valid {
			return true
		}
	}
	return false
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
