package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"console-service/internal/cache"
	"console-service/internal/models"
	"console-service/internal/repository"
)

// memStore is an in-memory TenantStore used to exercise the hierarchy
// logic without a database. It enforces slug uniqueness the way the
// unique index does.
type memStore struct {
	mu         sync.Mutex
	tenants    map[uuid.UUID]*models.Tenant
	activities []*models.TenantActivityLog

	// failCreates makes the next n Create calls fail with a duplicate-key
	// error, simulating a slug race lost at commit time
	failCreates int
}

func newMemStore() *memStore {
	return &memStore{tenants: make(map[uuid.UUID]*models.Tenant)}
}

func (m *memStore) Transaction(ctx context.Context, fn func(tx repository.TenantStore) error) error {
	return fn(m)
}

func (m *memStore) Create(ctx context.Context, tenant *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreates > 0 {
		m.failCreates--
		return gorm.ErrDuplicatedKey
	}
	for _, t := range m.tenants {
		if t.DeletedAt == nil && t.Slug == tenant.Slug {
			return gorm.ErrDuplicatedKey
		}
	}
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if tenant.DisplayName == "" {
		tenant.DisplayName = tenant.Name
	}
	tenant.CreatedAt = time.Now().UTC()
	tenant.UpdatedAt = tenant.CreatedAt
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *memStore) Save(ctx context.Context, tenant *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.ID != tenant.ID && t.DeletedAt == nil && tenant.DeletedAt == nil && t.Slug == tenant.Slug {
			return gorm.ErrDuplicatedKey
		}
	}
	tenant.UpdatedAt = time.Now().UTC()
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *memStore) SaveAll(ctx context.Context, tenants []*models.Tenant) error {
	for _, t := range tenants {
		if err := m.Save(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tenants[id], nil
}

func (m *memStore) FindBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	for _, t := range m.alive() {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByExternalID(ctx context.Context, externalID string) (*models.Tenant, error) {
	for _, t := range m.alive() {
		if t.ExternalID != nil && *t.ExternalID == externalID {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	t, _ := m.FindBySlug(ctx, slug)
	return t != nil, nil
}

func (m *memStore) SlugExistsExcluding(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	for _, t := range m.alive() {
		if t.Slug == slug && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) FindRoots(ctx context.Context) ([]*models.Tenant, error) {
	var result []*models.Tenant
	for _, t := range m.alive() {
		if t.ParentID == nil {
			result = append(result, t)
		}
	}
	sortByName(result)
	return result, nil
}

func (m *memStore) FindDirectChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Tenant, error) {
	var result []*models.Tenant
	for _, t := range m.alive() {
		if t.ParentID != nil && *t.ParentID == parentID {
			result = append(result, t)
		}
	}
	sortByName(result)
	return result, nil
}

func (m *memStore) FindDirectChildrenByStatus(ctx context.Context, parentID uuid.UUID, status string) ([]*models.Tenant, error) {
	children, _ := m.FindDirectChildren(ctx, parentID)
	var result []*models.Tenant
	for _, t := range children {
		if t.Status == status {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *memStore) FindDirectChildrenPage(ctx context.Context, parentID uuid.UUID, page, size int) ([]*models.Tenant, int64, error) {
	children, _ := m.FindDirectChildren(ctx, parentID)
	paged, total := pageOf(children, page, size)
	return paged, total, nil
}

func (m *memStore) FindDescendants(ctx context.Context, path string) ([]*models.Tenant, error) {
	var result []*models.Tenant
	for _, t := range m.alive() {
		if strings.HasPrefix(t.Path, path+models.PathSeparator) {
			result = append(result, t)
		}
	}
	sortByLevelName(result)
	return result, nil
}

func (m *memStore) FindDescendantsPage(ctx context.Context, path string, page, size int) ([]*models.Tenant, int64, error) {
	descendants, _ := m.FindDescendants(ctx, path)
	paged, total := pageOf(descendants, page, size)
	return paged, total, nil
}

func (m *memStore) FindActiveDescendants(ctx context.Context, path string) ([]*models.Tenant, error) {
	descendants, _ := m.FindDescendants(ctx, path)
	var result []*models.Tenant
	for _, t := range descendants {
		if t.Status == models.TenantStatusActive {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *memStore) FindDescendantsForUpdate(ctx context.Context, path string) ([]*models.Tenant, error) {
	return m.FindDescendants(ctx, path)
}

func (m *memStore) FindAncestors(ctx context.Context, path string) ([]*models.Tenant, error) {
	rootSlug := path
	if idx := strings.Index(path, models.PathSeparator); idx > 0 {
		rootSlug = path[:idx]
	}
	var result []*models.Tenant
	for _, t := range m.alive() {
		if strings.HasPrefix(path, t.Path+models.PathSeparator) || t.Path == rootSlug {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Level < result[j].Level })
	return result, nil
}

func (m *memStore) FindAtLevel(ctx context.Context, level int) ([]*models.Tenant, error) {
	var result []*models.Tenant
	for _, t := range m.alive() {
		if t.Level == level {
			result = append(result, t)
		}
	}
	sortByName(result)
	return result, nil
}

func (m *memStore) FindByTypeInBranch(ctx context.Context, tenantType, path string) ([]*models.Tenant, error) {
	var result []*models.Tenant
	for _, t := range m.alive() {
		inBranch := t.Path == path || strings.HasPrefix(t.Path, path+models.PathSeparator)
		if inBranch && t.TenantType == tenantType {
			result = append(result, t)
		}
	}
	sortByLevelName(result)
	return result, nil
}

func (m *memStore) CountDirectChildren(ctx context.Context, parentID uuid.UUID) (int64, error) {
	children, _ := m.FindDirectChildren(ctx, parentID)
	return int64(len(children)), nil
}

func (m *memStore) CountDescendants(ctx context.Context, path string) (int64, error) {
	descendants, _ := m.FindDescendants(ctx, path)
	return int64(len(descendants)), nil
}

func (m *memStore) CountActiveDescendants(ctx context.Context, path string) (int64, error) {
	descendants, _ := m.FindActiveDescendants(ctx, path)
	return int64(len(descendants)), nil
}

func (m *memStore) MaxLevel(ctx context.Context) (int, error) {
	max := 0
	for _, t := range m.alive() {
		if t.Level > max {
			max = t.Level
		}
	}
	return max, nil
}

func (m *memStore) IsInSubtree(ctx context.Context, id uuid.UUID, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok || t.DeletedAt != nil {
		return false, nil
	}
	return strings.HasPrefix(t.Path, path+models.PathSeparator), nil
}

func (m *memStore) Search(ctx context.Context, filter repository.SearchFilter) ([]*models.Tenant, int64, error) {
	var matched []*models.Tenant
	term := strings.ToLower(strings.TrimSpace(filter.Term))
	for _, t := range m.alive() {
		if term != "" {
			hay := strings.ToLower(t.Name) + " " + strings.ToLower(t.DisplayName) + " " + t.Slug
			if !strings.Contains(hay, term) {
				continue
			}
		}
		if filter.TenantType != "" && t.TenantType != filter.TenantType {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.ParentPath != "" && !strings.HasPrefix(t.Path, filter.ParentPath+models.PathSeparator) {
			continue
		}
		matched = append(matched, t)
	}
	sortByLevelName(matched)

	paged, total := pageOf(matched, filter.Page, filter.Size)
	return paged, total, nil
}

func pageOf(tenants []*models.Tenant, page, size int) ([]*models.Tenant, int64) {
	total := int64(len(tenants))
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	start := page * size
	if start > len(tenants) {
		start = len(tenants)
	}
	end := start + size
	if end > len(tenants) {
		end = len(tenants)
	}
	return tenants[start:end], total
}

func (m *memStore) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, t := range m.tenants {
		if t.DeletedAt != nil && t.DeletedAt.Before(cutoff) {
			delete(m.tenants, id)
			purged++
		}
	}
	return purged, nil
}

func (m *memStore) CreateActivity(ctx context.Context, entry *models.TenantActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, entry)
	return nil
}

func (m *memStore) FindRecentActivity(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.TenantActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.TenantActivityLog
	for i := len(m.activities) - 1; i >= 0 && len(result) < limit; i-- {
		if m.activities[i].TenantID == tenantID {
			result = append(result, m.activities[i])
		}
	}
	return result, nil
}

func (m *memStore) alive() []*models.Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Tenant
	for _, t := range m.tenants {
		if t.DeletedAt == nil {
			result = append(result, t)
		}
	}
	return result
}

func sortByName(tenants []*models.Tenant) {
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
}

func sortByLevelName(tenants []*models.Tenant) {
	sort.Slice(tenants, func(i, j int) bool {
		if tenants[i].Level != tenants[j].Level {
			return tenants[i].Level < tenants[j].Level
		}
		return tenants[i].Name < tenants[j].Name
	})
}

var _ repository.TenantStore = (*memStore)(nil)

func newService(store repository.TenantStore) *TenantService {
	return NewTenantService(store, nil, nil, nil, 5, 2)
}

func mustCreate(t *testing.T, svc *TenantService, name, tenantType string, parentID *uuid.UUID) *models.Tenant {
	t.Helper()
	tenant, err := svc.Create(context.Background(), CreateTenantRequest{
		Name:       name,
		TenantType: tenantType,
		ParentID:   parentID,
	})
	require.NoError(t, err)
	return tenant
}

func TestCreate_RootTenant(t *testing.T) {
	svc := newService(newMemStore())

	tenant := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)

	assert.Equal(t, "acme", tenant.Slug)
	assert.Equal(t, "acme", tenant.Path)
	assert.Equal(t, 0, tenant.Level)
	assert.Equal(t, models.TenantStatusActive, tenant.Status)
	assert.Equal(t, "Acme", tenant.DisplayName)
	assert.True(t, tenant.IsRoot())
}

func TestCreate_ChildTenant(t *testing.T) {
	svc := newService(newMemStore())

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)

	assert.Equal(t, "division-1", division.Slug)
	assert.Equal(t, "acme/division-1", division.Path)
	assert.Equal(t, 1, division.Level)
	require.NotNil(t, division.ParentID)
	assert.Equal(t, acme.ID, *division.ParentID)
}

func TestCreate_BlankName(t *testing.T) {
	svc := newService(newMemStore())

	_, err := svc.Create(context.Background(), CreateTenantRequest{Name: "   "})
	_, ok := IsValidationError(err)
	assert.True(t, ok)
}

func TestCreate_ParentNotFound(t *testing.T) {
	svc := newService(newMemStore())

	missing := uuid.New()
	_, err := svc.Create(context.Background(), CreateTenantRequest{Name: "Orphan", ParentID: &missing})
	_, ok := IsNotFoundError(err)
	assert.True(t, ok)
}

func TestCreate_DepthBound(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	// Build a chain occupying levels 0 through 4
	parent := mustCreate(t, svc, "Level 0", models.TenantTypeAdmin, nil)
	for i := 1; i < 5; i++ {
		parent = mustCreate(t, svc, "Level "+string(rune('0'+i)), models.TenantTypeClient, &parent.ID)
	}
	assert.Equal(t, 4, parent.Level)

	before := len(store.alive())
	_, err := svc.Create(context.Background(), CreateTenantRequest{Name: "Too Deep", ParentID: &parent.ID})

	depthErr, ok := IsDepthExceededError(err)
	require.True(t, ok)
	assert.Equal(t, 5, depthErr.MaxDepth)
	assert.Equal(t, before, len(store.alive()), "rejected create must not mutate the tree")
}

func TestCreate_SlugCollisionAppendsCounter(t *testing.T) {
	svc := newService(newMemStore())

	first := mustCreate(t, svc, "Test Company", models.TenantTypeClient, nil)
	second := mustCreate(t, svc, "Test Company", models.TenantTypeClient, nil)
	third := mustCreate(t, svc, "Test Company", models.TenantTypeClient, nil)

	assert.Equal(t, "test-company", first.Slug)
	assert.Equal(t, "test-company-1", second.Slug)
	assert.Equal(t, "test-company-2", third.Slug)
}

func TestCreate_RetriesOnCommitConflict(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	// The pre-check passes but the commit loses a race once
	store.failCreates = 1
	tenant, err := svc.Create(context.Background(), CreateTenantRequest{Name: "Raced"})
	require.NoError(t, err)
	assert.Equal(t, "raced", tenant.Slug)
}

func TestCreate_SurfacesConflictAfterRetries(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	store.failCreates = 10
	_, err := svc.Create(context.Background(), CreateTenantRequest{Name: "Unlucky"})
	_, ok := IsSlugConflictError(err)
	assert.True(t, ok)
}

func TestCreate_ReusesSlugOfSoftDeletedTenant(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	first := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	require.NoError(t, svc.Delete(ctx, first.ID, false))

	// Uniqueness is scoped to live rows, so the base slug comes back
	// without a counter suffix
	second := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	assert.Equal(t, "acme", second.Slug)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestMove_SubtreeCascade(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division1 := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)
	division2 := mustCreate(t, svc, "Division 2", models.TenantTypePartner, &acme.ID)
	team3 := mustCreate(t, svc, "Team 3", models.TenantTypeClient, &division1.ID)
	sub1 := mustCreate(t, svc, "Sub 1", models.TenantTypeClient, &team3.ID)

	moved, err := svc.Move(ctx, team3.ID, &division2.ID)
	require.NoError(t, err)

	assert.Equal(t, "acme/division-2/team-3", moved.Path)
	assert.Equal(t, 2, moved.Level)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, division2.ID, *moved.ParentID)

	// The descendant's path embeds the moved ancestor's new path
	got, err := svc.Get(ctx, sub1.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/division-2/team-3/sub-1", got.Path)
	assert.Equal(t, 3, got.Level)

	// Untouched sibling keeps its path
	d1, err := svc.Get(ctx, division1.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/division-1", d1.Path)
	assert.Equal(t, 1, d1.Level)
}

func TestMove_ToRoot(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)
	team := mustCreate(t, svc, "Team", models.TenantTypeClient, &division.ID)

	moved, err := svc.Move(ctx, division.ID, nil)
	require.NoError(t, err)

	assert.Nil(t, moved.ParentID)
	assert.Equal(t, "division-1", moved.Path)
	assert.Equal(t, 0, moved.Level)

	got, err := svc.Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, "division-1/team", got.Path)
	assert.Equal(t, 1, got.Level)
}

func TestMove_RejectsCycle(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)

	_, err := svc.Move(ctx, acme.ID, &division.ID)
	_, ok := IsCircularReferenceError(err)
	require.True(t, ok)

	// Tree unchanged on rejection
	got, err := svc.Get(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Path)
	assert.Equal(t, 0, got.Level)
	assert.Nil(t, got.ParentID)
}

func TestMove_RejectsSelfParent(t *testing.T) {
	svc := newService(newMemStore())

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	_, err := svc.Move(context.Background(), acme.ID, &acme.ID)
	_, ok := IsCircularReferenceError(err)
	assert.True(t, ok)
}

func TestMove_RejectsDepthOverflow(t *testing.T) {
	svc := newService(newMemStore())

	parent := mustCreate(t, svc, "Root", models.TenantTypeAdmin, nil)
	for i := 1; i < 5; i++ {
		parent = mustCreate(t, svc, "Chain "+string(rune('0'+i)), models.TenantTypeClient, &parent.ID)
	}
	loose := mustCreate(t, svc, "Loose", models.TenantTypeClient, nil)

	_, err := svc.Move(context.Background(), loose.ID, &parent.ID)
	_, ok := IsDepthExceededError(err)
	assert.True(t, ok)
}

func TestCanMove(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)
	other := mustCreate(t, svc, "Other", models.TenantTypeWholesaler, nil)

	ok, _, err := svc.CanMove(ctx, division.ID, &other.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, reason, err := svc.CanMove(ctx, acme.ID, &division.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	// Dry run must not mutate
	got, err := svc.Get(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Path)
}

func TestUpdate_PathFollowsSlug(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)
	team := mustCreate(t, svc, "Team", models.TenantTypeClient, &division.ID)

	newName := "Division One"
	updated, err := svc.Update(ctx, division.ID, UpdateTenantRequest{Name: &newName})
	require.NoError(t, err)

	assert.Equal(t, "division-one", updated.Slug)
	assert.Equal(t, "acme/division-one", updated.Path)
	assert.Equal(t, 1, updated.Level)

	got, err := svc.Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/division-one/team", got.Path)
	assert.Equal(t, 2, got.Level)
}

func TestUpdate_NonStructuralFields(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)

	display := "ACME Holdings"
	newType := models.TenantTypePartner
	updated, err := svc.Update(ctx, acme.ID, UpdateTenantRequest{DisplayName: &display, TenantType: &newType})
	require.NoError(t, err)

	assert.Equal(t, "ACME Holdings", updated.DisplayName)
	assert.Equal(t, models.TenantTypePartner, updated.TenantType)
	assert.Equal(t, "acme", updated.Slug, "unchanged name keeps the slug")
	assert.Equal(t, "acme", updated.Path)
}

func TestUpdate_StatusTransitions(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)

	suspended := models.TenantStatusSuspended
	reason := "payment overdue"
	updated, err := svc.Update(ctx, acme.ID, UpdateTenantRequest{Status: &suspended, SuspensionReason: &reason})
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusSuspended, updated.Status)
	assert.NotNil(t, updated.SuspendedAt)
	assert.Equal(t, "payment overdue", updated.SuspensionReason)

	active := models.TenantStatusActive
	updated, err = svc.Update(ctx, acme.ID, UpdateTenantRequest{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusActive, updated.Status)
	assert.Empty(t, updated.SuspensionReason)
	assert.Nil(t, updated.SuspendedAt)
}

func TestDelete_RejectsWhenChildrenExist(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)

	err := svc.Delete(ctx, acme.ID, false)
	childErr, ok := IsHasChildrenError(err)
	require.True(t, ok)
	assert.Equal(t, int64(1), childErr.ChildrenCount)

	// Still present
	got, err := svc.Get(ctx, acme.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDeleted())
}

func TestDelete_CascadeSoftDeletesSubtree(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)
	team := mustCreate(t, svc, "Team", models.TenantTypeClient, &division.ID)
	other := mustCreate(t, svc, "Other", models.TenantTypeWholesaler, nil)

	require.NoError(t, svc.Delete(ctx, acme.ID, true))

	// Direct lookup still exposes the CLOSED record
	got, err := svc.Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusClosed, got.Status)
	assert.NotNil(t, got.DeletedAt)

	// Excluded from all navigation
	roots, err := svc.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, other.ID, roots[0].ID)

	children, err := svc.Children(ctx, acme.ID)
	require.NoError(t, err)
	assert.Empty(t, children)

	results, total, err := svc.Search(ctx, repository.SearchFilter{Term: "division"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, results)
}

func TestDelete_LeafWithoutCascade(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)

	require.NoError(t, svc.Delete(ctx, division.ID, false))

	children, err := svc.Children(ctx, acme.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestAncestors_RootFirst(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)
	team := mustCreate(t, svc, "Team", models.TenantTypeClient, &division.ID)

	ancestors, err := svc.Ancestors(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, acme.ID, ancestors[0].ID)
	assert.Equal(t, division.ID, ancestors[1].ID)

	// A root has no ancestors
	ancestors, err = svc.Ancestors(ctx, acme.ID)
	require.NoError(t, err)
	assert.Empty(t, ancestors)
}

func TestDescendants_OrderedByLevelThenName(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	zeta := mustCreate(t, svc, "Zeta", models.TenantTypePartner, &acme.ID)
	alpha := mustCreate(t, svc, "Alpha", models.TenantTypePartner, &acme.ID)
	nested := mustCreate(t, svc, "Nested", models.TenantTypeClient, &zeta.ID)

	descendants, err := svc.Descendants(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, descendants, 3)
	assert.Equal(t, alpha.ID, descendants[0].ID)
	assert.Equal(t, zeta.ID, descendants[1].ID)
	assert.Equal(t, nested.ID, descendants[2].ID)
}

func TestChildrenPageAndDescendantsPage(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	var division *models.Tenant
	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		division = mustCreate(t, svc, name, models.TenantTypePartner, &acme.ID)
	}
	mustCreate(t, svc, "Team", models.TenantTypeClient, &division.ID)

	children, total, err := svc.ChildrenPage(ctx, acme.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, children, 2)
	assert.Equal(t, "Alpha", children[0].Name)
	assert.Equal(t, "Beta", children[1].Name)

	children, total, err = svc.ChildrenPage(ctx, acme.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, children, 1)
	assert.Equal(t, "Gamma", children[0].Name)

	// Descendants include the grandchild; total counts the whole subtree
	descendants, total, err := svc.DescendantsPage(ctx, acme.ID, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, descendants, 3)
	assert.Equal(t, "Alpha", descendants[0].Name)

	descendants, _, err = svc.DescendantsPage(ctx, acme.ID, 1, 3)
	require.NoError(t, err)
	require.Len(t, descendants, 1)
	assert.Equal(t, "Team", descendants[0].Name)
}

func TestSearch_FiltersAndPagination(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme Corp", models.TenantTypeWholesaler, nil)
	mustCreate(t, svc, "Acme Division", models.TenantTypePartner, &acme.ID)
	mustCreate(t, svc, "Unrelated", models.TenantTypeClient, nil)

	results, total, err := svc.Search(ctx, repository.SearchFilter{Term: "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, results, 2)

	results, total, err = svc.Search(ctx, repository.SearchFilter{Term: "acme", TenantType: models.TenantTypePartner})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Acme Division", results[0].Name)

	results, total, err = svc.Search(ctx, repository.SearchFilter{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, results, 2)

	results, _, err = svc.Search(ctx, repository.SearchFilter{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, _, err = svc.Search(ctx, repository.SearchFilter{TenantType: "BOGUS"})
	_, ok := IsValidationError(err)
	assert.True(t, ok)
}

func TestSearchInSubtree(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)
	mustCreate(t, svc, "Team A", models.TenantTypeClient, &division.ID)
	mustCreate(t, svc, "Team B", models.TenantTypeClient, nil)

	results, total, err := svc.SearchInSubtree(ctx, acme.ID, repository.SearchFilter{Term: "team"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Team A", results[0].Name)
}

func TestIsSlugAvailable(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)

	available, err := svc.IsSlugAvailable(ctx, "acme", nil)
	require.NoError(t, err)
	assert.False(t, available)

	available, err = svc.IsSlugAvailable(ctx, "acme", &acme.ID)
	require.NoError(t, err)
	assert.True(t, available, "a tenant may keep its own slug")

	available, err = svc.IsSlugAvailable(ctx, "brand-new", nil)
	require.NoError(t, err)
	assert.True(t, available)

	available, err = svc.IsSlugAvailable(ctx, "Not A Slug", nil)
	require.NoError(t, err)
	assert.False(t, available)
}

func TestCurrentMaxLevel(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	level, err := svc.CurrentMaxLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, level)

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	division := mustCreate(t, svc, "Division", models.TenantTypePartner, &acme.ID)
	mustCreate(t, svc, "Team", models.TenantTypeClient, &division.ID)

	level, err = svc.CurrentMaxLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
}

func TestPathAndLevelInvariants(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	d1 := mustCreate(t, svc, "Division 1", models.TenantTypePartner, &acme.ID)
	d2 := mustCreate(t, svc, "Division 2", models.TenantTypePartner, &acme.ID)
	team := mustCreate(t, svc, "Team", models.TenantTypeClient, &d1.ID)
	mustCreate(t, svc, "Sub", models.TenantTypeClient, &team.ID)

	_, err := svc.Move(ctx, team.ID, &d2.ID)
	require.NoError(t, err)

	newName := "Acme Global"
	_, err = svc.Update(ctx, acme.ID, UpdateTenantRequest{Name: &newName})
	require.NoError(t, err)

	for _, tenant := range store.alive() {
		assert.Equal(t, models.LevelForPath(tenant.Path), tenant.Level,
			"level must equal path segments minus one for %s", tenant.Path)
		if tenant.ParentID == nil {
			assert.Equal(t, tenant.Slug, tenant.Path)
		} else {
			parent := store.tenants[*tenant.ParentID]
			assert.Equal(t, parent.Path+models.PathSeparator+tenant.Slug, tenant.Path)
		}
	}
}

func TestReadAfterWrite_NoStaleCache(t *testing.T) {
	store := newMemStore()
	hierarchyCache := cache.New(cache.Config{LocalTTL: time.Minute, LocalMaxSize: 100})
	svc := NewTenantService(store, hierarchyCache, nil, nil, 5, 2)
	ctx := context.Background()

	mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)

	roots, err := svc.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	mustCreate(t, svc, "Beta", models.TenantTypeWholesaler, nil)

	roots, err = svc.Roots(ctx)
	require.NoError(t, err)
	assert.Len(t, roots, 2, "mutation must invalidate cached navigation")
}

func TestRecentActivity(t *testing.T) {
	svc := newService(newMemStore())
	ctx := context.Background()

	acme := mustCreate(t, svc, "Acme", models.TenantTypeWholesaler, nil)
	name := "Acme Two"
	_, err := svc.Update(ctx, acme.ID, UpdateTenantRequest{Name: &name})
	require.NoError(t, err)

	entries, err := svc.RecentActivity(ctx, acme.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActivityTenantUpdated, entries[0].Action)
	assert.Equal(t, models.ActivityTenantCreated, entries[1].Action)
}
