package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"console-service/internal/models"
	"console-service/internal/repository"
	"console-service/internal/services"
)

// stubStore implements the slice of TenantStore the handler tests reach.
// The embedded interface satisfies the contract; unimplemented methods
// are never called.
type stubStore struct {
	repository.TenantStore

	tenants    map[uuid.UUID]*models.Tenant
	activities []*models.TenantActivityLog
}

func newStubStore() *stubStore {
	return &stubStore{tenants: make(map[uuid.UUID]*models.Tenant)}
}

func (s *stubStore) Transaction(ctx context.Context, fn func(tx repository.TenantStore) error) error {
	return fn(s)
}

func (s *stubStore) Create(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	tenant.CreatedAt = time.Now().UTC()
	s.tenants[tenant.ID] = tenant
	return nil
}

func (s *stubStore) Save(ctx context.Context, tenant *models.Tenant) error {
	s.tenants[tenant.ID] = tenant
	return nil
}

func (s *stubStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.tenants[id], nil
}

func (s *stubStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	for _, t := range s.tenants {
		if t.DeletedAt == nil && t.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) CountDirectChildren(ctx context.Context, parentID uuid.UUID) (int64, error) {
	var count int64
	for _, t := range s.tenants {
		if t.DeletedAt == nil && t.ParentID != nil && *t.ParentID == parentID {
			count++
		}
	}
	return count, nil
}

func (s *stubStore) CreateActivity(ctx context.Context, entry *models.TenantActivityLog) error {
	s.activities = append(s.activities, entry)
	return nil
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func newTestRouter(store repository.TenantStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := services.NewTenantService(store, nil, nil, nil, 5, 2)
	h := NewTenantHandler(svc)

	router := gin.New()
	router.POST("/api/v1/tenants", h.Create)
	router.GET("/api/v1/tenants/:id", h.Get)
	router.DELETE("/api/v1/tenants/:id", h.Delete)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateTenantReturnsEnvelope(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := doRequest(router, http.MethodPost, "/api/v1/tenants", `{"name":"Acme Corp","tenant_type":"WHOLESALER"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)

	var tenant models.Tenant
	require.NoError(t, json.Unmarshal(resp.Data, &tenant))
	assert.Equal(t, "acme-corp", tenant.Slug)
	assert.Equal(t, "acme-corp", tenant.Path)
	assert.Equal(t, 0, tenant.Level)
}

func TestCreateTenantRejectsBlankName(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := doRequest(router, http.MethodPost, "/api/v1/tenants", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestGetTenantNotFound(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := doRequest(router, http.MethodGet, "/api/v1/tenants/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTenantRejectsMalformedID(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := doRequest(router, http.MethodGet, "/api/v1/tenants/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteWithChildrenConflicts(t *testing.T) {
	store := newStubStore()
	parent := &models.Tenant{ID: uuid.New(), Name: "Parent", Slug: "parent", Path: "parent", Status: models.TenantStatusActive}
	child := &models.Tenant{ID: uuid.New(), Name: "Child", Slug: "child", ParentID: &parent.ID, Path: "parent/child", Level: 1, Status: models.TenantStatusActive}
	store.tenants[parent.ID] = parent
	store.tenants[child.ID] = child
	router := newTestRouter(store)

	w := doRequest(router, http.MethodDelete, "/api/v1/tenants/"+parent.ID.String(), "")
	assert.Equal(t, http.StatusConflict, w.Code)
}
