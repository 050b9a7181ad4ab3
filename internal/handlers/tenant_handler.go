package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"console-service/internal/models"
	"console-service/internal/repository"
	"console-service/internal/services"
)

// TenantHandler handles tenant hierarchy HTTP requests
type TenantHandler struct {
	tenantService *services.TenantService
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenantService *services.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// Create creates a tenant, optionally under a parent
// @Summary Create tenant
// @Description Creates a tenant. The slug is generated from the name and the path from the parent chain.
// @Tags tenants
// @Accept json
// @Produce json
// @Param request body services.CreateTenantRequest true "Tenant creation request"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/tenants [post]
func (h *TenantHandler) Create(c *gin.Context) {
	var req services.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	tenant, err := h.tenantService.Create(c.Request.Context(), req)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "Tenant created", tenant)
}

// Get returns a tenant by id. Soft-deleted tenants are returned with
// status CLOSED.
// @Summary Get tenant
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/tenants/{id} [get]
func (h *TenantHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	tenant, err := h.tenantService.Get(c.Request.Context(), id)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant retrieved", tenant)
}

// GetBySlug returns a tenant by its slug
// @Summary Get tenant by slug
// @Tags tenants
// @Produce json
// @Param slug path string true "Tenant slug"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/tenants/slug/{slug} [get]
func (h *TenantHandler) GetBySlug(c *gin.Context) {
	slug := c.Param("slug")
	if slug == "" {
		ErrorResponse(c, http.StatusBadRequest, "Slug is required", nil)
		return
	}

	tenant, err := h.tenantService.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant retrieved", tenant)
}

// GetByExternalID returns a tenant by its external reference
// @Summary Get tenant by external ID
// @Tags tenants
// @Produce json
// @Param externalId path string true "External ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/tenants/external/{externalId} [get]
func (h *TenantHandler) GetByExternalID(c *gin.Context) {
	externalID := c.Param("externalId")
	if externalID == "" {
		ErrorResponse(c, http.StatusBadRequest, "External ID is required", nil)
		return
	}

	tenant, err := h.tenantService.GetByExternalID(c.Request.Context(), externalID)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant retrieved", tenant)
}

// Update applies changes to a tenant. A name change regenerates the slug
// and rewrites the paths of the whole subtree.
// @Summary Update tenant
// @Tags tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param request body services.UpdateTenantRequest true "Tenant update request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/tenants/{id} [patch]
func (h *TenantHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req services.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	tenant, err := h.tenantService.Update(c.Request.Context(), id, req)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant updated", tenant)
}

// MoveTenantRequest represents the request to re-parent a tenant. A nil
// new_parent_id promotes the tenant to a root.
type MoveTenantRequest struct {
	NewParentID *uuid.UUID `json:"new_parent_id"`
}

// Move re-parents a tenant and rewrites the paths of its subtree
// @Summary Move tenant
// @Tags tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param request body MoveTenantRequest true "Move request"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/move [post]
func (h *TenantHandler) Move(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req MoveTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	tenant, err := h.tenantService.Move(c.Request.Context(), id, req.NewParentID)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant moved", tenant)
}

// CanMove dry-runs the depth and cycle checks of a move
// @Summary Check whether a tenant can be moved
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Param new_parent_id query string false "Target parent ID; omit for root"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/can-move [get]
func (h *TenantHandler) CanMove(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var newParentID *uuid.UUID
	if raw := c.Query("new_parent_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid new_parent_id format", err)
			return
		}
		newParentID = &parsed
	}

	allowed, reason, err := h.tenantService.CanMove(c.Request.Context(), id, newParentID)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Move check completed", gin.H{
		"can_move": allowed,
		"reason":   reason,
	})
}

// Delete soft-deletes a tenant. With cascade=true the whole subtree is
// soft-deleted; without it the call fails while children exist.
// @Summary Delete tenant
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Param cascade query bool false "Also delete all descendants"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/tenants/{id} [delete]
func (h *TenantHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	cascade := c.Query("cascade") == "true"
	if err := h.tenantService.Delete(c.Request.Context(), id, cascade); err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant deleted", gin.H{"cascade": cascade})
}

// Roots returns all root tenants
// @Summary List root tenants
// @Tags tenants
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/roots [get]
func (h *TenantHandler) Roots(c *gin.Context) {
	tenants, err := h.tenantService.Roots(c.Request.Context())
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Root tenants retrieved", tenants)
}

// Children returns the direct children of a tenant, optionally filtered
// by status. With page or size set the response is paginated.
// @Summary List direct children
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Param status query string false "Status filter"
// @Param page query int false "Page number, starting at 0"
// @Param size query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/children [get]
func (h *TenantHandler) Children(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if page, size, paged := pageFromQuery(c); paged {
		tenants, total, err := h.tenantService.ChildrenPage(c.Request.Context(), id, page, size)
		if err != nil {
			ServiceErrorResponse(c, err)
			return
		}
		SuccessResponse(c, http.StatusOK, "Children retrieved", gin.H{
			"items": tenants,
			"total": total,
			"page":  page,
			"size":  size,
		})
		return
	}

	var tenants []*models.Tenant
	var err error
	if status := c.Query("status"); status != "" {
		tenants, err = h.tenantService.ChildrenByStatus(c.Request.Context(), id, status)
	} else {
		tenants, err = h.tenantService.Children(c.Request.Context(), id)
	}
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Children retrieved", tenants)
}

// Descendants returns every tenant below the given one, ordered by level
// then name. With active=true only ACTIVE tenants are returned; with page
// or size set the response is paginated.
// @Summary List descendants
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Param active query bool false "Only ACTIVE descendants"
// @Param page query int false "Page number, starting at 0"
// @Param size query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/descendants [get]
func (h *TenantHandler) Descendants(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if page, size, paged := pageFromQuery(c); paged {
		tenants, total, err := h.tenantService.DescendantsPage(c.Request.Context(), id, page, size)
		if err != nil {
			ServiceErrorResponse(c, err)
			return
		}
		SuccessResponse(c, http.StatusOK, "Descendants retrieved", gin.H{
			"items": tenants,
			"total": total,
			"page":  page,
			"size":  size,
		})
		return
	}

	var tenants interface{}
	var err error
	if c.Query("active") == "true" {
		tenants, err = h.tenantService.ActiveDescendants(c.Request.Context(), id)
	} else {
		tenants, err = h.tenantService.Descendants(c.Request.Context(), id)
	}
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Descendants retrieved", tenants)
}

// Ancestors returns the chain from root to the tenant's parent
// @Summary List ancestors
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/ancestors [get]
func (h *TenantHandler) Ancestors(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	tenants, err := h.tenantService.Ancestors(c.Request.Context(), id)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Ancestors retrieved", tenants)
}

// AtLevel returns all tenants at the given depth
// @Summary List tenants at a level
// @Tags tenants
// @Produce json
// @Param level path int true "Hierarchy level, 0 for roots"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/level/{level} [get]
func (h *TenantHandler) AtLevel(c *gin.Context) {
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid level", err)
		return
	}

	tenants, err := h.tenantService.AtLevel(c.Request.Context(), level)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Tenants retrieved", tenants)
}

// ByTypeInBranch returns tenants of one type within a subtree
// @Summary List tenants of a type within a branch
// @Tags tenants
// @Produce json
// @Param id path string true "Branch root tenant ID"
// @Param type query string true "Tenant type"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/branch [get]
func (h *TenantHandler) ByTypeInBranch(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	tenantType := c.Query("type")
	if tenantType == "" {
		ErrorResponse(c, http.StatusBadRequest, "Type parameter is required", nil)
		return
	}

	tenants, err := h.tenantService.ByTypeInBranch(c.Request.Context(), tenantType, id)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Tenants retrieved", tenants)
}

// Search filters tenants by free text, type and status with pagination
// @Summary Search tenants
// @Tags tenants
// @Produce json
// @Param search query string false "Free-text filter on name and slug"
// @Param type query string false "Tenant type filter"
// @Param status query string false "Status filter"
// @Param page query int false "Zero-based page"
// @Param size query int false "Page size, default 20"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants [get]
func (h *TenantHandler) Search(c *gin.Context) {
	filter := searchFilterFromQuery(c)

	tenants, total, err := h.tenantService.Search(c.Request.Context(), filter)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenants retrieved", gin.H{
		"items": tenants,
		"total": total,
		"page":  filter.Page,
		"size":  filter.Size,
	})
}

// SearchInSubtree is Search constrained to the subtree of a tenant
// @Summary Search tenants within a subtree
// @Tags tenants
// @Produce json
// @Param id path string true "Subtree root tenant ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/search [get]
func (h *TenantHandler) SearchInSubtree(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	filter := searchFilterFromQuery(c)

	tenants, total, err := h.tenantService.SearchInSubtree(c.Request.Context(), id, filter)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenants retrieved", gin.H{
		"items": tenants,
		"total": total,
		"page":  filter.Page,
		"size":  filter.Size,
	})
}

// Stats returns the size of a tenant's subtree
// @Summary Get subtree statistics
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/stats [get]
func (h *TenantHandler) Stats(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	children, err := h.tenantService.CountDirectChildren(ctx, id)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	descendants, err := h.tenantService.CountDescendants(ctx, id)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	active, err := h.tenantService.CountActiveDescendants(ctx, id)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Statistics retrieved", gin.H{
		"direct_children":    children,
		"descendants":        descendants,
		"active_descendants": active,
	})
}

// Activity returns the latest lifecycle entries for a tenant
// @Summary Get tenant activity
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Param limit query int false "Max entries, default 20"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/activity [get]
func (h *TenantHandler) Activity(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	entries, err := h.tenantService.RecentActivity(c.Request.Context(), id, limit)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Activity retrieved", entries)
}

// CheckSlugAvailability checks if a slug is available for use
// @Summary Check slug availability
// @Tags tenants
// @Produce json
// @Param slug query string true "Slug to check"
// @Param exclude_id query string false "Tenant to ignore, for renames"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/check-slug [get]
func (h *TenantHandler) CheckSlugAvailability(c *gin.Context) {
	slug := c.Query("slug")
	if slug == "" {
		ErrorResponse(c, http.StatusBadRequest, "Slug parameter is required", nil)
		return
	}

	var excludeID *uuid.UUID
	if raw := c.Query("exclude_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid exclude_id format", err)
			return
		}
		excludeID = &parsed
	}

	available, err := h.tenantService.IsSlugAvailable(c.Request.Context(), slug, excludeID)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Slug availability checked", gin.H{
		"slug":      slug,
		"available": available,
	})
}

// MaxLevel returns the deepest level present in the tree and the
// configured bound
// @Summary Get current tree depth
// @Tags tenants
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/max-level [get]
func (h *TenantHandler) MaxLevel(c *gin.Context) {
	level, err := h.tenantService.CurrentMaxLevel(c.Request.Context())
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Depth retrieved", gin.H{
		"max_level": level,
		"max_depth": h.tenantService.MaxDepth(),
	})
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid tenant ID format", err)
		return uuid.Nil, false
	}
	return id, true
}

// pageFromQuery reads the page/size query parameters; paged is false when
// neither is present and the caller should return the full listing
func pageFromQuery(c *gin.Context) (page, size int, paged bool) {
	_, hasPage := c.GetQuery("page")
	_, hasSize := c.GetQuery("size")
	if !hasPage && !hasSize {
		return 0, 0, false
	}
	page, _ = strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	return page, size, true
}

func searchFilterFromQuery(c *gin.Context) repository.SearchFilter {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return repository.SearchFilter{
		Term:       c.Query("search"),
		TenantType: c.Query("type"),
		Status:     c.Query("status"),
		Page:       page,
		Size:       size,
	}
}
