package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"console-service/internal/services"
)

// AgentHandler handles backup agent HTTP requests
type AgentHandler struct {
	agentService *services.AgentService
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(agentService *services.AgentService) *AgentHandler {
	return &AgentHandler{agentService: agentService}
}

// Register registers an agent under a tenant. The plaintext API key is
// returned exactly once; only its hash is stored.
// @Summary Register agent
// @Tags agents
// @Accept json
// @Produce json
// @Param request body services.RegisterAgentRequest true "Agent registration request"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/agents [post]
func (h *AgentHandler) Register(c *gin.Context) {
	var req services.RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	agent, apiKey, err := h.agentService.Register(c.Request.Context(), req)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "Agent registered", gin.H{
		"agent":   agent,
		"api_key": apiKey,
	})
}

// Heartbeat records an agent's reported state. The API key travels in
// the X-API-Key header.
// @Summary Agent heartbeat
// @Tags agents
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param X-API-Key header string true "Agent API key"
// @Param request body services.HeartbeatRequest true "Heartbeat payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/agents/{id}/heartbeat [post]
func (h *AgentHandler) Heartbeat(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		ErrorResponse(c, http.StatusUnauthorized, "API key is required", nil)
		return
	}

	var req services.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	agent, err := h.agentService.Heartbeat(c.Request.Context(), id, apiKey, req)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Heartbeat recorded", agent)
}

// Get returns an agent by id
// @Summary Get agent
// @Tags agents
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/agents/{id} [get]
func (h *AgentHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	agent, err := h.agentService.Get(c.Request.Context(), id)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Agent retrieved", agent)
}

// ListByTenant returns the agents of a tenant, optionally filtered by status
// @Summary List tenant agents
// @Tags agents
// @Produce json
// @Param id path string true "Tenant ID"
// @Param status query string false "Status filter"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tenants/{id}/agents [get]
func (h *AgentHandler) ListByTenant(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid tenant ID format", err)
		return
	}

	agents, err := h.agentService.ListByTenant(c.Request.Context(), tenantID, c.Query("status"))
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Agents retrieved", agents)
}

// Decommission permanently removes an agent
// @Summary Decommission agent
// @Tags agents
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/agents/{id} [delete]
func (h *AgentHandler) Decommission(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.agentService.Decommission(c.Request.Context(), id); err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Agent decommissioned", nil)
}
