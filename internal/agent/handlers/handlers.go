// Package handlers exposes the agent REST surface.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/agent/service"
	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/common/pagination"
	api "github.com/botcrew/botcrew/pkg/api/v1"
)

// Handler serves /agents.
type Handler struct {
	agents *service.Service
	logger *logger.Logger
}

// NewHandler creates the agent handler.
func NewHandler(agents *service.Service, log *logger.Logger) *Handler {
	return &Handler{agents: agents, logger: log}
}

// RegisterRoutes mounts the agent endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	agents := r.Group("/agents")
	agents.POST("", h.create)
	agents.GET("", h.list)
	agents.GET("/:id", h.get)
	agents.PATCH("/:id", h.update)
	agents.DELETE("/:id", h.delete)
	agents.POST("/:id/duplicate", h.duplicate)
	agents.GET("/:id/memory", h.getMemory)
	agents.PUT("/:id/memory", h.replaceMemory)
	agents.PATCH("/:id/memory", h.patchMemory)
}

type createAgentRequest struct {
	Name             string `json:"name" binding:"required"`
	Identity         string `json:"identity"`
	Personality      string `json:"personality"`
	ModelProvider    string `json:"model_provider" binding:"required"`
	ModelName        string `json:"model_name"`
	HeartbeatSeconds int    `json:"heartbeat_seconds"`
	HeartbeatPrompt  string `json:"heartbeat_prompt"`
	HeartbeatEnabled *bool  `json:"heartbeat_enabled"`
}

func (h *Handler) create(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid agent payload: %v", err))
		return
	}

	agent, err := h.agents.Create(c.Request.Context(), service.CreateAgentInput{
		Name:             req.Name,
		Identity:         req.Identity,
		Personality:      req.Personality,
		ModelProvider:    req.ModelProvider,
		ModelName:        req.ModelName,
		HeartbeatSeconds: req.HeartbeatSeconds,
		HeartbeatPrompt:  req.HeartbeatPrompt,
		HeartbeatEnabled: req.HeartbeatEnabled,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "agents", agent.ID, agent)
}

func (h *Handler) list(c *gin.Context) {
	in := service.ListAgentsInput{
		Sort:   c.Query("sort"),
		Desc:   c.Query("order") == "desc",
		Cursor: c.Query("cursor"),
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			api.RespondError(c, apperr.ValidationField("page_size", "page_size must be an integer"))
			return
		}
		in.PageSize = size
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.Status(strings.TrimSpace(s))
			if !models.ValidStatus(status) {
				api.RespondError(c, apperr.ValidationField("status", "invalid status %q", s))
				return
			}
			in.Statuses = append(in.Statuses, status)
		}
	}

	page, err := h.agents.List(c.Request.Context(), in)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	if c.Query("live_status") == "true" {
		views, err := h.agents.WithLiveStatus(c.Request.Context(), page.Agents)
		if err != nil {
			api.RespondError(c, err)
			return
		}
		resources := make([]api.Resource, 0, len(views))
		for _, v := range views {
			resources = append(resources, api.NewResource("agents", v.Agent.ID, viewAttributes(v)))
		}
		respondAgentPage(c, resources, page)
		return
	}

	resources := make([]api.Resource, 0, len(page.Agents))
	for _, a := range page.Agents {
		resources = append(resources, api.NewResource("agents", a.ID, a))
	}
	respondAgentPage(c, resources, page)
}

func respondAgentPage(c *gin.Context, resources []api.Resource, page *service.AgentPage) {
	var links *api.Links
	if page.NextCursor != "" {
		links = &api.Links{Next: page.NextCursor}
	}
	api.RespondList(c, http.StatusOK, resources, pagination.Meta{HasNext: page.HasNext}, links)
}

type agentViewAttributes struct {
	*models.Agent
	LiveStatus models.Status `json:"live_status"`
}

func viewAttributes(v *service.AgentView) agentViewAttributes {
	return agentViewAttributes{Agent: v.Agent, LiveStatus: v.LiveStatus}
}

func (h *Handler) get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if c.Query("live_status") == "true" {
		view, err := h.agents.GetWithLiveStatus(ctx, id)
		if err != nil {
			api.RespondError(c, err)
			return
		}
		api.RespondResource(c, http.StatusOK, "agents", view.Agent.ID, viewAttributes(view))
		return
	}

	agent, err := h.agents.Get(ctx, id)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "agents", agent.ID, agent)
}

type updateAgentRequest struct {
	Name             *string `json:"name"`
	Identity         *string `json:"identity"`
	Personality      *string `json:"personality"`
	ModelProvider    *string `json:"model_provider"`
	ModelName        *string `json:"model_name"`
	HeartbeatSeconds *int    `json:"heartbeat_seconds"`
	HeartbeatPrompt  *string `json:"heartbeat_prompt"`
	HeartbeatEnabled *bool   `json:"heartbeat_enabled"`
}

func (h *Handler) update(c *gin.Context) {
	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid agent payload: %v", err))
		return
	}

	agent, err := h.agents.Update(c.Request.Context(), c.Param("id"), service.UpdateAgentInput{
		Name:             req.Name,
		Identity:         req.Identity,
		Personality:      req.Personality,
		ModelProvider:    req.ModelProvider,
		ModelName:        req.ModelName,
		HeartbeatSeconds: req.HeartbeatSeconds,
		HeartbeatPrompt:  req.HeartbeatPrompt,
		HeartbeatEnabled: req.HeartbeatEnabled,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "agents", agent.ID, agent)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.agents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type duplicateRequest struct {
	Name string `json:"name"`
}

func (h *Handler) duplicate(c *gin.Context) {
	var req duplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		api.RespondError(c, apperr.Validation("invalid duplicate payload: %v", err))
		return
	}

	agent, err := h.agents.Duplicate(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "agents", agent.ID, agent)
}

func (h *Handler) getMemory(c *gin.Context) {
	agent, err := h.agents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "agent-memory", agent.ID, gin.H{"memory": agent.Memory})
}

type replaceMemoryRequest struct {
	Content string `json:"content"`
}

func (h *Handler) replaceMemory(c *gin.Context) {
	var req replaceMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid memory payload: %v", err))
		return
	}

	id := c.Param("id")
	if err := h.agents.UpdateMemory(c.Request.Context(), id, req.Content); err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "agent-memory", id, gin.H{"memory": req.Content})
}

// patchMemoryRequest accepts either an append or a full replacement.
type patchMemoryRequest struct {
	Append  *string `json:"append"`
	Content *string `json:"content"`
}

func (h *Handler) patchMemory(c *gin.Context) {
	var req patchMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid memory payload: %v", err))
		return
	}
	if req.Append == nil && req.Content == nil {
		api.RespondError(c, apperr.Validation("memory patch requires append or content"))
		return
	}
	if req.Append != nil && req.Content != nil {
		api.RespondError(c, apperr.Validation("memory patch accepts append or content, not both"))
		return
	}

	id := c.Param("id")
	if req.Content != nil {
		if err := h.agents.UpdateMemory(c.Request.Context(), id, *req.Content); err != nil {
			api.RespondError(c, err)
			return
		}
		api.RespondResource(c, http.StatusOK, "agent-memory", id, gin.H{"memory": *req.Content})
		return
	}

	agent, err := h.agents.AppendMemory(c.Request.Context(), id, *req.Append)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "agent-memory", id, gin.H{"memory": agent.Memory})
}
