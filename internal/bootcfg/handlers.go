package bootcfg

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	agentmodels "github.com/botcrew/botcrew/internal/agent/models"
	agentservice "github.com/botcrew/botcrew/internal/agent/service"
	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	wsmodels "github.com/botcrew/botcrew/internal/workspace/models"
	workspace "github.com/botcrew/botcrew/internal/workspace/service"
	api "github.com/botcrew/botcrew/pkg/api/v1"
)

// StatusStore is the slice of agent storage the status ingress writes.
type StatusStore interface {
	Get(ctx context.Context, id string) (*agentmodels.Agent, error)
	UpdateStatus(ctx context.Context, id string, status agentmodels.Status, handle *string) error
}

// Handler serves the internal worker-facing endpoints.
type Handler struct {
	provider  *Provider
	agents    *agentservice.Service
	statuses  StatusStore
	workspace *workspace.Service
	logger    *logger.Logger
}

// NewHandler creates the internal endpoint handler.
func NewHandler(provider *Provider, agents *agentservice.Service, statuses StatusStore, ws *workspace.Service, log *logger.Logger) *Handler {
	return &Handler{
		provider:  provider,
		agents:    agents,
		statuses:  statuses,
		workspace: ws,
		logger:    log,
	}
}

// RegisterRoutes mounts the internal endpoints under /internal.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	internal := r.Group("/internal/agents/:id")
	internal.GET("/boot-config", h.getBootConfig)
	internal.POST("/status", h.postStatus)
	internal.GET("/self", h.getSelf)
	internal.PATCH("/self", h.patchSelf)
	internal.POST("/activities", h.postActivity)
	internal.GET("/activities", h.listActivities)
	internal.GET("/projects", h.listProjects)
	internal.GET("/tasks", h.listTasks)
	internal.GET("/tasks/:task_id/skills", h.listTaskSkills)
	internal.GET("/tasks/:task_id/secrets", h.listTaskSecrets)
}

func (h *Handler) getBootConfig(c *gin.Context) {
	bundle, err := h.provider.Bundle(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "boot-config", bundle.AgentID, bundle)
}

// statusReport is what a worker posts after its health transitions.
type statusReport struct {
	Status string         `json:"status" binding:"required"`
	Checks map[string]any `json:"checks,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (h *Handler) postStatus(c *gin.Context) {
	agentID := c.Param("id")

	var report statusReport
	if err := c.ShouldBindJSON(&report); err != nil {
		api.RespondError(c, apperr.Validation("invalid status report: %v", err))
		return
	}

	var status agentmodels.Status
	switch report.Status {
	case "ready":
		status = agentmodels.StatusRunning
	case "error", "unhealthy":
		status = agentmodels.StatusError
	default:
		api.RespondError(c, apperr.ValidationField("status", "status must be ready, error, or unhealthy"))
		return
	}

	if _, err := h.statuses.Get(c.Request.Context(), agentID); err != nil {
		api.RespondError(c, err)
		return
	}
	if err := h.statuses.UpdateStatus(c.Request.Context(), agentID, status, nil); err != nil {
		api.RespondError(c, err)
		return
	}
	if report.Error != "" {
		h.logger.WithAgentID(agentID).Warn("Worker reported " + report.Status + ": " + report.Error)
	}
	c.Status(http.StatusNoContent)
}

// selfAttributes is the agent's view of itself. Name is read-only
// through this surface.
type selfAttributes struct {
	Name             string `json:"name"`
	Identity         string `json:"identity"`
	Personality      string `json:"personality"`
	Memory           string `json:"memory"`
	ModelProvider    string `json:"model_provider"`
	ModelName        string `json:"model_name"`
	HeartbeatSeconds int    `json:"heartbeat_seconds"`
	HeartbeatPrompt  string `json:"heartbeat_prompt"`
	HeartbeatEnabled bool   `json:"heartbeat_enabled"`
	Status           string `json:"status"`
}

func selfFromAgent(a *agentmodels.Agent) selfAttributes {
	return selfAttributes{
		Name:             a.Name,
		Identity:         a.Identity,
		Personality:      a.Personality,
		Memory:           a.Memory,
		ModelProvider:    a.ModelProvider,
		ModelName:        a.ModelName,
		HeartbeatSeconds: a.HeartbeatSeconds,
		HeartbeatPrompt:  a.HeartbeatPrompt,
		HeartbeatEnabled: a.HeartbeatEnabled,
		Status:           string(a.Status),
	}
}

func (h *Handler) getSelf(c *gin.Context) {
	agent, err := h.agents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "agents", agent.ID, selfFromAgent(agent))
}

// selfPatch is the subset of agent fields a worker may update about
// itself. Renames are operator-only, so name is absent.
type selfPatch struct {
	Identity         *string `json:"identity"`
	Personality      *string `json:"personality"`
	HeartbeatSeconds *int    `json:"heartbeat_seconds"`
	HeartbeatPrompt  *string `json:"heartbeat_prompt"`
	HeartbeatEnabled *bool   `json:"heartbeat_enabled"`
}

func (h *Handler) patchSelf(c *gin.Context) {
	var patch selfPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		api.RespondError(c, apperr.Validation("invalid self update: %v", err))
		return
	}

	agent, err := h.agents.Update(c.Request.Context(), c.Param("id"), agentservice.UpdateAgentInput{
		Identity:         patch.Identity,
		Personality:      patch.Personality,
		HeartbeatSeconds: patch.HeartbeatSeconds,
		HeartbeatPrompt:  patch.HeartbeatPrompt,
		HeartbeatEnabled: patch.HeartbeatEnabled,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "agents", agent.ID, selfFromAgent(agent))
}

type activityRequest struct {
	Kind    string         `json:"kind" binding:"required"`
	Summary string         `json:"summary"`
	Details map[string]any `json:"details"`
}

func (h *Handler) postActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid activity: %v", err))
		return
	}

	activity, err := h.workspace.CreateActivity(c.Request.Context(), &wsmodels.Activity{
		AgentID: c.Param("id"),
		Kind:    req.Kind,
		Summary: req.Summary,
		Details: req.Details,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "activities", activity.ID, activity)
}

func (h *Handler) listActivities(c *gin.Context) {
	activities, err := h.workspace.ListActivities(c.Request.Context(), c.Param("id"), 0)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(activities))
	for _, a := range activities {
		resources = append(resources, api.NewResource("activities", a.ID, a))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

func (h *Handler) listProjects(c *gin.Context) {
	assignments, err := h.workspace.ListAgentProjects(c.Request.Context(), c.Param("id"), true)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(assignments))
	for _, a := range assignments {
		resources = append(resources, api.NewResource("projects", a.Project.ID, gin.H{
			"name":           a.Project.Name,
			"goals":          a.Project.Goals,
			"specs":          a.Project.Specs,
			"notes":          a.Project.Notes,
			"role_prompt":    a.Role,
			"workspace_path": a.Project.WorkspacePath,
			"channel_id":     a.Project.ChannelID,
			"status":         a.Project.Status,
		}))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

func (h *Handler) listTasks(c *gin.Context) {
	tasks, err := h.workspace.ListAgentTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(tasks))
	for _, t := range tasks {
		resources = append(resources, api.NewResource("tasks", t.ID, t))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

func (h *Handler) listTaskSkills(c *gin.Context) {
	skills, err := h.workspace.ListTaskSkills(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(skills))
	for _, s := range skills {
		resources = append(resources, api.NewResource("skills", s.ID, s))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

func (h *Handler) listTaskSecrets(c *gin.Context) {
	secrets, err := h.workspace.ListTaskSecrets(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(secrets))
	for _, s := range secrets {
		resources = append(resources, api.NewResource("secrets", s.ID, gin.H{
			"key":   s.Key,
			"value": s.Value,
		}))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}
