// Package handlers exposes the workspace REST surface: projects,
// tasks, skills, secrets, integrations, and assignments.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/workspace/models"
	"github.com/botcrew/botcrew/internal/workspace/service"
	api "github.com/botcrew/botcrew/pkg/api/v1"
)

// Handler serves the workspace endpoints.
type Handler struct {
	workspace *service.Service
	logger    *logger.Logger
}

// NewHandler creates the workspace handler.
func NewHandler(ws *service.Service, log *logger.Logger) *Handler {
	return &Handler{workspace: ws, logger: log}
}

// RegisterRoutes mounts the workspace endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	projects := r.Group("/projects")
	projects.POST("", h.createProject)
	projects.GET("", h.listProjects)
	projects.GET("/:id", h.getProject)
	projects.PATCH("/:id", h.updateProject)
	projects.DELETE("/:id", h.deleteProject)
	projects.POST("/:id/agents", h.assignAgentToProject)
	projects.DELETE("/:id/agents/:agent_id", h.unassignAgentFromProject)
	projects.GET("/:id/agents", h.listProjectAgents)
	projects.POST("/:id/secrets", h.assignSecretToProject)
	projects.GET("/:id/secrets", h.listProjectSecrets)

	tasks := r.Group("/tasks")
	tasks.POST("", h.createTask)
	tasks.GET("", h.listTasks)
	tasks.GET("/:id", h.getTask)
	tasks.PATCH("/:id", h.updateTask)
	tasks.DELETE("/:id", h.deleteTask)
	tasks.POST("/:id/agents", h.assignAgentToTask)
	tasks.DELETE("/:id/agents/:agent_id", h.unassignAgentFromTask)
	tasks.POST("/:id/skills", h.assignSkillToTask)
	tasks.GET("/:id/skills", h.listTaskSkills)
	tasks.POST("/:id/secrets", h.assignSecretToTask)

	skills := r.Group("/skills")
	skills.POST("", h.createSkill)
	skills.GET("", h.listSkills)
	skills.PATCH("/:id", h.updateSkill)
	skills.DELETE("/:id", h.deleteSkill)

	secrets := r.Group("/secrets")
	secrets.POST("", h.createSecret)
	secrets.GET("", h.listSecrets)
	secrets.PATCH("/:id", h.updateSecret)
	secrets.DELETE("/:id", h.deleteSecret)

	integrations := r.Group("/integrations")
	integrations.POST("", h.createIntegration)
	integrations.GET("", h.listIntegrations)
	integrations.PATCH("/:id", h.updateIntegration)
	integrations.DELETE("/:id", h.deleteIntegration)
}

// --- Projects ---

type projectRequest struct {
	Name          string `json:"name"`
	Goals         string `json:"goals"`
	Specs         string `json:"specs"`
	Notes         string `json:"notes"`
	WorkspacePath string `json:"workspace_path"`
	ChannelID     string `json:"channel_id"`
	Status        string `json:"status"`
}

func (h *Handler) createProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid project payload: %v", err))
		return
	}

	project, err := h.workspace.CreateProject(c.Request.Context(), &models.Project{
		Name:          req.Name,
		Goals:         req.Goals,
		Specs:         req.Specs,
		Notes:         req.Notes,
		WorkspacePath: req.WorkspacePath,
		ChannelID:     req.ChannelID,
		Status:        req.Status,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "projects", project.ID, project)
}

func (h *Handler) listProjects(c *gin.Context) {
	projects, err := h.workspace.ListProjects(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(projects))
	for _, p := range projects {
		resources = append(resources, api.NewResource("projects", p.ID, p))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

func (h *Handler) getProject(c *gin.Context) {
	project, err := h.workspace.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "projects", project.ID, project)
}

func (h *Handler) updateProject(c *gin.Context) {
	project, err := h.workspace.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}

	var req struct {
		Name          *string `json:"name"`
		Goals         *string `json:"goals"`
		Specs         *string `json:"specs"`
		Notes         *string `json:"notes"`
		WorkspacePath *string `json:"workspace_path"`
		ChannelID     *string `json:"channel_id"`
		Status        *string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid project payload: %v", err))
		return
	}
	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Goals != nil {
		project.Goals = *req.Goals
	}
	if req.Specs != nil {
		project.Specs = *req.Specs
	}
	if req.Notes != nil {
		project.Notes = *req.Notes
	}
	if req.WorkspacePath != nil {
		project.WorkspacePath = *req.WorkspacePath
	}
	if req.ChannelID != nil {
		project.ChannelID = *req.ChannelID
	}
	if req.Status != nil {
		if *req.Status != models.ProjectStatusActive && *req.Status != models.ProjectStatusArchived {
			api.RespondError(c, apperr.ValidationField("status", "status must be active or archived"))
			return
		}
		project.Status = *req.Status
	}

	if err := h.workspace.UpdateProject(c.Request.Context(), project); err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "projects", project.ID, project)
}

func (h *Handler) deleteProject(c *gin.Context) {
	if err := h.workspace.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type projectAgentRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Role    string `json:"role"`
}

func (h *Handler) assignAgentToProject(c *gin.Context) {
	var req projectAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid assignment payload: %v", err))
		return
	}
	if err := h.workspace.AssignAgentToProject(c.Request.Context(), c.Param("id"), req.AgentID, req.Role); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handler) unassignAgentFromProject(c *gin.Context) {
	if err := h.workspace.UnassignAgentFromProject(c.Request.Context(), c.Param("id"), c.Param("agent_id")); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listProjectAgents(c *gin.Context) {
	assignments, err := h.workspace.ListProjectAgents(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(assignments))
	for _, a := range assignments {
		resources = append(resources, api.NewResource("project-agents", a.ID, a))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

type secretAssignmentRequest struct {
	SecretID string `json:"secret_id" binding:"required"`
}

func (h *Handler) assignSecretToProject(c *gin.Context) {
	var req secretAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid assignment payload: %v", err))
		return
	}
	if err := h.workspace.AssignSecretToProject(c.Request.Context(), c.Param("id"), req.SecretID); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handler) listProjectSecrets(c *gin.Context) {
	secrets, err := h.workspace.ListProjectSecrets(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(secrets))
	for _, s := range secrets {
		resources = append(resources, api.NewResource("secrets", s.ID, gin.H{"key": s.Key}))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

// --- Tasks ---

type taskRequest struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Directive   string `json:"directive"`
	Notes       string `json:"notes"`
	Status      string `json:"status"`
	ChannelID   string `json:"channel_id"`
}

func (h *Handler) createTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid task payload: %v", err))
		return
	}

	task, err := h.workspace.CreateTask(c.Request.Context(), &models.Task{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		Directive:   req.Directive,
		Notes:       req.Notes,
		Status:      req.Status,
		ChannelID:   req.ChannelID,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "tasks", task.ID, task)
}

func (h *Handler) listTasks(c *gin.Context) {
	tasks, err := h.workspace.ListTasks(c.Request.Context(), c.Query("project_id"))
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

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.workspace.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "tasks", task.ID, task)
}

func (h *Handler) updateTask(c *gin.Context) {
	task, err := h.workspace.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Directive   *string `json:"directive"`
		Notes       *string `json:"notes"`
		Status      *string `json:"status"`
		ChannelID   *string `json:"channel_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid task payload: %v", err))
		return
	}
	if req.Name != nil {
		task.Name = *req.Name
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Directive != nil {
		task.Directive = *req.Directive
	}
	if req.Notes != nil {
		task.Notes = *req.Notes
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.ChannelID != nil {
		task.ChannelID = *req.ChannelID
	}

	if err := h.workspace.UpdateTask(c.Request.Context(), task); err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "tasks", task.ID, task)
}

func (h *Handler) deleteTask(c *gin.Context) {
	if err := h.workspace.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type taskAgentRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

func (h *Handler) assignAgentToTask(c *gin.Context) {
	var req taskAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid assignment payload: %v", err))
		return
	}
	if err := h.workspace.AssignAgentToTask(c.Request.Context(), c.Param("id"), req.AgentID); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handler) unassignAgentFromTask(c *gin.Context) {
	if err := h.workspace.UnassignAgentFromTask(c.Request.Context(), c.Param("id"), c.Param("agent_id")); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type taskSkillRequest struct {
	SkillID string `json:"skill_id" binding:"required"`
}

func (h *Handler) assignSkillToTask(c *gin.Context) {
	var req taskSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid assignment payload: %v", err))
		return
	}
	if err := h.workspace.AssignSkillToTask(c.Request.Context(), c.Param("id"), req.SkillID); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handler) listTaskSkills(c *gin.Context) {
	skills, err := h.workspace.ListTaskSkills(c.Request.Context(), c.Param("id"))
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

func (h *Handler) assignSecretToTask(c *gin.Context) {
	var req secretAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid assignment payload: %v", err))
		return
	}
	if err := h.workspace.AssignSecretToTask(c.Request.Context(), c.Param("id"), req.SecretID); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// --- Skills ---

type skillRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
	Active       *bool  `json:"active"`
}

func (h *Handler) createSkill(c *gin.Context) {
	var req skillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid skill payload: %v", err))
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	skill, err := h.workspace.CreateSkill(c.Request.Context(), &models.Skill{
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
		Active:       active,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "skills", skill.ID, skill)
}

func (h *Handler) listSkills(c *gin.Context) {
	skills, err := h.workspace.ListSkills(c.Request.Context(), c.Query("active") == "true")
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

func (h *Handler) updateSkill(c *gin.Context) {
	skill, err := h.workspace.GetSkill(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}

	var req struct {
		Name         *string `json:"name"`
		Description  *string `json:"description"`
		Instructions *string `json:"instructions"`
		Active       *bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid skill payload: %v", err))
		return
	}
	if req.Name != nil {
		skill.Name = *req.Name
	}
	if req.Description != nil {
		skill.Description = *req.Description
	}
	if req.Instructions != nil {
		skill.Instructions = *req.Instructions
	}
	if req.Active != nil {
		skill.Active = *req.Active
	}

	if err := h.workspace.UpdateSkill(c.Request.Context(), skill); err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "skills", skill.ID, skill)
}

func (h *Handler) deleteSkill(c *gin.Context) {
	if err := h.workspace.DeleteSkill(c.Request.Context(), c.Param("id")); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Secrets ---

type secretRequest struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

func (h *Handler) createSecret(c *gin.Context) {
	var req secretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid secret payload: %v", err))
		return
	}

	secret, err := h.workspace.CreateSecret(c.Request.Context(), &models.Secret{
		Key:         req.Key,
		Value:       req.Value,
		Description: req.Description,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "secrets", secret.ID, secretAttributes(secret))
}

// secretAttributes redacts the value: secrets are write-only through
// the operator surface.
func secretAttributes(s *models.Secret) gin.H {
	return gin.H{
		"key":         s.Key,
		"description": s.Description,
		"created_at":  s.CreatedAt,
		"updated_at":  s.UpdatedAt,
	}
}

func (h *Handler) listSecrets(c *gin.Context) {
	secrets, err := h.workspace.ListSecrets(c.Request.Context())
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(secrets))
	for _, s := range secrets {
		resources = append(resources, api.NewResource("secrets", s.ID, secretAttributes(s)))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

func (h *Handler) updateSecret(c *gin.Context) {
	var req struct {
		Value       *string `json:"value"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid secret payload: %v", err))
		return
	}

	secrets, err := h.workspace.ListSecrets(c.Request.Context())
	if err != nil {
		api.RespondError(c, err)
		return
	}
	var secret *models.Secret
	for _, s := range secrets {
		if s.ID == c.Param("id") {
			secret = s
			break
		}
	}
	if secret == nil {
		api.RespondError(c, apperr.NotFound("secret %s not found", c.Param("id")))
		return
	}
	if req.Value != nil {
		secret.Value = *req.Value
	}
	if req.Description != nil {
		secret.Description = *req.Description
	}

	if err := h.workspace.UpdateSecret(c.Request.Context(), secret); err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "secrets", secret.ID, secretAttributes(secret))
}

func (h *Handler) deleteSecret(c *gin.Context) {
	if err := h.workspace.DeleteSecret(c.Request.Context(), c.Param("id")); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Integrations ---

type integrationRequest struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Config string `json:"config"`
	Active *bool  `json:"active"`
}

func (h *Handler) createIntegration(c *gin.Context) {
	var req integrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid integration payload: %v", err))
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	integration, err := h.workspace.CreateIntegration(c.Request.Context(), &models.Integration{
		Name:   req.Name,
		Type:   req.Type,
		Config: req.Config,
		Active: active,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "integrations", integration.ID, integrationAttributes(integration))
}

// integrationAttributes redacts the config, which may carry API keys.
func integrationAttributes(i *models.Integration) gin.H {
	return gin.H{
		"name":       i.Name,
		"type":       i.Type,
		"active":     i.Active,
		"created_at": i.CreatedAt,
		"updated_at": i.UpdatedAt,
	}
}

func (h *Handler) listIntegrations(c *gin.Context) {
	integrations, err := h.workspace.ListIntegrations(c.Request.Context())
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(integrations))
	for _, i := range integrations {
		resources = append(resources, api.NewResource("integrations", i.ID, integrationAttributes(i)))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

func (h *Handler) updateIntegration(c *gin.Context) {
	var req integrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid integration payload: %v", err))
		return
	}

	integrations, err := h.workspace.ListIntegrations(c.Request.Context())
	if err != nil {
		api.RespondError(c, err)
		return
	}
	var integration *models.Integration
	for _, i := range integrations {
		if i.ID == c.Param("id") {
			integration = i
			break
		}
	}
	if integration == nil {
		api.RespondError(c, apperr.NotFound("integration %s not found", c.Param("id")))
		return
	}
	if req.Name != "" {
		integration.Name = req.Name
	}
	if req.Config != "" {
		integration.Config = req.Config
	}
	if req.Active != nil {
		integration.Active = *req.Active
	}

	if err := h.workspace.UpdateIntegration(c.Request.Context(), integration); err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "integrations", integration.ID, integrationAttributes(integration))
}

func (h *Handler) deleteIntegration(c *gin.Context) {
	if err := h.workspace.DeleteIntegration(c.Request.Context(), c.Param("id")); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Activities ---

// RegisterActivityRoutes mounts the operator-facing activity listing.
func (h *Handler) RegisterActivityRoutes(r gin.IRouter) {
	r.GET("/agents/:id/activities", h.listActivities)
}

func (h *Handler) listActivities(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			api.RespondError(c, apperr.ValidationField("limit", "limit must be an integer"))
			return
		}
		limit = n
	}

	activities, err := h.workspace.ListActivities(c.Request.Context(), c.Param("id"), limit)
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
