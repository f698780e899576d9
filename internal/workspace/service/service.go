// Package service implements the workspace domain: projects, tasks,
// skills, secrets, integrations, activities, and the assignment graph,
// plus the system-secrets assembly consumed by boot config.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/common/providers"
	"github.com/botcrew/botcrew/internal/workspace/models"
	"github.com/botcrew/botcrew/internal/workspace/repository"
)

// Service manages workspace entities.
type Service struct {
	repo   repository.Repository
	logger *logger.Logger
}

// NewService creates the workspace service.
func NewService(repo repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log}
}

// --- Projects ---

// CreateProject inserts an active project.
func (s *Service) CreateProject(ctx context.Context, p *models.Project) (*models.Project, error) {
	if p.Name == "" {
		return nil, apperr.ValidationField("name", "name must not be empty")
	}
	now := time.Now().UTC()
	p.ID = uuid.New().String()
	if p.Status == "" {
		p.Status = models.ProjectStatusActive
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject fetches a project.
func (s *Service) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return s.repo.GetProject(ctx, id)
}

// UpdateProject writes mutable project fields.
func (s *Service) UpdateProject(ctx context.Context, p *models.Project) error {
	if p.Name == "" {
		return apperr.ValidationField("name", "name must not be empty")
	}
	p.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateProject(ctx, p)
}

// DeleteProject removes a project and its assignments.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	return s.repo.DeleteProject(ctx, id)
}

// ListProjects lists projects, optionally only active ones.
func (s *Service) ListProjects(ctx context.Context, activeOnly bool) ([]*models.Project, error) {
	return s.repo.ListProjects(ctx, activeOnly)
}

// --- Tasks ---

// CreateTask inserts an open task, verifying its project when set.
func (s *Service) CreateTask(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t.Name == "" {
		return nil, apperr.ValidationField("name", "name must not be empty")
	}
	if t.ProjectID != "" {
		if _, err := s.repo.GetProject(ctx, t.ProjectID); err != nil {
			return nil, err
		}
	}
	now := time.Now().UTC()
	t.ID = uuid.New().String()
	if t.Status == "" {
		t.Status = models.TaskStatusOpen
	}
	if !validTaskStatus(t.Status) {
		return nil, apperr.ValidationField("status", "invalid task status %q", t.Status)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.repo.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask fetches a task.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.GetTask(ctx, id)
}

// UpdateTask writes mutable task fields.
func (s *Service) UpdateTask(ctx context.Context, t *models.Task) error {
	if !validTaskStatus(t.Status) {
		return apperr.ValidationField("status", "invalid task status %q", t.Status)
	}
	t.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateTask(ctx, t)
}

// DeleteTask removes a task and its assignments.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return s.repo.DeleteTask(ctx, id)
}

// ListTasks lists tasks, optionally scoped to one project.
func (s *Service) ListTasks(ctx context.Context, projectID string) ([]*models.Task, error) {
	return s.repo.ListTasks(ctx, projectID)
}

func validTaskStatus(status string) bool {
	switch status {
	case models.TaskStatusOpen, models.TaskStatusInProgress, models.TaskStatusDone:
		return true
	}
	return false
}

// --- Skills ---

// CreateSkill inserts a skill; names are unique.
func (s *Service) CreateSkill(ctx context.Context, skill *models.Skill) (*models.Skill, error) {
	if skill.Name == "" {
		return nil, apperr.ValidationField("name", "name must not be empty")
	}
	now := time.Now().UTC()
	skill.ID = uuid.New().String()
	skill.CreatedAt = now
	skill.UpdatedAt = now
	if err := s.repo.CreateSkill(ctx, skill); err != nil {
		return nil, err
	}
	return skill, nil
}

// GetSkill fetches a skill by id.
func (s *Service) GetSkill(ctx context.Context, id string) (*models.Skill, error) {
	return s.repo.GetSkill(ctx, id)
}

// UpdateSkill writes mutable skill fields.
func (s *Service) UpdateSkill(ctx context.Context, skill *models.Skill) error {
	skill.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateSkill(ctx, skill)
}

// DeleteSkill removes a skill.
func (s *Service) DeleteSkill(ctx context.Context, id string) error {
	return s.repo.DeleteSkill(ctx, id)
}

// ListSkills lists skills, optionally only active ones.
func (s *Service) ListSkills(ctx context.Context, activeOnly bool) ([]*models.Skill, error) {
	return s.repo.ListSkills(ctx, activeOnly)
}

// --- Secrets ---

// CreateSecret inserts a secret; keys are unique.
func (s *Service) CreateSecret(ctx context.Context, secret *models.Secret) (*models.Secret, error) {
	if secret.Key == "" {
		return nil, apperr.ValidationField("key", "key must not be empty")
	}
	now := time.Now().UTC()
	secret.ID = uuid.New().String()
	secret.CreatedAt = now
	secret.UpdatedAt = now
	if err := s.repo.CreateSecret(ctx, secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// UpdateSecret writes mutable secret fields.
func (s *Service) UpdateSecret(ctx context.Context, secret *models.Secret) error {
	secret.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateSecret(ctx, secret)
}

// DeleteSecret removes a secret.
func (s *Service) DeleteSecret(ctx context.Context, id string) error {
	return s.repo.DeleteSecret(ctx, id)
}

// ListSecrets lists all secrets.
func (s *Service) ListSecrets(ctx context.Context) ([]*models.Secret, error) {
	return s.repo.ListSecrets(ctx)
}

// --- Integrations ---

// aiProviderConfig is the JSON shape of an ai_provider integration's
// Config field.
type aiProviderConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// CreateIntegration inserts an integration. AI-provider configs must
// parse.
func (s *Service) CreateIntegration(ctx context.Context, i *models.Integration) (*models.Integration, error) {
	if i.Name == "" {
		return nil, apperr.ValidationField("name", "name must not be empty")
	}
	if i.Type == models.IntegrationTypeAIProvider {
		var cfg aiProviderConfig
		if err := json.Unmarshal([]byte(i.Config), &cfg); err != nil || cfg.Provider == "" {
			return nil, apperr.ValidationField("config", "ai_provider config must be JSON with provider and api_key")
		}
	}
	now := time.Now().UTC()
	i.ID = uuid.New().String()
	i.CreatedAt = now
	i.UpdatedAt = now
	if err := s.repo.CreateIntegration(ctx, i); err != nil {
		return nil, err
	}
	return i, nil
}

// UpdateIntegration writes mutable integration fields.
func (s *Service) UpdateIntegration(ctx context.Context, i *models.Integration) error {
	i.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateIntegration(ctx, i)
}

// DeleteIntegration removes an integration.
func (s *Service) DeleteIntegration(ctx context.Context, id string) error {
	return s.repo.DeleteIntegration(ctx, id)
}

// ListIntegrations lists all integrations.
func (s *Service) ListIntegrations(ctx context.Context) ([]*models.Integration, error) {
	return s.repo.ListIntegrations(ctx)
}

// --- Activities ---

// RecordActivity appends an audit record. Failures are logged, never
// propagated: activity logging must not fail the operation it records.
func (s *Service) RecordActivity(ctx context.Context, agentID, kind, summary string, details map[string]any) {
	activity := &models.Activity{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Kind:      kind,
		Summary:   summary,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		s.logger.WithError(err).WithAgentID(agentID).Warn("Failed to record activity")
	}
}

// CreateActivity appends an audit record, propagating failures. Used
// by the ingress endpoint where the worker expects an acknowledgment.
func (s *Service) CreateActivity(ctx context.Context, a *models.Activity) (*models.Activity, error) {
	if a.Kind == "" {
		return nil, apperr.ValidationField("kind", "kind must not be empty")
	}
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()
	if err := s.repo.CreateActivity(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListActivities returns the newest activities for an agent.
func (s *Service) ListActivities(ctx context.Context, agentID string, limit int) ([]*models.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListActivities(ctx, agentID, limit)
}

// --- Assignments ---

// AssignAgentToProject links an agent to a project with an optional
// role. Duplicates conflict.
func (s *Service) AssignAgentToProject(ctx context.Context, projectID, agentID, role string) error {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	return s.repo.AssignAgentToProject(ctx, &models.ProjectAgent{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		AgentID:   agentID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
}

// UnassignAgentFromProject removes a project assignment.
func (s *Service) UnassignAgentFromProject(ctx context.Context, projectID, agentID string) error {
	return s.repo.UnassignAgentFromProject(ctx, projectID, agentID)
}

// ListAgentProjects returns an agent's project assignments with roles.
func (s *Service) ListAgentProjects(ctx context.Context, agentID string, activeOnly bool) ([]*repository.ProjectAssignment, error) {
	return s.repo.ListAgentProjects(ctx, agentID, activeOnly)
}

// ListProjectAgents returns a project's agent assignments.
func (s *Service) ListProjectAgents(ctx context.Context, projectID string) ([]*models.ProjectAgent, error) {
	return s.repo.ListProjectAgents(ctx, projectID)
}

// AssignAgentToTask links an agent to a task. Duplicates conflict.
func (s *Service) AssignAgentToTask(ctx context.Context, taskID, agentID string) error {
	if _, err := s.repo.GetTask(ctx, taskID); err != nil {
		return err
	}
	return s.repo.AssignAgentToTask(ctx, &models.TaskAgent{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		AgentID:   agentID,
		CreatedAt: time.Now().UTC(),
	})
}

// UnassignAgentFromTask removes a task assignment.
func (s *Service) UnassignAgentFromTask(ctx context.Context, taskID, agentID string) error {
	return s.repo.UnassignAgentFromTask(ctx, taskID, agentID)
}

// ListAgentTasks returns the tasks assigned to an agent.
func (s *Service) ListAgentTasks(ctx context.Context, agentID string) ([]*models.Task, error) {
	return s.repo.ListAgentTasks(ctx, agentID)
}

// AssignSkillToTask grants a skill to a task. Duplicates conflict.
func (s *Service) AssignSkillToTask(ctx context.Context, taskID, skillID string) error {
	return s.repo.AssignSkillToTask(ctx, &models.TaskSkill{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		SkillID:   skillID,
		CreatedAt: time.Now().UTC(),
	})
}

// ListTaskSkills returns the skills granted to a task.
func (s *Service) ListTaskSkills(ctx context.Context, taskID string) ([]*models.Skill, error) {
	return s.repo.ListTaskSkills(ctx, taskID)
}

// AssignSecretToTask exposes a secret to a task. Duplicates conflict.
func (s *Service) AssignSecretToTask(ctx context.Context, taskID, secretID string) error {
	return s.repo.AssignSecretToTask(ctx, &models.TaskSecret{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		SecretID:  secretID,
		CreatedAt: time.Now().UTC(),
	})
}

// AssignSecretToProject exposes a secret to a project. Duplicates
// conflict.
func (s *Service) AssignSecretToProject(ctx context.Context, projectID, secretID string) error {
	return s.repo.AssignSecretToProject(ctx, &models.ProjectSecret{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		SecretID:  secretID,
		CreatedAt: time.Now().UTC(),
	})
}

// ListProjectSecrets returns the secrets exposed to a project.
func (s *Service) ListProjectSecrets(ctx context.Context, projectID string) ([]*models.Secret, error) {
	return s.repo.ListProjectSecrets(ctx, projectID)
}

// ListTaskSecrets returns the secrets exposed to a task.
func (s *Service) ListTaskSecrets(ctx context.Context, taskID string) ([]*models.Secret, error) {
	return s.repo.ListTaskSecrets(ctx, taskID)
}

// --- System secrets ---

// SystemSecrets assembles the env-style secrets map: the secrets
// table keyed by key, overlaid with active AI-provider integrations
// converted to their credential environment variables. Unknown
// providers and malformed configs are skipped.
func (s *Service) SystemSecrets(ctx context.Context) (map[string]string, error) {
	secrets, err := s.repo.ListSecrets(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(secrets))
	for _, sec := range secrets {
		out[sec.Key] = sec.Value
	}

	integrations, err := s.repo.ListActiveIntegrationsByType(ctx, models.IntegrationTypeAIProvider)
	if err != nil {
		return nil, err
	}
	for _, integration := range integrations {
		var cfg aiProviderConfig
		if err := json.Unmarshal([]byte(integration.Config), &cfg); err != nil {
			s.logger.Warn("Skipping integration with malformed config",
				zap.String("integration_id", integration.ID),
				zap.Error(err),
			)
			continue
		}
		envVar, ok := providers.EnvVar(cfg.Provider)
		if !ok || envVar == "" {
			continue
		}
		out[envVar] = cfg.APIKey
	}
	return out, nil
}
