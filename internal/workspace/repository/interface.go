// Package repository provides workspace storage: projects, tasks,
// skills, secrets, integrations, activities, and the assignment graph.
package repository

import (
	"context"

	"github.com/botcrew/botcrew/internal/workspace/models"
)

// ProjectAssignment pairs a project with the per-assignment role text.
type ProjectAssignment struct {
	Project *models.Project
	Role    string
}

// Repository defines workspace storage operations.
type Repository interface {
	// Projects.
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, activeOnly bool) ([]*models.Project, error)

	// Tasks.
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, projectID string) ([]*models.Task, error)

	// Skills. Names are unique.
	CreateSkill(ctx context.Context, s *models.Skill) error
	GetSkill(ctx context.Context, id string) (*models.Skill, error)
	UpdateSkill(ctx context.Context, s *models.Skill) error
	DeleteSkill(ctx context.Context, id string) error
	ListSkills(ctx context.Context, activeOnly bool) ([]*models.Skill, error)

	// Secrets. Keys are unique.
	CreateSecret(ctx context.Context, s *models.Secret) error
	UpdateSecret(ctx context.Context, s *models.Secret) error
	DeleteSecret(ctx context.Context, id string) error
	ListSecrets(ctx context.Context) ([]*models.Secret, error)

	// Integrations.
	CreateIntegration(ctx context.Context, i *models.Integration) error
	UpdateIntegration(ctx context.Context, i *models.Integration) error
	DeleteIntegration(ctx context.Context, id string) error
	ListIntegrations(ctx context.Context) ([]*models.Integration, error)
	ListActiveIntegrationsByType(ctx context.Context, integrationType string) ([]*models.Integration, error)

	// Activities are append-only.
	CreateActivity(ctx context.Context, a *models.Activity) error
	ListActivities(ctx context.Context, agentID string, limit int) ([]*models.Activity, error)

	// Assignment graph. Duplicate assignments conflict.
	AssignAgentToProject(ctx context.Context, pa *models.ProjectAgent) error
	UnassignAgentFromProject(ctx context.Context, projectID, agentID string) error
	ListAgentProjects(ctx context.Context, agentID string, activeOnly bool) ([]*ProjectAssignment, error)
	ListProjectAgents(ctx context.Context, projectID string) ([]*models.ProjectAgent, error)

	AssignAgentToTask(ctx context.Context, ta *models.TaskAgent) error
	UnassignAgentFromTask(ctx context.Context, taskID, agentID string) error
	ListAgentTasks(ctx context.Context, agentID string) ([]*models.Task, error)
	ListTaskAgents(ctx context.Context, taskID string) ([]*models.TaskAgent, error)

	AssignSkillToTask(ctx context.Context, ts *models.TaskSkill) error
	ListTaskSkills(ctx context.Context, taskID string) ([]*models.Skill, error)

	AssignSecretToTask(ctx context.Context, ts *models.TaskSecret) error
	ListTaskSecrets(ctx context.Context, taskID string) ([]*models.Secret, error)

	AssignSecretToProject(ctx context.Context, ps *models.ProjectSecret) error
	ListProjectSecrets(ctx context.Context, projectID string) ([]*models.Secret, error)
}
