package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/workspace/models"
	"github.com/botcrew/botcrew/internal/workspace/repository"
)

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stdout"})
	require.NoError(t, err)
	repo := repository.NewMemoryRepository()
	return NewService(repo, log), repo
}

func TestSystemSecretsOverlaysIntegrations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSecret(ctx, &models.Secret{Key: "GITHUB_TOKEN", Value: "gh-token"})
	require.NoError(t, err)
	_, err = svc.CreateSecret(ctx, &models.Secret{Key: "ANTHROPIC_API_KEY", Value: "stale-key"})
	require.NoError(t, err)

	_, err = svc.CreateIntegration(ctx, &models.Integration{
		Name:   "Anthropic",
		Type:   models.IntegrationTypeAIProvider,
		Config: `{"provider":"anthropic","api_key":"sk-fresh"}`,
		Active: true,
	})
	require.NoError(t, err)

	secrets, err := svc.SystemSecrets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gh-token", secrets["GITHUB_TOKEN"])
	// Active integrations win over the raw secrets table.
	assert.Equal(t, "sk-fresh", secrets["ANTHROPIC_API_KEY"])
}

func TestSystemSecretsSkipsInactiveAndMalformed(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateIntegration(ctx, &models.Integration{
		Name:   "OpenAI",
		Type:   models.IntegrationTypeAIProvider,
		Config: `{"provider":"openai","api_key":"sk-inactive"}`,
		Active: false,
	})
	require.NoError(t, err)

	// Malformed and unknown-provider configs sneak in through direct
	// writes; assembly must skip them without failing.
	require.NoError(t, repo.CreateIntegration(ctx, &models.Integration{
		ID: "bad", Name: "Broken", Type: models.IntegrationTypeAIProvider,
		Config: `{not json`, Active: true,
	}))
	require.NoError(t, repo.CreateIntegration(ctx, &models.Integration{
		ID: "odd", Name: "Mystery", Type: models.IntegrationTypeAIProvider,
		Config: `{"provider":"no-such","api_key":"x"}`, Active: true,
	}))

	secrets, err := svc.SystemSecrets(ctx)
	require.NoError(t, err)
	assert.Empty(t, secrets)
}

func TestCreateIntegrationValidatesConfig(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateIntegration(context.Background(), &models.Integration{
		Name:   "Broken",
		Type:   models.IntegrationTypeAIProvider,
		Config: "not-json",
		Active: true,
	})
	assert.True(t, apperr.IsValidation(err))
}

func TestDuplicateAssignmentsConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	project, err := svc.CreateProject(ctx, &models.Project{Name: "Atlas"})
	require.NoError(t, err)

	require.NoError(t, svc.AssignAgentToProject(ctx, project.ID, "ada", "lead"))
	err = svc.AssignAgentToProject(ctx, project.ID, "ada", "lead")
	assert.True(t, apperr.IsConflict(err))

	task, err := svc.CreateTask(ctx, &models.Task{Name: "Bootstrap", ProjectID: project.ID})
	require.NoError(t, err)
	require.NoError(t, svc.AssignAgentToTask(ctx, task.ID, "ada"))
	err = svc.AssignAgentToTask(ctx, task.ID, "ada")
	assert.True(t, apperr.IsConflict(err))
}

func TestAgentProjectAssignmentsCarryRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	active, err := svc.CreateProject(ctx, &models.Project{Name: "Atlas"})
	require.NoError(t, err)
	archived, err := svc.CreateProject(ctx, &models.Project{Name: "Old", Status: models.ProjectStatusArchived})
	require.NoError(t, err)

	require.NoError(t, svc.AssignAgentToProject(ctx, active.ID, "ada", "lead"))
	require.NoError(t, svc.AssignAgentToProject(ctx, archived.ID, "ada", "emeritus"))

	assignments, err := svc.ListAgentProjects(ctx, "ada", true)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, active.ID, assignments[0].Project.ID)
	assert.Equal(t, "lead", assignments[0].Role)

	all, err := svc.ListAgentProjects(ctx, "ada", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateTaskValidatesStatusAndProject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, &models.Task{Name: "Orphan", ProjectID: "missing"})
	assert.True(t, apperr.IsNotFound(err))

	_, err = svc.CreateTask(ctx, &models.Task{Name: "Weird", Status: "paused"})
	assert.True(t, apperr.IsValidation(err))

	task, err := svc.CreateTask(ctx, &models.Task{Name: "Plain"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOpen, task.Status)
}

func TestSkillNameUniqueness(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSkill(ctx, &models.Skill{Name: "web-search", Active: true})
	require.NoError(t, err)
	_, err = svc.CreateSkill(ctx, &models.Skill{Name: "web-search"})
	assert.True(t, apperr.IsConflict(err))
}
