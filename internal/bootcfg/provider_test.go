package bootcfg

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentmodels "github.com/botcrew/botcrew/internal/agent/models"
	agentrepo "github.com/botcrew/botcrew/internal/agent/repository"
	"github.com/botcrew/botcrew/internal/common/logger"
	wsmodels "github.com/botcrew/botcrew/internal/workspace/models"
	wsrepo "github.com/botcrew/botcrew/internal/workspace/repository"
	workspace "github.com/botcrew/botcrew/internal/workspace/service"
)

func TestBundleAssembly(t *testing.T) {
	ctx := context.Background()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stdout"})
	require.NoError(t, err)

	agents := agentrepo.NewMemoryRepository()
	ws := workspace.NewService(wsrepo.NewMemoryRepository(), log)
	provider := NewProvider(agents, ws, log)

	require.NoError(t, agents.Create(ctx, &agentmodels.Agent{
		ID:               "ada",
		Name:             "Ada",
		Identity:         "researcher",
		ModelProvider:    "anthropic",
		ModelName:        "claude-sonnet",
		HeartbeatSeconds: 900,
		HeartbeatEnabled: true,
		Memory:           "remembers things",
		Status:           agentmodels.StatusRunning,
		CreatedAt:        time.Now().UTC(),
	}))

	_, err = ws.CreateSecret(ctx, &wsmodels.Secret{Key: "GITHUB_TOKEN", Value: "gh-token"})
	require.NoError(t, err)

	_, err = ws.CreateSkill(ctx, &wsmodels.Skill{Name: "web-search", Description: "search the web", Active: true})
	require.NoError(t, err)
	_, err = ws.CreateSkill(ctx, &wsmodels.Skill{Name: "retired", Active: false})
	require.NoError(t, err)

	active, err := ws.CreateProject(ctx, &wsmodels.Project{Name: "Atlas", Goals: "map everything"})
	require.NoError(t, err)
	archived, err := ws.CreateProject(ctx, &wsmodels.Project{Name: "Old", Status: wsmodels.ProjectStatusArchived})
	require.NoError(t, err)
	require.NoError(t, ws.AssignAgentToProject(ctx, active.ID, "ada", "lead"))
	require.NoError(t, ws.AssignAgentToProject(ctx, archived.ID, "ada", ""))

	longDirective := strings.Repeat("x", 500)
	task, err := ws.CreateTask(ctx, &wsmodels.Task{Name: "Bootstrap", Directive: longDirective})
	require.NoError(t, err)
	require.NoError(t, ws.AssignAgentToTask(ctx, task.ID, "ada"))

	done, err := ws.CreateTask(ctx, &wsmodels.Task{Name: "Shipped", Status: wsmodels.TaskStatusDone})
	require.NoError(t, err)
	require.NoError(t, ws.AssignAgentToTask(ctx, done.ID, "ada"))

	bundle, err := provider.Bundle(ctx, "ada")
	require.NoError(t, err)

	assert.Equal(t, "ada", bundle.AgentID)
	assert.Equal(t, "Ada", bundle.Name)
	assert.Equal(t, 900, bundle.HeartbeatPeriodSeconds)
	assert.Equal(t, "remembers things", bundle.Memory)
	assert.Equal(t, "gh-token", bundle.Secrets["GITHUB_TOKEN"])

	require.Len(t, bundle.Skills, 1)
	assert.Equal(t, "web-search", bundle.Skills[0].Name)

	require.Len(t, bundle.Projects, 1)
	assert.Equal(t, active.ID, bundle.Projects[0].ProjectID)
	assert.Equal(t, "lead", bundle.Projects[0].RolePrompt)
	assert.Equal(t, "/workspace/projects/"+active.ID, bundle.Projects[0].WorkspacePath)

	require.Len(t, bundle.Tasks, 1)
	assert.Equal(t, task.ID, bundle.Tasks[0].TaskID)
	assert.Len(t, bundle.Tasks[0].DirectivePreview, directivePreviewLimit)
	assert.Equal(t, wsmodels.TaskStatusOpen, bundle.Tasks[0].Status)
}

func TestPreviewCutsAtRuneBoundary(t *testing.T) {
	// 300 bytes of 3-byte runes; the byte limit lands mid-rune.
	long := strings.Repeat("世", 100)
	got := preview(long)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), directivePreviewLimit)
	assert.Equal(t, strings.Repeat("世", 66), got)
}

func TestBundleMissingAgent(t *testing.T) {
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stdout"})
	require.NoError(t, err)

	provider := NewProvider(agentrepo.NewMemoryRepository(), workspace.NewService(wsrepo.NewMemoryRepository(), log), log)
	_, err = provider.Bundle(context.Background(), "ghost")
	assert.Error(t, err)
}
