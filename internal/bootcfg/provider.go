// Package bootcfg assembles the startup bundle an agent worker pulls
// on boot, and serves the internal worker-facing endpoints.
package bootcfg

import (
	"context"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	agentmodels "github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/common/logger"
	workspacemodels "github.com/botcrew/botcrew/internal/workspace/models"
	workspacerepo "github.com/botcrew/botcrew/internal/workspace/repository"
	workspace "github.com/botcrew/botcrew/internal/workspace/service"
)

// directivePreviewLimit bounds the task directive text carried in a
// boot bundle; workers fetch the full directive on demand.
const directivePreviewLimit = 200

// Bundle is everything a worker needs to start serving its agent.
type Bundle struct {
	AgentID     string `json:"agent_id"`
	Name        string `json:"name"`
	Identity    string `json:"identity"`
	Personality string `json:"personality"`

	ModelProvider string `json:"model_provider"`
	ModelName     string `json:"model_name"`

	HeartbeatPrompt        string `json:"heartbeat_prompt"`
	HeartbeatPeriodSeconds int    `json:"heartbeat_period_seconds"`
	HeartbeatEnabled       bool   `json:"heartbeat_enabled"`

	Memory string `json:"memory"`

	Secrets  map[string]string `json:"secrets"`
	Skills   []BundleSkill     `json:"skills"`
	Projects []BundleProject   `json:"projects"`
	Tasks    []BundleTask      `json:"tasks"`
}

// BundleSkill is one active skill in a boot bundle.
type BundleSkill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// BundleProject is one active project assignment in a boot bundle.
type BundleProject struct {
	ProjectID     string `json:"project_id"`
	Name          string `json:"name"`
	Goals         string `json:"goals"`
	Specs         string `json:"specs"`
	RolePrompt    string `json:"role_prompt"`
	WorkspacePath string `json:"workspace_path"`
	ChannelID     string `json:"channel_id,omitempty"`
}

// BundleTask is one task assignment in a boot bundle.
type BundleTask struct {
	TaskID           string `json:"task_id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	DirectivePreview string `json:"directive_preview"`
	Status           string `json:"status"`
	ChannelID        string `json:"channel_id,omitempty"`
}

// AgentStore is the slice of agent storage boot config reads.
type AgentStore interface {
	Get(ctx context.Context, id string) (*agentmodels.Agent, error)
}

// Provider assembles boot bundles.
type Provider struct {
	agents    AgentStore
	workspace *workspace.Service
	logger    *logger.Logger
}

// NewProvider creates a boot-config provider.
func NewProvider(agents AgentStore, ws *workspace.Service, log *logger.Logger) *Provider {
	return &Provider{agents: agents, workspace: ws, logger: log}
}

// Bundle assembles the full startup bundle for one agent. The
// workspace reads are independent, so they run concurrently.
func (p *Provider) Bundle(ctx context.Context, agentID string) (*Bundle, error) {
	agent, err := p.agents.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}

	var (
		secrets     map[string]string
		skills      []*workspacemodels.Skill
		assignments []*workspacerepo.ProjectAssignment
		tasks       []*workspacemodels.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		secrets, err = p.workspace.SystemSecrets(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		skills, err = p.workspace.ListSkills(gctx, true)
		return err
	})
	g.Go(func() error {
		var err error
		assignments, err = p.workspace.ListAgentProjects(gctx, agentID, true)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = p.workspace.ListAgentTasks(gctx, agentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bundleSkills := make([]BundleSkill, 0, len(skills))
	for _, s := range skills {
		bundleSkills = append(bundleSkills, BundleSkill{Name: s.Name, Description: s.Description})
	}

	bundleProjects := make([]BundleProject, 0, len(assignments))
	for _, a := range assignments {
		path := a.Project.WorkspacePath
		if path == "" {
			path = "/workspace/projects/" + a.Project.ID
		}
		bundleProjects = append(bundleProjects, BundleProject{
			ProjectID:     a.Project.ID,
			Name:          a.Project.Name,
			Goals:         a.Project.Goals,
			Specs:         a.Project.Specs,
			RolePrompt:    a.Role,
			WorkspacePath: path,
			ChannelID:     a.Project.ChannelID,
		})
	}

	bundleTasks := make([]BundleTask, 0, len(tasks))
	for _, t := range tasks {
		// Done tasks stay queryable through the task endpoints but do
		// not ride along in the bundle.
		if t.Status != workspacemodels.TaskStatusOpen && t.Status != workspacemodels.TaskStatusInProgress {
			continue
		}
		bundleTasks = append(bundleTasks, BundleTask{
			TaskID:           t.ID,
			Name:             t.Name,
			Description:      t.Description,
			DirectivePreview: preview(t.Directive),
			Status:           t.Status,
			ChannelID:        t.ChannelID,
		})
	}

	return &Bundle{
		AgentID:                agent.ID,
		Name:                   agent.Name,
		Identity:               agent.Identity,
		Personality:            agent.Personality,
		ModelProvider:          agent.ModelProvider,
		ModelName:              agent.ModelName,
		HeartbeatPrompt:        agent.HeartbeatPrompt,
		HeartbeatPeriodSeconds: agent.HeartbeatSeconds,
		HeartbeatEnabled:       agent.HeartbeatEnabled,
		Memory:                 agent.Memory,
		Secrets:                secrets,
		Skills:                 bundleSkills,
		Projects:               bundleProjects,
		Tasks:                  bundleTasks,
	}, nil
}

func preview(directive string) string {
	if len(directive) <= directivePreviewLimit {
		return directive
	}
	// Back up over continuation bytes so the cut never splits a rune.
	cut := directivePreviewLimit
	for cut > 0 && !utf8.RuneStart(directive[cut]) {
		cut--
	}
	return directive[:cut]
}
