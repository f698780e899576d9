// Package service implements the agent lifecycle: CRUD with worker
// launch and teardown, live-status enrichment, and the reconciler
// that keeps desired and actual worker state converged.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/agent/repository"
	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/common/pagination"
	"github.com/botcrew/botcrew/internal/runtime"
	"github.com/botcrew/botcrew/internal/workerclient"
)

// Agent list page bounds.
const (
	DefaultAgentPageSize = 50
	MaxAgentPageSize     = 100
)

const terminateGraceSeconds = 30

// defaultHeartbeatPrompt is used when the operator configures no
// override.
const defaultHeartbeatPrompt = "Review your channels for unread messages, continue any in-progress work, and record notable findings in your memory."

// SecretsSource supplies the assembled system secrets used to gate
// model providers and seed worker environments.
type SecretsSource interface {
	SystemSecrets(ctx context.Context) (map[string]string, error)
}

// CreateAgentInput describes a new agent. Zero heartbeat fields take
// the configured defaults.
type CreateAgentInput struct {
	Name             string
	Identity         string
	Personality      string
	ModelProvider    string
	ModelName        string
	HeartbeatSeconds int
	HeartbeatPrompt  string
	HeartbeatEnabled *bool
}

// UpdateAgentInput carries partial updates; nil fields are unchanged.
type UpdateAgentInput struct {
	Name             *string
	Identity         *string
	Personality      *string
	ModelProvider    *string
	ModelName        *string
	HeartbeatSeconds *int
	HeartbeatPrompt  *string
	HeartbeatEnabled *bool
}

// ListAgentsInput controls agent listing.
type ListAgentsInput struct {
	Statuses []models.Status
	Sort     string
	Desc     bool
	PageSize int
	Cursor   string
}

// AgentPage is one page of agents.
type AgentPage struct {
	Agents     []*models.Agent
	HasNext    bool
	NextCursor string
}

// AgentView pairs an agent's stored state with the status its worker
// runtime currently justifies. Enrichment never writes to the store.
type AgentView struct {
	Agent      *models.Agent
	LiveStatus models.Status
}

// Service manages agents and their workers.
type Service struct {
	repo    repository.Repository
	runtime runtime.Runtime
	secrets SecretsSource
	workers *workerclient.Client
	cfg     config.AgentConfig
	logger  *logger.Logger
}

// NewService creates the agent service.
func NewService(repo repository.Repository, rt runtime.Runtime, secrets SecretsSource, workers *workerclient.Client, cfg config.AgentConfig, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		runtime: rt,
		secrets: secrets,
		workers: workers,
		cfg:     cfg,
		logger:  log,
	}
}

// Create validates provider credentials, inserts the agent as
// creating, and launches its worker. A failed launch leaves the agent
// in error for the reconciler to reclaim.
func (s *Service) Create(ctx context.Context, in CreateAgentInput) (*models.Agent, error) {
	if in.Name == "" {
		return nil, apperr.ValidationField("name", "name must not be empty")
	}

	secrets, err := s.secrets.SystemSecrets(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateProviderCredentials(in.ModelProvider, secrets); err != nil {
		return nil, err
	}

	if in.HeartbeatSeconds == 0 {
		in.HeartbeatSeconds = s.cfg.DefaultHeartbeatSeconds
	}
	if err := validateHeartbeatSeconds(in.HeartbeatSeconds); err != nil {
		return nil, err
	}
	if in.HeartbeatPrompt == "" {
		in.HeartbeatPrompt = s.cfg.DefaultHeartbeatPrompt
	}
	if in.HeartbeatPrompt == "" {
		in.HeartbeatPrompt = defaultHeartbeatPrompt
	}
	heartbeatEnabled := true
	if in.HeartbeatEnabled != nil {
		heartbeatEnabled = *in.HeartbeatEnabled
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:               uuid.New().String(),
		Name:             in.Name,
		Identity:         in.Identity,
		Personality:      in.Personality,
		HeartbeatSeconds: in.HeartbeatSeconds,
		HeartbeatPrompt:  in.HeartbeatPrompt,
		HeartbeatEnabled: heartbeatEnabled,
		ModelProvider:    in.ModelProvider,
		ModelName:        in.ModelName,
		Status:           models.StatusCreating,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, agent); err != nil {
		return nil, err
	}

	handle, err := s.runtime.Launch(ctx, launchSpec(agent.ID))
	if err != nil {
		s.logger.WithError(err).WithAgentID(agent.ID).Warn("Worker launch failed; agent left in error")
		if uerr := s.repo.UpdateStatus(ctx, agent.ID, models.StatusError, nil); uerr != nil {
			s.logger.WithError(uerr).WithAgentID(agent.ID).Error("Failed to mark agent error after launch failure")
		}
		agent.Status = models.StatusError
		return agent, nil
	}

	if err := s.repo.UpdateStatus(ctx, agent.ID, models.StatusRunning, &handle); err != nil {
		return nil, err
	}
	agent.Status = models.StatusRunning
	agent.WorkerHandle = handle
	s.logger.WithAgentID(agent.ID).Info("Agent created", zap.String("handle", handle))
	return agent, nil
}

// Get fetches an agent.
func (s *Service) Get(ctx context.Context, id string) (*models.Agent, error) {
	return s.repo.Get(ctx, id)
}

// Update applies a partial update. Provider changes revalidate
// credentials; the worker is notified of the new configuration on a
// best-effort basis.
func (s *Service) Update(ctx context.Context, id string, in UpdateAgentInput) (*models.Agent, error) {
	agent, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.ModelProvider != nil && *in.ModelProvider != agent.ModelProvider {
		secrets, err := s.secrets.SystemSecrets(ctx)
		if err != nil {
			return nil, err
		}
		if err := ValidateProviderCredentials(*in.ModelProvider, secrets); err != nil {
			return nil, err
		}
		agent.ModelProvider = *in.ModelProvider
	}
	if in.Name != nil {
		if *in.Name == "" {
			return nil, apperr.ValidationField("name", "name must not be empty")
		}
		agent.Name = *in.Name
	}
	if in.Identity != nil {
		agent.Identity = *in.Identity
	}
	if in.Personality != nil {
		agent.Personality = *in.Personality
	}
	if in.ModelName != nil {
		agent.ModelName = *in.ModelName
	}
	if in.HeartbeatSeconds != nil {
		if err := validateHeartbeatSeconds(*in.HeartbeatSeconds); err != nil {
			return nil, err
		}
		agent.HeartbeatSeconds = *in.HeartbeatSeconds
	}
	if in.HeartbeatPrompt != nil {
		agent.HeartbeatPrompt = *in.HeartbeatPrompt
	}
	if in.HeartbeatEnabled != nil {
		agent.HeartbeatEnabled = *in.HeartbeatEnabled
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, agent); err != nil {
		return nil, err
	}

	s.pushConfig(agent)
	return agent, nil
}

// pushConfig notifies the running worker of updated configuration.
// Fire and forget: the worker re-pulls its boot bundle anyway.
func (s *Service) pushConfig(agent *models.Agent) {
	if agent.Status != models.StatusRunning {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		payload := map[string]any{
			"identity":          agent.Identity,
			"personality":       agent.Personality,
			"model_provider":    agent.ModelProvider,
			"model_name":        agent.ModelName,
			"heartbeat_seconds": agent.HeartbeatSeconds,
			"heartbeat_prompt":  agent.HeartbeatPrompt,
			"heartbeat_enabled": agent.HeartbeatEnabled,
		}
		if err := s.workers.PushConfig(ctx, agent.ID, payload); err != nil {
			s.logger.WithError(err).WithAgentID(agent.ID).Warn("Config push failed")
		}
	}()
}

// UpdateMemory replaces the agent's memory text.
func (s *Service) UpdateMemory(ctx context.Context, id, memory string) error {
	return s.repo.UpdateMemory(ctx, id, memory)
}

// AppendMemory appends text to the agent's memory, separated by a
// blank line.
func (s *Service) AppendMemory(ctx context.Context, id, text string) (*models.Agent, error) {
	agent, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	memory := agent.Memory
	if memory != "" {
		memory += "\n\n"
	}
	memory += text
	if err := s.repo.UpdateMemory(ctx, id, memory); err != nil {
		return nil, err
	}
	agent.Memory = memory
	return agent, nil
}

// Delete tears the agent down without orphaning its worker: mark
// terminating first so the reconciler stays away, then terminate, then
// drop the row.
func (s *Service) Delete(ctx context.Context, id string) error {
	agent, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, models.StatusTerminating, nil); err != nil {
		return err
	}

	handle := agent.WorkerHandle
	if handle == "" {
		handle = runtime.HandleForAgent(id)
	}
	if err := s.runtime.Terminate(ctx, handle, terminateGraceSeconds); err != nil {
		s.logger.WithError(err).WithAgentID(id).Warn("Worker terminate failed during delete")
	}

	return s.repo.Delete(ctx, id)
}

// Duplicate creates a new agent copying the source's configuration.
// Memory and worker state are not copied.
func (s *Service) Duplicate(ctx context.Context, id, newName string) (*models.Agent, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if newName == "" {
		newName = src.Name + " (copy)"
	}
	enabled := src.HeartbeatEnabled
	return s.Create(ctx, CreateAgentInput{
		Name:             newName,
		Identity:         src.Identity,
		Personality:      src.Personality,
		ModelProvider:    src.ModelProvider,
		ModelName:        src.ModelName,
		HeartbeatSeconds: src.HeartbeatSeconds,
		HeartbeatPrompt:  src.HeartbeatPrompt,
		HeartbeatEnabled: &enabled,
	})
}

// List returns one page of agents. Cursor pagination is defined over
// the (created_at, id) order, so a cursor is only accepted with the
// created_at sort.
func (s *Service) List(ctx context.Context, in ListAgentsInput) (*AgentPage, error) {
	if in.PageSize == 0 {
		in.PageSize = DefaultAgentPageSize
	}
	if in.PageSize < 1 || in.PageSize > MaxAgentPageSize {
		return nil, apperr.ValidationField("page_size", "page_size must be between 1 and %d", MaxAgentPageSize)
	}
	if in.Sort == "" {
		in.Sort = repository.SortCreatedAt
	}

	opts := repository.ListOptions{
		Statuses: in.Statuses,
		Sort:     in.Sort,
		Desc:     in.Desc,
		Limit:    in.PageSize + 1,
	}
	if in.Cursor != "" {
		if in.Sort != repository.SortCreatedAt {
			return nil, apperr.ValidationField("cursor", "cursor pagination requires the created_at sort")
		}
		afterTime, afterID, err := pagination.DecodeCursor(in.Cursor)
		if err != nil {
			return nil, err
		}
		opts.AfterTime = afterTime
		opts.AfterID = afterID
	}

	agents, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	page := &AgentPage{Agents: agents}
	if len(agents) > in.PageSize {
		page.Agents = agents[:in.PageSize]
		page.HasNext = true
		if in.Sort == repository.SortCreatedAt {
			last := page.Agents[len(page.Agents)-1]
			page.NextCursor = pagination.EncodeCursor(last.CreatedAt, last.ID)
		}
	}
	return page, nil
}

// WithLiveStatus enriches agents with the status their worker runtime
// currently justifies, using a single runtime enumeration. It never
// writes to the store; only the reconciler does.
func (s *Service) WithLiveStatus(ctx context.Context, agents []*models.Agent) ([]*AgentView, error) {
	workers, err := s.runtime.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	phases := make(map[string]runtime.Phase, len(workers))
	for _, w := range workers {
		phases[w.Handle] = w.Phase
	}

	views := make([]*AgentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, &AgentView{Agent: a, LiveStatus: liveStatus(a, phases)})
	}
	return views, nil
}

// GetWithLiveStatus fetches one agent with live-status enrichment.
func (s *Service) GetWithLiveStatus(ctx context.Context, id string) (*AgentView, error) {
	agent, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.WithLiveStatus(ctx, []*models.Agent{agent})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func liveStatus(agent *models.Agent, phases map[string]runtime.Phase) models.Status {
	switch agent.Status {
	case models.StatusRunning, models.StatusError, models.StatusRecovering:
	default:
		return agent.Status
	}

	phase, found := phases[agent.WorkerHandle]
	if agent.WorkerHandle == "" {
		found = false
	}
	switch {
	case !found && agent.Status == models.StatusRunning:
		return models.StatusError
	case found && phase == runtime.PhaseFailed:
		return models.StatusError
	}
	return agent.Status
}

func validateHeartbeatSeconds(seconds int) error {
	if seconds < models.MinHeartbeatSeconds || seconds > models.MaxHeartbeatSeconds {
		return apperr.ValidationField("heartbeat_seconds",
			"heartbeat_seconds must be between %d and %d", models.MinHeartbeatSeconds, models.MaxHeartbeatSeconds)
	}
	return nil
}

// launchSpec builds the runtime spec for an agent's worker.
func launchSpec(agentID string) runtime.LaunchSpec {
	return runtime.LaunchSpec{
		AgentID: agentID,
		Env: map[string]string{
			"BOTCREW_AGENT_ID": agentID,
		},
	}
}
