package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/common/apperr"
)

// MemoryRepository implements Repository in memory. Used in tests and
// single-process development setups without PostgreSQL.
type MemoryRepository struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
}

// NewMemoryRepository creates an empty in-memory agent repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{agents: make(map[string]*models.Agent)}
}

func cloneAgent(a *models.Agent) *models.Agent {
	cp := *a
	return &cp
}

// Create inserts an agent; duplicate names conflict.
func (r *MemoryRepository) Create(ctx context.Context, agent *models.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.agents {
		if strings.EqualFold(existing.Name, agent.Name) {
			return apperr.Conflict("agent name %q already exists", agent.Name)
		}
	}
	r.agents[agent.ID] = cloneAgent(agent)
	return nil
}

// Get fetches an agent by id.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, apperr.NotFound("agent %s not found", id)
	}
	return cloneAgent(a), nil
}

// GetByName fetches an agent by name.
func (r *MemoryRepository) GetByName(ctx context.Context, name string) (*models.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.agents {
		if a.Name == name {
			return cloneAgent(a), nil
		}
	}
	return nil, apperr.NotFound("agent named %q not found", name)
}

// GetByIDs fetches existing agents for the given ids.
func (r *MemoryRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var agents []*models.Agent
	for _, id := range ids {
		if a, ok := r.agents[id]; ok {
			agents = append(agents, cloneAgent(a))
		}
	}
	return agents, nil
}

// List returns agents per opts.
func (r *MemoryRepository) List(ctx context.Context, opts ListOptions) ([]*models.Agent, error) {
	sortField := opts.Sort
	if sortField == "" {
		sortField = SortCreatedAt
	}
	if sortField != SortCreatedAt && sortField != SortName {
		return nil, apperr.ValidationField("sort", "invalid sort field %q", sortField)
	}

	r.mu.RLock()
	var agents []*models.Agent
	for _, a := range r.agents {
		if len(opts.Statuses) > 0 && !statusIn(a.Status, opts.Statuses) {
			continue
		}
		agents = append(agents, cloneAgent(a))
	}
	r.mu.RUnlock()

	sort.Slice(agents, func(i, j int) bool {
		var less bool
		switch sortField {
		case SortName:
			if agents[i].Name != agents[j].Name {
				less = agents[i].Name < agents[j].Name
			} else {
				less = agents[i].ID < agents[j].ID
			}
		default:
			less = beforeCreated(agents[i], agents[j])
		}
		if opts.Desc {
			return !less
		}
		return less
	})

	if sortField == SortCreatedAt && !opts.AfterTime.IsZero() {
		boundary := &models.Agent{CreatedAt: opts.AfterTime, ID: opts.AfterID}
		filtered := agents[:0]
		for _, a := range agents {
			if opts.Desc {
				if beforeCreated(a, boundary) {
					filtered = append(filtered, a)
				}
			} else if beforeCreated(boundary, a) {
				filtered = append(filtered, a)
			}
		}
		agents = filtered
	}

	if opts.Limit > 0 && len(agents) > opts.Limit {
		agents = agents[:opts.Limit]
	}
	return agents, nil
}

// ListByStatuses returns every agent in one of the given statuses.
func (r *MemoryRepository) ListByStatuses(ctx context.Context, statuses []models.Status) ([]*models.Agent, error) {
	return r.List(ctx, ListOptions{Statuses: statuses})
}

// Update writes all mutable fields.
func (r *MemoryRepository) Update(ctx context.Context, agent *models.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agent.ID]; !ok {
		return apperr.NotFound("agent %s not found", agent.ID)
	}
	for id, existing := range r.agents {
		if id != agent.ID && strings.EqualFold(existing.Name, agent.Name) {
			return apperr.Conflict("agent name %q already exists", agent.Name)
		}
	}
	agent.UpdatedAt = time.Now().UTC()
	r.agents[agent.ID] = cloneAgent(agent)
	return nil
}

// UpdateStatus stamps status and optionally the worker handle.
func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status models.Status, handle *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return apperr.NotFound("agent %s not found", id)
	}
	a.Status = status
	if handle != nil {
		a.WorkerHandle = *handle
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateMemory replaces the agent's memory text.
func (r *MemoryRepository) UpdateMemory(ctx context.Context, id string, memory string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return apperr.NotFound("agent %s not found", id)
	}
	a.Memory = memory
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the agent.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return apperr.NotFound("agent %s not found", id)
	}
	delete(r.agents, id)
	return nil
}

func statusIn(s models.Status, set []models.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// beforeCreated orders agents by (created_at, id) ascending.
func beforeCreated(a, b *models.Agent) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
