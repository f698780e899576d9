package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/workspace/models"
)

// MemoryRepository implements Repository in memory for tests and
// single-process development.
type MemoryRepository struct {
	mu sync.RWMutex

	projects     map[string]*models.Project
	tasks        map[string]*models.Task
	skills       map[string]*models.Skill
	secrets      map[string]*models.Secret
	integrations map[string]*models.Integration
	activities   []*models.Activity

	projectAgents  []*models.ProjectAgent
	taskAgents     []*models.TaskAgent
	taskSkills     []*models.TaskSkill
	taskSecrets    []*models.TaskSecret
	projectSecrets []*models.ProjectSecret
}

// NewMemoryRepository creates an empty in-memory workspace repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		projects:     make(map[string]*models.Project),
		tasks:        make(map[string]*models.Task),
		skills:       make(map[string]*models.Skill),
		secrets:      make(map[string]*models.Secret),
		integrations: make(map[string]*models.Integration),
	}
}

// --- projects ---

func (r *MemoryRepository) CreateProject(ctx context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, apperr.NotFound("project %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) UpdateProject(ctx context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		return apperr.NotFound("project %s not found", p.ID)
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteProject(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return apperr.NotFound("project %s not found", id)
	}
	delete(r.projects, id)
	return nil
}

func (r *MemoryRepository) ListProjects(ctx context.Context, activeOnly bool) ([]*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var projects []*models.Project
	for _, p := range r.projects {
		if activeOnly && p.Status != models.ProjectStatusActive {
			continue
		}
		cp := *p
		projects = append(projects, &cp)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].CreatedAt.Before(projects[j].CreatedAt) })
	return projects, nil
}

// --- tasks ---

func (r *MemoryRepository) CreateTask(ctx context.Context, t *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryRepository) UpdateTask(ctx context.Context, t *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return apperr.NotFound("task %s not found", t.ID)
	}
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteTask(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return apperr.NotFound("task %s not found", id)
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryRepository) ListTasks(ctx context.Context, projectID string) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tasks []*models.Task
	for _, t := range r.tasks {
		if projectID != "" && t.ProjectID != projectID {
			continue
		}
		cp := *t
		tasks = append(tasks, &cp)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

// --- skills ---

func (r *MemoryRepository) CreateSkill(ctx context.Context, s *models.Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.skills {
		if existing.Name == s.Name {
			return apperr.Conflict("skill name %q already exists", s.Name)
		}
	}
	cp := *s
	r.skills[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetSkill(ctx context.Context, id string) (*models.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[id]
	if !ok {
		return nil, apperr.NotFound("skill %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) UpdateSkill(ctx context.Context, s *models.Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skills[s.ID]; !ok {
		return apperr.NotFound("skill %s not found", s.ID)
	}
	for id, existing := range r.skills {
		if id != s.ID && existing.Name == s.Name {
			return apperr.Conflict("skill name %q already exists", s.Name)
		}
	}
	s.UpdatedAt = time.Now().UTC()
	cp := *s
	r.skills[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteSkill(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skills[id]; !ok {
		return apperr.NotFound("skill %s not found", id)
	}
	delete(r.skills, id)
	return nil
}

func (r *MemoryRepository) ListSkills(ctx context.Context, activeOnly bool) ([]*models.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var skills []*models.Skill
	for _, s := range r.skills {
		if activeOnly && !s.Active {
			continue
		}
		cp := *s
		skills = append(skills, &cp)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

// --- secrets ---

func (r *MemoryRepository) CreateSecret(ctx context.Context, s *models.Secret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.secrets {
		if existing.Key == s.Key {
			return apperr.Conflict("secret key %q already exists", s.Key)
		}
	}
	cp := *s
	r.secrets[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateSecret(ctx context.Context, s *models.Secret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.secrets[s.ID]; !ok {
		return apperr.NotFound("secret %s not found", s.ID)
	}
	for id, existing := range r.secrets {
		if id != s.ID && existing.Key == s.Key {
			return apperr.Conflict("secret key %q already exists", s.Key)
		}
	}
	s.UpdatedAt = time.Now().UTC()
	cp := *s
	r.secrets[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteSecret(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.secrets[id]; !ok {
		return apperr.NotFound("secret %s not found", id)
	}
	delete(r.secrets, id)
	return nil
}

func (r *MemoryRepository) ListSecrets(ctx context.Context) ([]*models.Secret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var secrets []*models.Secret
	for _, s := range r.secrets {
		cp := *s
		secrets = append(secrets, &cp)
	}
	sort.Slice(secrets, func(i, j int) bool { return secrets[i].Key < secrets[j].Key })
	return secrets, nil
}

// --- integrations ---

func (r *MemoryRepository) CreateIntegration(ctx context.Context, i *models.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *i
	r.integrations[i.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateIntegration(ctx context.Context, i *models.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.integrations[i.ID]; !ok {
		return apperr.NotFound("integration %s not found", i.ID)
	}
	i.UpdatedAt = time.Now().UTC()
	cp := *i
	r.integrations[i.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteIntegration(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.integrations[id]; !ok {
		return apperr.NotFound("integration %s not found", id)
	}
	delete(r.integrations, id)
	return nil
}

func (r *MemoryRepository) ListIntegrations(ctx context.Context) ([]*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var integrations []*models.Integration
	for _, i := range r.integrations {
		cp := *i
		integrations = append(integrations, &cp)
	}
	sort.Slice(integrations, func(i, j int) bool { return integrations[i].CreatedAt.Before(integrations[j].CreatedAt) })
	return integrations, nil
}

func (r *MemoryRepository) ListActiveIntegrationsByType(ctx context.Context, integrationType string) ([]*models.Integration, error) {
	all, _ := r.ListIntegrations(ctx)
	var matched []*models.Integration
	for _, i := range all {
		if i.Active && i.Type == integrationType {
			matched = append(matched, i)
		}
	}
	return matched, nil
}

// --- activities ---

func (r *MemoryRepository) CreateActivity(ctx context.Context, a *models.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.activities = append(r.activities, &cp)
	return nil
}

func (r *MemoryRepository) ListActivities(ctx context.Context, agentID string, limit int) ([]*models.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var activities []*models.Activity
	for _, a := range r.activities {
		if a.AgentID == agentID {
			cp := *a
			activities = append(activities, &cp)
		}
	}
	sort.Slice(activities, func(i, j int) bool { return activities[i].CreatedAt.After(activities[j].CreatedAt) })
	if limit > 0 && len(activities) > limit {
		activities = activities[:limit]
	}
	return activities, nil
}

// --- assignment graph ---

func (r *MemoryRepository) AssignAgentToProject(ctx context.Context, pa *models.ProjectAgent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.projectAgents {
		if existing.ProjectID == pa.ProjectID && existing.AgentID == pa.AgentID {
			return apperr.Conflict("agent %s already assigned to project %s", pa.AgentID, pa.ProjectID)
		}
	}
	cp := *pa
	r.projectAgents = append(r.projectAgents, &cp)
	return nil
}

func (r *MemoryRepository) UnassignAgentFromProject(ctx context.Context, projectID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.projectAgents {
		if existing.ProjectID == projectID && existing.AgentID == agentID {
			r.projectAgents = append(r.projectAgents[:i], r.projectAgents[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("agent %s not assigned to project %s", agentID, projectID)
}

func (r *MemoryRepository) ListAgentProjects(ctx context.Context, agentID string, activeOnly bool) ([]*ProjectAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var assignments []*ProjectAssignment
	for _, pa := range r.projectAgents {
		if pa.AgentID != agentID {
			continue
		}
		p, ok := r.projects[pa.ProjectID]
		if !ok {
			continue
		}
		if activeOnly && p.Status != models.ProjectStatusActive {
			continue
		}
		cp := *p
		assignments = append(assignments, &ProjectAssignment{Project: &cp, Role: pa.Role})
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].Project.CreatedAt.Before(assignments[j].Project.CreatedAt)
	})
	return assignments, nil
}

func (r *MemoryRepository) ListProjectAgents(ctx context.Context, projectID string) ([]*models.ProjectAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var assignments []*models.ProjectAgent
	for _, pa := range r.projectAgents {
		if pa.ProjectID == projectID {
			cp := *pa
			assignments = append(assignments, &cp)
		}
	}
	return assignments, nil
}

func (r *MemoryRepository) AssignAgentToTask(ctx context.Context, ta *models.TaskAgent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.taskAgents {
		if existing.TaskID == ta.TaskID && existing.AgentID == ta.AgentID {
			return apperr.Conflict("agent %s already assigned to task %s", ta.AgentID, ta.TaskID)
		}
	}
	cp := *ta
	r.taskAgents = append(r.taskAgents, &cp)
	return nil
}

func (r *MemoryRepository) UnassignAgentFromTask(ctx context.Context, taskID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.taskAgents {
		if existing.TaskID == taskID && existing.AgentID == agentID {
			r.taskAgents = append(r.taskAgents[:i], r.taskAgents[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("agent %s not assigned to task %s", agentID, taskID)
}

func (r *MemoryRepository) ListAgentTasks(ctx context.Context, agentID string) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tasks []*models.Task
	for _, ta := range r.taskAgents {
		if ta.AgentID != agentID {
			continue
		}
		if t, ok := r.tasks[ta.TaskID]; ok {
			cp := *t
			tasks = append(tasks, &cp)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

func (r *MemoryRepository) ListTaskAgents(ctx context.Context, taskID string) ([]*models.TaskAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var assignments []*models.TaskAgent
	for _, ta := range r.taskAgents {
		if ta.TaskID == taskID {
			cp := *ta
			assignments = append(assignments, &cp)
		}
	}
	return assignments, nil
}

func (r *MemoryRepository) AssignSkillToTask(ctx context.Context, ts *models.TaskSkill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.taskSkills {
		if existing.TaskID == ts.TaskID && existing.SkillID == ts.SkillID {
			return apperr.Conflict("skill %s already assigned to task %s", ts.SkillID, ts.TaskID)
		}
	}
	cp := *ts
	r.taskSkills = append(r.taskSkills, &cp)
	return nil
}

func (r *MemoryRepository) ListTaskSkills(ctx context.Context, taskID string) ([]*models.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var skills []*models.Skill
	for _, ts := range r.taskSkills {
		if ts.TaskID != taskID {
			continue
		}
		if s, ok := r.skills[ts.SkillID]; ok {
			cp := *s
			skills = append(skills, &cp)
		}
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

func (r *MemoryRepository) AssignSecretToTask(ctx context.Context, ts *models.TaskSecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.taskSecrets {
		if existing.TaskID == ts.TaskID && existing.SecretID == ts.SecretID {
			return apperr.Conflict("secret %s already assigned to task %s", ts.SecretID, ts.TaskID)
		}
	}
	cp := *ts
	r.taskSecrets = append(r.taskSecrets, &cp)
	return nil
}

func (r *MemoryRepository) ListTaskSecrets(ctx context.Context, taskID string) ([]*models.Secret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var secrets []*models.Secret
	for _, ts := range r.taskSecrets {
		if ts.TaskID != taskID {
			continue
		}
		if s, ok := r.secrets[ts.SecretID]; ok {
			cp := *s
			secrets = append(secrets, &cp)
		}
	}
	sort.Slice(secrets, func(i, j int) bool { return secrets[i].Key < secrets[j].Key })
	return secrets, nil
}

func (r *MemoryRepository) AssignSecretToProject(ctx context.Context, ps *models.ProjectSecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.projectSecrets {
		if existing.ProjectID == ps.ProjectID && existing.SecretID == ps.SecretID {
			return apperr.Conflict("secret %s already assigned to project %s", ps.SecretID, ps.ProjectID)
		}
	}
	cp := *ps
	r.projectSecrets = append(r.projectSecrets, &cp)
	return nil
}

func (r *MemoryRepository) ListProjectSecrets(ctx context.Context, projectID string) ([]*models.Secret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var secrets []*models.Secret
	for _, ps := range r.projectSecrets {
		if ps.ProjectID != projectID {
			continue
		}
		if s, ok := r.secrets[ps.SecretID]; ok {
			cp := *s
			secrets = append(secrets, &cp)
		}
	}
	sort.Slice(secrets, func(i, j int) bool { return secrets[i].Key < secrets[j].Key })
	return secrets, nil
}
