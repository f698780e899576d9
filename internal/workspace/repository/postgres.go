package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/database"
	"github.com/botcrew/botcrew/internal/workspace/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a PostgreSQL workspace repository.
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the workspace tables if they do not exist.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			goals TEXT NOT NULL DEFAULT '',
			specs TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			workspace_path TEXT NOT NULL DEFAULT '',
			channel_id UUID,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			project_id UUID REFERENCES projects(id) ON DELETE SET NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			directive TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'open',
			channel_id UUID,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS skills (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			instructions TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS secrets (
			id UUID PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			value TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS integrations (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS activities (
			id UUID PRIMARY KEY,
			agent_id UUID NOT NULL,
			kind TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			details JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activities_agent ON activities(agent_id, created_at);
		CREATE TABLE IF NOT EXISTS project_agents (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			agent_id UUID NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (project_id, agent_id)
		);
		CREATE TABLE IF NOT EXISTS task_agents (
			id UUID PRIMARY KEY,
			task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			agent_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (task_id, agent_id)
		);
		CREATE TABLE IF NOT EXISTS task_skills (
			id UUID PRIMARY KEY,
			task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			skill_id UUID NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (task_id, skill_id)
		);
		CREATE TABLE IF NOT EXISTS task_secrets (
			id UUID PRIMARY KEY,
			task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			secret_id UUID NOT NULL REFERENCES secrets(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (task_id, secret_id)
		);
		CREATE TABLE IF NOT EXISTS project_secrets (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			secret_id UUID NOT NULL REFERENCES secrets(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (project_id, secret_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to init workspace schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// --- projects ---

const projectColumns = `id, name, goals, specs, notes, workspace_path, COALESCE(channel_id::text, ''), status, created_at, updated_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Goals, &p.Specs, &p.Notes, &p.WorkspacePath,
		&p.ChannelID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO projects (id, name, goals, specs, notes, workspace_path, channel_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid, $8, $9, $10)`,
		p.ID, p.Name, p.Goals, p.Specs, p.Notes, p.WorkspacePath, p.ChannelID, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(r.db.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("project %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) UpdateProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE projects SET name = $2, goals = $3, specs = $4, notes = $5, workspace_path = $6,
			channel_id = NULLIF($7, '')::uuid, status = $8, updated_at = $9
		WHERE id = $1`,
		p.ID, p.Name, p.Goals, p.Specs, p.Notes, p.WorkspacePath, p.ChannelID, p.Status, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("project %s not found", p.ID)
	}
	return nil
}

func (r *PostgresRepository) DeleteProject(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("project %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) ListProjects(ctx context.Context, activeOnly bool) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	if activeOnly {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- tasks ---

const taskColumns = `id, COALESCE(project_id::text, ''), name, description, directive, notes, status, COALESCE(channel_id::text, ''), created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Directive,
		&t.Notes, &t.Status, &t.ChannelID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) CreateTask(ctx context.Context, t *models.Task) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tasks (id, project_id, name, description, directive, notes, status, channel_id, created_at, updated_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, NULLIF($8, '')::uuid, $9, $10)`,
		t.ID, t.ProjectID, t.Name, t.Description, t.Directive, t.Notes, t.Status, t.ChannelID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := scanTask(r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("task %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) UpdateTask(ctx context.Context, t *models.Task) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks SET project_id = NULLIF($2, '')::uuid, name = $3, description = $4,
			directive = $5, notes = $6, status = $7, channel_id = NULLIF($8, '')::uuid, updated_at = $9
		WHERE id = $1`,
		t.ID, t.ProjectID, t.Name, t.Description, t.Directive, t.Notes, t.Status, t.ChannelID, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("task %s not found", t.ID)
	}
	return nil
}

func (r *PostgresRepository) DeleteTask(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("task %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) ListTasks(ctx context.Context, projectID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = $1`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]*models.Task, error) {
	defer rows.Close()
	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// --- skills ---

const skillColumns = `id, name, description, instructions, active, created_at, updated_at`

func scanSkill(row pgx.Row) (*models.Skill, error) {
	var s models.Skill
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Instructions, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) CreateSkill(ctx context.Context, s *models.Skill) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO skills (id, name, description, instructions, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Name, s.Description, s.Instructions, s.Active, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("skill name %q already exists", s.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create skill: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSkill(ctx context.Context, id string) (*models.Skill, error) {
	s, err := scanSkill(r.db.QueryRow(ctx,
		`SELECT `+skillColumns+` FROM skills WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("skill %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get skill: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) UpdateSkill(ctx context.Context, s *models.Skill) error {
	s.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE skills SET name = $2, description = $3, instructions = $4, active = $5, updated_at = $6 WHERE id = $1`,
		s.ID, s.Name, s.Description, s.Instructions, s.Active, s.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("skill name %q already exists", s.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update skill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("skill %s not found", s.ID)
	}
	return nil
}

func (r *PostgresRepository) DeleteSkill(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM skills WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete skill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("skill %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) ListSkills(ctx context.Context, activeOnly bool) ([]*models.Skill, error) {
	query := `SELECT ` + skillColumns + ` FROM skills`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	return collectSkills(rows)
}

func collectSkills(rows pgx.Rows) ([]*models.Skill, error) {
	defer rows.Close()
	var skills []*models.Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

// --- secrets ---

const secretColumns = `id, key, value, description, created_at, updated_at`

func scanSecret(row pgx.Row) (*models.Secret, error) {
	var s models.Secret
	err := row.Scan(&s.ID, &s.Key, &s.Value, &s.Description, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) CreateSecret(ctx context.Context, s *models.Secret) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO secrets (id, key, value, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Key, s.Value, s.Description, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("secret key %q already exists", s.Key)
	}
	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateSecret(ctx context.Context, s *models.Secret) error {
	s.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE secrets SET key = $2, value = $3, description = $4, updated_at = $5 WHERE id = $1`,
		s.ID, s.Key, s.Value, s.Description, s.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("secret key %q already exists", s.Key)
	}
	if err != nil {
		return fmt.Errorf("failed to update secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("secret %s not found", s.ID)
	}
	return nil
}

func (r *PostgresRepository) DeleteSecret(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM secrets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("secret %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) ListSecrets(ctx context.Context) ([]*models.Secret, error) {
	rows, err := r.db.Query(ctx, `SELECT `+secretColumns+` FROM secrets ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	return collectSecrets(rows)
}

func collectSecrets(rows pgx.Rows) ([]*models.Secret, error) {
	defer rows.Close()
	var secrets []*models.Secret
	for rows.Next() {
		s, err := scanSecret(rows)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, s)
	}
	return secrets, rows.Err()
}

// --- integrations ---

const integrationColumns = `id, name, type, config, active, created_at, updated_at`

func scanIntegration(row pgx.Row) (*models.Integration, error) {
	var i models.Integration
	err := row.Scan(&i.ID, &i.Name, &i.Type, &i.Config, &i.Active, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *PostgresRepository) CreateIntegration(ctx context.Context, i *models.Integration) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO integrations (id, name, type, config, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		i.ID, i.Name, i.Type, i.Config, i.Active, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateIntegration(ctx context.Context, i *models.Integration) error {
	i.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE integrations SET name = $2, type = $3, config = $4, active = $5, updated_at = $6
		WHERE id = $1`,
		i.ID, i.Name, i.Type, i.Config, i.Active, i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("integration %s not found", i.ID)
	}
	return nil
}

func (r *PostgresRepository) DeleteIntegration(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("integration %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) ListIntegrations(ctx context.Context) ([]*models.Integration, error) {
	rows, err := r.db.Query(ctx, `SELECT `+integrationColumns+` FROM integrations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return collectIntegrations(rows)
}

func (r *PostgresRepository) ListActiveIntegrationsByType(ctx context.Context, integrationType string) ([]*models.Integration, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+integrationColumns+` FROM integrations
		WHERE active AND type = $1 ORDER BY created_at, id`, integrationType)
	if err != nil {
		return nil, fmt.Errorf("failed to list active integrations: %w", err)
	}
	return collectIntegrations(rows)
}

func collectIntegrations(rows pgx.Rows) ([]*models.Integration, error) {
	defer rows.Close()
	var integrations []*models.Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, i)
	}
	return integrations, rows.Err()
}

// --- activities ---

func (r *PostgresRepository) CreateActivity(ctx context.Context, a *models.Activity) error {
	var details []byte
	if a.Details != nil {
		var err error
		details, err = json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal activity details: %w", err)
		}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO activities (id, agent_id, kind, summary, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.AgentID, a.Kind, a.Summary, details, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListActivities(ctx context.Context, agentID string, limit int) ([]*models.Activity, error) {
	query := `SELECT id, agent_id, kind, summary, details, created_at
		FROM activities WHERE agent_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{agentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		var (
			a       models.Activity
			details []byte
		)
		if err := rows.Scan(&a.ID, &a.AgentID, &a.Kind, &a.Summary, &details, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &a.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity details: %w", err)
			}
		}
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

// --- assignment graph ---

func (r *PostgresRepository) AssignAgentToProject(ctx context.Context, pa *models.ProjectAgent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO project_agents (id, project_id, agent_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		pa.ID, pa.ProjectID, pa.AgentID, pa.Role, pa.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("agent %s already assigned to project %s", pa.AgentID, pa.ProjectID)
	}
	if err != nil {
		return fmt.Errorf("failed to assign agent to project: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UnassignAgentFromProject(ctx context.Context, projectID, agentID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM project_agents WHERE project_id = $1 AND agent_id = $2`, projectID, agentID)
	if err != nil {
		return fmt.Errorf("failed to unassign agent from project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("agent %s not assigned to project %s", agentID, projectID)
	}
	return nil
}

func (r *PostgresRepository) ListAgentProjects(ctx context.Context, agentID string, activeOnly bool) ([]*ProjectAssignment, error) {
	query := `
		SELECT p.id, p.name, p.goals, p.specs, p.notes, p.workspace_path,
			COALESCE(p.channel_id::text, ''), p.status, p.created_at, p.updated_at, pa.role
		FROM projects p JOIN project_agents pa ON pa.project_id = p.id
		WHERE pa.agent_id = $1`
	if activeOnly {
		query += ` AND p.status = 'active'`
	}
	query += ` ORDER BY p.created_at, p.id`

	rows, err := r.db.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent projects: %w", err)
	}
	defer rows.Close()

	var assignments []*ProjectAssignment
	for rows.Next() {
		var (
			p    models.Project
			role string
		)
		err := rows.Scan(&p.ID, &p.Name, &p.Goals, &p.Specs, &p.Notes, &p.WorkspacePath,
			&p.ChannelID, &p.Status, &p.CreatedAt, &p.UpdatedAt, &role)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, &ProjectAssignment{Project: &p, Role: role})
	}
	return assignments, rows.Err()
}

func (r *PostgresRepository) ListProjectAgents(ctx context.Context, projectID string) ([]*models.ProjectAgent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, agent_id, role, created_at
		FROM project_agents WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project agents: %w", err)
	}
	defer rows.Close()

	var assignments []*models.ProjectAgent
	for rows.Next() {
		var pa models.ProjectAgent
		if err := rows.Scan(&pa.ID, &pa.ProjectID, &pa.AgentID, &pa.Role, &pa.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, &pa)
	}
	return assignments, rows.Err()
}

func (r *PostgresRepository) AssignAgentToTask(ctx context.Context, ta *models.TaskAgent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO task_agents (id, task_id, agent_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		ta.ID, ta.TaskID, ta.AgentID, ta.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("agent %s already assigned to task %s", ta.AgentID, ta.TaskID)
	}
	if err != nil {
		return fmt.Errorf("failed to assign agent to task: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UnassignAgentFromTask(ctx context.Context, taskID, agentID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM task_agents WHERE task_id = $1 AND agent_id = $2`, taskID, agentID)
	if err != nil {
		return fmt.Errorf("failed to unassign agent from task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("agent %s not assigned to task %s", agentID, taskID)
	}
	return nil
}

func (r *PostgresRepository) ListAgentTasks(ctx context.Context, agentID string) ([]*models.Task, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id, COALESCE(t.project_id::text, ''), t.name, t.description, t.directive,
			t.notes, t.status, COALESCE(t.channel_id::text, ''), t.created_at, t.updated_at
		FROM tasks t JOIN task_agents ta ON ta.task_id = t.id
		WHERE ta.agent_id = $1 ORDER BY t.created_at, t.id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent tasks: %w", err)
	}
	return collectTasks(rows)
}

func (r *PostgresRepository) ListTaskAgents(ctx context.Context, taskID string) ([]*models.TaskAgent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, task_id, agent_id, created_at
		FROM task_agents WHERE task_id = $1 ORDER BY created_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task agents: %w", err)
	}
	defer rows.Close()

	var assignments []*models.TaskAgent
	for rows.Next() {
		var ta models.TaskAgent
		if err := rows.Scan(&ta.ID, &ta.TaskID, &ta.AgentID, &ta.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, &ta)
	}
	return assignments, rows.Err()
}

func (r *PostgresRepository) AssignSkillToTask(ctx context.Context, ts *models.TaskSkill) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO task_skills (id, task_id, skill_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		ts.ID, ts.TaskID, ts.SkillID, ts.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("skill %s already assigned to task %s", ts.SkillID, ts.TaskID)
	}
	if err != nil {
		return fmt.Errorf("failed to assign skill to task: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListTaskSkills(ctx context.Context, taskID string) ([]*models.Skill, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.name, s.description, s.instructions, s.active, s.created_at, s.updated_at
		FROM skills s JOIN task_skills ts ON ts.skill_id = s.id
		WHERE ts.task_id = $1 ORDER BY s.name`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task skills: %w", err)
	}
	return collectSkills(rows)
}

func (r *PostgresRepository) AssignSecretToTask(ctx context.Context, ts *models.TaskSecret) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO task_secrets (id, task_id, secret_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		ts.ID, ts.TaskID, ts.SecretID, ts.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("secret %s already assigned to task %s", ts.SecretID, ts.TaskID)
	}
	if err != nil {
		return fmt.Errorf("failed to assign secret to task: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListTaskSecrets(ctx context.Context, taskID string) ([]*models.Secret, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.key, s.value, s.description, s.created_at, s.updated_at
		FROM secrets s JOIN task_secrets ts ON ts.secret_id = s.id
		WHERE ts.task_id = $1 ORDER BY s.key`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task secrets: %w", err)
	}
	return collectSecrets(rows)
}

func (r *PostgresRepository) AssignSecretToProject(ctx context.Context, ps *models.ProjectSecret) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO project_secrets (id, project_id, secret_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		ps.ID, ps.ProjectID, ps.SecretID, ps.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("secret %s already assigned to project %s", ps.SecretID, ps.ProjectID)
	}
	if err != nil {
		return fmt.Errorf("failed to assign secret to project: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListProjectSecrets(ctx context.Context, projectID string) ([]*models.Secret, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.key, s.value, s.description, s.created_at, s.updated_at
		FROM secrets s JOIN project_secrets ps ON ps.secret_id = s.id
		WHERE ps.project_id = $1 ORDER BY s.key`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project secrets: %w", err)
	}
	return collectSecrets(rows)
}
