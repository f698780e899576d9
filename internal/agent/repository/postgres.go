package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/database"
)

// pgUniqueViolation is the PostgreSQL unique_violation error code.
const pgUniqueViolation = "23505"

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a PostgreSQL agent repository.
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the agents table if it does not exist.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS agents (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			identity TEXT NOT NULL DEFAULT '',
			personality TEXT NOT NULL DEFAULT '',
			memory TEXT NOT NULL DEFAULT '',
			heartbeat_seconds INTEGER NOT NULL,
			heartbeat_prompt TEXT NOT NULL DEFAULT '',
			heartbeat_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			model_provider TEXT NOT NULL,
			model_name TEXT NOT NULL,
			worker_handle TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
		CREATE INDEX IF NOT EXISTS idx_agents_created_at ON agents(created_at, id);
	`)
	if err != nil {
		return fmt.Errorf("failed to init agents schema: %w", err)
	}
	return nil
}

const agentColumns = `id, name, identity, personality, memory,
	heartbeat_seconds, heartbeat_prompt, heartbeat_enabled,
	model_provider, model_name, COALESCE(worker_handle, ''), status,
	created_at, updated_at`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(
		&a.ID, &a.Name, &a.Identity, &a.Personality, &a.Memory,
		&a.HeartbeatSeconds, &a.HeartbeatPrompt, &a.HeartbeatEnabled,
		&a.ModelProvider, &a.ModelName, &a.WorkerHandle, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAgents(rows pgx.Rows) ([]*models.Agent, error) {
	defer rows.Close()
	var agents []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// Create inserts an agent row.
func (r *PostgresRepository) Create(ctx context.Context, agent *models.Agent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO agents (id, name, identity, personality, memory,
			heartbeat_seconds, heartbeat_prompt, heartbeat_enabled,
			model_provider, model_name, worker_handle, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14)`,
		agent.ID, agent.Name, agent.Identity, agent.Personality, agent.Memory,
		agent.HeartbeatSeconds, agent.HeartbeatPrompt, agent.HeartbeatEnabled,
		agent.ModelProvider, agent.ModelName, agent.WorkerHandle, agent.Status,
		agent.CreatedAt, agent.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperr.Conflict("agent name %q already exists", agent.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// Get fetches an agent by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Agent, error) {
	a, err := scanAgent(r.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("agent %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return a, nil
}

// GetByName fetches an agent by its unique name.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Agent, error) {
	a, err := scanAgent(r.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("agent named %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent by name: %w", err)
	}
	return a, nil
}

// GetByIDs fetches the agents whose ids appear in ids. Missing ids are
// skipped.
func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get agents by ids: %w", err)
	}
	return collectAgents(rows)
}

// List returns agents per opts. The cursor boundary applies only to
// created_at sorted listings.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*models.Agent, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(opts.Statuses) > 0 {
		statuses := make([]string, len(opts.Statuses))
		for i, s := range opts.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "status = ANY("+arg(statuses)+")")
	}

	sort := opts.Sort
	if sort == "" {
		sort = SortCreatedAt
	}
	dir := "ASC"
	cmp := ">"
	if opts.Desc {
		dir = "DESC"
		cmp = "<"
	}

	var order string
	switch sort {
	case SortCreatedAt:
		if !opts.AfterTime.IsZero() {
			conds = append(conds, fmt.Sprintf("(created_at, id) %s (%s, %s)",
				cmp, arg(opts.AfterTime), arg(opts.AfterID)))
		}
		order = fmt.Sprintf("created_at %s, id %s", dir, dir)
	case SortName:
		order = fmt.Sprintf("name %s, id %s", dir, dir)
	default:
		return nil, apperr.ValidationField("sort", "invalid sort field %q", sort)
	}

	query := `SELECT ` + agentColumns + ` FROM agents`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + order
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return collectAgents(rows)
}

// ListByStatuses returns every agent in one of the given statuses.
func (r *PostgresRepository) ListByStatuses(ctx context.Context, statuses []models.Status) ([]*models.Agent, error) {
	return r.List(ctx, ListOptions{Statuses: statuses})
}

// Update writes all mutable fields.
func (r *PostgresRepository) Update(ctx context.Context, agent *models.Agent) error {
	agent.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE agents SET name = $2, identity = $3, personality = $4, memory = $5,
			heartbeat_seconds = $6, heartbeat_prompt = $7, heartbeat_enabled = $8,
			model_provider = $9, model_name = $10, worker_handle = NULLIF($11, ''),
			status = $12, updated_at = $13
		WHERE id = $1`,
		agent.ID, agent.Name, agent.Identity, agent.Personality, agent.Memory,
		agent.HeartbeatSeconds, agent.HeartbeatPrompt, agent.HeartbeatEnabled,
		agent.ModelProvider, agent.ModelName, agent.WorkerHandle,
		agent.Status, agent.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperr.Conflict("agent name %q already exists", agent.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("agent %s not found", agent.ID)
	}
	return nil
}

// UpdateStatus stamps status (and optionally the worker handle).
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.Status, handle *string) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	now := time.Now().UTC()
	if handle != nil {
		tag, err = r.db.Exec(ctx, `
			UPDATE agents SET status = $2, worker_handle = NULLIF($3, ''), updated_at = $4
			WHERE id = $1`, id, status, *handle, now)
	} else {
		tag, err = r.db.Exec(ctx, `
			UPDATE agents SET status = $2, updated_at = $3 WHERE id = $1`, id, status, now)
	}
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("agent %s not found", id)
	}
	return nil
}

// UpdateMemory replaces the agent's memory text.
func (r *PostgresRepository) UpdateMemory(ctx context.Context, id string, memory string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE agents SET memory = $2, updated_at = $3 WHERE id = $1`,
		id, memory, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update agent memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("agent %s not found", id)
	}
	return nil
}

// Delete removes the agent row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("agent %s not found", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
