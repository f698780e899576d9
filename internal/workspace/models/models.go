// Package models defines the workspace entities: projects, tasks,
// skills, secrets, integrations, activities, and the assignment graph
// linking them to agents.
package models

import "time"

// Project statuses.
const (
	ProjectStatusActive   = "active"
	ProjectStatusArchived = "archived"
)

// Project is a long-running body of work with its own channel and
// workspace directory.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Goals         string    `json:"goals"`
	Specs         string    `json:"specs"`
	Notes         string    `json:"notes"`
	WorkspacePath string    `json:"workspace_path"`
	ChannelID     string    `json:"channel_id,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Task statuses.
const (
	TaskStatusOpen       = "open"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

// Task is a unit of work, optionally under a project.
type Task struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Directive is the full operating instruction; boot bundles carry
	// only a preview of it.
	Directive string    `json:"directive"`
	Notes     string    `json:"notes"`
	Status    string    `json:"status"`
	ChannelID string    `json:"channel_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Skill is a reusable capability description agents can be granted
// through task assignments.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Instructions is the full usage text workers pull when a task
	// grants the skill.
	Instructions string    `json:"instructions"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Secret is a key/value pair exposed to workers through boot config.
type Secret struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Integration types.
const (
	IntegrationTypeAIProvider = "ai_provider"
)

// Integration is an external service hookup. AI-provider integrations
// carry a JSON config with the provider name and API key; active ones
// overlay the secrets map in boot config.
type Integration struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Config string `json:"config"`
	Active bool   `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Activity is an append-only audit record for an agent.
type Activity struct {
	ID      string         `json:"id"`
	AgentID string         `json:"agent_id"`
	Kind    string         `json:"kind"`
	Summary string         `json:"summary"`
	Details map[string]any `json:"details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ProjectAgent assigns an agent to a project with an optional role.
type ProjectAgent struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	AgentID   string    `json:"agent_id"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskAgent assigns an agent to a task.
type TaskAgent struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskSkill grants a skill to a task.
type TaskSkill struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	SkillID   string    `json:"skill_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskSecret exposes a secret to a task.
type TaskSecret struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	SecretID  string    `json:"secret_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectSecret exposes a secret to a project.
type ProjectSecret struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	SecretID  string    `json:"secret_id"`
	CreatedAt time.Time `json:"created_at"`
}
