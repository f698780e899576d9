// Package repository provides agent storage.
package repository

import (
	"context"
	"time"

	"github.com/botcrew/botcrew/internal/agent/models"
)

// Sort fields accepted by List.
const (
	SortCreatedAt = "created_at"
	SortName      = "name"
)

// ListOptions controls agent listing. Limit is the raw row budget;
// callers pass page size + 1 and peel the overflow row themselves.
type ListOptions struct {
	Statuses []models.Status
	Sort     string
	Desc     bool
	Limit    int

	// Cursor boundary for created_at sorted listings. Zero AfterTime
	// means no boundary.
	AfterTime time.Time
	AfterID   string
}

// Repository defines agent storage operations.
type Repository interface {
	Create(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	GetByName(ctx context.Context, name string) (*models.Agent, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.Agent, error)
	List(ctx context.Context, opts ListOptions) ([]*models.Agent, error)
	ListByStatuses(ctx context.Context, statuses []models.Status) ([]*models.Agent, error)
	Update(ctx context.Context, agent *models.Agent) error
	// UpdateStatus stamps status and, when handle is non-nil, the
	// worker handle in one write.
	UpdateStatus(ctx context.Context, id string, status models.Status, handle *string) error
	UpdateMemory(ctx context.Context, id string, memory string) error
	Delete(ctx context.Context, id string) error
}
