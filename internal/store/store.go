package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"pmsched/internal/model"
	logx "pmsched/pkg/logx"
)

var (
	// ErrNotFound is returned when an asset cannot be resolved.
	ErrNotFound = errors.New("not found")
)

// Config configures the persistent store.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store (tests, ephemeral runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// UsageQuery selects usage samples for aggregation. Window bounds are
// inclusive on both ends and the query is tenant-scoped.
type UsageQuery struct {
	AssetID  string
	TenantID string
	Metric   string
	Start    time.Time
	End      time.Time
}

// Store is the persistence API the engine runs against. It covers the inbound
// query interfaces (tasks, usage, assets) and the outbound emitter boundary
// (work-item creation, assignment-state compare-and-set).
type Store interface {
	// LoadActiveTasks returns tasks with active=true, assignments populated.
	// An empty tenantID loads across all tenants.
	LoadActiveTasks(ctx context.Context, tenantID string) ([]model.PMTask, error)

	// SumUsage returns the sum of matching samples in the sample's native
	// unit. Zero samples is 0, not an error.
	SumUsage(ctx context.Context, q UsageQuery) (float64, error)

	// ResolveAsset returns ErrNotFound when the asset is unknown.
	ResolveAsset(ctx context.Context, assetID, tenantID string) (model.AssetRef, error)

	// CreateWorkItem persists a generated work item and bumps the owning
	// task's last-generated timestamp.
	CreateWorkItem(ctx context.Context, wi model.WorkItem) (string, error)

	// UpdateAssignmentState is the compare-and-set primitive behind the
	// generation guard: it advances lastGeneratedAt/nextDue only if the
	// stored lastGeneratedAt still equals expectedPrev. Returns false
	// (without error) when the condition does not hold.
	UpdateAssignmentState(ctx context.Context, assignmentID string, expectedPrev, newLast, nextDue time.Time) (bool, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
