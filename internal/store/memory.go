package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"pmsched/internal/model"
)

// Memory is an in-process Store. It backs tests and ephemeral runs and
// mirrors the SQLite backend's semantics, including the compare-and-set on
// assignment state.
type Memory struct {
	mu        sync.Mutex
	tasks     map[string]*model.PMTask
	assets    map[string]model.AssetRef // key: id + "\x00" + tenant
	samples   []model.UsageSample
	workItems []model.WorkItem

	// FailCreate forces CreateWorkItem to fail with the given error.
	// Test hook for emission-failure paths.
	FailCreate error
}

func NewMemory() *Memory {
	return &Memory{
		tasks:  map[string]*model.PMTask{},
		assets: map[string]model.AssetRef{},
	}
}

func (m *Memory) Close() error { return nil }

// PutTask stores (or replaces) a task with its assignments.
func (m *Memory) PutTask(t model.PMTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := t
	cp.Assignments = append([]model.Assignment(nil), t.Assignments...)
	m.tasks[t.ID] = &cp
}

func (m *Memory) PutAsset(ref model.AssetRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[assetKey(ref.ID, ref.TenantID)] = ref
}

func (m *Memory) AppendUsage(sm model.UsageSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sm)
}

// WorkItems returns a copy of all emitted work items.
func (m *Memory) WorkItems() []model.WorkItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.WorkItem(nil), m.workItems...)
}

func (m *Memory) LoadActiveTasks(ctx context.Context, tenantID string) ([]model.PMTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PMTask
	for _, t := range m.tasks {
		if !t.Active {
			continue
		}
		if tenantID != "" && t.TenantID != tenantID {
			continue
		}
		cp := *t
		cp.Assignments = append([]model.Assignment(nil), t.Assignments...)
		out = append(out, cp)
	}
	return out, nil
}

func (m *Memory) SumUsage(ctx context.Context, q UsageQuery) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, sm := range m.samples {
		if sm.AssetID != q.AssetID || sm.TenantID != q.TenantID || sm.Metric != q.Metric {
			continue
		}
		// Inclusive on both window bounds.
		if sm.RecordedAt.Before(q.Start) || sm.RecordedAt.After(q.End) {
			continue
		}
		sum += sm.Value
	}
	return sum, nil
}

func (m *Memory) ResolveAsset(ctx context.Context, assetID, tenantID string) (model.AssetRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.assets[assetKey(assetID, tenantID)]
	if !ok {
		return model.AssetRef{}, ErrNotFound
	}
	return ref, nil
}

func (m *Memory) CreateWorkItem(ctx context.Context, wi model.WorkItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return "", m.FailCreate
	}
	m.workItems = append(m.workItems, wi)
	if t, ok := m.tasks[wi.TaskID]; ok {
		t.LastGeneratedAt = wi.CreatedAt
	}
	return wi.ID, nil
}

func (m *Memory) UpdateAssignmentState(ctx context.Context, assignmentID string, expectedPrev, newLast, nextDue time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		for i := range t.Assignments {
			a := &t.Assignments[i]
			if a.ID != assignmentID {
				continue
			}
			if !a.LastGeneratedAt.Equal(expectedPrev) {
				return false, nil
			}
			a.LastGeneratedAt = newLast
			a.NextDue = nextDue
			return true, nil
		}
	}
	return false, nil
}

func assetKey(id, tenant string) string {
	return strings.Join([]string{id, tenant}, "\x00")
}
