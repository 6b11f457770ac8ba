package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pmsched/internal/model"
	logx "pmsched/pkg/logx"
)

func openTestDB(t *testing.T) *sqliteStore {
	t.Helper()
	st, err := openSQLite(Config{
		Path:        filepath.Join(t.TempDir(), "pmsched.db"),
		BusyTimeout: 2 * time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("openSQLite error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteTaskRoundTrip(t *testing.T) {
	t.Parallel()

	st := openTestDB(t)
	ctx := context.Background()

	task := model.PMTask{
		ID:       "t1",
		TenantID: "acme",
		SiteID:   "plant-7",
		Title:    "Compressor service",
		Active:   true,
		Recurrence: model.Recurrence{
			Kind: "calendar",
			Expr: "monthly",
		},
		Assignments: []model.Assignment{{
			ID:                "a1",
			TaskID:            "t1",
			AssetID:           "comp-1",
			Interval:          "every 14 days",
			UsageMetric:       "run_hours",
			UsageTarget:       250,
			UsageLookbackDays: 30,
			TriggerSpec:       model.TriggerSpec{Type: "meter", MeterThreshold: 250},
			Checklist:         []byte(`[{"step":"check oil"}]`),
		}},
	}
	if err := st.PutTask(ctx, task); err != nil {
		t.Fatalf("PutTask error: %v", err)
	}
	if err := st.PutTask(ctx, model.PMTask{ID: "t2", TenantID: "globex", Title: "Other", Active: false}); err != nil {
		t.Fatalf("PutTask error: %v", err)
	}

	tasks, err := st.LoadActiveTasks(ctx, "acme")
	if err != nil {
		t.Fatalf("LoadActiveTasks error: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	got := tasks[0]
	if got.Title != task.Title || got.SiteID != task.SiteID || got.Recurrence.Expr != "monthly" {
		t.Fatalf("task round trip: %+v", got)
	}
	if len(got.Assignments) != 1 {
		t.Fatalf("assignments = %d, want 1", len(got.Assignments))
	}
	a := got.Assignments[0]
	if a.Interval != "every 14 days" || a.UsageTarget != 250 || a.TriggerSpec.Type != "meter" {
		t.Fatalf("assignment round trip: %+v", a)
	}
	if string(a.Checklist) != `[{"step":"check oil"}]` {
		t.Fatalf("checklist round trip: %s", a.Checklist)
	}
	if !a.LastGeneratedAt.IsZero() {
		t.Fatalf("LastGeneratedAt = %v, want zero", a.LastGeneratedAt)
	}

	// Inactive tasks never load.
	all, err := st.LoadActiveTasks(ctx, "")
	if err != nil {
		t.Fatalf("LoadActiveTasks error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("active tasks = %d, want 1", len(all))
	}
}

func TestSQLiteSumUsageWindow(t *testing.T) {
	t.Parallel()

	st := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.AddDate(0, 0, -30)

	samples := []model.UsageSample{
		{AssetID: "a", TenantID: "acme", Metric: "cycles", Value: 10, RecordedAt: start},
		{AssetID: "a", TenantID: "acme", Metric: "cycles", Value: 20, RecordedAt: now},
		{AssetID: "a", TenantID: "acme", Metric: "cycles", Value: 99, RecordedAt: start.Add(-time.Second)},
		{AssetID: "a", TenantID: "globex", Metric: "cycles", Value: 99, RecordedAt: now},
	}
	for _, sm := range samples {
		if err := st.AppendUsage(ctx, sm); err != nil {
			t.Fatalf("AppendUsage error: %v", err)
		}
	}

	sum, err := st.SumUsage(ctx, UsageQuery{AssetID: "a", TenantID: "acme", Metric: "cycles", Start: start, End: now})
	if err != nil {
		t.Fatalf("SumUsage error: %v", err)
	}
	if sum != 30 {
		t.Fatalf("sum = %v, want 30", sum)
	}

	// No samples at all is zero, not an error.
	sum, err = st.SumUsage(ctx, UsageQuery{AssetID: "nothing", TenantID: "acme", Metric: "cycles", Start: start, End: now})
	if err != nil {
		t.Fatalf("SumUsage error: %v", err)
	}
	if sum != 0 {
		t.Fatalf("sum = %v, want 0", sum)
	}
}

func TestSQLiteResolveAsset(t *testing.T) {
	t.Parallel()

	st := openTestDB(t)
	ctx := context.Background()

	if err := st.PutAsset(ctx, model.AssetRef{ID: "pump-1", TenantID: "acme", SiteID: "plant-7", Name: "Feedwater Pump A"}); err != nil {
		t.Fatalf("PutAsset error: %v", err)
	}

	ref, err := st.ResolveAsset(ctx, "pump-1", "acme")
	if err != nil {
		t.Fatalf("ResolveAsset error: %v", err)
	}
	if ref.Name != "Feedwater Pump A" {
		t.Fatalf("ref = %+v", ref)
	}

	if _, err := st.ResolveAsset(ctx, "pump-1", "globex"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant resolve err = %v, want ErrNotFound", err)
	}
	if _, err := st.ResolveAsset(ctx, "missing", "acme"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing resolve err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteUpdateAssignmentStateCAS(t *testing.T) {
	t.Parallel()

	st := openTestDB(t)
	ctx := context.Background()

	if err := st.PutTask(ctx, model.PMTask{
		ID: "t1", TenantID: "acme", Title: "T", Active: true,
		Assignments: []model.Assignment{{ID: "a1", TaskID: "t1", AssetID: "x", Interval: "daily"}},
	}); err != nil {
		t.Fatalf("PutTask error: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	ok, err := st.UpdateAssignmentState(ctx, "a1", time.Time{}, now, now.Add(24*time.Hour))
	if err != nil || !ok {
		t.Fatalf("first CAS: ok=%v err=%v", ok, err)
	}
	ok, err = st.UpdateAssignmentState(ctx, "a1", time.Time{}, now.Add(time.Minute), time.Time{})
	if err != nil {
		t.Fatalf("stale CAS error: %v", err)
	}
	if ok {
		t.Fatal("stale expected-previous must not win the CAS")
	}

	tasks, err := st.LoadActiveTasks(ctx, "acme")
	if err != nil {
		t.Fatalf("LoadActiveTasks error: %v", err)
	}
	a := tasks[0].Assignments[0]
	if !a.LastGeneratedAt.Equal(now) {
		t.Fatalf("LastGeneratedAt = %v, want %v", a.LastGeneratedAt, now)
	}
	if !a.NextDue.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("NextDue = %v, want %v", a.NextDue, now.Add(24*time.Hour))
	}
}

func TestSQLiteCreateWorkItemBumpsTask(t *testing.T) {
	t.Parallel()

	st := openTestDB(t)
	ctx := context.Background()

	if err := st.PutTask(ctx, model.PMTask{
		ID: "t1", TenantID: "acme", Title: "T", Active: true,
		Assignments: []model.Assignment{{ID: "a1", TaskID: "t1", AssetID: "x", Interval: "daily"}},
	}); err != nil {
		t.Fatalf("PutTask error: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	wi := model.WorkItem{
		ID: "wi-1", TaskID: "t1", AssignmentID: "a1", TenantID: "acme",
		Title: "T - X", CreatedAt: now,
	}
	id, err := st.CreateWorkItem(ctx, wi)
	if err != nil {
		t.Fatalf("CreateWorkItem error: %v", err)
	}
	if id != "wi-1" {
		t.Fatalf("id = %s", id)
	}

	n, err := st.CountWorkItems(ctx, "a1")
	if err != nil {
		t.Fatalf("CountWorkItems error: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}

	tasks, err := st.LoadActiveTasks(ctx, "acme")
	if err != nil {
		t.Fatalf("LoadActiveTasks error: %v", err)
	}
	if !tasks[0].LastGeneratedAt.Equal(now) {
		t.Fatalf("task LastGeneratedAt = %v, want %v", tasks[0].LastGeneratedAt, now)
	}
}
