package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"pmsched/internal/model"
	"pmsched/internal/store"
)

func seedCalendarTask(mem *store.Memory, last time.Time) model.PMTask {
	task := model.PMTask{
		ID:       "t1",
		TenantID: "acme",
		SiteID:   "plant-7",
		Title:    "Quarterly pump inspection",
		Active:   true,
		Assignments: []model.Assignment{{
			ID:              "a1",
			TaskID:          "t1",
			AssetID:         "pump-1",
			Interval:        "daily",
			LastGeneratedAt: last,
		}},
	}
	mem.PutTask(task)
	return task
}

func TestGenerateConcurrentClaim(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	task := seedCalendarTask(mem, time.Time{})
	e := newTestEngine(mem)

	// Both callers evaluated the same snapshot; the guard lets exactly one
	// through.
	a := task.Assignments[0]
	v := Verdict{Due: true, NextDue: now.Add(24 * time.Hour), Reason: ReasonCalendar}

	first := a
	second := a
	if _, err := e.generate(context.Background(), &task, &first, v, now); err != nil {
		t.Fatalf("first generate error: %v", err)
	}
	_, err := e.generate(context.Background(), &task, &second, v, now)
	if !errors.Is(err, ErrConcurrencyLost) {
		t.Fatalf("second generate err = %v, want ErrConcurrencyLost", err)
	}

	if items := mem.WorkItems(); len(items) != 1 {
		t.Fatalf("work items = %d, want 1", len(items))
	}
}

func TestGenerateQualifiesTitleWithAssetName(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	task := seedCalendarTask(mem, time.Time{})
	mem.PutAsset(model.AssetRef{ID: "pump-1", TenantID: "acme", Name: "Feedwater Pump A"})
	e := newTestEngine(mem)

	a := task.Assignments[0]
	wi, err := e.generate(context.Background(), &task, &a, Verdict{Due: true, Reason: ReasonCalendar}, now)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if want := "Quarterly pump inspection - Feedwater Pump A"; wi.Title != want {
		t.Fatalf("Title = %q, want %q", wi.Title, want)
	}
	if wi.TenantID != "acme" || wi.SiteID != "plant-7" || wi.AssignmentID != "a1" {
		t.Fatalf("work item scope wrong: %+v", wi)
	}
}

func TestGenerateUnknownAssetKeepsBareTitle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	task := seedCalendarTask(mem, time.Time{})
	e := newTestEngine(mem)

	a := task.Assignments[0]
	wi, err := e.generate(context.Background(), &task, &a, Verdict{Due: true, Reason: ReasonCalendar}, now)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if wi.Title != task.Title {
		t.Fatalf("Title = %q, want %q", wi.Title, task.Title)
	}
}

func TestGenerateEmissionFailureRollsBackClaim(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	task := seedCalendarTask(mem, time.Time{})
	mem.FailCreate = errors.New("work-order service unavailable")
	e := newTestEngine(mem)

	a := task.Assignments[0]
	_, err := e.generate(context.Background(), &task, &a, Verdict{Due: true, NextDue: now.Add(24 * time.Hour), Reason: ReasonCalendar}, now)
	if !IsEmitError(err) {
		t.Fatalf("err = %v, want EmitError", err)
	}

	// The claim was rolled back: the next pass sees the original watermark
	// and retries the occurrence.
	mem.FailCreate = nil
	tasks, err := mem.LoadActiveTasks(context.Background(), "")
	if err != nil {
		t.Fatalf("LoadActiveTasks error: %v", err)
	}
	if got := tasks[0].Assignments[0].LastGeneratedAt; !got.IsZero() {
		t.Fatalf("LastGeneratedAt = %v, want rollback to zero", got)
	}

	retry := tasks[0].Assignments[0]
	if _, err := e.generate(context.Background(), &tasks[0], &retry, Verdict{Due: true, Reason: ReasonCalendar}, now); err != nil {
		t.Fatalf("retry after rollback error: %v", err)
	}
	if items := mem.WorkItems(); len(items) != 1 {
		t.Fatalf("work items = %d, want 1", len(items))
	}
}
