package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pmsched/internal/eventbus"
	"pmsched/internal/model"
	logx "pmsched/pkg/logx"
)

// Run executes one scheduling pass: load every active task, evaluate each
// assignment against the pass instant, and emit work items for due
// occurrences. Per-assignment failures land in the report; only a failed task
// load aborts the pass.
func (e *Engine) Run(ctx context.Context, opts Options) (RunReport, error) {
	started := time.Now()
	now := opts.Now
	if now.IsZero() {
		now = started
	}

	report := RunReport{
		RunID:    uuid.NewString(),
		TenantID: opts.TenantID,
		Started:  started,
	}

	tasks, err := e.st.LoadActiveTasks(ctx, opts.TenantID)
	if err != nil {
		report.Took = time.Since(started)
		return report, fmt.Errorf("load active tasks: %w", err)
	}

	type job struct {
		task *model.PMTask
		asg  *model.Assignment
	}

	jobs := make(chan job)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				e.runOne(ctx, j.task, j.asg, now, &mu, &report)
			}
		}()
	}

feed:
	for ti := range tasks {
		task := &tasks[ti]
		for ai := range task.Assignments {
			select {
			case jobs <- job{task: task, asg: &task.Assignments[ai]}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	report.Took = time.Since(started)

	e.log.Info("scheduling pass finished",
		logx.String("run", report.RunID),
		logx.Int("evaluated", report.Evaluated),
		logx.Int("generated", report.Generated),
		logx.Int("skipped", report.Skipped),
		logx.Int("errors", len(report.Errors)),
		logx.Duration("took", report.Took))

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeRunCompleted, Data: report})
	}
	return report, ctx.Err()
}

// runOne evaluates a single assignment and folds the outcome into the shared
// report. A panic in an evaluator is contained here and recorded as an error
// so the rest of the pass keeps going.
func (e *Engine) runOne(ctx context.Context, task *model.PMTask, a *model.Assignment, now time.Time, mu *sync.Mutex, report *RunReport) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("assignment evaluation panicked",
				logx.String("task", task.ID), logx.String("assignment", a.ID), logx.Any("panic", r))
			mu.Lock()
			report.Errors = append(report.Errors, AssignmentError{
				TaskID:       task.ID,
				AssignmentID: a.ID,
				AssetID:      a.AssetID,
				Err:          fmt.Sprintf("panic: %v", r),
			})
			mu.Unlock()
		}
	}()

	mu.Lock()
	report.Evaluated++
	mu.Unlock()

	v, err := e.resolve(ctx, task, a, now)
	if err == nil && !v.Due {
		mu.Lock()
		report.Skipped++
		mu.Unlock()
		return
	}

	var wi model.WorkItem
	if err == nil {
		wi, err = e.generate(ctx, task, a, v, now)
	}

	switch {
	case err == nil:
		mu.Lock()
		report.Generated++
		mu.Unlock()
		e.log.Debug("work item generated",
			logx.String("task", task.ID), logx.String("assignment", a.ID),
			logx.String("item", wi.ID), logx.String("reason", v.Reason))
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Type: eventbus.TypeWorkItemCreated, Data: WorkItemEvent{
				WorkItemID:   wi.ID,
				TaskID:       wi.TaskID,
				AssignmentID: wi.AssignmentID,
				TenantID:     wi.TenantID,
				AssetID:      a.AssetID,
				Title:        wi.Title,
				Reason:       v.Reason,
				CreatedAt:    wi.CreatedAt,
			}})
		}
	case errors.Is(err, ErrConcurrencyLost):
		// Another pass claimed this occurrence between our read and the
		// guard. Benign; the occurrence was generated exactly once.
		mu.Lock()
		report.Skipped++
		mu.Unlock()
		e.log.Debug("lost generation race",
			logx.String("task", task.ID), logx.String("assignment", a.ID))
	default:
		mu.Lock()
		report.Errors = append(report.Errors, AssignmentError{
			TaskID:       task.ID,
			AssignmentID: a.ID,
			AssetID:      a.AssetID,
			Err:          err.Error(),
		})
		mu.Unlock()
		e.log.Warn("assignment failed",
			logx.String("task", task.ID), logx.String("assignment", a.ID), logx.Any("err", err))
	}
}
