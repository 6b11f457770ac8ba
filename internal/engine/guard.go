package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pmsched/internal/model"
	"pmsched/internal/store"
	logx "pmsched/pkg/logx"
)

// generate claims the assignment's due occurrence and emits the work item.
//
// The claim is a compare-and-set on lastGeneratedAt, conditioned on the value
// read at evaluation start. Exactly one of any number of concurrent passes
// wins; losers get ErrConcurrencyLost and emit nothing. If emission fails
// after a won claim, the claim is rolled back so the next pass retries the
// occurrence.
func (e *Engine) generate(ctx context.Context, task *model.PMTask, a *model.Assignment, v Verdict, now time.Time) (model.WorkItem, error) {
	ok, err := e.st.UpdateAssignmentState(ctx, a.ID, a.LastGeneratedAt, now, v.NextDue)
	if err != nil {
		return model.WorkItem{}, &DataError{Err: fmt.Errorf("claim assignment %s: %w", a.ID, err)}
	}
	if !ok {
		return model.WorkItem{}, ErrConcurrencyLost
	}

	title := task.Title
	ref, err := e.st.ResolveAsset(ctx, a.AssetID, task.TenantID)
	switch {
	case err == nil && ref.Name != "":
		title = task.Title + " - " + ref.Name
	case err != nil && !errors.Is(err, store.ErrNotFound):
		// Unresolvable asset store: the title is a nicety, not worth failing
		// the generation over.
		e.log.Debug("asset resolve failed; using unqualified title",
			logx.String("asset", a.AssetID), logx.Any("err", err))
	}

	wi := model.WorkItem{
		ID:            uuid.NewString(),
		TaskID:        task.ID,
		AssignmentID:  a.ID,
		TenantID:      task.TenantID,
		SiteID:        task.SiteID,
		Title:         title,
		Checklist:     a.Checklist,
		RequiredParts: a.RequiredParts,
		CreatedAt:     now,
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			e.rollbackClaim(ctx, a, now)
			return model.WorkItem{}, &EmitError{Err: err}
		}
	}

	if _, err := e.st.CreateWorkItem(ctx, wi); err != nil {
		e.rollbackClaim(ctx, a, now)
		return model.WorkItem{}, &EmitError{Err: err}
	}
	return wi, nil
}

// rollbackClaim restores the pre-claim assignment state after a failed
// emission, conditioned on our own claim still being in place.
func (e *Engine) rollbackClaim(ctx context.Context, a *model.Assignment, claimedAt time.Time) {
	ok, err := e.st.UpdateAssignmentState(ctx, a.ID, claimedAt, a.LastGeneratedAt, a.NextDue)
	if err != nil || !ok {
		// The occurrence stays claimed without a work item; it needs an
		// operator (or the store coming back) to resolve. Loud on purpose.
		e.log.Error("failed to roll back generation claim after emission failure",
			logx.String("assignment", a.ID), logx.Bool("cas_ok", ok), logx.Any("err", err))
	}
}
