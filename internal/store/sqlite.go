package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pmsched/internal/model"
	logx "pmsched/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers; reads from the
	// engine's workers still interleave through the single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadActiveTasks(ctx context.Context, tenantID string) ([]model.PMTask, error) {
	const base = `SELECT id, tenant_id, site_id, title, recur_kind, recur_expr, recur_metric, recur_threshold, last_generated_at
	              FROM pm_tasks WHERE active = 1`
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(tenantID) != "" {
		rows, err = s.db.QueryContext(ctx, base+` AND tenant_id = ? ORDER BY id`, tenantID)
	} else {
		rows, err = s.db.QueryContext(ctx, base+` ORDER BY id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.PMTask
	for rows.Next() {
		var t model.PMTask
		var lastMS int64
		if err := rows.Scan(&t.ID, &t.TenantID, &t.SiteID, &t.Title,
			&t.Recurrence.Kind, &t.Recurrence.Expr, &t.Recurrence.Metric, &t.Recurrence.Threshold,
			&lastMS); err != nil {
			return nil, err
		}
		t.Active = true
		t.LastGeneratedAt = msToTime(lastMS)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		asgs, err := s.loadAssignments(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Assignments = asgs
	}
	return tasks, nil
}

func (s *sqliteStore) loadAssignments(ctx context.Context, taskID string) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, asset_id, interval, usage_metric, usage_target, usage_lookback_days,
		        trigger_type, meter_threshold, checklist, required_parts, next_due, last_generated_at
		 FROM pm_assignments WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var checklist, parts string
		var nextMS, lastMS int64
		if err := rows.Scan(&a.ID, &a.TaskID, &a.AssetID, &a.Interval,
			&a.UsageMetric, &a.UsageTarget, &a.UsageLookbackDays,
			&a.TriggerSpec.Type, &a.TriggerSpec.MeterThreshold,
			&checklist, &parts, &nextMS, &lastMS); err != nil {
			return nil, err
		}
		a.Checklist = []byte(checklist)
		a.RequiredParts = []byte(parts)
		a.NextDue = msToTime(nextMS)
		a.LastGeneratedAt = msToTime(lastMS)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SumUsage(ctx context.Context, q UsageQuery) (float64, error) {
	var sum float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(value), 0) FROM usage_samples
		 WHERE asset_id = ? AND tenant_id = ? AND metric = ?
		   AND recorded_at >= ? AND recorded_at <= ?`,
		q.AssetID, q.TenantID, q.Metric, q.Start.UnixMilli(), q.End.UnixMilli(),
	).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (s *sqliteStore) ResolveAsset(ctx context.Context, assetID, tenantID string) (model.AssetRef, error) {
	var ref model.AssetRef
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, site_id, name FROM assets WHERE id = ? AND tenant_id = ?`,
		assetID, tenantID,
	).Scan(&ref.ID, &ref.TenantID, &ref.SiteID, &ref.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AssetRef{}, ErrNotFound
	}
	if err != nil {
		return model.AssetRef{}, err
	}
	return ref, nil
}

func (s *sqliteStore) CreateWorkItem(ctx context.Context, wi model.WorkItem) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO work_items(id, task_id, assignment_id, tenant_id, site_id, title, checklist, required_parts, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		wi.ID, wi.TaskID, wi.AssignmentID, wi.TenantID, wi.SiteID, wi.Title,
		rawOrEmptyList(wi.Checklist), rawOrEmptyList(wi.RequiredParts), wi.CreatedAt.UnixMilli(),
	); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pm_tasks SET last_generated_at = ? WHERE id = ?`,
		wi.CreatedAt.UnixMilli(), wi.TaskID,
	); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return wi.ID, nil
}

func (s *sqliteStore) UpdateAssignmentState(ctx context.Context, assignmentID string, expectedPrev, newLast, nextDue time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pm_assignments SET last_generated_at = ?, next_due = ?
		 WHERE id = ? AND last_generated_at = ?`,
		timeToMS(newLast), timeToMS(nextDue), assignmentID, timeToMS(expectedPrev),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ---- write helpers (import tooling and tests; not part of the engine API) ----

func (s *sqliteStore) PutTask(ctx context.Context, t model.PMTask) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pm_tasks(id, tenant_id, site_id, title, active, recur_kind, recur_expr, recur_metric, recur_threshold, last_generated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   tenant_id=excluded.tenant_id, site_id=excluded.site_id, title=excluded.title,
		   active=excluded.active, recur_kind=excluded.recur_kind, recur_expr=excluded.recur_expr,
		   recur_metric=excluded.recur_metric, recur_threshold=excluded.recur_threshold`,
		t.ID, t.TenantID, t.SiteID, t.Title, boolInt(t.Active),
		t.Recurrence.Kind, t.Recurrence.Expr, t.Recurrence.Metric, t.Recurrence.Threshold,
		timeToMS(t.LastGeneratedAt),
	); err != nil {
		return err
	}
	for _, a := range t.Assignments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pm_assignments(id, task_id, asset_id, interval, usage_metric, usage_target, usage_lookback_days,
			                            trigger_type, meter_threshold, checklist, required_parts, next_due, last_generated_at)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET
			   asset_id=excluded.asset_id, interval=excluded.interval,
			   usage_metric=excluded.usage_metric, usage_target=excluded.usage_target,
			   usage_lookback_days=excluded.usage_lookback_days,
			   trigger_type=excluded.trigger_type, meter_threshold=excluded.meter_threshold,
			   checklist=excluded.checklist, required_parts=excluded.required_parts`,
			a.ID, t.ID, a.AssetID, a.Interval, a.UsageMetric, a.UsageTarget, a.UsageLookbackDays,
			a.TriggerSpec.Type, a.TriggerSpec.MeterThreshold,
			rawOrEmptyList(a.Checklist), rawOrEmptyList(a.RequiredParts),
			timeToMS(a.NextDue), timeToMS(a.LastGeneratedAt),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) PutAsset(ctx context.Context, ref model.AssetRef) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets(id, tenant_id, site_id, name) VALUES(?,?,?,?)
		 ON CONFLICT(id, tenant_id) DO UPDATE SET site_id=excluded.site_id, name=excluded.name`,
		ref.ID, ref.TenantID, ref.SiteID, ref.Name,
	)
	return err
}

func (s *sqliteStore) AppendUsage(ctx context.Context, sm model.UsageSample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_samples(asset_id, tenant_id, metric, value, recorded_at) VALUES(?,?,?,?,?)`,
		sm.AssetID, sm.TenantID, sm.Metric, sm.Value, sm.RecordedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) CountWorkItems(ctx context.Context, assignmentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_items WHERE assignment_id = ?`, assignmentID,
	).Scan(&n)
	return n, err
}

func timeToMS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rawOrEmptyList(b []byte) string {
	if len(b) == 0 {
		return "[]"
	}
	return string(b)
}
