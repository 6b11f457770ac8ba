package engine

import (
	"context"
	"testing"
	"time"

	"pmsched/internal/model"
	"pmsched/internal/store"
	logx "pmsched/pkg/logx"
)

func TestConvertUsage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		metric string
		sum    float64
		want   float64
	}{
		{metric: "run_hours", sum: 390, want: 6.5},
		{metric: "RunHours", sum: 60, want: 1},
		{metric: "run-hours", sum: 120, want: 2},
		{metric: "cycles", sum: 390, want: 390},
		{metric: "starts", sum: 7, want: 7},
	}
	for _, tt := range tests {
		if got := convertUsage(tt.metric, tt.sum); got != tt.want {
			t.Fatalf("convertUsage(%q, %v) = %v, want %v", tt.metric, tt.sum, got, tt.want)
		}
	}
}

func newTestEngine(mem *store.Memory) *Engine {
	return New(Config{Workers: 2, DefaultLookbackDays: 30}, mem, logx.Nop(), nil)
}

func TestEvalUsageThreshold(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	// Two run-time samples inside the window: 6h + 7h in minutes.
	mem.AppendUsage(model.UsageSample{AssetID: "pump-1", TenantID: "acme", Metric: "run_hours", Value: 360, RecordedAt: now.Add(-48 * time.Hour)})
	mem.AppendUsage(model.UsageSample{AssetID: "pump-1", TenantID: "acme", Metric: "run_hours", Value: 420, RecordedAt: now.Add(-24 * time.Hour)})
	// Outside the window.
	mem.AppendUsage(model.UsageSample{AssetID: "pump-1", TenantID: "acme", Metric: "run_hours", Value: 600, RecordedAt: now.AddDate(0, 0, -31)})
	// Different asset.
	mem.AppendUsage(model.UsageSample{AssetID: "pump-2", TenantID: "acme", Metric: "run_hours", Value: 6000, RecordedAt: now.Add(-time.Hour)})

	e := newTestEngine(mem)
	tr := model.Trigger{Kind: model.TriggerMeter, Metric: "run_hours", Threshold: 12, LookbackDays: 30}
	a := &model.Assignment{ID: "a1", AssetID: "pump-1"}

	v, err := e.evalUsage(context.Background(), tr, a, "acme", now)
	if err != nil {
		t.Fatalf("evalUsage error: %v", err)
	}
	if !v.Due {
		t.Fatalf("13h aggregated against a 12h threshold must be due (usage=%v)", v.Usage)
	}
	if v.Usage != 13 {
		t.Fatalf("Usage = %v, want 13", v.Usage)
	}
	if v.Reason != ReasonMeter {
		t.Fatalf("Reason = %q, want %q", v.Reason, ReasonMeter)
	}

	tr.Threshold = 14
	v, err = e.evalUsage(context.Background(), tr, a, "acme", now)
	if err != nil {
		t.Fatalf("evalUsage error: %v", err)
	}
	if v.Due {
		t.Fatalf("13h against a 14h threshold must not be due")
	}
}

func TestEvalUsageWindowBoundsInclusive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	// Exactly on both window edges.
	mem.AppendUsage(model.UsageSample{AssetID: "gen-1", TenantID: "acme", Metric: "cycles", Value: 40, RecordedAt: now.AddDate(0, 0, -30)})
	mem.AppendUsage(model.UsageSample{AssetID: "gen-1", TenantID: "acme", Metric: "cycles", Value: 60, RecordedAt: now})

	e := newTestEngine(mem)
	tr := model.Trigger{Kind: model.TriggerMeter, Metric: "cycles", Threshold: 100, LookbackDays: 30}

	v, err := e.evalUsage(context.Background(), tr, &model.Assignment{ID: "a1", AssetID: "gen-1"}, "acme", now)
	if err != nil {
		t.Fatalf("evalUsage error: %v", err)
	}
	if v.Usage != 100 || !v.Due {
		t.Fatalf("boundary samples must be included: usage=%v due=%v", v.Usage, v.Due)
	}
}

func TestEvalUsageServicedSuppression(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	mem.AppendUsage(model.UsageSample{AssetID: "gen-1", TenantID: "acme", Metric: "cycles", Value: 500, RecordedAt: now.Add(-time.Hour)})

	e := newTestEngine(mem)
	tr := model.Trigger{Kind: model.TriggerMeter, Metric: "cycles", Threshold: 100, LookbackDays: 30}

	// Serviced five days ago, inside the window: above threshold but not due
	// again until the generation ages out.
	a := &model.Assignment{ID: "a1", AssetID: "gen-1", LastGeneratedAt: now.AddDate(0, 0, -5)}
	v, err := e.evalUsage(context.Background(), tr, a, "acme", now)
	if err != nil {
		t.Fatalf("evalUsage error: %v", err)
	}
	if v.Due {
		t.Fatal("assignment serviced inside the window must not be due")
	}
	if want := a.LastGeneratedAt.AddDate(0, 0, 30); !v.NextDue.Equal(want) {
		t.Fatalf("NextDue = %v, want %v", v.NextDue, want)
	}

	// Serviced before the window started: due again.
	a.LastGeneratedAt = now.AddDate(0, 0, -31)
	v, err = e.evalUsage(context.Background(), tr, a, "acme", now)
	if err != nil {
		t.Fatalf("evalUsage error: %v", err)
	}
	if !v.Due {
		t.Fatal("generation outside the window must not suppress a due meter")
	}
}

func TestEvalUsageConfigErrors(t *testing.T) {
	t.Parallel()

	e := newTestEngine(store.NewMemory())
	now := time.Now()
	a := &model.Assignment{ID: "a1", AssetID: "x"}

	tests := []struct {
		name string
		tr   model.Trigger
	}{
		{name: "missing metric", tr: model.Trigger{Kind: model.TriggerMeter, Threshold: 10, LookbackDays: 30}},
		{name: "zero threshold", tr: model.Trigger{Kind: model.TriggerMeter, Metric: "cycles", LookbackDays: 30}},
		{name: "negative threshold", tr: model.Trigger{Kind: model.TriggerMeter, Metric: "cycles", Threshold: -5, LookbackDays: 30}},
		{name: "negative lookback", tr: model.Trigger{Kind: model.TriggerMeter, Metric: "cycles", Threshold: 10, LookbackDays: -1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := e.evalUsage(context.Background(), tt.tr, a, "acme", now); !IsConfigError(err) {
				t.Fatalf("err = %v, want ConfigError", err)
			}
		})
	}
}

func TestEvalUsageDefaultLookback(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	// 20 days back: inside a 30-day default window.
	mem.AppendUsage(model.UsageSample{AssetID: "gen-1", TenantID: "acme", Metric: "cycles", Value: 150, RecordedAt: now.AddDate(0, 0, -20)})

	e := newTestEngine(mem)
	tr := model.Trigger{Kind: model.TriggerMeter, Metric: "cycles", Threshold: 100}

	v, err := e.evalUsage(context.Background(), tr, &model.Assignment{ID: "a1", AssetID: "gen-1"}, "acme", now)
	if err != nil {
		t.Fatalf("evalUsage error: %v", err)
	}
	if !v.Due {
		t.Fatal("sample inside the default window must count")
	}
}
