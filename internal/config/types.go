package config

// Config is pmsched's on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Engine  EngineConfig  `json:"engine"`
	Runner  RunnerConfig  `json:"runner"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console,omitempty"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	// Driver: "sqlite" (default) or "memory".
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`

	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// EngineConfig controls one scheduling pass.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - default_lookback_days: 30
//   - emit_rate_per_sec: 0 (unlimited)
type EngineConfig struct {
	Workers             int    `json:"workers,omitempty"`
	DefaultLookbackDays int    `json:"default_lookback_days,omitempty"`
	EmitRatePerSec      int    `json:"emit_rate_per_sec,omitempty"`
	TenantID            string `json:"tenant_id,omitempty"` // empty = all tenants
}

// RunnerConfig controls the periodic trigger.
type RunnerConfig struct {
	Enabled bool `json:"enabled,omitempty"`

	// Schedule is a cron spec ("0 * * * *"), descriptor ("@hourly"), or
	// "@every" interval.
	Schedule string `json:"schedule,omitempty"`

	// Timezone is an IANA TZ name, e.g. "Europe/Berlin". Empty = local.
	Timezone string `json:"timezone,omitempty"`

	// RunTimeout bounds one pass; a Go duration string. "0s" disables it.
	RunTimeout string `json:"run_timeout,omitempty"`
}
