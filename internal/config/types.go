package config

// Config is the full bot configuration. It is built once by Load and treated
// as read-only afterwards; components receive the parts they need explicitly.
//
// Durations are Go duration strings ("30s", "24h"); times of day are "HH:MM".
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	News     NewsConfig     `json:"news"`
	Cooldown CooldownConfig `json:"cooldown"`
	Schedule ScheduleConfig `json:"schedule"`
	Digest   DigestConfig   `json:"digest"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminUserID is the single operator identity. It bypasses the cooldown
	// and is never written to the ledger. Empty disables admin features.
	AdminUserID string `json:"admin_user_id,omitempty"`

	// Mode is "poll" (default) or "webhook".
	Mode        string        `json:"mode,omitempty"`
	PollTimeout string        `json:"poll_timeout,omitempty"`
	Webhook     WebhookConfig `json:"webhook,omitempty"`

	// SendRatePerSec throttles outbound messages (Telegram allows ~30/s per bot).
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`

	// Workers is the number of concurrent command handlers.
	Workers        int    `json:"workers,omitempty"`
	CommandTimeout string `json:"command_timeout,omitempty"`
}

type WebhookConfig struct {
	Listen    string `json:"listen,omitempty"`     // e.g. ":8443"
	PublicURL string `json:"public_url,omitempty"` // e.g. "https://bot.example.com/hook"
}

// NewsConfig configures the search API client and the topical filter.
type NewsConfig struct {
	APIKey    string `json:"api_key"`
	Endpoint  string `json:"endpoint,omitempty"`
	Query     string `json:"query,omitempty"`
	Freshness string `json:"freshness,omitempty"`

	// MaxRaw is the result count requested upstream; MaxItems caps the digest.
	MaxRaw        int      `json:"max_raw,omitempty"`
	MaxItems      int      `json:"max_items,omitempty"`
	SummaryBudget int      `json:"summary_budget,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	FallbackURL   string   `json:"fallback_url,omitempty"`

	Timeout    string `json:"timeout,omitempty"`
	RatePerMin int    `json:"rate_per_min,omitempty"`
}

type CooldownConfig struct {
	Period string `json:"period,omitempty"`
}

// ScheduleConfig controls the unattended daily digest.
//
// Enabled is a pointer so an omitted field can default to true.
type ScheduleConfig struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	DailyAt   string `json:"daily_at,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Recipient string `json:"recipient,omitempty"` // chat id; defaults to the admin
	Timeout   string `json:"timeout,omitempty"`
}

type DigestConfig struct {
	Title  string `json:"title,omitempty"`
	Footer bool   `json:"footer,omitempty"`
}

// StorageConfig selects the cooldown ledger backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/users.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // sqlite | file | memory | redis | postgres
	Path        string `json:"path,omitempty"`   // sqlite, file
	DSN         string `json:"dsn,omitempty"`    // redis URL, postgres DSN
	KeyPrefix   string `json:"key_prefix,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  *bool           `json:"console,omitempty"`
	File     LoggingFile     `json:"file,omitempty"`
	Telegram LoggingTelegram `json:"telegram,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingTelegram forwards warnings to a chat. ChatID defaults to the admin.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     string `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// MetricsConfig exposes /metrics and /healthz. Empty Addr disables the server.
type MetricsConfig struct {
	Addr  string `json:"addr,omitempty"`
	Pprof bool   `json:"pprof,omitempty"`
}

// ScheduleEnabled reports the effective schedule flag.
func (c *Config) ScheduleEnabled() bool {
	return c.Schedule.Enabled == nil || *c.Schedule.Enabled
}

// ConsoleLogging reports the effective console flag.
func (c *Config) ConsoleLogging() bool {
	return c.Logging.Console == nil || *c.Logging.Console
}
