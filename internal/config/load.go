package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"newsbot/internal/scheduler"
)

// ErrMissing marks a required setting that is absent. The process must not
// start serving without it.
var ErrMissing = errors.New("required setting missing")

// Defaults match the production deployment.
const (
	DefaultEndpoint      = "https://api.ydc-index.io/v1/search"
	DefaultQuery         = "أخبار المغرب عاجل"
	DefaultFreshness     = "day"
	DefaultMaxRaw        = 20
	DefaultMaxItems      = 5
	DefaultSummaryBudget = 180
	DefaultFallbackURL   = "https://you.com"
	DefaultNewsTimeout   = "30s"
	DefaultRatePerMin    = 30
	DefaultCooldown      = "24h"
	DefaultDailyAt       = "08:00"
	DefaultDigestTitle   = "أهم أخبار المغرب"
	DefaultStorageDriver = "sqlite"
	DefaultStoragePath   = "./users.db"
)

// DefaultKeywords match Morocco in both scripts plus the major cities.
// Matching is by substring, so short stems like "fes" or "فاس" are left out:
// they hit "festival" and "فاسد".
var DefaultKeywords = []string{
	"مغرب", "morocco", "maroc",
	"الرباط", "rabat",
	"الدار البيضاء", "casablanca",
	"مراكش", "marrakech",
	"طنجة", "tangier",
	"fès", "fez",
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the optional config file at path, loads a .env file from the
// working directory when present, overlays the environment and validates
// the result.
func Load(path string) (*Config, error) {
	// A missing .env is the normal production case.
	_ = godotenv.Load()
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment source.
func LoadWith(path string, lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		parsed, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}
	if lookup != nil {
		if err := applyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFile decodes a JSON or YAML config file, rejecting unknown fields.
func ParseFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", key, v)
		}
		*dst = n
		return nil
	}

	str("TELEGRAM_TOKEN", &cfg.Telegram.Token)
	str("ADMIN_USER_ID", &cfg.Telegram.AdminUserID)
	str("TELEGRAM_MODE", &cfg.Telegram.Mode)
	str("WEBHOOK_LISTEN", &cfg.Telegram.Webhook.Listen)
	str("WEBHOOK_URL", &cfg.Telegram.Webhook.PublicURL)

	str("YOU_API_KEY", &cfg.News.APIKey)
	str("NEWS_ENDPOINT", &cfg.News.Endpoint)
	str("NEWS_QUERY", &cfg.News.Query)
	str("NEWS_TIMEOUT", &cfg.News.Timeout)
	if err := num("NEWS_MAX_ITEMS", &cfg.News.MaxItems); err != nil {
		return err
	}
	if err := num("NEWS_MAX_RAW", &cfg.News.MaxRaw); err != nil {
		return err
	}
	if v, ok := lookup("NEWS_KEYWORDS"); ok && strings.TrimSpace(v) != "" {
		cfg.News.Keywords = SplitList(v)
	}

	str("COOLDOWN_PERIOD", &cfg.Cooldown.Period)
	str("DAILY_AT", &cfg.Schedule.DailyAt)
	str("DAILY_RECIPIENT", &cfg.Schedule.Recipient)
	str("SCHEDULE_TZ", &cfg.Schedule.Timezone)

	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("STORAGE_DSN", &cfg.Storage.DSN)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	return nil
}

func applyDefaults(cfg *Config) {
	def := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	defInt := func(dst *int, v int) {
		if *dst <= 0 {
			*dst = v
		}
	}

	def(&cfg.Telegram.Mode, "poll")
	def(&cfg.Telegram.PollTimeout, "10s")
	def(&cfg.Telegram.CommandTimeout, "45s")
	defInt(&cfg.Telegram.SendRatePerSec, 20)
	defInt(&cfg.Telegram.Workers, 4)

	def(&cfg.News.Endpoint, DefaultEndpoint)
	def(&cfg.News.Query, DefaultQuery)
	def(&cfg.News.Freshness, DefaultFreshness)
	def(&cfg.News.FallbackURL, DefaultFallbackURL)
	def(&cfg.News.Timeout, DefaultNewsTimeout)
	defInt(&cfg.News.MaxRaw, DefaultMaxRaw)
	defInt(&cfg.News.MaxItems, DefaultMaxItems)
	defInt(&cfg.News.SummaryBudget, DefaultSummaryBudget)
	defInt(&cfg.News.RatePerMin, DefaultRatePerMin)
	if len(cfg.News.Keywords) == 0 {
		cfg.News.Keywords = append([]string(nil), DefaultKeywords...)
	}

	def(&cfg.Cooldown.Period, DefaultCooldown)
	def(&cfg.Schedule.DailyAt, DefaultDailyAt)
	def(&cfg.Schedule.Timeout, "2m")
	def(&cfg.Schedule.Recipient, cfg.Telegram.AdminUserID)
	def(&cfg.Digest.Title, DefaultDigestTitle)

	def(&cfg.Storage.Driver, DefaultStorageDriver)
	if d := strings.ToLower(cfg.Storage.Driver); d == "sqlite" || d == "sqlite3" || d == "file" {
		def(&cfg.Storage.Path, DefaultStoragePath)
	}

	def(&cfg.Logging.Level, "info")
	def(&cfg.Logging.Telegram.ChatID, cfg.Telegram.AdminUserID)
}

// Validate checks required settings and the format of every typed field.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("%w: telegram.token (TELEGRAM_TOKEN)", ErrMissing)
	}
	if strings.TrimSpace(cfg.News.APIKey) == "" {
		return fmt.Errorf("%w: news.api_key (YOU_API_KEY)", ErrMissing)
	}

	switch strings.ToLower(cfg.Telegram.Mode) {
	case "poll":
	case "webhook":
		if cfg.Telegram.Webhook.Listen == "" {
			return fmt.Errorf("%w: telegram.webhook.listen (WEBHOOK_LISTEN) is required in webhook mode", ErrMissing)
		}
	default:
		return fmt.Errorf("telegram.mode: unknown mode %q (use poll or webhook)", cfg.Telegram.Mode)
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"telegram.command_timeout", cfg.Telegram.CommandTimeout},
		{"news.timeout", cfg.News.Timeout},
		{"schedule.timeout", cfg.Schedule.Timeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	period, err := ParseDurationField("cooldown.period", cfg.Cooldown.Period)
	if err != nil {
		return err
	}
	if period <= 0 {
		return fmt.Errorf("cooldown.period must be > 0")
	}

	if _, _, err := scheduler.ParseHHMM(cfg.Schedule.DailyAt); err != nil {
		return fmt.Errorf("schedule.daily_at: %w", err)
	}
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
	}

	ids := []struct{ path, raw string }{
		{"telegram.admin_user_id", cfg.Telegram.AdminUserID},
		{"schedule.recipient", cfg.Schedule.Recipient},
		{"logging.telegram.chat_id", cfg.Logging.Telegram.ChatID},
	}
	for _, id := range ids {
		if _, err := ParseChatID(id.path, id.raw); err != nil {
			return err
		}
	}

	if cfg.News.MaxItems > cfg.News.MaxRaw {
		return fmt.Errorf("news.max_items (%d) must not exceed news.max_raw (%d)", cfg.News.MaxItems, cfg.News.MaxRaw)
	}
	return nil
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseChatID parses an optional Telegram chat/user id. Empty yields 0.
func ParseChatID(path, raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid id %q", path, raw)
	}
	return id, nil
}
