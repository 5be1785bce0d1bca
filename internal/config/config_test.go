package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"newsbot/internal/newsapi"
)

func envOf(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"TELEGRAM_TOKEN": "123:abc",
		"YOU_API_KEY":    "key",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWith("", envOf(baseEnv()))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Cooldown.Period != DefaultCooldown {
		t.Fatalf("cooldown = %q", cfg.Cooldown.Period)
	}
	if cfg.News.MaxItems != 5 || cfg.News.MaxRaw != 20 || cfg.News.SummaryBudget != 180 {
		t.Fatalf("news defaults = %+v", cfg.News)
	}
	if cfg.Schedule.DailyAt != "08:00" {
		t.Fatalf("daily_at = %q", cfg.Schedule.DailyAt)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != DefaultStoragePath {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if !cfg.ScheduleEnabled() || !cfg.ConsoleLogging() {
		t.Fatal("schedule and console logging should default to on")
	}
	if len(cfg.News.Keywords) == 0 || cfg.News.Keywords[0] != "مغرب" {
		t.Fatalf("keywords = %v", cfg.News.Keywords)
	}
}

func TestLoadWithMissingSecrets(t *testing.T) {
	for _, key := range []string{"TELEGRAM_TOKEN", "YOU_API_KEY"} {
		env := baseEnv()
		delete(env, key)
		_, err := LoadWith("", envOf(env))
		if !errors.Is(err, ErrMissing) {
			t.Fatalf("without %s: err = %v, want ErrMissing", key, err)
		}
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error should name %s: %v", key, err)
		}
	}
}

func TestEnvOverlay(t *testing.T) {
	env := baseEnv()
	env["ADMIN_USER_ID"] = "777"
	env["COOLDOWN_PERIOD"] = "2h"
	env["NEWS_KEYWORDS"] = " rabat , ,casablanca "
	env["NEWS_MAX_ITEMS"] = "3"
	env["DAILY_AT"] = "07:30"

	cfg, err := LoadWith("", envOf(env))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Telegram.AdminUserID != "777" || cfg.Schedule.Recipient != "777" {
		t.Fatalf("admin/recipient = %q/%q", cfg.Telegram.AdminUserID, cfg.Schedule.Recipient)
	}
	if cfg.Cooldown.Period != "2h" || cfg.News.MaxItems != 3 || cfg.Schedule.DailyAt != "07:30" {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if got := strings.Join(cfg.News.Keywords, "|"); got != "rabat|casablanca" {
		t.Fatalf("keywords = %q", got)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"COOLDOWN_PERIOD": "soon",
		"DAILY_AT":        "25:00",
		"ADMIN_USER_ID":   "admin",
		"NEWS_MAX_ITEMS":  "five",
		"TELEGRAM_MODE":   "carrier-pigeon",
		"SCHEDULE_TZ":     "Mars/Olympus",
	}
	for key, val := range cases {
		env := baseEnv()
		env[key] = val
		if _, err := LoadWith("", envOf(env)); err == nil {
			t.Fatalf("%s=%q accepted", key, val)
		}
	}
}

func TestParseFileYAMLStrict(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "bot.yaml")
	doc := "telegram:\n  token: t\nnews:\n  api_key: k\n  max_items: 4\nstorage:\n  driver: memory\n"
	if err := os.WriteFile(good, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadWith(good, envOf(nil))
	if err != nil {
		t.Fatalf("LoadWith yaml: %v", err)
	}
	if cfg.News.MaxItems != 4 || cfg.Storage.Driver != "memory" {
		t.Fatalf("yaml not decoded: %+v", cfg)
	}
	if cfg.Storage.Path != "" {
		t.Fatalf("memory driver should not get a default path, got %q", cfg.Storage.Path)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"telegram":{"token":"t","colour":"red"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseFile(bad); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestDefaultKeywordsAvoidCommonWords(t *testing.T) {
	f := newsapi.NewFilter(DefaultKeywords)
	for _, title := range []string{
		"Cannes film festival opens",
		"Professor wins award",
		"تنافس قوي في الدوري الإنجليزي",
		"قضية مسؤول فاسد في أوروبا",
	} {
		if f.Match(title) {
			t.Errorf("default keywords matched %q", title)
		}
	}
	for _, title := range []string{
		"Fès medina restoration",
		"المغرب يفتتح ميناء جديدا",
		"Casablanca stock exchange",
	} {
		if !f.Match(title) {
			t.Errorf("default keywords missed %q", title)
		}
	}
}
