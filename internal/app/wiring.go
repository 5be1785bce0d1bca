package app

import (
	"strings"
	"time"

	"newsbot/internal/config"
	"newsbot/internal/digest"
	"newsbot/internal/newsapi"
	"newsbot/internal/storage"
	"newsbot/internal/transport"
	"newsbot/internal/transport/telegram"
	logx "newsbot/pkg/logx"
)

// The config was validated by config.Load, so parse errors below cannot
// happen and defaults only cover zero values.

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		KeyPrefix:   sc.KeyPrefix,
		BusyTimeout: config.MustDuration(sc.BusyTimeout, time.Second),
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	chatID, _ := config.ParseChatID("logging.telegram.chat_id", cfg.Logging.Telegram.ChatID)
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	tc := cfg.Telegram
	return telegram.Config{
		Token:            tc.Token,
		Mode:             strings.ToLower(tc.Mode),
		PollTimeout:      config.MustDuration(tc.PollTimeout, 10*time.Second),
		WebhookListen:    tc.Webhook.Listen,
		WebhookPublicURL: tc.Webhook.PublicURL,
		SendRatePerSec:   tc.SendRatePerSec,
	}
}

func mapNewsOptions(cfg *config.Config, log logx.Logger) newsapi.Options {
	nc := cfg.News
	return newsapi.Options{
		APIKey:        nc.APIKey,
		Endpoint:      nc.Endpoint,
		Freshness:     nc.Freshness,
		Keywords:      nc.Keywords,
		MaxItems:      nc.MaxItems,
		SummaryBudget: nc.SummaryBudget,
		FallbackURL:   nc.FallbackURL,
		Timeout:       config.MustDuration(nc.Timeout, 30*time.Second),
		RatePerMin:    nc.RatePerMin,
		Log:           log,
	}
}

func mapDigestOptions(cfg *config.Config) digest.Options {
	return digest.Options{
		Title:         cfg.Digest.Title,
		Footer:        cfg.Digest.Footer,
		SummaryBudget: cfg.News.SummaryBudget,
	}
}

func scheduledRecipient(cfg *config.Config) transport.ChatTarget {
	id, _ := config.ParseChatID("schedule.recipient", cfg.Schedule.Recipient)
	return transport.ChatTarget{ChatID: id}
}

// menu is the command list published to Telegram. push is left out because
// only the admin can use it.
var menu = []telegram.BotCommand{
	{Command: "news", Description: "أهم أخبار المغرب"},
	{Command: "status", Description: "متى يمكنني طلب الأخبار؟"},
	{Command: "start", Description: "ترحيب"},
}
