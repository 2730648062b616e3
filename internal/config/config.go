package config

import (
	"crypto-signal-scraper/pkg/config"
)

// Telegram holds Bot API credentials for the feed and the alert notifier.
type Telegram struct {
	BotToken        string `mapstructure:"bot_token"`
	AlertChatID     int64  `mapstructure:"alert_chat_id"`
	PollTimeout     int    `mapstructure:"poll_timeout"`
	AlertsPerMinute int    `mapstructure:"alerts_per_minute"`
}

// Feed selects the monitored sources and backfill behavior.
type Feed struct {
	SourceIDs        []int64 `mapstructure:"source_ids"`
	TrustedSourceIDs []int64 `mapstructure:"trusted_source_ids"`
	BackfillEnabled  bool    `mapstructure:"backfill_enabled"`
	BackfillLimit    int     `mapstructure:"backfill_limit"`
}

// Signals holds pipeline tuning knobs. TombstoneRetention empty means
// tombstones are kept forever; a duration enables the scheduled sweep.
type Signals struct {
	SendTimeout        string `mapstructure:"send_timeout"`
	HeartbeatSchedule  string `mapstructure:"heartbeat_schedule"`
	TombstoneRetention string `mapstructure:"tombstone_retention"`
	RetentionSchedule  string `mapstructure:"retention_schedule"`
}

// KeywordConfig is one configurable lexicon entry.
type KeywordConfig struct {
	Pattern       string `mapstructure:"pattern"`
	NotFollowedBy string `mapstructure:"not_followed_by"`
}

// Parser overrides the built-in extraction lexicons when set.
type Parser struct {
	LongKeywords  []KeywordConfig `mapstructure:"long_keywords"`
	ShortKeywords []KeywordConfig `mapstructure:"short_keywords"`
	KnownCoins    []string        `mapstructure:"known_coins"`
}

// Config holds the full configuration for the signal scraper service.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	Redis    config.Redis    `mapstructure:"redis"`
	API      config.API      `mapstructure:"api"`
	Telegram Telegram        `mapstructure:"telegram"`
	Feed     Feed            `mapstructure:"feed"`
	Signals  Signals         `mapstructure:"signals"`
	Parser   Parser          `mapstructure:"parser"`
}

// Load loads the service configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
