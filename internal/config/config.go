package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/spf13/viper"
)

// global configuration structure
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Status     StatusConfig     `mapstructure:"status"`
}

// Discord bot configuration
type BotConfig struct {
	Token string `mapstructure:"token"`
	// commands are registered per guild when set, globally otherwise
	CommandGuildID snowflake.ID `mapstructure:"command_guild_id"`
	// number of dispatcher shards, events of one member always land on the same shard
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// logging configuration
type LoggerConfig struct {
	Directory  string            `mapstructure:"directory"`
	Rotation   LogRotationConfig `mapstructure:"rotation"`
	Timezone   string            `mapstructure:"timezone"`
	TimeFormat string            `mapstructure:"time_format"`
	Level      string            `mapstructure:"level"`
}

// log rotation settings
type LogRotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

type DatabaseConfig struct {
	// mysql, postgres or sqlite
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
	SSLMode  string `mapstructure:"sslmode"`
	// sqlite database file
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// quarantine, appeal and mute settings
type ModerationConfig struct {
	StaffRoleID       snowflake.ID `mapstructure:"staff_role_id"`
	BannedRole        string       `mapstructure:"banned_role"`
	MutedRole         string       `mapstructure:"muted_role"`
	QuarantineChannel string       `mapstructure:"quarantine_channel"`
	AppealsChannel    string       `mapstructure:"appeals_channel"`
	ModLogChannel     string       `mapstructure:"modlog_channel"`
	// shown to members that used their in-server appeal
	AppealURL string `mapstructure:"appeal_url"`

	AppealWindow      time.Duration `mapstructure:"appeal_window"`
	AppealFormTimeout time.Duration `mapstructure:"appeal_form_timeout"`
	PermabanDelay     time.Duration `mapstructure:"permaban_delay"`
	RejoinThreshold   int           `mapstructure:"rejoin_threshold"`
	MinMute           time.Duration `mapstructure:"min_mute"`

	MuteSweepInterval     time.Duration `mapstructure:"mute_sweep_interval"`
	PermabanSweepInterval time.Duration `mapstructure:"permaban_sweep_interval"`
}

// shared locking between several bot processes
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// relay of moderation log entries to a Telegram chat
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// health and debug endpoint
type StatusConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	DebugPath  string `mapstructure:"debug_path"`
}

// DefaultModeration returns the moderation settings used when the config file leaves them out.
func DefaultModeration() ModerationConfig {
	return ModerationConfig{
		BannedRole:            "Banned",
		MutedRole:             "Muted",
		QuarantineChannel:     "banned",
		AppealsChannel:        "appeals",
		ModLogChannel:         "mod-log",
		AppealWindow:          30 * 24 * time.Hour,
		AppealFormTimeout:     5 * time.Minute,
		PermabanDelay:         30 * time.Second,
		RejoinThreshold:       3,
		MinMute:               10 * time.Second,
		MuteSweepInterval:     30 * time.Second,
		PermabanSweepInterval: 15 * time.Second,
	}
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	log.Printf("Using config file: %s", v.ConfigFileUsed())

	loaded := &Config{}
	if err := v.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}

	cfg = loaded
	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		log.Fatal("Configuration not initialized, call Load() first")
	}
	return cfg
}

// Validate rejects settings the bot cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return fmt.Errorf("database.path is required for sqlite")
	}
	if c.Moderation.RejoinThreshold < 1 {
		return fmt.Errorf("moderation.rejoin_threshold must be at least 1")
	}
	if c.Moderation.MuteSweepInterval <= 0 || c.Moderation.PermabanSweepInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram relay needs token and chat_id")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.command_guild_id", 0)
	v.SetDefault("bot.workers", 8)
	v.SetDefault("bot.queue_size", 256)
	v.SetDefault("bot.request_timeout", 10*time.Second)

	v.SetDefault("logger.directory", "logs")
	v.SetDefault("logger.rotation.max_size", 10)
	v.SetDefault("logger.rotation.max_backups", 30)
	v.SetDefault("logger.rotation.max_age", 90)
	v.SetDefault("logger.rotation.compress", true)
	v.SetDefault("logger.timezone", "Local")
	v.SetDefault("logger.time_format", "2006/01/02 15:04:05")
	v.SetDefault("logger.level", "INFO")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "warden.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	m := DefaultModeration()
	v.SetDefault("moderation.staff_role_id", 0)
	v.SetDefault("moderation.banned_role", m.BannedRole)
	v.SetDefault("moderation.muted_role", m.MutedRole)
	v.SetDefault("moderation.quarantine_channel", m.QuarantineChannel)
	v.SetDefault("moderation.appeals_channel", m.AppealsChannel)
	v.SetDefault("moderation.modlog_channel", m.ModLogChannel)
	v.SetDefault("moderation.appeal_url", "")
	v.SetDefault("moderation.appeal_window", m.AppealWindow)
	v.SetDefault("moderation.appeal_form_timeout", m.AppealFormTimeout)
	v.SetDefault("moderation.permaban_delay", m.PermabanDelay)
	v.SetDefault("moderation.rejoin_threshold", m.RejoinThreshold)
	v.SetDefault("moderation.min_mute", m.MinMute)
	v.SetDefault("moderation.mute_sweep_interval", m.MuteSweepInterval)
	v.SetDefault("moderation.permaban_sweep_interval", m.PermabanSweepInterval)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("redis.prefix", "warden:lock:")

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.listen_addr", ":8080")
	v.SetDefault("status.debug_path", "/debug")
}
