// Package config loads server configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// AuthConfig holds identity settings.
type AuthConfig struct {
	SessionLease  time.Duration `mapstructure:"session_lease"`
	InvitationTTL time.Duration `mapstructure:"invitation_ttl"`
}

// GameConfig holds gameplay settings.
type GameConfig struct {
	// BotMoveDelay paces the automated reply for presentation; the
	// human move is always fully applied first either way.
	BotMoveDelay time.Duration `mapstructure:"bot_move_delay"`
	WinPoints    int           `mapstructure:"win_points"`
	LossPenalty  int           `mapstructure:"loss_penalty"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration file at path, applying defaults and
// GRIDPLAY_* environment overrides. A missing file is not an error; the
// defaults stand.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "postgres://localhost:5432/tictac?sslmode=disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("auth.session_lease", 24*time.Hour)
	v.SetDefault("auth.invitation_ttl", 2*time.Minute)

	v.SetDefault("game.bot_move_delay", 500*time.Millisecond)
	v.SetDefault("game.win_points", 25)
	v.SetDefault("game.loss_penalty", 15)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetEnvPrefix("GRIDPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url must not be empty")
	}
	if c.Auth.SessionLease <= 0 {
		return fmt.Errorf("auth.session_lease must be positive")
	}
	if c.Auth.InvitationTTL <= 0 {
		return fmt.Errorf("auth.invitation_ttl must be positive")
	}
	if c.Game.WinPoints < 0 || c.Game.LossPenalty < 0 {
		return fmt.Errorf("game rating points must not be negative")
	}
	return nil
}
