// Package config loads server settings from an optional YAML file and
// FRONTDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env          string
		Timezone     string
		StoreTimeout time.Duration `mapstructure:"store_timeout"`
	} `mapstructure:"app"`

	HTTP struct {
		Addr           string
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"http"`

	Database struct {
		Driver string
		DSN    string
	} `mapstructure:"database"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Telemetry struct {
		ServiceName string `mapstructure:"service_name"`
		Endpoint    string
		Insecure    bool
	} `mapstructure:"telemetry"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Rules struct {
		DuplicateWindow   time.Duration `mapstructure:"duplicate_window"`
		MorningCutoffHour int           `mapstructure:"morning_cutoff_hour"`
		ExpiringDays      int           `mapstructure:"expiring_days"`
	} `mapstructure:"rules"`

	Plans struct {
		SeedFile string `mapstructure:"seed_file"`
	} `mapstructure:"plans"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "Local")
	v.SetDefault("app.store_timeout", 10*time.Second)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "frontdesk.db")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("telemetry.service_name", "frontdesk")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("rules.duplicate_window", 5*time.Minute)
	v.SetDefault("rules.morning_cutoff_hour", 14)
	v.SetDefault("rules.expiring_days", 7)
	v.SetDefault("plans.seed_file", "")
}

// Load reads path when it is non-empty, then applies FRONTDESK_* overrides
// (FRONTDESK_DATABASE_DSN sets database.dsn).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FRONTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, c.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Rules.MorningCutoffHour < 0 || c.Rules.MorningCutoffHour > 23 {
		errs = append(errs, fmt.Errorf("rules.morning_cutoff_hour out of range: %d", c.Rules.MorningCutoffHour))
	}
	if c.Rules.DuplicateWindow < 0 {
		errs = append(errs, errors.New("rules.duplicate_window must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves app.timezone. "Local" and "" mean the host zone.
func (c Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" || c.App.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}
	return loc, nil
}
