package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/rpattn/histprune/internal/cleanup"
	"github.com/rpattn/histprune/internal/db"
	"github.com/rpattn/histprune/internal/domain"
)

// Config is the full application configuration: database connection,
// cleanup defaults and the tracked model declarations.
type Config struct {
	Database db.Config
	Cleanup  CleanupConfig
	Models   []domain.TrackedModel
	LogLevel string
}

// CleanupConfig holds the runtime defaults for duplicate cleaning, all
// overridable per run from the command line.
type CleanupConfig struct {
	StepSize     int64 `mapstructure:"step_size"`
	PortableScan bool  `mapstructure:"portable_scan"`
}

// Load reads config.yaml from configPath with environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Cleanup:  CleanupConfig{StepSize: cleanup.DefaultStepSize},
		LogLevel: "info",
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("HISTPRUNE") // map env vars like HISTPRUNE_LOG_LEVEL

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("log_level")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}

	if v.IsSet("cleanup") {
		if err := v.UnmarshalKey("cleanup", &cfg.Cleanup); err != nil {
			return cfg, fmt.Errorf("failed to parse cleanup config: %w", err)
		}
		if cfg.Cleanup.StepSize <= 0 {
			cfg.Cleanup.StepSize = cleanup.DefaultStepSize
		}
	}

	if v.IsSet("models") {
		if err := v.UnmarshalKey("models", &cfg.Models); err != nil {
			return cfg, fmt.Errorf("failed to parse tracked models: %w", err)
		}
		for _, model := range cfg.Models {
			for _, field := range model.Fields {
				if !domain.ValidFieldType(field.Type) {
					return cfg, fmt.Errorf("model %s: unknown field type %q for %s",
						model.Name, field.Type, field.Name)
				}
			}
		}
	}

	return cfg, nil
}
