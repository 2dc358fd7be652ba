// Package config loads process configuration from the environment, with an
// optional .env or config file in the working directory.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSecret signs tokens when SECRET_KEY is unset. Refused in production.
const DefaultSecret = "changeme"

// Config groups every setting of the server.
type Config struct {
	App  AppConfig
	HTTP HTTPConfig
	DB   DBConfig
	Auth AuthConfig
}

// AppConfig holds general settings.
type AppConfig struct {
	Env      string // development, staging, production
	LogLevel string
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// DBConfig selects and locates the record store.
type DBConfig struct {
	Driver      string // sqlite or postgres
	Path        string // sqlite file, or ":memory:"
	DatabaseURL string // postgres connection string
}

// AuthConfig describes the single HR principal and token signing.
type AuthConfig struct {
	Secret     string
	HRUsername string
	HRPassword string // plain text or a bcrypt hash
	TokenTTL   time.Duration
}

// Load reads configuration. Environment variables win over file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		HTTP: HTTPConfig{
			Port:        v.GetInt("HTTP_PORT"),
			CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(v.GetString("DB_DRIVER")),
			Path:        v.GetString("DB_PATH"),
			DatabaseURL: v.GetString("DATABASE_URL"),
		},
		Auth: AuthConfig{
			Secret:     v.GetString("SECRET_KEY"),
			HRUsername: v.GetString("HR_USERNAME"),
			HRPassword: v.GetString("HR_PASSWORD"),
			TokenTTL:   time.Duration(v.GetInt("TOKEN_TTL_MINUTES")) * time.Minute,
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_PATH", "./data/leave.db")
	v.SetDefault("SECRET_KEY", DefaultSecret)
	v.SetDefault("HR_USERNAME", "admin")
	v.SetDefault("HR_PASSWORD", "secret123")
	v.SetDefault("TOKEN_TTL_MINUTES", 60)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %d out of range", c.HTTP.Port))
	}

	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case "postgres":
		if c.DB.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not sqlite or postgres", c.DB.Driver))
	}

	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("SECRET_KEY is empty"))
	}
	if c.App.Env == "production" && c.Auth.Secret == DefaultSecret {
		errs = append(errs, errors.New("SECRET_KEY must be set in production"))
	}
	if c.Auth.HRUsername == "" || c.Auth.HRPassword == "" {
		errs = append(errs, errors.New("HR_USERNAME and HR_PASSWORD are required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL_MINUTES must be positive"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
