// Package config loads the server configuration from environment variables.
//
// Every setting has a default suitable for local development except
// JWT_SECRET, and DATABASE_URL when DB_DRIVER=postgres. Load validates the
// result with validator tags, so a bad deployment fails at startup rather
// than on the first request.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the complete server configuration.
type Config struct {
	Port int `validate:"min=1,max=65535"`

	DBDriver    string `validate:"oneof=sqlite postgres"`
	DBPath      string `validate:"required_if=DBDriver sqlite"`
	DatabaseURL string `validate:"required_if=DBDriver postgres"`

	OrganizationZone string `validate:"required"`
	AllowedZones     []string
	SplitAtMidnight  bool

	JWTSecret     string        `validate:"required,min=16"`
	TokenTTL      time.Duration `validate:"min=1m"`
	SecureCookies bool

	GitHub GitHubConfig

	LogLevel  slog.Level
	LogFormat string `validate:"oneof=json text"`
}

// GitHubConfig enables the GitHub login routes when ClientID is set.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string `validate:"required_with=ClientID"`
	CallbackURL  string `validate:"omitempty,url"`
}

// Enabled reports whether GitHub login is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != ""
}

var validate = validator.New()

// Get returns the environment variable name, or fallback when it is unset
// or empty.
func Get(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return fallback
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var errs []error

	port, err := strconv.Atoi(Get("PORT", "8080"))
	if err != nil {
		errs = append(errs, fmt.Errorf("PORT: %w", err))
	}
	split, err := strconv.ParseBool(Get("SPLIT_AT_MIDNIGHT", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("SPLIT_AT_MIDNIGHT: %w", err))
	}
	secure, err := strconv.ParseBool(Get("COOKIE_SECURE", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("COOKIE_SECURE: %w", err))
	}
	ttl, err := time.ParseDuration(Get("JWT_TTL", "15m"))
	if err != nil {
		errs = append(errs, fmt.Errorf("JWT_TTL: %w", err))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(Get("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg := &Config{
		Port:             port,
		DBDriver:         strings.ToLower(Get("DB_DRIVER", DriverSQLite)),
		DBPath:           Get("DB_PATH", "data/attendance.db"),
		DatabaseURL:      Get("DATABASE_URL", ""),
		OrganizationZone: Get("ORGANIZATION_ZONE", "UTC"),
		AllowedZones:     splitList(Get("ALLOWED_ZONES", "")),
		SplitAtMidnight:  split,
		JWTSecret:        Get("JWT_SECRET", ""),
		TokenTTL:         ttl,
		SecureCookies:    secure,
		GitHub: GitHubConfig{
			ClientID:     Get("GITHUB_CLIENT_ID", ""),
			ClientSecret: Get("GITHUB_CLIENT_SECRET", ""),
			CallbackURL:  Get("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
		},
		LogLevel:  level,
		LogFormat: strings.ToLower(Get("LOG_FORMAT", "json")),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
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

// DSN is the data source for the configured driver, masked for logs.
func (c *Config) DSN() string {
	if c.DBDriver == DriverPostgres {
		return MaskDSN(c.DatabaseURL)
	}
	return c.DBPath
}

var keywordPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// MaskDSN hides the password in a Postgres connection string. Both URL
// ("postgres://user:pw@host/db") and keyword ("user=u password=pw") forms
// are handled.
func MaskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}
	return keywordPassword.ReplaceAllString(dsn, "${1}xxxxx")
}
