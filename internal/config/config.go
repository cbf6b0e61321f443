// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

// Package config loads Tripwise server configuration.
//
// Values are layered: built-in defaults, then the YAML file, then flags
// the operator changed, then the DATABASE_URL and TRIPWISE_TOKEN_SECRET
// environment variables.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/tripwise/tripwise/internal/auth"
)

// Environment variables that override file and flag values.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvTokenSecret = "TRIPWISE_TOKEN_SECRET"
)

// Mail drivers.
const (
	MailDriverLog  = "log"
	MailDriverSMTP = "smtp"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Tokens   TokensConfig   `koanf:"tokens"`
	Reset    ResetConfig    `koanf:"reset"`
	Mail     MailConfig     `koanf:"mail"`
	Log      LogConfig      `koanf:"log"`
	Roles    RolesConfig    `koanf:"roles"`
	Hashing  HashingConfig  `koanf:"hashing"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

type TokensConfig struct {
	Secret          string        `koanf:"secret"`
	Issuer          string        `koanf:"issuer"`
	Audience        string        `koanf:"audience"`
	AccessLifetime  time.Duration `koanf:"access_lifetime"`
	RefreshLifetime time.Duration `koanf:"refresh_lifetime"`
}

type ResetConfig struct {
	Lifetime    time.Duration `koanf:"lifetime"`
	LinkBaseURL string        `koanf:"link_base_url"`
}

type MailConfig struct {
	Driver string     `koanf:"driver"`
	SMTP   SMTPConfig `koanf:"smtp"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type LogConfig struct {
	Format string `koanf:"format"`
}

type RolesConfig struct {
	Default string `koanf:"default"`
}

type HashingConfig struct {
	// MaxConcurrent bounds parallel key derivations; 0 means GOMAXPROCS.
	MaxConcurrent int `koanf:"max_concurrent"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			MetricsAddr:     "127.0.0.1:9100",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{ConnectRetries: 5},
		Tokens: TokensConfig{
			Issuer:          "tripwise",
			Audience:        "tripwise",
			AccessLifetime:  auth.DefaultAccessTokenLifetime,
			RefreshLifetime: auth.DefaultRefreshTokenLifetime,
		},
		Reset: ResetConfig{
			Lifetime:    auth.ResetTokenExpiry,
			LinkBaseURL: "http://localhost:3000/reset-password",
		},
		Mail: MailConfig{
			Driver: MailDriverLog,
			SMTP:   SMTPConfig{Port: 587},
		},
		Log:   LogConfig{Format: "json"},
		Roles: RolesConfig{Default: auth.DefaultRoleName},
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"metrics-addr": "server.metrics_addr",
	"database-url": "database.url",
	"log-format":   "log.format",
	"mail-driver":  "mail.driver",
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "API listen address")
	fs.String("metrics-addr", d.Server.MetricsAddr, "metrics/health listen address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL connection URL (env "+EnvDatabaseURL+")")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("mail-driver", d.Mail.Driver, "reset mail driver (log or smtp)")
}

// Source describes where Load reads from.
type Source struct {
	// Path is the YAML file. A missing file is ignored unless Required.
	Path     string
	Required bool
	// Flags holds flags added by RegisterFlags; only changed flags apply.
	Flags *pflag.FlagSet
	// Getenv defaults to os.Getenv when nil.
	Getenv func(string) string
}

// Load builds a Config from src and validates it.
func Load(src Source) (*Config, error) {
	cfg, err := Read(src)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds a Config from src without validating it. Commands that need
// only part of the configuration check what they use.
func Read(src Source) (*Config, error) {
	k := koanf.New(".")

	if src.Path != "" {
		err := k.Load(file.Provider(src.Path), yaml.Parser())
		switch {
		case errors.Is(err, fs.ErrNotExist) && !src.Required:
		case err != nil:
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", src.Path).Wrap(err)
		}
	}

	if src.Flags != nil {
		provider := posflag.ProviderWithFlag(src.Flags, ".", nil, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(src.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	getenv := src.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for env, key := range map[string]string{EnvDatabaseURL: "database.url", EnvTokenSecret: "tokens.secret"} {
		if v := getenv(env); v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("env", env).Wrap(err)
			}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}
	if err := c.TokenConfig().Validate(); err != nil {
		return invalid("tokens", "%s", err.Error())
	}
	if c.Reset.Lifetime <= 0 {
		return invalid("reset.lifetime", "reset lifetime must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", "shutdown timeout must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be json or text, got %q", c.Log.Format)
	}
	if c.Roles.Default == "" {
		return invalid("roles.default", "default role is required")
	}
	if c.Hashing.MaxConcurrent < 0 {
		return invalid("hashing.max_concurrent", "max_concurrent cannot be negative")
	}
	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverSMTP:
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.From == "" {
			return invalid("mail.smtp", "smtp driver requires host and from")
		}
	default:
		return invalid("mail.driver", "mail driver must be log or smtp, got %q", c.Mail.Driver)
	}
	return nil
}

// TokenConfig converts the tokens section for auth.NewTokenIssuer.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:          []byte(c.Tokens.Secret),
		Issuer:          c.Tokens.Issuer,
		Audience:        c.Tokens.Audience,
		AccessLifetime:  c.Tokens.AccessLifetime,
		RefreshLifetime: c.Tokens.RefreshLifetime,
	}
}
