package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides:
// WRENCHBAY_SERVER_PORT -> server.port. Every underscore after the prefix
// separates a level, so keys are written without underscores.
const EnvPrefix = "WRENCHBAY_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	Elevated  ElevatedConfig  `koanf:"elevated"`
	Redis     RedisConfig     `koanf:"redis"`
	Audit     AuditConfig     `koanf:"audit"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

type AuthConfig struct {
	JWT JWTConfig `koanf:"jwt"`
}

type JWTConfig struct {
	SigningKey  string `koanf:"signingkey"`
	Issuer      string `koanf:"issuer"`
	ExpiryHours int    `koanf:"expiryhours"`
}

// ElevatedConfig configures super-administrator sessions. An empty
// VerifyURL verifies tokens in-process; otherwise they are posted to it.
type ElevatedConfig struct {
	SigningKey      string `koanf:"signingkey"`
	Issuer          string `koanf:"issuer"`
	TTLMinutes      int    `koanf:"ttlminutes"`
	VerifyURL       string `koanf:"verifyurl"`
	VerifyTimeoutMs int    `koanf:"verifytimeoutms"`
	// Store selects the credential store: "redis" or "memory".
	Store string `koanf:"store"`
}

func (c ElevatedConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c ElevatedConfig) VerifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutMs) * time.Millisecond
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type AuditConfig struct {
	Enabled         bool `koanf:"enabled"`
	BufferSize      int  `koanf:"buffersize"`
	BatchSize       int  `koanf:"batchsize"`
	FlushIntervalMs int  `koanf:"flushintervalms"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowedorigins"`
}

type RateLimitConfig struct {
	// ElevatedLoginPerMinute bounds elevated sign-in attempts per client IP.
	ElevatedLoginPerMinute int `koanf:"elevatedloginperminute"`
	// RequestsPerMinute bounds all API requests per client IP; zero disables it.
	RequestsPerMinute int `koanf:"requestsperminute"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// DevMode relaxes HTTPS-only security headers for local development.
	DevMode bool `koanf:"devmode"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrationspath"`
	MaxConns       int    `koanf:"maxconns"`
	AutoMigrate    bool   `koanf:"automigrate"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                      8080,
		"server.host":                      "0.0.0.0",
		"server.devmode":                   false,
		"database.maxconns":                25,
		"database.migrationspath":          "migrations",
		"database.automigrate":             false,
		"log.level":                        "info",
		"log.format":                       "json",
		"auth.jwt.issuer":                  "wrenchbay",
		"auth.jwt.expiryhours":             24,
		"elevated.issuer":                  "wrenchbay-superadmin",
		"elevated.ttlminutes":              60,
		"elevated.verifytimeoutms":         3000,
		"elevated.store":                   "redis",
		"redis.addr":                       "localhost:6379",
		"redis.prefix":                     "wrenchbay:",
		"audit.enabled":                    true,
		"audit.buffersize":                 4096,
		"audit.batchsize":                  100,
		"audit.flushintervalms":            500,
		"ratelimit.elevatedloginperminute": 5,
		"ratelimit.requestsperminute":      0,
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	// Environment variables override everything
	_ = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, EnvPrefix)),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

const minSigningKeyLen = 32

// Validate reports every setting the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if len(c.Auth.JWT.SigningKey) < minSigningKeyLen {
		errs = append(errs, fmt.Errorf("auth.jwt.signingkey must be at least %d bytes", minSigningKeyLen))
	}
	if len(c.Elevated.SigningKey) < minSigningKeyLen {
		errs = append(errs, fmt.Errorf("elevated.signingkey must be at least %d bytes", minSigningKeyLen))
	}
	if c.Elevated.SigningKey != "" && c.Elevated.SigningKey == c.Auth.JWT.SigningKey {
		errs = append(errs, errors.New("elevated.signingkey must differ from auth.jwt.signingkey"))
	}
	if c.Elevated.TTLMinutes <= 0 {
		errs = append(errs, errors.New("elevated.ttlminutes must be positive"))
	}
	switch c.Elevated.Store {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("elevated.store must be redis or memory, got %q", c.Elevated.Store))
	}
	return errors.Join(errs...)
}
