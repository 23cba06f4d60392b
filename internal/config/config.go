package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration required by the console process.
// All values come from env (or an env-file loaded by the process runner).
// Nothing outside this package reads raw environment variables.
type Config struct {
	App       AppConfig
	API       APIConfig
	Events    EventsConfig
	CredStore CredStoreConfig
	Audit     AuditConfig
	Routes    RoutesConfig
	DB        DBConfig
	Redis     RedisConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type APIConfig struct {
	// BaseURL of the upstream REST API, e.g. http://127.0.0.1:8000/api/.
	BaseURL string
}

type EventsConfig struct {
	// Transport is one of websocket, redis, pipe.
	Transport string
	URL       string
	Stream    string
	// Name is the progress event name published by the bot server.
	Name string
}

type CredStoreConfig struct {
	// Backend is one of memory, redis, postgres.
	Backend   string
	Profile   string
	KeyPrefix string
}

type AuditConfig struct {
	// Backend is one of memory, postgres.
	Backend string
}

type RoutesConfig struct {
	LoginPath   string
	DefaultPath string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
	TransportPipe      = "pipe"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = env("APP_ENV")
	c.App.Port, parseErrs = optionalInt(parseErrs, "APP_PORT", 8090)

	c.API.BaseURL = env("API_BASE_URL")

	c.Events.Transport = env("EVENTS_TRANSPORT")
	c.Events.URL = env("EVENTS_URL")
	c.Events.Stream = env("EVENTS_STREAM")
	c.Events.Name = env("EVENTS_NAME")

	c.CredStore.Backend = env("CREDSTORE_BACKEND")
	c.CredStore.Profile = env("CREDSTORE_PROFILE")
	c.CredStore.KeyPrefix = env("CREDSTORE_KEY_PREFIX")

	c.Audit.Backend = env("AUDIT_BACKEND")

	c.Routes.LoginPath = env("LOGIN_PATH")
	c.Routes.DefaultPath = env("DEFAULT_PATH")

	c.DB.Host = env("DB_HOST")
	c.DB.Port, parseErrs = optionalInt(parseErrs, "DB_PORT", 5432)
	c.DB.User = env("DB_USER")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = env("DB_NAME")
	c.DB.SSLMode = env("DB_SSLMODE")

	c.Redis.Host = env("REDIS_HOST")
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT", 6379)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ApplyDefaults fills optional settings. Production must set DB_SSLMODE itself.
func (c *Config) ApplyDefaults() {
	if c.Events.Transport == "" {
		c.Events.Transport = TransportWebSocket
	}
	if c.Events.Stream == "" {
		c.Events.Stream = "bot_updates"
	}
	if c.Events.Name == "" {
		c.Events.Name = "bot_update"
	}
	if c.CredStore.Backend == "" {
		c.CredStore.Backend = BackendMemory
	}
	if c.CredStore.Profile == "" {
		c.CredStore.Profile = "default"
	}
	if c.CredStore.KeyPrefix == "" {
		c.CredStore.KeyPrefix = "autodl:creds:"
	}
	if c.Audit.Backend == "" {
		c.Audit.Backend = BackendMemory
	}
	if c.Routes.LoginPath == "" {
		c.Routes.LoginPath = "/login"
	}
	if c.Routes.DefaultPath == "" {
		c.Routes.DefaultPath = "/dashboard"
	}
	if c.DB.SSLMode == "" && !c.IsProduction() {
		c.DB.SSLMode = "disable"
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL is required"))
	} else if !hasScheme(c.API.BaseURL, "http", "https") {
		errs = append(errs, fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", c.API.BaseURL))
	}

	switch c.Events.Transport {
	case TransportWebSocket:
		if !hasScheme(c.Events.URL, "ws", "wss") {
			errs = append(errs, fmt.Errorf("EVENTS_URL must be a ws(s) URL when EVENTS_TRANSPORT=websocket, got %q", c.Events.URL))
		}
	case TransportRedis:
		if c.Events.Stream == "" {
			errs = append(errs, errors.New("EVENTS_STREAM is required when EVENTS_TRANSPORT=redis"))
		}
	case TransportPipe:
		if c.IsProduction() {
			errs = append(errs, errors.New("EVENTS_TRANSPORT=pipe is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENTS_TRANSPORT must be one of websocket, redis, pipe, got %q", c.Events.Transport))
	}

	switch c.CredStore.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("CREDSTORE_BACKEND must be one of memory, redis, postgres, got %q", c.CredStore.Backend))
	}
	switch c.Audit.Backend {
	case BackendMemory, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("AUDIT_BACKEND must be one of memory, postgres, got %q", c.Audit.Backend))
	}

	for key, p := range map[string]string{"LOGIN_PATH": c.Routes.LoginPath, "DEFAULT_PATH": c.Routes.DefaultPath} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s must start with /, got %q", key, p))
		}
	}
	if c.Routes.LoginPath != "" && c.Routes.LoginPath == c.Routes.DefaultPath {
		errs = append(errs, errors.New("LOGIN_PATH and DEFAULT_PATH must differ"))
	}

	if c.NeedsRedis() {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required for the redis backend"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.NeedsPostgres() {
		if c.DB.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required for the postgres backend"))
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required for the postgres backend"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required for the postgres backend"))
		}
		if c.DB.SSLMode == "" {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else if !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) IsLocal() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) NeedsRedis() bool {
	return c.CredStore.Backend == BackendRedis || c.Events.Transport == TransportRedis
}

func (c Config) NeedsPostgres() bool {
	return c.CredStore.Backend == BackendPostgres || c.Audit.Backend == BackendPostgres
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func optionalInt(errs []error, key string, def int) (int, []error) {
	v := env(key)
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func hasScheme(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
