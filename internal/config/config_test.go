package config

import (
	"strings"
	"testing"
)

func validLocal() Config {
	c := Config{
		App:    AppConfig{Env: "local", Port: 8090},
		API:    APIConfig{BaseURL: "http://127.0.0.1:8000/api/"},
		Events: EventsConfig{URL: "ws://127.0.0.1:8000/ws/events/"},
	}
	c.ApplyDefaults()
	return c
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV is required", "API_BASE_URL is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Events.Transport != TransportWebSocket || c.Events.Name != "bot_update" {
		t.Fatalf("unexpected events defaults: %+v", c.Events)
	}
	if c.CredStore.Backend != BackendMemory || c.CredStore.Profile != "default" {
		t.Fatalf("unexpected credstore defaults: %+v", c.CredStore)
	}
	if c.Routes.LoginPath != "/login" || c.Routes.DefaultPath != "/dashboard" {
		t.Fatalf("unexpected route defaults: %+v", c.Routes)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_WebSocketNeedsURL(t *testing.T) {
	c := validLocal()
	c.Events.URL = "http://127.0.0.1:8000/ws/"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "EVENTS_URL") {
		t.Fatalf("expected EVENTS_URL error, got %v", err)
	}
}

func TestValidate_PipeNotInProduction(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Events.Transport = TransportPipe
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for pipe transport in production")
	}
}

func TestValidate_PostgresBackendRequiresDB(t *testing.T) {
	c := validLocal()
	c.CredStore.Backend = BackendPostgres
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_HOST") {
		t.Fatalf("expected DB_HOST error, got %v", err)
	}

	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "autodl", SSLMode: "disable"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "production", Port: 8090},
		API:    APIConfig{BaseURL: "https://api.example.com/api/"},
		Events: EventsConfig{URL: "wss://api.example.com/ws/events/"},
		Audit:  AuditConfig{Backend: BackendPostgres},
		DB:     DBConfig{Host: "db", Port: 5432, User: "console", Name: "autodl"},
	}
	c.ApplyDefaults()
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestValidate_RedisTransportRequiresRedis(t *testing.T) {
	c := validLocal()
	c.Events.Transport = TransportRedis
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "REDIS_HOST") {
		t.Fatalf("expected REDIS_HOST error, got %v", err)
	}
	c.Redis = RedisConfig{Host: "localhost", Port: 6379}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("API_BASE_URL", "http://127.0.0.1:8000/api/")
	t.Setenv("EVENTS_TRANSPORT", "pipe")
	t.Setenv("CREDSTORE_PROFILE", "ops")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 9000 || c.HTTPAddr() != ":9000" {
		t.Fatalf("unexpected port: %d", c.App.Port)
	}
	if c.CredStore.Profile != "ops" || c.Events.Transport != TransportPipe {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestLoad_RejectsNonIntegerPort(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("API_BASE_URL", "http://127.0.0.1:8000/api/")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error")
	}
}
