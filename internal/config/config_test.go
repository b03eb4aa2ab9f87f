package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate.
func validConfig() Config {
	return Config{
		Port:                  "8081",
		RateLimitPerMinute:    60,
		LogFormat:             "text",
		UsersBackend:          "memory",
		UsersCacheTTL:         time.Minute,
		EventsBackend:         "none",
		CompletionProvider:    "gemini",
		CompletionAPIKey:      "key",
		CompletionModel:       "gemini-1.5-pro",
		CompletionTemperature: 0.5,
		CompletionTopP:        0.95,
		CompletionMaxTokens:   8192,
		CompletionTimeout:     time.Minute,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantErr     bool
		errorString string
	}{
		{
			name:    "valid memory config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range high",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "negative audit report interval",
			mutate:      func(c *Config) { c.AuditReportInterval = -time.Second },
			wantErr:     true,
			errorString: "invalid audit report interval -1s",
		},
		{
			name:        "invalid users backend",
			mutate:      func(c *Config) { c.UsersBackend = "mongo" },
			wantErr:     true,
			errorString: "invalid users backend 'mongo'",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.LogFormat = "xml" },
			wantErr:     true,
			errorString: "invalid log format 'xml'",
		},
		{
			name: "postgres backend needs DATABASE_URL",
			mutate: func(c *Config) {
				c.UsersBackend = "postgres"
			},
			wantErr:     true,
			errorString: "DATABASE_URL is required",
		},
		{
			name: "postgres backend rejects other schemes",
			mutate: func(c *Config) {
				c.UsersBackend = "postgres"
				c.DatabaseURL = "mysql://localhost/db"
			},
			wantErr:     true,
			errorString: "invalid DATABASE_URL scheme 'mysql'",
		},
		{
			name: "valid postgres backend",
			mutate: func(c *Config) {
				c.UsersBackend = "postgres"
				c.DatabaseURL = "postgres://u:p@localhost:5432/bilancio?sslmode=disable"
			},
			wantErr: false,
		},
		{
			name: "sheets backend without credentials",
			mutate: func(c *Config) {
				c.UsersBackend = "sheets"
				c.GoogleUsersSheetName = "Users"
			},
			wantErr:     true,
			errorString: "Google Spreadsheet ID is required",
		},
		{
			name: "amqp events with wrong scheme",
			mutate: func(c *Config) {
				c.EventsBackend = "amqp"
				c.AMQPURL = "http://localhost:5672"
				c.AMQPExchange = "bilancio"
				c.AMQPQueue = "q"
			},
			wantErr:     true,
			errorString: "invalid AMQP URL scheme 'http'",
		},
		{
			name: "nats events need a subject",
			mutate: func(c *Config) {
				c.EventsBackend = "nats"
				c.NATSURL = "nats://localhost:4222"
			},
			wantErr:     true,
			errorString: "NATS subject cannot be empty",
		},
		{
			name:        "gemini needs an api key",
			mutate:      func(c *Config) { c.CompletionAPIKey = "" },
			wantErr:     true,
			errorString: "API key (COMPLETION_API_KEY) is required for the gemini provider",
		},
		{
			name: "ollama runs without a key",
			mutate: func(c *Config) {
				c.CompletionProvider = "ollama"
				c.CompletionAPIKey = ""
			},
			wantErr: false,
		},
		{
			name: "completion settings ignored when disabled",
			mutate: func(c *Config) {
				c.CompletionProvider = "none"
				c.CompletionAPIKey = ""
				c.CompletionTopP = 0
				c.CompletionTimeout = 0
			},
			wantErr: false,
		},
		{
			name:        "temperature out of range",
			mutate:      func(c *Config) { c.CompletionTemperature = 3 },
			wantErr:     true,
			errorString: "invalid completion temperature 3",
		},
		{
			name:        "timeout too short",
			mutate:      func(c *Config) { c.CompletionTimeout = 10 * time.Millisecond },
			wantErr:     true,
			errorString: "invalid completion timeout",
		},
		{
			name:        "rate limit must be positive",
			mutate:      func(c *Config) { c.RateLimitPerMinute = 0 },
			wantErr:     true,
			errorString: "invalid rate limit 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errorString)
				}
				if !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("expected error containing %q, got %q", tt.errorString, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_ValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Port = "abc"
	cfg.UsersBackend = "mongo"
	cfg.EventsBackend = "kafka"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"invalid port", "invalid users backend", "invalid events backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %q", want, err.Error())
		}
	}
}

func TestConfig_ValidateCreatesSQLiteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := validConfig()
	cfg.UsersBackend = "sqlite"
	cfg.SQLiteDBPath = filepath.Join(dir, "bilancio.db")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory to be created: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "LOG_FORMAT", "USERS_BACKEND", "EVENTS_BACKEND",
		"COMPLETION_PROVIDER", "COMPLETION_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY",
		"COMPLETION_MODEL", "COMPLETION_TEMPERATURE", "SEED_DEMO", "DEFAULT_PROMPT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8081" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.UsersBackend != "memory" || cfg.EventsBackend != "none" {
		t.Errorf("backends = %q/%q", cfg.UsersBackend, cfg.EventsBackend)
	}
	if cfg.CompletionProvider != "none" {
		t.Errorf("provider without key = %q, want none", cfg.CompletionProvider)
	}
	if cfg.CompletionModel != "gemini-1.5-pro" || cfg.CompletionTemperature != 0.5 || cfg.CompletionMaxTokens != 8192 {
		t.Errorf("generation defaults = %q %v %d", cfg.CompletionModel, cfg.CompletionTemperature, cfg.CompletionMaxTokens)
	}
	if !cfg.SeedDemo {
		t.Error("SeedDemo should default to true")
	}
	if cfg.DefaultPrompt != DefaultPrompt {
		t.Errorf("DefaultPrompt = %q", cfg.DefaultPrompt)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("COMPLETION_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("COMPLETION_PROVIDER", "")
	t.Setenv("COMPLETION_TIMEOUT", "15s")
	t.Setenv("COMPLETION_TOP_P", "0.8")
	t.Setenv("SEED_DEMO", "false")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")

	cfg := Load()
	if cfg.CompletionProvider != "gemini" || cfg.CompletionAPIKey != "g-key" {
		t.Errorf("provider/key = %q/%q", cfg.CompletionProvider, cfg.CompletionAPIKey)
	}
	if cfg.CompletionTimeout != 15*time.Second {
		t.Errorf("timeout = %v", cfg.CompletionTimeout)
	}
	if cfg.CompletionTopP != 0.8 {
		t.Errorf("top_p = %v", cfg.CompletionTopP)
	}
	if cfg.SeedDemo {
		t.Error("SeedDemo should be false")
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Errorf("unparsable int should fall back to default, got %d", cfg.RateLimitPerMinute)
	}
}
