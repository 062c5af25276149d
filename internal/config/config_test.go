package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		ModelName:        "gemini-2.5-flash",
		Temperature:      0.2,
		MaxTokens:        2048,
		EmbedderModel:    DefaultEmbedderModel,
		EmbeddingDim:     DefaultEmbeddingDim,
		ChunkSize:        1000,
		ChunkOverlap:     200,
		TopK:             8,
		MaxContextChars:  6000,
		StoreBackend:     StorePostgres,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "prva",
		PostgresPassword: "prva_dev_password",
		PostgresDBName:   "prva",
		PostgresSSLMode:  "disable",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	if err := validConfig().Validate(); err == nil {
		t.Error("Validate() without GEMINI_API_KEY expected error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty model name", func(c *Config) { c.ModelName = "" }},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }},
		{"empty embedder model", func(c *Config) { c.EmbedderModel = "" }},
		{"zero embedding dim", func(c *Config) { c.EmbeddingDim = 0 }},
		{"huge embedding dim", func(c *Config) { c.EmbeddingDim = 4096 }},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"overlap >= chunk size", func(c *Config) { c.ChunkOverlap = 1000 }},
		{"zero top_k", func(c *Config) { c.TopK = 0 }},
		{"zero context budget", func(c *Config) { c.MaxContextChars = 0 }},
		{"unknown store backend", func(c *Config) { c.StoreBackend = "redis" }},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }},
		{"bad postgres port", func(c *Config) { c.PostgresPort = 0 }},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }},
		{"empty password", func(c *Config) { c.PostgresPassword = "" }},
		{"short password", func(c *Config) { c.PostgresPassword = "short" }},
		{"deprecated ssl mode", func(c *Config) { c.PostgresSSLMode = "prefer" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}

func TestValidateLocalBackendSkipsPostgres(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg := validConfig()
	cfg.StoreBackend = StoreLocal
	cfg.PostgresHost = ""
	cfg.PostgresPassword = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with local backend error: %v", err)
	}
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"empty", "", ""},
		{"short fully masked", "secret", maskedValue},
		{"exactly 8 fully masked", "12345678", maskedValue},
		{"long keeps edges", "my_long_secret_key_123", "my<" + maskedValue + ">23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := maskSecret(tt.secret); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

func TestMarshalJSONMasksPassword(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if strings.Contains(string(data), "super_secret_password") {
		t.Error("marshaled config leaks the password")
	}
}

func TestStringMasksPassword(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"
	if strings.Contains(cfg.String(), "super_secret_password") {
		t.Error("String() leaks the password")
	}
}
