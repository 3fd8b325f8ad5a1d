package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := readFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("readFile() failed: %v", err)
	}
	if cfg.Port != ":8080" || cfg.LLMBackend != "vertex" || cfg.ReconcileInterval != time.Minute {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestSaveToAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.GoogleCloudProject = "proj"
	cfg.Archive.Endpoint = "minio:9000"

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}
	got, err := readFile(path)
	if err != nil {
		t.Fatalf("readFile() failed: %v", err)
	}
	if got.GoogleCloudProject != "proj" || got.Archive.Endpoint != "minio:9000" {
		t.Errorf("Round trip lost values: %+v", got)
	}
}

func TestReadFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := readFile(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                 "9090",
		"DATABASE_URL":         "postgres://localhost/db",
		"LLM_BACKEND":          "gemini",
		"GEMINI_API_KEY":       "key",
		"ARCHIVE_S3_ENDPOINT":  "minio:9000",
		"ARCHIVE_S3_USE_SSL":   "true",
		"RECONCILE_INTERVAL":   "30s",
		"GOOGLE_CLOUD_PROJECT": "   ",
	}
	cfg := DefaultConfig()
	cfg.GoogleCloudProject = "from-file"
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Port gets colon", cfg.Port, ":9090"},
		{"Database URL", cfg.DatabaseURL, "postgres://localhost/db"},
		{"Backend", cfg.LLMBackend, "gemini"},
		{"Archive endpoint", cfg.Archive.Endpoint, "minio:9000"},
		{"Archive SSL", cfg.Archive.UseSSL, true},
		{"Reconcile interval", cfg.ReconcileInterval, 30 * time.Second},
		{"Blank env keeps file value", cfg.GoogleCloudProject, "from-file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "Vertex without project", mutate: func(c *Config) {}, wantErr: true},
		{name: "Vertex with project", mutate: func(c *Config) { c.GoogleCloudProject = "p" }},
		{name: "Gemini without key", mutate: func(c *Config) { c.LLMBackend = "gemini" }, wantErr: true},
		{name: "Gemini with key", mutate: func(c *Config) { c.LLMBackend = "gemini"; c.GeminiAPIKey = "k" }},
		{name: "Fake backend", mutate: func(c *Config) { c.LLMBackend = "fake" }},
		{name: "Unknown backend", mutate: func(c *Config) { c.LLMBackend = "other" }, wantErr: true},
		{
			name:    "Archive without keys",
			mutate:  func(c *Config) { c.LLMBackend = "fake"; c.Archive.Endpoint = "minio:9000" },
			wantErr: true,
		},
		{
			name:    "Missing gmail credentials",
			mutate:  func(c *Config) { c.LLMBackend = "fake"; c.GmailCredentialsPath = "/nonexistent/credentials.json" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
