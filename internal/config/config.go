// Package config loads the interview agent's settings from a JSON file,
// an optional .env file and the environment, in that order of precedence
// (environment wins).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        string `json:"port"`
	LogLevel    string `json:"log_level"`
	DatabaseURL string `json:"database_url"`
	SeedFile    string `json:"seed_file"`
	AppURL      string `json:"app_url"`

	LLMBackend            string `json:"llm_backend"`
	LLMModel              string `json:"llm_model"`
	GoogleCloudProject    string `json:"google_cloud_project"`
	GoogleCloudLocation   string `json:"google_cloud_location"`
	GoogleCredentialsPath string `json:"google_credentials_path"`
	GeminiAPIKey          string `json:"gemini_api_key"`

	GmailCredentialsPath string `json:"gmail_credentials_path"`
	GmailTokenPath       string `json:"gmail_token_path"`
	GmailSender          string `json:"gmail_sender"`

	Archive ArchiveConfig `json:"archive"`

	ReconcileInterval time.Duration `json:"reconcile_interval"`
}

// ArchiveConfig configures the optional transcript archive bucket
type ArchiveConfig struct {
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

// Enabled reports whether an archive endpoint is configured
func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.Endpoint) != ""
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		Port:                ":8080",
		LogLevel:            "info",
		AppURL:              "http://localhost:8080",
		LLMBackend:          "vertex",
		GoogleCloudLocation: "us-central1",
		GmailTokenPath:      "token.json",
		Archive:             ArchiveConfig{Region: "us-east-1", Bucket: "interview-transcripts"},
		ReconcileInterval:   time.Minute,
	}
}

// GetConfigPath returns the path to the configuration file
// On Windows: %APPDATA%/VoiceInterviewAgent/config.json
// On Unix: ~/.config/VoiceInterviewAgent/config.json
func GetConfigPath() (string, error) {
	var configDir string

	if os.Getenv("APPDATA") != "" {
		configDir = filepath.Join(os.Getenv("APPDATA"), "VoiceInterviewAgent")
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "VoiceInterviewAgent")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load loads configuration from the default config path, .env and the environment
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFrom(configPath)
}

// LoadFrom loads configuration from a specific path, then applies .env and
// environment overrides
func LoadFrom(path string) (*Config, error) {
	config, err := readFile(path)
	if err != nil {
		return nil, err
	}

	// A missing .env is normal outside development
	_ = godotenv.Load()

	config.applyEnv(os.LookupEnv)
	return config, nil
}

func readFile(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("PORT", &c.Port)
	if c.Port != "" && !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	str("LOG_LEVEL", &c.LogLevel)
	str("DATABASE_URL", &c.DatabaseURL)
	str("SEED_FILE", &c.SeedFile)
	str("APP_URL", &c.AppURL)

	str("LLM_BACKEND", &c.LLMBackend)
	str("LLM_MODEL", &c.LLMModel)
	str("GOOGLE_CLOUD_PROJECT", &c.GoogleCloudProject)
	str("GOOGLE_CLOUD_LOCATION", &c.GoogleCloudLocation)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.GoogleCredentialsPath)
	str("GEMINI_API_KEY", &c.GeminiAPIKey)

	str("GMAIL_CREDENTIALS_PATH", &c.GmailCredentialsPath)
	str("GMAIL_TOKEN_PATH", &c.GmailTokenPath)
	str("GMAIL_USER", &c.GmailSender)

	str("ARCHIVE_S3_ENDPOINT", &c.Archive.Endpoint)
	str("ARCHIVE_S3_REGION", &c.Archive.Region)
	str("ARCHIVE_S3_ACCESS_KEY", &c.Archive.AccessKey)
	str("ARCHIVE_S3_SECRET_KEY", &c.Archive.SecretKey)
	str("ARCHIVE_S3_BUCKET", &c.Archive.Bucket)
	if v, ok := lookup("ARCHIVE_S3_USE_SSL"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Archive.UseSSL = b
		}
	}

	if v, ok := lookup("RECONCILE_INTERVAL"); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			c.ReconcileInterval = d
		}
	}
}

// Save saves the configuration to the default config path
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	return c.SaveTo(configPath)
}

// SaveTo saves the configuration to a specific path
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLMBackend) {
	case "vertex":
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("google_cloud_project is required for the vertex backend")
		}
		if c.GoogleCloudLocation == "" {
			return fmt.Errorf("google_cloud_location is required for the vertex backend")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required for the gemini backend")
		}
	case "fake":
	default:
		return fmt.Errorf("unknown llm_backend %q", c.LLMBackend)
	}

	if c.GoogleCredentialsPath != "" {
		if _, err := os.Stat(c.GoogleCredentialsPath); err != nil {
			return fmt.Errorf("google credentials file not found: %w", err)
		}
	}

	if c.GmailCredentialsPath != "" {
		if _, err := os.Stat(c.GmailCredentialsPath); err != nil {
			return fmt.Errorf("gmail credentials file not found: %w", err)
		}
	}

	if c.Archive.Enabled() && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		return fmt.Errorf("archive access key and secret key are required when an archive endpoint is set")
	}

	if c.ReconcileInterval < 0 {
		return fmt.Errorf("reconcile_interval must not be negative")
	}

	return nil
}

// ApplyToEnv applies configuration values to environment variables
func (c *Config) ApplyToEnv() {
	if c.GoogleCloudProject != "" {
		os.Setenv("GOOGLE_CLOUD_PROJECT", c.GoogleCloudProject)
	}
	if c.GoogleCloudLocation != "" {
		os.Setenv("GOOGLE_CLOUD_LOCATION", c.GoogleCloudLocation)
	}
	if c.GoogleCredentialsPath != "" {
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsPath)
	}
}
