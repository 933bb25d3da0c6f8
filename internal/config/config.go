package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConfigRelPath = ".apispec/config.yaml"

type OracleConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

type JobsConfig struct {
	Workers              int `yaml:"workers"`
	RetentionMinutes     int `yaml:"retention_minutes"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type ArchiveConfig struct {
	// Path to the sqlite archive database. Empty disables archiving.
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Oracle  OracleConfig  `yaml:"oracle"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Archive ArchiveConfig `yaml:"archive"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigRelPath)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = "https://api.openai.com/v1"
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "gpt-4o"
	}
	if c.Oracle.MaxTokens == 0 {
		c.Oracle.MaxTokens = 8192
	}
	if c.Oracle.Temperature == 0 {
		c.Oracle.Temperature = 0.2
	}
	if c.Oracle.TopP == 0 {
		c.Oracle.TopP = 1.0
	}
	if c.Oracle.TimeoutSeconds == 0 {
		c.Oracle.TimeoutSeconds = 120
	}
	if c.Oracle.RequestsPerSecond == 0 {
		c.Oracle.RequestsPerSecond = 2
	}
	if c.Fetch.TimeoutSeconds == 0 {
		c.Fetch.TimeoutSeconds = 30
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "apispec/1.0"
	}
	if c.Jobs.Workers == 0 {
		c.Jobs.Workers = 5
	}
	if c.Jobs.RetentionMinutes == 0 {
		c.Jobs.RetentionMinutes = 5
	}
	if c.Jobs.SweepIntervalSeconds == 0 {
		c.Jobs.SweepIntervalSeconds = 60
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Oracle.BaseURL) == "" {
		return errors.New("oracle.base_url cannot be empty")
	}
	if c.Jobs.Workers < 1 {
		return errors.New("jobs.workers must be at least 1")
	}
	return nil
}

// ValidateScrape enforces requirements for commands that call the oracle.
func (c *Config) ValidateScrape() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Oracle.APIKey) == "" {
		return errors.New("oracle.api_key cannot be empty")
	}
	return nil
}

func applyEnvOverrides(c *Config) {
	setString(&c.Oracle.APIKey, "APISPEC_ORACLE_API_KEY")
	setString(&c.Oracle.BaseURL, "APISPEC_ORACLE_BASE_URL")
	setString(&c.Oracle.Model, "APISPEC_ORACLE_MODEL")
	setInt(&c.Oracle.MaxTokens, "APISPEC_ORACLE_MAX_TOKENS")
	setFloat(&c.Oracle.Temperature, "APISPEC_ORACLE_TEMPERATURE")
	setFloat(&c.Oracle.TopP, "APISPEC_ORACLE_TOP_P")
	setInt(&c.Oracle.TimeoutSeconds, "APISPEC_ORACLE_TIMEOUT_SECONDS")
	setInt(&c.Fetch.TimeoutSeconds, "APISPEC_FETCH_TIMEOUT_SECONDS")
	setInt(&c.Jobs.Workers, "APISPEC_JOBS_WORKERS")
	setInt(&c.Jobs.RetentionMinutes, "APISPEC_JOBS_RETENTION_MINUTES")
	setString(&c.Archive.Path, "APISPEC_ARCHIVE_PATH")
	setString(&c.Server.Host, "APISPEC_SERVER_HOST")
	setInt(&c.Server.Port, "APISPEC_SERVER_PORT")
	setString(&c.Log.Level, "APISPEC_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}
