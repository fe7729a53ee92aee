// pkg/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/David-Botos/data-egress/pkg/mask"
	"github.com/David-Botos/data-egress/pkg/model"
	"github.com/David-Botos/data-egress/pkg/retry"
)

// Config is the full run configuration, loaded once from a JSON file.
// Secrets never live in the file itself: they are resolved through the
// *_env indirections at load time.
type Config struct {
	// Run identity and mode
	EnvName string `json:"env_name"`
	Mode    string `json:"mode"` // "delta" or "full"
	DryRun  bool   `json:"dry_run"`

	// Database connections
	SourceDB DBConfig `json:"source_db"`
	DestDB   DBConfig `json:"dest_db"`

	// Masking
	MaskSalt     string                  `json:"mask_salt"`
	MaskSaltEnv  string                  `json:"mask_salt_env"`
	MaskingRules map[string]mask.RuleSet `json:"masking_rules"`

	// Authorization
	AllowedRunnerRoles []string `json:"allowed_runner_roles"`

	// Tables and watermark state
	Tables    []model.TableSpec `json:"tables"`
	StateFile string            `json:"state_file"`

	// Concurrency
	ParallelTables bool `json:"parallel_tables"`
	MaxWorkers     int  `json:"max_workers"`

	// Retry settings
	ExtractRetries      int `json:"extract_retries"`
	ExtractRetryDelayMS int `json:"extract_retry_delay_ms"`
	LoadRetries         int `json:"load_retries"`
	LoadRetryBaseMS     int `json:"load_retry_base_ms"`
	LoadRetryMaxMS      int `json:"load_retry_max_ms"`
	ConnectRetries      int `json:"connect_retries"`
	ConnectRetryDelayMS int `json:"connect_retry_delay_ms"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// Load reads the JSON configuration at path, applies defaults, resolves
// secret indirections from the environment, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.EnvName == "" {
		c.EnvName = "dev_local"
	}
	if c.Mode == "" {
		c.Mode = "delta"
	}
	if c.StateFile == "" {
		c.StateFile = "state/last_run.json"
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = getEnvAsInt("MAX_WORKERS", 3)
	}
	if c.ExtractRetries <= 0 {
		c.ExtractRetries = 3
	}
	if c.ExtractRetryDelayMS <= 0 {
		c.ExtractRetryDelayMS = 1000
	}
	if c.LoadRetries <= 0 {
		c.LoadRetries = 5
	}
	if c.LoadRetryBaseMS <= 0 {
		c.LoadRetryBaseMS = 1000
	}
	if c.LoadRetryMaxMS <= 0 {
		c.LoadRetryMaxMS = 5000
	}
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 3
	}
	if c.ConnectRetryDelayMS <= 0 {
		c.ConnectRetryDelayMS = 2000
	}
	if c.LogLevel == "" {
		c.LogLevel = getEnv("LOG_LEVEL", "info")
	}
	if c.LogFormat == "" {
		c.LogFormat = getEnv("LOG_FORMAT", "json")
	}

	for i := range c.Tables {
		if c.Tables[i].BatchSize <= 0 {
			c.Tables[i].BatchSize = 500
		}
		if c.Tables[i].WatermarkColumn == "" {
			c.Tables[i].WatermarkColumn = "updated_at"
		}
	}

	c.SourceDB.applyDefaults()
	c.DestDB.applyDefaults()
}

func (c *Config) resolveSecrets() error {
	if err := c.SourceDB.resolvePassword(); err != nil {
		return fmt.Errorf("source_db: %w", err)
	}
	if err := c.DestDB.resolvePassword(); err != nil {
		return fmt.Errorf("dest_db: %w", err)
	}

	if c.MaskSalt == "" && c.MaskSaltEnv != "" {
		c.MaskSalt = os.Getenv(c.MaskSaltEnv)
		if c.MaskSalt == "" {
			return fmt.Errorf("environment variable %s for mask salt is not set", c.MaskSaltEnv)
		}
	}

	return nil
}

// Validate ensures all required configuration is present and valid.
func (c *Config) Validate() error {
	if c.Mode != "delta" && c.Mode != "full" {
		return fmt.Errorf("mode must be \"delta\" or \"full\", got %q", c.Mode)
	}

	if c.MaskSalt == "" {
		return errors.New("mask salt is required (mask_salt or mask_salt_env)")
	}

	if len(c.Tables) == 0 {
		return errors.New("at least one table must be configured")
	}

	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if t.Name == "" {
			return errors.New("every table needs a name")
		}
		if seen[t.Name] {
			return fmt.Errorf("table %s is configured twice", t.Name)
		}
		seen[t.Name] = true
	}

	for table := range c.MaskingRules {
		if !seen[table] {
			return fmt.Errorf("masking rules reference unconfigured table %s", table)
		}
	}

	if err := c.SourceDB.validate(); err != nil {
		return fmt.Errorf("source_db: %w", err)
	}
	if err := c.DestDB.validate(); err != nil {
		return fmt.Errorf("dest_db: %w", err)
	}
	if c.DestDB.Driver != DriverPostgres {
		return fmt.Errorf("dest_db driver must be %s", DriverPostgres)
	}

	return nil
}

// ExtractPolicy returns the fixed-delay policy for source reads.
func (c *Config) ExtractPolicy() retry.Policy {
	return retry.Fixed(c.ExtractRetries, time.Duration(c.ExtractRetryDelayMS)*time.Millisecond)
}

// LoadPolicy returns the exponential-backoff policy for destination writes.
func (c *Config) LoadPolicy() retry.Policy {
	return retry.Exponential(
		c.LoadRetries,
		time.Duration(c.LoadRetryBaseMS)*time.Millisecond,
		time.Duration(c.LoadRetryMaxMS)*time.Millisecond,
	)
}

// ConnectPolicy returns the fixed-delay policy for dialing connections.
func (c *Config) ConnectPolicy() retry.Policy {
	return retry.Fixed(c.ConnectRetries, time.Duration(c.ConnectRetryDelayMS)*time.Millisecond)
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
