// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
)

// Supported database drivers.
const (
	DriverPostgres  = "postgres"
	DriverSnowflake = "snowflake"
)

// DBConfig describes one database connection. The password is either given
// literally or named indirectly through PasswordEnv and filled in at load
// time.
type DBConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Database string `json:"database"`

	Password    string `json:"password"`
	PasswordEnv string `json:"password_env"`

	// PostgreSQL
	SSLMode string `json:"sslmode"`

	// Snowflake
	Account   string `json:"account"`
	Warehouse string `json:"warehouse"`
	Role      string `json:"role"`
	Schema    string `json:"schema"`

	// Connection pool settings
	MaxOpenConns           int `json:"max_open_conns"`
	MaxIdleConns           int `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `json:"conn_max_idle_time_seconds"`
}

func (c *DBConfig) applyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.Port == 0 && c.Driver == DriverPostgres {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetimeSeconds <= 0 {
		c.ConnMaxLifetimeSeconds = 1800
	}
	if c.ConnMaxIdleTimeSeconds <= 0 {
		c.ConnMaxIdleTimeSeconds = 600
	}
}

// resolvePassword fills Password from PasswordEnv when no literal is given.
func (c *DBConfig) resolvePassword() error {
	if c.Password != "" {
		return nil
	}

	if c.PasswordEnv == "" {
		return errors.New("either password or password_env must be set")
	}

	c.Password = os.Getenv(c.PasswordEnv)
	if c.Password == "" {
		return fmt.Errorf("environment variable %s is not set", c.PasswordEnv)
	}

	return nil
}

func (c *DBConfig) validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.Host == "" {
			return errors.New("host is required")
		}
	case DriverSnowflake:
		if c.Account == "" {
			return errors.New("account is required for snowflake")
		}
		if c.Warehouse == "" {
			return errors.New("warehouse is required for snowflake")
		}
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}

	if c.User == "" {
		return errors.New("user is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}

	return nil
}

// ConnMaxLifetime returns the pool lifetime as a duration.
func (c *DBConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// ConnMaxIdleTime returns the pool idle time as a duration.
func (c *DBConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(c.ConnMaxIdleTimeSeconds) * time.Second
}

// PostgresDSN returns a formatted PostgreSQL connection string.
func (c *DBConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

// SnowflakeDSN returns a DSN built with Snowflake's own builder.
func (c *DBConfig) SnowflakeDSN() (string, error) {
	cfg := &sf.Config{
		Account:   c.Account,
		User:      c.User,
		Password:  c.Password,
		Database:  c.Database,
		Schema:    c.Schema,
		Warehouse: c.Warehouse,
		Role:      c.Role,
	}

	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}
	return dsn, nil
}
