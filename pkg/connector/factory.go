// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"github.com/David-Botos/data-egress/pkg/config"
	"github.com/David-Botos/data-egress/pkg/retry"
)

// Connect dials the database described by cfg under the given retry policy.
// Connectivity and authentication failures are retried up to the policy's
// attempt budget before being surfaced to the caller.
func Connect(ctx context.Context, cfg *config.DBConfig, policy retry.Policy) (DatabaseConnector, error) {
	var conn DatabaseConnector

	err := policy.Do(ctx, func() error {
		c, err := open(ctx, cfg)
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			c.Close()
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s database %s: %w", cfg.Driver, cfg.Database, err)
	}

	return conn, nil
}

func open(ctx context.Context, cfg *config.DBConfig) (DatabaseConnector, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresConnector(ctx, cfg)
	case config.DriverSnowflake:
		return NewSnowflakeConnector(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
