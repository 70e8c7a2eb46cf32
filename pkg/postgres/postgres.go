package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config binds DATABASE_* variables. An empty URL selects the bundled seed data.
type Config struct {
	URL      string `split_words:"true"`
	MaxConns int32  `split_words:"true" default:"10"`
	MinConns int32  `split_words:"true" default:"2"`
}

// Enabled reports whether a database URL was configured.
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// New opens a pgx pool and verifies connectivity.
func (c *Config) New(ctx context.Context) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if c.MaxConns > 0 {
		poolCfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		poolCfg.MinConns = c.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
