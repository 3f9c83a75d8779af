// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nlweb-orchestrator/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient holds the pool the memory store writes remembered facts to.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens a pool; nothing is dialled until the first Ping or query.
// Memory writes are small and rare, so unset pool limits default low.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("postgres host and database are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	maxOpen := cfg.MaxConnections
	if maxOpen <= 0 {
		maxOpen = 4
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

func (c *PostgresClient) GetDB() *sql.DB {
	return c.DB
}
