package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"nlweb-orchestrator/internal/models"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store appends remembered facts to a Postgres table.
type Store struct {
	db    *sql.DB
	table string
}

func New(db *sql.DB, table string) (*Store, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid memory table name %q", table)
	}
	return &Store{db: db, table: table}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		query_id TEXT NOT NULL,
		site TEXT NOT NULL DEFAULT '',
		fact TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table))
	if err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) Persist(ctx context.Context, fact models.MemoryFact) error {
	createdAt := fact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (query_id, site, fact, created_at) VALUES ($1, $2, $3, $4)`, s.table),
		fact.QueryID, fact.Site, fact.Fact, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert memory fact: %w", err)
	}
	return nil
}

// Recent returns the newest facts for a site, newest first.
func (s *Store) Recent(ctx context.Context, site string, limit int) ([]models.MemoryFact, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT query_id, site, fact, created_at FROM %s WHERE site = $1 ORDER BY created_at DESC LIMIT $2`, s.table),
		site, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memory facts: %w", err)
	}
	defer rows.Close()

	var out []models.MemoryFact
	for rows.Next() {
		var f models.MemoryFact
		if err := rows.Scan(&f.QueryID, &f.Site, &f.Fact, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
