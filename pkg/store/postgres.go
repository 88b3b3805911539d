package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
)

type postgresBackend struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database named by dsn and migrates its schema.
// Definitions are stored as jsonb.
func OpenPostgres(ctx context.Context, dsn string) (*Templates, error) {
	if dsn == "" {
		return nil, errors.New("postgres: connection string is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	b := &postgresBackend{pool: pool}
	if err := b.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return newTemplates(b), nil
}

func (b *postgresBackend) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_templates (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_system BOOLEAN NOT NULL DEFAULT false,
			definition JSONB NOT NULL DEFAULT '{"steps":[],"edges":[]}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_templates_system_created
			ON pipeline_templates (is_system DESC, created_at DESC)`,
	}
	for _, q := range queries {
		if _, err := b.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}
	return nil
}

const postgresColumns = `id::text, name, description, is_system, definition, created_at, updated_at`

func (b *postgresBackend) list(ctx context.Context) ([]definition.Template, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT `+postgresColumns+` FROM pipeline_templates ORDER BY is_system DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []definition.Template
	for rows.Next() {
		t, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (b *postgresBackend) get(ctx context.Context, id string) (*definition.Template, error) {
	row := b.pool.QueryRow(ctx,
		`SELECT `+postgresColumns+` FROM pipeline_templates WHERE id::text = $1`, id)
	t, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (b *postgresBackend) insert(ctx context.Context, t *definition.Template) error {
	def, err := json.Marshal(t.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = b.pool.Exec(ctx,
		`INSERT INTO pipeline_templates (id, name, description, is_system, definition, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5::jsonb, $6, $7)`,
		t.ID, t.Name, t.Description, t.IsSystem, string(def), t.CreatedAt, t.UpdatedAt)
	return err
}

func (b *postgresBackend) replace(ctx context.Context, t *definition.Template) error {
	def, err := json.Marshal(t.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	tag, err := b.pool.Exec(ctx,
		`UPDATE pipeline_templates
		SET name = $2, description = $3, is_system = $4, definition = $5::jsonb, updated_at = $6
		WHERE id::text = $1`,
		t.ID, t.Name, t.Description, t.IsSystem, string(def), t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *postgresBackend) upsert(ctx context.Context, t *definition.Template) error {
	def, err := json.Marshal(t.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = b.pool.Exec(ctx,
		`INSERT INTO pipeline_templates (id, name, description, is_system, definition, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			is_system = EXCLUDED.is_system,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at`,
		t.ID, t.Name, t.Description, t.IsSystem, string(def), t.CreatedAt, t.UpdatedAt)
	return err
}

func (b *postgresBackend) remove(ctx context.Context, id string) error {
	tag, err := b.pool.Exec(ctx, `DELETE FROM pipeline_templates WHERE id::text = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *postgresBackend) close() error {
	b.pool.Close()
	return nil
}

func scanPostgres(r pgx.Row) (*definition.Template, error) {
	var (
		t   definition.Template
		def []byte
	)
	if err := r.Scan(&t.ID, &t.Name, &t.Description, &t.IsSystem, &def, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(def, &t.Definition); err != nil {
		return nil, fmt.Errorf("template %q: decode definition: %w", t.ID, err)
	}
	return &t, nil
}
