package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
)

type sqliteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// migrates its schema.
func OpenSQLite(path string) (*Templates, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; sqlite serialises them anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	b := &sqliteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return newTemplates(b), nil
}

func (b *sqliteBackend) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_system BOOLEAN NOT NULL DEFAULT 0,
			definition TEXT NOT NULL DEFAULT '{"steps":[],"edges":[]}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_templates_system_created
			ON pipeline_templates (is_system DESC, created_at DESC)`,
	}
	for _, q := range queries {
		if _, err := b.db.Exec(q); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}
	return nil
}

const sqliteColumns = `id, name, description, is_system, definition, created_at, updated_at`

func (b *sqliteBackend) list(ctx context.Context) ([]definition.Template, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM pipeline_templates ORDER BY is_system DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []definition.Template
	for rows.Next() {
		t, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) get(ctx context.Context, id string) (*definition.Template, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM pipeline_templates WHERE id = ?`, id)
	t, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (b *sqliteBackend) insert(ctx context.Context, t *definition.Template) error {
	def, err := json.Marshal(t.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO pipeline_templates (`+sqliteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, t.IsSystem, string(def), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

func (b *sqliteBackend) replace(ctx context.Context, t *definition.Template) error {
	def, err := json.Marshal(t.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	res, err := b.db.ExecContext(ctx,
		`UPDATE pipeline_templates SET name = ?, description = ?, is_system = ?, definition = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Description, t.IsSystem, string(def), formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (b *sqliteBackend) upsert(ctx context.Context, t *definition.Template) error {
	def, err := json.Marshal(t.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO pipeline_templates (`+sqliteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			is_system = excluded.is_system,
			definition = excluded.definition,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, t.Description, t.IsSystem, string(def), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

func (b *sqliteBackend) remove(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM pipeline_templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (b *sqliteBackend) close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(r rowScanner) (*definition.Template, error) {
	var (
		t                definition.Template
		def              string
		created, updated string
	)
	if err := r.Scan(&t.ID, &t.Name, &t.Description, &t.IsSystem, &def, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(def), &t.Definition); err != nil {
		return nil, fmt.Errorf("template %q: decode definition: %w", t.ID, err)
	}
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("template %q: created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("template %q: updated_at: %w", t.ID, err)
	}
	return &t, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
