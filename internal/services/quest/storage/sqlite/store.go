package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/questworld/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/questworld/internal/services/quest/domain/template"
	"github.com/louisbranch/questworld/internal/services/quest/storage"
	"github.com/louisbranch/questworld/internal/services/quest/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements template persistence over SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.TemplateStore = (*Store)(nil)

// Open opens the template database at path, creating parent directories,
// and applies bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const listTemplatesQuery = `
SELECT id, name, description, version, status, category, tags, author, definition,
       created_at, updated_at, published_at
FROM quest_templates
ORDER BY updated_at DESC, id ASC;
`

// ListTemplates loads every template record.
func (s *Store) ListTemplates(ctx context.Context) ([]template.Template, error) {
	rows, err := s.sqlDB.QueryContext(ctx, listTemplatesQuery)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []template.Template
	for rows.Next() {
		var (
			row         templateRow
			publishedAt sql.NullInt64
		)
		if err := rows.Scan(
			&row.ID, &row.Name, &row.Description, &row.Version, &row.Status, &row.Category,
			&row.Tags, &row.Author, &row.Definition, &row.CreatedAt, &row.UpdatedAt, &publishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if publishedAt.Valid {
			row.PublishedAt = &publishedAt.Int64
		}
		tpl, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

const putTemplateQuery = `
INSERT INTO quest_templates (
    id, name, description, version, status, category, tags, author, definition,
    created_at, updated_at, published_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    version = excluded.version,
    status = excluded.status,
    category = excluded.category,
    tags = excluded.tags,
    author = excluded.author,
    definition = excluded.definition,
    updated_at = excluded.updated_at,
    published_at = excluded.published_at;
`

// PutTemplate inserts or replaces a template record.
func (s *Store) PutTemplate(ctx context.Context, t template.Template) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("template id is required")
	}
	row, err := fromDomain(t)
	if err != nil {
		return err
	}
	var publishedAt any
	if row.PublishedAt != nil {
		publishedAt = *row.PublishedAt
	}
	if _, err := s.sqlDB.ExecContext(ctx, putTemplateQuery,
		row.ID, row.Name, row.Description, row.Version, row.Status, row.Category,
		row.Tags, row.Author, row.Definition, row.CreatedAt, row.UpdatedAt, publishedAt,
	); err != nil {
		return fmt.Errorf("put template %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTemplate removes a template record. Missing records yield
// storage.ErrNotFound.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM quest_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type templateRow struct {
	ID          string
	Name        string
	Description string
	Version     string
	Status      string
	Category    string
	Tags        string
	Author      string
	Definition  string
	CreatedAt   int64
	UpdatedAt   int64
	PublishedAt *int64
}

func fromDomain(t template.Template) (templateRow, error) {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return templateRow{}, fmt.Errorf("encode tags: %w", err)
	}
	definition, err := json.Marshal(t.Quest)
	if err != nil {
		return templateRow{}, fmt.Errorf("encode quest definition: %w", err)
	}
	row := templateRow{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Version:     t.Version,
		Status:      string(t.Status),
		Category:    t.Category,
		Tags:        string(tagsJSON),
		Author:      t.Author,
		Definition:  string(definition),
		CreatedAt:   toMillis(t.CreatedAt),
		UpdatedAt:   toMillis(t.UpdatedAt),
	}
	if t.PublishedAt != nil {
		ms := toMillis(*t.PublishedAt)
		row.PublishedAt = &ms
	}
	return row, nil
}

func (r templateRow) toDomain() (template.Template, error) {
	status, ok := template.ParseStatus(r.Status)
	if !ok {
		return template.Template{}, fmt.Errorf("template %s: unknown status %q", r.ID, r.Status)
	}
	var tags []string
	if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
		return template.Template{}, fmt.Errorf("template %s: decode tags: %w", r.ID, err)
	}
	var def template.Definition
	if err := json.Unmarshal([]byte(r.Definition), &def); err != nil {
		return template.Template{}, fmt.Errorf("template %s: decode quest definition: %w", r.ID, err)
	}
	t := template.Template{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Version:     r.Version,
		Status:      status,
		Category:    r.Category,
		Tags:        tags,
		Author:      r.Author,
		Quest:       def,
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
	if r.PublishedAt != nil {
		at := fromMillis(*r.PublishedAt)
		t.PublishedAt = &at
	}
	return t, nil
}
