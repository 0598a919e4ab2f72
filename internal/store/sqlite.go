package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"formless/pkg/formless"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_items (
	id     TEXT PRIMARY KEY,
	intent TEXT NOT NULL UNIQUE,
	value  TEXT NOT NULL,
	kind   TEXT NOT NULL
);
`

// SQLiteStore keeps memory items in a single-table SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("new sqlite store: empty path")
	}

	if dir := filepath.Dir(trimmedPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("new sqlite store mkdir %s: %w", dir, err)
		}
	}

	dsn := trimmedPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("new sqlite store open %s: %w", trimmedPath, err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("new sqlite store migrate %s: %w", trimmedPath, err)
	}

	return &SQLiteStore{db: db}, nil
}

// ListAll returns every stored item in insertion order.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]formless.MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, intent, value, kind FROM memory_items ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store list all: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ListByIntents returns the items whose intent appears in intents, in insertion order.
func (s *SQLiteStore) ListByIntents(ctx context.Context, intents []string) ([]formless.MemoryItem, error) {
	wanted := intentSet(intents)
	if len(wanted) == 0 {
		return []formless.MemoryItem{}, nil
	}

	placeholders := make([]string, 0, len(wanted))
	args := make([]any, 0, len(wanted))
	for intent := range wanted {
		placeholders = append(placeholders, "?")
		args = append(args, intent)
	}

	query := fmt.Sprintf(
		`SELECT id, intent, value, kind FROM memory_items WHERE intent IN (%s) ORDER BY rowid`,
		strings.Join(placeholders, ","),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store list by intents: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// Get returns one item by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (formless.MemoryItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, intent, value, kind FROM memory_items WHERE id = ?`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return formless.MemoryItem{}, fmt.Errorf("sqlite store get %s: %w", id, formless.ErrItemNotFound)
	}
	if err != nil {
		return formless.MemoryItem{}, fmt.Errorf("sqlite store get: %w", err)
	}

	return item, nil
}

// Create stores a new item with a freshly assigned UUID.
func (s *SQLiteStore) Create(ctx context.Context, draft formless.MemoryDraft) (formless.MemoryItem, error) {
	if err := draft.Validate(); err != nil {
		return formless.MemoryItem{}, fmt.Errorf("sqlite store create: %w", err)
	}

	item := formless.MemoryItem{
		ID:     uuid.NewString(),
		Intent: draft.Intent,
		Value:  draft.Value,
		Kind:   draft.Kind,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_items (id, intent, value, kind) VALUES (?, ?, ?, ?)`,
		item.ID, item.Intent, item.Value, string(item.Kind),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return formless.MemoryItem{}, fmt.Errorf("sqlite store create intent %q: %w", draft.Intent, formless.ErrDuplicateIntent)
		}
		return formless.MemoryItem{}, fmt.Errorf("sqlite store create: %w", err)
	}

	return item, nil
}

// Update replaces the content of an existing item, keeping its ID.
func (s *SQLiteStore) Update(ctx context.Context, id string, draft formless.MemoryDraft) (formless.MemoryItem, error) {
	if err := draft.Validate(); err != nil {
		return formless.MemoryItem{}, fmt.Errorf("sqlite store update: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE memory_items SET intent = ?, value = ?, kind = ? WHERE id = ?`,
		draft.Intent, draft.Value, string(draft.Kind), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return formless.MemoryItem{}, fmt.Errorf("sqlite store update intent %q: %w", draft.Intent, formless.ErrDuplicateIntent)
		}
		return formless.MemoryItem{}, fmt.Errorf("sqlite store update: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return formless.MemoryItem{}, fmt.Errorf("sqlite store update rows affected: %w", err)
	}
	if affected == 0 {
		return formless.MemoryItem{}, fmt.Errorf("sqlite store update %s: %w", id, formless.ErrItemNotFound)
	}

	return formless.MemoryItem{
		ID:     id,
		Intent: draft.Intent,
		Value:  draft.Value,
		Kind:   draft.Kind,
	}, nil
}

// Delete removes one item by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite store delete: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store delete rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sqlite store delete %s: %w", id, formless.ErrItemNotFound)
	}

	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite store close: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (formless.MemoryItem, error) {
	var item formless.MemoryItem
	var kind string
	if err := row.Scan(&item.ID, &item.Intent, &item.Value, &kind); err != nil {
		return formless.MemoryItem{}, err
	}
	item.Kind = formless.MemoryKind(kind)

	return item, nil
}

func scanItems(rows *sql.Rows) ([]formless.MemoryItem, error) {
	items := make([]formless.MemoryItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory items: %w", err)
	}

	return items, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ formless.MemoryStore = (*SQLiteStore)(nil)
