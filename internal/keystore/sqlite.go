package keystore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite reads keys from a SQLite database containing a table
// api_keys(key TEXT). Rows are returned in table order.
type SQLite struct {
	path string
}

// NewSQLite builds a SQLite source for the given database path.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Resolve opens the database read-only and selects every key.
func (s *SQLite) Resolve(ctx context.Context) ([]string, error) {
	// The file: form is required: the driver drops ?options from plain-path
	// DSNs and would open read-write, creating a missing database file.
	db, err := sql.Open("sqlite3", "file:"+s.path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open key database %s: %w", s.path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT key FROM api_keys")
	if err != nil {
		return nil, fmt.Errorf("query key database %s: %w", s.path, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key rows: %w", err)
	}
	return normalize(keys), nil
}

// Name implements Source.
func (s *SQLite) Name() string { return "sqlite" }
