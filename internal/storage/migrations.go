package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS entries (
					id TEXT PRIMARY KEY,
					code TEXT UNIQUE NOT NULL,
					user_id TEXT NOT NULL,
					kind TEXT NOT NULL CHECK (kind IN ('income', 'expense')),
					amount TEXT NOT NULL,
					description TEXT NOT NULL,
					category_id INTEGER,
					occurred_at DATETIME NOT NULL,
					channel TEXT NOT NULL DEFAULT 'text',
					confidence REAL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_entries_user_date ON entries(user_id, occurred_at)`,
				`CREATE INDEX idx_entries_code ON entries(code)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					kind TEXT NOT NULL CHECK (kind IN ('income', 'expense')),
					description TEXT,
					is_default INTEGER DEFAULT 0,
					is_active INTEGER DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(name, kind)
				)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Learned user patterns",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS user_patterns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					keywords TEXT NOT NULL,
					kind TEXT NOT NULL CHECK (kind IN ('income', 'expense')),
					category_id INTEGER NOT NULL,
					occurrences INTEGER DEFAULT 1,
					confidence REAL DEFAULT 0.5,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, keywords, kind)
				)`,
				`CREATE INDEX idx_user_patterns_user ON user_patterns(user_id)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Persisted recurring rules",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS recurring_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					description TEXT NOT NULL,
					keywords TEXT NOT NULL,
					kind TEXT NOT NULL CHECK (kind IN ('income', 'expense')),
					frequency TEXT NOT NULL,
					avg_amount TEXT NOT NULL,
					min_amount TEXT,
					max_amount TEXT,
					category_id INTEGER,
					day_of_month INTEGER,
					weekday INTEGER,
					occurrences INTEGER DEFAULT 0,
					last_occurrence DATETIME,
					next_expected DATETIME,
					confidence REAL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, keywords, kind)
				)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// defaultCategories are seeded on first migration so extraction always has a
// category registry to resolve against.
var defaultCategories = []struct {
	name string
	kind string
}{
	{"Food", "expense"},
	{"Transport", "expense"},
	{"Health", "expense"},
	{"Education", "expense"},
	{"Leisure", "expense"},
	{"Housing", "expense"},
	{"Clothing", "expense"},
	{"Other", "expense"},
	{"Salary", "income"},
	{"Freelance", "income"},
	{"Investments", "income"},
	{"Sales", "income"},
	{"Other", "income"},
}

// Migrate applies any outstanding schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}

	return s.seedCategories(ctx)
}

func (s *SQLiteStorage) seedCategories(ctx context.Context) error {
	for _, c := range defaultCategories {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO categories (name, kind, is_default)
			VALUES (?, ?, 1)
			ON CONFLICT(name, kind) DO NOTHING
		`, c.name, c.kind)
		if err != nil {
			return fmt.Errorf("failed to seed category %q: %w", c.name, err)
		}
	}
	return nil
}
