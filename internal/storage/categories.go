package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/text"
)

// GetCategories returns all active categories.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, COALESCE(description, ''), is_default, is_active, created_at
		FROM categories
		WHERE is_active = 1
		ORDER BY kind, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var (
			c    model.Category
			kind string
		)
		if err := rows.Scan(&c.ID, &c.Name, &kind, &c.Description, &c.IsDefault, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Kind = model.TransactionKind(kind)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// ResolveCategory matches a free-form name against the registry for the given
// kind. Matching is case- and accent-insensitive; an unknown name falls back
// to that kind's "Other" bucket.
func (s *SQLiteStorage) ResolveCategory(ctx context.Context, name string, kind model.TransactionKind) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	categories, err := s.GetCategories(ctx)
	if err != nil {
		return nil, err
	}

	want := text.Normalize(name)
	var fallback *model.Category

	for i := range categories {
		c := &categories[i]
		if c.Kind != kind {
			continue
		}
		if text.Normalize(c.Name) == want && want != "" {
			return c, nil
		}
		if c.Name == "Other" {
			fallback = c
		}
	}

	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("%w: no category for kind %s", common.ErrNotFound, kind)
}

// SaveCategory inserts a new category or reactivates and updates an existing
// one with the same name and kind.
func (s *SQLiteStorage) SaveCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return errors.New("category cannot be nil")
	}
	if err := validateString(category.Name, "name"); err != nil {
		return err
	}
	if category.Kind != model.KindIncome && category.Kind != model.KindExpense {
		return fmt.Errorf("category has bad kind %q", category.Kind)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, kind, description, is_default, is_active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(name, kind) DO UPDATE SET
			description = excluded.description,
			is_active = 1
	`, category.Name, string(category.Kind), category.Description, category.IsDefault)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}

	if category.ID == 0 {
		if id, err := result.LastInsertId(); err == nil {
			category.ID = id
		} else {
			// Upserts don't always report an insert id; look it up.
			row := s.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ? AND kind = ?`,
				category.Name, string(category.Kind))
			if err := row.Scan(&category.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to read category id: %w", err)
			}
		}
	}
	return nil
}
