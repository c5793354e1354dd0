package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/model"
)

const patternSelect = `
	SELECT p.id, p.user_id, p.keywords, p.kind, p.category_id, COALESCE(c.name, ''),
	       p.occurrences, p.confidence, p.created_at, p.updated_at
	FROM user_patterns p
	LEFT JOIN categories c ON c.id = p.category_id
`

// GetPattern returns the pattern exactly matching the keyword signature.
func (s *SQLiteStorage) GetPattern(ctx context.Context, userID, keywords string, kind model.TransactionKind) (*model.UserPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(keywords, "keywords"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, patternSelect+`
		WHERE p.user_id = ? AND p.keywords = ? AND p.kind = ?
	`, userID, keywords, string(kind))

	pattern, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pattern %q", common.ErrNotFound, keywords)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return pattern, nil
}

// GetPatternByToken returns the strongest pattern whose signature contains
// the single token. Used for partial matches when the full signature misses.
func (s *SQLiteStorage) GetPatternByToken(ctx context.Context, userID, token string, kind model.TransactionKind) (*model.UserPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(token, "token"); err != nil {
		return nil, err
	}

	// Signatures are space-joined tokens; pad both sides so LIKE matches
	// whole tokens only.
	row := s.db.QueryRowContext(ctx, patternSelect+`
		WHERE p.user_id = ? AND p.kind = ? AND (' ' || p.keywords || ' ') LIKE ?
		ORDER BY p.confidence DESC, p.occurrences DESC
		LIMIT 1
	`, userID, string(kind), "% "+token+" %")

	pattern, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no pattern with token %q", common.ErrNotFound, token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern by token: %w", err)
	}
	return pattern, nil
}

// SavePattern inserts or updates a learned pattern keyed on
// (user, keywords, kind).
func (s *SQLiteStorage) SavePattern(ctx context.Context, pattern *model.UserPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_patterns (user_id, keywords, kind, category_id, occurrences, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, keywords, kind) DO UPDATE SET
			category_id = excluded.category_id,
			occurrences = excluded.occurrences,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`, pattern.UserID, pattern.Keywords, string(pattern.Kind), pattern.CategoryID,
		pattern.Occurrences, pattern.Confidence, now)
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}
	return nil
}

// ListPatterns returns the user's patterns, strongest first.
func (s *SQLiteStorage) ListPatterns(ctx context.Context, userID string, limit int) ([]model.UserPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, patternSelect+`
		WHERE p.user_id = ?
		ORDER BY p.confidence DESC, p.occurrences DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.UserPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patterns: %w", err)
	}
	return patterns, nil
}

// DeletePattern removes a learned pattern.
func (s *SQLiteStorage) DeletePattern(ctx context.Context, userID, keywords string, kind model.TransactionKind) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(keywords, "keywords"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_patterns WHERE user_id = ? AND keywords = ? AND kind = ?
	`, userID, keywords, string(kind))
	if err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: pattern %q", common.ErrNotFound, keywords)
	}
	return nil
}

func scanPattern(row rowScanner) (*model.UserPattern, error) {
	var (
		p    model.UserPattern
		kind string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Keywords, &kind, &p.CategoryID,
		&p.CategoryName, &p.Occurrences, &p.Confidence, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Kind = model.TransactionKind(kind)
	return &p, nil
}
