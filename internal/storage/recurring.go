package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintalk/fintalk/internal/model"
)

// UpsertRecurringRule persists a detected recurring pattern, keyed on
// (user, keywords, kind) so re-detection refreshes rather than duplicates.
func (s *SQLiteStorage) UpsertRecurringRule(ctx context.Context, userID string, pattern model.RecurringPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(pattern.Keywords, "keywords"); err != nil {
		return err
	}

	var categoryID any
	if pattern.CategoryID > 0 {
		categoryID = pattern.CategoryID
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_rules (user_id, description, keywords, kind, frequency,
			avg_amount, min_amount, max_amount, category_id, day_of_month, weekday,
			occurrences, last_occurrence, next_expected, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, keywords, kind) DO UPDATE SET
			description = excluded.description,
			frequency = excluded.frequency,
			avg_amount = excluded.avg_amount,
			min_amount = excluded.min_amount,
			max_amount = excluded.max_amount,
			category_id = excluded.category_id,
			day_of_month = excluded.day_of_month,
			weekday = excluded.weekday,
			occurrences = excluded.occurrences,
			last_occurrence = excluded.last_occurrence,
			next_expected = excluded.next_expected,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`, userID, pattern.Description, pattern.Keywords, string(pattern.Kind),
		string(pattern.Frequency), pattern.AvgAmount.String(), pattern.MinAmount.String(),
		pattern.MaxAmount.String(), categoryID, pattern.DayOfMonth, int(pattern.Weekday),
		pattern.Occurrences, pattern.LastOccurrence.UTC(), pattern.NextExpected.UTC(),
		pattern.Confidence, now)
	if err != nil {
		return fmt.Errorf("failed to upsert recurring rule: %w", err)
	}
	return nil
}

// ListRecurringRules returns the user's persisted recurring rules, soonest
// expected first.
func (s *SQLiteStorage) ListRecurringRules(ctx context.Context, userID string) ([]model.RecurringPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT description, keywords, kind, frequency, avg_amount,
		       COALESCE(min_amount, avg_amount), COALESCE(max_amount, avg_amount),
		       category_id, day_of_month, weekday, occurrences,
		       last_occurrence, next_expected, confidence
		FROM recurring_rules
		WHERE user_id = ?
		ORDER BY next_expected ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.RecurringPattern
	for rows.Next() {
		var (
			p          model.RecurringPattern
			kind       string
			frequency  string
			avgStr     string
			minStr     string
			maxStr     string
			categoryID sql.NullInt64
			weekday    int
		)
		if err := rows.Scan(&p.Description, &p.Keywords, &kind, &frequency, &avgStr,
			&minStr, &maxStr, &categoryID, &p.DayOfMonth, &weekday, &p.Occurrences,
			&p.LastOccurrence, &p.NextExpected, &p.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan recurring rule: %w", err)
		}

		p.Kind = model.TransactionKind(kind)
		p.Frequency = model.Frequency(frequency)
		p.Weekday = time.Weekday(weekday)
		if categoryID.Valid {
			p.CategoryID = categoryID.Int64
		}
		if p.AvgAmount, err = decimal.NewFromString(avgStr); err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", avgStr, err)
		}
		if p.MinAmount, err = decimal.NewFromString(minStr); err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", minStr, err)
		}
		if p.MaxAmount, err = decimal.NewFromString(maxStr); err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", maxStr, err)
		}

		rules = append(rules, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recurring rules: %w", err)
	}
	return rules, nil
}
