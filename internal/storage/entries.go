package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/model"
)

// SaveEntry persists a committed ledger entry.
func (s *SQLiteStorage) SaveEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEntry(entry); err != nil {
		return err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var categoryID any
	if entry.CategoryID > 0 {
		categoryID = entry.CategoryID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, code, user_id, kind, amount, description, category_id, occurred_at, channel, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Code, entry.UserID, string(entry.Kind), entry.Amount.String(),
		entry.Description, categoryID, entry.Date.UTC(), string(entry.Channel),
		entry.Confidence, entry.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: code %s", common.ErrDuplicateEntry, entry.Code)
		}
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

// GetEntryByCode returns the entry with the given reference code, scoped to
// the owning user.
func (s *SQLiteStorage) GetEntryByCode(ctx context.Context, userID, code string) (*model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(code, "code"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, user_id, kind, amount, description, category_id, occurred_at, channel, confidence, created_at
		FROM entries
		WHERE user_id = ? AND code = ?
	`, userID, code)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entry %s", common.ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// SearchEntries returns the user's most recent entries whose description
// contains the keyword, newest first.
func (s *SQLiteStorage) SearchEntries(ctx context.Context, userID, keyword string, limit int) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, user_id, kind, amount, description, category_id, occurred_at, channel, confidence, created_at
		FROM entries
		WHERE user_id = ? AND description LIKE ?
		ORDER BY occurred_at DESC, created_at DESC
		LIMIT ?
	`, userID, "%"+keyword+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectEntries(rows)
}

// ListEntriesSince returns the user's entries on or after the given time,
// oldest first. Recurrence detection depends on the chronological order.
func (s *SQLiteStorage) ListEntriesSince(ctx context.Context, userID string, since time.Time) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, user_id, kind, amount, description, category_id, occurred_at, channel, confidence, created_at
		FROM entries
		WHERE user_id = ? AND occurred_at >= ?
		ORDER BY occurred_at ASC, created_at ASC
	`, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectEntries(rows)
}

// ListRecentEntries returns the user's newest entries, newest first.
func (s *SQLiteStorage) ListRecentEntries(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, user_id, kind, amount, description, category_id, occurred_at, channel, confidence, created_at
		FROM entries
		WHERE user_id = ?
		ORDER BY occurred_at DESC, created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectEntries(rows)
}

// DeleteEntry removes the entry with the given code.
func (s *SQLiteStorage) DeleteEntry(ctx context.Context, userID, code string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(code, "code"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE user_id = ? AND code = ?`, userID, code)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: entry %s", common.ErrNotFound, code)
	}
	return nil
}

// UpdateEntryAmount changes the amount of an existing entry.
func (s *SQLiteStorage) UpdateEntryAmount(ctx context.Context, userID, code string, amount decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(code, "code"); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE entries SET amount = ? WHERE user_id = ? AND code = ?
	`, amount.String(), userID, code)
	if err != nil {
		return fmt.Errorf("failed to update entry amount: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: entry %s", common.ErrNotFound, code)
	}
	return nil
}

// UpdateEntryCategory changes the category of an existing entry.
func (s *SQLiteStorage) UpdateEntryCategory(ctx context.Context, userID, code string, categoryID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(code, "code"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE entries SET category_id = ? WHERE user_id = ? AND code = ?
	`, categoryID, userID, code)
	if err != nil {
		return fmt.Errorf("failed to update entry category: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: entry %s", common.ErrNotFound, code)
	}
	return nil
}

// MonthSummary aggregates the user's entries for the calendar month that
// contains ref, in ref's location.
func (s *SQLiteStorage) MonthSummary(ctx context.Context, userID string, ref time.Time) (model.MonthSummary, error) {
	summary := model.MonthSummary{
		Year:         ref.Year(),
		Month:        ref.Month(),
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}

	if err := validateContext(ctx); err != nil {
		return summary, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return summary, err
	}

	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	end := start.AddDate(0, 1, 0)

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, amount
		FROM entries
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?
	`, userID, start.UTC(), end.UTC())
	if err != nil {
		return summary, fmt.Errorf("failed to load month summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind, amountStr string
		if err := rows.Scan(&kind, &amountStr); err != nil {
			return summary, fmt.Errorf("failed to scan summary row: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return summary, fmt.Errorf("corrupt amount %q: %w", amountStr, err)
		}
		switch model.TransactionKind(kind) {
		case model.KindIncome:
			summary.TotalIncome = summary.TotalIncome.Add(amount)
		case model.KindExpense:
			summary.TotalExpense = summary.TotalExpense.Add(amount)
		}
		summary.EntryCount++
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("failed to iterate summary rows: %w", err)
	}
	return summary, nil
}

// CodeExists reports whether any entry already uses the reference code.
// Codes are globally unique so confirmations can never collide across users.
func (s *SQLiteStorage) CodeExists(ctx context.Context, code string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(code, "code"); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE code = ?`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.LedgerEntry, error) {
	var (
		entry      model.LedgerEntry
		kind       string
		channel    string
		amountStr  string
		categoryID sql.NullInt64
	)

	err := row.Scan(&entry.ID, &entry.Code, &entry.UserID, &kind, &amountStr,
		&entry.Description, &categoryID, &entry.Date, &channel,
		&entry.Confidence, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	entry.Kind = model.TransactionKind(kind)
	entry.Channel = model.Channel(channel)
	if categoryID.Valid {
		entry.CategoryID = categoryID.Int64
	}
	entry.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amountStr, err)
	}
	return &entry, nil
}

func collectEntries(rows *sql.Rows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}
