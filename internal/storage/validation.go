package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/fintalk/fintalk/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string cannot be empty")
	ErrInvalidEntry = errors.New("invalid ledger entry")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s, field string) error {
	if s == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, field)
	}
	return nil
}

func validateEntry(entry *model.LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil", ErrInvalidEntry)
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEntry)
	}
	if entry.Code == "" {
		return fmt.Errorf("%w: missing code", ErrInvalidEntry)
	}
	if entry.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidEntry)
	}
	if entry.Kind != model.KindIncome && entry.Kind != model.KindExpense {
		return fmt.Errorf("%w: bad kind %q", ErrInvalidEntry, entry.Kind)
	}
	if !entry.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	}
	if entry.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidEntry)
	}
	return nil
}

func validatePattern(p *model.UserPattern) error {
	if p == nil {
		return errors.New("pattern cannot be nil")
	}
	if p.UserID == "" || p.Keywords == "" {
		return errors.New("pattern requires user id and keywords")
	}
	if p.Kind != model.KindIncome && p.Kind != model.KindExpense {
		return fmt.Errorf("pattern has bad kind %q", p.Kind)
	}
	return nil
}
