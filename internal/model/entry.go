package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is a committed transaction.
type LedgerEntry struct {
	Date        time.Time
	CreatedAt   time.Time
	ID          string // uuid
	Code        string // short user-facing reference, e.g. "AB12C"
	UserID      string
	Description string
	Kind        TransactionKind
	Channel     Channel
	Amount      decimal.Decimal
	Confidence  float64
	CategoryID  int64
}
