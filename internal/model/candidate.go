package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind distinguishes money in from money out.
type TransactionKind string

const (
	// KindIncome is money received.
	KindIncome TransactionKind = "income"
	// KindExpense is money spent.
	KindExpense TransactionKind = "expense"
)

// TransactionCandidate is an extracted-but-not-yet-committed transaction.
// It is created by the extraction engine, refined by pattern lookup and
// either promoted to a LedgerEntry or discarded on cancel.
type TransactionCandidate struct {
	Date        time.Time
	Description string
	Category    string
	Kind        TransactionKind
	Items       []TransactionCandidate
	Amount      decimal.Decimal
	Confidence  float64
	CategoryID  int64
	MultiItem   bool
}

// Valid reports whether the candidate carries the minimum fields needed to
// commit: a kind and a positive amount.
func (c *TransactionCandidate) Valid() bool {
	return (c.Kind == KindIncome || c.Kind == KindExpense) && c.Amount.IsPositive()
}
