package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthSummary aggregates a user's committed entries for one calendar month.
type MonthSummary struct {
	Month        time.Month
	Year         int
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	EntryCount   int
}

// Balance is income minus expense for the month.
func (s MonthSummary) Balance() decimal.Decimal {
	return s.TotalIncome.Sub(s.TotalExpense)
}

// Exchange is one user message / assistant reply pair kept in the short-term
// conversation history.
type Exchange struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
}
