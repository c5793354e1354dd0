package model

import "time"

// UserPattern maps a normalized keyword signature to the category the user
// confirmed for it. Confidence only moves up, bounded by the configured cap;
// patterns are removed only by an explicit forget.
type UserPattern struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	UserID       string
	Keywords     string // normalized, stop-word-stripped, at most 3 tokens
	CategoryName string
	Kind         TransactionKind
	ID           int64
	CategoryID   int64
	Occurrences  int
	Confidence   float64
	// Partial marks a lookup that matched on a single token rather than the
	// full signature; its confidence has already been discounted.
	Partial bool
}
