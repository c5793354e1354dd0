package model

import "time"

// Category is a user-visible grouping for ledger entries.
type Category struct {
	CreatedAt   time.Time
	Name        string
	Description string
	Kind        TransactionKind
	ID          int64
	IsActive    bool
	IsDefault   bool
}
