// Package service defines the interfaces between pipeline components and
// their external collaborators.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintalk/fintalk/internal/model"
)

// RetryOptions configures retry behavior for transient failures.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Storage is the durable relational store consumed by the pipeline. The
// pipeline needs read access plus one-row-per-commit writes; it has no
// schema knowledge beyond these operations.
type Storage interface {
	// Ledger entries.
	SaveEntry(ctx context.Context, entry *model.LedgerEntry) error
	GetEntryByCode(ctx context.Context, userID, code string) (*model.LedgerEntry, error)
	SearchEntries(ctx context.Context, userID, keyword string, limit int) ([]model.LedgerEntry, error)
	ListEntriesSince(ctx context.Context, userID string, since time.Time) ([]model.LedgerEntry, error)
	ListRecentEntries(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error)
	DeleteEntry(ctx context.Context, userID, code string) error
	UpdateEntryAmount(ctx context.Context, userID, code string, amount decimal.Decimal) error
	UpdateEntryCategory(ctx context.Context, userID, code string, categoryID int64) error
	MonthSummary(ctx context.Context, userID string, ref time.Time) (model.MonthSummary, error)
	CodeExists(ctx context.Context, code string) (bool, error)

	// Categories.
	GetCategories(ctx context.Context) ([]model.Category, error)
	ResolveCategory(ctx context.Context, name string, kind model.TransactionKind) (*model.Category, error)
	SaveCategory(ctx context.Context, category *model.Category) error

	// Learned user patterns.
	GetPattern(ctx context.Context, userID, keywords string, kind model.TransactionKind) (*model.UserPattern, error)
	GetPatternByToken(ctx context.Context, userID, token string, kind model.TransactionKind) (*model.UserPattern, error)
	SavePattern(ctx context.Context, pattern *model.UserPattern) error
	ListPatterns(ctx context.Context, userID string, limit int) ([]model.UserPattern, error)
	DeletePattern(ctx context.Context, userID, keywords string, kind model.TransactionKind) error

	// Persisted recurring rules.
	UpsertRecurringRule(ctx context.Context, userID string, pattern model.RecurringPattern) error
	ListRecurringRules(ctx context.Context, userID string) ([]model.RecurringPattern, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Cache is an ephemeral keyed store with per-key TTL. Its atomic
// overwrite-with-expiry semantics keep concurrent messages from the same
// conversation from racing on a pending action.
type Cache interface {
	GetPendingAction(ctx context.Context, conversation string) (*model.PendingAction, error)
	SavePendingAction(ctx context.Context, conversation string, action *model.PendingAction) error
	ClearPendingAction(ctx context.Context, conversation string) error

	GetPreferences(ctx context.Context, userID string) (model.Preferences, error)
	SavePreferences(ctx context.Context, userID string, prefs model.Preferences) error

	AppendExchange(ctx context.Context, conversation, userMessage, reply string) error
	History(ctx context.Context, conversation string) ([]model.Exchange, error)
}
