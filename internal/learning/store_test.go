package learning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	return NewStore(s, nil)
}

func TestRegisterNewPattern(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "u1", "lunch at the corner place", model.KindExpense, 1))

	p, err := store.Lookup(ctx, "u1", "lunch at the corner place", model.KindExpense)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.CategoryID)
	assert.InDelta(t, initialConfidence, p.Confidence, 0.001)
	assert.Equal(t, 1, p.Occurrences)
	assert.False(t, p.Partial)
}

func TestRegisterReinforcesSameCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Register(ctx, "u1", "gym membership", model.KindExpense, 2))
	}

	p, err := store.Lookup(ctx, "u1", "gym membership", model.KindExpense)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Occurrences)
	assert.InDelta(t, initialConfidence+2*confidenceStep, p.Confidence, 0.001)
}

func TestConfidenceNeverExceedsCap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, store.Register(ctx, "u1", "rent payment", model.KindExpense, 3))
	}

	p, err := store.Lookup(ctx, "u1", "rent payment", model.KindExpense)
	require.NoError(t, err)
	assert.InDelta(t, confidenceCap, p.Confidence, 0.001)
	assert.Equal(t, 20, p.Occurrences)
}

func TestRegisterDifferentCategoryRestarts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Register(ctx, "u1", "netflix subscription", model.KindExpense, 5))
	}
	require.NoError(t, store.Register(ctx, "u1", "netflix subscription", model.KindExpense, 7))

	p, err := store.Lookup(ctx, "u1", "netflix subscription", model.KindExpense)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.CategoryID, "latest confirmation wins")
	assert.InDelta(t, initialConfidence, p.Confidence, 0.001)
	assert.Equal(t, 1, p.Occurrences)
}

func TestLookupPartialMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Reinforce until the stored confidence clears the partial floor.
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Register(ctx, "u1", "uber airport ride", model.KindExpense, 2))
	}

	p, err := store.Lookup(ctx, "u1", "uber downtown", model.KindExpense)
	require.NoError(t, err)
	assert.True(t, p.Partial)
	assert.Equal(t, int64(2), p.CategoryID)
	assert.InDelta(t, (initialConfidence+3*confidenceStep)*partialPenalty, p.Confidence, 0.001)
}

func TestLookupPartialBelowFloorMisses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A single confirmation sits at 0.5, below the partial floor.
	require.NoError(t, store.Register(ctx, "u1", "uber airport ride", model.KindExpense, 2))

	_, err := store.Lookup(ctx, "u1", "uber downtown", model.KindExpense)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestLookupKindScoped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "u1", "freelance invoice", model.KindIncome, 10))

	_, err := store.Lookup(ctx, "u1", "freelance invoice", model.KindExpense)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestForget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "u1", "gym membership", model.KindExpense, 2))
	require.NoError(t, store.Forget(ctx, "u1", "gym membership", model.KindExpense))

	_, err := store.Lookup(ctx, "u1", "gym membership", model.KindExpense)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRegisterSkipsEmptySignature(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Pure stop words yield no signature and nothing is stored.
	require.NoError(t, store.Register(ctx, "u1", "of the in", model.KindExpense, 1))

	patterns, err := store.List(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}
