package extract

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintalk/fintalk/internal/learning"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/storage"
)

// stubClient returns a canned reply, or an error.
type stubClient struct {
	reply string
	err   error
	calls int
}

func (s *stubClient) Complete(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func (s *stubClient) CompleteWithImage(_ context.Context, _, _, _ string) (string, error) {
	return s.reply, s.err
}

func (s *stubClient) CompleteWithAudio(_ context.Context, _, _, _ string) (string, error) {
	return s.reply, s.err
}

func newTestExtractor(t *testing.T, client *stubClient) (*Extractor, *storage.SQLiteStorage, *learning.Store) {
	t.Helper()

	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	patterns := learning.NewStore(s, nil)
	return NewExtractor(client, patterns, s, nil), s, patterns
}

func convCtx(message string) *model.ConversationContext {
	return &model.ConversationContext{
		Timestamp:    time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC),
		UserID:       "u1",
		Conversation: "conv-1",
		Message:      message,
		Channel:      model.ChannelText,
	}
}

func TestFastPassExpense(t *testing.T) {
	client := &stubClient{}
	e, _, _ := newTestExtractor(t, client)

	c, err := e.Extract(context.Background(), convCtx("I spent 50 on lunch"))
	require.NoError(t, err)

	assert.Equal(t, model.KindExpense, c.Kind)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "lunch", c.Description)
	assert.Equal(t, "Food", c.Category)
	assert.NotZero(t, c.CategoryID)
	assert.InDelta(t, fastPathBaseConfidence, c.Confidence, 0.001)
	assert.Zero(t, client.calls, "fast path must not call the model")
}

func TestFastPassCommaDecimal(t *testing.T) {
	client := &stubClient{}
	e, _, _ := newTestExtractor(t, client)

	c, err := e.Extract(context.Background(), convCtx("paguei r$ 45,50 no mercado"))
	require.NoError(t, err)

	assert.Equal(t, model.KindExpense, c.Kind)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("45.50")))
	assert.Equal(t, "mercado", c.Description)
	assert.Equal(t, "Food", c.Category)
}

func TestFastPassIncome(t *testing.T) {
	client := &stubClient{}
	e, _, _ := newTestExtractor(t, client)

	c, err := e.Extract(context.Background(), convCtx("recebi 3000 de salario"))
	require.NoError(t, err)

	assert.Equal(t, model.KindIncome, c.Kind)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, "Salary", c.Category)
}

func TestFastPassUtilityCanonical(t *testing.T) {
	client := &stubClient{}
	e, _, _ := newTestExtractor(t, client)

	c, err := e.Extract(context.Background(), convCtx("paguei a conta de luz 120"))
	require.NoError(t, err)

	assert.Equal(t, "electricity bill", c.Description)
	assert.Equal(t, "Housing", c.Category)
}

func TestUtilityKeywordsAreWordBoundaries(t *testing.T) {
	client := &stubClient{}
	e, _, _ := newTestExtractor(t, client)

	// "gaslight" contains "gas" but is not a gas bill.
	c, err := e.Extract(context.Background(), convCtx("spent 20 on gaslight tickets"))
	require.NoError(t, err)
	assert.NotEqual(t, "gas bill", c.Description)
}

func TestFastPassRelativeDate(t *testing.T) {
	client := &stubClient{}
	e, _, _ := newTestExtractor(t, client)

	c, err := e.Extract(context.Background(), convCtx("spent 30 on pizza yesterday"))
	require.NoError(t, err)
	assert.Equal(t, 19, c.Date.Day())
}

func TestAmbiguityGuardRoutesToModel(t *testing.T) {
	client := &stubClient{reply: `{
		"multi_item": true,
		"items": [
			{"kind": "income", "amount": 3000, "description": "salary", "category": "Salary", "confidence": 0.9},
			{"kind": "expense", "amount": 30, "description": "uber", "category": "Transport", "confidence": 0.9}
		]
	}`}
	e, _, _ := newTestExtractor(t, client)

	c, err := e.Extract(context.Background(), convCtx("I received 3000 salary and spent 30 on uber"))
	require.NoError(t, err)

	assert.True(t, c.MultiItem)
	require.Len(t, c.Items, 2)
	assert.Equal(t, model.KindIncome, c.Items[0].Kind)
	assert.Equal(t, model.KindExpense, c.Items[1].Kind)
	assert.Equal(t, 1, client.calls)
}

func TestManyNumbersTriggerGuard(t *testing.T) {
	client := &stubClient{reply: `{"kind": "expense", "amount": 75, "description": "shopping", "confidence": 0.8}`}
	e, _, _ := newTestExtractor(t, client)

	_, err := e.Extract(context.Background(), convCtx("spent 10 then 20 then 45 today"))
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestLLMFallbackWhenFastPassMisses(t *testing.T) {
	client := &stubClient{reply: `{"kind": "expense", "amount": 42.5, "description": "parking", "category": "Transport", "confidence": 0.75}`}
	e, _, _ := newTestExtractor(t, client)

	c, err := e.Extract(context.Background(), convCtx("that parking thing from before, 42ish"))
	require.NoError(t, err)

	assert.Equal(t, model.KindExpense, c.Kind)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("42.5")))
	assert.Equal(t, "Transport", c.Category)
}

func TestNeedsMoreInfoMissingAmount(t *testing.T) {
	client := &stubClient{reply: `{"kind": "expense", "amount": 0, "description": "something", "confidence": 0.4}`}
	e, _, _ := newTestExtractor(t, client)

	_, err := e.Extract(context.Background(), convCtx("bought something nice"))
	var needs *NeedsMoreInfo
	require.ErrorAs(t, err, &needs)
	assert.Equal(t, "What was the amount?", needs.Question)
}

func TestNeedsMoreInfoMissingKind(t *testing.T) {
	client := &stubClient{reply: `{"kind": "", "amount": 20, "description": "transfer", "confidence": 0.4}`}
	e, _, _ := newTestExtractor(t, client)

	_, err := e.Extract(context.Background(), convCtx("20 moved around somehow"))
	var needs *NeedsMoreInfo
	require.ErrorAs(t, err, &needs)
	assert.Equal(t, "Was that money in or out?", needs.Question)
}

func TestNeedsMoreInfoWhenModelFails(t *testing.T) {
	client := &stubClient{err: assert.AnError}
	e, _, _ := newTestExtractor(t, client)

	_, err := e.Extract(context.Background(), convCtx("hmm not sure what happened"))
	var needs *NeedsMoreInfo
	require.ErrorAs(t, err, &needs)
}

func TestPatternRefinementOverridesCategory(t *testing.T) {
	client := &stubClient{}
	e, s, patterns := newTestExtractor(t, client)
	ctx := context.Background()

	transport, err := s.ResolveCategory(ctx, "transport", model.KindExpense)
	require.NoError(t, err)

	// Three confirmations put the pattern at 0.7.
	for i := 0; i < 3; i++ {
		require.NoError(t, patterns.Register(ctx, "u1", "uber", model.KindExpense, transport.ID))
	}

	c, err := e.Extract(ctx, convCtx("spent 25 on uber"))
	require.NoError(t, err)

	assert.Equal(t, "Transport", c.Category)
	assert.Equal(t, transport.ID, c.CategoryID)
	assert.InDelta(t, 0.7, c.Confidence, 0.001)
}

func TestUnknownCategoryFallsBackToOther(t *testing.T) {
	client := &stubClient{}
	e, _, _ := newTestExtractor(t, client)

	c, err := e.Extract(context.Background(), convCtx("spent 80 on llama grooming"))
	require.NoError(t, err)
	assert.Equal(t, "Other", c.Category)
	assert.NotZero(t, c.CategoryID)
}
