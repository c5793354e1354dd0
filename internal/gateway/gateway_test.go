package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintalk/fintalk/internal/extract"
	"github.com/fintalk/fintalk/internal/learning"
	"github.com/fintalk/fintalk/internal/memory"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/storage"
)

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

type fixture struct {
	orchestrator *Orchestrator
	storage      *storage.SQLiteStorage
	cache        *memory.RedisCache
	patterns     *learning.Store
	redis        *miniredis.Miniredis
}

func newFixture(t *testing.T, client *stubClient) *fixture {
	t.Helper()

	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	mr := miniredis.RunT(t)
	cache := memory.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	patterns := learning.NewStore(s, nil)
	extractor := extract.NewExtractor(client, patterns, s, nil)
	classifier := NewClassifier(client, nil)

	return &fixture{
		orchestrator: NewOrchestrator(classifier, extractor, patterns, s, cache, nil),
		storage:      s,
		cache:        cache,
		patterns:     patterns,
		redis:        mr,
	}
}

func say(t *testing.T, f *fixture, message string) model.AgentResponse {
	t.Helper()

	response, err := f.orchestrator.Process(context.Background(), &model.ConversationContext{
		Timestamp:    time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC),
		UserID:       "u1",
		Conversation: "conv-1",
		Message:      message,
		Channel:      model.ChannelText,
	})
	require.NoError(t, err)
	return response
}

func TestRegisterConfirmCycle(t *testing.T) {
	f := newFixture(t, &stubClient{})

	first := say(t, f, "I spent 45.50 on lunch")
	assert.True(t, first.RequiresConfirmation)
	assert.Contains(t, first.Message, "45.50")
	assert.Contains(t, first.Message, "yes/no")

	second := say(t, f, "yes")
	assert.True(t, second.Success)
	assert.NotEmpty(t, second.ReferenceCode)
	assert.Contains(t, second.Message, "saved")

	entry, err := f.storage.GetEntryByCode(context.Background(), "u1", second.ReferenceCode)
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("45.50")))

	// The confirmed commit seeds the pattern store.
	pattern, err := f.patterns.Lookup(context.Background(), "u1", "lunch", model.KindExpense)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pattern.Confidence, 0.001)

	// The pending action is consumed; a second yes is just an unclassifiable
	// message and nothing else gets committed.
	say(t, f, "yes")
	entries, err := f.storage.ListRecentEntries(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRegisterCancelCommitsNothing(t *testing.T) {
	f := newFixture(t, &stubClient{})

	say(t, f, "spent 80 on groceries")
	response := say(t, f, "no")
	assert.Contains(t, response.Message, "cancelled")

	entries, err := f.storage.ListRecentEntries(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAutoConfirmThresholdInclusive(t *testing.T) {
	f := newFixture(t, &stubClient{})
	ctx := context.Background()

	// Fast-path confidence is exactly 0.7; threshold 0.70 must auto-commit.
	prefs := model.DefaultPreferences()
	prefs.AutoConfirmThreshold = 0.70
	require.NoError(t, f.cache.SavePreferences(ctx, "u1", prefs))

	response := say(t, f, "spent 50 on lunch")
	assert.False(t, response.RequiresConfirmation)
	assert.True(t, response.Success)
	assert.NotEmpty(t, response.ReferenceCode)

	// Just above the candidate's confidence, confirmation is required.
	prefs.AutoConfirmThreshold = 0.71
	require.NoError(t, f.cache.SavePreferences(ctx, "u1", prefs))

	response = say(t, f, "spent 30 on pizza")
	assert.True(t, response.RequiresConfirmation)
}

func TestMultiItemAlwaysConfirms(t *testing.T) {
	f := newFixture(t, &stubClient{reply: `{
		"multi_item": true,
		"items": [
			{"kind": "income", "amount": 3000, "description": "salary", "category": "Salary", "confidence": 0.99},
			{"kind": "expense", "amount": 30, "description": "uber", "category": "Transport", "confidence": 0.99}
		]
	}`})

	first := say(t, f, "I received 3000 salary and spent 30 on uber")
	assert.True(t, first.RequiresConfirmation)
	assert.Contains(t, first.Message, "2 transactions")

	second := say(t, f, "sim")
	assert.True(t, second.Success)
	assert.Contains(t, second.Message, "2 entries")

	entries, err := f.storage.ListRecentEntries(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPendingFallbackReclassifies(t *testing.T) {
	f := newFixture(t, &stubClient{})

	say(t, f, "spent 80 on groceries")

	// Neither yes, no, nor a code: the pending action is dropped and the
	// message handled fresh.
	response := say(t, f, "how much did I spend this month?")
	assert.Contains(t, response.Message, "August")

	// The abandoned draft was dropped, so nothing ever commits.
	say(t, f, "yes")
	entries, err := f.storage.ListRecentEntries(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExpiredPendingIsFreshClassification(t *testing.T) {
	f := newFixture(t, &stubClient{err: assert.AnError})

	say(t, f, "spent 80 on groceries")
	f.redis.FastForward(memory.PendingTTL + time.Second)

	// "yes" with no live pending action is not a confirmation.
	response := say(t, f, "yes")
	assert.NotContains(t, response.Message, "saved")

	entries, err := f.storage.ListRecentEntries(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQuerySummary(t *testing.T) {
	f := newFixture(t, &stubClient{})
	ctx := context.Background()

	prefs := model.DefaultPreferences()
	prefs.AutoConfirmThreshold = 0.5
	require.NoError(t, f.cache.SavePreferences(ctx, "u1", prefs))

	say(t, f, "received 3000 salary")
	say(t, f, "spent 50 on lunch")

	response := say(t, f, "how much did I spend this month?")
	assert.Contains(t, response.Message, "income 3000.00")
	assert.Contains(t, response.Message, "expenses 50.00")
	assert.Contains(t, response.Message, "balance 2950.00")
}

func TestEditByCode(t *testing.T) {
	f := newFixture(t, &stubClient{})
	ctx := context.Background()

	prefs := model.DefaultPreferences()
	prefs.AutoConfirmThreshold = 0.5
	require.NoError(t, f.cache.SavePreferences(ctx, "u1", prefs))

	saved := say(t, f, "spent 50 on lunch")
	code := saved.ReferenceCode
	require.NotEmpty(t, code)

	question := say(t, f, "change "+code+" to 62.50")
	assert.True(t, question.RequiresConfirmation)
	assert.Contains(t, question.Message, code)
	assert.Contains(t, question.Message, "62.50")

	done := say(t, f, "yes")
	assert.Contains(t, done.Message, "updated")

	entry, err := f.storage.GetEntryByCode(ctx, "u1", code)
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("62.50")))
}

func TestDeleteWithDisambiguation(t *testing.T) {
	f := newFixture(t, &stubClient{})
	ctx := context.Background()

	prefs := model.DefaultPreferences()
	prefs.AutoConfirmThreshold = 0.5
	require.NoError(t, f.cache.SavePreferences(ctx, "u1", prefs))

	first := say(t, f, "spent 25 on uber")
	second := say(t, f, "spent 18 on uber")
	require.NotEmpty(t, first.ReferenceCode)
	require.NotEmpty(t, second.ReferenceCode)

	choice := say(t, f, "delete the uber entry")
	assert.True(t, choice.RequiresConfirmation)
	assert.Contains(t, choice.Message, "more than one match")
	assert.Contains(t, choice.Message, first.ReferenceCode)
	assert.Contains(t, choice.Message, second.ReferenceCode)

	confirm := say(t, f, first.ReferenceCode)
	assert.True(t, confirm.RequiresConfirmation)
	assert.Contains(t, confirm.Message, "Delete")

	done := say(t, f, "yes")
	assert.Contains(t, done.Message, "deleted")

	_, err := f.storage.GetEntryByCode(ctx, "u1", first.ReferenceCode)
	assert.Error(t, err)
	_, err = f.storage.GetEntryByCode(ctx, "u1", second.ReferenceCode)
	assert.NoError(t, err)
}

func TestDisambiguationSurvivesBareYes(t *testing.T) {
	f := newFixture(t, &stubClient{})
	ctx := context.Background()

	prefs := model.DefaultPreferences()
	prefs.AutoConfirmThreshold = 0.5
	require.NoError(t, f.cache.SavePreferences(ctx, "u1", prefs))

	first := say(t, f, "spent 25 on uber")
	say(t, f, "spent 18 on uber")
	require.NotEmpty(t, first.ReferenceCode)

	choice := say(t, f, "delete the uber entry")
	assert.Contains(t, choice.Message, "more than one match")

	// A bare yes picks nothing; the candidate list stays live so the next
	// reply can still answer with a code.
	retry := say(t, f, "yes")
	assert.Contains(t, retry.Message, "Which entry did you mean")

	confirm := say(t, f, first.ReferenceCode)
	assert.True(t, confirm.RequiresConfirmation)
	assert.Contains(t, confirm.Message, "Delete")

	done := say(t, f, "yes")
	assert.Contains(t, done.Message, "deleted")

	_, err := f.storage.GetEntryByCode(ctx, "u1", first.ReferenceCode)
	assert.Error(t, err)
}

func TestCommitFlagsRecurringMatch(t *testing.T) {
	f := newFixture(t, &stubClient{})
	ctx := context.Background()

	prefs := model.DefaultPreferences()
	prefs.AutoConfirmThreshold = 0.5
	require.NoError(t, f.cache.SavePreferences(ctx, "u1", prefs))

	last := time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.storage.UpsertRecurringRule(ctx, "u1", model.RecurringPattern{
		Description:    "rent",
		Keywords:       "rent",
		Kind:           model.KindExpense,
		Frequency:      model.FrequencyMonthly,
		AvgAmount:      decimal.RequireFromString("1200"),
		MinAmount:      decimal.RequireFromString("1200"),
		MaxAmount:      decimal.RequireFromString("1200"),
		Occurrences:    4,
		DayOfMonth:     5,
		LastOccurrence: last,
		NextExpected:   last.AddDate(0, 1, 0),
		Confidence:     0.9,
	}))

	response := say(t, f, "paid 1200 rent")
	assert.True(t, response.Success)
	assert.Contains(t, response.Message, "saved")
	assert.Contains(t, response.Message, "Looks like your monthly rent")

	// An unrelated commit gets no recurring note.
	other := say(t, f, "spent 30 on pizza")
	assert.NotContains(t, other.Message, "Looks like")
}

func TestEditCategoryByCode(t *testing.T) {
	f := newFixture(t, &stubClient{})
	ctx := context.Background()

	prefs := model.DefaultPreferences()
	prefs.AutoConfirmThreshold = 0.5
	require.NoError(t, f.cache.SavePreferences(ctx, "u1", prefs))

	saved := say(t, f, "spent 50 on lunch")
	code := saved.ReferenceCode
	require.NotEmpty(t, code)

	question := say(t, f, "move "+code+" to transport")
	assert.True(t, question.RequiresConfirmation)
	assert.Contains(t, question.Message, "Move")
	assert.Contains(t, question.Message, "Transport")

	done := say(t, f, "yes")
	assert.Contains(t, done.Message, "moved to Transport")

	transport, err := f.storage.ResolveCategory(ctx, "transport", model.KindExpense)
	require.NoError(t, err)
	entry, err := f.storage.GetEntryByCode(ctx, "u1", code)
	require.NoError(t, err)
	assert.Equal(t, transport.ID, entry.CategoryID)
}

func TestEditPrefersTargetAmount(t *testing.T) {
	f := newFixture(t, &stubClient{})
	ctx := context.Background()

	prefs := model.DefaultPreferences()
	prefs.AutoConfirmThreshold = 0.5
	require.NoError(t, f.cache.SavePreferences(ctx, "u1", prefs))

	saved := say(t, f, "spent 50 on lunch")
	require.NotEmpty(t, saved.ReferenceCode)

	question := say(t, f, "change lunch from 50 to 62")
	assert.True(t, question.RequiresConfirmation)
	assert.Contains(t, question.Message, "62.00")

	say(t, f, "yes")
	entry, err := f.storage.GetEntryByCode(ctx, "u1", saved.ReferenceCode)
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("62")))
}

func TestUnknownDegradesToRephrase(t *testing.T) {
	f := newFixture(t, &stubClient{err: assert.AnError})

	response := say(t, f, "zzz qqq wibble")
	assert.Contains(t, response.Message, "rephrase")
}

func TestGreetingTimeOfDay(t *testing.T) {
	f := newFixture(t, &stubClient{})

	response, err := f.orchestrator.Process(context.Background(), &model.ConversationContext{
		Timestamp:    time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		UserID:       "u1",
		Conversation: "conv-1",
		Message:      "good morning",
		Channel:      model.ChannelText,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(response.Message, "Good morning"))
}

func TestHelp(t *testing.T) {
	f := newFixture(t, &stubClient{})

	response := say(t, f, "help")
	assert.Contains(t, response.Message, "Record")
	assert.Contains(t, response.Message, "Summaries")
}

func TestNeedsMoreInfoQuestionIsReply(t *testing.T) {
	f := newFixture(t, &stubClient{reply: `{"kind": "expense", "amount": 0, "description": "thing", "confidence": 0.4}`})

	response := say(t, f, "bought something nice")
	assert.Equal(t, "What was the amount?", response.Message)
}

func TestExchangesRecorded(t *testing.T) {
	f := newFixture(t, &stubClient{})

	say(t, f, "help")
	say(t, f, "spent 10 on pizza")

	history, err := f.cache.History(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "help", history[0].User)
}
