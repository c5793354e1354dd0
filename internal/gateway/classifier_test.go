package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fintalk/fintalk/internal/model"
)

func classify(t *testing.T, client *stubClient, message string, pending *model.PendingAction) Classification {
	t.Helper()
	c := NewClassifier(client, nil)
	return c.Classify(context.Background(), &model.ConversationContext{
		UserID:       "u1",
		Conversation: "conv-1",
		Message:      message,
	}, pending)
}

func TestHeuristicIntents(t *testing.T) {
	tests := []struct {
		message string
		want    model.Intent
	}{
		{"how much did I spend this month?", model.IntentQuery},
		{"quanto gastei em julho", model.IntentQuery},
		{"what's my balance", model.IntentQuery},
		{"change AB12C to 45.50", model.IntentEdit},
		{"corrige o valor", model.IntentEdit},
		{"delete the uber entry", model.IntentDelete},
		{"apaga esse lancamento", model.IntentDelete},
		{"spent 50 on lunch", model.IntentRegister},
		{"gastei 30 no mercado", model.IntentRegister},
		{"1200 rent", model.IntentRegister},
		{"hi", model.IntentGreeting},
		{"bom dia", model.IntentGreeting},
		{"help", model.IntentHelp},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			client := &stubClient{}
			got := classify(t, client, tt.message, nil)
			assert.Equal(t, tt.want, got.Intent)
			assert.Zero(t, client.calls, "heuristics must not call the model")
		})
	}
}

func TestQueryBeatsRegisterVerbs(t *testing.T) {
	// Carries a financial verb but the query phrase takes precedence.
	got := classify(t, &stubClient{}, "how much did I spend on food?", nil)
	assert.Equal(t, model.IntentQuery, got.Intent)
}

func TestPendingAffirmationsAndNegations(t *testing.T) {
	pending := &model.PendingAction{Kind: model.PendingRegister}

	for _, message := range []string{"yes", "sim", "ok", "Yes please", "confirma"} {
		got := classify(t, &stubClient{}, message, pending)
		assert.Equal(t, model.IntentConfirm, got.Intent, "message %q", message)
	}
	for _, message := range []string{"no", "nao", "cancel", "cancela"} {
		got := classify(t, &stubClient{}, message, pending)
		assert.Equal(t, model.IntentCancel, got.Intent, "message %q", message)
	}
}

func TestPendingDisambiguationCode(t *testing.T) {
	pending := &model.PendingAction{
		Kind:  model.PendingDisambiguate,
		Codes: []string{"AB12C", "XY99Z"},
	}

	got := classify(t, &stubClient{}, "the first one, ab12c", pending)
	assert.Equal(t, model.IntentConfirm, got.Intent)
	assert.Equal(t, "AB12C", got.ResolvedCode)

	// A well-formed code that isn't among the candidates doesn't resolve.
	got = classify(t, &stubClient{err: assert.AnError}, "QQ11Q", pending)
	assert.Empty(t, got.ResolvedCode)
	assert.True(t, got.ClearPending)
}

func TestPendingFallbackClearsAndReclassifies(t *testing.T) {
	pending := &model.PendingAction{Kind: model.PendingRegister}

	got := classify(t, &stubClient{}, "spent 20 on coffee", pending)
	assert.Equal(t, model.IntentRegister, got.Intent)
	assert.True(t, got.ClearPending)
}

func TestLLMFailureDegradesToUnknown(t *testing.T) {
	got := classify(t, &stubClient{err: assert.AnError}, "mysterious gibberish words", nil)
	assert.Equal(t, model.IntentUnknown, got.Intent)
}

func TestLLMClassification(t *testing.T) {
	client := &stubClient{reply: `{"intent": "query"}`}
	got := classify(t, client, "remind me where my money went", nil)
	assert.Equal(t, model.IntentQuery, got.Intent)
	assert.Equal(t, 1, client.calls)

	// Unmapped intents become unknown.
	client = &stubClient{reply: `{"intent": "dance"}`}
	got = classify(t, client, "mysterious gibberish words", nil)
	assert.Equal(t, model.IntentUnknown, got.Intent)
}
