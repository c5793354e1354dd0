// Package gateway routes inbound messages: it classifies intent, drives the
// confirmation state machine and dispatches to the per-intent handlers.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fintalk/fintalk/internal/llm"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/text"
)

// Affirmation and negation vocabularies for resolving pending actions,
// matched against the whole normalized reply or its first token.
var (
	affirmations = map[string]struct{}{
		"sim": {}, "s": {}, "ok": {}, "confirma": {}, "confirmo": {},
		"confirmar": {}, "pode": {}, "isso": {}, "claro": {}, "certo": {},
		"yes": {}, "y": {}, "yep": {}, "yeah": {}, "sure": {}, "confirm": {},
		"correct": {}, "right": {},
	}
	negations = map[string]struct{}{
		"nao": {}, "n": {}, "cancela": {}, "cancelar": {}, "errado": {},
		"no": {}, "nope": {}, "cancel": {}, "wrong": {}, "stop": {},
	}
)

// referenceCodePattern is the shape of a short entry reference code.
var referenceCodePattern = regexp.MustCompile(`\b[A-Z0-9]{5}\b`)

// Heuristic intent vocabularies, checked in precedence order.
var (
	queryPhrases = []string{
		"how much", "what's my balance", "whats my balance", "my balance",
		"quanto gastei", "quanto recebi", "meu saldo", "saldo", "extrato",
		"resumo", "summary", "spent this", "show me",
	}
	editWords = map[string]struct{}{
		"corrige": {}, "corrigir": {}, "altera": {}, "alterar": {},
		"muda": {}, "mudar": {}, "mover": {}, "edit": {}, "change": {},
		"correct": {}, "fix": {}, "update": {}, "move": {},
	}
	deleteWords = map[string]struct{}{
		"apaga": {}, "apagar": {}, "exclui": {}, "excluir": {},
		"remove": {}, "remover": {}, "delete": {}, "deleta": {}, "erase": {},
	}
	greetingWords = map[string]struct{}{
		"oi": {}, "ola": {}, "bom": {}, "boa": {}, "hi": {}, "hello": {},
		"hey": {}, "morning": {}, "evening": {},
	}
	helpWords = map[string]struct{}{
		"ajuda": {}, "help": {}, "comandos": {}, "commands": {},
	}
	financialVerbs = map[string]struct{}{
		"gastei": {}, "paguei": {}, "comprei": {}, "recebi": {}, "ganhei": {},
		"spent": {}, "paid": {}, "bought": {}, "received": {}, "earned": {},
	}
)

var hasDigit = regexp.MustCompile(`\d`)

const classifyPromptTemplate = `Classify the intent of this message from a personal finance assistant user.

Message: %q

Respond with ONLY a JSON object:
{"intent": "register" | "query" | "edit" | "delete" | "greeting" | "help" | "unknown"}`

// Classifier determines the intent of an inbound message.
type Classifier struct {
	client llm.Client
	logger *slog.Logger
}

// NewClassifier creates an intent classifier.
func NewClassifier(client llm.Client, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{client: client, logger: logger}
}

// Classify resolves the message's intent. When a pending action exists the
// reply is first interpreted as an answer to it; ResolvedCode carries a
// matched disambiguation code. Classification itself has no side effects.
type Classification struct {
	Intent model.Intent
	// ResolvedCode is set when Intent is IntentConfirm and the reply picked
	// a disambiguation candidate by code.
	ResolvedCode string
	// ClearPending signals that the reply matched neither confirm, cancel
	// nor a valid code and the stale pending action should be dropped.
	ClearPending bool
}

// Classify runs the precedence chain: pending-action resolution, ordered
// heuristics, then the model. Model failure degrades to IntentUnknown.
func (c *Classifier) Classify(ctx context.Context, convCtx *model.ConversationContext, pending *model.PendingAction) Classification {
	normalized := text.Normalize(convCtx.Message)
	tokens := strings.Fields(normalized)

	if pending != nil {
		if result, ok := c.resolvePending(convCtx.Message, normalized, tokens, pending); ok {
			return result
		}
		// Neither confirm, cancel nor a valid code: drop the pending action
		// and treat the message as fresh, so the conversation never sticks.
		fresh := c.classifyFresh(ctx, convCtx, normalized, tokens)
		fresh.ClearPending = true
		return fresh
	}

	return c.classifyFresh(ctx, convCtx, normalized, tokens)
}

func (c *Classifier) resolvePending(raw, normalized string, tokens []string, pending *model.PendingAction) (Classification, bool) {
	if len(tokens) > 0 {
		if _, ok := affirmations[normalized]; ok {
			return Classification{Intent: model.IntentConfirm}, true
		}
		if _, ok := affirmations[tokens[0]]; ok && len(tokens) <= 3 {
			return Classification{Intent: model.IntentConfirm}, true
		}
		if _, ok := negations[normalized]; ok {
			return Classification{Intent: model.IntentCancel}, true
		}
		if _, ok := negations[tokens[0]]; ok && len(tokens) <= 3 {
			return Classification{Intent: model.IntentCancel}, true
		}
	}

	if pending.Kind == model.PendingDisambiguate {
		for _, code := range referenceCodePattern.FindAllString(strings.ToUpper(raw), -1) {
			if pending.HasCode(code) {
				return Classification{Intent: model.IntentConfirm, ResolvedCode: code}, true
			}
		}
	}

	return Classification{}, false
}

func (c *Classifier) classifyFresh(ctx context.Context, convCtx *model.ConversationContext, normalized string, tokens []string) Classification {
	if intent, ok := heuristicIntent(normalized, tokens); ok {
		return Classification{Intent: intent}
	}

	intent, err := c.llmClassify(ctx, convCtx.Message)
	if err != nil {
		c.logger.Warn("LLM classification failed", "error", err)
		return Classification{Intent: model.IntentUnknown}
	}
	return Classification{Intent: intent}
}

// heuristicIntent applies the ordered deterministic detectors. Precedence
// matters: "how much did I spend" carries a financial verb but is a query.
func heuristicIntent(normalized string, tokens []string) (model.Intent, bool) {
	for _, phrase := range queryPhrases {
		if strings.Contains(normalized, phrase) {
			return model.IntentQuery, true
		}
	}

	for _, tok := range tokens {
		if _, ok := editWords[tok]; ok {
			return model.IntentEdit, true
		}
	}
	for _, tok := range tokens {
		if _, ok := deleteWords[tok]; ok {
			return model.IntentDelete, true
		}
	}

	hasAmount := hasDigit.MatchString(normalized)
	for _, tok := range tokens {
		if _, ok := financialVerbs[tok]; ok {
			return model.IntentRegister, true
		}
	}
	if hasAmount {
		return model.IntentRegister, true
	}

	if len(tokens) <= 3 {
		for _, tok := range tokens {
			if _, ok := greetingWords[tok]; ok {
				return model.IntentGreeting, true
			}
		}
	}

	for _, tok := range tokens {
		if _, ok := helpWords[tok]; ok {
			return model.IntentHelp, true
		}
	}

	return model.IntentUnknown, false
}

func (c *Classifier) llmClassify(ctx context.Context, message string) (model.Intent, error) {
	reply, err := c.client.Complete(ctx, fmt.Sprintf(classifyPromptTemplate, message))
	if err != nil {
		return model.IntentUnknown, err
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if err := llm.Decode(reply, &out); err != nil {
		return model.IntentUnknown, err
	}

	switch model.Intent(strings.ToLower(strings.TrimSpace(out.Intent))) {
	case model.IntentRegister:
		return model.IntentRegister, nil
	case model.IntentQuery:
		return model.IntentQuery, nil
	case model.IntentEdit:
		return model.IntentEdit, nil
	case model.IntentDelete:
		return model.IntentDelete, nil
	case model.IntentGreeting:
		return model.IntentGreeting, nil
	case model.IntentHelp:
		return model.IntentHelp, nil
	}
	return model.IntentUnknown, nil
}
