// Package extract turns free-form messages into transaction candidates. A
// deterministic fast pass handles the common single-transaction shapes; the
// language model covers everything else.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/learning"
	"github.com/fintalk/fintalk/internal/llm"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/service"
)

// maxSignificantNumbers is the ambiguity-guard cutoff: more numeric tokens
// than this and the message likely describes several transactions.
const maxSignificantNumbers = 2

// NeedsMoreInfo is returned when extraction cannot complete without another
// user turn. Question is ready to send as-is.
type NeedsMoreInfo struct {
	Question string
}

func (n *NeedsMoreInfo) Error() string {
	return "needs more info: " + n.Question
}

// Extractor runs the full extraction pipeline for one message.
type Extractor struct {
	client   llm.Client
	patterns *learning.Store
	storage  service.Storage
	logger   *slog.Logger
}

// NewExtractor wires the extraction pipeline.
func NewExtractor(client llm.Client, patterns *learning.Store, storage service.Storage, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, patterns: patterns, storage: storage, logger: logger}
}

// Extract produces a transaction candidate from the message, or a
// NeedsMoreInfo error naming the missing piece.
func (e *Extractor) Extract(ctx context.Context, convCtx *model.ConversationContext) (*model.TransactionCandidate, error) {
	message := convCtx.Message
	now := convCtx.Now()

	var candidate *model.TransactionCandidate

	if e.isAmbiguous(message) {
		e.logger.Debug("Ambiguous message, skipping fast path", "user", convCtx.UserID)
		c, err := e.llmPass(ctx, message, now)
		if err != nil {
			return nil, e.insufficientInfo(nil)
		}
		candidate = c
	} else if fast, ok := fastPass(message, now); ok {
		candidate = fast
	} else {
		c, err := e.llmPass(ctx, message, now)
		if err != nil {
			e.logger.Warn("LLM extraction failed", "error", err)
			return nil, e.insufficientInfo(nil)
		}
		candidate = c
	}

	if candidate.MultiItem {
		// Multi-item candidates are confirmed as a batch; no refinement of
		// the envelope.
		return candidate, nil
	}

	if missing := e.insufficientInfo(candidate); missing != nil {
		return nil, missing
	}

	e.refine(ctx, convCtx.UserID, candidate)

	if err := e.resolveCategory(ctx, candidate); err != nil {
		return nil, err
	}
	return candidate, nil
}

// isAmbiguous implements the guard that routes compound messages straight to
// the model: mixed income and expense vocabulary, or too many numbers.
func (e *Extractor) isAmbiguous(message string) bool {
	normalized := strings.ToLower(message)
	if hasBothKinds(strings.Fields(normalized)) {
		return true
	}
	return countNumericTokens(normalized) > maxSignificantNumbers
}

// refine overrides the category from the user's learned patterns. On a hit
// the candidate takes the pattern's confidence, already discounted for
// partial matches by the store.
func (e *Extractor) refine(ctx context.Context, userID string, candidate *model.TransactionCandidate) {
	pattern, err := e.patterns.Lookup(ctx, userID, candidate.Description, candidate.Kind)
	if errors.Is(err, common.ErrNotFound) {
		return
	}
	if err != nil {
		e.logger.Warn("Pattern lookup failed", "error", err)
		return
	}

	candidate.Category = pattern.CategoryName
	candidate.CategoryID = pattern.CategoryID
	candidate.Confidence = pattern.Confidence
	e.logger.Debug("Refined candidate from pattern", "keywords", pattern.Keywords,
		"category", pattern.CategoryName, "confidence", pattern.Confidence, "partial", pattern.Partial)
}

// resolveCategory pins the candidate to a registry category, falling back to
// the kind's Other bucket for unknown names.
func (e *Extractor) resolveCategory(ctx context.Context, candidate *model.TransactionCandidate) error {
	if candidate.CategoryID > 0 {
		return nil
	}
	category, err := e.storage.ResolveCategory(ctx, candidate.Category, candidate.Kind)
	if err != nil {
		return fmt.Errorf("failed to resolve category: %w", err)
	}
	candidate.Category = category.Name
	candidate.CategoryID = category.ID
	return nil
}

// insufficientInfo builds the follow-up question for an incomplete
// candidate. A nil candidate means extraction produced nothing at all.
func (e *Extractor) insufficientInfo(candidate *model.TransactionCandidate) error {
	if candidate == nil {
		return &NeedsMoreInfo{Question: "I couldn't work that out. What was the amount, and was it money in or out?"}
	}
	if !candidate.Amount.IsPositive() {
		return &NeedsMoreInfo{Question: "What was the amount?"}
	}
	if candidate.Kind != model.KindIncome && candidate.Kind != model.KindExpense {
		return &NeedsMoreInfo{Question: "Was that money in or out?"}
	}
	return nil
}
