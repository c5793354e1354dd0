package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/extract"
	"github.com/fintalk/fintalk/internal/learning"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/recurrence"
	"github.com/fintalk/fintalk/internal/service"
)

// codeAttempts bounds reference code generation retries on collision.
const codeAttempts = 5

// editPayload is the staged body of a pending correction: either a new
// amount or a new category, never both.
type editPayload struct {
	Code          string          `json:"code"`
	NewAmount     decimal.Decimal `json:"new_amount"`
	NewCategory   string          `json:"new_category,omitempty"`
	NewCategoryID int64           `json:"new_category_id,omitempty"`
}

// deletePayload is the staged body of a pending removal.
type deletePayload struct {
	Code string `json:"code"`
}

// Orchestrator drives one inbound message through classification, the
// confirmation state machine and the per-intent handlers.
type Orchestrator struct {
	classifier *Classifier
	extractor  *extract.Extractor
	patterns   *learning.Store
	storage    service.Storage
	cache      service.Cache
	logger     *slog.Logger
	handlers   map[model.Intent]func(context.Context, *model.ConversationContext) (model.AgentResponse, error)
}

// NewOrchestrator wires the message pipeline.
func NewOrchestrator(classifier *Classifier, extractor *extract.Extractor, patterns *learning.Store,
	storage service.Storage, cache service.Cache, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		classifier: classifier,
		extractor:  extractor,
		patterns:   patterns,
		storage:    storage,
		cache:      cache,
		logger:     logger,
	}
	o.handlers = map[model.Intent]func(context.Context, *model.ConversationContext) (model.AgentResponse, error){
		model.IntentRegister: o.handleRegister,
		model.IntentQuery:    o.handleQuery,
		model.IntentEdit:     o.handleEdit,
		model.IntentDelete:   o.handleDelete,
		model.IntentGreeting: o.handleGreeting,
		model.IntentHelp:     o.handleHelp,
	}
	return o
}

// Process handles one inbound message end to end and always produces a
// reply. An expired or missing pending action simply means the message is
// classified fresh.
func (o *Orchestrator) Process(ctx context.Context, convCtx *model.ConversationContext) (model.AgentResponse, error) {
	pending, err := o.cache.GetPendingAction(ctx, convCtx.Conversation)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return model.AgentResponse{}, fmt.Errorf("failed to load pending action: %w", err)
	}

	classification := o.classifier.Classify(ctx, convCtx, pending)
	convCtx.Intent = classification.Intent
	o.logger.Debug("Classified message", "user", convCtx.UserID, "intent", classification.Intent)

	if classification.ClearPending {
		if err := o.cache.ClearPendingAction(ctx, convCtx.Conversation); err != nil {
			o.logger.Warn("Failed to clear stale pending action", "error", err)
		}
	}

	response, err := o.dispatch(ctx, convCtx, classification, pending)
	if err != nil {
		return response, err
	}

	if err := o.cache.AppendExchange(ctx, convCtx.Conversation, convCtx.Message, response.Message); err != nil {
		o.logger.Warn("Failed to record exchange", "error", err)
	}
	return response, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, convCtx *model.ConversationContext,
	classification Classification, pending *model.PendingAction) (model.AgentResponse, error) {

	switch classification.Intent {
	case model.IntentConfirm:
		if pending == nil {
			return model.Reply("There's nothing waiting for confirmation right now."), nil
		}
		return o.handleConfirm(ctx, convCtx, pending, classification.ResolvedCode)

	case model.IntentCancel:
		if err := o.cache.ClearPendingAction(ctx, convCtx.Conversation); err != nil {
			return model.AgentResponse{}, fmt.Errorf("failed to cancel: %w", err)
		}
		return model.Reply("Okay, cancelled. Nothing was saved."), nil

	case model.IntentUnknown:
		return model.Reply("Sorry, I didn't get that. Could you rephrase? Say \"help\" to see what I can do."), nil
	}

	handler, ok := o.handlers[classification.Intent]
	if !ok {
		return model.Reply("Sorry, I didn't get that. Could you rephrase? Say \"help\" to see what I can do."), nil
	}
	return handler(ctx, convCtx)
}

// handleConfirm resolves an affirmative reply against the staged action.
func (o *Orchestrator) handleConfirm(ctx context.Context, convCtx *model.ConversationContext,
	pending *model.PendingAction, resolvedCode string) (model.AgentResponse, error) {

	if err := o.cache.ClearPendingAction(ctx, convCtx.Conversation); err != nil {
		return model.AgentResponse{}, fmt.Errorf("failed to consume pending action: %w", err)
	}

	switch pending.Kind {
	case model.PendingRegister:
		var candidate model.TransactionCandidate
		if err := json.Unmarshal(pending.Payload, &candidate); err != nil {
			return model.AgentResponse{}, fmt.Errorf("corrupt pending candidate: %w", err)
		}
		return o.commit(ctx, convCtx, &candidate)

	case model.PendingEdit:
		var payload editPayload
		if err := json.Unmarshal(pending.Payload, &payload); err != nil {
			return model.AgentResponse{}, fmt.Errorf("corrupt pending edit: %w", err)
		}
		if payload.NewCategoryID != 0 {
			if err := o.storage.UpdateEntryCategory(ctx, convCtx.UserID, payload.Code, payload.NewCategoryID); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return model.Reply(fmt.Sprintf("I couldn't find entry %s anymore.", payload.Code)), nil
				}
				return model.AgentResponse{}, err
			}
			return model.AgentResponse{
				Success:       true,
				ReferenceCode: payload.Code,
				Message:       fmt.Sprintf("Done, entry %s moved to %s.", payload.Code, payload.NewCategory),
			}, nil
		}
		if err := o.storage.UpdateEntryAmount(ctx, convCtx.UserID, payload.Code, payload.NewAmount); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return model.Reply(fmt.Sprintf("I couldn't find entry %s anymore.", payload.Code)), nil
			}
			return model.AgentResponse{}, err
		}
		return model.AgentResponse{
			Success:       true,
			ReferenceCode: payload.Code,
			Message:       fmt.Sprintf("Done, entry %s updated to %s.", payload.Code, payload.NewAmount.StringFixed(2)),
		}, nil

	case model.PendingDelete:
		var payload deletePayload
		if err := json.Unmarshal(pending.Payload, &payload); err != nil {
			return model.AgentResponse{}, fmt.Errorf("corrupt pending delete: %w", err)
		}
		if err := o.storage.DeleteEntry(ctx, convCtx.UserID, payload.Code); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return model.Reply(fmt.Sprintf("I couldn't find entry %s anymore.", payload.Code)), nil
			}
			return model.AgentResponse{}, err
		}
		return model.AgentResponse{
			Success:       true,
			ReferenceCode: payload.Code,
			Message:       fmt.Sprintf("Done, entry %s deleted.", payload.Code),
		}, nil

	case model.PendingDisambiguate:
		return o.resolveDisambiguation(ctx, convCtx, pending, resolvedCode)
	}

	return model.Reply("There's nothing waiting for confirmation right now."), nil
}

// resolveDisambiguation turns a chosen code into the follow-up pending
// action and asks for the final yes/no.
func (o *Orchestrator) resolveDisambiguation(ctx context.Context, convCtx *model.ConversationContext,
	pending *model.PendingAction, code string) (model.AgentResponse, error) {

	if code == "" {
		// A bare "yes" doesn't pick an entry. Put the disambiguation back so
		// the next reply can still answer with a code.
		if err := o.cache.SavePendingAction(ctx, convCtx.Conversation, pending); err != nil {
			return model.AgentResponse{}, fmt.Errorf("failed to restage disambiguation: %w", err)
		}
		return model.Reply("Which entry did you mean? Reply with its code."), nil
	}

	entry, err := o.storage.GetEntryByCode(ctx, convCtx.UserID, code)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return model.Reply(fmt.Sprintf("I couldn't find entry %s anymore.", code)), nil
		}
		return model.AgentResponse{}, err
	}

	switch pending.Next {
	case model.PendingEdit:
		var payload editPayload
		if err := json.Unmarshal(pending.Payload, &payload); err != nil {
			return model.AgentResponse{}, fmt.Errorf("corrupt disambiguation payload: %w", err)
		}
		payload.Code = code
		return o.stageAction(ctx, convCtx, model.PendingEdit, payload, editQuestion(entry, payload))

	case model.PendingDelete:
		return o.stageAction(ctx, convCtx, model.PendingDelete, deletePayload{Code: code},
			fmt.Sprintf("Delete %s (%s, %s)? (yes/no)",
				entry.Description, code, entry.Amount.StringFixed(2)))
	}

	return model.Reply("That pending action expired. What would you like to do?"), nil
}

// commit writes a confirmed candidate to the ledger and reinforces the
// pattern store. Multi-item candidates commit each item separately.
func (o *Orchestrator) commit(ctx context.Context, convCtx *model.ConversationContext,
	candidate *model.TransactionCandidate) (model.AgentResponse, error) {

	if candidate.MultiItem {
		var codes []string
		for i := range candidate.Items {
			response, err := o.commit(ctx, convCtx, &candidate.Items[i])
			if err != nil {
				return model.AgentResponse{}, err
			}
			codes = append(codes, response.ReferenceCode)
		}
		return model.AgentResponse{
			Success: true,
			Data:    map[string]any{"codes": codes},
			Message: fmt.Sprintf("Saved %d entries (%s).", len(codes), strings.Join(codes, ", ")),
		}, nil
	}

	if candidate.CategoryID == 0 {
		category, err := o.storage.ResolveCategory(ctx, candidate.Category, candidate.Kind)
		if err != nil {
			return model.AgentResponse{}, fmt.Errorf("failed to resolve category: %w", err)
		}
		candidate.Category = category.Name
		candidate.CategoryID = category.ID
	}

	code, err := o.newReferenceCode(ctx)
	if err != nil {
		return model.AgentResponse{}, err
	}

	entry := &model.LedgerEntry{
		ID:          uuid.NewString(),
		Code:        code,
		UserID:      convCtx.UserID,
		Description: candidate.Description,
		Kind:        candidate.Kind,
		Channel:     convCtx.Channel,
		Amount:      candidate.Amount,
		Confidence:  candidate.Confidence,
		CategoryID:  candidate.CategoryID,
		Date:        candidate.Date,
	}
	if entry.Date.IsZero() {
		entry.Date = convCtx.Now()
	}
	if entry.Channel == "" {
		entry.Channel = model.ChannelText
	}

	if err := o.storage.SaveEntry(ctx, entry); err != nil {
		return model.AgentResponse{}, fmt.Errorf("failed to commit entry: %w", err)
	}

	if err := o.patterns.Register(ctx, convCtx.UserID, entry.Description, entry.Kind, entry.CategoryID); err != nil {
		o.logger.Warn("Failed to reinforce pattern", "error", err)
	}

	verb := "Expense"
	if entry.Kind == model.KindIncome {
		verb = "Income"
	}
	message := fmt.Sprintf("%s saved: %s, %s (%s). Code %s.",
		verb, entry.Description, entry.Amount.StringFixed(2), candidate.Category, code)
	if note := o.recurringNote(ctx, convCtx.UserID, entry); note != "" {
		message += " " + note
	}
	return model.AgentResponse{
		Success:       true,
		ReferenceCode: code,
		Message:       message,
	}, nil
}

// recurringNote mentions when a fresh entry looks like an occurrence of a
// promoted recurring rule. Rule lookup failures only cost the note.
func (o *Orchestrator) recurringNote(ctx context.Context, userID string, entry *model.LedgerEntry) string {
	rules, err := o.storage.ListRecurringRules(ctx, userID)
	if err != nil {
		o.logger.Warn("Failed to load recurring rules", "error", err)
		return ""
	}
	for i := range rules {
		if recurrence.MatchEntry(entry, &rules[i]) {
			return fmt.Sprintf("Looks like your %s %s.", rules[i].Frequency, rules[i].Description)
		}
	}
	return ""
}

// stageAction persists a pending action and returns the confirmation prompt.
func (o *Orchestrator) stageAction(ctx context.Context, convCtx *model.ConversationContext,
	kind model.PendingActionKind, payload any, question string) (model.AgentResponse, error) {

	data, err := json.Marshal(payload)
	if err != nil {
		return model.AgentResponse{}, fmt.Errorf("failed to marshal pending payload: %w", err)
	}

	action := &model.PendingAction{Kind: kind, Payload: data}
	if err := o.cache.SavePendingAction(ctx, convCtx.Conversation, action); err != nil {
		return model.AgentResponse{}, fmt.Errorf("failed to stage pending action: %w", err)
	}

	return model.AgentResponse{
		Success:              true,
		RequiresConfirmation: true,
		Pending:              action,
		Message:              question,
	}, nil
}

const codeLetters = "ABCDEFGHJKLMNPQRSTUVWXYZ"

// newReferenceCode generates a short code: two letters, two digits, one
// letter, retried on the rare collision.
func (o *Orchestrator) newReferenceCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := string([]byte{
			codeLetters[rand.IntN(len(codeLetters))],
			codeLetters[rand.IntN(len(codeLetters))],
			byte('0' + rand.IntN(10)),
			byte('0' + rand.IntN(10)),
			codeLetters[rand.IntN(len(codeLetters))],
		})

		exists, err := o.storage.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check reference code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique reference code")
}
