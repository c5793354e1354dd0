package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/extract"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/text"
)

// searchLimit caps keyword matches when locating an entry to edit or delete.
const searchLimit = 5

var amountToken = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// codeShapePattern is the exact shape of generated reference codes. Stricter
// than the disambiguation scan so ordinary five-letter words never read as
// codes.
var codeShapePattern = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z]\b`)

func (o *Orchestrator) handleRegister(ctx context.Context, convCtx *model.ConversationContext) (model.AgentResponse, error) {
	candidate, err := o.extractor.Extract(ctx, convCtx)
	if err != nil {
		var needs *extract.NeedsMoreInfo
		if errors.As(err, &needs) {
			return model.Reply(needs.Question), nil
		}
		return model.AgentResponse{}, err
	}

	// Compound messages always go through confirmation, listing every item.
	if candidate.MultiItem {
		var lines []string
		for _, item := range candidate.Items {
			lines = append(lines, fmt.Sprintf("- %s: %s (%s)", item.Kind, item.Amount.StringFixed(2), item.Description))
		}
		question := fmt.Sprintf("I found %d transactions:\n%s\nSave them all? (yes/no)",
			len(candidate.Items), strings.Join(lines, "\n"))
		return o.stageAction(ctx, convCtx, model.PendingRegister, candidate, question)
	}

	prefs, err := o.cache.GetPreferences(ctx, convCtx.UserID)
	if err != nil {
		o.logger.Warn("Failed to load preferences", "error", err)
		prefs = model.DefaultPreferences()
	}

	if candidate.Confidence >= prefs.AutoConfirmThreshold {
		return o.commit(ctx, convCtx, candidate)
	}

	verb := "expense"
	if candidate.Kind == model.KindIncome {
		verb = "income"
	}
	question := fmt.Sprintf("Save %s: %s, %s (%s)? (yes/no)",
		verb, candidate.Description, candidate.Amount.StringFixed(2), candidate.Category)
	return o.stageAction(ctx, convCtx, model.PendingRegister, candidate, question)
}

func (o *Orchestrator) handleQuery(ctx context.Context, convCtx *model.ConversationContext) (model.AgentResponse, error) {
	now := convCtx.Now()

	summary, err := o.storage.MonthSummary(ctx, convCtx.UserID, now)
	if err != nil {
		return model.AgentResponse{}, fmt.Errorf("failed to build summary: %w", err)
	}

	recent, err := o.storage.ListRecentEntries(ctx, convCtx.UserID, searchLimit)
	if err != nil {
		return model.AgentResponse{}, fmt.Errorf("failed to list recent entries: %w", err)
	}

	if summary.EntryCount == 0 {
		return model.Reply(fmt.Sprintf("Nothing recorded for %s %d yet.", summary.Month, summary.Year)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %d: income %s, expenses %s, balance %s (%d entries).",
		summary.Month, summary.Year,
		summary.TotalIncome.StringFixed(2), summary.TotalExpense.StringFixed(2),
		summary.Balance().StringFixed(2), summary.EntryCount)

	if len(recent) > 0 {
		b.WriteString("\nLatest:")
		for _, e := range recent {
			sign := "-"
			if e.Kind == model.KindIncome {
				sign = "+"
			}
			fmt.Fprintf(&b, "\n%s %s %s (%s, %s)",
				sign, e.Amount.StringFixed(2), e.Description, e.Code, e.Date.Format("Jan 2"))
		}
	}

	return model.AgentResponse{
		Success: true,
		Message: b.String(),
		Data: map[string]any{
			"income":  summary.TotalIncome.String(),
			"expense": summary.TotalExpense.String(),
			"balance": summary.Balance().String(),
		},
	}, nil
}

const editHint = "What should change? Tell me like: change AB12C to 45.50, or: move AB12C to food"

func (o *Orchestrator) handleEdit(ctx context.Context, convCtx *model.ConversationContext) (model.AgentResponse, error) {
	message, code := splitReferenceCode(convCtx.Message)
	amount, hasAmount := parseAmount(message)

	if code != "" {
		entry, err := o.storage.GetEntryByCode(ctx, convCtx.UserID, code)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return model.Reply(fmt.Sprintf("I couldn't find entry %s.", code)), nil
			}
			return model.AgentResponse{}, err
		}
		payload, ok := o.buildEditPayload(ctx, entry, message, amount, hasAmount)
		if !ok {
			return model.Reply(editHint), nil
		}
		return o.stageAction(ctx, convCtx, model.PendingEdit, payload, editQuestion(entry, payload))
	}

	matches, err := o.searchByKeyword(ctx, convCtx, message, editWords)
	if err != nil {
		return model.AgentResponse{}, err
	}
	if len(matches) == 0 {
		return model.Reply("I couldn't find a matching entry. Which one did you mean? You can give me its code."), nil
	}

	payload, ok := o.buildEditPayload(ctx, &matches[0], message, amount, hasAmount)
	if !ok {
		return model.Reply(editHint), nil
	}
	if len(matches) == 1 {
		return o.stageAction(ctx, convCtx, model.PendingEdit, payload, editQuestion(&matches[0], payload))
	}

	// The code is filled in once the user picks a candidate.
	payload.Code = ""
	return o.stageDisambiguation(ctx, convCtx, matches, model.PendingEdit, payload)
}

// buildEditPayload works out what the message changes: a new amount when one
// is present, otherwise a category move.
func (o *Orchestrator) buildEditPayload(ctx context.Context, entry *model.LedgerEntry, message string,
	amount decimal.Decimal, hasAmount bool) (editPayload, bool) {

	if hasAmount {
		return editPayload{Code: entry.Code, NewAmount: amount}, true
	}
	category, ok := o.matchCategory(ctx, entry.Kind, message)
	if !ok {
		return editPayload{}, false
	}
	return editPayload{Code: entry.Code, NewCategory: category.Name, NewCategoryID: category.ID}, true
}

func editQuestion(entry *model.LedgerEntry, payload editPayload) string {
	if payload.NewCategoryID != 0 {
		return fmt.Sprintf("Move %s (%s) to %s? (yes/no)",
			entry.Description, entry.Code, payload.NewCategory)
	}
	return fmt.Sprintf("Change %s (%s) from %s to %s? (yes/no)",
		entry.Description, entry.Code, entry.Amount.StringFixed(2), payload.NewAmount.StringFixed(2))
}

// matchCategory finds a category of the entry's kind named in the message.
func (o *Orchestrator) matchCategory(ctx context.Context, kind model.TransactionKind, message string) (*model.Category, bool) {
	categories, err := o.storage.GetCategories(ctx)
	if err != nil {
		o.logger.Warn("Failed to load categories", "error", err)
		return nil, false
	}

	normalized := " " + text.Normalize(message) + " "
	for i := range categories {
		if categories[i].Kind != kind {
			continue
		}
		if strings.Contains(normalized, " "+text.Normalize(categories[i].Name)+" ") {
			return &categories[i], true
		}
	}
	return nil, false
}

func (o *Orchestrator) handleDelete(ctx context.Context, convCtx *model.ConversationContext) (model.AgentResponse, error) {
	message, code := splitReferenceCode(convCtx.Message)

	if code != "" {
		entry, err := o.storage.GetEntryByCode(ctx, convCtx.UserID, code)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return model.Reply(fmt.Sprintf("I couldn't find entry %s.", code)), nil
			}
			return model.AgentResponse{}, err
		}
		return o.stageAction(ctx, convCtx, model.PendingDelete, deletePayload{Code: code},
			fmt.Sprintf("Delete %s (%s, %s)? (yes/no)",
				entry.Description, code, entry.Amount.StringFixed(2)))
	}

	matches, err := o.searchByKeyword(ctx, convCtx, message, deleteWords)
	if err != nil {
		return model.AgentResponse{}, err
	}

	switch len(matches) {
	case 0:
		return model.Reply("I couldn't find a matching entry. Which one did you mean? You can give me its code."), nil
	case 1:
		entry := matches[0]
		return o.stageAction(ctx, convCtx, model.PendingDelete, deletePayload{Code: entry.Code},
			fmt.Sprintf("Delete %s (%s, %s)? (yes/no)",
				entry.Description, entry.Code, entry.Amount.StringFixed(2)))
	}

	return o.stageDisambiguation(ctx, convCtx, matches, model.PendingDelete, deletePayload{})
}

func (o *Orchestrator) handleGreeting(_ context.Context, convCtx *model.ConversationContext) (model.AgentResponse, error) {
	hour := convCtx.Now().Hour()
	greeting := "Good evening!"
	switch {
	case hour < 12:
		greeting = "Good morning!"
	case hour < 18:
		greeting = "Good afternoon!"
	}
	return model.Reply(greeting + " Tell me about an expense or some income and I'll track it for you."), nil
}

func (o *Orchestrator) handleHelp(_ context.Context, _ *model.ConversationContext) (model.AgentResponse, error) {
	return model.Reply(`Here's what I can do:
- Record: "spent 50 on lunch", "received 3000 salary"
- Summaries: "how much did I spend this month?"
- Fix entries: "change AB12C to 45.50"
- Remove entries: "delete the uber entry"
Every saved entry gets a short code you can refer back to.`), nil
}

// stageDisambiguation lists the candidate entries and stores their codes so
// the next reply can pick one.
func (o *Orchestrator) stageDisambiguation(ctx context.Context, convCtx *model.ConversationContext,
	matches []model.LedgerEntry, next model.PendingActionKind, payload any) (model.AgentResponse, error) {

	data, err := json.Marshal(payload)
	if err != nil {
		return model.AgentResponse{}, fmt.Errorf("failed to marshal disambiguation payload: %w", err)
	}

	action := &model.PendingAction{
		Kind:    model.PendingDisambiguate,
		Next:    next,
		Payload: data,
	}

	var lines []string
	for _, e := range matches {
		action.Codes = append(action.Codes, e.Code)
		lines = append(lines, fmt.Sprintf("%s: %s, %s (%s)",
			e.Code, e.Description, e.Amount.StringFixed(2), e.Date.Format("Jan 2")))
	}

	if err := o.cache.SavePendingAction(ctx, convCtx.Conversation, action); err != nil {
		return model.AgentResponse{}, fmt.Errorf("failed to stage disambiguation: %w", err)
	}

	return model.AgentResponse{
		Success:              true,
		RequiresConfirmation: true,
		Pending:              action,
		Message:              "I found more than one match:\n" + strings.Join(lines, "\n") + "\nWhich code did you mean?",
	}, nil
}

// searchByKeyword finds the entries matching the message's first significant
// keyword, after stripping the intent verbs.
func (o *Orchestrator) searchByKeyword(ctx context.Context, convCtx *model.ConversationContext,
	message string, verbs map[string]struct{}) ([]model.LedgerEntry, error) {

	keyword := ""
	for _, tok := range strings.Fields(text.Normalize(message)) {
		if len(tok) <= 2 || text.IsStopWord(tok) {
			continue
		}
		if _, ok := verbs[tok]; ok {
			continue
		}
		if amountToken.MatchString(tok) {
			continue
		}
		if tok == "entry" || tok == "lancamento" {
			continue
		}
		keyword = tok
		break
	}
	if keyword == "" {
		return nil, nil
	}

	return o.storage.SearchEntries(ctx, convCtx.UserID, keyword, searchLimit)
}

// splitReferenceCode pulls an explicit reference code out of the message so
// its digits don't get mistaken for an amount.
func splitReferenceCode(message string) (rest, code string) {
	upper := strings.ToUpper(message)
	code = codeShapePattern.FindString(upper)
	if code == "" {
		return message, ""
	}
	idx := strings.Index(upper, code)
	return message[:idx] + message[idx+len(code):], code
}

// parseAmount finds the intended new amount. The number after "to"/"para"
// wins, then the last number, so "change lunch from 50 to 62" reads 62.
func parseAmount(message string) (decimal.Decimal, bool) {
	lower := strings.ToLower(message)

	candidate := ""
	for _, marker := range []string{" to ", " para "} {
		idx := strings.LastIndex(lower, marker)
		if idx < 0 {
			continue
		}
		if m := amountToken.FindString(message[idx+len(marker):]); m != "" {
			candidate = m
			break
		}
	}
	if candidate == "" {
		all := amountToken.FindAllString(message, -1)
		if len(all) == 0 {
			return decimal.Zero, false
		}
		candidate = all[len(all)-1]
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(candidate, ",", "."))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}
