package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintalk/fintalk/internal/llm"
	"github.com/fintalk/fintalk/internal/model"
)

const extractionPromptTemplate = `You are a financial assistant. Extract transaction data from the user's message.

Message: %q
Today's date: %s

Respond with ONLY a JSON object, no prose:
{
  "multi_item": false,
  "kind": "income" or "expense",
  "amount": 0.0,
  "description": "short description",
  "category": "category name or empty",
  "date": "YYYY-MM-DD or empty for today",
  "confidence": 0.0 to 1.0,
  "items": []
}

If the message describes MORE THAN ONE transaction, set "multi_item" to true
and put every transaction in "items" (same fields, without "items").
If you cannot determine a field, leave it empty or zero.`

// llmItem is the wire shape of one extracted transaction.
type llmItem struct {
	Kind        string  `json:"kind"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Date        string  `json:"date"`
	Confidence  float64 `json:"confidence"`
}

type llmExtraction struct {
	llmItem
	MultiItem bool      `json:"multi_item"`
	Items     []llmItem `json:"items"`
}

// llmPass asks the model for a structured extraction and converts the reply
// defensively. Bad fields zero out rather than erroring so the caller can
// fall back to NeedsMoreInfo questions.
func (e *Extractor) llmPass(ctx context.Context, message string, now time.Time) (*model.TransactionCandidate, error) {
	prompt := fmt.Sprintf(extractionPromptTemplate, message, now.Format("2006-01-02"))

	reply, err := e.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extraction completion failed: %w", err)
	}

	var out llmExtraction
	if err := llm.Decode(reply, &out); err != nil {
		return nil, fmt.Errorf("extraction reply unusable: %w", err)
	}

	if out.MultiItem && len(out.Items) > 0 {
		candidate := &model.TransactionCandidate{
			MultiItem:  true,
			Date:       now,
			Confidence: out.Confidence,
		}
		for _, item := range out.Items {
			converted := convertItem(item, now)
			if converted.Valid() {
				candidate.Items = append(candidate.Items, *converted)
			}
		}
		if len(candidate.Items) == 0 {
			return nil, fmt.Errorf("multi-item extraction produced no valid items")
		}
		// The envelope mirrors the first item so single-item code paths can
		// still describe the candidate.
		candidate.Kind = candidate.Items[0].Kind
		candidate.Amount = candidate.Items[0].Amount
		candidate.Description = candidate.Items[0].Description
		return candidate, nil
	}

	return convertItem(out.llmItem, now), nil
}

func convertItem(item llmItem, now time.Time) *model.TransactionCandidate {
	candidate := &model.TransactionCandidate{
		Description: strings.TrimSpace(item.Description),
		Category:    strings.TrimSpace(item.Category),
		Confidence:  item.Confidence,
		Date:        now,
	}

	switch strings.ToLower(strings.TrimSpace(item.Kind)) {
	case "income":
		candidate.Kind = model.KindIncome
	case "expense":
		candidate.Kind = model.KindExpense
	}

	if item.Amount > 0 {
		candidate.Amount = decimal.NewFromFloat(item.Amount)
	}

	if item.Date != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", item.Date, now.Location()); err == nil {
			candidate.Date = parsed
		}
	}

	if candidate.Confidence <= 0 || candidate.Confidence > 1 {
		candidate.Confidence = fastPathBaseConfidence
	}
	if candidate.Description == "" {
		candidate.Description = "transaction"
	}
	return candidate
}
