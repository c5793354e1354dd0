package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/text"
)

// fastPathBaseConfidence is assigned when the deterministic pass finds both
// a kind and an amount. It sits below the auto-confirm threshold so fast-path
// extractions ask for confirmation unless a learned pattern raises them.
const fastPathBaseConfidence = 0.7

// Kind vocabularies, matched as whole words against the normalized message.
var (
	expenseWords = map[string]struct{}{
		"gastei": {}, "paguei": {}, "comprei": {}, "gasto": {}, "despesa": {},
		"conta": {}, "boleto": {}, "spent": {}, "paid": {}, "bought": {},
		"expense": {}, "bill": {}, "cost": {},
	}
	incomeWords = map[string]struct{}{
		"recebi": {}, "ganhei": {}, "entrou": {}, "salario": {}, "renda": {},
		"received": {}, "earned": {}, "got": {}, "income": {}, "salary": {},
		"deposit": {}, "deposited": {},
	}
)

// amountPatterns are tried in order; the first match wins. All accept comma
// or dot decimals.
var amountPatterns = []*regexp.Regexp{
	// Currency-prefixed: "r$ 45,50", "$45.50".
	regexp.MustCompile(`(?:r\$|\$)\s*(\d+(?:[.,]\d+)?)`),
	// Suffixed with a currency word: "45 reais", "45.50 dollars".
	regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:reais|real|dollars|bucks)\b`),
	// Verb-adjacent: "spent 50 on lunch", "recebi 3000".
	regexp.MustCompile(`(?:gastei|paguei|comprei|recebi|ganhei|spent|paid|bought|received|earned|got)\s+(\d+(?:[.,]\d+)?)`),
	// Bare number, last resort.
	regexp.MustCompile(`(\d+(?:[.,]\d+)?)`),
}

var numericToken = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// utilityCanonical maps well-known recurring bill keywords to canonical
// descriptions so "paguei a luz" and "conta de luz" land on one signature.
// Matched on word boundaries only.
var utilityCanonical = map[string]string{
	"luz":         "electricity bill",
	"energia":     "electricity bill",
	"electricity": "electricity bill",
	"agua":        "water bill",
	"water":       "water bill",
	"gas":         "gas bill",
	"internet":    "internet bill",
	"aluguel":     "rent",
	"rent":        "rent",
	"telefone":    "phone bill",
	"phone":       "phone bill",
}

// categoryKeywords maps whole words to a category name, per kind.
var categoryKeywords = map[model.TransactionKind]map[string]string{
	model.KindExpense: {
		"lunch": "Food", "dinner": "Food", "breakfast": "Food", "almoco": "Food",
		"jantar": "Food", "mercado": "Food", "groceries": "Food", "restaurante": "Food",
		"restaurant": "Food", "ifood": "Food", "lanche": "Food", "pizza": "Food",
		"uber": "Transport", "taxi": "Transport", "bus": "Transport",
		"onibus": "Transport", "gasolina": "Transport", "fuel": "Transport",
		"metro": "Transport", "combustivel": "Transport",
		"farmacia": "Health", "pharmacy": "Health", "medico": "Health",
		"doctor": "Health", "remedio": "Health", "dentista": "Health",
		"curso": "Education", "course": "Education", "livro": "Education",
		"book": "Education", "school": "Education", "faculdade": "Education",
		"cinema": "Leisure", "netflix": "Leisure", "spotify": "Leisure",
		"show": "Leisure", "viagem": "Leisure", "trip": "Leisure",
		"aluguel": "Housing", "rent": "Housing", "condominio": "Housing",
		"luz": "Housing", "energia": "Housing", "agua": "Housing",
		"internet": "Housing", "electricity": "Housing",
		"roupa": "Clothing", "clothes": "Clothing", "shoes": "Clothing",
		"sapato": "Clothing",
	},
	model.KindIncome: {
		"salario": "Salary", "salary": "Salary", "paycheck": "Salary",
		"freela": "Freelance", "freelance": "Freelance", "bico": "Freelance",
		"invoice": "Freelance",
		"dividendo": "Investments", "dividend": "Investments",
		"juros": "Investments", "interest": "Investments",
		"venda": "Sales", "vendi": "Sales", "sold": "Sales", "sale": "Sales",
	},
}

// relativeDays resolves temporal words to an offset in days from today.
var relativeDays = map[string]int{
	"hoje": 0, "today": 0,
	"ontem": -1, "yesterday": -1,
	"anteontem": -2,
}

// fastPass runs the deterministic extraction. It succeeds only when both a
// kind and an amount are found; anything weaker falls through to the LLM.
func fastPass(message string, now time.Time) (*model.TransactionCandidate, bool) {
	normalized := text.Normalize(message)
	tokens := strings.Fields(normalized)

	kind, kindOK := detectKind(tokens)
	amount, amountText, amountOK := detectAmount(normalized)
	if !kindOK || !amountOK {
		return nil, false
	}

	description := deriveDescription(normalized, amountText)

	candidate := &model.TransactionCandidate{
		Kind:        kind,
		Amount:      amount,
		Description: description,
		Date:        resolveDate(tokens, now),
		Confidence:  fastPathBaseConfidence,
	}
	if name, ok := inferCategory(tokens, kind); ok {
		candidate.Category = name
	}
	return candidate, true
}

func detectKind(tokens []string) (model.TransactionKind, bool) {
	for _, tok := range tokens {
		if _, ok := expenseWords[tok]; ok {
			return model.KindExpense, true
		}
	}
	for _, tok := range tokens {
		if _, ok := incomeWords[tok]; ok {
			return model.KindIncome, true
		}
	}
	return "", false
}

// hasBothKinds reports whether the message carries expense and income
// vocabulary at once, the ambiguity-guard signal for compound messages.
func hasBothKinds(tokens []string) bool {
	var expense, income bool
	for _, tok := range tokens {
		if _, ok := expenseWords[tok]; ok {
			expense = true
		}
		if _, ok := incomeWords[tok]; ok {
			income = true
		}
	}
	return expense && income
}

// countNumericTokens counts distinct numeric tokens in the message.
func countNumericTokens(normalized string) int {
	return len(numericToken.FindAllString(normalized, -1))
}

func detectAmount(normalized string) (decimal.Decimal, string, bool) {
	for _, pattern := range amountPatterns {
		m := pattern.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", ".")
		amount, err := decimal.NewFromString(raw)
		if err != nil || !amount.IsPositive() {
			continue
		}
		return amount, m[1], true
	}
	return decimal.Zero, "", false
}

// deriveDescription strips the amount and stop words from the message, then
// canonicalizes well-known bill keywords.
func deriveDescription(normalized, amountText string) string {
	withoutAmount := strings.Replace(normalized, amountText, " ", 1)
	withoutAmount = strings.ReplaceAll(withoutAmount, "r$", " ")
	withoutAmount = strings.ReplaceAll(withoutAmount, "$", " ")

	var kept []string
	for _, tok := range strings.Fields(withoutAmount) {
		if len(tok) <= 1 || text.IsStopWord(tok) {
			continue
		}
		if tok == "reais" || tok == "real" || tok == "dollars" || tok == "bucks" {
			continue
		}
		if canonical, ok := utilityCanonical[tok]; ok {
			return canonical
		}
		kept = append(kept, tok)
	}

	description := strings.Join(kept, " ")
	if description == "" {
		return "transaction"
	}
	return description
}

func inferCategory(tokens []string, kind model.TransactionKind) (string, bool) {
	keywords := categoryKeywords[kind]
	for _, tok := range tokens {
		if name, ok := keywords[tok]; ok {
			return name, true
		}
	}
	return "", false
}

// resolveDate maps relative temporal words to a concrete date in the
// conversation's timezone. Absent any marker, the message time is used.
func resolveDate(tokens []string, now time.Time) time.Time {
	for _, tok := range tokens {
		if offset, ok := relativeDays[tok]; ok && offset != 0 {
			return now.AddDate(0, 0, offset)
		}
	}
	return now
}
