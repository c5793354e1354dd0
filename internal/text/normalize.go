// Package text implements description normalization and keyword signatures.
// Learning and recurrence detection must agree on normalization, so both use
// this package.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// signatureTokens is the maximum number of significant tokens kept in a
// keyword signature.
const signatureTokens = 3

// stopWords are dropped when building signatures: articles, prepositions,
// temporal words and the financial verbs that carry no categorization signal.
// The inbound channel carries both English and Portuguese.
var stopWords = map[string]struct{}{
	// Portuguese articles and prepositions.
	"de": {}, "do": {}, "da": {}, "dos": {}, "das": {}, "em": {}, "no": {},
	"na": {}, "nos": {}, "nas": {}, "um": {}, "uma": {}, "uns": {}, "umas": {},
	"os": {}, "as": {}, "ou": {}, "para": {}, "por": {}, "com": {}, "sem": {},
	"que": {}, "se": {}, "ao": {}, "aos": {},
	// English articles and prepositions.
	"the": {}, "an": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "with": {}, "and": {}, "or": {}, "my": {}, "some": {},
	// Financial verbs.
	"pagamento": {}, "paguei": {}, "gastei": {}, "comprei": {}, "recebi": {},
	"ganhei": {}, "spent": {}, "paid": {}, "bought": {}, "received": {},
	"got": {}, "earned": {},
	// Temporal words.
	"hoje": {}, "ontem": {}, "anteontem": {}, "today": {}, "yesterday": {},
}

// Fold strips diacritics: "salário" -> "salario".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize folds diacritics, lowercases and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(Fold(s))), " ")
}

// Signature reduces a description to its keyword signature: normalized,
// stop words and tokens of two characters or fewer removed, first three
// significant tokens kept.
func Signature(description string) string {
	var kept []string
	for _, tok := range strings.Fields(Normalize(description)) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == signatureTokens {
			break
		}
	}
	return strings.Join(kept, " ")
}

// Tokens splits a signature back into its significant tokens.
func Tokens(signature string) []string {
	if signature == "" {
		return nil
	}
	return strings.Fields(signature)
}

// IsStopWord reports whether a normalized token is on the stop-word list.
func IsStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}
