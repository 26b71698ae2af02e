package nlu

import "strings"

// Intent is the coarse classification of a patient reply.
type Intent string

const (
	IntentConfirm    Intent = "confirm"
	IntentReschedule Intent = "reschedule"
	IntentCancel     Intent = "cancel"
	IntentUnknown    Intent = "unknown"
)

// Keyword sets carry the clinic's Portuguese vocabulary plus English
// equivalents. Ordered: confirm wins over reschedule wins over cancel.
var (
	confirmTokens    = []string{"confirmar", "confirmo", "sim", "confirm", "yes"}
	rescheduleTokens = []string{"remarcar", "adiar", "mudar", "reschedule", "postpone", "change"}
	cancelTokens     = []string{"cancelar", "não posso", "nao posso", "desmarcar", "cancel", "can't", "unschedule"}
)

// Classify maps a free-text reply to an intent by substring rules, first
// match wins. It is a deliberately shallow lexical heuristic: constant work
// per message, no semantic understanding, no side effects.
func Classify(message string) Intent {
	m := strings.ToLower(message)

	switch {
	case containsAny(m, confirmTokens):
		return IntentConfirm
	case containsAny(m, rescheduleTokens):
		return IntentReschedule
	case containsAny(m, cancelTokens):
		return IntentCancel
	default:
		return IntentUnknown
	}
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
