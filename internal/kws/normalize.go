package kws

import (
	"log/slog"
	"strings"
)

// expectedTokens lists the whole-word subword tokens the transducer's
// vocabulary should carry for the default wake phrase. Missing tokens
// are only logged; the runtime still subword-tokenizes.
var expectedTokens = []string{"▁hey", "▁ember"}

// Normalize applies the wake-phrase normalization rule: lowercase, trim,
// collapse internal whitespace, and strip trailing punctuation. The
// result is never uppercased, never split into per-character tokens,
// and never rejoined without spaces — violating that produces
// tokenization errors in the streaming runtime ("Cannot find ID for
// token …").
func Normalize(phrase string) string {
	p := strings.ToLower(strings.TrimSpace(phrase))
	p = strings.Join(strings.Fields(p), " ")
	p = strings.TrimRight(p, ".,!?;: ")
	return p
}

// CheckVocabulary logs a warning for every expected whole-word token
// absent from vocab, per spec.md §4.4.1 step 5. It never returns an
// error: a missing token degrades quality but is not fatal.
func CheckVocabulary(vocab map[string]struct{}, log *slog.Logger) {
	if log == nil {
		return
	}
	for _, tok := range expectedTokens {
		if _, ok := vocab[tok]; !ok {
			log.Warn("wake phrase token missing from vocabulary", "token", tok)
		}
	}
}
