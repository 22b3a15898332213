package ml

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	nonWordRegex    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"he": true, "i": true, "in": true, "is": true, "it": true, "its": true,
	"need": true, "needs": true, "of": true, "on": true, "or": true, "our": true,
	"please": true, "require": true, "required": true, "some": true, "that": true,
	"the": true, "this": true, "to": true, "us": true, "was": true, "we": true,
	"were": true, "will": true, "with": true, "would": true, "you": true,
}

// Normalize returns text in NFC form, lowercased, with punctuation replaced
// by single spaces.
func Normalize(text string) string {
	cleaned := norm.NFC.String(text)
	cleaned = strings.ToLower(cleaned)
	cleaned = nonWordRegex.ReplaceAllString(cleaned, " ")
	cleaned = whitespaceRegex.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// Tokenize normalizes text and splits it into plural-folded tokens. Stop
// words are kept so multi-word phrases still line up.
func Tokenize(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	words := strings.Split(normalized, " ")
	for i, w := range words {
		words[i] = FoldPlural(w)
	}
	return words
}

// ContentTokens is Tokenize without stop words.
func ContentTokens(text string) []string {
	tokens := Tokenize(text)
	out := tokens[:0]
	for _, t := range tokens {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}

// IsStopWord reports whether a folded token carries no content.
func IsStopWord(token string) bool {
	return stopWords[token]
}

// FoldPlural strips a trailing English plural suffix. The rule is crude but
// applied identically to keywords and request text, so both sides agree.
func FoldPlural(word string) string {
	n := len(word)
	switch {
	case n > 4 && strings.HasSuffix(word, "ies"):
		return word[:n-3] + "y"
	case n > 4 && (strings.HasSuffix(word, "ches") || strings.HasSuffix(word, "shes") ||
		strings.HasSuffix(word, "sses") || strings.HasSuffix(word, "xes") || strings.HasSuffix(word, "zes")):
		return word[:n-2]
	case n > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") &&
		!strings.HasSuffix(word, "us") && !strings.HasSuffix(word, "is"):
		return word[:n-1]
	}
	return word
}

// ContainsPhrase reports whether phrase occurs in tokens as a contiguous run.
// Both sides must already be tokenized.
func ContainsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}
