package anchor

import "strings"

// stopwords are dropped before vocabulary selection; short and generic
// enough that they carry no anchor signal in market titles.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"to": true, "for": true, "and": true, "or": true, "is": true, "will": true,
	"be": true, "by": true, "at": true, "vs": true, "with": true, "than": true,
}

// Tokenize lowercases, strips punctuation, drops stopwords and short
// tokens, then emits unigrams followed by adjacent bigrams
// (spec.md §4.3.1's bag-of-tokens feature space).
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	var words []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		words = append(words, f)
	}

	tokens := make([]string, 0, len(words)*2)
	tokens = append(tokens, words...)
	for i := 0; i+1 < len(words); i++ {
		tokens = append(tokens, words[i]+"_"+words[i+1])
	}
	return tokens
}
