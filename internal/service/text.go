package service

import (
	"strings"
	"unicode"
)

// stopwords carry no meaning for retrieval once the structured parts of a
// query have been lifted out
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "with": true,
	"in": true, "on": true, "at": true, "for": true, "of": true, "to": true,
	"from": true, "by": true, "near": true, "around": true, "within": true,
	"i": true, "im": true, "i'm": true, "me": true, "my": true, "we": true, "our": true,
	"want": true, "wants": true, "need": true, "needs": true, "looking": true,
	"find": true, "show": true, "give": true, "get": true, "search": true,
	"some": true, "any": true, "that": true, "which": true, "has": true, "have": true,
	"is": true, "are": true, "be": true, "it": true, "its": true, "this": true,
	"please": true, "property": true, "properties": true, "place": true, "listing": true, "listings": true,
}

// tokenize splits text into lower-case word tokens
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
}

// meaningfulTokens drops stopwords and bare punctuation from text
func meaningfulTokens(text string) []string {
	var out []string
	for _, tok := range tokenize(text) {
		tok = strings.Trim(tok, "'-")
		if tok == "" || stopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
