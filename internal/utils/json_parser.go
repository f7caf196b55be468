package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyCompletion is returned when there is nothing to parse.
var ErrEmptyCompletion = errors.New("empty completion")

var (
	fencedJSONRe    = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.+?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_]\w*)(\s*:)`)
	controlCharsRe  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// ParseAIJSON decodes a JSON object out of model output. It accepts, in order:
// plain JSON, a fenced markdown block, the first balanced object inside prose,
// and finally a repaired version of any of those (trailing commas, bare keys,
// single quotes, control characters).
func ParseAIJSON(input string, target interface{}) error {
	input = strings.TrimSpace(strings.TrimPrefix(input, "\ufeff"))
	if input == "" {
		return ErrEmptyCompletion
	}

	for _, candidate := range jsonCandidates(input) {
		if err := json.Unmarshal([]byte(candidate), target); err == nil {
			return nil
		}
		if repaired := repairJSON(candidate); repaired != candidate {
			if err := json.Unmarshal([]byte(repaired), target); err == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("failed to parse JSON from completion: %s", truncateString(input, 100))
}

// jsonCandidates lists the substrings worth trying, most literal first.
func jsonCandidates(input string) []string {
	candidates := []string{input}
	if m := fencedJSONRe.FindStringSubmatch(input); len(m) > 1 {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if start := strings.Index(input, "{"); start >= 0 {
		if obj := extractBalanced(input[start:], '{', '}'); obj != "" {
			candidates = append(candidates, obj)
		}
	}
	return candidates
}

// extractBalanced returns the prefix of input that closes the first open rune,
// ignoring delimiters inside string literals.
func extractBalanced(input string, open, close rune) string {
	depth := 0
	inString := false
	escape := false
	start := -1

	for i, ch := range input {
		switch {
		case escape:
			escape = false
		case ch == '\\':
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			if depth == 0 {
				start = i
			}
			depth++
		case ch == close && depth > 0:
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}
	return ""
}

func repairJSON(input string) string {
	s := trailingCommaRe.ReplaceAllString(input, "$1")
	s = bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = fixSingleQuotes(s)
	return controlCharsRe.ReplaceAllString(s, "")
}

// fixSingleQuotes turns single-quoted JSON strings into double-quoted ones.
// Apostrophes inside words are left alone.
func fixSingleQuotes(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	inDouble, inSingle, escape := false, false, false
	var prev rune
	for _, ch := range input {
		switch {
		case escape:
			escape = false
		case ch == '\\':
			escape = true
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == '\'' && !inDouble:
			if inSingle {
				inSingle = false
				ch = '"'
			} else if strings.ContainsRune(":,[{ \t\n", prev) {
				inSingle = true
				ch = '"'
			}
		}
		b.WriteRune(ch)
		prev = ch
	}
	return b.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
