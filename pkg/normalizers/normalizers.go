// Package normalizers provides the string normalizations used for matching, grouping and validation
package normalizers

import (
	"sort"
	"strings"
	"unicode"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("alphanumeric", Alphanumeric)
	Register("group_key", GroupKey)
	Register("token_sort", TokenSort)
	Register("slug", Slug)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace replaces every whitespace run with one space and trims the ends
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// GroupKey is the normalized name two duplicates must share: lower-cased,
// trimmed, internal whitespace collapsed
func GroupKey(s string) string {
	return CollapseWhitespace(strings.ToLower(s))
}

// Tokens lower-cases s, turns every non-alphanumeric rune into a separator and splits
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenSort returns the tokens of s sorted and joined by single spaces
func TokenSort(s string) string {
	tokens := Tokens(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true,
	"de": true, "la": true, "le": true, "von": true, "van": true, "der": true,
}

// BlockingToken picks the name token used to narrow fuzzy comparison: the first
// token of at least three characters that is not a stop word, else the first token.
func BlockingToken(name string) string {
	tokens := Tokens(name)
	if len(tokens) == 0 {
		return ""
	}
	for _, t := range tokens {
		if len([]rune(t)) >= 3 && !stopWords[t] {
			return t
		}
	}
	return tokens[0]
}

// Slug renders s as lower-case alphanumeric words joined by hyphens
func Slug(s string) string {
	return strings.Join(Tokens(s), "-")
}

// NormalizeSentiment maps any casing of a canonical sentiment label to its canonical value
func NormalizeSentiment(s string) (models.Sentiment, bool) {
	for _, candidate := range models.Sentiments() {
		if strings.EqualFold(string(candidate), strings.TrimSpace(s)) {
			return candidate, true
		}
	}
	return "", false
}
