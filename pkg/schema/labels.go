package schema

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var splitWordsPattern = regexp.MustCompile(`[_\-\s]+`)

// DefaultLabeler converts a field name into a display label: separators
// (underscores, dashes, whitespace) become single spaces and every word is
// title-cased, so "monthly_fee" reads "Monthly Fee". The field key is never
// affected.
func DefaultLabeler(name string) string {
	if name == "" {
		return ""
	}

	caser := cases.Title(language.Und)
	words := splitWordsPattern.Split(name, -1)
	segments := make([]string, 0, len(words))
	for _, word := range words {
		if word == "" {
			continue
		}
		segments = append(segments, caser.String(word))
	}
	return strings.Join(segments, " ")
}
