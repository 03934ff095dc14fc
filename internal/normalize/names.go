package normalize

import (
	"regexp"
	"strings"
)

var multiSpace = regexp.MustCompile(`\s+`)

// NormalizeIdentifier trims and uppercases a payee identity field (TIN, NPI,
// member id, plan id) and removes inner whitespace. Empty input stays empty.
func NormalizeIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return multiSpace.ReplaceAllString(strings.ToUpper(s), "")
}
