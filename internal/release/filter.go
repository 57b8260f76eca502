package release

import (
	"regexp"
	"strings"
)

// Junk patterns rejected regardless of configured word lists. These cover
// release names that are never a usable episode (samples, password-protected
// archives, fakes flagged by uploaders).
var junkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[.\s_-]sample[.\s_-]`),
	regexp.MustCompile(`(?i)\bpassworded\b`),
	regexp.MustCompile(`(?i)\bfake\b`),
	regexp.MustCompile(`(?i)\.(exe|zipx)$`),
}

// WordFilter is the global release-name filter applied before any show lookup
// so garbage is discarded cheaply.
type WordFilter struct {
	Ignored  []string
	Required []string
}

// Accept reports whether a release title passes the filter.
func (f *WordFilter) Accept(title string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}

	for _, p := range junkPatterns {
		if p.MatchString(title) {
			return false
		}
	}

	lower := strings.ToLower(title)
	for _, word := range f.Ignored {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			return false
		}
	}
	for _, word := range f.Required {
		if word != "" && !strings.Contains(lower, strings.ToLower(word)) {
			return false
		}
	}

	return true
}
