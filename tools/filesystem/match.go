package filesystem

import (
	"regexp"
	"strings"
)

// MatchesPatterns reports whether the path matches any of the patterns. Each
// pattern is tried first as a shell glob over the whole path, where *
// matches any run of characters including separators, and then as a
// regular expression anchored at the start of the path. Matching is
// case-insensitive and invalid regular expressions are skipped. An empty
// pattern list matches everything.
func MatchesPatterns(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	lowered := strings.ToLower(path)
	for _, pattern := range patterns {
		if matchesPattern(lowered, pattern) {
			return true
		}
	}
	return false
}

func matchesPattern(lowered, pattern string) bool {
	if globToRegexp(strings.ToLower(pattern)).MatchString(lowered) {
		return true
	}
	// The pattern itself keeps its case; only the path is lowered.
	re, err := regexp.Compile(`\A(?:` + pattern + `)`)
	if err != nil {
		return false
	}
	return re.MatchString(lowered)
}

// globToRegexp converts a shell-style pattern into a regular expression
// matching the whole string. Only * and ? are special; everything else is
// taken literally.
func globToRegexp(pattern string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString(`\A(?s:`)
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString(`)\z`)
	return regexp.MustCompile(sb.String())
}
