package suite

import (
	"path"
	"regexp"
	"strings"
	"sync"
)

var patternCache sync.Map

// IsPattern reports whether s contains glob metacharacters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// MatchTest reports whether test name matches pattern.
//
// Supported patterns:
//   - a plain name matches that test and every test below it
//   - * matches within one path segment, ? matches one character
//   - ** matches zero or more path segments
//   - a leading ! negates the match
//
// Parameters:
//   - name: Test name relative to the tests directory
//   - pattern: Plain name or glob
//
// Returns:
//   - bool: true when name matches (or does not match, for a negated pattern)
func MatchTest(name, pattern string) bool {
	negate := strings.HasPrefix(pattern, "!")
	pattern = strings.TrimSuffix(strings.TrimPrefix(pattern, "!"), "/")

	var matched bool
	switch {
	case !IsPattern(pattern):
		matched = name == pattern || strings.HasPrefix(name, pattern+"/")
	case strings.Contains(pattern, "**"):
		matched = globRegexp(pattern).MatchString(name)
	default:
		var err error
		matched, err = path.Match(pattern, name)
		if err != nil {
			matched = globRegexp(pattern).MatchString(name)
		}
	}
	return matched != negate
}

// globRegexp converts a glob into an anchored regular expression:
// "**/" becomes optional leading segments, "**" any characters, "*" any
// characters but "/", and "?" a single character.
func globRegexp(pattern string) *regexp.Regexp {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 3
			continue
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i += 2
			continue
		case pattern[i] == '*':
			b.WriteString("[^/]*")
		case pattern[i] == '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		}
		i++
	}
	b.WriteString("$")
	re := regexp.MustCompile(b.String())
	patternCache.Store(pattern, re)
	return re
}

// expandPatterns replaces every glob in names with the matching tests of
// all, in suite order. Plain names pass through unchanged.
func expandPatterns(names, all []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool)
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range names {
		if !IsPattern(n) {
			add(n)
			continue
		}
		for _, t := range all {
			if MatchTest(t, n) {
				add(t)
			}
		}
	}
	return out
}
