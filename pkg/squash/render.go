package squash

import (
	"regexp"
	"strings"
)

// fullSubmatch runs re against s and, on a match, returns the named capture
// groups as a map. Patterns in this package are always anchored (^...$), so
// a match here is always a full match.
func fullSubmatch(re *regexp.Regexp, s string) (map[string]string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	captures := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		captures[name] = m[i]
	}
	return captures, true
}

// orderedNames returns re's named capture groups in declaration order, which
// a plain map[string]string built from FindStringSubmatch cannot preserve.
func orderedNames(re *regexp.Regexp) []string {
	var names []string
	seen := map[string]bool{}
	for _, n := range re.SubexpNames() {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names
}

// multilineOrderedNames returns every named capture across a multi-line
// group's start, inner, and end patterns, in the order those patterns are
// tried.
func multilineOrderedNames(j *MultilineGroupJoiner) []string {
	patterns := make([]*regexp.Regexp, 0, len(j.InnerPatterns)+2)
	patterns = append(patterns, j.StartPattern)
	patterns = append(patterns, j.InnerPatterns...)
	patterns = append(patterns, j.EndPattern)

	var names []string
	seen := map[string]bool{}
	for _, re := range patterns {
		for _, n := range orderedNames(re) {
			if seen[n] {
				continue
			}
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// renderTemplate substitutes "{name}" placeholders in format with the
// corresponding capture value.
func renderTemplate(format string, captures map[string]string) string {
	out := format
	for k, v := range captures {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
