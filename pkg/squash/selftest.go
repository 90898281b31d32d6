package squash

import (
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// SelfTest renders every bundled MessageFormat against a synthesized capture
// dictionary built from its own pattern's named groups, and fails if any
// "{name}" placeholder survives the substitution. This catches a
// MessageFormat referencing a capture name its own pattern never declares —
// a typo that would otherwise only surface the first time that pattern
// actually matched a line in production.
func SelfTest() error {
	for i := range SingleLineGroupableRegexes {
		j := &SingleLineGroupableRegexes[i]
		captures := synthesize(orderedNames(j.Pattern))
		if rendered := renderTemplate(j.MessageFormat, captures); hasPlaceholder(rendered) {
			return fmt.Errorf("squash: single-line pattern %q: message format %q left an unresolved placeholder: %q", j.Name, j.MessageFormat, rendered)
		}
		for _, extra := range j.Extras {
			if _, ok := captures[extra]; !ok {
				return fmt.Errorf("squash: single-line pattern %q: extras field %q is not a capture of its own pattern", j.Name, extra)
			}
		}
	}
	for i := range MultiLineGroupableRegexes {
		j := &MultiLineGroupableRegexes[i]
		captures := synthesize(multilineOrderedNames(j))
		if rendered := renderTemplate(j.MessageFormat, captures); hasPlaceholder(rendered) {
			return fmt.Errorf("squash: multi-line pattern %q: message format %q left an unresolved placeholder: %q", j.Name, j.MessageFormat, rendered)
		}
	}
	return selfTestTimestampRoundTrip()
}

// selfTestTimestampRoundTrip renders a fixed time through each DateFormat's
// own strftime layout and checks FindTimestamp recognizes the result. This
// catches a DateFormat whose Format, SplitChar, or SplitCount disagree with
// what that format's own layout actually produces.
func selfTestTimestampRoundTrip() error {
	fixed := time.Date(2024, 3, 5, 13, 30, 56, 0, time.UTC)
	for _, df := range DateFormats {
		// strip strptime's Python-style ".%f" (fractional seconds): not
		// every strftime implementation renders it, and a fixed time with
		// zero nanoseconds round-trips as the same literal either way.
		layout := strings.TrimSuffix(df.Format, ".%f")
		hasFrac := layout != df.Format

		f, err := strftime.New(layout)
		if err != nil {
			return fmt.Errorf("squash: date format %q: compiling strftime layout %q: %w", df.Name, layout, err)
		}
		datePortion := f.FormatString(fixed)
		if hasFrac {
			datePortion += ".000000"
		}
		line := datePortion + " trailing text"
		if df.Name == "iso8601_1" {
			// Real iso8601_1 lines carry a timezone offset suffix; the
			// format's 3-way '-' split relies on it to separate the date
			// from the remainder, so synthesize one here too.
			line = datePortion + "-0000 trailing text"
		}
		_, ok, remainder := FindTimestamp(line)
		if !ok {
			return fmt.Errorf("squash: date format %q: rendered timestamp %q was not recognized by FindTimestamp", df.Name, datePortion)
		}
		if remainder != "trailing text" {
			return fmt.Errorf("squash: date format %q: remainder = %q, want %q", df.Name, remainder, "trailing text")
		}
	}
	return nil
}

func synthesize(names []string) map[string]string {
	captures := make(map[string]string, len(names))
	for _, n := range names {
		captures[n] = "x"
	}
	return captures
}

func hasPlaceholder(s string) bool {
	return strings.Contains(s, "{") && strings.Contains(s, "}")
}
