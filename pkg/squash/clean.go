package squash

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pbnjay/strptime"
)

// DateFormat describes one strftime-compatible timestamp format this package
// recognizes at the head of a cleaned log line.
type DateFormat struct {
	Name string

	// Format is a strftime-style (not Go reference-time) layout, e.g.
	// "%Y/%m/%d %H:%M:%S.%f".
	Format string

	// SplitChar delimits the tokens that make up the date+time prefix.
	// Defaults to a single space.
	SplitChar string

	// SplitCount is how many SplitChar-delimited tokens form the date+time
	// prefix. Defaults to 2.
	SplitCount int

	// Cleaner, if set, is applied to the remainder after a successful parse.
	Cleaner func(string) string
}

func (f DateFormat) splitChar() string {
	if f.SplitChar == "" {
		return " "
	}
	return f.SplitChar
}

func (f DateFormat) splitCount() int {
	if f.SplitCount == 0 {
		return 2
	}
	return f.SplitCount
}

// stripLeadingIntAndSpaces removes a leading "<digits><whitespace>" prefix
// from an iso8601_1 remainder. The source log format this was lifted from
// embeds a small integer artifact there (spec.md §9(c)); the rationale is
// not documented upstream, so this reproduces the behavior without inventing
// one.
var stripLeadingIntAndSpaces = regexp.MustCompile(`^\d+\s+`)

// DateFormats are tried in declaration order by FindTimestamp.
var DateFormats = []DateFormat{
	{
		Name:       "standard",
		Format:     "%Y/%m/%d %H:%M:%S.%f",
		SplitChar:  " ",
		SplitCount: 2,
	},
	{
		Name:       "short",
		Format:     "%m/%d %H:%M:%S.%f",
		SplitChar:  " ",
		SplitCount: 2,
	},
	{
		Name:       "iso8601_1",
		Format:     "%Y-%m-%dT%H:%M:%S",
		SplitChar:  "-",
		SplitCount: 3,
		Cleaner: func(remainder string) string {
			return stripLeadingIntAndSpaces.ReplaceAllString(remainder, "")
		},
	},
}

// FindTimestamp attempts each DateFormat in order against line, returning
// the parsed time and the remainder with the timestamp prefix removed. If no
// format matches, it returns the zero Time, false, and the original line
// untouched.
func FindTimestamp(line string) (time.Time, bool, string) {
	for _, format := range DateFormats {
		ts, remainder, ok := tryFormat(format, line)
		if ok {
			return ts, true, remainder
		}
	}
	return time.Time{}, false, line
}

func tryFormat(format DateFormat, line string) (time.Time, string, bool) {
	sep := format.splitChar()
	count := format.splitCount()
	tokens := strings.Split(line, sep)
	if len(tokens) < count {
		return time.Time{}, "", false
	}
	datePortion := strings.Join(tokens[:count], sep)
	remainder := strings.Join(tokens[count:], sep)

	ts, err := parseDatePortion(format, datePortion)
	if err != nil {
		return time.Time{}, "", false
	}
	if format.Cleaner != nil {
		remainder = format.Cleaner(remainder)
	}
	return ts, remainder, true
}

// parseDatePortion parses datePortion against format.Format. github.com/pbnjay/strptime
// mirrors C strptime and has no notion of ".%f" (fractional seconds), so a
// trailing ".%f" is handled by hand: the base timestamp is parsed with the
// ".%f" stripped from the layout, and the fractional digits are added on as a
// duration.
func parseDatePortion(format DateFormat, datePortion string) (time.Time, error) {
	layout := format.Format
	if !strings.HasSuffix(layout, ".%f") {
		return strptime.Parse(datePortion, layout)
	}

	baseLayout := strings.TrimSuffix(layout, ".%f")
	dot := strings.LastIndex(datePortion, ".")
	if dot < 0 {
		return time.Time{}, fmt.Errorf("squash: %q has no fractional seconds for layout %q", datePortion, layout)
	}
	ts, err := strptime.Parse(datePortion[:dot], baseLayout)
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := fractionalNanos(datePortion[dot+1:])
	if err != nil {
		return time.Time{}, err
	}
	return ts.Add(time.Duration(nanos)), nil
}

// fractionalNanos converts a decimal fractional-seconds string (e.g. "994" or
// "000000") of any digit width into nanoseconds.
func fractionalNanos(frac string) (int64, error) {
	if frac == "" {
		return 0, fmt.Errorf("squash: empty fractional seconds")
	}
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("squash: non-digit fractional seconds %q", frac)
		}
	}
	switch {
	case len(frac) > 9:
		frac = frac[:9]
	case len(frac) < 9:
		frac += strings.Repeat("0", 9-len(frac))
	}
	return strconv.ParseInt(frac, 10, 64)
}
