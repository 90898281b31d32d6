package squash

import "regexp"

// CleanPattern is a substitution applied to every line before any further
// classification happens.
type CleanPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// CleanRegexes are applied in declaration order via sub("", line).
var CleanRegexes = []CleanPattern{
	{
		// ANSI CSI sequences (ESC [ ... final byte) plus bare C1 control bytes
		// with their parameter/intermediate/final bytes. ref: https://stackoverflow.com/questions/14693701
		Name:    "ansi_escape_codes",
		Pattern: regexp.MustCompile(`(?:\x1B[@-_]|[\x{80}-\x{9F}])[0-?]*[ -/]*[@-~]`),
	},
}

// Clean applies every CleanRegexes substitution, in order, to line.
func Clean(line string) string {
	for _, p := range CleanRegexes {
		line = p.Pattern.ReplaceAllString(line, "")
	}
	return line
}

// NamedPattern is a simple named full-match pattern, used by the ignore and
// greenlight tables.
type NamedPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// IgnoreRegexes: a full match drops the line from all further processing.
var IgnoreRegexes = []NamedPattern{
	{Name: "empty_strings", Pattern: regexp.MustCompile(`^\s*$`)},
}

// IsIgnored reports whether value fullmatches any IgnoreRegexes entry.
func IsIgnored(value string) bool {
	for _, p := range IgnoreRegexes {
		if p.Pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// GreenlightRegexes: a full match marks a line as always-emitted, never coalesced.
var GreenlightRegexes = []NamedPattern{
	{Name: "procserv_lines", Pattern: regexp.MustCompile(`^@@@ .*$`)},
}

// IsGreenlit reports whether value fullmatches any GreenlightRegexes entry.
func IsGreenlit(value string) bool {
	for _, p := range GreenlightRegexes {
		if p.Pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// GroupJoiner describes a single-line groupable pattern: a full-match regex,
// the message template it renders to (capture names substituted via
// "{name}"), and which capture names propagate to a Message's info.
type GroupJoiner struct {
	Name    string
	Pattern *regexp.Regexp

	// MessageFormat may reference named captures as "{name}".
	MessageFormat string

	// Extras limits which captured keys propagate to a Message's info. A nil
	// Extras means all captures propagate.
	Extras []string

	// CountThreshold is advisory metadata only (spec Open Question (a)); it
	// is never consulted by the emission path.
	CountThreshold int
}

// SingleLineGroupableRegexes is an ordered, named catalog: the first pattern
// whose full match succeeds wins.
var SingleLineGroupableRegexes = []GroupJoiner{
	{
		Name:          "stream_protocol_aborted",
		Pattern:       regexp.MustCompile(`^(?P<pv>.*): Protocol aborted$`),
		MessageFormat: "Protocol aborted",
		Extras:        []string{"pv"},
	},
	{
		Name:          "asyn_connect_failed",
		Pattern:       regexp.MustCompile(`^(?P<pv>.*): pasynCommon->connect\(\) failed: (?P<reason>.*)$`),
		MessageFormat: "pasynCommon->connect() failed: {reason}",
		Extras:        []string{"pv"},
	},
	{
		Name:          "asyn_lock_failed",
		Pattern:       regexp.MustCompile(`^(?P<context>.*) (?P<pv>.*) lockRequest: pasynManager->queueRequest\(\) failed: (?P<reason>.*)$`),
		MessageFormat: "{context} lockRequest: pasynManager->queueRequest() failed: {reason}",
		Extras:        []string{"pv"},
	},
	{
		Name:          "snmp_querylist_timeout",
		Pattern:       regexp.MustCompile(`^(?P<context>.*): Snmp QryList Timeout on (?P<pv>.*)$`),
		MessageFormat: "{context}: Snmp QryList Timeout",
		Extras:        []string{"pv"},
	},
	{
		Name:          "snmp_error_code",
		Pattern:       regexp.MustCompile(`^Record \[(?P<pv>.*)\] received error code \[(?P<code>.*)\]!$`),
		MessageFormat: "Received error code {code}",
		Extras:        []string{"pv"},
	},
	{
		Name:          "errlog_spam",
		Pattern:       regexp.MustCompile(`^errlog: (?P<count>\d+) messages were discarded$`),
		MessageFormat: "errlog: messages were discarded",
		Extras:        []string{"count"},
	},
	{
		Name:          "active_scan_count",
		Pattern:       regexp.MustCompile(`^(?P<pv>.*) Active scan count exceeded!$`),
		MessageFormat: "Active scan count exceeded!",
		Extras:        []string{"pv"},
	},
}

// MultilineGroupJoiner describes a multi-line groupable pattern: a start
// pattern, an ordered list of inner (continuation) patterns, an end pattern,
// and the message template rendered once the group completes.
type MultilineGroupJoiner struct {
	Name          string
	StartPattern  *regexp.Regexp
	InnerPatterns []*regexp.Regexp
	EndPattern    *regexp.Regexp
	MessageFormat string
}

// procservTerminator matches the five-"@@@ @@@ @@@ @@@ @@@"-token banner that
// both opens and closes a procServ status update block.
var procservTerminator = regexp.MustCompile(`^@@@ @@@ @@@ @@@ @@@$`)

// MultiLineGroupableRegexes is an ordered, named catalog of multi-line groups.
var MultiLineGroupableRegexes = []MultilineGroupJoiner{
	{
		Name:         "procserv_status_update",
		StartPattern: procservTerminator,
		InnerPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^@@@ Received a sigChild signal, rc = (?P<exit_code>\S+), pid = (?P<pid>\d+)$`),
			regexp.MustCompile(`^@@@ Current time: (?P<procserv_ts>.*)$`),
			regexp.MustCompile(`^@@@ Child process is shutting down .*$`),
			regexp.MustCompile(`^@@@ \^R or \^X .*$`),
			regexp.MustCompile(`^@@@ Restarting child "(?P<child>.*)"$`),
			regexp.MustCompile(`^@@@    \(as (?P<restarting_as>.*)\)$`),
			regexp.MustCompile(`^@@@ Toggled auto restart mode to (?P<auto_restart>.*)$`),
			regexp.MustCompile(`^@@@ The PID of new child "(?P<child_name>.*)" is: (?P<new_child_pid>.*)$`),
		},
		EndPattern:    procservTerminator,
		MessageFormat: "procServ status update",
	},
}
