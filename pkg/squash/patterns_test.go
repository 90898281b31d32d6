package squash

import "testing"

func TestIsIgnored(t *testing.T) {
	testData := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"not empty", false},
	}
	for _, test := range testData {
		if got := IsIgnored(test.value); got != test.want {
			t.Errorf("IsIgnored(%q) = %v, want %v", test.value, got, test.want)
		}
	}
}

func TestIsGreenlit(t *testing.T) {
	testData := []struct {
		value string
		want  bool
	}{
		{"@@@ anything goes here", true},
		{"not a banner line", false},
		{"@@@ ", true},
		{"@@@", false},
	}
	for _, test := range testData {
		if got := IsGreenlit(test.value); got != test.want {
			t.Errorf("IsGreenlit(%q) = %v, want %v", test.value, got, test.want)
		}
	}
}

func TestClean(t *testing.T) {
	testData := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello", "hello"},
		{
			name: "ansi color codes stripped",
			in:   "\x1b[31mred\x1b[0m plain",
			want: "red plain",
		},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			if got := Clean(test.in); got != test.want {
				t.Errorf("Clean(%q) = %q, want %q", test.in, got, test.want)
			}
		})
	}
}

func TestSingleLineGroupableRegexesRenderKnownInfo(t *testing.T) {
	testData := []struct {
		name        string
		line        string
		wantPattern string
		wantMessage string
	}{
		{
			name:        "protocol aborted",
			line:        "KLYS:LI21:1:AACT: Protocol aborted",
			wantPattern: "stream_protocol_aborted",
			wantMessage: "Protocol aborted",
		},
		{
			name:        "errlog spam",
			line:        "errlog: 12 messages were discarded",
			wantPattern: "errlog_spam",
			wantMessage: "errlog: messages were discarded",
		},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			for i := range SingleLineGroupableRegexes {
				j := &SingleLineGroupableRegexes[i]
				groups, ok := fullSubmatch(j.Pattern, test.line)
				if !ok {
					continue
				}
				if j.Name != test.wantPattern {
					t.Fatalf("line matched pattern %q, want %q", j.Name, test.wantPattern)
				}
				if got := renderTemplate(j.MessageFormat, groups); got != test.wantMessage {
					t.Errorf("rendered message = %q, want %q", got, test.wantMessage)
				}
				return
			}
			t.Fatalf("no pattern matched %q", test.line)
		})
	}
}

func TestSelfTest(t *testing.T) {
	if err := SelfTest(); err != nil {
		t.Fatalf("SelfTest() = %v, want nil", err)
	}
}
