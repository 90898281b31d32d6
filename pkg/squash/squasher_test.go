package squash

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func messageTexts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}

func TestSquasherIgnoresBlankLines(t *testing.T) {
	s := NewSquasher()
	s.AddLines("hello\n\n   \nworld\n", time.Time{})
	got := messageTexts(s.Squash())
	want := []string{"hello", "world"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Squash() diff (-want +got):\n%s", diff)
	}
}

func TestSquasherCoalescesRepeatedLines(t *testing.T) {
	s := NewSquasher()
	s.AddLines("disconnected\ndisconnected\ndisconnected\n", time.Time{})
	msgs := s.Squash()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(msgs), msgs)
	}
	if want := "[3x] disconnected"; msgs[0].Message != want {
		t.Errorf("Message = %q, want %q", msgs[0].Message, want)
	}
	if msgs[0].SourceLines != 3 {
		t.Errorf("SourceLines = %d, want 3", msgs[0].SourceLines)
	}
}

func TestSquasherSingletonIsNotCoalesced(t *testing.T) {
	s := NewSquasher()
	s.AddLines("only once\n", time.Time{})
	msgs := s.Squash()
	if len(msgs) != 1 || msgs[0].Message != "only once" {
		t.Fatalf("got %+v, want a single bare message", msgs)
	}
}

func TestSquasherGreenlitLinesAreNeverCoalesced(t *testing.T) {
	s := NewSquasher()
	s.AddLines("@@@ repeated banner\n@@@ repeated banner\n", time.Time{})
	msgs := s.Squash()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (greenlit lines bypass coalescing): %+v", len(msgs), msgs)
	}
}

func TestSquasherSingleLineGroupCoalescesWithInfo(t *testing.T) {
	s := NewSquasher()
	s.AddLines(
		"KLYS:LI21:1:AACT: Protocol aborted\nKLYS:LI21:2:AACT: Protocol aborted\n",
		time.Time{},
	)
	msgs := s.Squash()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(msgs), msgs)
	}
	if want := "Protocol aborted"; msgs[0].Message != want {
		t.Errorf("Message = %q, want %q", msgs[0].Message, want)
	}
	want := []InfoField{{Key: "pv", Values: []string{"KLYS:LI21:1:AACT", "KLYS:LI21:2:AACT"}}}
	if diff := cmp.Diff(want, msgs[0].Info); diff != "" {
		t.Errorf("Info diff (-want +got):\n%s", diff)
	}
}

func TestSquasherLoneGroupMatchIsDemoted(t *testing.T) {
	s := NewSquasher()
	s.AddLines("KLYS:LI21:1:AACT: Protocol aborted\n", time.Time{})
	msgs := s.Squash()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(msgs), msgs)
	}
	want := "KLYS:LI21:1:AACT: Protocol aborted"
	if msgs[0].Message != want {
		t.Errorf("Message = %q, want %q (a lone group match demotes to its raw line)", msgs[0].Message, want)
	}
	if msgs[0].Info != nil {
		t.Errorf("Info = %+v, want nil for a demoted lone match", msgs[0].Info)
	}
}

func TestSquasherMultilineGroupCompletes(t *testing.T) {
	s := NewSquasher()
	s.AddLines(
		"@@@ @@@ @@@ @@@ @@@\n"+
			"@@@ Received a sigChild signal, rc = 0, pid = 4242\n"+
			"@@@ Current time: Wed Nov 09 09:32:01 2022\n"+
			"@@@ @@@ @@@ @@@ @@@\n",
		time.Time{},
	)
	msgs := s.Squash()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(msgs), msgs)
	}
	if want := "procServ status update"; msgs[0].Message != want {
		t.Errorf("Message = %q, want %q", msgs[0].Message, want)
	}
	if msgs[0].SourceLines != 4 {
		t.Errorf("SourceLines = %d, want 4", msgs[0].SourceLines)
	}
	want := []InfoField{
		{Key: "exit_code", Values: []string{"0"}},
		{Key: "pid", Values: []string{"4242"}},
		{Key: "procserv_ts", Values: []string{"Wed Nov 09 09:32:01 2022"}},
	}
	if diff := cmp.Diff(want, msgs[0].Info, cmpopts.SortSlices(func(a, b InfoField) bool { return a.Key < b.Key })); diff != "" {
		t.Errorf("Info diff (-want +got):\n%s", diff)
	}
}

func TestSquasherInterruptedMultilineGroupSpillsRawLines(t *testing.T) {
	s := NewSquasher()
	s.AddLines(
		"@@@ @@@ @@@ @@@ @@@\n"+
			"an unrelated line that doesn't match any inner or end pattern\n",
		time.Time{},
	)
	msgs := s.Squash()
	got := messageTexts(msgs)
	want := []string{"@@@ @@@ @@@ @@@ @@@", "an unrelated line that doesn't match any inner or end pattern"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("spilled lines diff (-want +got):\n%s", diff)
	}
}

func TestSquasherPendingLinesCarryForwardAcrossSquash(t *testing.T) {
	s := NewSquasher()
	s.AddLines("@@@ @@@ @@@ @@@ @@@\n", time.Time{})
	s.Squash()
	pending := s.PendingLines()
	if len(pending) != 1 {
		t.Fatalf("PendingLines() = %+v, want 1 in-progress line", pending)
	}

	s.AddLines("@@@ @@@ @@@ @@@ @@@\n", time.Time{})
	msgs := s.Squash()
	if len(msgs) != 1 || msgs[0].Message != "procServ status update" {
		t.Fatalf("got %+v, want the group to complete across the Squash() boundary", msgs)
	}
	if pending := s.PendingLines(); pending != nil {
		t.Errorf("PendingLines() = %+v, want nil once the group has closed", pending)
	}
}

func TestSquasherMessageIndexOrderingIsStable(t *testing.T) {
	s := NewSquasher()
	s.AddLines("a\nb\na\nc\n", time.Time{})
	msgs := s.Squash()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Index < msgs[i-1].Index {
			t.Fatalf("messages not sorted by index: %+v", msgs)
		}
	}
}

func TestSquasherConservesByteAndLineAccounting(t *testing.T) {
	s := NewSquasher()
	text := "one\ntwo\nthree\n"
	s.AddLines(text, time.Time{})
	if got, want := s.NumBytes(), len(text); got != want {
		t.Errorf("NumBytes() = %d, want %d", got, want)
	}
	if got, want := s.NumMessages(), 3; got != want {
		t.Errorf("NumMessages() = %d, want %d", got, want)
	}
}

func TestSquasherFallsBackToReadTimeWithoutEmbeddedTimestamp(t *testing.T) {
	s := NewSquasher()
	readTime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	s.AddLines("no timestamp here\n", readTime)
	msgs := s.Squash()
	if len(msgs) != 1 {
		t.Fatalf("got %+v, want 1 message", msgs)
	}
	if !msgs[0].Timestamp.Equal(readTime) {
		t.Errorf("Timestamp = %v, want %v", msgs[0].Timestamp, readTime)
	}
}
