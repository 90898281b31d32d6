// Package fuzzsupport supports generating random syntactically-plausible
// EPICS IOC log streams for fuzzing.
package fuzzsupport

import (
	"fmt"
	"strings"
)

// generatorState represents the state of the log generator state machine.
type generatorState int

const (
	stateDefault   generatorState = iota // the next byte is a generator instruction
	stateLineBytes                       // the next byte is a raw line byte, until \0
)

// cannedLines are interpretations of bytes in the stateDefault state: each
// selects one line drawn from the shapes this package actually classifies
// (ignored, greenlit, single-line groupable, multi-line groupable, plain),
// so a fuzzer spends most of its budget exercising real classification
// paths instead of re-discovering "this byte means blank line" from zero.
var cannedLines = []string{
	"",                                  // 0: handled by code (ends a raw custom line)
	"",                                  // 1: blank -> ignored
	"   ",                               // 2: whitespace-only -> ignored
	"@@@ unexpected banner text",        // 3: greenlit, never coalesced
	"2022/11/09 09:32:01.994 hello",     // 4: timestamped, standard format
	"11/09 09:32:01.994 hello short",    // 5: timestamped, short format
	"2022-12-02T13:30:56-0800 42 iso hello", // 6: timestamped, iso8601_1 format
	"KLYS:LI21:1:AACT: Protocol aborted", // 7: single-line groupable
	"errlog: 12 messages were discarded", // 8: single-line groupable, numeric capture
	"@@@ @@@ @@@ @@@ @@@",                          // 9: multi-line start/end banner
	"@@@ Received a sigChild signal, rc = 0, pid = 4242", // 10: multi-line inner
	"@@@ Current time: Wed Nov 09 09:32:01 2022",         // 11: multi-line inner
	"some plain unmatched message",                       // 12: falls into the default bucket
	"some plain unmatched message",                       // 13: repeated, to exercise coalescing
	string([]byte{0x1b}) + "[31mred text" + string([]byte{0x1b}) + "[0m plain", // 14: ANSI-escaped
}

// LogLines is a []byte alias so a cmp.Transformer can treat it as structured
// data in tests, the same role the teacher's JSONLogStream plays.
type LogLines []byte

// GeneratedLog is a sequence of generated log lines.
type GeneratedLog struct {
	Data   LogLines
	NLines int
}

// UnmarshalText turns an arbitrary byte sequence into a stream of
// newline-terminated IOC log lines by walking a small state machine: most
// bytes select a canned line shape, and a byte outside that table switches
// into collecting a raw, fuzzer-chosen line until a 0x00 terminator.
func (l *GeneratedLog) UnmarshalText(in []byte) error {
	var buf strings.Builder
	var nLines int
	var state generatorState
	var lineBytes []byte

	flush := func() {
		buf.Write(lineBytes)
		buf.WriteByte('\n')
		nLines++
		lineBytes = nil
	}

	for _, b := range in {
		switch state {
		case stateDefault:
			switch {
			case b == 0:
				flush()
			case int(b) < len(cannedLines):
				lineBytes = []byte(cannedLines[b])
				flush()
			default:
				lineBytes = nil
				state = stateLineBytes
			}
		case stateLineBytes:
			if b == 0 {
				flush()
				state = stateDefault
			} else {
				lineBytes = append(lineBytes, b)
			}
		}
	}
	if len(lineBytes) > 0 {
		flush()
	}
	if nLines == 0 {
		return fmt.Errorf("fuzzsupport: generated zero lines from %d input bytes", len(in))
	}
	l.NLines = nLines
	l.Data = LogLines(buf.String())
	return nil
}
