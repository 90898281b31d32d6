//go:build go1.18
// +build go1.18

package squash

import (
	"testing"
	"time"

	"github.com/pcdshub/epics-log-squasher/pkg/squash/internal/fuzzsupport"
)

func FuzzSquasher(f *testing.F) {
	f.Add([]byte{1, 2, 3})
	f.Add([]byte{9, 10, 11, 9})
	f.Add([]byte{7, 7, 7})
	f.Add([]byte{3, 4, 5, 6, 12, 13})
	f.Add([]byte("\xffhello\x00\xffworld\x00"))

	f.Fuzz(func(t *testing.T, in []byte) {
		var gen fuzzsupport.GeneratedLog
		if err := gen.UnmarshalText(in); err != nil {
			t.SkipNow()
		}

		s := NewSquasher()
		s.AddLines(string(gen.Data), time.Unix(0, 0))
		msgs := s.Squash()

		var sourceLines int
		for _, m := range msgs {
			if m.SourceLines < 1 {
				t.Fatalf("message %+v has SourceLines < 1", m)
			}
			sourceLines += m.SourceLines
		}
		sourceLines += len(s.PendingLines())

		if sourceLines > s.NumMessages() {
			t.Fatalf("accounted for %d source lines, only %d raw lines were ever seen", sourceLines, s.NumMessages())
		}

		if _, err := (Message{}).MarshalJSONLine(); err != nil {
			t.Fatalf("marshaling a bare Message must never fail: %v", err)
		}
		for _, m := range msgs {
			if _, err := m.MarshalJSONLine(); err != nil {
				t.Fatalf("MarshalJSONLine(%+v): %v", m, err)
			}
		}
	})
}
