package tail

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestShortName(t *testing.T) {
	rx := DefaultShortNameRegex
	testData := []struct {
		name string
		in   string
		want string
	}{
		{"matches ioc layout", "/cds/data/iocData/ioc-klys-li21/iocInfo/ioc.log", "ioc-klys-li21"},
		{"matches nested ioc layout", "/cds/data/iocData/area/ioc-klys-li21/iocInfo/ioc.log", "area/ioc-klys-li21"},
		{"falls back to full path when unmatched", "/var/log/messages", "/var/log/messages"},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			if got := ShortName(rx, test.in); got != test.want {
				t.Errorf("ShortName(%q) = %q, want %q", test.in, got, test.want)
			}
		})
	}
}

func TestNewFilePreExistingContentStartsAtEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "ioc.log", "old line 1\nold line 2\n")

	f, err := NewFile(path, nil)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if f.DataAvailable() {
		t.Error("DataAvailable() = true, want false for a pre-existing file at startup (tail semantics)")
	}
}

func TestFileReadAndSquash(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "ioc.log", "")

	f, err := NewFile(path, nil)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := f.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := fh.WriteString("hello\nhello\nworld\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	fh.Close()

	if err := f.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !f.DataAvailable() {
		t.Fatal("DataAvailable() = false after appending data")
	}
	if err := f.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}

	msgs := f.Squash()
	var texts []string
	for _, m := range msgs {
		texts = append(texts, m.Message)
	}
	want := []string{"[2x] hello", "world"}
	if len(texts) != len(want) {
		t.Fatalf("got messages %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, texts[i], want[i])
		}
	}
	if f.NumMessages() != 3 {
		t.Errorf("NumMessages() = %d, want 3", f.NumMessages())
	}
}

func TestFileRequeuePendingIsReclassifiedNextSquash(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "ioc.log", "")

	f, err := NewFile(path, nil)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := f.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	fh, _ := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	fh.WriteString("@@@ @@@ @@@ @@@ @@@\n")
	fh.Close()
	if err := f.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := f.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	f.Squash()
	pending := f.PendingLines()
	if len(pending) != 1 {
		t.Fatalf("PendingLines() = %+v, want 1 in-progress line", pending)
	}
	f.RequeuePending(pending)

	fh, _ = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	fh.WriteString("@@@ @@@ @@@ @@@ @@@\n")
	fh.Close()
	if err := f.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := f.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	msgs := f.Squash()
	if len(msgs) != 1 || msgs[0].Message != "procServ status update" {
		t.Fatalf("got %+v, want the requeued group to complete", msgs)
	}
}

func TestFileElapsedSinceLastUpdate(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "ioc.log", "")
	f, err := NewFile(path, nil)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if f.ElapsedSinceLastUpdate() < 0 {
		t.Error("ElapsedSinceLastUpdate() < 0")
	}
	if f.ElapsedSinceLastUpdate() > time.Minute {
		t.Error("ElapsedSinceLastUpdate() unexpectedly large right after construction")
	}
}
