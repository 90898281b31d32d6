package tail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestReaderReadsTrackedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ioc.log")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	f, err := NewFile(path, nil)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	r := NewReader(time.Hour, zap.NewNop().Sugar())
	if err := r.AddFile(f); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	defer f.Close()

	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	fh.WriteString("hello\n")
	fh.Close()
	if err := f.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	<-done

	msgs := f.Squash()
	if len(msgs) != 1 || msgs[0].Message != "hello" {
		t.Fatalf("got %+v, want a single \"hello\" message read by the background reader", msgs)
	}
}

func TestReaderClosesIdleFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ioc.log")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f, err := NewFile(path, nil)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	f.lastUpdate = time.Now().Add(-time.Hour)

	r := NewReader(time.Millisecond, zap.NewNop().Sugar())
	if err := r.AddFile(f); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	<-done

	if r.Tracked(path) {
		t.Error("file still tracked after exceeding close timeout")
	}
}
