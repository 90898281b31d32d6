package tail

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reader is the single background worker that polls every tracked file,
// reading whatever bytes are available and closing files that have gone
// quiet past closeTimeout. Its Read calls are what append to a File's
// buffer and queued lines and advance its position and lastUpdate; the
// monitor's File.Check can also rewind position, and File.Squash and
// File.RequeuePending drain and refill the queue from the monitor's side.
type Reader struct {
	closeTimeout time.Duration
	log          *zap.SugaredLogger

	mu    sync.RWMutex
	files map[string]*File
}

// NewReader returns a Reader that closes idle files after closeTimeout.
func NewReader(closeTimeout time.Duration, log *zap.SugaredLogger) *Reader {
	return &Reader{
		closeTimeout: closeTimeout,
		log:          log,
		files:        map[string]*File{},
	}
}

// AddFile opens f if it isn't already and hands it to the reader. Safe to
// call concurrently with Run.
func (r *Reader) AddFile(f *File) error {
	if !f.IsOpen() {
		if err := f.Open(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.files[f.Filename] = f
	r.mu.Unlock()
	return nil
}

// RemoveFile closes and drops f, if tracked. Used by the monitor when a file
// disappears from the glob.
func (r *Reader) RemoveFile(filename string) {
	r.mu.Lock()
	f, ok := r.files[filename]
	if ok {
		delete(r.files, filename)
	}
	r.mu.Unlock()
	if ok {
		if err := f.Close(); err != nil {
			r.log.Warnw("error closing removed file", "file", filename, "error", err)
		}
	}
}

// Tracked reports whether filename is currently tracked by the reader.
func (r *Reader) Tracked(filename string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.files[filename]
	return ok
}

// Snapshot returns the currently-tracked files; Run reads each of them once
// per pass.
func (r *Reader) Snapshot() []*File {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*File, 0, len(r.files))
	for _, f := range r.files {
		out = append(out, f)
	}
	return out
}

// Run polls every tracked file until ctx is canceled. The poll period is
// intentionally short (the loop relies on the OS scheduler and on Read
// returning immediately on would-block); it exists only to yield between
// passes, not to pace reads.
func (r *Reader) Run(ctx context.Context) {
	r.log.Info("reader loop started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reader loop stopping")
			return
		default:
		}

		files := r.Snapshot()
		var toRemove []string
		for _, f := range files {
			if err := f.Read(); err != nil {
				r.log.Warnw("read error, scheduling file for removal", "file", f.Filename, "error", err)
				toRemove = append(toRemove, f.Filename)
				continue
			}
			if f.ElapsedSinceLastUpdate() > r.closeTimeout {
				r.log.Infow("file idle past close timeout, scheduling for removal", "file", f.Filename, "timeout", r.closeTimeout)
				toRemove = append(toRemove, f.Filename)
			}
		}
		for _, filename := range toRemove {
			r.RemoveFile(filename)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
}
