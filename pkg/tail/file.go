// Package tail tracks a set of on-disk log files, reading newly-appended
// bytes without blocking and handing complete lines off to a squash.Squasher
// on demand.
package tail

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding/charmap"

	"github.com/pcdshub/epics-log-squasher/pkg/squash"
)

// DefaultShortNameRegex captures the IOC name segment from the fixed path
// layout IOC log directories use. Filenames that don't match fall back to
// the full path.
var DefaultShortNameRegex = regexp.MustCompile(`^/cds/data/iocData/(?P<name>.*)/iocInfo/.*$`)

// ShortName applies rx to filename and returns its "name" capture, or
// filename unchanged if rx doesn't match.
func ShortName(rx *regexp.Regexp, filename string) string {
	if rx == nil {
		return filename
	}
	m := rx.FindStringSubmatch(filename)
	if m == nil {
		return filename
	}
	for i, n := range rx.SubexpNames() {
		if n == "name" {
			return m[i]
		}
	}
	return filename
}

// queuedLine is one line awaiting squash, tagged with the wall-clock time it
// was read at (used as its fallback timestamp if it has none of its own).
type queuedLine struct {
	readTime time.Time
	text     string
}

// fileMonitor tracks the inode/size/position triple for one file, the way
// spec.md's FileSizeMonitor does: a rotation (inode change) rewinds to 0; a
// pre-existing file is picked up at its current end (tail semantics).
type fileMonitor struct {
	size        int64
	position    int64
	inode       uint64
	initialized bool
}

func newFileMonitor(filename string) (*fileMonitor, error) {
	m := &fileMonitor{}
	if err := m.check(filename); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *fileMonitor) check(filename string) error {
	info, err := os.Stat(filename)
	if err != nil {
		return err
	}
	m.size = info.Size()
	inode := inodeOf(info)
	if !m.initialized || inode != m.inode {
		m.reset(inode)
	}
	return nil
}

func (m *fileMonitor) reset(inode uint64) {
	if !m.initialized {
		m.position = m.size
	} else {
		m.position = 0
	}
	m.inode = inode
	m.initialized = true
}

func (m *fileMonitor) dataAvailable() bool { return m.size > m.position }

func inodeOf(info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Ino
	}
	return 0
}

// File is the per-file mutable state described by spec.md's "File": an
// open-or-not descriptor, inode/position tracking, a partial-line buffer, a
// FIFO of lines awaiting squash, and the Squasher that owns reducing them.
type File struct {
	Filename  string
	ShortName string

	monitor *fileMonitor
	fd      *os.File

	mu     sync.Mutex
	buffer string // partial-line tail; invariant: never contains '\n'
	lines  []queuedLine

	lastUpdate time.Time
	squasher   *squash.Squasher
}

// NewFile stats filename and returns a File ready to be Open'd once data
// becomes available.
func NewFile(filename string, shortNameRegex *regexp.Regexp) (*File, error) {
	mon, err := newFileMonitor(filename)
	if err != nil {
		return nil, fmt.Errorf("tail: stat %s: %w", filename, err)
	}
	return &File{
		Filename:   filename,
		ShortName:  ShortName(shortNameRegex, filename),
		monitor:    mon,
		lastUpdate: time.Now(),
	}, nil
}

// Check restats the file, rewinding position to 0 if its inode changed
// (rotation/truncation/replacement).
func (f *File) Check() error { return f.monitor.check(f.Filename) }

// DataAvailable reports whether the file has grown past our last known
// position.
func (f *File) DataAvailable() bool { return f.monitor.dataAvailable() }

// IsOpen reports whether the file currently has a live descriptor.
func (f *File) IsOpen() bool { return f.fd != nil }

// Open opens the file for non-blocking reading at its tracked position.
func (f *File) Open() error {
	if f.fd != nil {
		return fmt.Errorf("tail: %s is already open", f.Filename)
	}
	fd, err := os.OpenFile(f.Filename, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("tail: open %s: %w", f.Filename, err)
	}
	if err := unix.SetNonblock(int(fd.Fd()), true); err != nil {
		fd.Close()
		return fmt.Errorf("tail: set nonblocking on %s: %w", f.Filename, err)
	}
	if _, err := fd.Seek(f.monitor.position, io.SeekStart); err != nil {
		fd.Close()
		return fmt.Errorf("tail: seek %s: %w", f.Filename, err)
	}
	f.fd = fd
	return nil
}

// Close closes the file's descriptor, if open.
func (f *File) Close() error {
	if f.fd == nil {
		return nil
	}
	err := f.fd.Close()
	f.fd = nil
	return err
}

// ElapsedSinceLastUpdate is how long it's been since Read last observed new
// bytes.
func (f *File) ElapsedSinceLastUpdate() time.Duration { return time.Since(f.lastUpdate) }

const readChunkSize = 64 * 1024

// Read performs one non-blocking bulk read, decodes it as Latin-1 so
// arbitrary bytes never fail to decode, splits complete lines off the
// accumulated buffer, and enqueues them. A would-block or EOF-with-no-data
// result is not an error; any other I/O error propagates to the caller (the
// reader loop, which will drop this file).
func (f *File) Read() error {
	if f.fd == nil {
		return nil
	}
	buf := make([]byte, readChunkSize)
	n, err := f.fd.Read(buf)
	if err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("tail: read %s: %w", f.Filename, err)
	}
	if n == 0 {
		return nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(buf[:n])
	if err != nil {
		return fmt.Errorf("tail: decode %s: %w", f.Filename, err)
	}

	if pos, err := f.fd.Seek(0, io.SeekCurrent); err == nil {
		f.monitor.position = pos
	}

	readTime := time.Now()
	f.mu.Lock()
	f.buffer += string(decoded)
	for {
		idx := strings.IndexByte(f.buffer, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(f.buffer[:idx], " \t\r\v\f")
		f.buffer = f.buffer[idx+1:]
		f.lines = append(f.lines, queuedLine{readTime: readTime, text: line})
	}
	f.mu.Unlock()

	f.lastUpdate = readTime
	return nil
}

// QueuedLines is the number of lines currently waiting to be squashed.
func (f *File) QueuedLines() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lines)
}

// Squash drains the file's queued lines through a freshly-constructed
// Squasher and returns the emitted Messages. The Squasher is retained on the
// File so the caller can subsequently read NumBytes, NumMessages, and
// PendingLines.
func (f *File) Squash() []squash.Message {
	f.mu.Lock()
	queued := f.lines
	f.lines = nil
	f.mu.Unlock()

	s := squash.NewSquasher()
	for _, ql := range queued {
		s.AddLines(ql.text, ql.readTime)
	}
	f.squasher = s
	return s.Squash()
}

// NumBytes is the most recent Squash's raw byte accounting, or 0 before the
// first Squash.
func (f *File) NumBytes() int {
	if f.squasher == nil {
		return 0
	}
	return f.squasher.NumBytes()
}

// NumMessages is the most recent Squash's raw input line count (before
// ignore-filtering), or 0 before the first Squash.
func (f *File) NumMessages() int {
	if f.squasher == nil {
		return 0
	}
	return f.squasher.NumMessages()
}

// PendingLines is the source lines of any multi-line group still open at
// the end of the most recent Squash.
func (f *File) PendingLines() []squash.IndexedString {
	if f.squasher == nil {
		return nil
	}
	return f.squasher.PendingLines()
}

// RequeuePending re-inserts pending's lines at the front of the file's
// queue, reformatted as plain text so the next Squash reclassifies them
// from scratch. This is how an unfinished multi-line group survives across
// a squash tick: spec.md's GlobalMonitor calls this right after Squash with
// that Squash's own PendingLines.
func (f *File) RequeuePending(pending []squash.IndexedString) {
	if len(pending) == 0 {
		return
	}
	readTime := time.Now()
	reformatted := make([]queuedLine, len(pending))
	for i, ix := range pending {
		reformatted[i] = queuedLine{readTime: readTime, text: ix.FormatPending()}
	}
	f.mu.Lock()
	f.lines = append(reformatted, f.lines...)
	f.mu.Unlock()
}
