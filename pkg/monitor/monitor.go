// Package monitor implements the glob-driven supervisor that discovers IOC
// log files, tails them via pkg/tail, and periodically squashes and emits
// them as JSON lines.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/pcdshub/epics-log-squasher/pkg/squash"
	"github.com/pcdshub/epics-log-squasher/pkg/tail"
)

// Config configures a GlobalMonitor.
type Config struct {
	FileGlob        string
	ShortNameRegex  *regexp.Regexp
	FileCheckPeriod time.Duration
	SquashPeriod    time.Duration
	CloseTimeout    time.Duration
	StatsEvery      int
	Filter          *squash.MessageFilter
	Output          io.Writer
	Log             *zap.SugaredLogger
}

type flusher interface{ Flush() error }

// Stats is the aggregate counters GlobalMonitor accumulates across squashes.
type Stats struct {
	BytesIn    int64
	LinesIn    int64
	LinesOut   int64
	BytesOut   int64
	Squashes   int
}

// GlobalMonitor owns glob discovery, the reader's file membership, and the
// squash/emit schedule (spec.md §4.7).
type GlobalMonitor struct {
	fileGlob       string
	matcher        glob.Glob
	staticRoot     string
	shortNameRegex *regexp.Regexp

	reader *tail.Reader
	files  map[string]*tail.File // owned exclusively by this monitor's goroutine

	filter *squash.MessageFilter
	out    io.Writer
	log    *zap.SugaredLogger

	fileCheckPeriod time.Duration
	squashPeriod    time.Duration
	statsEvery      int

	stats Stats
}

// NewGlobalMonitor compiles cfg.FileGlob and returns a monitor ready to Run.
func NewGlobalMonitor(cfg Config) (*GlobalMonitor, error) {
	if cfg.FileGlob == "" {
		return nil, fmt.Errorf("monitor: file glob must not be empty")
	}
	matcher, err := glob.Compile(cfg.FileGlob, '/')
	if err != nil {
		return nil, fmt.Errorf("monitor: compiling glob %q: %w", cfg.FileGlob, err)
	}
	if cfg.ShortNameRegex == nil {
		cfg.ShortNameRegex = tail.DefaultShortNameRegex
	}
	if cfg.FileCheckPeriod == 0 {
		cfg.FileCheckPeriod = 10 * time.Second
	}
	if cfg.SquashPeriod == 0 {
		cfg.SquashPeriod = time.Second
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 30 * time.Second
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}

	return &GlobalMonitor{
		fileGlob:        cfg.FileGlob,
		matcher:         matcher,
		staticRoot:      staticGlobRoot(cfg.FileGlob),
		shortNameRegex:  cfg.ShortNameRegex,
		reader:          tail.NewReader(cfg.CloseTimeout, cfg.Log),
		files:           map[string]*tail.File{},
		filter:          cfg.Filter,
		out:             cfg.Output,
		log:             cfg.Log,
		fileCheckPeriod: cfg.FileCheckPeriod,
		squashPeriod:    cfg.SquashPeriod,
		statsEvery:      cfg.StatsEvery,
	}, nil
}

// staticGlobRoot returns the directory part of pattern that precedes its
// first meta character (up to and including the last '/'), so a recursive
// glob like "/cds/data/iocData/**/ioc.log" can be walked from
// "/cds/data/iocData/" instead of the filesystem root.
func staticGlobRoot(pattern string) string {
	metaIdx := strings.IndexAny(pattern, "*?[{")
	if metaIdx < 0 {
		return filepath.Dir(pattern)
	}
	prefix := pattern[:metaIdx]
	if idx := strings.LastIndexByte(prefix, '/'); idx >= 0 {
		return prefix[:idx+1]
	}
	return "."
}

// Update rescans the glob, tracking newly discovered files, restatting known
// ones (closing and dropping any that vanished or became unreadable), and
// handing newly-readable files to the reader.
func (m *GlobalMonitor) Update() error {
	discovered, err := m.discoverFiles()
	if err != nil {
		return fmt.Errorf("monitor: glob %s: %w", m.fileGlob, err)
	}

	seen := make(map[string]bool, len(discovered))
	for _, path := range discovered {
		seen[path] = true
		if _, ok := m.files[path]; ok {
			continue
		}
		f, err := tail.NewFile(path, m.shortNameRegex)
		if err != nil {
			m.log.Warnw("failed to stat newly discovered file", "file", path, "error", err)
			continue
		}
		m.files[path] = f
		m.log.Infow("discovered log file", "file", path, "short_name", f.ShortName)
	}

	for path, f := range m.files {
		if !seen[path] {
			m.reader.RemoveFile(path)
			delete(m.files, path)
			m.log.Infow("log file disappeared from glob", "file", path)
			continue
		}
		if err := f.Check(); err != nil {
			m.log.Warnw("stat failed, dropping file", "file", path, "error", err)
			m.reader.RemoveFile(path)
			delete(m.files, path)
			continue
		}
		if !m.reader.Tracked(path) && f.DataAvailable() {
			if err := m.reader.AddFile(f); err != nil {
				m.log.Warnw("failed to open file", "file", path, "error", err)
				continue
			}
			m.log.Infow("log file changed", "file", path)
		}
	}
	return nil
}

func (m *GlobalMonitor) discoverFiles() ([]string, error) {
	var matches []string
	err := filepath.WalkDir(m.staticRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if m.matcher.Match(path) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Squash runs file.Squash on every currently-monitored file with queued
// lines, tags each Message with its owning file's short name, optionally
// runs the jq filter, and writes one JSON object per line to Output.
func (m *GlobalMonitor) Squash() error {
	for path, f := range m.files {
		if !m.reader.Tracked(path) || f.QueuedLines() == 0 {
			continue
		}
		msgs := f.Squash()
		m.stats.BytesIn += int64(f.NumBytes())
		m.stats.LinesIn += int64(f.NumMessages())

		for _, msg := range msgs {
			msg.IOC = f.ShortName
			if err := m.emit(msg); err != nil {
				return err
			}
		}
		f.RequeuePending(f.PendingLines())
	}
	m.stats.Squashes++
	if m.statsEvery > 0 && m.stats.Squashes%m.statsEvery == 0 {
		m.logStats()
	}
	return nil
}

func (m *GlobalMonitor) emit(msg squash.Message) error {
	var line []byte
	if m.filter != nil {
		fields, filtered, err := m.filter.Run(msg)
		if err != nil {
			m.log.Warnw("jq filter error", "error", err)
			return nil
		}
		if filtered {
			return nil
		}
		if fields != nil {
			encoded, err := json.Marshal(fields)
			if err != nil {
				return fmt.Errorf("monitor: marshal filtered message: %w", err)
			}
			line = append(encoded, '\n')
		}
	}
	if line == nil {
		encoded, err := msg.MarshalJSONLine()
		if err != nil {
			return fmt.Errorf("monitor: marshal message: %w", err)
		}
		line = encoded
	}
	if _, err := m.out.Write(line); err != nil {
		return fmt.Errorf("monitor: write: %w", err)
	}
	m.stats.LinesOut++
	m.stats.BytesOut += int64(len(line))
	return nil
}

func (m *GlobalMonitor) logStats() {
	m.log.Infow("aggregate stats",
		"bytes_in", m.stats.BytesIn,
		"lines_in", m.stats.LinesIn,
		"lines_out", m.stats.LinesOut,
		"bytes_out", m.stats.BytesOut,
		"squashes", m.stats.Squashes,
	)
}

// Stats returns a snapshot of the monitor's aggregate counters.
func (m *GlobalMonitor) Stats() Stats { return m.stats }

// Run drives update/squash ticks until ctx is canceled, polling at a short
// fixed interval between them (spec.md §4.7).
func (m *GlobalMonitor) Run(ctx context.Context) error {
	go m.reader.Run(ctx)

	if err := m.Update(); err != nil {
		return err
	}
	fileCheck := newTicker(m.fileCheckPeriod)
	squashTick := newTicker(m.squashPeriod)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if fileCheck.due() {
			if err := m.Update(); err != nil {
				m.log.Warnw("update failed", "error", err)
			}
		}
		if squashTick.due() {
			if err := m.Squash(); err != nil {
				return err
			}
			if flushable, ok := m.out.(flusher); ok {
				if err := flushable.Flush(); err != nil {
					return fmt.Errorf("monitor: flush: %w", err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(20 * time.Millisecond):
		}
	}
}
