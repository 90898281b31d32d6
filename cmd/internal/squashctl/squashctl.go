// Package squashctl turns parsed command-line flags into squasher/tail/monitor
// configuration, the way cmd/internal/jlog turns jlog's flags into parse
// configuration.
package squashctl

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	aurora "github.com/logrusorgru/aurora/v3"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pcdshub/epics-log-squasher/pkg/monitor"
	"github.com/pcdshub/epics-log-squasher/pkg/squash"
)

// General holds flags shared by both subcommands.
type General struct {
	LogLevel     string   `long:"log" description:"Log level: debug, info, warn, or error." default:"info" env:"SQUASHER_LOG_LEVEL"`
	JQ           string   `short:"e" long:"jq" description:"A jq program to run on each emitted message; use this to drop or rewrite fields. Hint: 'select(condition)' removes messages that don't match 'condition'."`
	JQSearchPath []string `long:"jq-search-path" env:"SQUASHER_JQ_SEARCH_PATH" description:"Directories to search for jq modules." env-delim:":"`
	NoColor      bool     `short:"M" long:"no-color" description:"Disable the use of color in diagnostics." env:"SQUASHER_FORCE_MONOCHROME"`
	NoMonochrome bool     `short:"c" long:"no-monochrome" description:"Force the use of color in diagnostics." env:"SQUASHER_FORCE_COLOR"`
	NoSummary    bool     `long:"no-summary" description:"Suppress printing the aggregate summary at exit."`
	Version      bool     `short:"V" long:"version" description:"Print version information and exit."`
}

// Monitor holds flags for the glob-based "monitor" subcommand.
type Monitor struct {
	Glob            string        `long:"glob" description:"Glob pattern matching IOC log files, e.g. '/cds/data/iocData/*/iocInfo/ioc.log'. Required in monitor mode."`
	ShortNameRegex  string        `long:"short-name-regex" description:"Regex with a 'name' capture group used to derive each file's short name." default:"^/cds/data/iocData/(?P<name>.*)/iocInfo/.*$"`
	FileCheckPeriod time.Duration `long:"file-check-period" description:"How often to rescan the glob for new or removed files." default:"10s"`
	SquashPeriod    time.Duration `long:"squash-period" description:"How often to squash and emit queued lines for every tracked file." default:"1s"`
	CloseTimeout    time.Duration `long:"close-timeout" description:"Close and drop a file's descriptor after this long without new data." default:"30s"`
	StatsEvery      int           `long:"stats-every" description:"Log aggregate counters every N squash ticks; 0 disables." default:"0"`
}

// Filter holds flags for the stdin-based "filter" subcommand.
type Filter struct {
	Period time.Duration `long:"period" description:"How long to buffer stdin between squash ticks." default:"10s"`
}

// NewShortNameRegex compiles mon.ShortNameRegex. It returns nil if that is
// empty; monitor.NewGlobalMonitor then uses tail.DefaultShortNameRegex.
func NewShortNameRegex(mon Monitor) (*regexp.Regexp, error) {
	if mon.ShortNameRegex == "" {
		return nil, nil
	}
	rx, err := regexp.Compile(mon.ShortNameRegex)
	if err != nil {
		return nil, fmt.Errorf("compiling short-name-regex %q: %w", mon.ShortNameRegex, err)
	}
	return rx, nil
}

// NewMessageFilter builds the squash.MessageFilter described by gen.JQ, or
// nil if no jq program was given.
func NewMessageFilter(gen General) (*squash.MessageFilter, error) {
	if gen.JQ == "" {
		return nil, nil
	}
	f := new(squash.MessageFilter)
	if err := f.AddJQ(gen.JQ, &squash.JQOptions{SearchPath: gen.JQSearchPath}); err != nil {
		return nil, fmt.Errorf("adding jq: %w", err)
	}
	return f, nil
}

// NewMonitorConfig turns Monitor/General flags into a monitor.Config.
func NewMonitorConfig(mon Monitor, gen General, out io.Writer, log *zap.SugaredLogger) (monitor.Config, error) {
	shortNameRegex, err := NewShortNameRegex(mon)
	if err != nil {
		return monitor.Config{}, err
	}
	filter, err := NewMessageFilter(gen)
	if err != nil {
		return monitor.Config{}, err
	}
	return monitor.Config{
		FileGlob:        mon.Glob,
		ShortNameRegex:  shortNameRegex,
		FileCheckPeriod: mon.FileCheckPeriod,
		SquashPeriod:    mon.SquashPeriod,
		CloseTimeout:    mon.CloseTimeout,
		StatsEvery:      mon.StatsEvery,
		Filter:          filter,
		Output:          out,
		Log:             log,
	}, nil
}

// WantColor decides whether diagnostics printed to stderr should use color,
// honoring an explicit --no-color/--no-monochrome override over the terminal
// autodetection.
func WantColor(gen General) bool {
	wantColor := isatty.IsTerminal(os.Stderr.Fd())
	switch {
	case gen.NoColor && gen.NoMonochrome:
		fmt.Fprintln(os.Stderr, "--no-color and --no-monochrome given together; letting the terminal decide")
	case gen.NoColor:
		wantColor = false
	case gen.NoMonochrome:
		wantColor = true
	}
	return wantColor
}

// NewLogger builds a zap.SugaredLogger at gen.LogLevel, writing to os.Stderr.
func NewLogger(gen General) (*zap.SugaredLogger, error) {
	var level zapcore.Level
	switch gen.LogLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "", "info":
		level = zapcore.InfoLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", gen.LogLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Sugar(), nil
}

// PrintSummary reports a monitor run's aggregate counters to w, the way
// PrintOutputSummary reports jlog's parse.Summary.
func PrintSummary(gen General, stats monitor.Stats, w io.Writer) {
	if gen.NoSummary {
		return
	}
	au := aurora.NewAurora(WantColor(gen))
	fmt.Fprintf(w, "  %s lines in, %s lines out (%s bytes in, %s bytes out), %s squashes\n",
		au.Bold(stats.LinesIn), au.Bold(stats.LinesOut),
		au.Bold(stats.BytesIn), au.Bold(stats.BytesOut),
		au.Bold(stats.Squashes))
}
