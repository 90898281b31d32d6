// Command squasher tails EPICS IOC log files (or stdin), reduces repeated
// and grouped lines, and emits the result as JSON lines on stdout.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"

	"github.com/pcdshub/epics-log-squasher/cmd/internal/squashctl"
	"github.com/pcdshub/epics-log-squasher/pkg/interruptible"
	"github.com/pcdshub/epics-log-squasher/pkg/monitor"
	"github.com/pcdshub/epics-log-squasher/pkg/squash"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "squasher - reduce and tail EPICS IOC logs.\n")
	fmt.Fprintf(w, "Version %s (%s) built on %s\n", version, commit, date)
}

type args struct {
	squashctl.General
	squashctl.Monitor
	squashctl.Filter
}

func main() {
	var a args
	a.Monitor.FileCheckPeriod = 10 * time.Second
	a.Monitor.SquashPeriod = time.Second
	a.Monitor.CloseTimeout = 30 * time.Second
	a.Filter.Period = 10 * time.Second

	fp := flags.NewParser(&a, flags.HelpFlag|flags.PassDoubleDash)
	extraArgs, err := fp.Parse()
	if err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			printVersion(os.Stderr)
			fmt.Fprintln(os.Stderr, ferr.Message)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "flag parsing: %v\n", err)
		os.Exit(3)
	}
	if a.General.Version {
		printVersion(os.Stdout)
		os.Exit(0)
	}

	mode := "monitor"
	if len(extraArgs) > 0 {
		mode = extraArgs[0]
	}
	if len(extraArgs) > 1 {
		fmt.Fprintf(os.Stderr, "unexpected arguments after %q: %v\n", mode, extraArgs[1:])
		os.Exit(1)
	}

	if err := squash.SelfTest(); err != nil {
		fmt.Fprintf(os.Stderr, "pattern self-test failed: %v\n", err)
		os.Exit(1)
	}

	log, err := squashctl.NewLogger(a.General)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	switch mode {
	case "monitor":
		err = runMonitor(a.Monitor, a.General, log)
	case "filter":
		err = runFilter(a.Filter, a.General, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q; want \"monitor\" or \"filter\"\n", mode)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "squasher: %v\n", err)
		os.Exit(1)
	}
}

func runMonitor(mon squashctl.Monitor, gen squashctl.General, log *zap.SugaredLogger) error {
	cfg, err := squashctl.NewMonitorConfig(mon, gen, colorable.NewColorableStdout(), log)
	if err != nil {
		return err
	}
	m, err := monitor.NewGlobalMonitor(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := m.Run(ctx)
	squashctl.PrintSummary(gen, m.Stats(), os.Stderr)
	return runErr
}

// runFilter implements the stdin-based degenerate mode: a single implicit
// "file" whose lines arrive from a stream instead of disk. It buffers lines
// for f.Period, squashes the buffer, emits each Message as a JSON line, and
// carries any still-open multi-line group forward into the next period —
// the same pending-lines contract pkg/tail.File implements for on-disk
// files, reproduced by hand here since there's no File to own it.
func runFilter(f squashctl.Filter, gen squashctl.General, log *zap.SugaredLogger) error {
	filter, err := squashctl.NewMessageFilter(gen)
	if err != nil {
		return err
	}

	stdin := interruptible.NewReader(os.Stdin, os.Interrupt, syscall.SIGTERM)
	defer stdin.Close()
	out := colorable.NewColorableStdout()

	s := squash.NewSquasher()
	var bytesRaw, bytesFiltered int

	linesCh := make(chan string)
	doneCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(stdin)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			linesCh <- scanner.Text()
		}
		doneCh <- scanner.Err()
	}()

	drain := func() {
		for _, msg := range s.Squash() {
			line, err := msg.MarshalJSONLine()
			if err != nil {
				log.Warnw("marshal message", "error", err)
				continue
			}
			if filter != nil {
				fields, filtered, err := filter.Run(msg)
				if err != nil {
					log.Warnw("jq filter error", "error", err)
					continue
				}
				if filtered {
					continue
				}
				if fields != nil {
					encoded, err := json.Marshal(fields)
					if err != nil {
						log.Warnw("marshal filtered message", "error", err)
						continue
					}
					line = append(encoded, '\n')
				}
			}
			if _, err := out.Write(line); err != nil {
				log.Warnw("write output", "error", err)
				continue
			}
			bytesFiltered += len(line)
		}
		fmt.Fprintf(os.Stderr, "(%d -> %d bytes)\n", bytesRaw, bytesFiltered)
		pending := s.PendingLines()
		s = squash.NewSquasher()
		readTime := time.Now()
		for _, p := range pending {
			s.AddLines(p.FormatPending(), readTime)
		}
	}

	tick := time.NewTicker(f.Period)
	defer tick.Stop()
	for {
		select {
		case line := <-linesCh:
			bytesRaw += len(line) + 1
			s.AddLines(line, time.Now())
		case <-tick.C:
			drain()
		case readErr := <-doneCh:
			drain()
			if readErr != nil && !errors.Is(readErr, interruptible.ErrInterrupted) && !errors.Is(readErr, interruptible.ErrClosed) {
				return readErr
			}
			return nil
		}
	}
}
