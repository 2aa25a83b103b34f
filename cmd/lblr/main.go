package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/config"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/labeler"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
)

const manual = `
Welcome to the minimalist lblr! This application takes rows of content in
JSON or delimited form, presents each line individually, and lets you label
each row with one of two values.

The history holds the last few records. You can navigate back to them and
relabel them before they are written out.

Navigation:

                  previous record
                        ^
                        |
      left value  <-----+----->  right value
                        |
                        v
                   next record

The prefix is [* N] (M): where * appears if the last record viewed was
labeled, N is the position in the history (0 is the newest record) and M is
the input record number.

Press q to quit. Labeled records are written out; the record on screen is
dropped.
`

type options struct {
	json         bool
	delimiter    string
	left         string
	right        string
	input        string
	output       string
	manual       bool
	history      int
	unlabeled    string
	decodeErrors string
}

func parseFlags(args []string, cfg config.Config, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("lblr", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.BoolVar(&o.json, "j", false, "input is JSON; adds \""+record.LabelField+"\" to the root")
	fs.BoolVar(&o.json, "json", false, "same as -j")
	fs.StringVar(&o.delimiter, "d", cfg.Delimiter, "delimiter of delimited input and output")
	fs.StringVar(&o.delimiter, "delimiter", cfg.Delimiter, "same as -d")
	fs.StringVar(&o.left, "l", cfg.LeftValue, "value assigned by the left arrow")
	fs.StringVar(&o.left, "left", cfg.LeftValue, "same as -l")
	fs.StringVar(&o.right, "r", cfg.RightValue, "value assigned by the right arrow")
	fs.StringVar(&o.right, "right", cfg.RightValue, "same as -r")
	fs.StringVar(&o.input, "i", "", "input file name (required)")
	fs.StringVar(&o.input, "input", "", "same as -i")
	fs.StringVar(&o.output, "o", "", "output file name (default <input>.labels)")
	fs.StringVar(&o.output, "output", "", "same as -o")
	fs.BoolVar(&o.manual, "m", false, "show the manual")
	fs.BoolVar(&o.manual, "manual", false, "same as -m")
	fs.IntVar(&o.history, "history", cfg.HistorySize, "records kept for relabeling")
	fs.StringVar(&o.unlabeled, "unlabeled", cfg.Unlabeled, "unlabeled records on flush: empty or error")
	fs.StringVar(&o.decodeErrors, "decode-errors", cfg.DecodeErrors, "malformed input records: abort or skip")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.output == "" && o.input != "" {
		o.output = o.input + ".labels"
	}
	return o, nil
}

// session is where keys come from and where views and logs go.
type session struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
}

func main() {
	s := session{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())),
	}
	os.Exit(run(os.Args[1:], config.Load(), s))
}

func run(args []string, cfg config.Config, s session) int {
	opts, err := parseFlags(args, cfg, s.stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	if opts.manual {
		fmt.Fprintln(s.stdout, strings.Repeat("*", 80))
		fmt.Fprint(s.stdout, manual)
		fmt.Fprintln(s.stdout, strings.Repeat("*", 80))
		return 0
	}
	if opts.input == "" {
		fmt.Fprintln(s.stderr, "Input file name required. Exiting!")
		return 2
	}

	cfg.LeftValue, cfg.RightValue = opts.left, opts.right
	cfg.Delimiter = opts.delimiter
	cfg.HistorySize = opts.history
	cfg.Unlabeled, cfg.DecodeErrors = opts.unlabeled, opts.decodeErrors

	// The screen owns the terminal while labeling; hold logs until it is gone.
	var held bytes.Buffer
	logOut := s.stderr
	if s.interactive {
		logOut = &held
	}
	logger := setupLogging(cfg.LogLevel, logOut)
	defer func() {
		if held.Len() > 0 {
			s.stderr.Write(held.Bytes())
		}
	}()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	in, err := os.Open(opts.input)
	if err != nil {
		logger.Error("failed to open input", "path", opts.input, "error", err)
		return 1
	}
	defer in.Close()

	out, err := os.Create(opts.output)
	if err != nil {
		logger.Error("failed to create output", "path", opts.output, "error", err)
		return 1
	}
	defer out.Close()

	var src record.Source
	if opts.json {
		src = record.NewJSONDecoder(in)
	} else {
		src = record.NewDelimitedDecoder(in, cfg.Delimiter)
	}

	keys, display, closeUI, err := setupUI(s, cfg)
	if err != nil {
		logger.Error("failed to set up terminal", "error", err)
		return 1
	}

	eng, err := labeler.New(cfg.LabelerOptions(), keys, display, logger)
	if err != nil {
		closeUI()
		logger.Error("invalid labeler options", "error", err)
		return 1
	}

	complete, err := eng.Run(src, labeler.NewFileSink(out))
	closeUI()

	stats := eng.Stats()
	if err != nil {
		var fe *labeler.FlushError
		if errors.As(err, &fe) {
			logger.Error("failed to write record", "record", fe.Number, "output", opts.output, "error", fe.Err)
		} else {
			logger.Error("labeling failed", "error", err)
		}
		return 1
	}

	logger.Info("labeling finished",
		"complete", complete,
		"read", stats.Read,
		"written", stats.Flushed,
		"labels", stats.Labels,
		"skipped", stats.Skipped,
		"output", opts.output,
	)
	return 0
}

// setupUI picks a full-screen terminal UI when attached to a terminal and a
// line-oriented one otherwise.
func setupUI(s session, cfg config.Config) (labeler.Keys, labeler.Display, func(), error) {
	if !s.interactive {
		return labeler.NewByteKeys(s.stdin), labeler.NewLineDisplay(s.stdout), func() {}, nil
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, nil, nil, fmt.Errorf("init screen: %w", err)
	}
	display := labeler.NewScreenDisplay(screen, cfg.LeftValue, cfg.RightValue)
	return labeler.NewScreenKeys(screen), display, screen.Fini, nil
}

func setupLogging(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
