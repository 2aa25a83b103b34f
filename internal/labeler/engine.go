package labeler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
)

const DefaultHistorySize = 10

// ErrUnlabeled is returned when the unlabeled policy forbids flushing a
// record that never received a label.
var ErrUnlabeled = errors.New("record has no label")

// UnlabeledPolicy decides what happens to records flushed without a label.
type UnlabeledPolicy string

const (
	UnlabeledEmpty UnlabeledPolicy = "empty" // write with an empty label field
	UnlabeledError UnlabeledPolicy = "error" // fail the flush
)

// DecodePolicy decides what happens when the input holds a malformed record.
type DecodePolicy string

const (
	DecodeAbort DecodePolicy = "abort"
	DecodeSkip  DecodePolicy = "skip"
)

// Options configures label semantics and buffering.
type Options struct {
	Left         string
	Right        string
	HistorySize  int
	Unlabeled    UnlabeledPolicy
	DecodeErrors DecodePolicy
}

// DefaultOptions labels left as 0 and right as 1 with a history of 10.
func DefaultOptions() Options {
	return Options{
		Left:         "0",
		Right:        "1",
		HistorySize:  DefaultHistorySize,
		Unlabeled:    UnlabeledEmpty,
		DecodeErrors: DecodeAbort,
	}
}

func (o Options) Validate() error {
	if o.HistorySize <= 0 {
		return fmt.Errorf("history size must be positive, got %d", o.HistorySize)
	}
	if o.Left == "" || o.Right == "" {
		return errors.New("left and right values must not be empty")
	}
	if o.Left == o.Right {
		return fmt.Errorf("left and right values must differ, both are %q", o.Left)
	}
	switch o.Unlabeled {
	case UnlabeledEmpty, UnlabeledError:
	default:
		return fmt.Errorf("unknown unlabeled policy %q", o.Unlabeled)
	}
	switch o.DecodeErrors {
	case DecodeAbort, DecodeSkip:
	default:
		return fmt.Errorf("unknown decode error policy %q", o.DecodeErrors)
	}
	return nil
}

// FlushError reports the input record number that could not be written.
type FlushError struct {
	Number int
	Err    error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush record %d: %v", e.Number, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

// Stats counts what a run did.
type Stats struct {
	Read    int // records appended to the history
	Flushed int // records written to the sink
	Labels  int // label assignments, relabels included
	Skipped int // malformed records skipped
}

type outcome int

const (
	committed outcome = iota
	aborted
	keysEnded
)

// Engine streams records through a bounded history the operator can walk
// back into and relabel. Records leave the history in input order, either
// when they age out or at the end of the run.
type Engine struct {
	opts    Options
	keys    Keys
	display Display
	logger  *slog.Logger

	history []record.Record
	cursor  int
	rated   bool
	stats   Stats
}

func New(opts Options, keys Keys, display Display, logger *slog.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("labeler options: %w", err)
	}
	return &Engine{
		opts:    opts,
		keys:    keys,
		display: display,
		logger:  logger,
		history: make([]record.Record, 0, opts.HistorySize+1),
	}, nil
}

// Stats returns the counters of the last run.
func (e *Engine) Stats() Stats { return e.stats }

// Run labels every record of src and flushes them to sink. It returns true
// when the whole input was committed and false when the operator quit or
// the key input ran out. Flushed output always preserves input order.
func (e *Engine) Run(src record.Source, sink Sink) (bool, error) {
	e.history = e.history[:0]
	e.cursor = 0
	e.rated = false
	e.stats = Stats{}

	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var de *record.DecodeError
			if errors.As(err, &de) && e.opts.DecodeErrors == DecodeSkip {
				e.logger.Warn("skipping malformed record", "line", de.Line, "error", de.Err)
				e.stats.Skipped++
				continue
			}
			if ferr := e.flushAll(sink); ferr != nil {
				return false, ferr
			}
			return false, fmt.Errorf("read record %d: %w", e.stats.Read+1, err)
		}

		out, err := e.label(rec, sink)
		if err != nil {
			return false, err
		}
		switch out {
		case aborted:
			e.logger.Info("quitting without labeling all records",
				"read", e.stats.Read,
				"buffered", len(e.history),
			)
			if err := e.flushAll(sink); err != nil {
				return false, err
			}
			return false, nil
		case keysEnded:
			e.logger.Warn("key input ended mid-navigation, flushing pending records",
				"read", e.stats.Read,
				"buffered", len(e.history),
			)
			if err := e.flushAll(sink); err != nil {
				return false, err
			}
			return false, nil
		}
	}

	if err := e.flushAll(sink); err != nil {
		return false, err
	}
	e.logger.Debug("labeling complete",
		"read", e.stats.Read,
		"flushed", e.stats.Flushed,
		"labels", e.stats.Labels,
	)
	return true, nil
}

// label appends rec to the history and handles keys until the operator
// labels it as the newest record, quits, or the key input ends.
func (e *Engine) label(rec record.Record, sink Sink) (outcome, error) {
	if len(e.history) > e.opts.HistorySize {
		if err := e.flush(sink, e.history[0]); err != nil {
			return 0, err
		}
		e.history = append(e.history[:0], e.history[1:]...)
	}

	// Placeholder so every flushed record carries the label field.
	if err := rec.SetLabel(""); err != nil {
		return 0, fmt.Errorf("annotate record %d: %w", e.stats.Read+1, err)
	}
	e.history = append(e.history, rec)
	e.stats.Read++
	e.cursor = len(e.history) - 1

	for {
		if err := e.display.Render(e.view()); err != nil {
			return 0, fmt.Errorf("render: %w", err)
		}

		key, err := e.keys.ReadKey()
		if err == io.EOF {
			return keysEnded, nil
		}
		if err != nil {
			// The newest record was never labeled; everything older was.
			e.history = e.history[:len(e.history)-1]
			if ferr := e.flushAll(sink); ferr != nil {
				return 0, ferr
			}
			return 0, fmt.Errorf("read key: %w", err)
		}

		switch key {
		case KeyQuit:
			e.history = e.history[:len(e.history)-1]
			return aborted, nil
		case KeyUp:
			if e.cursor > 0 {
				e.cursor--
			}
			e.rated = false
		case KeyDown:
			if e.cursor < len(e.history)-1 {
				e.cursor++
			}
			e.rated = false
		case KeyLeft, KeyRight:
			value := e.opts.Left
			if key == KeyRight {
				value = e.opts.Right
			}
			if err := e.history[e.cursor].SetLabel(value); err != nil {
				return 0, fmt.Errorf("label record %d: %w", e.number(e.cursor), err)
			}
			e.rated = true
			e.stats.Labels++
			if e.cursor == len(e.history)-1 {
				return committed, nil
			}
		}
	}
}

func (e *Engine) view() View {
	return View{
		Rated:  e.rated,
		Offset: e.cursor - len(e.history) + 1,
		Number: e.number(e.cursor),
		Window: len(e.history),
		Text:   e.history[e.cursor].String(),
	}
}

// number maps a history slot to its 1-based input record number.
func (e *Engine) number(slot int) int {
	return e.stats.Read - len(e.history) + slot + 1
}

func (e *Engine) flush(sink Sink, rec record.Record) error {
	n := e.stats.Flushed + 1
	if _, ok := rec.Label(); !ok && e.opts.Unlabeled == UnlabeledError {
		return &FlushError{Number: n, Err: ErrUnlabeled}
	}
	line, err := rec.Serialize()
	if err != nil {
		return &FlushError{Number: n, Err: err}
	}
	if err := sink.Append(line); err != nil {
		return &FlushError{Number: n, Err: err}
	}
	e.stats.Flushed++
	return nil
}

func (e *Engine) flushAll(sink Sink) error {
	for len(e.history) > 0 {
		if err := e.flush(sink, e.history[0]); err != nil {
			return err
		}
		e.history = e.history[1:]
	}
	e.cursor = 0
	return nil
}
