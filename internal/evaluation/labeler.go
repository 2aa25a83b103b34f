package evaluation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/labeler"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
)

// Labeler puts a set of projected records in front of an operator. It returns
// the flushed records and whether every record was committed.
type Labeler interface {
	Label(ctx context.Context, stage string, recs [][]byte) ([]record.Record, bool, error)
}

// EngineLabeler runs the interactive engine over one stage at a time. Keys and
// Display are shared between stages.
type EngineLabeler struct {
	Options labeler.Options
	Keys    labeler.Keys
	Display labeler.Display
	Logger  *slog.Logger
}

func (l *EngineLabeler) Label(ctx context.Context, stage string, recs [][]byte) ([]record.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	in := make([]record.Record, 0, len(recs))
	for i, raw := range recs {
		rec, err := record.ParseJSON(raw)
		if err != nil {
			return nil, false, fmt.Errorf("stage %s record %d: %w", stage, i+1, err)
		}
		in = append(in, rec)
	}

	eng, err := labeler.New(l.Options, l.Keys, l.Display, l.Logger.With("stage", stage))
	if err != nil {
		return nil, false, err
	}
	sink := &labeler.MemorySink{}
	complete, err := eng.Run(record.NewSliceSource(in...), sink)
	if err != nil {
		return nil, false, fmt.Errorf("label stage %s: %w", stage, err)
	}

	out := make([]record.Record, 0, len(sink.Lines))
	for _, line := range sink.Lines {
		rec, err := record.ParseJSON(line)
		if err != nil {
			return nil, false, fmt.Errorf("reparse labeled record: %w", err)
		}
		out = append(out, rec)
	}
	return out, complete, nil
}
