package metrics

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
)

// ErrNoLabels is returned when no record in the set carries a label.
var ErrNoLabels = errors.New("no labeled records")

// Metric scores a set of labeled records.
type Metric interface {
	Name() string
	Compute(recs []record.Record) (float64, error)
}

// Precision is the mean numeric label, read as the fraction of relevant
// records when labels are 0 and 1. Unlabeled records are ignored.
type Precision struct{}

func (Precision) Name() string { return "precision" }

func (Precision) Compute(recs []record.Record) (float64, error) {
	var sum float64
	n := 0
	for i, rec := range recs {
		v, ok := rec.Label()
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("record %d: label %q is not numeric", i+1, v)
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0, ErrNoLabels
	}
	return sum / float64(n), nil
}

// Calculate runs each metric, precision when none are given. Metrics that
// fail are left out of the result and reported in the joined error.
func Calculate(recs []record.Record, ms ...Metric) (map[string]float64, error) {
	if len(ms) == 0 {
		ms = []Metric{Precision{}}
	}
	out := make(map[string]float64, len(ms))
	var errs []error
	for _, m := range ms {
		v, err := m.Compute(recs)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
			continue
		}
		out[m.Name()] = v
	}
	return out, errors.Join(errs...)
}
