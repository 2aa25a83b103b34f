package metrics

import (
	"errors"
	"testing"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
)

func labeled(t *testing.T, labels ...string) []record.Record {
	t.Helper()
	var out []record.Record
	for _, l := range labels {
		rec, err := record.ParseJSON([]byte(`{"body":"x"}`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if err := rec.SetLabel(l); err != nil {
			t.Fatalf("label: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func TestPrecision(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   float64
	}{
		{"all relevant", []string{"1", "1"}, 1},
		{"mixed", []string{"1", "0", "1", "0"}, 0.5},
		{"unlabeled ignored", []string{"1", "", "0", "0"}, 1.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Precision{}.Compute(labeled(t, tt.labels...))
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if got != tt.want {
				t.Errorf("precision = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrecision_NoLabels(t *testing.T) {
	if _, err := (Precision{}).Compute(labeled(t, "", "")); !errors.Is(err, ErrNoLabels) {
		t.Fatalf("expected ErrNoLabels, got %v", err)
	}
	if _, err := (Precision{}).Compute(nil); !errors.Is(err, ErrNoLabels) {
		t.Fatalf("expected ErrNoLabels for empty set, got %v", err)
	}
}

func TestPrecision_NonNumeric(t *testing.T) {
	if _, err := (Precision{}).Compute(labeled(t, "1", "spam")); err == nil {
		t.Fatal("expected error for non-numeric label")
	}
}

func TestCalculate_DefaultsToPrecision(t *testing.T) {
	got, err := Calculate(labeled(t, "1", "0"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if got["precision"] != 0.5 {
		t.Errorf("precision = %v", got["precision"])
	}
}

func TestCalculate_ReportsFailures(t *testing.T) {
	got, err := Calculate(nil, Precision{})
	if !errors.Is(err, ErrNoLabels) {
		t.Fatalf("expected ErrNoLabels, got %v", err)
	}
	if _, ok := got["precision"]; ok {
		t.Error("failed metric should be absent")
	}
}
