package hermes

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRunCompletedParsing(t *testing.T) {
	raw := `{
		"run_id": "7b0b3c4e-0000-0000-0000-000000000000",
		"name": "test_run",
		"rule": "apple lang:en",
		"status": "complete",
		"metrics": {"raw.precision": 0.4, "filtered.precision": 0.9},
		"records": 1000,
		"finished_at": "2016-07-26T00:00:00Z"
	}`

	var ev RunCompleted
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("failed to parse RunCompleted: %v", err)
	}

	if ev.Name != "test_run" {
		t.Errorf("expected name 'test_run', got '%s'", ev.Name)
	}
	if ev.Metrics["filtered.precision"] != 0.9 {
		t.Errorf("expected filtered precision 0.9, got %v", ev.Metrics["filtered.precision"])
	}
	if ev.Records != 1000 {
		t.Errorf("expected 1000 records, got %d", ev.Records)
	}
	if !ev.FinishedAt.Equal(time.Date(2016, 7, 26, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected finished_at %v", ev.FinishedAt)
	}
}

func TestLabelsFlushedRoundTrip(t *testing.T) {
	ev := LabelsFlushed{RunID: "r1", Stage: "filtered", Labeled: 10, Complete: true}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var parsed LabelsFlushed
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if parsed != ev {
		t.Errorf("round-trip mismatch: got %+v, want %+v", parsed, ev)
	}
}

func TestSubjectConstants(t *testing.T) {
	if SubjectRunCompleted != "lblr.run.completed" {
		t.Errorf("unexpected SubjectRunCompleted %q", SubjectRunCompleted)
	}
	if SubjectLabelsFlushed != "lblr.labels.flushed" {
		t.Errorf("unexpected SubjectLabelsFlushed %q", SubjectLabelsFlushed)
	}
}
