package describe

import (
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
)

// Summary is a small per-stage snapshot for run logs.
type Summary struct {
	Count          int     `json:"count"`
	DistinctActors int     `json:"distinct_actors"`
	MeanBodyLength float64 `json:"mean_body_length"`
	Labeled        int     `json:"labeled"`
}

// LogArgs lists the summary fields for slog.
func (s Summary) LogArgs(stage string) []any {
	return []any{
		"stage", stage,
		"count", s.Count,
		"distinct_actors", s.DistinctActors,
		"mean_body_length", s.MeanBodyLength,
		"labeled", s.Labeled,
	}
}

// Describe summarizes raw JSON records.
func Describe(recs [][]byte) Summary {
	s := Summary{Count: len(recs)}
	actors := make(map[string]struct{})
	total := 0
	for _, raw := range recs {
		res := gjson.GetManyBytes(raw, "actor.preferredUsername", "body", record.LabelField)
		if res[0].Exists() {
			actors[res[0].String()] = struct{}{}
		}
		total += utf8.RuneCountInString(res[1].String())
		if l := res[2]; l.Exists() && l.String() != "" {
			s.Labeled++
		}
	}
	s.DistinctActors = len(actors)
	if s.Count > 0 {
		s.MeanBodyLength = float64(total) / float64(s.Count)
	}
	return s
}
