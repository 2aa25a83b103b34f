package sample

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Projection reduces a record to the part the operator should judge.
type Projection struct {
	Name  string
	Apply func(raw []byte) ([]byte, error)
}

// Identity shows the whole record.
var Identity = Projection{
	Name:  "identity",
	Apply: func(raw []byte) ([]byte, error) { return raw, nil },
}

// BodyOnly keeps just the body text, flattened onto one line.
var BodyOnly = Projection{
	Name: "body",
	Apply: func(raw []byte) ([]byte, error) {
		body := gjson.GetBytes(raw, "body").String()
		body = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(body)
		return sjson.SetBytes([]byte(`{}`), "body", body)
	},
}

// Config picks the subset of records that gets labeled.
type Config struct {
	Fraction float64 // chance of each record being picked
	Max      int     // never pick more than this many
	Project  Projection
}

// Select walks recs in order, keeping each with probability Fraction until
// Max records are kept, and returns the projected picks.
func Select(recs [][]byte, cfg Config, rng *rand.Rand) ([][]byte, error) {
	project := cfg.Project
	if project.Apply == nil {
		project = Identity
	}

	var out [][]byte
	for i, raw := range recs {
		if len(out) >= cfg.Max {
			break
		}
		if rng.Float64() >= cfg.Fraction {
			continue
		}
		p, err := project.Apply(raw)
		if err != nil {
			return nil, fmt.Errorf("project record %d with %s: %w", i+1, project.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}
