package record

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// JSON is a structured record. The raw object bytes are kept as decoded, so
// key order survives annotation; the label is set under LabelField at the root.
type JSON struct {
	raw []byte
}

// ParseJSON decodes one JSON object. Whitespace outside strings is removed so
// the record serializes to a single line.
func ParseJSON(data []byte) (*JSON, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid json")
	}
	if t := gjson.ParseBytes(data); !t.IsObject() {
		return nil, fmt.Errorf("expected object, got %s", t.Type)
	}
	return &JSON{raw: []byte(gjson.GetBytes(data, "@ugly").Raw)}, nil
}

// Raw returns the current object bytes, label included.
func (r *JSON) Raw() []byte { return r.raw }

// Get looks up a gjson path in the record.
func (r *JSON) Get(path string) gjson.Result {
	return gjson.GetBytes(r.raw, path)
}

func (r *JSON) Label() (string, bool) {
	res := gjson.GetBytes(r.raw, LabelField)
	if !res.Exists() || res.Type == gjson.Null {
		return "", false
	}
	if res.Type == gjson.Number {
		return res.Raw, true
	}
	v := res.String()
	return v, v != ""
}

// SetLabel stores numeric values as JSON numbers and anything else as a string.
// Duplicate label keys are collapsed into one so every reader sees the new value.
func (r *JSON) SetLabel(v string) error {
	raw := r.raw
	if countRootKey(raw, LabelField) > 1 {
		for gjson.GetBytes(raw, LabelField).Exists() {
			out, err := sjson.DeleteBytes(raw, LabelField)
			if err != nil {
				return fmt.Errorf("delete duplicate %s: %w", LabelField, err)
			}
			raw = out
		}
	}

	var (
		out []byte
		err error
	)
	if isNumber(v) {
		out, err = sjson.SetRawBytes(raw, LabelField, []byte(v))
	} else {
		out, err = sjson.SetBytes(raw, LabelField, v)
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", LabelField, err)
	}
	r.raw = out
	return nil
}

func (r *JSON) Serialize() ([]byte, error) {
	out := make([]byte, len(r.raw))
	copy(out, r.raw)
	return out, nil
}

func (r *JSON) String() string { return string(r.raw) }

func countRootKey(raw []byte, key string) int {
	n := 0
	gjson.ParseBytes(raw).ForEach(func(k, _ gjson.Result) bool {
		if k.String() == key {
			n++
		}
		return true
	})
	return n
}

func isNumber(v string) bool {
	return v != "" && gjson.Valid(v) && gjson.Parse(v).Type == gjson.Number
}
