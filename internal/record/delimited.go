package record

import "strings"

// Delimited is a single text row. Once annotated, the label is the last field.
type Delimited struct {
	line      string
	delim     string
	label     string
	annotated bool
}

// ParseDelimited wraps a raw row with no label column yet.
func ParseDelimited(line, delim string) *Delimited {
	return &Delimited{line: line, delim: delim}
}

// ParseLabeledDelimited reads a row previously written by the labeler, taking
// the last field as the label.
func ParseLabeledDelimited(line, delim string) *Delimited {
	i := strings.LastIndex(line, delim)
	if delim == "" || i < 0 {
		return &Delimited{line: line, delim: delim}
	}
	return &Delimited{
		line:      line[:i],
		delim:     delim,
		label:     line[i+len(delim):],
		annotated: true,
	}
}

func (r *Delimited) Label() (string, bool) {
	return r.label, r.annotated && r.label != ""
}

func (r *Delimited) SetLabel(v string) error {
	r.label = v
	r.annotated = true
	return nil
}

func (r *Delimited) Serialize() ([]byte, error) {
	if !r.annotated {
		return []byte(r.line), nil
	}
	return []byte(r.line + r.delim + r.label), nil
}

func (r *Delimited) String() string {
	if !r.annotated {
		return r.line
	}
	return r.line + r.delim + r.label
}
