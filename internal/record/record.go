package record

import (
	"errors"
	"fmt"
)

// LabelField is the reserved root field that carries the label on JSON records.
const LabelField = "LBLR_label"

// ErrDecode marks input that could not be turned into a Record.
var ErrDecode = errors.New("decode record")

// Record is one unit of input flowing through the labeler. Both variants
// annotate in place and serialize to a single output line.
type Record interface {
	// Label returns the current label and whether one has been assigned.
	Label() (string, bool)
	// SetLabel overwrites the label. An empty value clears it but keeps the
	// label field present in the serialized form.
	SetLabel(v string) error
	// Serialize renders the record as one output line without the newline.
	Serialize() ([]byte, error)
	// String is the human-readable rendition shown to the operator.
	String() string
}

// DecodeError reports the input line that failed to parse.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
