package labeler

import "io"

// Sink is an append-only destination for flushed records.
type Sink interface {
	Append(line []byte) error
}

// FileSink writes newline-terminated lines straight through to w, one write
// per record, so everything flushed is on disk even if the run dies later.
type FileSink struct {
	w io.Writer
}

func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{w: w}
}

func (s *FileSink) Append(line []byte) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := s.w.Write(buf)
	return err
}

// MemorySink accumulates lines in order.
type MemorySink struct {
	Lines [][]byte
}

func (s *MemorySink) Append(line []byte) error {
	cp := make([]byte, len(line))
	copy(cp, line)
	s.Lines = append(s.Lines, cp)
	return nil
}

// Strings returns the accumulated lines as strings.
func (s *MemorySink) Strings() []string {
	out := make([]string, len(s.Lines))
	for i, l := range s.Lines {
		out[i] = string(l)
	}
	return out
}
