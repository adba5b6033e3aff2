package output

import (
	"bytes"
)

// PathsFormatter writes the delete queue as one path per line, for piping
// to other tools. Members of skipped sets are left out.
type PathsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, m := range deleteQueue(r) {
		w.WriteString(m.Path)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("paths", func() Formatter {
		return &PathsFormatter{}
	})
}

// NullFormatter writes the delete queue separated by NUL bytes, for
// xargs -0.
type NullFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *NullFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, m := range deleteQueue(r) {
		w.WriteString(m.Path)
		w.WriteByte(0)
	}
	return nil
}

func init() {
	Register("null", func() Formatter {
		return &NullFormatter{}
	})
}

var (
	_ Formatter = (*PathsFormatter)(nil)
	_ Formatter = (*NullFormatter)(nil)
)
