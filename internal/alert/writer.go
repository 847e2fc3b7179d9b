package alert

import (
	"context"
	"fmt"
	"io"
	"os"
)

// WriterSink prints each message on its own line. Used for dry runs.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink returns a sink writing to w, or to os.Stdout when w is nil.
func NewWriterSink(w io.Writer) *WriterSink {
	if w == nil {
		w = os.Stdout
	}
	return &WriterSink{w: w}
}

func (s *WriterSink) Deliver(_ context.Context, text string) error {
	_, err := fmt.Fprintln(s.w, text)
	return err
}
