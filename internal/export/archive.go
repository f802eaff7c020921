// Package export serializes processed traces into a zstd-compressed JSONL
// archive: one aggregate line followed by one line per step record. The
// format is the boundary contract for the export endpoint and the sink
// uploader; field names and explicit nulls are preserved by construction.
package export

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/DataDog/zstd"

	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/trace"
)

// Line is one archive record. Exactly one of Aggregate, Step, Diagnostic is
// set, discriminated by Kind.
type Line struct {
	Kind       string                `json:"kind"`
	Aggregate  *model.TraceAggregate `json:"aggregate,omitempty"`
	Step       *model.StepRecord     `json:"step,omitempty"`
	Diagnostic *model.Diagnostic     `json:"diagnostic,omitempty"`
}

const (
	LineAggregate  = "aggregate"
	LineStep       = "step"
	LineDiagnostic = "diagnostic"
)

// Writer streams archive lines through a zstd compressor. Not safe for
// concurrent use; Close returns the compressed bytes and resets the writer
// for reuse.
type Writer struct {
	buf          *bytes.Buffer
	w            io.WriteCloser
	enc          *json.Encoder
	lineCount    int
	uncompressed int
}

func NewWriter() *Writer {
	w := &Writer{}
	w.reset()
	return w
}

func (w *Writer) reset() {
	w.buf = &bytes.Buffer{}
	w.w = zstd.NewWriter(w.buf)
	w.enc = json.NewEncoder(countingWriter{w})
	w.lineCount = 0
	w.uncompressed = 0
}

// countingWriter tracks uncompressed size on the way into the compressor.
type countingWriter struct{ w *Writer }

func (c countingWriter) Write(p []byte) (int, error) {
	c.w.uncompressed += len(p)
	return c.w.w.Write(p)
}

func (w *Writer) WriteAggregate(agg *model.TraceAggregate) error {
	return w.write(Line{Kind: LineAggregate, Aggregate: agg})
}

func (w *Writer) WriteStep(rec *model.StepRecord) error {
	return w.write(Line{Kind: LineStep, Step: rec})
}

func (w *Writer) WriteDiagnostic(d *model.Diagnostic) error {
	return w.write(Line{Kind: LineDiagnostic, Diagnostic: d})
}

func (w *Writer) write(l Line) error {
	if err := w.enc.Encode(l); err != nil {
		return err
	}
	w.lineCount++
	return nil
}

// Close flushes the compressor and returns the archive bytes. The writer is
// reset and may be reused for the next archive.
func (w *Writer) Close() ([]byte, int, error) {
	err := w.w.Close()
	out := w.buf.Bytes()
	count := w.lineCount
	w.reset()
	if err != nil {
		return nil, 0, err
	}
	return out, count, nil
}

func (w *Writer) LineCount() int {
	return w.lineCount
}

func (w *Writer) Uncompressed() int {
	return w.uncompressed
}

// Archive serializes one processed trace in a single call.
func Archive(tr *trace.TraceResult, diags []model.Diagnostic) ([]byte, error) {
	w := NewWriter()
	if err := w.WriteAggregate(&tr.Aggregate); err != nil {
		return nil, err
	}
	for i := range tr.Steps {
		if err := w.WriteStep(&tr.Steps[i]); err != nil {
			return nil, err
		}
	}
	for i := range diags {
		if err := w.WriteDiagnostic(&diags[i]); err != nil {
			return nil, err
		}
	}
	out, _, err := w.Close()
	return out, err
}

// Read decompresses an archive and returns its lines, for consumers and
// tests.
func Read(data []byte) ([]Line, error) {
	raw, err := zstd.Decompress(nil, data)
	if err != nil {
		return nil, err
	}
	var lines []Line
	dec := json.NewDecoder(bytes.NewReader(raw))
	for {
		var l Line
		if err := dec.Decode(&l); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}
