package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

// Writer emits JSONL records for one orchestration run.
//
// Implementations must be safe for concurrent use. Each Write* method
// emits a complete record as a single line of JSON.
type Writer interface {
	// WriteJob emits a per-job classification record.
	WriteJob(ctx context.Context, job *JobRecord) error

	// WriteAction emits an executed-action record.
	WriteAction(ctx context.Context, action *ActionRecord) error

	// WriteError emits a per-job error record.
	WriteError(ctx context.Context, rec *ErrorRecord) error

	// WriteCycle emits an end-of-cycle summary record.
	WriteCycle(ctx context.Context, cycle *CycleRecord) error

	// Close flushes buffered output and releases resources.
	Close() error
}

// ErrWriterClosed is returned for writes after Close.
var ErrWriterClosed = errors.New("writer is closed")

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// Writes are serialized with a mutex shared across all writers derived
// via WithCycle, so lines from the base writer and any per-cycle
// derivative never interleave and Close on one closes them all.
type JSONLWriter struct {
	stream  *jsonlStream
	cycleID string
}

// jsonlStream is the state shared by a writer and its derivatives.
type jsonlStream struct {
	w      io.Writer
	mu     sync.Mutex
	closed bool
}

// NewJSONLWriter creates a writer stamping each record with cycleID.
func NewJSONLWriter(w io.Writer, cycleID string) *JSONLWriter {
	return &JSONLWriter{stream: &jsonlStream{w: w}, cycleID: cycleID}
}

// WithCycle returns a writer sharing the underlying stream but stamping
// a new cycle id. The daemon calls this once per iteration.
func (jw *JSONLWriter) WithCycle(cycleID string) *JSONLWriter {
	return &JSONLWriter{stream: jw.stream, cycleID: cycleID}
}

func (jw *JSONLWriter) WriteJob(ctx context.Context, job *JobRecord) error {
	return jw.writeRecord(ctx, TypeJob, job)
}

func (jw *JSONLWriter) WriteAction(ctx context.Context, action *ActionRecord) error {
	return jw.writeRecord(ctx, TypeAction, action)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, rec *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, rec)
}

func (jw *JSONLWriter) WriteCycle(ctx context.Context, cycle *CycleRecord) error {
	return jw.writeRecord(ctx, TypeCycle, cycle)
}

// Close marks the stream closed for this writer and everything derived
// from it. The underlying io.Writer is owned by the caller and is not
// closed here.
func (jw *JSONLWriter) Close() error {
	jw.stream.mu.Lock()
	defer jw.stream.mu.Unlock()
	jw.stream.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	line, err := json.Marshal(Record{
		Type:    recordType,
		TS:      time.Now().UTC(),
		CycleID: jw.cycleID,
		Data:    data,
	})
	if err != nil {
		return err
	}
	line = append(line, '\n')

	jw.stream.mu.Lock()
	defer jw.stream.mu.Unlock()
	if jw.stream.closed {
		return ErrWriterClosed
	}
	_, err = jw.stream.w.Write(line)
	return err
}

// Discard is a Writer that drops every record; used when no cycle log
// is configured.
type Discard struct{}

func (Discard) WriteJob(context.Context, *JobRecord) error       { return nil }
func (Discard) WriteAction(context.Context, *ActionRecord) error { return nil }
func (Discard) WriteError(context.Context, *ErrorRecord) error   { return nil }
func (Discard) WriteCycle(context.Context, *CycleRecord) error   { return nil }
func (Discard) Close() error                                     { return nil }
