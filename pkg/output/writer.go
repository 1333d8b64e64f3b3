package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/quayside/s3glob/pkg/match"
)

// Writer is the sink every enumeration/download result is rendered
// through. Implementations must be safe for concurrent use: multiple
// enumeration and download goroutines write through the same Writer.
type Writer interface {
	WriteObject(ctx context.Context, obj *ObjectRecord) error
	WritePrefix(ctx context.Context, prefix *PrefixRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteProgress(ctx context.Context, prog *ProgressRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	WriteTransfer(ctx context.Context, transfer *TransferRecord) error
	WritePreflight(ctx context.Context, preflight *PreflightRecord) error

	// Close flushes any buffered output. It does not close the
	// underlying io.Writer.
	Close() error
}

// JSONLWriter writes one JSON record per line.
//
// Safe for concurrent use: writes are serialized under a mutex so lines
// are never interleaved, and the payload is marshaled outside the lock.
type JSONLWriter struct {
	w      io.Writer
	mu     sync.Mutex
	closed bool
}

// NewJSONLWriter creates a writer that emits newline-delimited JSON to w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: w}
}

func (jw *JSONLWriter) WriteObject(ctx context.Context, obj *ObjectRecord) error {
	return jw.writeRecord(ctx, TypeObject, obj)
}

func (jw *JSONLWriter) WritePrefix(ctx context.Context, prefix *PrefixRecord) error {
	return jw.writeRecord(ctx, TypePrefix, prefix)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, errRec *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, errRec)
}

func (jw *JSONLWriter) WriteProgress(ctx context.Context, prog *ProgressRecord) error {
	return jw.writeRecord(ctx, TypeProgress, prog)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

func (jw *JSONLWriter) WriteTransfer(ctx context.Context, transfer *TransferRecord) error {
	return jw.writeRecord(ctx, TypeTransfer, transfer)
}

func (jw *JSONLWriter) WritePreflight(ctx context.Context, preflight *PreflightRecord) error {
	return jw.writeRecord(ctx, TypePreflight, preflight)
}

// Close marks the writer as closed. The underlying io.Writer is left open;
// the caller owns it.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{Type: recordType, TS: time.Now().UTC(), Data: dataBytes}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll loops until all of p is written or an error occurs. io.Writer
// is allowed to return n < len(p) with a nil error, which would silently
// truncate a JSONL line if not handled.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)

// Known placeholders for the user-format template (spec.md §6).
const (
	placeholderKey          = "{key}"
	placeholderURI          = "{uri}"
	placeholderSizeBytes    = "{size_bytes}"
	placeholderSizeHuman    = "{size_human}"
	placeholderLastModified = "{last_modified}"
)

var knownPlaceholders = []string{
	placeholderKey, placeholderURI, placeholderSizeBytes,
	placeholderSizeHuman, placeholderLastModified,
}

// TextWriter renders results as human-readable lines: the default
// `<last_modified> <size_human> <key>` object format, `PRE     <prefix>`
// for prefix placeholders, and a user-supplied `{key}`/{uri}/... format
// when one is given.
type TextWriter struct {
	w      io.Writer
	mu     sync.Mutex
	closed bool
	bucket string
	format string // empty means the default format
}

// NewTextWriter validates format (if non-empty) against the known
// placeholder set and returns a writer that renders through it. An empty
// format selects the default `<last_modified> <size_human> <key>` line.
// bucket is used to render {uri} as `s3://bucket/<key>`.
func NewTextWriter(w io.Writer, bucket, format string) (*TextWriter, error) {
	if format != "" {
		if err := validateFormat(format); err != nil {
			return nil, err
		}
	}
	return &TextWriter{w: w, bucket: bucket, format: format}, nil
}

// validateFormat rejects any `{...}` token that isn't one of the known
// placeholders, per spec.md's "unknown placeholders abort with an error
// at format-compile time".
func validateFormat(format string) error {
	rest := format
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			return nil
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return fmt.Errorf("output: unterminated placeholder in format %q", format)
		}
		token := rest[start : start+end+1]
		if !isKnownPlaceholder(token) {
			return fmt.Errorf("output: unknown placeholder %q in format %q", token, format)
		}
		rest = rest[start+end+1:]
	}
}

func isKnownPlaceholder(token string) bool {
	for _, p := range knownPlaceholders {
		if p == token {
			return true
		}
	}
	return false
}

func (tw *TextWriter) render(obj *ObjectRecord) string {
	if tw.format == "" {
		return fmt.Sprintf("%s %s %s", obj.LastModified.Format(time.RFC3339), match.FormatSize(obj.Size), obj.Key)
	}

	out := tw.format
	out = strings.ReplaceAll(out, placeholderKey, obj.Key)
	out = strings.ReplaceAll(out, placeholderURI, fmt.Sprintf("s3://%s/%s", tw.bucket, obj.Key))
	out = strings.ReplaceAll(out, placeholderSizeBytes, fmt.Sprintf("%d", obj.Size))
	out = strings.ReplaceAll(out, placeholderSizeHuman, match.FormatSize(obj.Size))
	out = strings.ReplaceAll(out, placeholderLastModified, obj.LastModified.Format(time.RFC3339))
	return out
}

func (tw *TextWriter) WriteObject(ctx context.Context, obj *ObjectRecord) error {
	return tw.writeLine(ctx, tw.render(obj))
}

func (tw *TextWriter) WritePrefix(ctx context.Context, prefix *PrefixRecord) error {
	return tw.writeLine(ctx, "PRE     "+prefix.Prefix)
}

func (tw *TextWriter) WriteError(ctx context.Context, errRec *ErrorRecord) error {
	return tw.writeLine(ctx, fmt.Sprintf("error: %s: %s", errRec.Code, errRec.Message))
}

func (tw *TextWriter) WriteProgress(ctx context.Context, prog *ProgressRecord) error {
	return tw.writeLine(ctx, fmt.Sprintf("%s: %d found, %d matched", prog.Phase, prog.ObjectsFound, prog.ObjectsMatched))
}

func (tw *TextWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return tw.writeLine(ctx, fmt.Sprintf("%d objects, %s, %d errors in %s",
		sum.ObjectsMatched, match.FormatSize(sum.BytesTotal), sum.Errors, sum.DurationHuman))
}

func (tw *TextWriter) WriteTransfer(ctx context.Context, transfer *TransferRecord) error {
	if !transfer.Done {
		return nil // byte-progress notifications are not rendered as lines
	}
	return tw.writeLine(ctx, transfer.Path)
}

func (tw *TextWriter) WritePreflight(ctx context.Context, preflight *PreflightRecord) error {
	var b strings.Builder
	for i, r := range preflight.Results {
		if i > 0 {
			b.WriteByte('\n')
		}
		status := "ok"
		if !r.Allowed {
			status = "denied"
		}
		fmt.Fprintf(&b, "%s: %s", r.Capability, status)
		if r.Detail != "" {
			fmt.Fprintf(&b, " (%s)", r.Detail)
		}
	}
	return tw.writeLine(ctx, b.String())
}

func (tw *TextWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.closed = true
	return nil
}

func (tw *TextWriter) writeLine(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return writeAll(tw.w, []byte(line+"\n"))
}

var _ Writer = (*TextWriter)(nil)
