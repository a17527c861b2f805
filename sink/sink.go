// Package sink persists per-call results as length-prefixed msgpack
// frames.
//
// The sink is optional diagnostics, not run state: each frame is one
// CallResult, written as it is recorded, so a crashed run still leaves
// the calls it made on disk. Frames are 4-byte big-endian length
// prefixes followed by the msgpack payload.
package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pageturn-io/pageturn/types"
)

// MaxFrameSize bounds a single frame, prefix included. A CallResult is a
// few hundred bytes; anything near this limit is corruption.
const MaxFrameSize = 64 * 1024

// lengthPrefixSize is the size of the length prefix in bytes.
const lengthPrefixSize = 4

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated frame (interrupted write).
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError is a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Writer appends CallResult frames to an underlying writer.
type Writer struct {
	w io.Writer
	c io.Closer // nil when the caller owns the writer
}

// NewWriter wraps an existing writer. The caller keeps ownership; Close
// is a no-op.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Create opens (or truncates) a results file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create results file %q: %w", path, err)
	}
	return &Writer{w: f, c: f}, nil
}

// Write appends one CallResult frame.
func (w *Writer) Write(res types.CallResult) error {
	payload, err := msgpack.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode call result: %w", err)
	}
	if len(payload) > MaxFrameSize-lengthPrefixSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxFrameSize-lengthPrefixSize),
		}
	}

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// Close closes the underlying file, if the writer owns one.
func (w *Writer) Close() error {
	if w.c == nil {
		return nil
	}
	return w.c.Close()
}

// Reader decodes CallResult frames from a stream.
type Reader struct {
	r io.Reader
}

// NewReader creates a frame reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read returns the next CallResult.
//
// Errors:
//   - io.EOF: stream ended cleanly on a frame boundary
//   - *FrameError with Kind=FrameErrorPartial: truncated frame
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit
//   - *FrameError with Kind=FrameErrorDecode: payload is not a CallResult
func (r *Reader) Read() (types.CallResult, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return types.CallResult{}, io.EOF
		}
		return types.CallResult{}, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxFrameSize-lengthPrefixSize {
		return types.CallResult{}, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxFrameSize-lengthPrefixSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return types.CallResult{}, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read frame payload", Err: err}
	}

	var res types.CallResult
	if err := msgpack.Unmarshal(payload, &res); err != nil {
		return types.CallResult{}, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode call result", Err: err}
	}
	return res, nil
}

// ReadAll consumes the stream and returns every frame up to EOF.
func (r *Reader) ReadAll() ([]types.CallResult, error) {
	var out []types.CallResult
	for {
		res, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
}
