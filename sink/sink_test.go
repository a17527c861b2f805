package sink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pageturn-io/pageturn/types"
)

func sampleResults() []types.CallResult {
	return []types.CallResult{
		{Index: 1, Succeeded: true, HTTPStatus: 200, Attempts: 1, LatencyMs: 210},
		{Index: 2, ErrorKind: types.ErrKindTransient, ErrorDetail: "timeout", Attempts: 4, LatencyMs: 30000},
		{Index: 3, Succeeded: true, HTTPStatus: 200, Attempts: 2, LatencyMs: 180},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, r := range sampleResults() {
		if err := w.Write(r); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got, err := NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	want := sampleResults()
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCreate_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.bin")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := w.Write(sampleResults()[0]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != 1 || got[0].Index != 1 {
		t.Errorf("unexpected frames %+v", got)
	}
}

func TestRead_EmptyStream(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil)).Read()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestRead_TruncatedPrefix(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0x00, 0x01})).Read()
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorPartial {
		t.Errorf("expected partial frame error, got %v", err)
	}
}

func TestRead_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Write(sampleResults()[0]); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Simulate an interrupted write by dropping the tail of the frame.
	data := buf.Bytes()[:buf.Len()-3]

	_, err := NewReader(bytes.NewReader(data)).Read()
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorPartial {
		t.Errorf("expected partial frame error, got %v", err)
	}
}

func TestRead_OversizedFrame(t *testing.T) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxFrameSize)

	_, err := NewReader(bytes.NewReader(prefix[:])).Read()
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorTooLarge {
		t.Errorf("expected too-large frame error, got %v", err)
	}
}

func TestRead_GarbagePayload(t *testing.T) {
	payload := []byte{0xc3} // msgpack true, not a CallResult map
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	buf.Write(prefix[:])
	buf.Write(payload)

	_, err := NewReader(&buf).Read()
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorDecode {
		t.Errorf("expected decode frame error, got %v", err)
	}
}

func TestReadAll_StopsAtCorruption(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Write(sampleResults()[0]); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf.Write([]byte{0x00, 0x01}) // dangling prefix fragment

	got, err := NewReader(&buf).ReadAll()
	if err == nil {
		t.Fatal("expected error from trailing fragment")
	}
	// The intact frame before the corruption is still returned.
	if len(got) != 1 {
		t.Errorf("got %d frames before corruption, want 1", len(got))
	}
}
