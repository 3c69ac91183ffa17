package audio

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/wav"
)

const writeBufferSize = 32 * 1024

// bufferedWriteSeeker wraps a file with write buffering while keeping the
// io.WriteSeeker contract the WAV encoder needs for header patching.
// Invariant: logical position = file position + len(buf).
type bufferedWriteSeeker struct {
	f   *os.File
	buf []byte
}

func newBufferedWriteSeeker(f *os.File) *bufferedWriteSeeker {
	return &bufferedWriteSeeker{
		f:   f,
		buf: make([]byte, 0, writeBufferSize),
	}
}

func (b *bufferedWriteSeeker) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) >= writeBufferSize {
		if err := b.Flush(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (b *bufferedWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	if err := b.Flush(); err != nil {
		return 0, err
	}
	return b.f.Seek(offset, whence)
}

func (b *bufferedWriteSeeker) Flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	if _, err := b.f.Write(b.buf); err != nil {
		return err
	}
	b.buf = b.buf[:0]
	return nil
}

// wavWriter writes 16-bit PCM samples to a WAV file
type wavWriter struct {
	f    *os.File
	bws  *bufferedWriteSeeker
	enc  *wav.Encoder
	path string
}

// newWavWriter creates the output file with a header matching the
// negotiated stream configuration
func newWavWriter(path string, spec StreamSpec) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	bws := newBufferedWriteSeeker(f)
	enc := wav.NewEncoder(bws, spec.SampleRate, 16, spec.Channels, 1)

	return &wavWriter{
		f:    f,
		bws:  bws,
		enc:  enc,
		path: path,
	}, nil
}

// WriteSample writes a single 16-bit sample
func (w *wavWriter) WriteSample(sample int16) error {
	return w.enc.WriteFrame(sample)
}

// Flush pushes buffered sample data to disk to bound data loss
// on abrupt termination
func (w *wavWriter) Flush() error {
	return w.bws.Flush()
}

// Close finalizes the file: the encoder seeks back to patch the RIFF and
// data chunk sizes, making the file a valid complete WAV
func (w *wavWriter) Close() error {
	encErr := w.enc.Close()
	if encErr == nil {
		encErr = w.f.Sync()
	}
	if err := w.f.Close(); err != nil && encErr == nil {
		encErr = err
	}
	if encErr != nil {
		return fmt.Errorf("failed to finalize output file: %w", encErr)
	}
	return nil
}

// Path returns the output file path
func (w *wavWriter) Path() string {
	return w.path
}

// writerHandle holds exclusive ownership of the open output writer.
// take transitions the writer to nil exactly once: whichever thread takes
// it performs the finalize, every later observer sees nil and no-ops.
type writerHandle struct {
	mu sync.Mutex
	w  *wavWriter
}

func newWriterHandle(w *wavWriter) *writerHandle {
	return &writerHandle{w: w}
}

// take removes and returns the writer, or nil if already taken
func (h *writerHandle) take() *wavWriter {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := h.w
	h.w = nil
	return w
}

var _ io.WriteSeeker = (*bufferedWriteSeeker)(nil)
