package audio

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/yomogy/kikitori/internal/logger"
)

// captureSink handles per-buffer callbacks for one recording session.
// It runs on the backend's callback thread: work per invocation is bounded
// by the buffer length plus the short-held writer lock.
type captureSink struct {
	recording      *atomic.Bool
	lastActive     *atomic.Int64
	handle         *writerHandle
	detectSilence  bool
	threshold      float64
	flushThreshold int
	log            *logger.Logger
}

// ProcessFloat32 handles one buffer of float samples
func (s *captureSink) ProcessFloat32(in []float32) {
	if !s.recording.Load() {
		s.finalize()
		return
	}

	s.trackActivity(rmsFloat32(in))

	s.handle.mu.Lock()
	defer s.handle.mu.Unlock()
	w := s.handle.w
	if w == nil {
		return
	}

	for _, v := range in {
		if err := w.WriteSample(sat16(v)); err != nil {
			s.log.Error("Failed to write sample: %v", err)
		}
	}

	if len(in) > s.flushThreshold {
		if err := w.Flush(); err != nil {
			s.log.Error("Failed to flush recording buffer: %v", err)
		}
	}
}

// ProcessInt16 handles one buffer of 16-bit integer samples,
// written to the file as-is
func (s *captureSink) ProcessInt16(in []int16) {
	if !s.recording.Load() {
		s.finalize()
		return
	}

	s.trackActivity(rmsInt16(in))

	s.handle.mu.Lock()
	defer s.handle.mu.Unlock()
	w := s.handle.w
	if w == nil {
		return
	}

	for _, v := range in {
		if err := w.WriteSample(v); err != nil {
			s.log.Error("Failed to write sample: %v", err)
		}
	}

	if len(in) > s.flushThreshold {
		if err := w.Flush(); err != nil {
			s.log.Error("Failed to flush recording buffer: %v", err)
		}
	}
}

// finalize closes the output writer. The take transition makes this safe
// to call from any thread any number of times: only the first caller gets
// the writer, everyone after sees nil.
func (s *captureSink) finalize() {
	w := s.handle.take()
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		s.log.Error("Failed to finalize recording file: %v", err)
	}
}

// trackActivity refreshes the activity timestamp. With silence detection
// enabled only buffers above the loudness threshold count as activity.
func (s *captureSink) trackActivity(rms float64) {
	if !s.detectSilence || rms > s.threshold {
		s.lastActive.Store(time.Now().UnixNano())
	}
}

// rmsFloat32 computes the root-mean-square loudness of a buffer
func rmsFloat32(in []float32) float64 {
	if len(in) == 0 {
		return 0
	}
	var sum float64
	for _, v := range in {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(in)))
}

// rmsInt16 computes RMS with samples normalized to [-1, 1]
func rmsInt16(in []int16) float64 {
	if len(in) == 0 {
		return 0
	}
	var sum float64
	for _, v := range in {
		f := float64(v) / 32767.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(in)))
}

// sat16 converts a float sample to 16-bit PCM, saturating out-of-range
// values instead of wrapping
func sat16(v float32) int16 {
	s := float64(v) * 32767.0
	switch {
	case s > 32767:
		return 32767
	case s < -32768:
		return -32768
	}
	return int16(s)
}
