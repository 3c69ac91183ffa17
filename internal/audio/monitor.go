package audio

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/yomogy/kikitori/internal/logger"
)

const (
	// levelGain scales raw RMS into a usable 0..1 display range
	levelGain = 5.0
	// monitorPollInterval is how often the monitor loop checks its flag
	monitorPollInterval = 100 * time.Millisecond
)

// LevelMonitor runs an always-on capture stream that tracks the current
// input level for UI display, independent of the recording lifecycle.
// Monitor streams are always float32.
type LevelMonitor struct {
	backend Backend
	log     *logger.Logger

	enabled atomic.Bool
	level   atomic.Uint64 // math.Float64bits of the current level
	done    chan struct{}
}

// NewLevelMonitor creates a level monitor using the given backend
func NewLevelMonitor(backend Backend, log *logger.Logger) *LevelMonitor {
	return &LevelMonitor{
		backend: backend,
		log:     log,
	}
}

// Start opens the monitor stream and begins updating the level.
// The stream is opened and closed on the monitor goroutine so the raw
// handle never crosses threads.
func (m *LevelMonitor) Start() error {
	if m.enabled.Load() {
		return nil
	}

	m.enabled.Store(true)
	m.done = make(chan struct{})

	errc := make(chan error, 1)
	go m.run(errc)

	if err := <-errc; err != nil {
		m.enabled.Store(false)
		m.log.Error("Audio level monitoring unavailable: %v", err)
		return err
	}

	return nil
}

// Level returns the current input level in [0.0, 1.0]
func (m *LevelMonitor) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// IsRunning reports whether the monitor stream is active
func (m *LevelMonitor) IsRunning() bool {
	return m.enabled.Load()
}

// Stop clears the monitoring flag and waits for the stream to be released
func (m *LevelMonitor) Stop() {
	if !m.enabled.Load() {
		return
	}
	m.enabled.Store(false)
	<-m.done
}

// ProcessFloat32 updates the level from one monitor buffer
func (m *LevelMonitor) ProcessFloat32(in []float32) {
	if !m.enabled.Load() {
		return
	}
	level := rmsFloat32(in) * levelGain
	if level > 1.0 {
		level = 1.0
	}
	m.level.Store(math.Float64bits(level))
}

// ProcessInt16 is unused: monitor streams are opened as float32 only
func (m *LevelMonitor) ProcessInt16(in []int16) {}

// run opens the stream, reports the result on errc, then polls the flag
// until told to stop
func (m *LevelMonitor) run(errc chan<- error) {
	defer close(m.done)

	dev, err := m.backend.DefaultInputDevice()
	if err != nil {
		errc <- fmt.Errorf("failed to get default input device: %w", err)
		return
	}

	spec := StreamSpec{
		Channels:   dev.Channels,
		SampleRate: int(dev.SampleRate),
		Format:     FormatFloat32,
	}
	if spec.Channels < 1 {
		spec.Channels = 1
	}

	stream, err := m.backend.OpenInputStream(dev, spec, m)
	if err != nil {
		errc <- fmt.Errorf("failed to open monitor stream: %w", err)
		return
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		errc <- fmt.Errorf("failed to start monitor stream: %w", err)
		return
	}

	errc <- nil

	for m.enabled.Load() {
		time.Sleep(monitorPollInterval)
	}

	if err := stream.Close(); err != nil {
		m.log.Error("Failed to close monitor stream: %v", err)
	}

	m.level.Store(0)
}
