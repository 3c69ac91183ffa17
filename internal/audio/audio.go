package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoInputDevice is returned when no usable input device exists
var ErrNoInputDevice = errors.New("no input device available")

// Device represents an audio input device
type Device struct {
	ID         int
	Name       string
	IsDefault  bool
	Channels   int
	SampleRate float64
}

// SampleFormat identifies the sample representation of a stream
type SampleFormat int

const (
	// FormatFloat32 is 32-bit float samples
	FormatFloat32 SampleFormat = iota
	// FormatInt16 is 16-bit signed integer samples
	FormatInt16
)

// String returns the string representation of the sample format
func (f SampleFormat) String() string {
	switch f {
	case FormatFloat32:
		return "f32"
	case FormatInt16:
		return "i16"
	default:
		return "unknown"
	}
}

// ParseSampleFormat converts a configuration string to a SampleFormat
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch s {
	case "f32", "":
		return FormatFloat32, nil
	case "i16":
		return FormatInt16, nil
	default:
		return FormatFloat32, fmt.Errorf("unsupported sample format: %s", s)
	}
}

// StreamSpec describes a negotiated capture stream
type StreamSpec struct {
	Channels   int
	SampleRate int
	Format     SampleFormat
}

// Config holds audio capture configuration
type Config struct {
	OutputDir               string
	SampleRate              int // 0 means use device default
	Format                  SampleFormat
	MaxDuration             time.Duration
	DisableSilenceDetection bool
	SilenceThreshold        float64
	WarmupPeriod            time.Duration
	SilenceTimeout          time.Duration
	PollInterval            time.Duration
	FlushThreshold          int // buffer sample count that triggers a writer flush
}

// DefaultConfig returns the default audio configuration
// Silence detection: 0.003 RMS threshold, 20s warm-up, 60s inactivity bound
func DefaultConfig() Config {
	return Config{
		OutputDir:               filepath.Join(os.TempDir(), "kikitori"),
		SampleRate:              0, // Device default
		Format:                  FormatFloat32,
		MaxDuration:             300 * time.Second,
		DisableSilenceDetection: false,
		SilenceThreshold:        0.003,
		WarmupPeriod:            20 * time.Second,
		SilenceTimeout:          60 * time.Second,
		PollInterval:            10 * time.Second,
		FlushThreshold:          1000,
	}
}

// BufferSink receives capture buffers from the backend's callback thread.
// Implementations must not block on unbounded work: the callback thread is
// owned by the backend and stalls in the sink stall the whole stream.
type BufferSink interface {
	ProcessInt16(in []int16)
	ProcessFloat32(in []float32)
}

// Stream is an open capture stream
type Stream interface {
	Start() error
	Close() error
}

// Backend is the interface for audio capture
// This abstraction allows for future replacement of PortAudio with other libraries (e.g., miniaudio)
type Backend interface {
	// InputDevices returns a list of available audio input devices
	InputDevices() ([]Device, error)

	// DefaultInputDevice returns the system default input device
	DefaultInputDevice() (Device, error)

	// OpenInputStream opens a capture stream on the given device.
	// The sink method matching spec.Format is invoked once per buffer
	// until the stream is closed.
	OpenInputStream(dev Device, spec StreamSpec, sink BufferSink) (Stream, error)

	// Close releases all backend resources
	Close() error
}

// negotiateSpec derives the effective stream configuration from the device
// defaults and the configuration overrides. Buffer size is not part of the
// spec: it is always left to the backend default for compatibility.
func negotiateSpec(dev Device, cfg Config) (StreamSpec, error) {
	spec := StreamSpec{
		Channels:   dev.Channels,
		SampleRate: int(dev.SampleRate),
		Format:     cfg.Format,
	}

	if spec.Channels < 1 {
		spec.Channels = 1
	}

	// Config sample rate overrides the device default when nonzero
	if cfg.SampleRate > 0 {
		spec.SampleRate = cfg.SampleRate
	}

	switch spec.Format {
	case FormatInt16, FormatFloat32:
	default:
		return StreamSpec{}, fmt.Errorf("unsupported sample format: %v", spec.Format)
	}

	return spec, nil
}
