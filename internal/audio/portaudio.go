package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// maxCaptureChannels caps the negotiated channel count: some interfaces
// report dozens of input channels and a dictation recording never needs
// more than stereo
const maxCaptureChannels = 2

// PortAudioBackend implements Backend using PortAudio
type PortAudioBackend struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudioBackend initializes PortAudio and returns a backend
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &PortAudioBackend{initialized: true}, nil
}

// InputDevices returns a list of available audio input devices
func (b *PortAudioBackend) InputDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// If we can't get the default device, continue without marking any as default
		defaultInput = nil
	}

	var result []Device
	for i, dev := range devices {
		// Only include devices with input channels
		if dev.MaxInputChannels > 0 {
			isDefault := defaultInput != nil && dev.Name == defaultInput.Name

			result = append(result, newDevice(i, dev, isDefault))
		}
	}

	return result, nil
}

// DefaultInputDevice returns the system default input device
func (b *PortAudioBackend) DefaultInputDevice() (Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("failed to get default input device: %w", err)
	}

	if info.MaxInputChannels <= 0 {
		return Device{}, fmt.Errorf("default device '%s' has no input channels", info.Name)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return Device{}, fmt.Errorf("failed to list devices: %w", err)
	}

	for i, dev := range devices {
		if dev.Name == info.Name {
			return newDevice(i, dev, true), nil
		}
	}

	return Device{}, fmt.Errorf("default device '%s' not present in device list", info.Name)
}

// OpenInputStream opens a capture stream on the given device. The buffer
// size is left to the backend default for compatibility across devices.
func (b *PortAudioBackend) OpenInputStream(dev Device, spec StreamSpec, sink BufferSink) (Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if dev.ID < 0 || dev.ID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", dev.ID)
	}
	info := devices[dev.ID]

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: spec.Channels,
			Latency:  info.DefaultHighInputLatency,
		},
		SampleRate:      float64(spec.SampleRate),
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}

	var stream *portaudio.Stream
	switch spec.Format {
	case FormatInt16:
		stream, err = portaudio.OpenStream(params, func(in []int16) {
			sink.ProcessInt16(in)
		})
	case FormatFloat32:
		stream, err = portaudio.OpenStream(params, func(in []float32) {
			sink.ProcessFloat32(in)
		})
	default:
		return nil, fmt.Errorf("unsupported sample format: %v", spec.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	return &paStream{stream: stream}, nil
}

// Close terminates PortAudio
func (b *PortAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil
	}
	b.initialized = false

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}

	return nil
}

func newDevice(id int, info *portaudio.DeviceInfo, isDefault bool) Device {
	channels := info.MaxInputChannels
	if channels > maxCaptureChannels {
		channels = maxCaptureChannels
	}

	return Device{
		ID:         id,
		Name:       info.Name,
		IsDefault:  isDefault,
		Channels:   channels,
		SampleRate: info.DefaultSampleRate,
	}
}

// paStream wraps a PortAudio stream with idempotent teardown
type paStream struct {
	stream  *portaudio.Stream
	mu      sync.Mutex
	started bool
	closed  bool
}

// Start begins callback delivery
func (s *paStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("stream is closed")
	}
	if s.started {
		return fmt.Errorf("stream already started")
	}

	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	s.started = true
	return nil
}

// Close stops callback delivery and releases the stream. Safe to call
// more than once.
func (s *paStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.started {
		s.started = false
		if err := s.stream.Stop(); err != nil {
			// Still release the stream even if the stop failed
			s.stream.Close()
			return fmt.Errorf("failed to stop stream: %w", err)
		}
	}

	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}

	return nil
}
