package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yomogy/kikitori/internal/logger"
)

const (
	// stopFlushDelay gives in-flight callbacks time to drain before finalize
	stopFlushDelay = 500 * time.Millisecond
	// minOutputSize is the file size below which a recording is likely empty
	minOutputSize = 100
)

// session holds the state of one start-to-stop recording lifecycle.
// The flag and timestamp belong to the session, not the recorder, so a
// watchdog outliving its session can never observe a successor's state.
type session struct {
	recording  atomic.Bool
	lastActive atomic.Int64 // UnixNano of the last buffer above the threshold
	handle     *writerHandle
	stream     Stream
	path       string
	spec       StreamSpec
	startedAt  time.Time
}

// Recorder owns the recording lifecycle: device resolution, stream
// negotiation, the capture callback and the activity watchdog
type Recorder struct {
	backend Backend
	cfg     Config
	log     *logger.Logger

	mu   sync.Mutex
	sess *session
}

// NewRecorder creates a recorder using the given backend
func NewRecorder(backend Backend, cfg Config, log *logger.Logger) *Recorder {
	return &Recorder{
		backend: backend,
		cfg:     cfg,
		log:     log,
	}
}

// Start begins a new recording session on the default input device
func (r *Recorder) Start() error {
	return r.StartWithDevice("")
}

// StartWithDevice begins a new recording session on the named device,
// falling back to the system default when the name does not match.
// Starting while already recording is a no-op.
func (r *Recorder) StartWithDevice(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess != nil {
		if r.sess.recording.Load() {
			r.log.Warn("Recording already in progress")
			return nil
		}
		// Previous session was stopped by the watchdog and never collected
		r.discardSessionLocked()
	}

	dev, err := r.resolveDevice(name)
	if err != nil {
		return err
	}

	spec, err := negotiateSpec(dev, r.cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(r.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(r.cfg.OutputDir,
		fmt.Sprintf("recording_%s.wav", time.Now().Format("20060102_150405")))

	w, err := newWavWriter(path, spec)
	if err != nil {
		return err
	}

	sess := &session{
		handle:    newWriterHandle(w),
		path:      path,
		spec:      spec,
		startedAt: time.Now(),
	}
	sess.recording.Store(true)

	sink := &captureSink{
		recording:      &sess.recording,
		lastActive:     &sess.lastActive,
		handle:         sess.handle,
		detectSilence:  !r.cfg.DisableSilenceDetection,
		threshold:      r.cfg.SilenceThreshold,
		flushThreshold: r.cfg.FlushThreshold,
		log:            r.log,
	}

	stream, err := r.backend.OpenInputStream(dev, spec, sink)
	if err != nil {
		sess.recording.Store(false)
		r.removeUnusedOutput(sess)
		return fmt.Errorf("failed to open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		sess.recording.Store(false)
		r.removeUnusedOutput(sess)
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	sess.stream = stream
	r.sess = sess

	r.log.Info("Recording started: %s (%s, %d Hz, %d ch, device '%s')",
		path, spec.Format, spec.SampleRate, spec.Channels, dev.Name)

	go r.watchdog(sess, r.cfg)

	return nil
}

// UpdateConfig replaces the recorder configuration. The new settings apply
// to the next recording session, an active session keeps its own.
func (r *Recorder) UpdateConfig(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// Stop ends the current session and returns the output file path.
// With no session to stop it returns an empty path and no error.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	sess := r.sess
	r.sess = nil
	r.mu.Unlock()

	if sess == nil {
		return "", nil
	}

	sess.recording.Store(false)

	if err := sess.stream.Close(); err != nil {
		r.log.Error("Failed to close input stream: %v", err)
	}

	// Give in-flight callbacks time to drain before finalizing
	time.Sleep(stopFlushDelay)

	if w := sess.handle.take(); w != nil {
		if err := w.Close(); err != nil {
			return "", fmt.Errorf("failed to finalize recording: %w", err)
		}
	}

	if info, err := os.Stat(sess.path); err == nil && info.Size() < minOutputSize {
		r.log.Warn("Recording file is very small (%d bytes), likely empty: %s", info.Size(), sess.path)
	}

	r.log.Info("Recording stopped after %v: %s",
		time.Since(sess.startedAt).Round(time.Millisecond), sess.path)

	return sess.path, nil
}

// IsRecording reports whether a recording session is active
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess != nil && r.sess.recording.Load()
}

// Close tears down any active session. The backend itself is owned by
// the caller.
func (r *Recorder) Close() error {
	_, err := r.Stop()
	return err
}

// resolveDevice resolves a requested device name, falling back to the
// system default. A name with no match degrades to the default with a
// warning; no default device at all is ErrNoInputDevice.
func (r *Recorder) resolveDevice(name string) (Device, error) {
	if name != "" {
		devices, err := r.backend.InputDevices()
		if err != nil {
			r.log.Warn("Failed to enumerate input devices: %v", err)
		} else {
			for _, dev := range devices {
				if dev.Name == name {
					return dev, nil
				}
			}
			r.log.Warn("Input device '%s' not found, using default", name)
		}
	}

	dev, err := r.backend.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}

	return dev, nil
}

// watchdog enforces the maximum duration and silence bounds for one
// session. It only ever clears the session's flag: the stream is closed by
// Stop, and the sink finalizes the writer on the next callback. The config
// is a snapshot taken at session start, UpdateConfig does not affect it.
func (r *Recorder) watchdog(sess *session, cfg Config) {
	var elapsed time.Duration
	for {
		time.Sleep(cfg.PollInterval)

		if !sess.recording.Load() {
			return
		}

		elapsed += cfg.PollInterval

		if elapsed <= cfg.WarmupPeriod {
			// Warm-up: refresh activity unconditionally so silence
			// detection cannot fire before the user starts speaking
			sess.lastActive.Store(time.Now().UnixNano())
		} else if !cfg.DisableSilenceDetection {
			last := sess.lastActive.Load()
			if last > 0 && time.Since(time.Unix(0, last)) > cfg.SilenceTimeout {
				r.log.Info("Auto-stopping recording after %v without activity", cfg.SilenceTimeout)
				sess.recording.Store(false)
				return
			}
		}

		if elapsed >= cfg.MaxDuration {
			r.log.Info("Maximum recording duration reached (%v), stopping", cfg.MaxDuration)
			sess.recording.Store(false)
			return
		}
	}
}

// discardSessionLocked tears down a session that ended without being
// collected through Stop. The finalized file stays on disk.
func (r *Recorder) discardSessionLocked() {
	sess := r.sess
	r.sess = nil
	if sess == nil {
		return
	}

	if sess.stream != nil {
		if err := sess.stream.Close(); err != nil {
			r.log.Error("Failed to close stale input stream: %v", err)
		}
	}

	if w := sess.handle.take(); w != nil {
		if err := w.Close(); err != nil {
			r.log.Error("Failed to finalize recording file: %v", err)
		}
	}

	r.log.Warn("Discarding unconsumed recording: %s", sess.path)
}

// removeUnusedOutput closes and deletes the output file of a session that
// failed before its stream ever started
func (r *Recorder) removeUnusedOutput(sess *session) {
	w := sess.handle.take()
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		r.log.Error("Failed to close output file: %v", err)
	}
	if err := os.Remove(sess.path); err != nil {
		r.log.Debug("Failed to remove unused output file: %v", err)
	}
}
