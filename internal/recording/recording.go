package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yomogy/kikitori/internal/config"
	"github.com/yomogy/kikitori/internal/hotkey"
	"github.com/yomogy/kikitori/internal/logger"
)

// State represents the current recording state
type State int

const (
	// Idle means not recording
	Idle State = iota
	// Recording means currently capturing audio
	Recording
	// Transcribing means a finished recording is being processed
	Transcribing
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Transcribing:
		return "Transcribing"
	default:
		return "Unknown"
	}
}

// defaultPollInterval is how often the auto-stop watcher checks whether the
// recorder dropped the session on its own (silence timeout or max duration)
const defaultPollInterval = 200 * time.Millisecond

// processTimeout bounds one full transcription pipeline run
const processTimeout = 10 * time.Minute

// Recorder captures audio into a WAV file
type Recorder interface {
	StartWithDevice(name string) error
	Stop() (string, error)
	IsRecording() bool
}

// Transcriber turns a recorded file into text
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	FormatText(ctx context.Context, text string, words map[string]string) (string, error)
}

// Dictionary applies and learns user vocabulary
type Dictionary interface {
	Apply(text string) string
	Learn(text string)
	Words() map[string]string
	Save() error
}

// Paster writes transcripts to the clipboard and the active window
type Paster interface {
	SetClipboardContent(text string) error
	SafePaste(text string) error
}

// Notifier reports pipeline progress to the desktop
type Notifier interface {
	RecordingStarted() error
	RecordingStopped() error
	RecordingTimeExceeded() error
	RecordingFailed(reason string) error
	TranscriptionComplete() error
	TranscriptionFailed(reason string) error
	TranscriptCopied() error
	TranscriptCleared() error
	PasteComplete() error
	PasteFailed(reason string) error
}

// Deps bundles everything the manager drives
type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Dictionary  Dictionary
	Paster      Paster
	Notifier    Notifier
	Config      *config.Config
	Logger      *logger.Logger

	// OnStateChange observes state transitions, nil is ignored. Calls are
	// synchronous, the observer must not call back into the Manager.
	OnStateChange func(State)

	// PollInterval overrides the auto-stop watcher interval (0 = default)
	PollInterval time.Duration
}

// Manager coordinates hotkey actions, the recorder, and the transcription
// pipeline: toggle starts or stops a capture, a finished capture is
// transcribed, run through the user dictionary, optionally cleaned up by the
// formatting model, and copied to the clipboard. The last transcript stays
// available for the copy, clear, and paste actions.
type Manager struct {
	recorder    Recorder
	transcriber Transcriber
	dict        Dictionary
	paster      Paster
	notifier    Notifier
	cfg         *config.Config
	log         *logger.Logger

	onStateChange func(State)
	pollInterval  time.Duration

	mu          sync.Mutex
	state       State
	transcript  string
	sessionDone chan struct{}
	stopped     bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new recording manager
func New(deps Deps) *Manager {
	poll := deps.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		recorder:      deps.Recorder,
		transcriber:   deps.Transcriber,
		dict:          deps.Dictionary,
		paster:        deps.Paster,
		notifier:      deps.Notifier,
		cfg:           deps.Config,
		log:           deps.Logger,
		onStateChange: deps.OnStateChange,
		pollInterval:  poll,
		state:         Idle,
		ctx:           ctx,
		cancel:        cancel,
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming hotkey events
func (m *Manager) Start(events <-chan hotkey.Event) {
	m.wg.Add(1)
	go m.run(events)
}

// run dispatches hotkey events until the channel closes or Stop is called
func (m *Manager) run(events <-chan hotkey.Event) {
	defer m.wg.Done()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// Hotkey channel closed, exit
				return
			}
			m.HandleAction(event.Action)

		case <-m.stopChan:
			return
		}
	}
}

// HandleAction runs the handler for one shortcut action
func (m *Manager) HandleAction(action hotkey.Action) {
	switch action {
	case hotkey.ActionToggleRecording:
		m.ToggleRecording()
	case hotkey.ActionCopyTranscript:
		m.CopyTranscript()
	case hotkey.ActionClearTranscript:
		m.ClearTranscript()
	case hotkey.ActionPasteTranscript:
		m.PasteTranscript()
	default:
		m.log.Warn("Unknown hotkey action: %v", action)
	}
}

// ToggleRecording starts a recording when idle and stops it when recording.
// Presses during transcription are ignored.
func (m *Manager) ToggleRecording() {
	switch m.GetState() {
	case Idle:
		if err := m.StartRecording(""); err != nil {
			m.log.Error("Failed to start recording: %v", err)
		}
	case Recording:
		if err := m.StopRecording(); err != nil {
			m.log.Error("Failed to stop recording: %v", err)
		}
	case Transcribing:
		m.log.Debug("Toggle ignored while transcribing")
	}
}

// StartRecording starts capturing from the given device. An empty name uses
// the configured input device.
func (m *Manager) StartRecording(device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return fmt.Errorf("recording manager is stopped")
	}

	if m.state != Idle {
		return fmt.Errorf("already recording or transcribing (current state: %s)", m.state)
	}

	if device == "" {
		device = m.cfg.Clone().Recording.InputDevice
	}

	if err := m.recorder.StartWithDevice(device); err != nil {
		m.notifier.RecordingFailed(err.Error())
		return fmt.Errorf("failed to start recording: %w", err)
	}

	m.state = Recording
	m.sessionDone = make(chan struct{})
	m.wg.Add(1)
	go m.watchAutoStop(m.sessionDone)

	m.notifyState(Recording)
	m.notifier.RecordingStarted()
	m.log.Info("Recording started (device: %q)", device)

	return nil
}

// StopRecording stops the current capture and processes it
func (m *Manager) StopRecording() error {
	return m.finish(false)
}

// watchAutoStop notices when the recorder ends the session on its own
// (silence timeout or max duration) and collects the file
func (m *Manager) watchAutoStop(sessionDone <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.recorder.IsRecording() {
				continue
			}
			if err := m.finish(true); err != nil {
				m.log.Error("Auto-stop collection failed: %v", err)
			}
			return

		case <-sessionDone:
			return

		case <-m.stopChan:
			return
		}
	}
}

// finish moves Recording to Transcribing, stops the recorder, and hands the
// file to the processing pipeline. With auto set it tolerates losing the
// race against a manual stop.
func (m *Manager) finish(auto bool) error {
	m.mu.Lock()
	if m.state != Recording {
		m.mu.Unlock()
		if auto {
			return nil
		}
		return fmt.Errorf("not recording (current state: %s)", m.state)
	}

	m.state = Transcribing
	if m.sessionDone != nil {
		close(m.sessionDone)
		m.sessionDone = nil
	}
	m.mu.Unlock()

	m.notifyState(Transcribing)

	if auto {
		m.log.Warn("Recording stopped by the watchdog, collecting the session")
		m.notifier.RecordingTimeExceeded()
	} else {
		m.notifier.RecordingStopped()
	}

	// Stop blocks for the final buffer flush, keep the lock released
	path, err := m.recorder.Stop()
	if err != nil {
		m.log.Error("Failed to stop recording: %v", err)
		m.notifier.RecordingFailed(err.Error())
		m.setState(Idle)
		return fmt.Errorf("failed to stop recording: %w", err)
	}

	if path == "" {
		m.log.Info("No recording to process")
		m.setState(Idle)
		return nil
	}

	m.wg.Add(1)
	go m.process(path)

	return nil
}

// process runs the transcription pipeline for one recorded file
func (m *Manager) process(path string) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, processTimeout)
	defer cancel()

	text, err := m.transcriber.Transcribe(ctx, path)
	if err != nil {
		if m.ctx.Err() != nil {
			// Shutting down, drop the result silently
			m.setState(Idle)
			return
		}
		m.log.Error("Transcription failed: %v", err)
		m.notifier.TranscriptionFailed(err.Error())
		m.setState(Idle)
		return
	}

	text = m.dict.Apply(text)
	m.dict.Learn(text)
	if err := m.dict.Save(); err != nil {
		m.log.Warn("Failed to save dictionary: %v", err)
	}

	// Formatting is best effort, a failure keeps the unformatted transcript
	if formatted, err := m.transcriber.FormatText(ctx, text, m.dict.Words()); err != nil {
		if m.ctx.Err() != nil {
			m.setState(Idle)
			return
		}
		m.log.Warn("Transcript formatting failed, keeping raw transcript: %v", err)
	} else if formatted != "" {
		text = formatted
	}

	m.mu.Lock()
	m.transcript = text
	m.state = Idle
	m.mu.Unlock()

	m.notifyState(Idle)

	if text == "" {
		m.log.Info("Transcript is empty, nothing to copy")
		return
	}

	// 自動ペースト設定に関係なく常にクリップボードへコピーする
	if err := m.paster.SetClipboardContent(text); err != nil {
		m.log.Warn("Failed to copy transcript to clipboard: %v", err)
	}

	m.notifier.TranscriptionComplete()
	m.log.Info("Transcription complete (%d characters)", len(text))
}

// CopyTranscript copies the last transcript to the clipboard
func (m *Manager) CopyTranscript() {
	text := m.LastTranscript()
	if text == "" {
		m.log.Debug("No transcript to copy")
		return
	}

	if err := m.paster.SetClipboardContent(text); err != nil {
		m.log.Error("Failed to copy transcript: %v", err)
		return
	}

	m.notifier.TranscriptCopied()
}

// ClearTranscript clears the last transcript
func (m *Manager) ClearTranscript() {
	m.mu.Lock()
	m.transcript = ""
	m.mu.Unlock()

	m.notifier.TranscriptCleared()
	m.log.Info("Transcript cleared")
}

// PasteTranscript pastes the last transcript into the active window
func (m *Manager) PasteTranscript() {
	text := m.LastTranscript()
	if text == "" {
		m.log.Debug("No transcript to paste")
		return
	}

	if err := m.paster.SafePaste(text); err != nil {
		m.log.Error("Failed to paste transcript: %v", err)
		m.notifier.PasteFailed(err.Error())
		return
	}

	m.notifier.PasteComplete()
}

// GetState returns the current recording state
func (m *Manager) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastTranscript returns the most recent transcript
func (m *Manager) LastTranscript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript
}

// setState sets the state under the lock and reports the transition
func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.notifyState(s)
}

// notifyState reports a state change to the observer
func (m *Manager) notifyState(s State) {
	if m.onStateChange != nil {
		m.onStateChange(s)
	}
}

// Stop shuts the manager down. An in-flight recording is stopped and
// discarded, an in-flight transcription is canceled.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true

	recording := m.state == Recording
	if recording {
		m.state = Idle
	}
	if m.sessionDone != nil {
		close(m.sessionDone)
		m.sessionDone = nil
	}
	m.mu.Unlock()

	if recording {
		m.notifyState(Idle)
		if path, err := m.recorder.Stop(); err != nil {
			m.log.Warn("Failed to stop recorder during shutdown: %v", err)
		} else if path != "" {
			m.log.Info("Discarding unprocessed recording: %s", path)
		}
	}

	// Abort any in-flight transcription
	m.cancel()

	// Signal the event loop and watchers to stop
	close(m.stopChan)

	// Wait for goroutines to finish
	m.wg.Wait()

	return nil
}
