package recording

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yomogy/kikitori/internal/config"
	"github.com/yomogy/kikitori/internal/hotkey"
	"github.com/yomogy/kikitori/internal/logger"
)

type fakeRecorder struct {
	mu         sync.Mutex
	recording  bool
	startErr   error
	stopErr    error
	stopPath   string
	startCalls int
	stopCalls  int
	lastDevice string
}

func (f *fakeRecorder) StartWithDevice(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.startCalls++
	f.lastDevice = name
	f.recording = true
	return nil
}

func (f *fakeRecorder) Stop() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	f.recording = false
	if f.stopErr != nil {
		return "", f.stopErr
	}
	return f.stopPath, nil
}

func (f *fakeRecorder) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

// dropSession simulates the capture watchdog ending the session on its own
func (f *fakeRecorder) dropSession() {
	f.mu.Lock()
	f.recording = false
	f.mu.Unlock()
}

func (f *fakeRecorder) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

func (f *fakeRecorder) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

func (f *fakeRecorder) device() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDevice
}

type fakeTranscriber struct {
	mu          sync.Mutex
	text        string
	err         error
	formatted   string
	formatErr   error
	block       chan struct{}
	transcribed []string
	formatCalls int
	lastWords   map[string]string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	f.transcribed = append(f.transcribed, audioPath)
	block := f.block
	text, err := f.text, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return text, err
}

func (f *fakeTranscriber) FormatText(ctx context.Context, text string, words map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formatCalls++
	f.lastWords = words
	if f.formatErr != nil {
		return "", f.formatErr
	}
	if f.formatted != "" {
		return f.formatted, nil
	}
	return text, nil
}

func (f *fakeTranscriber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transcribed)
}

type fakeDictionary struct {
	mu          sync.Mutex
	replaceWith string
	words       map[string]string
	saveErr     error
	applied     []string
	learned     []string
	saves       int
}

func (f *fakeDictionary) Apply(text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, text)
	if f.replaceWith != "" {
		return f.replaceWith
	}
	return text
}

func (f *fakeDictionary) Learn(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.learned = append(f.learned, text)
}

func (f *fakeDictionary) Words() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.words
}

func (f *fakeDictionary) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return f.saveErr
}

type fakePaster struct {
	mu       sync.Mutex
	copyErr  error
	pasteErr error
	copied   []string
	pasted   []string
}

func (f *fakePaster) SetClipboardContent(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.copyErr != nil {
		return f.copyErr
	}
	f.copied = append(f.copied, text)
	return nil
}

func (f *fakePaster) SafePaste(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pasteErr != nil {
		return f.pasteErr
	}
	f.pasted = append(f.pasted, text)
	return nil
}

func (f *fakePaster) copies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.copied...)
}

func (f *fakePaster) pastes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pasted...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, name)
	return nil
}

func (f *fakeNotifier) RecordingStarted() error { return f.record("recording_started") }

func (f *fakeNotifier) RecordingStopped() error { return f.record("recording_stopped") }

func (f *fakeNotifier) RecordingTimeExceeded() error { return f.record("time_exceeded") }

func (f *fakeNotifier) RecordingFailed(string) error { return f.record("recording_failed") }

func (f *fakeNotifier) TranscriptionComplete() error { return f.record("transcription_complete") }

func (f *fakeNotifier) TranscriptionFailed(string) error { return f.record("transcription_failed") }

func (f *fakeNotifier) TranscriptCopied() error { return f.record("transcript_copied") }

func (f *fakeNotifier) TranscriptCleared() error { return f.record("transcript_cleared") }

func (f *fakeNotifier) PasteComplete() error { return f.record("paste_complete") }

func (f *fakeNotifier) PasteFailed(string) error { return f.record("paste_failed") }

func (f *fakeNotifier) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev == name {
			return true
		}
	}
	return false
}

type fixture struct {
	manager     *Manager
	recorder    *fakeRecorder
	transcriber *fakeTranscriber
	dict        *fakeDictionary
	paster      *fakePaster
	notifier    *fakeNotifier
	cfg         *config.Config

	stateMu sync.Mutex
	states  []State
}

func (f *fixture) stateLog() []State {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	out := make([]State, len(f.states))
	copy(out, f.states)
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log, err := logger.New(logger.Config{
		LogDir: t.TempDir(),
		Level:  logger.ERROR,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	f := &fixture{
		recorder:    &fakeRecorder{stopPath: "recording_20240101_120000.wav"},
		transcriber: &fakeTranscriber{text: "hello world"},
		dict:        &fakeDictionary{},
		paster:      &fakePaster{},
		notifier:    &fakeNotifier{},
		cfg:         config.DefaultConfig(),
	}

	f.manager = New(Deps{
		Recorder:    f.recorder,
		Transcriber: f.transcriber,
		Dictionary:  f.dict,
		Paster:      f.paster,
		Notifier:    f.notifier,
		Config:      f.cfg,
		Logger:      log,
		OnStateChange: func(s State) {
			f.stateMu.Lock()
			f.states = append(f.states, s)
			f.stateMu.Unlock()
		},
		PollInterval: 10 * time.Millisecond,
	})
	t.Cleanup(func() { f.manager.Stop() })

	return f
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Idle, "Idle"},
		{Recording, "Recording"},
		{Transcribing, "Transcribing"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.state.String()
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestStartStopPipeline(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}

	if state := f.manager.GetState(); state != Recording {
		t.Errorf("Expected state Recording, got %s", state)
	}
	if !f.notifier.has("recording_started") {
		t.Error("Expected recording_started notification")
	}

	if err := f.manager.StopRecording(); err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return f.manager.GetState() == Idle && f.manager.LastTranscript() != ""
	})

	if got := f.manager.LastTranscript(); got != "hello world" {
		t.Errorf("Expected transcript %q, got %q", "hello world", got)
	}

	copies := f.paster.copies()
	if len(copies) != 1 || copies[0] != "hello world" {
		t.Errorf("Expected transcript copied to clipboard once, got %v", copies)
	}

	if !f.notifier.has("recording_stopped") {
		t.Error("Expected recording_stopped notification")
	}
	if !f.notifier.has("transcription_complete") {
		t.Error("Expected transcription_complete notification")
	}

	f.dict.mu.Lock()
	applied, learned, saves := f.dict.applied, f.dict.learned, f.dict.saves
	f.dict.mu.Unlock()

	if len(applied) != 1 || applied[0] != "hello world" {
		t.Errorf("Expected dictionary applied to transcript, got %v", applied)
	}
	if len(learned) != 1 {
		t.Errorf("Expected one learn pass, got %v", learned)
	}
	if saves != 1 {
		t.Errorf("Expected one dictionary save, got %d", saves)
	}
}

func TestStateChangeObserver(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}
	if err := f.manager.StopRecording(); err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return f.manager.GetState() == Idle && f.manager.LastTranscript() != ""
	})

	expected := []State{Recording, Transcribing, Idle}
	got := f.stateLog()
	if len(got) != len(expected) {
		t.Fatalf("Expected transitions %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("Expected transitions %v, got %v", expected, got)
		}
	}
}

func TestStartUsesConfiguredDevice(t *testing.T) {
	f := newFixture(t)
	f.cfg.Update(map[string]interface{}{
		"recording": map[string]interface{}{"input_device": "USB Microphone"},
	})

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}

	if got := f.recorder.device(); got != "USB Microphone" {
		t.Errorf("Expected configured device %q, got %q", "USB Microphone", got)
	}
}

func TestStartWithExplicitDevice(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.StartRecording("Headset"); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}

	if got := f.recorder.device(); got != "Headset" {
		t.Errorf("Expected device %q, got %q", "Headset", got)
	}
}

func TestStartWhileRecording(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("First StartRecording returned error: %v", err)
	}

	if err := f.manager.StartRecording(""); err == nil {
		t.Error("Expected error when starting while recording, got nil")
	}

	if got := f.recorder.starts(); got != 1 {
		t.Errorf("Expected 1 recorder start, got %d", got)
	}
}

func TestStopWhileIdle(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.StopRecording(); err == nil {
		t.Error("Expected error when stopping while idle, got nil")
	}
}

func TestStartRecordingFailure(t *testing.T) {
	f := newFixture(t)
	f.recorder.startErr = errors.New("device busy")

	err := f.manager.StartRecording("")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "device busy") {
		t.Errorf("Expected wrapped cause in error, got %v", err)
	}

	if state := f.manager.GetState(); state != Idle {
		t.Errorf("Expected state Idle after failed start, got %s", state)
	}
	if !f.notifier.has("recording_failed") {
		t.Error("Expected recording_failed notification")
	}
}

func TestStopRecorderFailure(t *testing.T) {
	f := newFixture(t)
	f.recorder.stopErr = errors.New("stream gone")

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}

	if err := f.manager.StopRecording(); err == nil {
		t.Error("Expected error from StopRecording, got nil")
	}

	if state := f.manager.GetState(); state != Idle {
		t.Errorf("Expected state Idle after failed stop, got %s", state)
	}
	if !f.notifier.has("recording_failed") {
		t.Error("Expected recording_failed notification")
	}
}

func TestStopWithoutOutputFile(t *testing.T) {
	f := newFixture(t)
	f.recorder.stopPath = ""

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}
	if err := f.manager.StopRecording(); err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool { return f.manager.GetState() == Idle })

	if got := f.transcriber.calls(); got != 0 {
		t.Errorf("Expected no transcription without an output file, got %d calls", got)
	}
	if got := f.manager.LastTranscript(); got != "" {
		t.Errorf("Expected empty transcript, got %q", got)
	}
}

func TestTranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	f.transcriber.err = errors.New("api unreachable")

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}
	if err := f.manager.StopRecording(); err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool { return f.notifier.has("transcription_failed") })

	if state := f.manager.GetState(); state != Idle {
		t.Errorf("Expected state Idle after failed transcription, got %s", state)
	}
	if got := f.manager.LastTranscript(); got != "" {
		t.Errorf("Expected empty transcript, got %q", got)
	}
	if got := f.paster.copies(); len(got) != 0 {
		t.Errorf("Expected nothing copied, got %v", got)
	}
}

func TestDictionaryAppliedBeforeLearning(t *testing.T) {
	f := newFixture(t)
	f.transcriber.text = "raw transcript"
	f.dict.replaceWith = "corrected transcript"

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}
	if err := f.manager.StopRecording(); err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool { return f.manager.LastTranscript() != "" })

	if got := f.manager.LastTranscript(); got != "corrected transcript" {
		t.Errorf("Expected corrected transcript, got %q", got)
	}

	f.dict.mu.Lock()
	learned := append([]string(nil), f.dict.learned...)
	f.dict.mu.Unlock()

	if len(learned) != 1 || learned[0] != "corrected transcript" {
		t.Errorf("Expected learning from the corrected text, got %v", learned)
	}
}

func TestFormattingApplied(t *testing.T) {
	f := newFixture(t)
	f.transcriber.formatted = "Formatted transcript."
	f.dict.words = map[string]string{"kuberneties": "Kubernetes"}

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}
	if err := f.manager.StopRecording(); err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool { return f.manager.LastTranscript() != "" })

	if got := f.manager.LastTranscript(); got != "Formatted transcript." {
		t.Errorf("Expected formatted transcript, got %q", got)
	}

	f.transcriber.mu.Lock()
	words := f.transcriber.lastWords
	f.transcriber.mu.Unlock()

	if words["kuberneties"] != "Kubernetes" {
		t.Errorf("Expected dictionary words passed to formatter, got %v", words)
	}
}

func TestFormattingFailureKeepsRawTranscript(t *testing.T) {
	f := newFixture(t)
	f.transcriber.text = "unformatted text"
	f.transcriber.formatErr = errors.New("quota exceeded")

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}
	if err := f.manager.StopRecording(); err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool { return f.manager.LastTranscript() != "" })

	if got := f.manager.LastTranscript(); got != "unformatted text" {
		t.Errorf("Expected raw transcript kept, got %q", got)
	}
	if !f.notifier.has("transcription_complete") {
		t.Error("Expected transcription_complete despite formatting failure")
	}
	if f.notifier.has("transcription_failed") {
		t.Error("Formatting failure should not report transcription_failed")
	}
}

func TestAutoStopCollectsRecording(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}

	// Simulate the capture watchdog ending the session
	f.recorder.dropSession()

	waitFor(t, time.Second, func() bool {
		return f.manager.GetState() == Idle && f.manager.LastTranscript() != ""
	})

	if !f.notifier.has("time_exceeded") {
		t.Error("Expected time_exceeded notification for the auto stop")
	}
	if f.notifier.has("recording_stopped") {
		t.Error("Auto stop should not send the manual stop notification")
	}
	if got := f.recorder.stops(); got != 1 {
		t.Errorf("Expected 1 recorder stop, got %d", got)
	}
	if got := f.manager.LastTranscript(); got != "hello world" {
		t.Errorf("Expected transcript from the collected session, got %q", got)
	}
}

func TestToggleIgnoredWhileTranscribing(t *testing.T) {
	f := newFixture(t)
	f.transcriber.block = make(chan struct{})

	f.manager.ToggleRecording()
	waitFor(t, time.Second, func() bool { return f.manager.GetState() == Recording })

	f.manager.ToggleRecording()
	waitFor(t, time.Second, func() bool { return f.manager.GetState() == Transcribing })

	// Toggle must not start a second capture while processing
	f.manager.ToggleRecording()
	if got := f.recorder.starts(); got != 1 {
		t.Errorf("Expected 1 recorder start, got %d", got)
	}

	close(f.transcriber.block)
	waitFor(t, time.Second, func() bool { return f.manager.GetState() == Idle })
}

func TestHotkeyEventsDriveActions(t *testing.T) {
	f := newFixture(t)

	events := make(chan hotkey.Event, 10)
	f.manager.Start(events)

	events <- hotkey.Event{Action: hotkey.ActionToggleRecording}
	waitFor(t, time.Second, func() bool { return f.manager.GetState() == Recording })

	events <- hotkey.Event{Action: hotkey.ActionToggleRecording}
	waitFor(t, time.Second, func() bool {
		return f.manager.GetState() == Idle && f.manager.LastTranscript() == "hello world"
	})

	events <- hotkey.Event{Action: hotkey.ActionCopyTranscript}
	waitFor(t, time.Second, func() bool { return len(f.paster.copies()) == 2 })

	events <- hotkey.Event{Action: hotkey.ActionPasteTranscript}
	waitFor(t, time.Second, func() bool { return len(f.paster.pastes()) == 1 })

	if got := f.paster.pastes()[0]; got != "hello world" {
		t.Errorf("Expected pasted transcript %q, got %q", "hello world", got)
	}

	events <- hotkey.Event{Action: hotkey.ActionClearTranscript}
	waitFor(t, time.Second, func() bool { return f.manager.LastTranscript() == "" })

	if !f.notifier.has("transcript_copied") {
		t.Error("Expected transcript_copied notification")
	}
	if !f.notifier.has("paste_complete") {
		t.Error("Expected paste_complete notification")
	}
	if !f.notifier.has("transcript_cleared") {
		t.Error("Expected transcript_cleared notification")
	}
}

func TestCopyTranscriptEmpty(t *testing.T) {
	f := newFixture(t)

	f.manager.CopyTranscript()

	if got := f.paster.copies(); len(got) != 0 {
		t.Errorf("Expected no clipboard writes, got %v", got)
	}
	if f.notifier.has("transcript_copied") {
		t.Error("Expected no notification for an empty transcript")
	}
}

func TestPasteTranscriptFailure(t *testing.T) {
	f := newFixture(t)
	f.paster.pasteErr = errors.New("no active window")

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}
	if err := f.manager.StopRecording(); err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}
	waitFor(t, time.Second, func() bool { return f.manager.LastTranscript() != "" })

	f.manager.PasteTranscript()

	if !f.notifier.has("paste_failed") {
		t.Error("Expected paste_failed notification")
	}
	if f.notifier.has("paste_complete") {
		t.Error("Expected no paste_complete notification")
	}
}

func TestManagerStopDiscardsRecording(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}

	if err := f.manager.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	if got := f.recorder.stops(); got != 1 {
		t.Errorf("Expected recorder stopped once, got %d", got)
	}
	if got := f.transcriber.calls(); got != 0 {
		t.Errorf("Expected no transcription during shutdown, got %d calls", got)
	}
	if state := f.manager.GetState(); state != Idle {
		t.Errorf("Expected state Idle after Stop, got %s", state)
	}

	if err := f.manager.StartRecording(""); err == nil {
		t.Error("Expected error when starting after Stop, got nil")
	}
}

func TestManagerStopIdempotent(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.Stop(); err != nil {
		t.Errorf("First Stop returned error: %v", err)
	}
	if err := f.manager.Stop(); err != nil {
		t.Errorf("Second Stop returned error: %v", err)
	}
}

func TestManagerStopCancelsTranscription(t *testing.T) {
	f := newFixture(t)
	f.transcriber.block = make(chan struct{})

	if err := f.manager.StartRecording(""); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}
	if err := f.manager.StopRecording(); err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool { return f.manager.GetState() == Transcribing })

	done := make(chan struct{})
	go func() {
		f.manager.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the in-flight transcription")
	}

	if f.notifier.has("transcription_failed") {
		t.Error("Canceled transcription should not notify a failure")
	}
}
