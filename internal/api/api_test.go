package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/yomogy/kikitori/internal/audio"
	"github.com/yomogy/kikitori/internal/config"
	"github.com/yomogy/kikitori/internal/logger"
	"github.com/yomogy/kikitori/internal/recording"
	"github.com/yomogy/kikitori/internal/wizard"
)

type fakeRecorder struct {
	state      recording.State
	transcript string
	startErr   error
	stopErr    error
	lastDevice string
	startCalls int
	stopCalls  int
}

func (f *fakeRecorder) GetState() recording.State { return f.state }

func (f *fakeRecorder) LastTranscript() string { return f.transcript }

func (f *fakeRecorder) StartRecording(device string) error {
	f.startCalls++
	f.lastDevice = device
	if f.startErr != nil {
		return f.startErr
	}
	f.state = recording.Recording
	return nil
}

func (f *fakeRecorder) StopRecording() error {
	f.stopCalls++
	if f.stopErr != nil {
		return f.stopErr
	}
	f.state = recording.Transcribing
	return nil
}

type fakeLevels struct {
	level   float64
	running bool
}

func (f *fakeLevels) Level() float64 { return f.level }

func (f *fakeLevels) IsRunning() bool { return f.running }

type fakeDevices struct {
	devices []audio.Device
	err     error
}

func (f *fakeDevices) InputDevices() ([]audio.Device, error) { return f.devices, f.err }

type fakeDict struct {
	words   map[string]string
	top     []string
	saveErr error
	saves   int
}

func newFakeDict() *fakeDict {
	return &fakeDict{words: make(map[string]string)}
}

func (f *fakeDict) Words() map[string]string { return f.words }

func (f *fakeDict) AddWord(original, replacement string) { f.words[original] = replacement }

func (f *fakeDict) TopTerms(n int) []string { return f.top }

func (f *fakeDict) Save() error {
	f.saves++
	return f.saveErr
}

func (f *fakeDict) Len() int { return len(f.words) }

type fixture struct {
	handler    *Handler
	cfg        *config.Config
	configPath string
	recorder   *fakeRecorder
	levels     *fakeLevels
	devices    *fakeDevices
	dict       *fakeDict
	wizard     *wizard.SetupWizard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log, err := logger.New(logger.Config{LogDir: t.TempDir(), Level: logger.ERROR})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	configPath := filepath.Join(t.TempDir(), "kikitori", "config.toml")
	wiz, err := wizard.NewSetupWizardAt(configPath)
	if err != nil {
		t.Fatalf("Failed to create wizard: %v", err)
	}

	f := &fixture{
		cfg:        config.DefaultConfig(),
		configPath: configPath,
		recorder:   &fakeRecorder{},
		levels:     &fakeLevels{level: 0.25, running: true},
		devices: &fakeDevices{devices: []audio.Device{
			{ID: 0, Name: "Built-in Microphone", IsDefault: true, Channels: 1, SampleRate: 44100},
			{ID: 3, Name: "USB Microphone", Channels: 2, SampleRate: 48000},
		}},
		dict:   newFakeDict(),
		wizard: wiz,
	}

	f.handler = New(Deps{
		Config:     f.cfg,
		ConfigPath: configPath,
		Wizard:     wiz,
		Recorder:   f.recorder,
		Levels:     f.levels,
		Devices:    f.devices,
		Dictionary: f.dict,
		Logger:     log,
	})

	return f
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func TestNew(t *testing.T) {
	f := newFixture(t)

	if f.handler == nil {
		t.Fatal("Expected handler to be created")
	}

	if f.handler.config != f.cfg {
		t.Error("Expected config to be set")
	}

	if f.handler.configPath != f.configPath {
		t.Error("Expected configPath to be set")
	}
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()

	f.handler.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	response := decodeJSON(t, w)
	if response["state"] != "Idle" {
		t.Errorf("Expected state 'Idle', got %v", response["state"])
	}
	if response["recording"] != false {
		t.Errorf("Expected recording false, got %v", response["recording"])
	}
	if response["level"] != 0.25 {
		t.Errorf("Expected level 0.25, got %v", response["level"])
	}

	// A running recording is reflected
	f.recorder.state = recording.Recording
	f.recorder.transcript = "hello world"

	w = httptest.NewRecorder()
	f.handler.handleStatus(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	response = decodeJSON(t, w)
	if response["state"] != "Recording" {
		t.Errorf("Expected state 'Recording', got %v", response["state"])
	}
	if response["recording"] != true {
		t.Errorf("Expected recording true, got %v", response["recording"])
	}
	if response["transcript"] != "hello world" {
		t.Errorf("Expected transcript to be reported, got %v", response["transcript"])
	}
}

func TestHandleLevel(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/level", nil)
	w := httptest.NewRecorder()

	f.handler.handleLevel(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	response := decodeJSON(t, w)
	if response["level"] != 0.25 {
		t.Errorf("Expected level 0.25, got %v", response["level"])
	}
	if response["monitoring"] != true {
		t.Errorf("Expected monitoring true, got %v", response["monitoring"])
	}
}

func TestHandleDevices(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	w := httptest.NewRecorder()

	f.handler.handleDevices(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Devices []Device `json:"devices"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(response.Devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(response.Devices))
	}
	if response.Devices[0].Name != "Built-in Microphone" || !response.Devices[0].IsDefault {
		t.Errorf("Unexpected first device: %+v", response.Devices[0])
	}
	if response.Devices[1].SampleRate != 48000 {
		t.Errorf("Expected sample rate to be carried over, got %v", response.Devices[1].SampleRate)
	}
}

func TestHandleDevicesError(t *testing.T) {
	f := newFixture(t)
	f.devices.err = errors.New("portaudio not initialized")

	w := httptest.NewRecorder()
	f.handler.handleDevices(w, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestGetSettings(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	w := httptest.NewRecorder()

	f.handler.handleSettings(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response config.Config
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.UI.Language != f.cfg.Clone().UI.Language {
		t.Errorf("Expected language %q, got %q", f.cfg.Clone().UI.Language, response.UI.Language)
	}
	if response.Shortcuts.ToggleRecording != "Shift+Space" {
		t.Errorf("Expected default toggle shortcut, got %q", response.Shortcuts.ToggleRecording)
	}
}

func TestPutSettings(t *testing.T) {
	f := newFixture(t)

	updates := map[string]interface{}{
		"api_key": "sk-test",
		"ui": map[string]interface{}{
			"language": "ja",
		},
	}

	body, _ := json.Marshal(updates)
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body))
	w := httptest.NewRecorder()

	f.handler.handleSettings(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", w.Code, w.Body.String())
	}

	response := decodeJSON(t, w)
	if response["status"] != "success" {
		t.Errorf("Expected status 'success', got %v", response["status"])
	}

	cfg := f.cfg.Clone()
	if cfg.APIKey != "sk-test" {
		t.Errorf("Expected APIKey 'sk-test', got %q", cfg.APIKey)
	}
	if cfg.UI.Language != "ja" {
		t.Errorf("Expected Language 'ja', got %q", cfg.UI.Language)
	}

	// The config must have been written to disk
	if _, err := os.Stat(f.configPath); err != nil {
		t.Errorf("Expected config file to be saved: %v", err)
	}

	// Saving settings through the API completes the first-run setup
	if !f.wizard.IsSetupCompleted() {
		t.Error("Expected setup to be marked completed")
	}
}

func TestPutSettingsInvalid(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader([]byte("invalid")))
	w := httptest.NewRecorder()

	f.handler.handleSettings(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestPutSettingsRejectsBadValues(t *testing.T) {
	f := newFixture(t)

	updates := map[string]interface{}{
		"ui": map[string]interface{}{
			"language": "fr",
		},
	}

	body, _ := json.Marshal(updates)
	w := httptest.NewRecorder()
	f.handler.handleSettings(w, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	if f.cfg.Clone().UI.Language == "fr" {
		t.Error("Expected invalid language to be rejected")
	}
}

func TestPutSettingsRejectsBadShortcuts(t *testing.T) {
	f := newFixture(t)

	updates := map[string]interface{}{
		"shortcuts": map[string]interface{}{
			"toggle_recording": "Space",
		},
	}

	body, _ := json.Marshal(updates)
	w := httptest.NewRecorder()
	f.handler.handleSettings(w, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	// The bad value must not leak into the live config
	if f.cfg.Clone().Shortcuts.ToggleRecording != "Shift+Space" {
		t.Errorf("Expected live config untouched, got %q", f.cfg.Clone().Shortcuts.ToggleRecording)
	}

	// A duplicate combination across shortcuts is also rejected
	updates = map[string]interface{}{
		"shortcuts": map[string]interface{}{
			"auto_paste": "Ctrl+Shift+C",
		},
	}

	body, _ = json.Marshal(updates)
	w = httptest.NewRecorder()
	f.handler.handleSettings(w, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for duplicate shortcuts, got %d", w.Code)
	}
}

func TestPutSettingsPartialOnReloadFailure(t *testing.T) {
	f := newFixture(t)

	reloadErr := errors.New("hotkey registration failed")
	f.handler.onConfigChanged = func() error { return reloadErr }

	updates := map[string]interface{}{"api_key": "sk-test"}
	body, _ := json.Marshal(updates)

	w := httptest.NewRecorder()
	f.handler.handleSettings(w, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	response := decodeJSON(t, w)
	if response["status"] != "partial" {
		t.Errorf("Expected status 'partial', got %v", response["status"])
	}
}

func TestHandleRecordStart(t *testing.T) {
	f := newFixture(t)

	// Empty body starts on the configured device
	req := httptest.NewRequest(http.MethodPost, "/api/record/start", nil)
	w := httptest.NewRecorder()

	f.handler.handleRecordStart(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", w.Code, w.Body.String())
	}

	response := decodeJSON(t, w)
	if response["status"] != "recording" {
		t.Errorf("Expected status 'recording', got %v", response["status"])
	}
	if f.recorder.lastDevice != "" {
		t.Errorf("Expected empty device, got %q", f.recorder.lastDevice)
	}

	// An explicit device is passed through
	f.recorder.state = recording.Idle
	body, _ := json.Marshal(map[string]string{"device": "USB Microphone"})

	w = httptest.NewRecorder()
	f.handler.handleRecordStart(w, httptest.NewRequest(http.MethodPost, "/api/record/start", bytes.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if f.recorder.lastDevice != "USB Microphone" {
		t.Errorf("Expected device 'USB Microphone', got %q", f.recorder.lastDevice)
	}
}

func TestHandleRecordStartConflict(t *testing.T) {
	f := newFixture(t)
	f.recorder.startErr = errors.New("already recording or transcribing (current state: Recording)")

	w := httptest.NewRecorder()
	f.handler.handleRecordStart(w, httptest.NewRequest(http.MethodPost, "/api/record/start", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestHandleRecordStartNoDevice(t *testing.T) {
	f := newFixture(t)
	f.recorder.startErr = fmt.Errorf("failed to start recording: %w", audio.ErrNoInputDevice)

	w := httptest.NewRecorder()
	f.handler.handleRecordStart(w, httptest.NewRequest(http.MethodPost, "/api/record/start", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestHandleRecordStop(t *testing.T) {
	f := newFixture(t)
	f.recorder.state = recording.Recording

	w := httptest.NewRecorder()
	f.handler.handleRecordStop(w, httptest.NewRequest(http.MethodPost, "/api/record/stop", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", w.Code, w.Body.String())
	}

	response := decodeJSON(t, w)
	if response["status"] != "processing" {
		t.Errorf("Expected status 'processing', got %v", response["status"])
	}

	// Stopping a recording through the API counts as the setup test recording
	if !f.wizard.IsTestRecordingDone() {
		t.Error("Expected test recording to be marked done")
	}
}

func TestHandleRecordStopNotRecording(t *testing.T) {
	f := newFixture(t)
	f.recorder.stopErr = errors.New("not recording (current state: Idle)")

	w := httptest.NewRecorder()
	f.handler.handleRecordStop(w, httptest.NewRequest(http.MethodPost, "/api/record/stop", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}

	if f.wizard.IsTestRecordingDone() {
		t.Error("Expected failed stop not to mark the test recording")
	}
}

func TestHandleDictionaryGet(t *testing.T) {
	f := newFixture(t)
	f.dict.words["まちだ"] = "町田"
	f.dict.top = []string{"Kubernetes", "デプロイ"}

	w := httptest.NewRecorder()
	f.handler.handleDictionary(w, httptest.NewRequest(http.MethodGet, "/api/dictionary", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Words         map[string]string `json:"words"`
		FrequentTerms []string          `json:"frequent_terms"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Words["まちだ"] != "町田" {
		t.Errorf("Expected word entry in response, got %v", response.Words)
	}
	if len(response.FrequentTerms) != 2 || response.FrequentTerms[0] != "Kubernetes" {
		t.Errorf("Expected frequent terms in response, got %v", response.FrequentTerms)
	}
}

func TestHandleDictionaryPut(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(map[string]interface{}{
		"words": map[string]string{"まちだ": "町田", "きくとり": "kikitori"},
	})

	w := httptest.NewRecorder()
	f.handler.handleDictionary(w, httptest.NewRequest(http.MethodPut, "/api/dictionary", bytes.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", w.Code, w.Body.String())
	}

	response := decodeJSON(t, w)
	if response["status"] != "success" {
		t.Errorf("Expected status 'success', got %v", response["status"])
	}
	if response["count"] != float64(2) {
		t.Errorf("Expected count 2, got %v", response["count"])
	}

	if f.dict.words["まちだ"] != "町田" {
		t.Errorf("Expected word to be added, got %v", f.dict.words)
	}
	if f.dict.saves != 1 {
		t.Errorf("Expected dictionary to be saved once, got %d", f.dict.saves)
	}
}

func TestHandleDictionaryPutInvalid(t *testing.T) {
	f := newFixture(t)

	// No words at all
	body, _ := json.Marshal(map[string]interface{}{"words": map[string]string{}})
	w := httptest.NewRecorder()
	f.handler.handleDictionary(w, httptest.NewRequest(http.MethodPut, "/api/dictionary", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty words, got %d", w.Code)
	}

	// An empty original is rejected before anything is added
	body, _ = json.Marshal(map[string]interface{}{"words": map[string]string{"": "x"}})
	w = httptest.NewRecorder()
	f.handler.handleDictionary(w, httptest.NewRequest(http.MethodPut, "/api/dictionary", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty word, got %d", w.Code)
	}
	if f.dict.saves != 0 {
		t.Errorf("Expected no save on rejected input, got %d", f.dict.saves)
	}
}

func TestHandleDictionarySaveError(t *testing.T) {
	f := newFixture(t)
	f.dict.saveErr = errors.New("disk full")

	body, _ := json.Marshal(map[string]interface{}{"words": map[string]string{"a": "b"}})
	w := httptest.NewRecorder()
	f.handler.handleDictionary(w, httptest.NewRequest(http.MethodPut, "/api/dictionary", bytes.NewReader(body)))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestHandleHotkeyValidate(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(map[string]string{"shortcut": "Ctrl+Alt+T"})
	w := httptest.NewRecorder()
	f.handler.handleHotkeyValidate(w, httptest.NewRequest(http.MethodPost, "/api/hotkey/validate", bytes.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	response := decodeJSON(t, w)
	if response["valid"] != true {
		t.Errorf("Expected valid true, got %v", response["valid"])
	}
	if response["canonical"] != "Ctrl+Alt+T" {
		t.Errorf("Expected canonical 'Ctrl+Alt+T', got %v", response["canonical"])
	}

	conflicts, ok := response["conflicts"].([]interface{})
	if !ok || len(conflicts) == 0 {
		t.Fatalf("Expected a conflict report for Ctrl+Alt+T, got %v", response["conflicts"])
	}
}

func TestHandleHotkeyValidateDuplicate(t *testing.T) {
	f := newFixture(t)

	// Ctrl+Shift+C is the default copy shortcut
	body, _ := json.Marshal(map[string]string{"shortcut": "Ctrl+Shift+C"})
	w := httptest.NewRecorder()
	f.handler.handleHotkeyValidate(w, httptest.NewRequest(http.MethodPost, "/api/hotkey/validate", bytes.NewReader(body)))

	response := decodeJSON(t, w)
	if response["duplicate_of"] != "copy_to_clipboard" {
		t.Errorf("Expected duplicate_of 'copy_to_clipboard', got %v", response["duplicate_of"])
	}
}

func TestHandleHotkeyValidateInvalid(t *testing.T) {
	f := newFixture(t)

	// A bare key without modifiers does not parse
	body, _ := json.Marshal(map[string]string{"shortcut": "Q"})
	w := httptest.NewRecorder()
	f.handler.handleHotkeyValidate(w, httptest.NewRequest(http.MethodPost, "/api/hotkey/validate", bytes.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	response := decodeJSON(t, w)
	if response["valid"] != false {
		t.Errorf("Expected valid false, got %v", response["valid"])
	}
	if response["error"] == "" {
		t.Error("Expected a parse error message")
	}

	// A missing shortcut is a bad request
	w = httptest.NewRecorder()
	f.handler.handleHotkeyValidate(w, httptest.NewRequest(http.MethodPost, "/api/hotkey/validate", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHandleSetup(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.handler.handleSetup(w, httptest.NewRequest(http.MethodGet, "/api/setup", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	response := decodeJSON(t, w)
	if response["first_run"] != true {
		t.Errorf("Expected first_run true, got %v", response["first_run"])
	}
	if response["show_wizard"] != true {
		t.Errorf("Expected show_wizard true, got %v", response["show_wizard"])
	}
	if _, ok := response["progress"]; !ok {
		t.Error("Expected 'progress' field in response")
	}

	// Completing the settings flow flips the flags
	body, _ := json.Marshal(map[string]interface{}{"api_key": "sk-test"})
	f.handler.handleSettings(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body)))

	w = httptest.NewRecorder()
	f.handler.handleSetup(w, httptest.NewRequest(http.MethodGet, "/api/setup", nil))

	response = decodeJSON(t, w)
	if response["first_run"] != false {
		t.Errorf("Expected first_run false after saving settings, got %v", response["first_run"])
	}
	if response["setup_completed"] != true {
		t.Errorf("Expected setup_completed true, got %v", response["setup_completed"])
	}
}

func TestRegisterRoutes(t *testing.T) {
	f := newFixture(t)

	mux := http.NewServeMux()
	f.handler.RegisterRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected routed status endpoint to answer 200, got %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path   string
		method string
	}{
		{"/api/status", http.MethodPost},
		{"/api/level", http.MethodPost},
		{"/api/devices", http.MethodPost},
		{"/api/settings", http.MethodDelete},
		{"/api/record/start", http.MethodGet},
		{"/api/record/stop", http.MethodGet},
		{"/api/dictionary", http.MethodDelete},
		{"/api/hotkey/validate", http.MethodGet},
		{"/api/setup", http.MethodPost},
	}

	for _, test := range tests {
		req := httptest.NewRequest(test.method, test.path, nil)
		w := httptest.NewRecorder()

		switch test.path {
		case "/api/status":
			f.handler.handleStatus(w, req)
		case "/api/level":
			f.handler.handleLevel(w, req)
		case "/api/devices":
			f.handler.handleDevices(w, req)
		case "/api/settings":
			f.handler.handleSettings(w, req)
		case "/api/record/start":
			f.handler.handleRecordStart(w, req)
		case "/api/record/stop":
			f.handler.handleRecordStop(w, req)
		case "/api/dictionary":
			f.handler.handleDictionary(w, req)
		case "/api/hotkey/validate":
			f.handler.handleHotkeyValidate(w, req)
		case "/api/setup":
			f.handler.handleSetup(w, req)
		}

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: Expected status 405, got %d", test.method, test.path, w.Code)
		}
	}
}

func TestNilDependencies(t *testing.T) {
	f := newFixture(t)

	log, err := logger.New(logger.Config{LogDir: t.TempDir(), Level: logger.ERROR})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	handler := New(Deps{Config: f.cfg, ConfigPath: f.configPath, Logger: log})

	tests := []struct {
		name   string
		path   string
		method string
		invoke func(w http.ResponseWriter, r *http.Request)
	}{
		{"status", "/api/status", http.MethodGet, handler.handleStatus},
		{"devices", "/api/devices", http.MethodGet, handler.handleDevices},
		{"record start", "/api/record/start", http.MethodPost, handler.handleRecordStart},
		{"record stop", "/api/record/stop", http.MethodPost, handler.handleRecordStop},
		{"dictionary", "/api/dictionary", http.MethodGet, handler.handleDictionary},
		{"setup", "/api/setup", http.MethodGet, handler.handleSetup},
	}

	for _, test := range tests {
		w := httptest.NewRecorder()
		test.invoke(w, httptest.NewRequest(test.method, test.path, nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: Expected status 503, got %d", test.name, w.Code)
		}
	}

	// The level endpoint degrades to zero instead of failing
	w := httptest.NewRecorder()
	handler.handleLevel(w, httptest.NewRequest(http.MethodGet, "/api/level", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected level endpoint to answer 200, got %d", w.Code)
	}

	response := decodeJSON(t, w)
	if response["level"] != float64(0) || response["monitoring"] != false {
		t.Errorf("Expected zero level without a monitor, got %v", response)
	}
}
