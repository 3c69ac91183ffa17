package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/yomogy/kikitori/internal/audio"
	"github.com/yomogy/kikitori/internal/config"
	"github.com/yomogy/kikitori/internal/hotkey"
	"github.com/yomogy/kikitori/internal/logger"
	"github.com/yomogy/kikitori/internal/recording"
	"github.com/yomogy/kikitori/internal/wizard"
)

// frequentTermCount is how many learned terms the dictionary endpoint reports
const frequentTermCount = 10

// RecordingController is the recording surface the API drives
type RecordingController interface {
	GetState() recording.State
	LastTranscript() string
	StartRecording(device string) error
	StopRecording() error
}

// LevelSource reports the current microphone input level
type LevelSource interface {
	Level() float64
	IsRunning() bool
}

// DeviceLister enumerates audio input devices
type DeviceLister interface {
	InputDevices() ([]audio.Device, error)
}

// DictionaryStore is the dictionary surface exposed over the API
type DictionaryStore interface {
	Words() map[string]string
	AddWord(original, replacement string)
	TopTerms(n int) []string
	Save() error
	Len() int
}

// Handler manages API endpoints
type Handler struct {
	config          *config.Config
	configPath      string
	wizard          *wizard.SetupWizard
	recorder        RecordingController
	levels          LevelSource
	devices         DeviceLister
	dict            DictionaryStore
	onConfigChanged func() error // Callback to reapply settings in the running app
	log             *logger.Logger
}

// Deps wires the handler into the running application. Config and Logger
// are required. The other fields may be nil, which degrades the matching
// endpoints to 503 instead of crashing.
type Deps struct {
	Config          *config.Config
	ConfigPath      string // Defaults to the standard config location
	Wizard          *wizard.SetupWizard
	Recorder        RecordingController
	Levels          LevelSource
	Devices         DeviceLister
	Dictionary      DictionaryStore
	OnConfigChanged func() error
	Logger          *logger.Logger
}

// New creates a new API handler
func New(deps Deps) *Handler {
	configPath := deps.ConfigPath
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	return &Handler{
		config:          deps.Config,
		configPath:      configPath,
		wizard:          deps.Wizard,
		recorder:        deps.Recorder,
		levels:          deps.Levels,
		devices:         deps.Devices,
		dict:            deps.Dictionary,
		onConfigChanged: deps.OnConfigChanged,
		log:             deps.Logger,
	}
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/level", h.handleLevel)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/record/start", h.handleRecordStart)
	mux.HandleFunc("/api/record/stop", h.handleRecordStop)
	mux.HandleFunc("/api/dictionary", h.handleDictionary)
	mux.HandleFunc("/api/hotkey/validate", h.handleHotkeyValidate)
	mux.HandleFunc("/api/setup", h.handleSetup)
}

// handleStatus handles GET /api/status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.recorder == nil {
		http.Error(w, "Recording manager not available", http.StatusServiceUnavailable)
		return
	}

	state := h.recorder.GetState()

	var level float64
	if h.levels != nil {
		level = h.levels.Level()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"state":      state.String(),
		"recording":  state == recording.Recording,
		"level":      level,
		"transcript": h.recorder.LastTranscript(),
	})
}

// handleLevel handles GET /api/level
func (h *Handler) handleLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var level float64
	monitoring := false
	if h.levels != nil {
		level = h.levels.Level()
		monitoring = h.levels.IsRunning()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"level":      level,
		"monitoring": monitoring,
	})
}

// Device represents an audio input device
type Device struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	IsDefault  bool    `json:"is_default"`
	Channels   int     `json:"channels"`
	SampleRate float64 `json:"sample_rate"`
}

// convertAudioDevices converts audio.Device slice to api.Device slice
func convertAudioDevices(audioDevices []audio.Device) []Device {
	devices := make([]Device, 0, len(audioDevices))
	for _, dev := range audioDevices {
		devices = append(devices, Device{
			ID:         dev.ID,
			Name:       dev.Name,
			IsDefault:  dev.IsDefault,
			Channels:   dev.Channels,
			SampleRate: dev.SampleRate,
		})
	}
	return devices
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.devices == nil {
		http.Error(w, "Audio backend not available", http.StatusServiceUnavailable)
		return
	}

	audioDevices, err := h.devices.InputDevices()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list audio devices: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"devices": convertAudioDevices(audioDevices),
	})
}

// handleSettings handles GET and PUT /api/settings
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getSettings returns the current configuration
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.config.Clone())
}

// putSettings updates the configuration
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// 反映する前にコピーへ適用して全体を検証する
	staged := h.config.Clone()
	if err := staged.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}
	if err := staged.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid configuration: %v", err), http.StatusBadRequest)
		return
	}
	if _, err := hotkey.ParseShortcuts(
		staged.Shortcuts.ToggleRecording,
		staged.Shortcuts.CopyToClipboard,
		staged.Shortcuts.ClearTranscript,
		staged.Shortcuts.AutoPaste,
	); err != nil {
		http.Error(w, fmt.Sprintf("Invalid shortcuts: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.config.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.config.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	// 初回設定完了フラグを立てる
	if h.wizard != nil {
		if err := h.wizard.MarkSetupCompleted(); err != nil {
			// 設定保存は成功しているので処理は続行する
			h.log.Warn("Failed to mark setup completed: %v", err)
		}
	}

	if h.onConfigChanged != nil {
		if err := h.onConfigChanged(); err != nil {
			// Config is already saved, report partial success
			h.log.Warn("Failed to apply updated settings: %v", err)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"status":  "partial",
				"message": fmt.Sprintf("Settings saved but reload failed: %v. Please restart the application.", err),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "success",
	})
}

// handleRecordStart handles POST /api/record/start
func (h *Handler) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.recorder == nil {
		http.Error(w, "Recording manager not available", http.StatusServiceUnavailable)
		return
	}

	// Body is optional, an empty body starts on the configured device
	var request struct {
		Device string `json:"device"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.recorder.StartRecording(request.Device); err != nil {
		if errors.Is(err, audio.ErrNoInputDevice) {
			http.Error(w, fmt.Sprintf("Failed to start recording: %v", err), http.StatusInternalServerError)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to start recording: %v", err), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "recording",
	})
}

// handleRecordStop handles POST /api/record/stop
func (h *Handler) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.recorder == nil {
		http.Error(w, "Recording manager not available", http.StatusServiceUnavailable)
		return
	}

	if err := h.recorder.StopRecording(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to stop recording: %v", err), http.StatusConflict)
		return
	}

	// セットアップ中の録音テストはAPI経由で行われる
	if h.wizard != nil && !h.wizard.IsTestRecordingDone() {
		if err := h.wizard.MarkTestRecordingDone(); err != nil {
			h.log.Warn("Failed to mark test recording: %v", err)
		}
	}

	// 文字起こしはバックグラウンドで進む。結果は /api/status で取得する
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "processing",
	})
}

// handleDictionary handles GET and PUT /api/dictionary
func (h *Handler) handleDictionary(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getDictionary(w, r)
	case http.MethodPut:
		h.putDictionary(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getDictionary returns the replacement words and the most frequent
// learned terms
func (h *Handler) getDictionary(w http.ResponseWriter, r *http.Request) {
	if h.dict == nil {
		http.Error(w, "Dictionary not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"words":          h.dict.Words(),
		"frequent_terms": h.dict.TopTerms(frequentTermCount),
	})
}

// putDictionary adds replacement words and persists the dictionary
func (h *Handler) putDictionary(w http.ResponseWriter, r *http.Request) {
	if h.dict == nil {
		http.Error(w, "Dictionary not available", http.StatusServiceUnavailable)
		return
	}

	var request struct {
		Words map[string]string `json:"words"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(request.Words) == 0 {
		http.Error(w, "No words to add", http.StatusBadRequest)
		return
	}

	for original := range request.Words {
		if original == "" {
			http.Error(w, "Word cannot be empty", http.StatusBadRequest)
			return
		}
	}

	for original, replacement := range request.Words {
		h.dict.AddWord(original, replacement)
	}

	if err := h.dict.Save(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save dictionary: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
		"count":  h.dict.Len(),
	})
}

// conflictReport describes one known desktop shortcut that overlaps
type conflictReport struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Shortcut    string `json:"shortcut"`
}

// handleHotkeyValidate handles POST /api/hotkey/validate
func (h *Handler) handleHotkeyValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Shortcut string `json:"shortcut"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.Shortcut == "" {
		http.Error(w, "Missing shortcut", http.StatusBadRequest)
		return
	}

	mods, key, err := hotkey.ParseShortcut(request.Shortcut)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"valid":     false,
			"error":     err.Error(),
			"conflicts": []conflictReport{},
		})
		return
	}

	canonical := hotkey.FormatHotkey(mods, key)

	conflicts := []conflictReport{}
	for _, c := range hotkey.CheckConflicts(mods, key) {
		conflicts = append(conflicts, conflictReport{
			Name:        c.Name,
			Description: c.Description,
			Shortcut:    hotkey.FormatHotkey(c.Modifiers, c.Key),
		})
	}

	response := map[string]interface{}{
		"valid":     true,
		"canonical": canonical,
		"conflicts": conflicts,
	}

	// 既存のショートカット設定との重複も知らせる
	if h.config != nil {
		cfg := h.config.Clone()
		configured := []struct {
			action   hotkey.Action
			shortcut string
		}{
			{hotkey.ActionToggleRecording, cfg.Shortcuts.ToggleRecording},
			{hotkey.ActionCopyTranscript, cfg.Shortcuts.CopyToClipboard},
			{hotkey.ActionClearTranscript, cfg.Shortcuts.ClearTranscript},
			{hotkey.ActionPasteTranscript, cfg.Shortcuts.AutoPaste},
		}
		for _, entry := range configured {
			otherMods, otherKey, err := hotkey.ParseShortcut(entry.shortcut)
			if err != nil {
				continue
			}
			if hotkey.FormatHotkey(otherMods, otherKey) == canonical {
				response["duplicate_of"] = entry.action.String()
				break
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSetup handles GET /api/setup
func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.wizard == nil {
		http.Error(w, "Setup wizard not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"first_run":       h.wizard.IsFirstRun(),
		"setup_completed": h.wizard.IsSetupCompleted(),
		"show_wizard":     h.wizard.ShouldShowWizard(),
		"progress":        h.wizard.GetProgress(h.config),
	})
}
