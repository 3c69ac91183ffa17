package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yomogy/kikitori/internal/config"
	"github.com/yomogy/kikitori/internal/hotkey"
)

// SetupWizard tracks the initial application setup: a default config file
// written on first run, and flag files for the milestones the settings UI
// walks through.
type SetupWizard struct {
	configDir     string
	configPath    string
	setupFlagFile string
	testFlagFile  string
	mu            sync.RWMutex
}

// NewSetupWizard creates a setup wizard for the default config location
func NewSetupWizard() (*SetupWizard, error) {
	return NewSetupWizardAt(config.GetConfigPath())
}

// NewSetupWizardAt creates a setup wizard for an explicit config path,
// creating the config directory if needed
func NewSetupWizardAt(configPath string) (*SetupWizard, error) {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &SetupWizard{
		configDir:     dir,
		configPath:    configPath,
		setupFlagFile: filepath.Join(dir, ".setup_completed"),
		testFlagFile:  filepath.Join(dir, ".test_recording_done"),
	}, nil
}

// IsFirstRun reports whether no config file has been written yet
func (w *SetupWizard) IsFirstRun() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !fileExists(w.configPath)
}

// EnsureDefaults writes the default configuration if no config file
// exists yet. Returns true when it wrote one.
func (w *SetupWizard) EnsureDefaults() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := os.Stat(w.configPath); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := config.DefaultConfig().Save(w.configPath); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}

// IsSetupCompleted reports whether the settings UI finished its walkthrough
func (w *SetupWizard) IsSetupCompleted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return fileExists(w.setupFlagFile)
}

// MarkSetupCompleted records that the walkthrough finished
func (w *SetupWizard) MarkSetupCompleted() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := touchFlag(w.setupFlagFile); err != nil {
		return fmt.Errorf("failed to create setup flag file: %w", err)
	}
	return nil
}

// IsTestRecordingDone reports whether a test recording succeeded once
func (w *SetupWizard) IsTestRecordingDone() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return fileExists(w.testFlagFile)
}

// MarkTestRecordingDone records a successful test recording
func (w *SetupWizard) MarkTestRecordingDone() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := touchFlag(w.testFlagFile); err != nil {
		return fmt.Errorf("failed to create test recording flag file: %w", err)
	}
	return nil
}

// ShouldShowWizard reports whether the settings page should open on the
// setup wizard: nothing is configured yet, or the walkthrough never
// finished.
func (w *SetupWizard) ShouldShowWizard() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !fileExists(w.configPath) || !fileExists(w.setupFlagFile)
}

// SetupProgress reports the completion status of each setup step
type SetupProgress struct {
	APIKeySet         bool `json:"api_key_set"`
	InputDeviceChosen bool `json:"input_device_chosen"`
	ShortcutsValid    bool `json:"shortcuts_valid"`
	TestRecordingDone bool `json:"test_recording_done"`
}

// GetProgress computes the current setup progress from the configuration
// and the wizard's flag files
func (w *SetupWizard) GetProgress(cfg *config.Config) SetupProgress {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var progress SetupProgress

	if cfg != nil {
		c := cfg.Clone()
		progress.APIKeySet = c.APIKey != ""
		progress.InputDeviceChosen = c.Recording.InputDevice != ""

		_, err := hotkey.ParseShortcuts(
			c.Shortcuts.ToggleRecording,
			c.Shortcuts.CopyToClipboard,
			c.Shortcuts.ClearTranscript,
			c.Shortcuts.AutoPaste,
		)
		progress.ShortcutsValid = err == nil
	}

	progress.TestRecordingDone = fileExists(w.testFlagFile)
	return progress
}

// ResetSetup clears the flag files so the wizard runs again
func (w *SetupWizard) ResetSetup() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := clearFlag(w.setupFlagFile); err != nil {
		return fmt.Errorf("failed to remove setup flag file: %w", err)
	}
	if err := clearFlag(w.testFlagFile); err != nil {
		return fmt.Errorf("failed to remove test recording flag file: %w", err)
	}
	return nil
}

// GetConfigDir returns the configuration directory
func (w *SetupWizard) GetConfigDir() string {
	return w.configDir
}

// GetConfigPath returns the configuration file path
func (w *SetupWizard) GetConfigPath() string {
	return w.configPath
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// touchFlag creates an empty flag file
func touchFlag(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// clearFlag removes a flag file, tolerating one that never existed
func clearFlag(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
