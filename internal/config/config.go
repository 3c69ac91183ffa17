package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Config holds application configuration. The toml tags drive the config
// file, the json tags drive the settings API.
type Config struct {
	APIKey    string          `toml:"api_key" json:"api_key"`
	TempDir   string          `toml:"temp_dir" json:"temp_dir"`
	Recording RecordingConfig `toml:"recording" json:"recording"`
	UI        UIConfig        `toml:"ui" json:"ui"`
	Shortcuts ShortcutConfig  `toml:"shortcuts" json:"shortcuts"`
	mu        sync.RWMutex
}

// RecordingConfig holds audio capture configuration
type RecordingConfig struct {
	MaxDurationSecs         int    `toml:"max_duration_secs" json:"max_duration_secs"`
	SampleRate              int    `toml:"sample_rate" json:"sample_rate"`     // 0 means use device default
	SampleFormat            string `toml:"sample_format" json:"sample_format"` // "f32" or "i16"
	InputDevice             string `toml:"input_device" json:"input_device"`   // "" means system default device
	DisableSilenceDetection bool   `toml:"disable_silence_detection" json:"disable_silence_detection"`
	PlaySounds              bool   `toml:"play_sounds" json:"play_sounds"`
}

// UIConfig holds user interface configuration
type UIConfig struct {
	Language             string `toml:"language" json:"language"` // "ja" or "en"
	NotificationsEnabled bool   `toml:"notifications_enabled" json:"notifications_enabled"`
}

// ShortcutConfig holds global shortcut configuration
type ShortcutConfig struct {
	ToggleRecording string `toml:"toggle_recording" json:"toggle_recording"`
	CopyToClipboard string `toml:"copy_to_clipboard" json:"copy_to_clipboard"`
	ClearTranscript string `toml:"clear_transcript" json:"clear_transcript"`
	AutoPaste       string `toml:"auto_paste" json:"auto_paste"`
}

// IsValidSampleFormat checks if the sample format is supported
func IsValidSampleFormat(format string) bool {
	return format == "f32" || format == "i16"
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIKey:  "", // Empty by default - user must specify
		TempDir: filepath.Join(os.TempDir(), "kikitori"),
		Recording: RecordingConfig{
			MaxDurationSecs:         300, // 5 minutes
			SampleRate:              44100,
			SampleFormat:            "f32",
			InputDevice:             "", // System default device
			DisableSilenceDetection: false,
			PlaySounds:              true,
		},
		UI: UIConfig{
			Language:             "en",
			NotificationsEnabled: true,
		},
		Shortcuts: ShortcutConfig{
			ToggleRecording: "Shift+Space",
			CopyToClipboard: "Ctrl+Shift+C",
			ClearTranscript: "Ctrl+Shift+X",
			AutoPaste:       "Ctrl+Shift+V",
		},
	}
}

// Load loads configuration from the specified path
func Load(path string) (*Config, error) {
	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 未指定の項目はデフォルト値のまま残す
	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 空の設定値をデフォルト値で補完
	if config.Recording.SampleFormat == "" {
		config.Recording.SampleFormat = "f32"
	}
	if config.Shortcuts.ToggleRecording == "" {
		config.Shortcuts.ToggleRecording = "Shift+Space"
	}

	return config, nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to TOML
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	configDir, _ := os.UserConfigDir()
	return filepath.Join(configDir, "kikitori", "config.toml")
}

// Update updates configuration fields
func (c *Config) Update(updates map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Apply updates
	for key, value := range updates {
		switch key {
		case "api_key":
			if v, ok := value.(string); ok {
				c.APIKey = v
			}
		case "temp_dir":
			if v, ok := value.(string); ok {
				c.TempDir = v
			}
		case "recording":
			if v, ok := value.(map[string]interface{}); ok {
				// RecordingConfigの各フィールドを更新
				if d, ok := v["max_duration_secs"].(float64); ok {
					if d <= 0 {
						return fmt.Errorf("invalid max_duration_secs: %v", d)
					}
					c.Recording.MaxDurationSecs = int(d)
				}
				if r, ok := v["sample_rate"].(float64); ok {
					c.Recording.SampleRate = int(r)
				}
				if f, ok := v["sample_format"].(string); ok {
					if !IsValidSampleFormat(f) {
						return fmt.Errorf("invalid sample_format: %s", f)
					}
					c.Recording.SampleFormat = f
				}
				if dev, ok := v["input_device"].(string); ok {
					c.Recording.InputDevice = dev
				}
				if ds, ok := v["disable_silence_detection"].(bool); ok {
					c.Recording.DisableSilenceDetection = ds
				}
				if ps, ok := v["play_sounds"].(bool); ok {
					c.Recording.PlaySounds = ps
				}
			}
		case "ui":
			if v, ok := value.(map[string]interface{}); ok {
				if lang, ok := v["language"].(string); ok {
					if lang != "ja" && lang != "en" {
						return fmt.Errorf("invalid language: %s", lang)
					}
					c.UI.Language = lang
				}
				if ne, ok := v["notifications_enabled"].(bool); ok {
					c.UI.NotificationsEnabled = ne
				}
			}
		case "shortcuts":
			if v, ok := value.(map[string]interface{}); ok {
				if s, ok := v["toggle_recording"].(string); ok {
					c.Shortcuts.ToggleRecording = s
				}
				if s, ok := v["copy_to_clipboard"].(string); ok {
					c.Shortcuts.CopyToClipboard = s
				}
				if s, ok := v["clear_transcript"].(string); ok {
					c.Shortcuts.ClearTranscript = s
				}
				if s, ok := v["auto_paste"].(string); ok {
					c.Shortcuts.AutoPaste = s
				}
			}
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		APIKey:    c.APIKey,
		TempDir:   c.TempDir,
		Recording: c.Recording,
		UI:        c.UI,
		Shortcuts: c.Shortcuts,
	}
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	// Return absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// GetTempDir returns the expanded recording output directory
func (c *Config) GetTempDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ExpandPath(c.TempDir)
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Validate temp dir
	if c.TempDir == "" {
		return fmt.Errorf("temp_dir cannot be empty")
	}

	// Validate max duration
	if c.Recording.MaxDurationSecs <= 0 || c.Recording.MaxDurationSecs > 3600 {
		return fmt.Errorf("invalid max_duration_secs: %d (must be between 1 and 3600 seconds)", c.Recording.MaxDurationSecs)
	}

	// Validate sample rate (0 means device default)
	if c.Recording.SampleRate != 0 && (c.Recording.SampleRate < 8000 || c.Recording.SampleRate > 192000) {
		return fmt.Errorf("invalid sample_rate: %d (must be 0 or between 8000 and 192000 Hz)", c.Recording.SampleRate)
	}

	// Validate sample format
	if !IsValidSampleFormat(c.Recording.SampleFormat) {
		return fmt.Errorf("invalid sample_format: %s (must be 'f32' or 'i16')", c.Recording.SampleFormat)
	}

	// Validate UI language
	if c.UI.Language != "ja" && c.UI.Language != "en" {
		return fmt.Errorf("invalid language: %s (must be 'ja' or 'en')", c.UI.Language)
	}

	// Validate toggle shortcut
	if c.Shortcuts.ToggleRecording == "" {
		return fmt.Errorf("toggle_recording shortcut cannot be empty")
	}

	// API key validation is optional (can be empty for first run)
	// Transcription is unavailable until it is set

	return nil
}
