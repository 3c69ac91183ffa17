package clipboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"
)

// boundaryWindow is how far splitText looks back for a natural break
const boundaryWindow = 50

// pasteSettleDelay gives the window system time to observe the new
// clipboard contents before the paste keystroke
const pasteSettleDelay = 10 * time.Millisecond

// Config holds clipboard manager configuration
type Config struct {
	RestoreTimeout time.Duration // Wait before putting the saved clipboard back (default: 500ms)
	SplitSize      int           // Longest chunk pasted in one operation, in runes (default: 500)
	SplitInterval  time.Duration // Pause between chunk pastes (default: 50ms)
}

// DefaultConfig returns the default clipboard configuration
func DefaultConfig() Config {
	return Config{
		RestoreTimeout: 500 * time.Millisecond,
		SplitSize:      500,
		SplitInterval:  50 * time.Millisecond,
	}
}

// Manager pastes transcripts through the clipboard and puts the user's
// previous clipboard contents back afterwards
type Manager struct {
	savedContent   string
	lastWritten    string
	restoreTimeout time.Duration
	splitSize      int
	splitInterval  time.Duration
}

// NewManager creates a new clipboard manager
func NewManager(config Config) *Manager {
	if config.SplitSize <= 0 {
		config.SplitSize = DefaultConfig().SplitSize
	}
	return &Manager{
		restoreTimeout: config.RestoreTimeout,
		splitSize:      config.SplitSize,
		splitInterval:  config.SplitInterval,
	}
}

// SaveClipboard remembers the current clipboard contents for a later restore
func (m *Manager) SaveClipboard() error {
	saved, err := robotgo.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read clipboard: %w", err)
	}
	m.savedContent = saved
	return nil
}

// SetClipboardContent copies text to the clipboard without pasting
func (m *Manager) SetClipboardContent(text string) error {
	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	m.lastWritten = text
	return nil
}

// RestoreClipboard puts the saved contents back after the paste window.
// A clipboard that no longer holds what we wrote means the user copied
// something in the meantime, that copy wins and nothing is restored.
func (m *Manager) RestoreClipboard() error {
	time.Sleep(m.restoreTimeout)

	if current, err := robotgo.ReadAll(); err == nil && current != m.lastWritten {
		return nil
	}

	robotgo.WriteAll(m.savedContent)
	return nil
}

// SafePaste types text into the focused window via the clipboard and a
// Ctrl+V tap, then restores whatever the clipboard held before
func (m *Manager) SafePaste(text string) error {
	if err := m.SaveClipboard(); err != nil {
		return fmt.Errorf("failed to save clipboard: %w", err)
	}

	if err := m.SetClipboardContent(text); err != nil {
		return err
	}
	time.Sleep(pasteSettleDelay)
	robotgo.KeyTap("v", "ctrl")

	return m.RestoreClipboard()
}

// SafePasteWithSplit pastes long text in chunks so applications with
// input length limits receive all of it
func (m *Manager) SafePasteWithSplit(text string) error {
	chunks := m.splitText(text)

	for i, chunk := range chunks {
		if i > 0 {
			time.Sleep(m.splitInterval)
		}
		if err := m.SafePaste(chunk); err != nil {
			return fmt.Errorf("failed to paste chunk %d: %w", i, err)
		}
	}
	return nil
}

// splitText cuts text into chunks of at most splitSize runes, preferring
// to break just after punctuation near the limit
func (m *Manager) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) <= m.splitSize {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + m.splitSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		if cut := lastBreakBefore(runes, start, end); cut > start {
			end = cut
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end
	}
	return chunks
}

// lastBreakBefore scans back from end for punctuation to break after.
// Returns the position just past the punctuation, or start when the
// window holds none.
func lastBreakBefore(runes []rune, start, end int) int {
	low := end - boundaryWindow
	if low < start {
		low = start
	}
	for i := end - 1; i >= low; i-- {
		switch runes[i] {
		case '。', '、', '.', ',', '\n':
			return i + 1
		}
	}
	return start
}

// PasteDirectly pastes text without saving or restoring the clipboard
func PasteDirectly(text string) error {
	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	time.Sleep(pasteSettleDelay)
	robotgo.KeyTap("v", "ctrl")
	return nil
}

// GetClipboardContent returns the current clipboard content
func GetClipboardContent() (string, error) {
	return robotgo.ReadAll()
}

// SetClipboardContent sets the clipboard content
func SetClipboardContent(text string) error {
	return robotgo.WriteAll(text)
}

// SplitTextBySentences splits text into sentences, keeping the closing
// punctuation with each sentence
func SplitTextBySentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		switch r {
		case '。', '.', '！', '!', '？', '?':
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
