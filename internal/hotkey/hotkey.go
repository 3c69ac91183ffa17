package hotkey

import (
	"fmt"
	"sync"

	"golang.design/x/hotkey"
)

// Action identifies what a registered shortcut triggers
type Action int

const (
	// ActionToggleRecording starts or stops a recording
	ActionToggleRecording Action = iota
	// ActionCopyTranscript copies the last transcript to the clipboard
	ActionCopyTranscript
	// ActionClearTranscript clears the last transcript
	ActionClearTranscript
	// ActionPasteTranscript pastes the last transcript into the active window
	ActionPasteTranscript
)

// String returns the config-style name of the action
func (a Action) String() string {
	switch a {
	case ActionToggleRecording:
		return "toggle_recording"
	case ActionCopyTranscript:
		return "copy_to_clipboard"
	case ActionClearTranscript:
		return "clear_transcript"
	case ActionPasteTranscript:
		return "auto_paste"
	default:
		return "unknown"
	}
}

// Event represents a triggered shortcut
type Event struct {
	Action Action
}

// Binding pairs an action with its key combination
type Binding struct {
	Action    Action
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
}

// Manager manages global hotkey registration and events. All registered
// shortcuts feed one shared event channel.
type Manager struct {
	mu        sync.Mutex
	hks       map[Action]*hotkey.Hotkey
	eventChan chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
}

// New creates a new hotkey manager
func New() *Manager {
	return &Manager{
		eventChan: make(chan Event, 10),
		stopChan:  make(chan struct{}),
	}
}

// Register registers the given bindings with the system. Duplicate key
// combinations across bindings are rejected before anything is registered.
// On a partial registration failure the already-registered shortcuts are
// unregistered again.
func (m *Manager) Register(bindings []Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkeys are already running, call Close() first")
	}
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings to register")
	}

	if first, second, ok := findDuplicate(bindings); ok {
		return fmt.Errorf("shortcut %s is bound to both %s and %s",
			FormatHotkey(first.Modifiers, first.Key), first.Action, second.Action)
	}

	// Recreate channels (they may have been closed by a previous Close())
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan Event, 10)
	m.hks = make(map[Action]*hotkey.Hotkey, len(bindings))

	for _, b := range bindings {
		hk := hotkey.New(b.Modifiers, b.Key)
		if err := hk.Register(); err != nil {
			// Roll back everything registered so far
			for _, prev := range m.hks {
				prev.Unregister()
			}
			m.hks = nil
			return fmt.Errorf("failed to register %s (%s): %w",
				b.Action, FormatHotkey(b.Modifiers, b.Key), err)
		}
		m.hks[b.Action] = hk
	}

	m.running = true

	for action, hk := range m.hks {
		m.wg.Add(1)
		go m.listen(action, hk, m.eventChan, m.stopChan)
	}

	return nil
}

// listen forwards keydown events for one shortcut to the shared channel
func (m *Manager) listen(action Action, hk *hotkey.Hotkey, events chan<- Event, stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-hk.Keydown():
			select {
			case events <- Event{Action: action}:
			case <-stop:
				return
			}

		case <-stop:
			return
		}
	}
}

// Events returns the event channel for receiving triggered shortcuts
func (m *Manager) Events() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventChan
}

// Close unregisters all hotkeys and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var unregisterErr error

	// Signal the listeners to stop
	close(m.stopChan)

	// Wait for the listener goroutines to finish
	m.wg.Wait()

	// 注意: エラーが発生しても続行し、必ずクリーンアップを実行する
	for action, hk := range m.hks {
		if err := hk.Unregister(); err != nil && unregisterErr == nil {
			unregisterErr = fmt.Errorf("failed to unregister %s: %w", action, err)
		}
	}
	m.hks = nil

	// Close event channel to notify consumers of shutdown
	if m.eventChan != nil {
		close(m.eventChan)
		m.eventChan = nil
	}

	// 必ず running フラグを false にセット
	// これにより、Unregister() が失敗しても次の Register() が可能になる
	m.running = false

	return unregisterErr
}

// IsRunning returns whether any hotkeys are currently registered
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// findDuplicate returns the first pair of bindings sharing a key combination
func findDuplicate(bindings []Binding) (Binding, Binding, bool) {
	for i := 0; i < len(bindings); i++ {
		for j := i + 1; j < len(bindings); j++ {
			if hotkeyMatches(bindings[i].Modifiers, bindings[i].Key,
				bindings[j].Modifiers, bindings[j].Key) {
				return bindings[i], bindings[j], true
			}
		}
	}
	return Binding{}, Binding{}, false
}
