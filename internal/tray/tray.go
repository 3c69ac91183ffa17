package tray

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/getlantern/systray"

	"github.com/yomogy/kikitori/internal/i18n"
	"github.com/yomogy/kikitori/internal/logger"
)

// State represents the application state shown in the tray
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
)

// Manager manages the system tray icon and menu
type Manager struct {
	stateMutex sync.RWMutex
	state      State
	ready      bool

	onReadyFn      func()
	onToggle       func()
	onSettings     func()
	onDeviceSelect func(name string)
	onQuit         func()

	log *logger.Logger

	toggleItem   *systray.MenuItem
	devicesItem  *systray.MenuItem
	settingsItem *systray.MenuItem
	quitItem     *systray.MenuItem

	deviceMu        sync.Mutex
	deviceMenuItems []*systray.MenuItem
	deviceCancels   []context.CancelFunc

	icons struct {
		idle         []byte
		recording    []byte
		transcribing []byte
	}
}

// Config holds tray manager configuration. Logger is required.
type Config struct {
	OnReady        func() // Called once the menu is built
	OnToggle       func() // Called when the toggle recording item is clicked
	OnSettings     func() // Called when the settings item is clicked
	OnDeviceSelect func(name string)
	OnQuit         func()
	Logger         *logger.Logger
}

const appName = "Kikitori"

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	m := &Manager{
		state:          StateIdle,
		onReadyFn:      config.OnReady,
		onToggle:       config.OnToggle,
		onSettings:     config.OnSettings,
		onDeviceSelect: config.OnDeviceSelect,
		onQuit:         config.OnQuit,
		log:            config.Logger,
	}

	m.icons.idle = m.loadIcon("idle.png", builtinIdleIcon())
	m.icons.recording = m.loadIcon("recording.png", builtinRecordingIcon())
	m.icons.transcribing = m.loadIcon("transcribing.png", builtinTranscribingIcon())

	return m
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// onReady builds the menu once systray is up
func (m *Manager) onReady() {
	m.toggleItem = systray.AddMenuItem(i18n.T("menu.toggle_recording"), "Start or stop recording")
	m.devicesItem = systray.AddMenuItem(i18n.T("menu.devices"), "Select input device")
	m.settingsItem = systray.AddMenuItem(i18n.T("menu.settings"), "Open the settings page")

	systray.AddSeparator()

	m.quitItem = systray.AddMenuItem(i18n.T("menu.quit"), "Quit the application")

	m.stateMutex.Lock()
	m.ready = true
	m.updateIcon()
	m.stateMutex.Unlock()

	go m.handleMenuEvents()

	if m.onReadyFn != nil {
		m.onReadyFn()
	}
}

// onExit stops the device click watchers when systray tears down
func (m *Manager) onExit() {
	m.deviceMu.Lock()
	for _, cancel := range m.deviceCancels {
		cancel()
	}
	m.deviceCancels = nil
	m.deviceMu.Unlock()
}

// handleMenuEvents dispatches clicks on the fixed menu items
func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.toggleItem.ClickedCh:
			if m.onToggle != nil {
				m.onToggle()
			}
		case <-m.settingsItem.ClickedCh:
			if m.onSettings != nil {
				m.onSettings()
			}
		case <-m.quitItem.ClickedCh:
			if m.onQuit != nil {
				m.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

// SetState updates the tray icon based on the current state.
// Before the tray is ready the state is only recorded and applied later.
func (m *Manager) SetState(state State) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.state = state
	if m.ready {
		m.updateIcon()
	}
}

// updateIcon applies the icon and tooltip for the current state.
// Caller must hold stateMutex.
func (m *Manager) updateIcon() {
	icon, status := m.icons.idle, "status.idle"
	switch m.state {
	case StateRecording:
		icon, status = m.icons.recording, "status.recording"
	case StateTranscribing:
		icon, status = m.icons.transcribing, "status.transcribing"
	}
	systray.SetIcon(icon)
	systray.SetTooltip(appName + " - " + i18n.T(status))
}

// RefreshLabels re-applies localized menu titles after a language change
func (m *Manager) RefreshLabels() {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	if !m.ready {
		return
	}
	m.toggleItem.SetTitle(i18n.T("menu.toggle_recording"))
	m.devicesItem.SetTitle(i18n.T("menu.devices"))
	m.settingsItem.SetTitle(i18n.T("menu.settings"))
	m.quitItem.SetTitle(i18n.T("menu.quit"))
	m.updateIcon()
}

// Device represents an audio device for the menu
type Device struct {
	Name      string
	IsDefault bool
	IsCurrent bool
}

// UpdateDeviceMenu replaces the device submenu with the given devices
func (m *Manager) UpdateDeviceMenu(devices []Device) {
	if m.devicesItem == nil {
		return
	}

	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()

	// Stop the click watchers of the previous menu generation
	for _, cancel := range m.deviceCancels {
		cancel()
	}
	m.deviceCancels = nil

	// systrayは項目を削除できないため古い項目は非表示にする
	for _, item := range m.deviceMenuItems {
		item.Hide()
	}
	m.deviceMenuItems = nil

	for _, device := range devices {
		title := device.Name
		if device.IsCurrent {
			title = "✓ " + device.Name
		}

		tooltip := ""
		if device.IsDefault {
			tooltip = "System default"
		}

		item := m.devicesItem.AddSubMenuItem(title, tooltip)
		m.deviceMenuItems = append(m.deviceMenuItems, item)

		ctx, cancel := context.WithCancel(context.Background())
		m.deviceCancels = append(m.deviceCancels, cancel)
		go m.watchDeviceClicks(ctx, item, device.Name)
	}
}

// watchDeviceClicks forwards clicks on one device item until cancelled
func (m *Manager) watchDeviceClicks(ctx context.Context, item *systray.MenuItem, name string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-item.ClickedCh:
			if m.onDeviceSelect != nil {
				m.onDeviceSelect(name)
			}
		}
	}
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

// loadIcon loads an icon from assets/icon/ next to the executable.
// When the file is missing the built-in placeholder is used instead.
func (m *Manager) loadIcon(filename string, builtin []byte) []byte {
	exe, err := os.Executable()
	if err != nil {
		return builtin
	}

	iconPath := filepath.Join(filepath.Dir(exe), "assets", "icon", filename)
	data, err := os.ReadFile(iconPath)
	if err != nil {
		m.log.Debug("Icon file %s not found, using built-in icon", iconPath)
		return builtin
	}

	return data
}

// builtinIdleIcon returns the placeholder icon data for the idle state
func builtinIdleIcon() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x18, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xff, 0xff, 0x3f, 0x03, 0x00, 0x00,
		0x00, 0xff, 0xff, 0x03, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60,
		0x82,
	}
}

// builtinRecordingIcon returns the placeholder icon data for the recording state
func builtinRecordingIcon() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xc0, 0xc0, 0xc0, 0xf0, 0x9f,
		0x81, 0x81, 0x81, 0x81, 0xff, 0x19, 0x18, 0x18,
		0x18, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0x03,
		0x00, 0x0c, 0x10, 0x02, 0x01, 0x8b, 0xd5, 0xf8,
		0x23, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
		0x44, 0xae, 0x42, 0x60, 0x82,
	}
}

// builtinTranscribingIcon returns the placeholder icon data for the transcribing state
func builtinTranscribingIcon() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xf0, 0x9f, 0xc1, 0xc8, 0xc0,
		0xc0, 0xc0, 0xff, 0x0c, 0x0c, 0x0c, 0xfc, 0xcf,
		0xc0, 0xc0, 0xc0, 0x00, 0x00, 0x00, 0x00, 0xff,
		0xff, 0x03, 0x00, 0x0c, 0x50, 0x02, 0x01, 0x3e,
		0x0a, 0xe4, 0x5b, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
	}
}
