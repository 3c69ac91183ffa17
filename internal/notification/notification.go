package notification

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/yomogy/kikitori/internal/i18n"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeWarning is a warning notification
	TypeWarning NotificationType = "warning"
	// TypeError is an error notification
	TypeError NotificationType = "error"
	// TypeSuccess is a success notification
	TypeSuccess NotificationType = "success"
)

// Beep frequencies for recording start/stop
const (
	startBeepFreq = 880.0
	stopBeepFreq  = 440.0
	beepDuration  = 150
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// NotificationManager handles sending notifications to the user
type NotificationManager struct {
	appName string

	mu         sync.RWMutex
	enabled    bool
	playSounds bool
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(appName string, enabled, playSounds bool) *NotificationManager {
	return &NotificationManager{
		appName:    appName,
		enabled:    enabled,
		playSounds: playSounds,
	}
}

// SetEnabled toggles desktop notifications at runtime
func (nm *NotificationManager) SetEnabled(enabled bool) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.enabled = enabled
}

// SetPlaySounds toggles recording sounds at runtime
func (nm *NotificationManager) SetPlaySounds(playSounds bool) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.playSounds = playSounds
}

// Send sends a desktop notification. With notifications disabled it is a
// silent no-op.
func (nm *NotificationManager) Send(notification *Notification) error {
	if notification == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	nm.mu.RLock()
	enabled := nm.enabled
	nm.mu.RUnlock()
	if !enabled {
		return nil
	}

	if notification.Type == TypeError {
		if err := beeep.Alert(notification.Title, notification.Message, ""); err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
		return nil
	}

	if err := beeep.Notify(notification.Title, notification.Message, ""); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

// SendInfo sends an informational notification
func (nm *NotificationManager) SendInfo(title, message string) error {
	return nm.Send(&Notification{
		Title:   title,
		Message: message,
		Type:    TypeInfo,
	})
}

// SendWarning sends a warning notification
func (nm *NotificationManager) SendWarning(title, message string) error {
	return nm.Send(&Notification{
		Title:   title,
		Message: message,
		Type:    TypeWarning,
	})
}

// SendError sends an error notification
func (nm *NotificationManager) SendError(title, message string) error {
	return nm.Send(&Notification{
		Title:   title,
		Message: message,
		Type:    TypeError,
	})
}

// SendSuccess sends a success notification
func (nm *NotificationManager) SendSuccess(title, message string) error {
	return nm.Send(&Notification{
		Title:   title,
		Message: message,
		Type:    TypeSuccess,
	})
}

// beep plays a short tone when sounds are enabled. Beep failures are
// ignored: a missing sound device should never break recording.
func (nm *NotificationManager) beep(freq float64) {
	nm.mu.RLock()
	playSounds := nm.playSounds
	nm.mu.RUnlock()

	if playSounds {
		_ = beeep.Beep(freq, beepDuration)
	}
}

// RecordingStarted sends a notification that recording has started
func (nm *NotificationManager) RecordingStarted() error {
	nm.beep(startBeepFreq)
	return nm.SendInfo(nm.appName, i18n.T("notification.recording_started"))
}

// RecordingStopped sends a notification that recording has stopped
func (nm *NotificationManager) RecordingStopped() error {
	nm.beep(stopBeepFreq)
	return nm.SendInfo(nm.appName, i18n.T("notification.recording_stopped"))
}

// TranscriptionComplete sends a notification that transcription is complete
func (nm *NotificationManager) TranscriptionComplete() error {
	return nm.SendSuccess(nm.appName, i18n.T("notification.transcription_complete"))
}

// PasteComplete sends a notification that text has been pasted
func (nm *NotificationManager) PasteComplete() error {
	return nm.SendSuccess(nm.appName, i18n.T("notification.paste_complete"))
}

// TranscriptCopied sends a notification that the transcript was copied
func (nm *NotificationManager) TranscriptCopied() error {
	return nm.SendInfo(nm.appName, i18n.T("notification.transcript_copied"))
}

// TranscriptCleared sends a notification that the transcript was cleared
func (nm *NotificationManager) TranscriptCleared() error {
	return nm.SendInfo(nm.appName, i18n.T("notification.transcript_cleared"))
}

// RecordingFailed sends a notification that recording failed
func (nm *NotificationManager) RecordingFailed(reason string) error {
	return nm.SendError(nm.appName,
		i18n.TF("error.recording_failed", map[string]string{"reason": reason}))
}

// TranscriptionFailed sends a notification that transcription failed
func (nm *NotificationManager) TranscriptionFailed(reason string) error {
	return nm.SendError(nm.appName,
		i18n.TF("error.transcription_failed", map[string]string{"reason": reason}))
}

// PasteFailed sends a notification that pasting failed
func (nm *NotificationManager) PasteFailed(reason string) error {
	return nm.SendError(nm.appName,
		i18n.TF("error.paste_failed", map[string]string{"reason": reason}))
}

// RecordingTimeExceeded sends a notification that recording time has exceeded the limit
func (nm *NotificationManager) RecordingTimeExceeded() error {
	return nm.SendWarning(nm.appName, i18n.T("notification.time_exceeded"))
}

// DeviceNotFound sends a notification that no audio device was found
func (nm *NotificationManager) DeviceNotFound() error {
	return nm.SendError(nm.appName, i18n.T("error.no_input_device"))
}

// APIKeyMissing sends a notification that the API key is not configured
func (nm *NotificationManager) APIKeyMissing() error {
	return nm.SendError(nm.appName, i18n.T("error.api_key_missing"))
}
