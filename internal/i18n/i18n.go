package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Language identifies a supported UI language
type Language string

// Supported UI languages
const (
	LanguageJapanese Language = "ja"
	LanguageEnglish  Language = "en"
)

// Translator resolves message keys against per-language catalogs. Keys
// missing from the current language fall back to English, then to the
// key itself.
type Translator struct {
	currentLanguage Language
	translations    map[Language]map[string]string
	mu              sync.RWMutex
}

// NewTranslator creates a translator seeded with the built-in catalogs
func NewTranslator(language Language) *Translator {
	return &Translator{
		currentLanguage: language,
		translations: map[Language]map[string]string{
			LanguageEnglish:  DefaultEnglishTranslations(),
			LanguageJapanese: DefaultJapaneseTranslations(),
		},
	}
}

// LoadTranslations replaces one language's catalog with JSON data
func (t *Translator) LoadTranslations(language Language, data []byte) error {
	var catalog map[string]string
	if err := json.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("failed to unmarshal translations: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.translations[language] = catalog
	return nil
}

// SetLanguage switches the current language
func (t *Translator) SetLanguage(language Language) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentLanguage = language
}

// GetLanguage returns the current language
func (t *Translator) GetLanguage() Language {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentLanguage
}

// Translate resolves key in the current language
func (t *Translator) Translate(key string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if text, ok := t.lookup(t.currentLanguage, key); ok {
		return text
	}
	if text, ok := t.lookup(LanguageEnglish, key); ok {
		return text
	}
	return key
}

// TranslateWithFormat resolves key and substitutes {name} placeholders
// with the given parameter values
func (t *Translator) TranslateWithFormat(key string, params map[string]string) string {
	text := t.Translate(key)
	if len(params) == 0 {
		return text
	}

	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// HasTranslation reports whether key exists in the current language
func (t *Translator) HasTranslation(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.lookup(t.currentLanguage, key)
	return ok
}

// lookup は呼び出し側でロックを取っている前提
func (t *Translator) lookup(lang Language, key string) (string, bool) {
	text, ok := t.translations[lang][key]
	return text, ok
}

// ValidateLanguage reports whether a language code is supported
func ValidateLanguage(language string) bool {
	switch Language(language) {
	case LanguageJapanese, LanguageEnglish:
		return true
	}
	return false
}

// DetectSystemLanguage picks the UI language from the locale environment
func DetectSystemLanguage() Language {
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		locale := os.Getenv(env)
		if locale == "" {
			continue
		}
		if strings.HasPrefix(locale, "ja") {
			return LanguageJapanese
		}
		return LanguageEnglish
	}
	return LanguageEnglish
}

// GlobalTranslator is the shared translator set up in main
var GlobalTranslator *Translator

// T translates using the global translator
func T(key string) string {
	if GlobalTranslator == nil {
		return key
	}
	return GlobalTranslator.Translate(key)
}

// TF translates with formatting using the global translator
func TF(key string, params map[string]string) string {
	if GlobalTranslator == nil {
		return key
	}
	return GlobalTranslator.TranslateWithFormat(key, params)
}

// DefaultEnglishTranslations returns the built-in English catalog
func DefaultEnglishTranslations() map[string]string {
	return map[string]string{
		// Menu items
		"menu.toggle_recording": "Start/Stop Recording",
		"menu.devices":          "Input Device",
		"menu.settings":         "Open Settings...",
		"menu.quit":             "Quit",

		// Status
		"status.idle":         "Idle",
		"status.recording":    "Recording",
		"status.transcribing": "Transcribing",

		// Notifications
		"notification.recording_started":      "Recording started",
		"notification.recording_stopped":      "Recording stopped",
		"notification.transcription_complete": "Transcription complete",
		"notification.paste_complete":         "Text pasted",
		"notification.time_exceeded":          "Recording reached the maximum duration and was stopped",
		"notification.transcript_copied":      "Transcript copied to clipboard",
		"notification.transcript_cleared":     "Transcript cleared",

		// Errors
		"error.no_input_device":      "No audio input device found",
		"error.recording_failed":     "Recording failed: {reason}",
		"error.transcription_failed": "Transcription failed: {reason}",
		"error.paste_failed":         "Paste failed: {reason}",
		"error.api_key_missing":      "API key is not configured. Open settings to add it.",
	}
}

// DefaultJapaneseTranslations returns the built-in Japanese catalog
func DefaultJapaneseTranslations() map[string]string {
	return map[string]string{
		// Menu items
		"menu.toggle_recording": "録音を開始/停止",
		"menu.devices":          "入力デバイス",
		"menu.settings":         "設定を開く...",
		"menu.quit":             "終了",

		// Status
		"status.idle":         "待機中",
		"status.recording":    "録音中",
		"status.transcribing": "文字起こし中",

		// Notifications
		"notification.recording_started":      "録音が開始されました",
		"notification.recording_stopped":      "録音が停止されました",
		"notification.transcription_complete": "文字起こしが完了しました",
		"notification.paste_complete":         "テキストが貼り付けられました",
		"notification.time_exceeded":          "録音が最大時間に達したため停止しました",
		"notification.transcript_copied":      "文字起こし結果をクリップボードにコピーしました",
		"notification.transcript_cleared":     "文字起こし結果をクリアしました",

		// Errors
		"error.no_input_device":      "オーディオ入力デバイスが見つかりません",
		"error.recording_failed":     "録音に失敗しました: {reason}",
		"error.transcription_failed": "文字起こしに失敗しました: {reason}",
		"error.paste_failed":         "貼り付けに失敗しました: {reason}",
		"error.api_key_missing":      "APIキーが設定されていません。設定画面から追加してください。",
	}
}
