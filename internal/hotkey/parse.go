package hotkey

import (
	"fmt"
	"strings"

	"golang.design/x/hotkey"
)

// modifierNames maps config spellings to X11 modifiers
var modifierNames = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"shift":   hotkey.ModShift,
	"alt":     hotkey.Mod1,
	"option":  hotkey.Mod1,
	"super":   hotkey.Mod4,
	"win":     hotkey.Mod4,
	"cmd":     hotkey.Mod4,
	"meta":    hotkey.Mod4,
}

// keyNames maps config spellings to keys. Single letters and digits are
// handled separately in parseKey.
var keyNames = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"enter":  hotkey.KeyReturn,
	"return": hotkey.KeyReturn,
	"esc":    hotkey.KeyEscape,
	"escape": hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
	"delete": hotkey.KeyDelete,
	"up":     hotkey.KeyUp,
	"down":   hotkey.KeyDown,
	"left":   hotkey.KeyLeft,
	"right":  hotkey.KeyRight,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}

// ParseShortcut parses a config string like "Ctrl+Shift+C" into modifiers
// and a key. The last segment is the key, everything before it a modifier.
// At least one modifier is required so a bare key cannot be swallowed
// globally.
func ParseShortcut(s string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(s, "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return nil, 0, fmt.Errorf("empty shortcut")
	}
	if len(parts) < 2 {
		return nil, 0, fmt.Errorf("shortcut %q must include at least one modifier", s)
	}

	var mods []hotkey.Modifier
	seen := make(map[hotkey.Modifier]bool)
	for _, part := range parts[:len(parts)-1] {
		mod, ok := modifierNames[strings.ToLower(part)]
		if !ok {
			return nil, 0, fmt.Errorf("unknown modifier %q in shortcut %q", part, s)
		}
		if seen[mod] {
			continue
		}
		seen[mod] = true
		mods = append(mods, mod)
	}

	key, err := parseKey(parts[len(parts)-1])
	if err != nil {
		return nil, 0, fmt.Errorf("invalid shortcut %q: %w", s, err)
	}

	return mods, key, nil
}

// parseKey resolves a single key name
func parseKey(name string) (hotkey.Key, error) {
	lower := strings.ToLower(name)

	if key, ok := keyNames[lower]; ok {
		return key, nil
	}

	if len(lower) == 1 {
		c := lower[0]
		switch {
		case c >= 'a' && c <= 'z':
			return hotkey.KeyA + hotkey.Key(c-'a'), nil
		case c >= '0' && c <= '9':
			return hotkey.Key0 + hotkey.Key(c-'0'), nil
		}
	}

	return 0, fmt.Errorf("unknown key %q", name)
}

// ParseBinding parses a shortcut string into a Binding for the given action
func ParseBinding(action Action, shortcut string) (Binding, error) {
	mods, key, err := ParseShortcut(shortcut)
	if err != nil {
		return Binding{}, err
	}
	return Binding{Action: action, Modifiers: mods, Key: key}, nil
}

// ParseShortcuts builds the bindings for the four configured shortcuts.
// It fails if any shortcut does not parse or if two shortcuts share a key
// combination, so callers can validate a whole shortcut set up front.
func ParseShortcuts(toggle, copy, clear, paste string) ([]Binding, error) {
	specs := []struct {
		action   Action
		shortcut string
	}{
		{ActionToggleRecording, toggle},
		{ActionCopyTranscript, copy},
		{ActionClearTranscript, clear},
		{ActionPasteTranscript, paste},
	}

	bindings := make([]Binding, 0, len(specs))
	for _, spec := range specs {
		b, err := ParseBinding(spec.action, spec.shortcut)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.action, err)
		}
		bindings = append(bindings, b)
	}

	if first, second, ok := findDuplicate(bindings); ok {
		return nil, fmt.Errorf("shortcut %s is bound to both %s and %s",
			FormatHotkey(first.Modifiers, first.Key), first.Action, second.Action)
	}

	return bindings, nil
}
