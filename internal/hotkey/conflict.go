package hotkey

import (
	"strconv"
	"strings"

	"golang.design/x/hotkey"
)

// ConflictInfo represents information about a known shortcut conflict
type ConflictInfo struct {
	Name        string
	Description string
	Modifiers   []hotkey.Modifier
	Key         hotkey.Key
}

// knownConflicts lists shortcuts commonly taken by Linux desktops and
// terminal emulators. A match is a warning, not an error: Ctrl+Shift+C
// still works everywhere except inside a terminal window.
var knownConflicts = []ConflictInfo{
	{
		Name:        "Window Switcher",
		Description: "Alt+Tab switches between windows",
		Modifiers:   []hotkey.Modifier{hotkey.Mod1},
		Key:         hotkey.KeyTab,
	},
	{
		Name:        "Run Dialog",
		Description: "Alt+F2 opens the run dialog on GNOME",
		Modifiers:   []hotkey.Modifier{hotkey.Mod1},
		Key:         hotkey.KeyF2,
	},
	{
		Name:        "Terminal",
		Description: "Ctrl+Alt+T opens a terminal on GNOME and Ubuntu",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl, hotkey.Mod1},
		Key:         hotkey.KeyT,
	},
	{
		Name:        "Lock Screen",
		Description: "Ctrl+Alt+L locks the screen on most desktops",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl, hotkey.Mod1},
		Key:         hotkey.KeyL,
	},
	{
		Name:        "Input Source Switch",
		Description: "Super+Space switches keyboard layouts and input methods",
		Modifiers:   []hotkey.Modifier{hotkey.Mod4},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "Terminal Copy",
		Description: "Ctrl+Shift+C copies inside most terminal emulators",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift},
		Key:         hotkey.KeyC,
	},
	{
		Name:        "Terminal Paste",
		Description: "Ctrl+Shift+V pastes inside most terminal emulators",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift},
		Key:         hotkey.KeyV,
	},
}

// CheckConflicts returns the known desktop shortcuts the given hotkey collides with
func CheckConflicts(modifiers []hotkey.Modifier, key hotkey.Key) []ConflictInfo {
	var conflicts []ConflictInfo
	for _, known := range knownConflicts {
		if hotkeyMatches(modifiers, key, known.Modifiers, known.Key) {
			conflicts = append(conflicts, known)
		}
	}
	return conflicts
}

// hotkeyMatches reports whether two combinations are the same hotkey.
// X11 modifiers are mask bits, so a combination compares as the union of
// its modifiers regardless of order.
func hotkeyMatches(mods1 []hotkey.Modifier, key1 hotkey.Key, mods2 []hotkey.Modifier, key2 hotkey.Key) bool {
	return key1 == key2 && modifierMask(mods1) == modifierMask(mods2)
}

func modifierMask(mods []hotkey.Modifier) uint32 {
	var mask uint32
	for _, mod := range mods {
		mask |= uint32(mod)
	}
	return mask
}

// modifierOrder fixes the display order in formatted shortcuts
var modifierOrder = []struct {
	mod  hotkey.Modifier
	name string
}{
	{hotkey.ModCtrl, "Ctrl"},
	{hotkey.ModShift, "Shift"},
	{hotkey.Mod1, "Alt"},
	{hotkey.Mod4, "Super"},
}

// FormatHotkey returns the config-style representation of the hotkey, for
// example "Ctrl+Shift+C". Modifiers come out in a fixed order no matter how
// they were given.
func FormatHotkey(modifiers []hotkey.Modifier, key hotkey.Key) string {
	mask := modifierMask(modifiers)

	var parts []string
	for _, entry := range modifierOrder {
		if mask&uint32(entry.mod) != 0 {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(append(parts, keyToString(key)), "+")
}

// specialKeyNames covers the non-printing keys the parser accepts
var specialKeyNames = map[hotkey.Key]string{
	hotkey.KeySpace:  "Space",
	hotkey.KeyEscape: "Esc",
	hotkey.KeyReturn: "Enter",
	hotkey.KeyTab:    "Tab",
	hotkey.KeyDelete: "Delete",
	hotkey.KeyUp:     "Up",
	hotkey.KeyDown:   "Down",
	hotkey.KeyLeft:   "Left",
	hotkey.KeyRight:  "Right",
}

// keyToString converts a hotkey.Key to a display string
func keyToString(key hotkey.Key) string {
	if name, ok := specialKeyNames[key]; ok {
		return name
	}

	switch {
	case key >= hotkey.KeyA && key <= hotkey.KeyZ:
		return string(rune('A' + key - hotkey.KeyA))
	case key >= hotkey.Key0 && key <= hotkey.Key9:
		return string(rune('0' + key - hotkey.Key0))
	case key >= hotkey.KeyF1 && key <= hotkey.KeyF12:
		return "F" + strconv.Itoa(int(key-hotkey.KeyF1)+1)
	}
	return "Unknown"
}
