package computer

import (
	"fmt"
	"strings"
)

// keysyms maps model-facing logical key names to X keysyms understood by
// xdotool. Names not listed pass through unchanged (single characters and
// already-valid keysyms like "F5").
var keysyms = map[string]string{
	"enter":     "Return",
	"return":    "Return",
	"tab":       "Tab",
	"esc":       "Escape",
	"escape":    "Escape",
	"space":     "space",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"insert":    "Insert",
	"home":      "Home",
	"end":       "End",
	"page_up":   "Page_Up",
	"pageup":    "Page_Up",
	"page_down": "Page_Down",
	"pagedown":  "Page_Down",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"ctrl":      "ctrl",
	"control":   "ctrl",
	"alt":       "alt",
	"shift":     "shift",
	"super":     "super",
	"cmd":       "super",
	"meta":      "super",
	"win":       "super",
	"caps_lock": "Caps_Lock",
	"num_lock":  "Num_Lock",
	"print":     "Print",
	"menu":      "Menu",
	"minus":     "minus",
	"plus":      "plus",
	"equal":     "equal",
}

// TranslateCombo converts an ordered key combination like
// ["ctrl","alt","delete"] into the xdotool argument "ctrl+alt+Delete".
// Order is preserved: modifiers must come first in the model's request,
// exactly as they would be held on a keyboard.
func TranslateCombo(keys []string) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("empty key combination")
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			return "", fmt.Errorf("blank key name in combination")
		}
		if sym, ok := keysyms[strings.ToLower(k)]; ok {
			parts = append(parts, sym)
			continue
		}
		parts = append(parts, k)
	}
	return strings.Join(parts, "+"), nil
}

// ParseCombo splits a space- or plus-separated combo string as the model
// tends to write it ("ctrl+c", "Return", "alt tab") into key names.
func ParseCombo(s string) []string {
	f := func(r rune) bool { return r == '+' || r == ' ' }
	return strings.FieldsFunc(s, f)
}
