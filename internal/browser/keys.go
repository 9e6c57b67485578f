package browser

import (
	"strings"

	"github.com/chromedp/chromedp/kb"
)

var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"space":      " ",
}

// KeySequence maps a named key ("Enter", "ArrowDown") to the sequence chromedp
// dispatches. Anything else is sent literally.
func KeySequence(key string) string {
	if seq, ok := namedKeys[strings.ToLower(key)]; ok {
		return seq
	}
	return key
}
