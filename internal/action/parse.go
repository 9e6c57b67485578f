package action

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Parse validates a command name and its parameters
func Parse(name string, params map[string]any) (Action, error) {
	switch Normalize(name) {
	case NameClick:
		if sel := str(params, "selector"); sel != "" {
			return Click{Selector: sel}, nil
		}
		x, okX := num(params, "x")
		y, okY := num(params, "y")
		if !okX || !okY {
			return nil, invalid(NameClick, "selector or x and y required")
		}
		return Click{X: x, Y: y}, nil

	case NameType:
		text, ok := params["text"].(string)
		if !ok {
			return nil, invalid(NameType, "text required")
		}
		return Type{Selector: str(params, "selector"), Text: text}, nil

	case NameKey:
		key := str(params, "key")
		if key == "" {
			return nil, invalid(NameKey, "key required")
		}
		return Key{Key: key}, nil

	case NameClear:
		sel := str(params, "selector")
		if sel == "" {
			return nil, invalid(NameClear, "selector required")
		}
		return Clear{Selector: sel}, nil

	case NameNavigate:
		raw := str(params, "url")
		u, err := url.Parse(raw)
		if raw == "" || err != nil || u.Scheme == "" {
			return nil, invalid(NameNavigate, "absolute url required")
		}
		return Navigate{URL: raw}, nil

	case NameScroll:
		dx, okX := firstNum(params, "deltaX", "x")
		dy, okY := firstNum(params, "deltaY", "y")
		if !okX && !okY {
			return nil, invalid(NameScroll, "deltaX or deltaY required")
		}
		return Scroll{DeltaX: dx, DeltaY: dy}, nil

	case NameScreenshot:
		fast, _ := params["fast"].(bool)
		return Screenshot{Fast: fast}, nil

	case NameGetURL:
		return GetURL{}, nil

	case NameGetTitle:
		return GetTitle{}, nil

	case NameFocus:
		sel := str(params, "selector")
		if sel == "" {
			return nil, invalid(NameFocus, "selector required")
		}
		return Focus{Selector: sel}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

func invalid(name, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParams, name, detail)
}

func str(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return strings.TrimSpace(s)
}

// num accepts JSON numbers and numeric strings
func num(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func firstNum(params map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := num(params, k); ok {
			return v, true
		}
	}
	return 0, false
}
