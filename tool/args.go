package tool

import (
	"encoding/json"
	"strconv"
)

// IntArg reads an integer argument, applying the default when absent or
// unparseable and clamping the value into [1, max]. Models routinely ignore
// the limits stated in a schema, so the server-side clamp is authoritative.
func IntArg(args map[string]any, name string, def, max int) int {
	v, ok := args[name]
	if !ok {
		return clampInt(def, max)
	}

	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case int:
		n = t
	case int64:
		n = int(t)
	case json.Number:
		parsed, err := t.Int64()
		if err != nil {
			return clampInt(def, max)
		}
		n = int(parsed)
	case string:
		parsed, err := strconv.Atoi(t)
		if err != nil {
			return clampInt(def, max)
		}
		n = parsed
	default:
		return clampInt(def, max)
	}
	return clampInt(n, max)
}

func clampInt(n, max int) int {
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// BoolArg reads a boolean argument, applying the default when absent or not
// a boolean.
func BoolArg(args map[string]any, name string, def bool) bool {
	v, ok := args[name]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// StringArg reads a string argument, applying the default when absent or not
// a string.
func StringArg(args map[string]any, name, def string) string {
	v, ok := args[name]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}
