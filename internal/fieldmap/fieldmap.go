// Package fieldmap reads loosely typed values out of decoded JSON/YAML
// objects. Panels and subscription providers disagree on whether ports,
// flags and ids are numbers, strings or booleans, so every accessor accepts
// all of them.
package fieldmap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// String returns the first key present in m rendered as a string.
func String(m map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case json.Number:
			return t.String()
		case int:
			return strconv.Itoa(t)
		case int32:
			return strconv.FormatInt(int64(t), 10)
		case int64:
			return strconv.FormatInt(t, 10)
		case uint:
			return strconv.FormatUint(uint64(t), 10)
		case uint16:
			return strconv.FormatUint(uint64(t), 10)
		case uint32:
			return strconv.FormatUint(uint64(t), 10)
		case uint64:
			return strconv.FormatUint(t, 10)
		case float32:
			return strconv.FormatFloat(float64(t), 'f', -1, 64)
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
	}
	return ""
}

// Int returns the first key present in m that converts to an integer.
func Int(m map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case int:
			return t, true
		case int32:
			return int(t), true
		case int64:
			return int(t), true
		case uint:
			return int(t), true
		case uint16:
			return int(t), true
		case uint32:
			return int(t), true
		case uint64:
			return int(t), true
		case float32:
			return int(t), true
		case float64:
			return int(t), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n, true
			}
		case json.Number:
			if n, err := strconv.Atoi(t.String()); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// Bool returns the first key present in m that reads as a boolean.
func Bool(m map[string]any, keys ...string) (bool, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t, true
		case float64:
			return t != 0, true
		case int:
			return t != 0, true
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return f != 0, true
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "1", "true", "yes", "on":
				return true, true
			case "0", "false", "no", "off":
				return false, true
			}
		}
	}
	return false, false
}

// Map returns the first key present in m holding an object. YAML decodes
// nested mappings as map[any]any in some paths; those are converted.
func Map(m map[string]any, keys ...string) (map[string]any, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			return t, true
		case map[any]any:
			converted := make(map[string]any, len(t))
			for mk, mv := range t {
				converted[fmt.Sprint(mk)] = mv
			}
			return converted, true
		}
	}
	return nil, false
}

// Slice returns the first key present in m holding an array.
func Slice(m map[string]any, keys ...string) ([]any, bool) {
	for _, key := range keys {
		if t, ok := m[key].([]any); ok {
			return t, true
		}
	}
	return nil, false
}

// Strings returns the value at key as a list of non-empty strings. A single
// comma-separated string is split.
func Strings(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}

	switch t := v.(type) {
	case string:
		return SplitList(t)
	case []string:
		var out []string
		for _, item := range t {
			item = strings.TrimSpace(item)
			if item != "" {
				out = append(out, item)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	default:
		return nil
	}
}

// StringMap returns the object under key with every value rendered as a
// string. Blank values are dropped; the result is nil when nothing is left.
func StringMap(m map[string]any, key string) map[string]string {
	obj, ok := Map(m, key)
	if !ok {
		return nil
	}
	var out map[string]string
	for k := range obj {
		v := String(obj, k)
		if v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(obj))
		}
		out[k] = v
	}
	return out
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
