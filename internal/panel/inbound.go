// Package panel converts X-UI panel inbounds into canonical nodes.
package panel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/muhammadmuzzammil1998/jsonc"

	"github.com/Resinat/Prism/internal/fieldmap"
)

// Inbound is one X-UI inbound record. Settings and StreamSettings hold
// either the JSON-encoded string the panel stores or an already decoded
// object; both are accepted.
type Inbound struct {
	ID             int64  `json:"id"`
	Remark         string `json:"remark"`
	Protocol       string `json:"protocol"`
	Port           int    `json:"port"`
	Enable         bool   `json:"enable"`
	Settings       any    `json:"settings"`
	StreamSettings any    `json:"streamSettings"`
}

// envelope is the X-UI API response wrapper around inbound lists.
type envelope struct {
	Success *bool           `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// DecodeInbounds decodes a bare JSON array of inbounds or the panel's
// {"success":..,"obj":[..]} envelope. Field types are read loosely since
// panel versions disagree on numbers versus strings.
func DecodeInbounds(data []byte) ([]Inbound, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("panel: empty inbound payload")
	}

	if data[0] == '{' {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("panel: decode envelope: %w", err)
		}
		if env.Success != nil && !*env.Success {
			return nil, fmt.Errorf("panel: request failed: %s", env.Msg)
		}
		if len(env.Obj) == 0 || string(env.Obj) == "null" {
			return nil, nil
		}
		data = env.Obj
	}

	var raw []map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("panel: decode inbounds: %w", err)
	}

	inbounds := make([]Inbound, 0, len(raw))
	for _, m := range raw {
		inbounds = append(inbounds, inboundFromMap(m))
	}
	return inbounds, nil
}

func inboundFromMap(m map[string]any) Inbound {
	in := Inbound{
		Remark:         strings.TrimSpace(fieldmap.String(m, "remark")),
		Protocol:       strings.ToLower(strings.TrimSpace(fieldmap.String(m, "protocol"))),
		Settings:       m["settings"],
		StreamSettings: m["streamSettings"],
		Enable:         true,
	}
	if id, ok := fieldmap.Int(m, "id"); ok {
		in.ID = int64(id)
	}
	if port, ok := fieldmap.Int(m, "port"); ok {
		in.Port = port
	}
	if enable, ok := fieldmap.Bool(m, "enable"); ok {
		in.Enable = enable
	}
	return in
}

// ensureParsed normalizes a settings value to an object. Strings may carry
// comments from hand-edited panels.
func ensureParsed(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	case map[any]any:
		m, _ := fieldmap.Map(map[string]any{"v": t}, "v")
		return m, nil
	case string:
		return parseObject([]byte(t))
	case []byte:
		return ensureRaw(t)
	case json.RawMessage:
		return ensureRaw(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("re-encode %T: %w", v, err)
		}
		return parseObject(raw)
	}
}

// ensureRaw handles raw JSON that may itself be a JSON string wrapping the
// object.
func ensureRaw(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode settings string: %w", err)
		}
		return parseObject([]byte(s))
	}
	return parseObject(raw)
}

func parseObject(text []byte) (map[string]any, error) {
	text = bytes.TrimSpace(text)
	if len(text) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(text)))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if m == nil {
		return map[string]any{}, nil
	}
	return m, nil
}
