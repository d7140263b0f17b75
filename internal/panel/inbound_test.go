package panel

import (
	"encoding/json"
	"testing"
)

const inboundListJSON = `[
  {
    "id": 7,
    "remark": "SG",
    "protocol": "shadowsocks",
    "port": 8388,
    "enable": true,
    "settings": "{\"method\": \"aes-256-gcm\", \"password\": \"p@ss\"}",
    "streamSettings": ""
  },
  {
    "id": "8",
    "remark": "JP",
    "protocol": "vless",
    "port": "443",
    "enable": false,
    "settings": {"clients": [{"id": "u1", "email": "a"}]},
    "streamSettings": {"network": "ws", "security": "tls", "tlsSettings": {"serverName": "jp.example.com"}}
  }
]`

func TestDecodeInbounds_Array(t *testing.T) {
	inbounds, err := DecodeInbounds([]byte(inboundListJSON))
	if err != nil {
		t.Fatal(err)
	}
	if len(inbounds) != 2 {
		t.Fatalf("expected 2 inbounds, got %d", len(inbounds))
	}
	assertEqual(t, "id", inbounds[1].ID, int64(8))
	assertEqual(t, "port", inbounds[1].Port, 443)
	assertEqual(t, "enable", inbounds[1].Enable, false)
	assertEqual(t, "protocol", inbounds[0].Protocol, "shadowsocks")

	nodes := newTestParser().ParseInbounds(inbounds)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	assertEqual(t, "ss key", nodes[0].SourceNodeID, "7_ss")
	assertEqual(t, "ss password", nodes[0].Password, "p@ss")
	assertEqual(t, "vless key", nodes[1].SourceNodeID, "8_u1")
	assertEqual(t, "vless sni", nodes[1].SNI, "jp.example.com")
	assertEqual(t, "vless enabled", nodes[1].Enabled, false)
}

func TestDecodeInbounds_NumericEnable(t *testing.T) {
	inbounds, err := DecodeInbounds([]byte(`[
  {"id": 1, "protocol": "trojan", "port": 443, "enable": 0, "settings": "{}"},
  {"id": 2, "protocol": "trojan", "port": 443, "enable": 1, "settings": "{}"}
]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(inbounds) != 2 {
		t.Fatalf("expected 2 inbounds, got %d", len(inbounds))
	}
	assertEqual(t, "enable 0", inbounds[0].Enable, false)
	assertEqual(t, "enable 1", inbounds[1].Enable, true)
}

func TestDecodeInbounds_Envelope(t *testing.T) {
	body := `{"success": true, "msg": "", "obj": ` + inboundListJSON + `}`
	inbounds, err := DecodeInbounds([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if len(inbounds) != 2 {
		t.Fatalf("expected 2 inbounds, got %d", len(inbounds))
	}

	if _, err := DecodeInbounds([]byte(`{"success": false, "msg": "login expired"}`)); err == nil {
		t.Fatal("expected error for failed envelope")
	}
	inbounds, err = DecodeInbounds([]byte(`{"success": true, "obj": null}`))
	if err != nil || len(inbounds) != 0 {
		t.Fatalf("null obj: inbounds=%v err=%v", inbounds, err)
	}
}

func TestDecodeInbounds_Invalid(t *testing.T) {
	for _, body := range []string{"", "   ", "[1,", `"str"`} {
		if _, err := DecodeInbounds([]byte(body)); err == nil {
			t.Fatalf("DecodeInbounds(%q): expected error", body)
		}
	}
}

func TestEnsureParsed(t *testing.T) {
	cases := []struct {
		name string
		in   any
		key  string
		want string
	}{
		{"object", map[string]any{"method": "m"}, "method", "m"},
		{"string", `{"method":"m"}`, "method", "m"},
		{"string with comments", "{\n // primary\n \"method\": \"m\" /* inline */\n}", "method", "m"},
		{"raw message", json.RawMessage(`{"method":"m"}`), "method", "m"},
		{"raw quoted string", json.RawMessage(`"{\"method\":\"m\"}"`), "method", "m"},
		{"yaml map", map[any]any{"method": "m"}, "method", "m"},
		{"struct", struct {
			Method string `json:"method"`
		}{"m"}, "method", "m"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ensureParsed(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if got, _ := m[tc.key].(string); got != tc.want {
				t.Fatalf("got %v, want %q", m[tc.key], tc.want)
			}
		})
	}

	for _, empty := range []any{nil, "", "   ", json.RawMessage("null")} {
		m, err := ensureParsed(empty)
		if err != nil || m == nil || len(m) != 0 {
			t.Fatalf("ensureParsed(%#v) = %v, %v", empty, m, err)
		}
	}
	if _, err := ensureParsed("{broken"); err == nil {
		t.Fatal("expected error for broken JSON")
	}
}
