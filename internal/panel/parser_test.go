package panel

import (
	"reflect"
	"testing"
	"time"

	"github.com/Resinat/Prism/internal/node"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestParser() *Parser {
	return &Parser{Now: func() time.Time { return fixedNow }}
}

func assertEqual[T comparable](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: got %v, want %v", name, got, want)
	}
}

func TestParseInbound_Shadowsocks(t *testing.T) {
	in := Inbound{
		ID:       7,
		Protocol: "shadowsocks",
		Port:     8388,
		Enable:   true,
		Remark:   "SG",
		Settings: map[string]any{"method": "aes-256-gcm", "password": "p@ss"},
	}
	nodes := newTestParser().ParseInbound(in)
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	n := nodes[0]
	assertEqual(t, "type", n.Type, node.TypeSS)
	assertEqual(t, "method", n.Method, "aes-256-gcm")
	assertEqual(t, "password", n.Password, "p@ss")
	assertEqual(t, "sourceNodeId", n.SourceNodeID, "7_ss")
	assertEqual(t, "name", n.Name, "SG")
	assertEqual(t, "port", n.Port, uint16(8388))
	assertEqual(t, "server", n.Server, "")
	assertEqual(t, "sourceType", n.SourceType, node.SourcePanel)
	assertEqual(t, "enabled", n.Enabled, true)
}

const vlessSettings = `{
  "clients": [
    {"id": "11111111-1111-1111-1111-111111111111", "email": "alice", "flow": "xtls-rprx-vision"},
    {"id": "22222222-2222-2222-2222-222222222222", "enable": false}
  ],
  "decryption": "none"
}`

const realityStream = `{
  "network": "tcp",
  "security": "reality",
  "realitySettings": {
    "serverNames": ["www.microsoft.com", "microsoft.com"],
    "shortIds": ["ab12", "cd34"],
    "settings": {"publicKey": "PUB", "fingerprint": "chrome"}
  }
}`

func TestParseInbound_VLESSClients(t *testing.T) {
	in := Inbound{
		ID:             3,
		Protocol:       "vless",
		Port:           443,
		Enable:         true,
		Remark:         "JP",
		Settings:       vlessSettings,
		StreamSettings: realityStream,
	}
	nodes := newTestParser().ParseInbound(in)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}

	a := nodes[0]
	assertEqual(t, "name", a.Name, "JP-alice")
	assertEqual(t, "uuid", a.UUID, "11111111-1111-1111-1111-111111111111")
	assertEqual(t, "flow", a.Flow, "xtls-rprx-vision")
	assertEqual(t, "sourceNodeId", a.SourceNodeID, "3_11111111-1111-1111-1111-111111111111")
	assertEqual(t, "security", a.Security, "reality")
	assertEqual(t, "tls", a.TLS, false)
	assertEqual(t, "sni from reality", a.SNI, "www.microsoft.com")
	assertEqual(t, "publicKey", a.PublicKey, "PUB")
	assertEqual(t, "shortId", a.ShortID, "ab12")
	assertEqual(t, "fingerprint", a.Fingerprint, "chrome")
	assertEqual(t, "enabled", a.Enabled, true)

	b := nodes[1]
	assertEqual(t, "fallback name", b.Name, "JP-2")
	assertEqual(t, "disabled client", b.Enabled, false)
	if a.ID == b.ID {
		t.Fatal("client ids must differ")
	}
}

func TestParseInbound_VMessWebsocketTLS(t *testing.T) {
	in := Inbound{
		ID:       11,
		Protocol: "vmess",
		Port:     8443,
		Enable:   true,
		Settings: map[string]any{"clients": []any{
			map[string]any{"id": "aaaa", "alterId": 0, "email": "bob"},
		}},
		StreamSettings: map[string]any{
			"network":  "ws",
			"security": "tls",
			"tlsSettings": map[string]any{
				"serverName": "cdn.example.com",
				"alpn":       []any{"h2", "http/1.1"},
			},
			"realitySettings": map[string]any{"serverName": "ignored.example.com"},
			"wsSettings": map[string]any{
				"path":    "/ws",
				"headers": map[string]any{"Host": "cdn.example.com", "User-Agent": "Mozilla/5.0", "X-Empty": ""},
			},
		},
	}
	nodes := newTestParser().ParseInbound(in)
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	n := nodes[0]
	assertEqual(t, "name", n.Name, "VMess-bob")
	assertEqual(t, "method", n.Method, "auto")
	assertEqual(t, "network", n.Network, "ws")
	assertEqual(t, "tls", n.TLS, true)
	assertEqual(t, "sni", n.SNI, "cdn.example.com")
	assertEqual(t, "wsPath", n.WSPath, "/ws")
	assertEqual(t, "wsHost", n.WSHost, "cdn.example.com")
	if !reflect.DeepEqual(n.WSHeaders, map[string]string{"User-Agent": "Mozilla/5.0"}) {
		t.Fatalf("wsHeaders = %#v", n.WSHeaders)
	}
	if !reflect.DeepEqual(n.ALPN, []string{"h2", "http/1.1"}) {
		t.Fatalf("alpn = %#v", n.ALPN)
	}
}

func TestParseInbound_VMessIgnoresRealitySNI(t *testing.T) {
	in := Inbound{
		ID:             12,
		Protocol:       "vmess",
		Port:           443,
		Settings:       `{"clients":[{"id":"u"}]}`,
		StreamSettings: `{"network":"grpc","security":"none","realitySettings":{"serverName":"r.example.com"},"grpcSettings":{"serviceName":"svc"}}`,
	}
	n := newTestParser().ParseInbound(in)[0]
	assertEqual(t, "sni", n.SNI, "")
	assertEqual(t, "grpc", n.GRPCServiceName, "svc")
	assertEqual(t, "disabled inbound", n.Enabled, false)
}

func TestParseInbound_TrojanPrefersID(t *testing.T) {
	in := Inbound{
		ID:       5,
		Protocol: "trojan",
		Port:     443,
		Enable:   true,
		Settings: `{"clients":[{"id":"from-id","password":"from-password"},{"password":"only-password"}]}`,
	}
	nodes := newTestParser().ParseInbound(in)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	assertEqual(t, "password", nodes[0].Password, "from-id")
	assertEqual(t, "key", nodes[0].SourceNodeID, "5_from-id")
	assertEqual(t, "fallback password", nodes[1].Password, "only-password")
	assertEqual(t, "fallback key", nodes[1].SourceNodeID, "5_only-password")
}

func TestParseInbound_DedupKeyStable(t *testing.T) {
	in := Inbound{
		ID:       9,
		Protocol: "vless",
		Port:     443,
		Enable:   true,
		Settings: vlessSettings,
	}
	first := (&Parser{Now: func() time.Time { return fixedNow }}).ParseInbound(in)
	second := (&Parser{Now: func() time.Time { return fixedNow.Add(time.Hour) }}).ParseInbound(in)
	if len(first) != len(second) || len(first) == 0 {
		t.Fatalf("node counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		assertEqual(t, "sourceNodeId", first[i].SourceNodeID, second[i].SourceNodeID)
		if first[i].ID == second[i].ID {
			t.Fatalf("expected generated ids to differ across runs")
		}
	}
}

func TestParseInbound_MalformedSettings(t *testing.T) {
	in := Inbound{ID: 1, Protocol: "vless", Port: 443, Settings: `{"clients": [`}
	if nodes := newTestParser().ParseInbound(in); len(nodes) != 0 {
		t.Fatalf("expected no nodes, got %d", len(nodes))
	}
	if _, err := newTestParser().parseInbound(in, 0); err == nil {
		t.Fatal("expected an error for malformed settings")
	}

	in = Inbound{ID: 2, Protocol: "trojan", Port: 443, Settings: `{"clients": "nope"}`}
	if _, err := newTestParser().parseInbound(in, 0); err == nil {
		t.Fatal("expected an error for non-array clients")
	}
}

func TestParseInbound_UnknownProtocolSkipped(t *testing.T) {
	for _, proto := range []string{"wireguard", "dokodemo-door", "socks", ""} {
		nodes, err := newTestParser().parseInbound(Inbound{ID: 1, Protocol: proto, Settings: "{}"}, 0)
		if err != nil || len(nodes) != 0 {
			t.Fatalf("%q: nodes=%d err=%v", proto, len(nodes), err)
		}
	}
}

func TestParseInbounds_ContinuesPastBadInbound(t *testing.T) {
	inbounds := []Inbound{
		{ID: 1, Protocol: "shadowsocks", Port: 1000, Enable: true, Settings: `{"method":"aes-128-gcm","password":"a"}`},
		{ID: 2, Protocol: "vless", Port: 443, Enable: true, Settings: `not json`},
		{ID: 3, Protocol: "trojan", Port: 443, Enable: true, Settings: `{"clients":[{"password":"t"}]}`},
	}
	nodes := newTestParser().ParseInbounds(inbounds)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	assertEqual(t, "first", nodes[0].SourceNodeID, "1_ss")
	assertEqual(t, "second", nodes[1].SourceNodeID, "3_t")
	if nodes[0].ID == nodes[1].ID {
		t.Fatal("ids must be unique within a batch")
	}
}

func TestParseInbound_PortDefaulting(t *testing.T) {
	n := newTestParser().ParseInbound(Inbound{ID: 1, Protocol: "shadowsocks", Port: 70000, Settings: `{}`})[0]
	assertEqual(t, "ss default", n.Port, uint16(8388))
	n = newTestParser().ParseInbound(Inbound{ID: 1, Protocol: "trojan", Port: 0, Settings: `{"clients":[{"password":"x"}]}`})[0]
	assertEqual(t, "trojan default", n.Port, uint16(443))
}
