package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/Resinat/Prism/internal/config"
	"github.com/Resinat/Prism/internal/service"
	"github.com/Resinat/Prism/internal/store"
)

const testAdminToken = "test-admin-token"

type fakeDownloader struct {
	mu     sync.Mutex
	bodies map[string][]byte
}

func (d *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	body, ok := d.bodies[url]
	if !ok {
		return nil, errors.New("no such url")
	}
	return body, nil
}

func (d *fakeDownloader) set(url string, body []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bodies == nil {
		d.bodies = make(map[string][]byte)
	}
	d.bodies[url] = body
}

type testServer struct {
	srv *Server
	svc *service.NodeService
	dl  *fakeDownloader
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithBodyLimit(t, 1<<20)
}

func newTestServerWithBodyLimit(t *testing.T, maxBody int64) *testServer {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dl := &fakeDownloader{}
	svc := service.New(service.Config{
		Store:      st,
		Downloader: dl,
		Env:        &config.EnvConfig{AdminToken: testAdminToken, Port: 2280},
	})
	srv := NewServer(ServerConfig{
		Port:            2280,
		AdminToken:      testAdminToken,
		APIMaxBodyBytes: maxBody,
	}, svc)
	return &testServer{srv: srv, svc: svc, dl: dl}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if strings.HasPrefix(path, "/api/") {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return body
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status: got %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var env ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal error envelope %q: %v", rec.Body.String(), err)
	}
	if env.Error.Code != want {
		t.Fatalf("error code: got %q (%s), want %q", env.Error.Code, env.Error.Message, want)
	}
}

const twoLinks = "socks5://1.2.3.4:1080#Tokyo\n" +
	"trojan://pw@edge.example.com:443#Edge\n"

// --- /healthz ---

func TestHealthz_NoAuth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["status"] != "ok" {
		t.Fatalf("status field: got %v, want ok", body["status"])
	}
}

// --- /api/v1/system/info ---

func TestSystemInfo(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/nodes/import", twoLinks)

	rec := ts.do(t, http.MethodGet, "/api/v1/system/info", nil)
	assertStatus(t, rec, http.StatusOK)
	body := decodeJSON(t, rec)
	if _, ok := body["version"]; !ok {
		t.Error("missing version field")
	}
	if _, ok := body["startedAt"]; !ok {
		t.Error("missing startedAt field")
	}
	if body["nodes"] != float64(2) {
		t.Errorf("nodes: got %v, want 2", body["nodes"])
	}
	cfg, _ := body["config"].(map[string]any)
	if cfg["adminAuthEnabled"] != true {
		t.Errorf("config.adminAuthEnabled: got %v", cfg["adminAuthEnabled"])
	}
	if _, ok := cfg["adminToken"]; ok {
		t.Error("admin token leaked into system info")
	}
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/v1/system/info", "/api/v1/nodes", "/api/v1/sources", "/api/v1/profiles"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		ts.srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status got %d, want %d", path, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestUnknownRoute_ReturnsEnvelope(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/nope", nil)
	assertStatus(t, rec, http.StatusNotFound)
	assertErrorCode(t, rec, service.CodeNotFound)

	rec = ts.do(t, http.MethodPut, "/api/v1/nodes", nil)
	assertStatus(t, rec, http.StatusMethodNotAllowed)
	assertErrorCode(t, rec, "METHOD_NOT_ALLOWED")
}

// --- nodes ---

func TestNodes_ImportListPatchDelete(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/nodes/import", twoLinks)
	assertStatus(t, rec, http.StatusOK)
	result := decodeJSON(t, rec)
	if result["parsed"] != float64(2) || result["inserted"] != float64(2) {
		t.Fatalf("import result: %v", result)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/nodes?sort_by=name", nil)
	assertStatus(t, rec, http.StatusOK)
	var page PageResponse[service.NodeView]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("page: total=%d items=%d", page.Total, len(page.Items))
	}
	if page.Items[0].Name != "Edge" || page.Items[1].Name != "Tokyo" {
		t.Fatalf("sorted names: %q, %q", page.Items[0].Name, page.Items[1].Name)
	}
	edgeID := page.Items[0].ID

	rec = ts.do(t, http.MethodGet, "/api/v1/nodes?type=trojan", nil)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["total"] != float64(1) {
		t.Fatalf("type filter total: %v", body["total"])
	}

	rec = ts.do(t, http.MethodPatch, "/api/v1/nodes/"+edgeID, `{"enabled":false}`)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["enabled"] != false {
		t.Fatalf("patched enabled: %v", body["enabled"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/nodes?enabled=false", nil)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["total"] != float64(1) {
		t.Fatalf("enabled=false total: %v", body["total"])
	}
	rec = ts.do(t, http.MethodGet, "/api/v1/nodes?enabled=true", nil)
	if body := decodeJSON(t, rec); body["total"] != float64(1) {
		t.Fatalf("enabled=true total: %v", body["total"])
	}

	rec = ts.do(t, http.MethodPatch, "/api/v1/nodes/"+edgeID, `{"server":"evil.example.com"}`)
	assertStatus(t, rec, http.StatusBadRequest)
	assertErrorCode(t, rec, service.CodeInvalidArgument)

	rec = ts.do(t, http.MethodDelete, "/api/v1/nodes/"+edgeID, nil)
	assertStatus(t, rec, http.StatusNoContent)

	rec = ts.do(t, http.MethodGet, "/api/v1/nodes/"+edgeID, nil)
	assertStatus(t, rec, http.StatusNotFound)
	assertErrorCode(t, rec, service.CodeNotFound)
}

func TestNodes_ListValidation(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{
		"/api/v1/nodes?type=wireguard",
		"/api/v1/nodes?sourceId=abc",
		"/api/v1/nodes?enabled=maybe",
		"/api/v1/nodes?sort_by=password",
		"/api/v1/nodes?limit=-1",
	} {
		rec := ts.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want %d", path, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestNodes_ImportEmptyBody(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/nodes/import", "")
	assertStatus(t, rec, http.StatusBadRequest)
	assertErrorCode(t, rec, service.CodeInvalidArgument)
}

func TestNodes_ImportBodyLimit(t *testing.T) {
	ts := newTestServerWithBodyLimit(t, 64)
	rec := ts.do(t, http.MethodPost, "/api/v1/nodes/import", strings.Repeat(twoLinks, 10))
	assertStatus(t, rec, http.StatusRequestEntityTooLarge)
	assertErrorCode(t, rec, "PAYLOAD_TOO_LARGE")
}

func TestNodes_LargeListIsGzipped(t *testing.T) {
	ts := newTestServer(t)
	var links strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&links, "socks5://10.0.0.%d:1080#node-%02d\n", i+1, i)
	}
	assertStatus(t, ts.do(t, http.MethodPost, "/api/v1/nodes/import", links.String()), http.StatusOK)

	rec := ts.do(t, http.MethodGet, "/api/v1/nodes?limit=100", nil, "Accept-Encoding", "gzip")
	assertStatus(t, rec, http.StatusOK)
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding: got %q, want gzip", got)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	var page PageResponse[service.NodeView]
	if err := json.Unmarshal(plain, &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 40 {
		t.Fatalf("total: got %d, want 40", page.Total)
	}
}

// --- panels ---

const panelInbounds = `[
  {"id": 7, "remark": "SG", "protocol": "shadowsocks", "port": 8388, "enable": true,
   "settings": "{\"method\":\"aes-256-gcm\",\"password\":\"p@ss\"}"},
  {"id": 8, "remark": "JP", "protocol": "vless", "port": 443, "enable": true,
   "settings": {"clients": [{"id": "u1", "email": "alice"}, {"id": "u2", "email": "bob"}]},
   "streamSettings": {"network": "tcp", "security": "tls"}}
]`

func TestPanelSync(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/panels/sync",
		`{"server":"https://panel.example.com:54321","inbounds":`+panelInbounds+`}`)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["inserted"] != float64(3) {
		t.Fatalf("inserted: %v", body["inserted"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/nodes?q=alice", nil)
	var page PageResponse[service.NodeView]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Items[0].Server != "panel.example.com" {
		t.Fatalf("alice node: %+v", page.Items)
	}
}

func TestPanelSync_Validation(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{name: "missing inbounds", body: `{"server":"panel.example.com"}`},
		{name: "missing server", body: `{"inbounds":[]}`},
		{name: "bad source id", body: `{"server":"panel.example.com","sourceId":"x","inbounds":[]}`},
		{name: "unknown field", body: `{"server":"panel.example.com","inbounds":[],"extra":1}`},
		{name: "inbounds not a list", body: `{"server":"panel.example.com","inbounds":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/panels/sync", tt.body)
			assertStatus(t, rec, http.StatusBadRequest)
			assertErrorCode(t, rec, service.CodeInvalidArgument)
		})
	}
}

// --- sources ---

func TestSources_RefreshFlow(t *testing.T) {
	ts := newTestServer(t)
	const feedURL = "https://sub.example.com/feed"
	ts.dl.set(feedURL, []byte(base64.StdEncoding.EncodeToString([]byte(twoLinks))))

	rec := ts.do(t, http.MethodPost, "/api/v1/sources", map[string]any{
		"name": "feed",
		"url":  feedURL,
		"tags": []string{"hk"},
	})
	assertStatus(t, rec, http.StatusCreated)
	src := decodeJSON(t, rec)
	id, _ := src["id"].(string)
	if src["kind"] != "remote" || !ValidateUUID(id) {
		t.Fatalf("created source: %v", src)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/sources", map[string]any{"name": "feed", "url": feedURL})
	assertStatus(t, rec, http.StatusConflict)
	assertErrorCode(t, rec, service.CodeConflict)

	rec = ts.do(t, http.MethodPost, "/api/v1/sources/"+id+"/refresh", nil)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["inserted"] != float64(2) {
		t.Fatalf("refresh result: %v", body)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/nodes?sourceId="+id+"&tag=hk", nil)
	if body := decodeJSON(t, rec); body["total"] != float64(2) {
		t.Fatalf("source nodes: %v", body["total"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/sources/"+id, nil)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["nodeCount"] != float64(2) {
		t.Fatalf("nodeCount: %v", body["nodeCount"])
	}

	rec = ts.do(t, http.MethodPatch, "/api/v1/sources/"+id, `{"enabled":false}`)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["enabled"] != false {
		t.Fatalf("patched enabled: %v", body["enabled"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/sources?enabled=false", nil)
	if body := decodeJSON(t, rec); body["total"] != float64(1) {
		t.Fatalf("disabled sources: %v", body["total"])
	}

	rec = ts.do(t, http.MethodDelete, "/api/v1/sources/"+id, nil)
	assertStatus(t, rec, http.StatusNoContent)

	rec = ts.do(t, http.MethodGet, "/api/v1/nodes", nil)
	if body := decodeJSON(t, rec); body["total"] != float64(0) {
		t.Fatalf("nodes after source delete: %v", body["total"])
	}
}

func TestSources_Errors(t *testing.T) {
	ts := newTestServer(t)
	const missing = "0b9f3c1e-6a43-4f0e-9d6a-3b0c7a7f2e11"

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{"bad id", http.MethodGet, "/api/v1/sources/abc", nil, http.StatusBadRequest},
		{"missing", http.MethodGet, "/api/v1/sources/" + missing, nil, http.StatusNotFound},
		{"refresh missing", http.MethodPost, "/api/v1/sources/" + missing + "/refresh", nil, http.StatusNotFound},
		{"no name", http.MethodPost, "/api/v1/sources", `{"url":"https://a.example.com/x"}`, http.StatusBadRequest},
		{"bad url", http.MethodPost, "/api/v1/sources", `{"name":"a","url":"ftp://a.example.com/x"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/sources", `{"name":"a","color":"red"}`, http.StatusBadRequest},
		{"bad sort field", http.MethodGet, "/api/v1/sources?sort_by=url", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			assertStatus(t, rec, tt.wantStatus)
		})
	}
}

func TestSources_RefreshManualRejected(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/sources", `{"name":"pasted"}`)
	assertStatus(t, rec, http.StatusCreated)
	id, _ := decodeJSON(t, rec)["id"].(string)

	rec = ts.do(t, http.MethodPost, "/api/v1/sources/"+id+"/refresh", nil)
	assertStatus(t, rec, http.StatusBadRequest)
	assertErrorCode(t, rec, service.CodeInvalidArgument)
}

// --- profiles and /sub ---

func createProfile(t *testing.T, ts *testServer, body string) map[string]any {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/profiles", body)
	assertStatus(t, rec, http.StatusCreated)
	return decodeJSON(t, rec)
}

func TestSubscription_RenderAndConditionalGet(t *testing.T) {
	ts := newTestServer(t)
	assertStatus(t, ts.do(t, http.MethodPost, "/api/v1/nodes/import", twoLinks), http.StatusOK)
	profile := createProfile(t, ts, `{"name":"phone","format":"plain"}`)
	token, _ := profile["token"].(string)
	if token == "" {
		t.Fatalf("profile without token: %v", profile)
	}

	rec := ts.do(t, http.MethodGet, "/sub/"+token, nil)
	assertStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type: %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "edge.example.com:443") {
		t.Fatalf("plain body missing trojan node: %q", rec.Body.String())
	}
	if got := rec.Header().Get("X-Node-Count"); got != "2" {
		t.Fatalf("X-Node-Count: %q", got)
	}
	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `"`) || !strings.HasSuffix(etag, `"`) {
		t.Fatalf("ETag not quoted: %q", etag)
	}

	rec = ts.do(t, http.MethodGet, "/sub/"+token, nil, "If-None-Match", etag)
	assertStatus(t, rec, http.StatusNotModified)
	if rec.Body.Len() != 0 {
		t.Fatalf("304 with body %q", rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/sub/"+token+"?format=clash", nil)
	assertStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "yaml") {
		t.Fatalf("clash Content-Type: %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=phone.yaml" {
		t.Fatalf("Content-Disposition: %q", cd)
	}
	if rec.Header().Get("ETag") == etag {
		t.Fatal("clash and plain share an ETag")
	}
}

func TestSubscription_ChangesAfterNodeWrite(t *testing.T) {
	ts := newTestServer(t)
	assertStatus(t, ts.do(t, http.MethodPost, "/api/v1/nodes/import", twoLinks), http.StatusOK)
	token, _ := createProfile(t, ts, `{"name":"phone","format":"plain","types":["socks5"]}`)["token"].(string)

	rec := ts.do(t, http.MethodGet, "/sub/"+token, nil)
	assertStatus(t, rec, http.StatusOK)
	first := rec.Header().Get("ETag")
	if strings.Contains(rec.Body.String(), "edge.example.com") {
		t.Fatalf("type filter ignored: %q", rec.Body.String())
	}

	assertStatus(t, ts.do(t, http.MethodPost, "/api/v1/nodes/import", "socks5://5.6.7.8:1080#Osaka\n"), http.StatusOK)

	rec = ts.do(t, http.MethodGet, "/sub/"+token, nil, "If-None-Match", first)
	assertStatus(t, rec, http.StatusOK)
	if rec.Header().Get("ETag") == first {
		t.Fatal("ETag unchanged after import")
	}
}

func TestSubscription_EmptyAndErrors(t *testing.T) {
	ts := newTestServer(t)
	token, _ := createProfile(t, ts, `{"name":"empty","format":"singbox"}`)["token"].(string)

	rec := ts.do(t, http.MethodGet, "/sub/"+token, nil)
	assertStatus(t, rec, http.StatusOK)
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("empty singbox document is not JSON: %v", err)
	}

	rec = ts.do(t, http.MethodGet, "/sub/"+token+"?format=bogus", nil)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = ts.do(t, http.MethodGet, "/sub/not-a-token", nil)
	assertStatus(t, rec, http.StatusNotFound)
	assertErrorCode(t, rec, service.CodeNotFound)
}

func TestProfiles_ListAndDelete(t *testing.T) {
	ts := newTestServer(t)
	p := createProfile(t, ts, `{"name":"laptop","format":"sing-box","tags":["hk"]}`)
	if p["format"] != "singbox" {
		t.Fatalf("format not canonicalised: %v", p["format"])
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/profiles", `{"format":"clash"}`)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = ts.do(t, http.MethodGet, "/api/v1/profiles", nil)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["total"] != float64(1) {
		t.Fatalf("profiles total: %v", body["total"])
	}

	id, _ := p["id"].(string)
	assertStatus(t, ts.do(t, http.MethodDelete, "/api/v1/profiles/"+id, nil), http.StatusNoContent)
	assertStatus(t, ts.do(t, http.MethodDelete, "/api/v1/profiles/"+id, nil), http.StatusNotFound)

	token, _ := p["token"].(string)
	assertStatus(t, ts.do(t, http.MethodGet, "/sub/"+token, nil), http.StatusNotFound)
}

// --- geoip ---

func TestGeoIP_WithoutDatabase(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/geoip/status", nil)
	assertStatus(t, rec, http.StatusOK)

	rec = ts.do(t, http.MethodGet, "/api/v1/geoip/lookup?ip=1.2.3.4", nil)
	assertStatus(t, rec, http.StatusOK)
	if body := decodeJSON(t, rec); body["ip"] != "1.2.3.4" {
		t.Fatalf("lookup: %v", body)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/geoip/lookup", nil)
	assertStatus(t, rec, http.StatusBadRequest)
	rec = ts.do(t, http.MethodGet, "/api/v1/geoip/lookup?ip=not-an-ip", nil)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = ts.do(t, http.MethodPost, "/api/v1/geoip/actions/update-now", nil)
	assertStatus(t, rec, http.StatusInternalServerError)
	assertErrorCode(t, rec, service.CodeInternal)
}
