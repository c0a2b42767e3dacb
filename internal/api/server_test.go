package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dgallion1/wikiadf/internal/config"
	"github.com/dgallion1/wikiadf/internal/convert"
	"github.com/dgallion1/wikiadf/internal/metrics"
)

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.APIKey = apiKey
	cfg.PDFFallbackPdftotext = false
	cache := convert.NewCache(cfg.CacheSize, time.Minute)
	conv := convert.New(convert.Options{MaxDepth: cfg.MaxDepth, MaxInputBytes: cfg.MaxInputBytes}, cache)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(conv, cache, metrics.New(cache.Stats), log, cfg)
}

func do(t *testing.T, s *Server, req *http.Request) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func postConvert(t *testing.T, s *Server, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}

func uploadRequest(t *testing.T, path, field string, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write([]byte(content))
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	code, body := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if gjson.Get(body, "status").String() != "ok" {
		t.Errorf("unexpected body %s", body)
	}
}

func TestConvert_MarkupToADF(t *testing.T) {
	s := newTestServer(t, "")
	code, body := postConvert(t, s, `{"mode":"wiki-to-adf","source":"h1. Hello, world!"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	if got := gjson.Get(body, "status").String(); got != "ok" {
		t.Fatalf("expected status ok, got %q", got)
	}
	target := gjson.Get(body, "target").String()
	if got := gjson.Get(target, "content.0.type").String(); got != "heading" {
		t.Errorf("expected heading in target, got %q", got)
	}
	if got := gjson.Get(body, "stats.nodes").Int(); got != 3 {
		t.Errorf("expected 3 nodes, got %d", got)
	}
}

func TestConvert_ADFToMarkupWithPreview(t *testing.T) {
	s := newTestServer(t, "")
	src := `{"version":1,"type":"doc","content":[{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"hello world"}]}]}`
	req := `{"mode":"adf-to-wiki","preview":true,"source":` + quote(src) + `}`
	code, body := postConvert(t, s, req)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	if got := gjson.Get(body, "target").String(); got != "h1. hello world" {
		t.Errorf("expected %q, got %q", "h1. hello world", got)
	}
	if got := gjson.Get(body, "preview").String(); !strings.Contains(got, "<h1>hello world</h1>") {
		t.Errorf("expected rendered heading, got %q", got)
	}
}

func TestConvert_Failures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind string
		wantPath string
	}{
		{"missing root fields", `{"mode":"adf-to-wiki","source":"{\"type\":\"doc\"}"}`, "SchemaViolation", "$"},
		{"invalid json", `{"mode":"adf-to-wiki","source":"{nope"}`, "InvalidJson", ""},
		{"table to markup", `{"mode":"adf-to-wiki","source":` + quote(`{"version":1,"type":"doc","content":[{"type":"table","content":[{"type":"tableRow","content":[{"type":"tableCell","content":[{"type":"paragraph","content":[{"type":"text","text":"x"}]}]}]}]}]}`) + `}`, "UnsupportedNodeKind", "$.content[0]"},
	}
	s := newTestServer(t, "")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := postConvert(t, s, tc.body)
			if code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", code, body)
			}
			if got := gjson.Get(body, "status").String(); got != "error" {
				t.Errorf("expected status error, got %q", got)
			}
			if got := gjson.Get(body, "error.kind").String(); got != tc.wantKind {
				t.Errorf("expected kind %s, got %s", tc.wantKind, got)
			}
			if tc.wantPath != "" {
				if got := gjson.Get(body, "error.path").String(); got != tc.wantPath {
					t.Errorf("expected path %q, got %q", tc.wantPath, got)
				}
			}
			if gjson.Get(body, "target").Exists() {
				t.Errorf("failed conversion must not carry a target: %s", body)
			}
		})
	}
}

func TestConvert_EmptySource(t *testing.T) {
	s := newTestServer(t, "")
	code, body := postConvert(t, s, `{"mode":"wiki-to-adf","source":"   \n"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if got := gjson.Get(body, "status").String(); got != "empty" {
		t.Errorf("expected status empty, got %q", got)
	}
	if gjson.Get(body, "target").Exists() || gjson.Get(body, "error").Exists() {
		t.Errorf("empty result must carry neither target nor error: %s", body)
	}
}

func TestConvert_BadRequests(t *testing.T) {
	s := newTestServer(t, "")
	for _, body := range []string{`not json`, `{"mode":"sideways","source":"x"}`} {
		if code, _ := postConvert(t, s, body); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, code)
		}
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, "secret")
	body := `{"mode":"wiki-to-adf","source":"x"}`

	req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(body))
	if code, _ := do(t, s, req); code != http.StatusUnauthorized {
		t.Errorf("missing key: expected 401, got %d", code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	if code, _ := do(t, s, req); code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	if code, _ := do(t, s, req); code != http.StatusOK {
		t.Errorf("valid key: expected 200, got %d", code)
	}

	if code, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil)); code != http.StatusOK {
		t.Errorf("health must stay public, got %d", code)
	}
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/preview", strings.NewReader(`{"mode":"wiki-to-adf","source":"*bold*"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected text/html, got %q", ct)
	}
	if got := rec.Body.String(); !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("expected bold text, got %s", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/preview", strings.NewReader(`{"mode":"wiki-to-adf","source":""}`))
	if _, body := do(t, s, req); body != `<div class="wikiadf-preview"></div>` {
		t.Errorf("expected empty fragment, got %s", body)
	}
}

func TestImport_Markdown(t *testing.T) {
	s := newTestServer(t, "")
	req := uploadRequest(t, "/api/import", "file",
		map[string]string{"../notes.md": "# Title\n\nSome **bold** text.\n"},
		map[string]string{"target": "wiki"})
	code, body := do(t, s, req)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	if got := gjson.Get(body, "filename").String(); got != "notes.md" {
		t.Errorf("expected sanitized filename, got %q", got)
	}
	if gjson.Get(body, "import_id").String() == "" {
		t.Error("expected an import id")
	}
	if got := gjson.Get(body, "adf.content.0.type").String(); got != "heading" {
		t.Errorf("expected heading in ADF, got %q", got)
	}
	if got := gjson.Get(body, "wiki").String(); got != "h1. Title\n\nSome *bold* text." {
		t.Errorf("unexpected wiki output %q", got)
	}
}

func TestImport_Rejections(t *testing.T) {
	s := newTestServer(t, "")

	req := uploadRequest(t, "/api/import", "file", map[string]string{"image.png": "x"}, nil)
	if code, _ := do(t, s, req); code != http.StatusBadRequest {
		t.Errorf("unsupported type: expected 400, got %d", code)
	}

	req = uploadRequest(t, "/api/import", "file", map[string]string{"blank.txt": "  \n\n"}, nil)
	code, body := do(t, s, req)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("empty document: expected 422, got %d", code)
	}
	if got := gjson.Get(body, "status").String(); got != "empty" {
		t.Errorf("expected status empty, got %q", got)
	}

	req = uploadRequest(t, "/api/import", "file", map[string]string{"a.txt": "x"}, map[string]string{"target": "pdf"})
	if code, _ := do(t, s, req); code != http.StatusBadRequest {
		t.Errorf("bad target: expected 400, got %d", code)
	}
}

func TestBatchImport(t *testing.T) {
	s := newTestServer(t, "")
	req := uploadRequest(t, "/api/import/batch", "files", map[string]string{
		"a.txt":   "hello",
		"b.exe":   "MZ",
		"c.json":  `{"type":"doc"}`,
	}, nil)
	code, body := do(t, s, req)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	results := gjson.Get(body, "imports").Array()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	byName := map[string]gjson.Result{}
	for _, r := range results {
		byName[r.Get("filename").String()] = r
	}
	if got := byName["a.txt"].Get("status").String(); got != "ok" {
		t.Errorf("a.txt: expected ok, got %q", got)
	}
	if got := byName["b.exe"].Get("status").String(); got != "error" {
		t.Errorf("b.exe: expected error, got %q", got)
	}
	if got := byName["c.json"].Get("error.kind").String(); got != "SchemaViolation" {
		t.Errorf("c.json: expected SchemaViolation, got %q", got)
	}
}

func TestCompatAndStats(t *testing.T) {
	s := newTestServer(t, "")
	_, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/compat", nil))
	if !gjson.Get(body, `constructs.#(construct=="table")`).Exists() {
		t.Errorf("expected table in compatibility table: %s", body)
	}

	postConvert(t, s, `{"mode":"wiki-to-adf","source":"x"}`)
	postConvert(t, s, `{"mode":"wiki-to-adf","source":"x"}`)
	_, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if got := gjson.Get(body, "cache.hits").Int(); got != 1 {
		t.Errorf("expected 1 cache hit, got %d", got)
	}
	if got := gjson.Get(body, "limits.max_depth").Int(); got != 64 {
		t.Errorf("expected max_depth 64, got %d", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	postConvert(t, s, `{"mode":"adf-to-wiki","source":"{nope"}`)
	_, body := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `wikiadf_conversions_total{kind="InvalidJson",mode="adf-to-wiki",status="error"} 1`
	if !strings.Contains(body, want) {
		t.Errorf("expected %s in metrics output", want)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"notes.md", "notes.md"},
		{"../../etc/passwd.txt", "passwd.txt"},
		{`dir\file.txt`, "dir_file.txt"},
		{"", "unnamed"},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func TestImportAll_KeepsOrder(t *testing.T) {
	s := newTestServer(t, "")
	s.cfg.ImportWorkers = 2
	var items []batchItem
	for i := range 6 {
		name := fmt.Sprintf("doc%d.txt", i)
		items = append(items, batchItem{idx: i, filename: name, data: []byte("text " + name)})
	}
	results := make([]importResult, len(items))
	s.importAll(context.Background(), items, "wiki", results)
	for i, r := range results {
		if want := fmt.Sprintf("doc%d.txt", i); r.Filename != want {
			t.Errorf("result %d: expected %s, got %s", i, want, r.Filename)
		}
		if want := fmt.Sprintf("text doc%d.txt", i); r.Wiki != want {
			t.Errorf("result %d: expected wiki %q, got %q", i, want, r.Wiki)
		}
	}
}
