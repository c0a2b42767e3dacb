package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tidwall/gjson"
)

func TestAuthMiddleware_Challenges(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := AuthMiddleware("secret", slog.New(slog.NewTextHandler(io.Discard, nil)))(ok)

	tests := []struct {
		name      string
		header    string
		wantCode  int
		wantError string
		wantAuth  string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization", `Bearer realm="wikiadf"`},
		{"basic scheme", "Basic c2VjcmV0", http.StatusUnauthorized, "missing authorization", `Bearer realm="wikiadf"`},
		{"wrong key", "Bearer nope", http.StatusUnauthorized, "invalid api key", `Bearer realm="wikiadf", error="invalid_token"`},
		{"right key", "Bearer secret", http.StatusNoContent, "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/convert", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != tc.wantAuth {
				t.Errorf("expected challenge %q, got %q", tc.wantAuth, got)
			}
			if tc.wantError == "" {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON error, got content type %q", ct)
			}
			if got := gjson.Get(rec.Body.String(), "error").String(); got != tc.wantError {
				t.Errorf("expected error %q, got %q", tc.wantError, got)
			}
		})
	}
}

func TestRequestLogger_Fields(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{"created", http.StatusCreated, "hello", "INFO"},
		{"server error", http.StatusInternalServerError, "boom!", "ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, nil))

			r := chi.NewRouter()
			r.Use(middleware.RequestID)
			r.Use(RequestLogger(log))
			r.Get("/api/imports/{id}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/42", nil))

			line := strings.TrimSpace(buf.String())
			if strings.Count(line, "\n") != 0 {
				t.Fatalf("expected one log line, got %q", line)
			}
			checks := map[string]any{
				"msg":    "request",
				"level":  tc.wantLevel,
				"method": http.MethodGet,
				"route":  "/api/imports/{id}",
				"status": int64(tc.status),
				"bytes":  int64(len(tc.body)),
			}
			for field, want := range checks {
				res := gjson.Get(line, field)
				var got any = res.String()
				if _, isInt := want.(int64); isInt {
					got = res.Int()
				}
				if got != want {
					t.Errorf("%s: expected %v, got %v in %s", field, want, got, line)
				}
			}
			if gjson.Get(line, "request_id").String() == "" {
				t.Errorf("expected a request id in %s", line)
			}
			if !gjson.Get(line, "duration_ms").Exists() {
				t.Errorf("expected duration_ms in %s", line)
			}
		})
	}
}

func TestRequestLogger_ServerRoute(t *testing.T) {
	var buf bytes.Buffer
	s := newTestServer(t, "")
	s.log = slog.New(slog.NewJSONHandler(&buf, nil))
	s.setupRoutes()

	code, body := postConvert(t, s, `{"mode":"wiki-to-adf","source":"h1. Hi"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	line := lines[len(lines)-1]
	if got := gjson.Get(line, "route").String(); got != "/api/convert" {
		t.Errorf("expected route /api/convert, got %q", got)
	}
	if got := gjson.Get(line, "bytes").Int(); got != int64(len(body)) {
		t.Errorf("expected %d bytes logged, got %d", len(body), got)
	}
}
