package middleware

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gallery/internal/metrics"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineRecorder) output(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *lineRecorder) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, body)
	})
}

func TestResponseWriter(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	rw := newResponseWriter(w)
	if rw.statusCode != http.StatusOK || rw.wroteHeader {
		t.Fatalf("fresh writer = %+v", rw)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, the first WriteHeader should win", rw.statusCode)
	}

	n, err := rw.Write([]byte("test data"))
	if err != nil || n != 9 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if rw.bytesWritten != 9 {
		t.Errorf("bytesWritten = %d, want 9", rw.bytesWritten)
	}
}

func TestLoggerMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		healthLogs  bool
		skipPaths   []string
		expectLines int
	}{
		{name: "logs api requests", path: "/api/sessions", expectLines: 1},
		{name: "skips health checks by default", path: "/health", expectLines: 0},
		{name: "logs health checks when enabled", path: "/readyz", healthLogs: true, expectLines: 1},
		{name: "skips configured prefixes", path: "/metrics", skipPaths: []string{"/metrics"}, expectLines: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &lineRecorder{}
			handler := Logger(LoggingConfig{
				SkipPaths:       tt.skipPaths,
				LogHealthChecks: tt.healthLogs,
				Output:          rec.output,
			})(okHandler("ok"))

			req := httptest.NewRequest(http.MethodGet, tt.path+"?entries=true", http.NoBody)
			req.Header.Set("User-Agent", "test agent")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			lines := rec.all()
			if len(lines) != tt.expectLines {
				t.Fatalf("got %d log lines, want %d: %q", len(lines), tt.expectLines, lines)
			}
			if tt.expectLines == 0 {
				return
			}
			fields := strings.Fields(lines[0])
			if fields[3] != http.MethodGet || fields[4] != tt.path || fields[5] != "entries=true" || fields[6] != "200" {
				t.Errorf("log line = %q", lines[0])
			}
			if !strings.Contains(lines[0], `"test agent"`) {
				t.Errorf("user agent should be quoted: %q", lines[0])
			}
		})
	}
}

func TestSanitizeLogField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"line\nbreak", "line break"},
		{"carriage\rreturn", "carriage return"},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred", "[31mred"},
		{"tab\tkept", "tab\tkept"},
		{"bell\x07", "bell"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, remote: "1.1.1.1:80", want: "10.0.0.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "10.0.0.3"}, remote: "1.1.1.1:80", want: "10.0.0.3"},
		{name: "remote addr", remote: "192.168.1.4:5555", want: "192.168.1.4"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = tt.remote
		for k, v := range tt.headers {
			req.Header.Set(k, v)
		}
		if got := getClientIP(req); got != tt.want {
			t.Errorf("%s: getClientIP() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCompressionMiddleware(t *testing.T) {
	t.Parallel()

	large := strings.Repeat(`{"id":1,"path":"/media/a.jpg"}`, 100)
	tests := []struct {
		name              string
		body              string
		contentType       string
		acceptEncoding    string
		method            string
		expectCompression bool
	}{
		{name: "compresses large json", body: large, contentType: "application/json", acceptEncoding: "gzip", expectCompression: true},
		{name: "compresses json with charset", body: large, contentType: "application/json; charset=utf-8", acceptEncoding: "gzip", expectCompression: true},
		{name: "small bodies pass through", body: `{"ok":true}`, contentType: "application/json", acceptEncoding: "gzip"},
		{name: "images pass through", body: large, contentType: "image/jpeg", acceptEncoding: "gzip"},
		{name: "client without gzip", body: large, contentType: "application/json"},
		{name: "head requests", body: large, contentType: "application/json", acceptEncoding: "gzip", method: http.MethodHead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				io.WriteString(w, tt.body)
			}))

			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, "/api/sessions/x", http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			compressed := w.Header().Get("Content-Encoding") == "gzip"
			if compressed != tt.expectCompression {
				t.Fatalf("compressed = %v, want %v", compressed, tt.expectCompression)
			}
			if !compressed {
				if method == http.MethodGet && w.Body.String() != tt.body {
					t.Error("uncompressed body was altered")
				}
				return
			}

			gr, err := gzip.NewReader(w.Body)
			if err != nil {
				t.Fatalf("gzip.NewReader: %v", err)
			}
			defer gr.Close()
			got, err := io.ReadAll(gr)
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if string(got) != tt.body {
				t.Error("decompressed body does not match")
			}
		})
	}
}

func TestCompressionKeepsStatusCode(t *testing.T) {
	t.Parallel()

	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		for range 10 {
			io.WriteString(w, strings.Repeat("x", 200))
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Error("multi-write response should be compressed")
	}
}

// Not parallel: reads global counters.
func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.Handle("/api/sessions/{id}/next", okHandler("{}")).Methods(http.MethodPost)
	r.Handle("/health", okHandler("{}"))

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/api/sessions/{id}/next", "200")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/next", http.NoBody)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("route counter grew by %v, want 3", got)
	}

	health := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")
	healthBefore := testutil.ToFloat64(health)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if testutil.ToFloat64(health) != healthBefore {
		t.Error("health checks should not be recorded")
	}
}

func TestRouteLabelUnmatched(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody)
	if got := routeLabel(req); got != "unmatched" {
		t.Errorf("routeLabel() = %q, want unmatched", got)
	}
}

func TestMetricsResponseWriterFirstStatusWins(t *testing.T) {
	t.Parallel()

	rw := newMetricsResponseWriter(httptest.NewRecorder())
	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	if rw.statusCode != http.StatusTeapot {
		t.Errorf("statusCode = %d, want 418", rw.statusCode)
	}
}

func TestLoggerRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when missing", incoming: ""},
		{name: "client id is kept", incoming: "abc-123", keep: true},
		{name: "id with spaces is replaced", incoming: "two words"},
		{name: "id with control characters is replaced", incoming: "bad\nid"},
		{name: "overlong id is replaced", incoming: strings.Repeat("x", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &lineRecorder{}
			handler := Logger(LoggingConfig{Output: rec.output})(okHandler("ok"))

			req := httptest.NewRequest(http.MethodGet, "/api/version", http.NoBody)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			id := w.Header().Get(RequestIDHeader)
			if id == "" {
				t.Fatal("response has no request ID")
			}
			if tt.keep != (id == tt.incoming) {
				t.Errorf("request ID = %q, incoming %q, keep %v", id, tt.incoming, tt.keep)
			}
			lines := rec.all()
			if len(lines) != 1 || strings.Fields(lines[0])[9] != id {
				t.Errorf("log line %q does not carry request ID %q", lines, id)
			}
		})
	}
}

func TestLoggerSetsRequestIDOnSkippedPaths(t *testing.T) {
	t.Parallel()

	rec := &lineRecorder{}
	handler := Logger(LoggingConfig{Output: rec.output})(okHandler("ok"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("skipped request has no request ID")
	}
	if len(rec.all()) != 0 {
		t.Errorf("health check was logged: %q", rec.all())
	}
}
