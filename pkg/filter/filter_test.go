package filter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/Sternrassler/esi-assembler/internal/testutil"
	"github.com/Sternrassler/esi-assembler/pkg/client"
	"github.com/Sternrassler/esi-assembler/pkg/esi"
	"github.com/Sternrassler/esi-assembler/pkg/policy"
)

// stubResolver replaces every body with its own output.
type stubResolver struct {
	out     string
	changed bool
	err     error

	calls  int
	origin client.Origin
	body   string
}

func (s *stubResolver) Resolve(_ context.Context, body []byte, origin client.Origin) ([]byte, bool, error) {
	s.calls++
	s.origin = origin
	s.body = string(body)
	if s.err != nil || !s.changed {
		return nil, false, s.err
	}
	return []byte(s.out), true, nil
}

func serve(h http.Handler, req *http.Request) *http.Response {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestFilter_Gating(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		encoding    string
		wantResolve bool
	}{
		{name: "html 200", status: http.StatusOK, contentType: "text/html", wantResolve: true},
		{name: "html with charset", status: http.StatusOK, contentType: "text/html; charset=utf-8", wantResolve: true},
		{name: "html 404", status: http.StatusNotFound, contentType: "text/html"},
		{name: "html 201", status: http.StatusCreated, contentType: "text/html"},
		{name: "json 200", status: http.StatusOK, contentType: "application/json"},
		{name: "xhtml 200", status: http.StatusOK, contentType: "application/xhtml+xml"},
		{name: "gzipped html", status: http.StatusOK, contentType: "text/html", encoding: "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{out: "expanded", changed: true}
			app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, "original")
			})

			resp := serve(New(resolver).Handler(app), httptest.NewRequest(http.MethodGet, "/", nil))
			body := readBody(t, resp)

			if resp.StatusCode != tt.status {
				t.Errorf("Status = %d, want %d", resp.StatusCode, tt.status)
			}
			if resp.Header.Get("Content-Type") != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", resp.Header.Get("Content-Type"), tt.contentType)
			}
			if tt.wantResolve {
				if resolver.calls != 1 || body != "expanded" {
					t.Errorf("Expected expansion, got calls=%d body=%q", resolver.calls, body)
				}
				if resolver.body != "original" {
					t.Errorf("Resolver saw %q, want %q", resolver.body, "original")
				}
				return
			}
			if resolver.calls != 0 || body != "original" {
				t.Errorf("Expected passthrough, got calls=%d body=%q", resolver.calls, body)
			}
		})
	}
}

func TestFilter_ContentLength(t *testing.T) {
	resolver := &stubResolver{out: "a much longer expanded body", changed: true}
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Length", "5")
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("X-App", "kept")
		io.WriteString(w, "short")
	})

	resp := serve(New(resolver).Handler(app), httptest.NewRequest(http.MethodGet, "/", nil))
	body := readBody(t, resp)

	if body != resolver.out {
		t.Errorf("Body = %q", body)
	}
	if got := resp.Header.Get("Content-Length"); got != strconv.Itoa(len(resolver.out)) {
		t.Errorf("Content-Length = %q, want %d", got, len(resolver.out))
	}
	if resp.Header.Get("ETag") != "" {
		t.Error("ETag of the unexpanded document must be dropped")
	}
	if resp.Header.Get("X-App") != "kept" {
		t.Error("Other headers must be kept")
	}
}

func TestFilter_Unchanged(t *testing.T) {
	resolver := &stubResolver{changed: false}
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("ETag", `"abc"`)
		io.WriteString(w, "<p>plain</p>")
	})

	resp := serve(New(resolver).Handler(app), httptest.NewRequest(http.MethodGet, "/", nil))
	if body := readBody(t, resp); body != "<p>plain</p>" {
		t.Errorf("Body = %q", body)
	}
	if resp.Header.Get("ETag") != `"abc"` {
		t.Error("ETag should be kept when nothing changed")
	}
}

func TestFilter_ResolveErrorIs500(t *testing.T) {
	resolver := &stubResolver{err: errors.New("upstream down")}
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<esi:include src="/x"/>`)
	})

	resp := serve(New(resolver).Handler(app), httptest.NewRequest(http.MethodGet, "/", nil))
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", resp.StatusCode)
	}
	if strings.Contains(body, "esi:include") {
		t.Errorf("No partial output expected, got %q", body)
	}
}

func TestFilter_SniffsMissingContentType(t *testing.T) {
	resolver := &stubResolver{out: "expanded", changed: true}
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body>hi</body></html>")
	})

	resp := serve(New(resolver).Handler(app), httptest.NewRequest(http.MethodGet, "/", nil))
	if body := readBody(t, resp); body != "expanded" {
		t.Errorf("Body = %q, want expansion of sniffed HTML", body)
	}
}

func TestFilter_HeadPassesThrough(t *testing.T) {
	resolver := &stubResolver{out: "expanded", changed: true}
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Length", "42")
	})

	resp := serve(New(resolver).Handler(app), httptest.NewRequest(http.MethodHead, "/", nil))
	if resolver.calls != 0 {
		t.Error("HEAD must not be resolved")
	}
	if resp.Header.Get("Content-Length") != "42" {
		t.Errorf("Content-Length = %q, want 42", resp.Header.Get("Content-Length"))
	}
}

func TestFilter_Origin(t *testing.T) {
	resolver := &stubResolver{changed: false}
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "x")
	})
	h := New(resolver).Handler(app)

	req := httptest.NewRequest(http.MethodGet, "http://www.example.com/page", nil)
	serve(h, req)
	if resolver.origin.RequireSSL() {
		t.Error("Plain HTTP request must not require SSL")
	}
	if resolver.origin.Host != "www.example.com" {
		t.Errorf("Host = %q", resolver.origin.Host)
	}

	req = httptest.NewRequest(http.MethodGet, "https://www.example.com/page", nil)
	serve(h, req)
	if !resolver.origin.RequireSSL() {
		t.Error("HTTPS request must require SSL")
	}

	req = httptest.NewRequest(http.MethodGet, "http://www.example.com/page", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	serve(h, req)
	if !resolver.origin.RequireSSL() {
		t.Error("Request forwarded from HTTPS must require SSL")
	}
}

func TestFilter_EndToEnd(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetFragment("/fragments/greeting", "<b>hello</b>")

	fetcher, err := client.New(policy.Default(), client.DefaultConfig())
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	resolver, err := esi.New(fetcher, esi.Config{Debug: true})
	if err != nil {
		t.Fatalf("esi.New failed: %v", err)
	}

	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<p><esi:include src="`+origin.URL()+`/fragments/greeting"/></p>`)
	})

	server := httptest.NewServer(New(resolver).Handler(app))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if body := readBody(t, resp); body != "<p><b>hello</b></p>" {
		t.Errorf("Body = %q", body)
	}
	if resp.ContentLength != int64(len("<p><b>hello</b></p>")) {
		t.Errorf("ContentLength = %d", resp.ContentLength)
	}
}
