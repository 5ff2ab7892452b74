package jobsource

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const page = `<!doctype html>
<html>
<head><title>Backend Engineer</title><style>body { color: red }</style></head>
<body>
  <nav><a href="/">Home</a> <a href="/jobs">Jobs</a></nav>
  <script>var tracking = "secret";</script>
  <h1>Senior Backend Engineer</h1>
  <p>Acme Robotics builds   warehouse robots.</p>
  <ul><li>Go and <b>PostgreSQL</b></li><li>Kubernetes</li></ul>
  <!-- hidden comment -->
</body>
</html>`

const description = "We are looking for a backend engineer with five years of Go experience and a passion for distributed systems."

func TestHTMLText(t *testing.T) {
	text, err := HTMLText(strings.NewReader(page))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "Senior Backend Engineer\n\nAcme Robotics builds warehouse robots.\n\n• Go and PostgreSQL\n\n• Kubernetes"
	if text != expected {
		t.Fatalf("unexpected text:\n%q\nwant:\n%q", text, expected)
	}
	for _, hidden := range []string{"tracking", "color", "Home", "hidden comment"} {
		if strings.Contains(text, hidden) {
			t.Fatalf("text must not contain %q", hidden)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "job.txt")
	html := filepath.Join(dir, "job.html")
	if err := os.WriteFile(plain, []byte("  "+description+"\n\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(html, []byte(page), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := New(zap.NewNop())

	text, err := loader.Load(context.Background(), plain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != description {
		t.Fatalf("unexpected text %q", text)
	}

	text, err = loader.Load(context.Background(), html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(text, "Senior Backend Engineer") {
		t.Fatalf("html file must be reduced to text, got %q", text)
	}

	if _, err := loader.Load(context.Background(), filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := loader.Load(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestLoadStdinWarnsOnShortText(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	loader := New(zap.New(core))
	loader.Stdin = strings.NewReader("Go developer wanted")

	text, err := loader.Load(context.Background(), Stdin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Go developer wanted" {
		t.Fatalf("unexpected text %q", text)
	}
	if logs.FilterMessage("job description is very short").Len() != 1 {
		t.Fatal("expected a short description warning")
	}

	loader.Stdin = strings.NewReader(" \n ")
	if _, err := loader.Load(context.Background(), Stdin); err == nil {
		t.Fatal("expected error for empty stdin")
	}
}

func TestLoadURL(t *testing.T) {
	var gotAgent string
	mux := http.NewServeMux()
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(description))
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(description))
		_ = gz.Close()
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	loader := New(zap.NewNop())

	tests := []struct {
		path    string
		prefix  string
		wantErr bool
	}{
		{path: "/html", prefix: "Senior Backend Engineer"},
		{path: "/plain", prefix: "We are looking"},
		{path: "/gzip", prefix: "We are looking"},
		{path: "/gone", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			text, err := loader.Load(context.Background(), srv.URL+tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasPrefix(text, tt.prefix) {
				t.Fatalf("unexpected text %q", text)
			}
		})
	}

	if gotAgent != userAgent {
		t.Fatalf("unexpected user agent %q", gotAgent)
	}
}
