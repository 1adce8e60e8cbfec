package httpfetch

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/encoding/japanese"

	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
	"github.com/vertextoedge/batch-bootstrapper/internal/version"
)

func TestCharsetFromContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
		wantOk      bool
	}{
		{"text/html; charset=EUC-JP", "EUC-JP", true},
		{"text/html", "", false},
		{"text/plain; charset=utf-8", "UTF-8", true},
		{"text/plain; CHARSET=\"iso-8859-1\"", "ISO-8859-1", true},
		{"text/plain;charset= 'windows-1252' ; format=flowed", "WINDOWS-1252", true},
		{"text/plain; charset=", "", false},
		{"text/plain; charset=\"\"", "", false},
		{"", "", false},
		{"text/plain; name=caf\xe9; charset=EUC-JP", "EUC-JP", true},
		{"text/plain; x=\xe9\xe9\xe9\xe9\xe9\xe9; charset=", "", false},
		{"text/plain; name=\u0130stanbul; charset=shift_jis", "SHIFT_JIS", true},
		{"text/plain; name=\xff\xfe", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			got, ok := CharsetFromContentType(tt.contentType)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("CharsetFromContentType(%q) = (%q, %v), want (%q, %v)",
					tt.contentType, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestClient_UserAgentAndURL(t *testing.T) {
	var gotUA, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		w.Write([]byte("3.5"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "Maven/3.9", zap.NewNop())

	body, err := c.DownloadString("/api/server/version")
	if err != nil {
		t.Fatalf("DownloadString() error = %v", err)
	}
	if body != "3.5" {
		t.Errorf("body = %q, want %q", body, "3.5")
	}
	if gotPath != "/api/server/version" {
		t.Errorf("path = %q, want /api/server/version", gotPath)
	}
	wantUA := version.ProductToken + "/" + version.Version + " Maven/3.9"
	if gotUA != wantUA {
		t.Errorf("User-Agent = %q, want %q", gotUA, wantUA)
	}
	if c.URL("batch/foo.jar") != srv.URL+"/batch/foo.jar" {
		t.Errorf("URL() = %q", c.URL("batch/foo.jar"))
	}
}

func TestClient_DownloadStringCharset(t *testing.T) {
	encoded, err := japanese.EUCJP.NewEncoder().String("日本語")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=EUC-JP")
		w.Write([]byte(encoded))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop())
	got, err := c.DownloadString("/")
	if err != nil {
		t.Fatalf("DownloadString() error = %v", err)
	}
	if got != "日本語" {
		t.Errorf("DownloadString() = %q, want %q", got, "日本語")
	}
}

func TestClient_UnknownCharsetFallsBackToUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=NOT-A-CHARSET")
		w.Write([]byte("foo.jar|abc"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop())
	got, err := c.DownloadString("/")
	if err != nil {
		t.Fatalf("DownloadString() error = %v", err)
	}
	if got != "foo.jar|abc" {
		t.Errorf("DownloadString() = %q", got)
	}
}

func TestClient_DownloadStringNonASCIIContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; x=\xe9\xe9\xe9\xe9\xe9\xe9; charset=")
		w.Write([]byte("3.5"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop())
	got, err := c.DownloadString("/api/server/version")
	if err != nil {
		t.Fatalf("DownloadString() error = %v", err)
	}
	if got != "3.5" {
		t.Errorf("DownloadString() = %q, want %q", got, "3.5")
	}
}

func TestClient_InvalidStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop())
	_, err := c.DownloadString("/batch_bootstrap/index")

	var se *domain.InvalidStatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want InvalidStatusError", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", se.StatusCode)
	}
	if se.URL != srv.URL+"/batch_bootstrap/index" {
		t.Errorf("URL = %q", se.URL)
	}
	if domain.IsServerUnreachable(err) {
		t.Error("invalid status must not be reported as unreachable")
	}
}

func TestClient_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/batch/old.jar", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/batch/new.jar", http.StatusFound)
	})
	mux.HandleFunc("/batch/new.jar", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop())
	var buf bytes.Buffer
	n, err := c.DownloadFile("/batch/old.jar", &buf)
	if err != nil {
		t.Fatalf("DownloadFile() error = %v", err)
	}
	if n != int64(len("payload")) || buf.String() != "payload" {
		t.Errorf("DownloadFile() = (%d, %q)", n, buf.String())
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	c := NewClient("http://"+addr, "", zap.NewNop())
	_, err = c.DownloadString("/api/server/version")
	if !domain.IsServerUnreachable(err) {
		t.Fatalf("error = %v, want server unreachable", err)
	}
}

func TestClient_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop())
	var buf bytes.Buffer
	_, err := c.DownloadFile("/batch/foo.jar", &buf)
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Fatalf("error = %v, want ErrDownloadFailed", err)
	}
}

func TestClient_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 10)))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClientWithConfig(srv.URL, "", zap.NewNop(), &ClientConfig{ReadTimeout: 50 * time.Millisecond})
	var buf bytes.Buffer
	_, err := c.DownloadFile("/batch/slow.jar", &buf)
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Fatalf("error = %v, want ErrDownloadFailed after read timeout", err)
	}
}

func TestClient_DownloadFileLogsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 4; i++ {
			w.Write([]byte(strings.Repeat("x", 1024)))
			w.(http.Flusher).Flush()
			time.Sleep(30 * time.Millisecond)
		}
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	c := NewClientWithConfig(srv.URL, "", zap.New(core), &ClientConfig{ProgressInterval: 10 * time.Millisecond})

	var buf bytes.Buffer
	n, err := c.DownloadFile("/batch/big.jar", &buf)
	if err != nil {
		t.Fatalf("DownloadFile() error = %v", err)
	}
	if n != 4096 {
		t.Errorf("DownloadFile() = %d bytes, want 4096", n)
	}
	if logs.FilterMessage("download in progress").Len() == 0 {
		t.Error("no progress logged for a slow download")
	}
}
