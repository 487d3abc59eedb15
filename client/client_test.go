package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	client := New()

	if client.HTTPClient == nil {
		t.Fatal("Expected HTTPClient to be initialized")
	}
	if client.HTTPClient.Timeout != 0 {
		t.Errorf("Expected no timeout by default, got %v", client.HTTPClient.Timeout)
	}
	if client.UserAgent != DefaultUserAgent {
		t.Errorf("Expected user agent '%s', got '%s'", DefaultUserAgent, client.UserAgent)
	}
}

func TestNewWith(t *testing.T) {
	cfg := Config{
		Timeout:   10 * time.Second,
		UserAgent: "Custom Agent",
		ProxyURL:  "http://proxy.example.com:8080",
	}

	client, err := NewWith(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if client.HTTPClient.Timeout != cfg.Timeout {
		t.Errorf("Expected timeout %v, got %v", cfg.Timeout, client.HTTPClient.Timeout)
	}
	if client.UserAgent != cfg.UserAgent {
		t.Errorf("Expected user agent '%s', got '%s'", cfg.UserAgent, client.UserAgent)
	}

	tr, ok := client.HTTPClient.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("unexpected transport %T", client.HTTPClient.Transport)
	}
	req, _ := http.NewRequest(http.MethodGet, "https://www.youtube.com/", nil)
	proxy, err := tr.Proxy(req)
	if err != nil || proxy == nil || proxy.Host != "proxy.example.com:8080" {
		t.Fatalf("proxy = %v, %v", proxy, err)
	}
}

func TestNewWithZeroAndNegativeValues(t *testing.T) {
	for _, cfg := range []Config{{}, {Timeout: -time.Second}} {
		client, err := NewWith(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if client.HTTPClient.Timeout != 0 {
			t.Errorf("Expected no timeout, got %v", client.HTTPClient.Timeout)
		}
		if client.UserAgent != DefaultUserAgent {
			t.Errorf("Expected default user agent, got '%s'", client.UserAgent)
		}
	}
}

func TestNewWithInvalidProxy(t *testing.T) {
	for _, raw := range []string{"invalid-proxy-url", "://invalid-url"} {
		if _, err := NewWith(Config{ProxyURL: raw}); err == nil {
			t.Errorf("expected error for proxy %q", raw)
		}
	}
}

func TestGetSetsUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("Expected User-Agent '%s', got '%s'", DefaultUserAgent, got)
		}
		_, _ = w.Write([]byte("test response"))
	}))
	defer server.Close()

	client := &Client{HTTPClient: server.Client()}
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "test response" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestGetSingleAttempt(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New().Get(context.Background(), server.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", hits.Load())
	}
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpegbytes"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "cover-temp")
	n, err := New().Fetch(context.Background(), server.URL, dest)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len("jpegbytes")) {
		t.Errorf("n = %d", n)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "jpegbytes" {
		t.Fatalf("dest = %q, %v", data, err)
	}
}

func TestFetchStatusErrorCreatesNoFile(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "cover-temp")
	if _, err := New().Fetch(context.Background(), server.URL, dest); err == nil {
		t.Fatal("expected an error for 404")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("dest should not exist, stat err = %v", err)
	}
}

func TestFetchTruncatedBodyRemovesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("short"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "cover-temp")
	if _, err := New().Fetch(context.Background(), server.URL, dest); err == nil {
		t.Fatal("expected an error for a truncated body")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("partial dest should be removed, stat err = %v", err)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Fetch(ctx, "http://127.0.0.1:1/", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}
