package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ytget/yt2ogg/client"
)

// mockTransport answers every request with a fixed status and headers.
type mockTransport struct {
	responseStatus  int
	responseHeaders map[string]string
	methods         []string
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.methods = append(t.methods, req.Method)
	resp := &http.Response{
		StatusCode: t.responseStatus,
		Header:     make(http.Header),
		Body:       http.NoBody,
	}
	for key, value := range t.responseHeaders {
		resp.Header.Set(key, value)
	}
	return resp, nil
}

func TestDetectTotalSize(t *testing.T) {
	tests := []struct {
		name            string
		url             string
		responseStatus  int
		responseHeaders map[string]string
		expectedSize    int64
		hasError        bool
		methods         []string
	}{
		{
			name:            "Google Video host with Content-Range",
			url:             "https://r1---sn-4g5e6n7s.googlevideo.com/videoplayback",
			responseStatus:  206,
			responseHeaders: map[string]string{"Content-Range": "bytes 0-1/1000000"},
			expectedSize:    1000000,
			methods:         []string{"GET"},
		},
		{
			name:            "Google Video host with Content-Length",
			url:             "https://googlevideo.com/videoplayback",
			responseStatus:  200,
			responseHeaders: map[string]string{"Content-Length": "500000"},
			expectedSize:    500000,
			methods:         []string{"GET"},
		},
		{
			name:            "Non-Google host answers HEAD",
			url:             "https://example.com/audio.webm",
			responseStatus:  206,
			responseHeaders: map[string]string{"Content-Range": "bytes 0-1/2000000"},
			expectedSize:    2000000,
			methods:         []string{"HEAD"},
		},
		{
			name:            "Invalid Content-Range format",
			url:             "https://example.com/audio.webm",
			responseStatus:  206,
			responseHeaders: map[string]string{"Content-Range": "invalid-format"},
			hasError:        true,
			methods:         []string{"HEAD", "GET"},
		},
		{
			name:           "No size headers",
			url:            "https://example.com/audio.webm",
			responseStatus: 200,
			hasError:       true,
			methods:        []string{"HEAD", "GET"},
		},
		{
			name:           "Forbidden",
			url:            "https://googlevideo.com/videoplayback",
			responseStatus: 403,
			hasError:       true,
			methods:        []string{"GET"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockTransport{responseStatus: tt.responseStatus, responseHeaders: tt.responseHeaders}
			d := New(&http.Client{Transport: tr}, nil, 0)

			size, err := d.detectTotalSize(context.Background(), tt.url)
			if tt.hasError {
				if err == nil {
					t.Errorf("Expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				if size != tt.expectedSize {
					t.Errorf("Expected size %d, got %d", tt.expectedSize, size)
				}
			}
			if fmt.Sprint(tr.methods) != fmt.Sprint(tt.methods) {
				t.Errorf("methods = %v, want %v", tr.methods, tt.methods)
			}
		})
	}
}

// makeServer serves data honouring single byte ranges.
func makeServer(data []byte, hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil && r.Method == http.MethodGet {
			hits.Add(1)
		}
		start, end := 0, len(data)-1
		if rangeHdr := r.Header.Get("Range"); rangeHdr != "" {
			var a, b int
			if _, err := fmt.Sscanf(rangeHdr, "bytes=%d-%d", &a, &b); err == nil {
				start = a
				if b < end {
					end = b
				}
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
			w.Header().Set("Content-Length", fmt.Sprintf("%d", end-start+1))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		}
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(data[start : end+1])
	}))
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestDownloadInChunks(t *testing.T) {
	data := testData(2<<20 + 123)
	var hits atomic.Int32
	server := makeServer(data, &hits)
	defer server.Close()

	var last Progress
	dl := New(server.Client(), func(p Progress) { last = p }, 0)
	out := filepath.Join(t.TempDir(), "temp.webm")

	n, err := dl.Download(context.Background(), server.URL, out)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if n != int64(len(data)) {
		t.Fatalf("written = %d, want %d", n, len(data))
	}
	bs, err := os.ReadFile(out)
	if err != nil || !bytes.Equal(bs, data) {
		t.Fatalf("content mismatch: err=%v got=%d want=%d", err, len(bs), len(data))
	}
	if _, err := os.Stat(out + partialFileSuffix); !os.IsNotExist(err) {
		t.Fatalf("partial file should be gone, stat err = %v", err)
	}
	if last.DownloadedSize != int64(len(data)) || last.Percent != 100 {
		t.Fatalf("final progress = %+v", last)
	}
	// Three 1MB ranges; the size probe used HEAD.
	if hits.Load() != 3 {
		t.Fatalf("GET requests = %d, want 3", hits.Load())
	}
}

func TestDownloadOverwritesStalePartialFile(t *testing.T) {
	data := testData(4096)
	server := makeServer(data, nil)
	defer server.Close()

	out := filepath.Join(t.TempDir(), "temp.webm")
	if err := os.WriteFile(out+partialFileSuffix, []byte("stale bytes from an earlier run"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := New(server.Client(), nil, 0).Download(context.Background(), server.URL, out); err != nil {
		t.Fatal(err)
	}
	bs, _ := os.ReadFile(out)
	if !bytes.Equal(bs, data) {
		t.Fatal("partial file must not be resumed")
	}
}

func TestDownloadUnknownSize(t *testing.T) {
	data := testData(10000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			// Hide the size from probes.
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			return
		}
		w.(http.Flusher).Flush()
		_, _ = w.Write(data)
	}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "temp.m4a")
	n, err := New(server.Client(), nil, 0).Download(context.Background(), server.URL, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(data)) {
		t.Fatalf("written = %d, want %d", n, len(data))
	}
}

func TestDownloadFailureRemovesPartialFile(t *testing.T) {
	data := testData(3 << 20)
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && gets.Add(1) > 2 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var a, b int
		_, _ = fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &a, &b)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", a, b, len(data)))
		w.WriteHeader(http.StatusPartialContent)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data[a : b+1])
		}
	}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "temp.webm")
	_, err := New(server.Client(), nil, 0).Download(context.Background(), server.URL, out)

	var se *client.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
	// No retry: the failing range was requested exactly once.
	if gets.Load() != 3 {
		t.Fatalf("GET requests = %d, want 3", gets.Load())
	}
	for _, p := range []string{out, out + partialFileSuffix} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist, stat err = %v", filepath.Base(p), err)
		}
	}
}

func TestDownloadEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "temp.webm")
	_, err := New(server.Client(), nil, 0).Download(context.Background(), server.URL, out)
	if !errors.Is(err, ErrEmptyDownload) {
		t.Fatalf("expected ErrEmptyDownload, got %v", err)
	}
	if _, err := os.Stat(out + partialFileSuffix); !os.IsNotExist(err) {
		t.Fatalf("partial file should be removed, stat err = %v", err)
	}
}

func TestSleepForRate(t *testing.T) {
	tests := []struct {
		name         string
		rateLimitBps int64
		written      int64
		expectSleep  bool
	}{
		{"No rate limit", 0, 1000, false},
		{"Negative rate limit", -100, 1000, false},
		{"No bytes written", 1000, 0, false},
		{"Negative bytes written", 1000, -100, false},
		{"Normal rate limiting", 100000, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Downloader{rateLimitBps: tt.rateLimitBps}

			start := time.Now()
			if err := d.sleepForRate(context.Background(), tt.written); err != nil {
				t.Fatal(err)
			}
			duration := time.Since(start)

			if tt.expectSleep && duration < 5*time.Millisecond {
				t.Errorf("Expected sleep of about 10ms, got %v", duration)
			}
			if !tt.expectSleep && duration > 5*time.Millisecond {
				t.Errorf("Expected no sleep, got %v", duration)
			}
		})
	}
}

func TestSleepForRateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &Downloader{rateLimitBps: 1}
	if err := d.sleepForRate(ctx, 1000); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsGoogleVideoHost(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{"https://googlevideo.com/video.mp4", true},
		{"https://r1---sn-4g5e6n7s.googlevideo.com/videoplayback", true},
		{"http://r2---sn-4g5e6n7s.googlevideo.com/videoplayback", true},
		{"https://r1---sn-4g5e6n7s.googlevideo.com:443/videoplayback", true},
		{"https://example.com/video.mp4", false},
		{"https://fakegooglevideo.com/video.mp4", false},
		{"https://googlevideo-fake.com/video.mp4", false},
		{"", false},
		{"invalid-url", false},
	}

	for _, tt := range tests {
		if got := isGoogleVideoHost(tt.url); got != tt.expected {
			t.Errorf("isGoogleVideoHost(%q) = %v, want %v", tt.url, got, tt.expected)
		}
	}
}
