// Package downloader streams a media URL into a staged file using ranged
// HTTP requests.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/yt2ogg/client"
	"github.com/ytget/yt2ogg/internal/logger"
)

const (
	defaultChunkSizeBytes = 1 << 20   // 1MB
	copyBufferSizeBytes   = 32 * 1024 // 32KB
	partialFileSuffix     = ".part"

	headerRange          = "Range"
	headerContentRange   = "Content-Range"
	headerContentLength  = "Content-Length"
	headerAccept         = "Accept"
	headerAcceptLanguage = "Accept-Language"
	headerAcceptEncoding = "Accept-Encoding"
	headerConnection     = "Connection"
	headerCacheControl   = "Cache-Control"
)

// ErrEmptyDownload is returned when the server sent no bytes at all.
var ErrEmptyDownload = errors.New("empty download: 0 bytes written")

// Doer sends HTTP requests. *http.Client and *client.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Progress holds information about download progress.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Downloader fetches a URL in bounded ranges with optional rate limiting.
// Each request is attempted once; any failure aborts the download and
// removes the partial file.
type Downloader struct {
	Client       Doer
	ProgressFunc func(Progress)

	chunkSize    int64
	rateLimitBps int64
	log          *logger.ComponentLogger
}

// New creates a downloader. If c is nil, a default client is used.
// rateLimitBps=0 disables limiting.
func New(c Doer, progressFunc func(Progress), rateLimitBps int64) *Downloader {
	if c == nil {
		c = client.New()
	}
	return &Downloader{
		Client:       c,
		ProgressFunc: progressFunc,
		chunkSize:    defaultChunkSizeBytes,
		rateLimitBps: rateLimitBps,
		log:          logger.WithComponent(logger.ComponentDownloader),
	}
}

// WithChunkSize overrides the range size. Non-positive values are ignored.
func (d *Downloader) WithChunkSize(n int64) *Downloader {
	if n > 0 {
		d.chunkSize = n
	}
	return d
}

func (d *Downloader) logger() *logger.ComponentLogger {
	if d.log == nil {
		d.log = logger.WithComponent(logger.ComponentDownloader)
	}
	return d.log
}

func isGoogleVideoHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return strings.HasSuffix(h, ".googlevideo.com") || h == "googlevideo.com"
}

func (d *Downloader) newRequest(ctx context.Context, method, rawURL, rangeVal string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", client.DefaultUserAgent)
	req.Header.Set(headerAccept, "*/*")
	req.Header.Set(headerAcceptEncoding, "identity")
	req.Header.Set(headerConnection, "keep-alive")
	req.Header.Set(headerCacheControl, "no-cache")
	if !isGoogleVideoHost(rawURL) {
		req.Header.Set(headerAcceptLanguage, "en-US,en;q=0.9")
	}
	if rangeVal != "" {
		req.Header.Set(headerRange, rangeVal)
	}
	return req, nil
}

// totalFromHeaders reads the full size from Content-Range, falling back to
// Content-Length.
func totalFromHeaders(h http.Header) (int64, bool) {
	if cr := h.Get(headerContentRange); cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if v, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				return v, true
			}
		}
	}
	if cl := h.Get(headerContentLength); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func (d *Downloader) probe(ctx context.Context, method, rawURL string) (int64, error) {
	req, err := d.newRequest(ctx, method, rawURL, "bytes=0-1")
	if err != nil {
		return 0, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	d.logger().Trace("size probe", logger.Fields{"method": method, "status": resp.StatusCode})
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, &client.StatusError{URL: req.URL.Redacted(), StatusCode: resp.StatusCode}
	}
	if v, ok := totalFromHeaders(resp.Header); ok {
		return v, nil
	}
	return 0, errors.New("cannot determine total size")
}

// detectTotalSize asks for the first two bytes to learn the full size.
// googlevideo rejects HEAD, so only GET is used there.
func (d *Downloader) detectTotalSize(ctx context.Context, rawURL string) (int64, error) {
	if !isGoogleVideoHost(rawURL) {
		if v, err := d.probe(ctx, http.MethodHead, rawURL); err == nil {
			return v, nil
		}
	}
	return d.probe(ctx, http.MethodGet, rawURL)
}

// sleepForRate enforces the rate limit for bytes written in this step.
func (d *Downloader) sleepForRate(ctx context.Context, written int64) error {
	if d.rateLimitBps <= 0 || written <= 0 {
		return nil
	}
	dur := time.Duration(int64(time.Second) * written / d.rateLimitBps)
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Download saves rawURL to outputPath and returns the number of bytes
// written. Bytes are staged in outputPath+".part", which is renamed on
// success and removed on failure.
func (d *Downloader) Download(ctx context.Context, rawURL string, outputPath string) (written int64, err error) {
	log := d.logger().With(logger.Fields{"dest": outputPath})

	totalSize, err := d.detectTotalSize(ctx, rawURL)
	if err != nil {
		log.Debug("total size unknown, downloading in one request", logger.Fields{"error": err.Error()})
		totalSize = 0
	} else {
		log.Debug("total size", logger.Fields{"bytes": totalSize})
	}

	partPath := outputPath + partialFileSuffix
	out, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", partPath, err)
	}
	defer func() {
		if out != nil {
			_ = out.Close()
		}
		if err != nil {
			_ = os.Remove(partPath)
		}
	}()

	dst := &progressWriter{d: d, ctx: ctx, w: out, total: totalSize}
	if totalSize == 0 {
		if err := d.copyRange(ctx, rawURL, "", dst); err != nil {
			return dst.written, err
		}
	} else {
		for dst.written < totalSize {
			start := dst.written
			end := start + d.chunkSize - 1
			if end >= totalSize {
				end = totalSize - 1
			}
			before := dst.written
			if err := d.copyRange(ctx, rawURL, fmt.Sprintf("bytes=%d-%d", start, end), dst); err != nil {
				return dst.written, err
			}
			if dst.full {
				break
			}
			if dst.written == before {
				return dst.written, fmt.Errorf("range %d-%d returned no data", start, end)
			}
		}
		if dst.written < totalSize {
			return dst.written, fmt.Errorf("short download: %d of %d bytes", dst.written, totalSize)
		}
	}

	if dst.written == 0 {
		return 0, ErrEmptyDownload
	}

	cerr := out.Close()
	out = nil
	if cerr != nil {
		return dst.written, fmt.Errorf("close %s: %w", partPath, cerr)
	}
	if err := os.Rename(partPath, outputPath); err != nil {
		return dst.written, fmt.Errorf("rename %s: %w", partPath, err)
	}

	log.Debug("download complete", logger.Fields{"bytes": dst.written})
	return dst.written, nil
}

// copyRange performs one request and appends its body to dst. A 200 answer
// to a ranged request carries the whole resource and is accepted only at
// offset zero.
func (d *Downloader) copyRange(ctx context.Context, rawURL, rangeVal string, dst *progressWriter) error {
	req, err := d.newRequest(ctx, http.MethodGet, rawURL, rangeVal)
	if err != nil {
		return err
	}
	d.logger().Trace("requesting", logger.Fields{"range": rangeVal})

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK:
		if rangeVal != "" {
			if dst.written > 0 {
				return fmt.Errorf("server ignored range %s", rangeVal)
			}
			dst.full = true
		}
	default:
		return &client.StatusError{URL: req.URL.Redacted(), StatusCode: resp.StatusCode}
	}

	buf := make([]byte, copyBufferSizeBytes)
	if _, err := io.CopyBuffer(dst, resp.Body, buf); err != nil {
		return fmt.Errorf("copy body: %w", err)
	}
	return nil
}

// progressWriter counts bytes, reports progress and applies rate limiting.
type progressWriter struct {
	d       *Downloader
	ctx     context.Context
	w       io.Writer
	total   int64
	written int64
	full    bool
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if n > 0 && p.d.ProgressFunc != nil {
		pr := Progress{TotalSize: p.total, DownloadedSize: p.written}
		if p.total > 0 {
			pr.Percent = float64(p.written) / float64(p.total) * 100
		}
		p.d.ProgressFunc(pr)
	}
	if err != nil {
		return n, err
	}
	if err := p.d.sleepForRate(p.ctx, int64(n)); err != nil {
		return n, err
	}
	return n, nil
}
