package youtube

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ytget/yt2ogg/client"
	"github.com/ytget/yt2ogg/errs"
	"github.com/ytget/yt2ogg/types"
)

const testRef = types.VideoRef("dQw4w9WgXcQ")

const watchHTML = `<html><head><meta property="og:title" content="Test Song">
<script>ytcfg.set({"INNERTUBE_API_KEY":"key123","PLAYER_JS_URL":"/s/player/abc/base.js"});</script>
</head></html>`

const playerJS = `var Xy={ab:function(a){a.reverse()},cd:function(a,b){a.splice(0,b)}};
Zq=function(a){a=a.split("");Xy.ab(a,1);Xy.cd(a,2);return a.join("")};`

const playerJSON = `{
  "playabilityStatus": {"status": "OK"},
  "streamingData": {
    "formats": [
      {"itag": 18, "url": "https://rr1.googlevideo.com/videoplayback?itag=18", "mimeType": "video/mp4; codecs=\"avc1.42001E, mp4a.40.2\"", "bitrate": 500000}
    ],
    "adaptiveFormats": [
      {"itag": 140, "url": "https://rr1.googlevideo.com/videoplayback?itag=140", "mimeType": "audio/mp4; codecs=\"mp4a.40.2\"", "bitrate": 130000},
      {"itag": 251, "signatureCipher": "s=abcdef&sp=sig&url=https%3A%2F%2Frr1.googlevideo.com%2Fvideoplayback%3Fitag%3D251", "mimeType": "audio/webm; codecs=\"opus\"", "bitrate": 160000}
    ]
  },
  "videoDetails": {
    "videoId": "dQw4w9WgXcQ",
    "title": "Test Song",
    "author": "Someone",
    "lengthSeconds": "212",
    "thumbnail": {"thumbnails": [
      {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/default.jpg", "width": 120, "height": 90},
      {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/sddefault.jpg", "width": 640, "height": 480}
    ]}
  }
}`

// rewriteTransport sends every request to the test server, keeping the path.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.target.Scheme
	r.URL.Host = t.target.Host
	r.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

type fakeYouTube struct {
	playerHits atomic.Int32
	jsHits     atomic.Int32
	media      []byte
	playerBody string
	brokenJS   bool
}

func (f *fakeYouTube) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, watchHTML)
	})
	mux.HandleFunc("/youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		f.playerHits.Add(1)
		if r.URL.Query().Get("key") != "key123" {
			t.Errorf("missing api key: %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, f.playerBody)
	})
	mux.HandleFunc("/s/player/abc/base.js", func(w http.ResponseWriter, r *http.Request) {
		f.jsHits.Add(1)
		if f.brokenJS {
			_, _ = io.WriteString(w, "var nothing=1;")
			return
		}
		_, _ = io.WriteString(w, playerJS)
	})
	mux.HandleFunc("/videoplayback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("itag") == "251" && q.Get("sig") != "dcba" {
			http.Error(w, "bad signature", http.StatusForbidden)
			return
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(f.media))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeYouTube) *Client {
	t.Helper()
	if f.playerBody == "" {
		f.playerBody = playerJSON
	}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	target, _ := url.Parse(srv.URL)

	hc := client.New()
	hc.HTTPClient = &http.Client{Transport: rewriteTransport{target: target}}
	return New(Config{HTTP: hc})
}

func TestResolve(t *testing.T) {
	f := &fakeYouTube{}
	c := newTestClient(t, f)

	md, err := c.Resolve(context.Background(), testRef)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if md.Title != "Test Song" || md.Author != "Someone" || md.Duration != 212 {
		t.Fatalf("unexpected metadata: %+v", md)
	}
	if len(md.Thumbnails) != 2 || md.Thumbnails[1].Resolution() != "640x480" {
		t.Fatalf("unexpected thumbnails: %+v", md.Thumbnails)
	}
}

func TestStreamManifest(t *testing.T) {
	f := &fakeYouTube{}
	c := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.Resolve(ctx, testRef); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	cands, err := c.StreamManifest(ctx, testRef)
	if err != nil {
		t.Fatalf("StreamManifest failed: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 audio candidates, got %+v", cands)
	}
	if got := f.playerHits.Load(); got != 1 {
		t.Fatalf("player response should be fetched once, got %d", got)
	}
	if got := f.jsHits.Load(); got != 1 {
		t.Fatalf("player.js should be fetched once, got %d", got)
	}

	byItag := map[int]types.StreamCandidate{}
	for _, c := range cands {
		byItag[c.Itag] = c
	}
	opus, ok := byItag[251]
	if !ok {
		t.Fatal("itag 251 missing")
	}
	u, _ := url.Parse(opus.URL)
	if u.Query().Get("sig") != "dcba" {
		t.Fatalf("signature not applied: %s", opus.URL)
	}
	if opus.SignatureCipher != "" || opus.Container != "webm" || opus.Codecs != "opus" {
		t.Fatalf("unexpected candidate: %+v", opus)
	}
}

func TestStreamManifestAllCandidatesFail(t *testing.T) {
	f := &fakeYouTube{brokenJS: true, playerBody: `{
  "playabilityStatus": {"status": "OK"},
  "streamingData": {"adaptiveFormats": [
    {"itag": 251, "signatureCipher": "s=abcdef&url=https%3A%2F%2Frr1.googlevideo.com%2Fvideoplayback", "mimeType": "audio/webm", "bitrate": 160000}
  ]},
  "videoDetails": {"videoId": "dQw4w9WgXcQ", "title": "x"}
}`}
	c := newTestClient(t, f)

	_, err := c.StreamManifest(context.Background(), testRef)
	if !errors.Is(err, errs.ErrCipherFailed) {
		t.Fatalf("expected ErrCipherFailed, got %v", err)
	}
}

func TestStreamManifestNoAudio(t *testing.T) {
	f := &fakeYouTube{playerBody: `{
  "playabilityStatus": {"status": "OK"},
  "streamingData": {"formats": [{"itag": 18, "url": "https://rr1.googlevideo.com/x", "mimeType": "video/mp4"}]},
  "videoDetails": {"videoId": "dQw4w9WgXcQ", "title": "x"}
}`}
	c := newTestClient(t, f)

	cands, err := c.StreamManifest(context.Background(), testRef)
	if err != nil || len(cands) != 0 {
		t.Fatalf("expected empty manifest, got %v, %v", cands, err)
	}
	if f.jsHits.Load() != 0 {
		t.Fatal("player.js must not be fetched without candidates")
	}
}

func TestUnplayable(t *testing.T) {
	f := &fakeYouTube{playerBody: `{"playabilityStatus": {"status": "LOGIN_REQUIRED", "reason": "This video is private"}}`}
	c := newTestClient(t, f)

	if _, err := c.Resolve(context.Background(), testRef); !errors.Is(err, errs.ErrPrivate) {
		t.Fatalf("expected ErrPrivate, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	f := &fakeYouTube{media: bytes.Repeat([]byte("opus"), 1000)}
	c := newTestClient(t, f)
	ctx := context.Background()

	cands, err := c.StreamManifest(ctx, testRef)
	if err != nil {
		t.Fatalf("StreamManifest failed: %v", err)
	}
	dest := filepath.Join(t.TempDir(), "temp.webm")
	var cand types.StreamCandidate
	for _, c := range cands {
		if c.Itag == 251 {
			cand = c
		}
	}
	n, err := c.Download(ctx, cand, dest)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if n != int64(len(f.media)) {
		t.Fatalf("expected %d bytes, got %d", len(f.media), n)
	}
	got, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(got, f.media) {
		t.Fatalf("staged file mismatch: %v", err)
	}
}

func TestDownloadUnresolved(t *testing.T) {
	c := New(Config{})
	if _, err := c.Download(context.Background(), types.StreamCandidate{Itag: 251}, filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatal("expected error for candidate without url")
	}
}
