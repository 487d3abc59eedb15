package innertube

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/ytget/yt2ogg/client"
	"github.com/ytget/yt2ogg/errs"
	"github.com/ytget/yt2ogg/internal/botguard"
	"github.com/ytget/yt2ogg/internal/logger"
)

var ytBase = "https://www.youtube.com"

const (
	playerPath            = "/youtubei/v1/player"
	headerContentTypeJSON = "application/json"
	clientNameWEB         = "WEB"
	clientNameANDROID     = "ANDROID"
	defaultClientVersion  = "2.20250312.04.00"
	defaultAndroidVersion = "19.09.37"
)

// clientCodeFromName returns X-YouTube-Client-Name numeric code for known clients
func clientCodeFromName(name string) string {
	switch strings.ToUpper(name) {
	case "WEB":
		return "1"
	case "MWEB":
		return "2"
	case "ANDROID":
		return "3"
	case "IOS":
		return "5"
	case "TVHTML5":
		return "7"
	case "WEB_EMBEDDED_PLAYER":
		return "56"
	case "WEB_REMIX":
		return "67"
	default:
		return ""
	}
}

// Doer sends HTTP requests. *http.Client and *client.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client for interacting with the YouTube InnerTube API.
type Client struct {
	HTTPClient Doer
	UserAgent  string

	clientName string
	clientVer  string
	attester   *botguard.Attester
	log        *logger.ComponentLogger
}

// New creates an InnerTube client. A nil c uses client.New(). The User-Agent
// of a *client.Client is reused for page and player requests.
func New(c Doer) *Client {
	if c == nil {
		c = client.New()
	}
	ua := client.DefaultUserAgent
	if cc, ok := c.(*client.Client); ok && cc.UserAgent != "" {
		ua = cc.UserAgent
	}
	return &Client{
		HTTPClient: c,
		UserAgent:  ua,
		clientName: clientNameWEB,
		log:        logger.WithComponent(logger.ComponentInnerTube),
	}
}

// WithClient overrides InnerTube client name/version to shape playback URLs.
func (c *Client) WithClient(name, version string) *Client {
	if strings.TrimSpace(name) != "" {
		c.clientName = strings.ToUpper(strings.TrimSpace(name))
	}
	if strings.TrimSpace(version) != "" {
		c.clientVer = strings.TrimSpace(version)
	}
	return c
}

// WithBotguard attaches a token from a to every player request.
// A nil attester disables Botguard.
func (c *Client) WithBotguard(a *botguard.Attester) *Client {
	c.attester = a
	return c
}

// BotguardMode reports whether player requests carry an attestation token.
func (c *Client) BotguardMode() botguard.Mode {
	if c.attester == nil || c.attester.Solver == nil {
		return botguard.Off
	}
	return botguard.Force
}

// GetPlayerResponse loads the watch page for its configuration and then
// fetches video data from the InnerTube /player endpoint. Each request is
// attempted once.
func (c *Client) GetPlayerResponse(ctx context.Context, videoID string) (*PlayerResponse, error) {
	log := c.log.With(logger.Fields{"video": videoID})

	page, err := c.WatchPage(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	name, ver, ua := c.clientName, c.clientVer, c.UserAgent
	if ver == "" {
		ver = page.ClientVersion
	}
	if ver == "" {
		ver = defaultClientVersion
	}
	clientMap := map[string]any{
		"clientName":    name,
		"clientVersion": ver,
		"hl":            "en",
	}
	if page.VisitorData != "" {
		clientMap["visitorData"] = page.VisitorData
	}
	// Enrich Android client context to match yt-dlp shape
	if name == clientNameANDROID {
		if c.clientVer == "" {
			ver = defaultAndroidVersion
		}
		ua = "com.google.android.youtube/" + ver + " (Linux; U; Android 11) gzip"
		clientMap["clientVersion"] = ver
		clientMap["androidSdkVersion"] = 30
		clientMap["osName"] = "Android"
		clientMap["osVersion"] = "11"
		clientMap["userAgent"] = ua
	}

	requestBody, err := json.Marshal(map[string]any{
		"context":        map[string]any{"client": clientMap},
		"videoId":        videoID,
		"contentCheckOk": true,
		"racyCheckOk":    true,
	})
	if err != nil {
		return nil, err
	}

	endpoint := ytBase + playerPath + "?prettyPrint=false"
	if page.APIKey != "" {
		endpoint += "&key=" + page.APIKey
	} else {
		log.Debug("no api key on watch page, calling player without key")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", headerContentTypeJSON)
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Referer", ytBase+"/")
	req.Header.Set("Origin", ytBase)
	if code := clientCodeFromName(name); code != "" {
		req.Header.Set("X-YouTube-Client-Name", code)
	}
	req.Header.Set("X-YouTube-Client-Version", ver)
	if page.VisitorData != "" {
		req.Header.Set("X-Goog-Visitor-Id", page.VisitorData)
	}
	c.applyBotguard(req, botguard.Input{
		UserAgent:     ua,
		PageURL:       page.URL,
		ClientName:    name,
		ClientVersion: ver,
		VisitorID:     page.VisitorData,
		VideoID:       videoID,
	})

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	log.Debug("player response", logger.Fields{
		"status":   resp.StatusCode,
		"encoding": resp.Header.Get("Content-Encoding"),
	})

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: player endpoint returned %d", errs.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &client.StatusError{URL: req.URL.Redacted(), StatusCode: resp.StatusCode}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	log.Trace("player body", logger.Fields{"bytes": len(body)})

	var pr PlayerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse player response: %w", err)
	}
	if err := pr.PlayabilityStatus.Err(); err != nil {
		return nil, err
	}

	pr.PlayerJSURL = page.PlayerJSURL
	if pr.VideoDetails.Title == "" {
		pr.VideoDetails.Title = page.Title
	}
	return &pr, nil
}

// applyBotguard sets the attestation header. Failures are logged and the
// request proceeds without a token.
func (c *Client) applyBotguard(req *http.Request, in botguard.Input) {
	if c.BotguardMode() == botguard.Off {
		return
	}
	bg := logger.WithComponent(logger.ComponentBotGuard)
	token, err := c.attester.Token(req.Context(), in)
	if err != nil {
		bg.Warn("attestation failed, continuing without token", logger.Fields{"error": err.Error()})
		return
	}
	if token != "" {
		bg.Debug("applying token")
		req.Header.Set(botguard.HeaderName, token)
	}
}

// readBody reads the response, decoding Content-Encoding by hand because
// the request sets Accept-Encoding itself.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create deflate reader: %w", err)
		}
		defer func() { _ = zr.Close() }()
		reader = zr
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
