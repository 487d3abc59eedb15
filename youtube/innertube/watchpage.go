package innertube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ytget/yt2ogg/client"
	"github.com/ytget/yt2ogg/internal/logger"
)

const ytcfgMarker = "ytcfg.set({"

var playerJSURLRe = regexp.MustCompile(`"(?:jsUrl|PLAYER_JS_URL)":"([^"]+)"`)

// WatchPage holds the configuration scraped from a watch page.
type WatchPage struct {
	URL           string
	APIKey        string
	ClientVersion string
	VisitorData   string
	PlayerJSURL   string
	Title         string
}

type ytcfg struct {
	APIKey        string `json:"INNERTUBE_API_KEY"`
	ClientVersion string `json:"INNERTUBE_CLIENT_VERSION"`
	PlayerJSURL   string `json:"PLAYER_JS_URL"`
	VisitorData   string `json:"VISITOR_DATA"`
	Context       struct {
		Client struct {
			VisitorData string `json:"visitorData"`
		} `json:"client"`
	} `json:"INNERTUBE_CONTEXT"`
}

// WatchPage downloads and parses https://www.youtube.com/watch?v=<id>.
func (c *Client) WatchPage(ctx context.Context, videoID string) (*WatchPage, error) {
	pageURL := ytBase + "/watch?v=" + videoID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Cookie", "CONSENT=YES+cb")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &client.StatusError{URL: req.URL.Redacted(), StatusCode: resp.StatusCode}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	page, err := parseWatchPage(string(body))
	if err != nil {
		return nil, err
	}
	page.URL = pageURL

	c.log.Debug("watch page parsed", logger.Fields{
		"video":          videoID,
		"api_key":        page.APIKey != "",
		"client_version": page.ClientVersion,
		"visitor_data":   page.VisitorData != "",
		"player_js":      page.PlayerJSURL,
	})
	return page, nil
}

// parseWatchPage reads every ytcfg.set({...}) script block, the jsUrl and
// the og:title meta tag.
func parseWatchPage(html string) (*WatchPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse watch page: %w", err)
	}

	page := &WatchPage{}
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		for {
			i := strings.Index(text, ytcfgMarker)
			if i < 0 {
				return
			}
			text = text[i+len(ytcfgMarker)-1:]
			var cfg ytcfg
			if err := json.NewDecoder(strings.NewReader(text)).Decode(&cfg); err == nil {
				page.merge(cfg)
			}
			text = text[1:]
		}
	})

	if page.PlayerJSURL == "" {
		if m := playerJSURLRe.FindStringSubmatch(html); m != nil {
			page.PlayerJSURL = m[1]
		}
	}
	page.PlayerJSURL = absoluteURL(strings.ReplaceAll(page.PlayerJSURL, `\/`, `/`))

	page.Title = strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	if page.Title == "" {
		page.Title = strings.TrimSuffix(strings.TrimSpace(doc.Find("title").First().Text()), " - YouTube")
	}
	return page, nil
}

func (p *WatchPage) merge(cfg ytcfg) {
	if p.APIKey == "" {
		p.APIKey = cfg.APIKey
	}
	if p.ClientVersion == "" {
		p.ClientVersion = cfg.ClientVersion
	}
	if p.PlayerJSURL == "" {
		p.PlayerJSURL = cfg.PlayerJSURL
	}
	if p.VisitorData == "" {
		v := cfg.Context.Client.VisitorData
		if v == "" {
			v = cfg.VisitorData
		}
		p.VisitorData = strings.ReplaceAll(v, "%3D", "=")
	}
}

func absoluteURL(u string) string {
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		return ytBase + u
	default:
		return u
	}
}
