package innertube

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ytget/yt2ogg/errs"
)

// PlayerResponse represents a response from the InnerTube /player endpoint.
type PlayerResponse struct {
	PlayabilityStatus PlayabilityStatus `json:"playabilityStatus"`
	StreamingData     struct {
		ExpiresInSeconds string   `json:"expiresInSeconds"`
		Formats          []Format `json:"formats"`
		AdaptiveFormats  []Format `json:"adaptiveFormats"`
	} `json:"streamingData"`
	VideoDetails struct {
		VideoID       string        `json:"videoId"`
		Title         string        `json:"title"`
		Author        string        `json:"author"`
		LengthSeconds string        `json:"lengthSeconds"`
		Thumbnail     ThumbnailList `json:"thumbnail"`
	} `json:"videoDetails"`
	Microformat struct {
		Renderer struct {
			Thumbnail ThumbnailList `json:"thumbnail"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`

	// PlayerJSURL is taken from the watch page, not from the response body.
	PlayerJSURL string `json:"-"`
}

// Duration returns lengthSeconds as an int, or 0 when absent.
func (p *PlayerResponse) Duration() int {
	n, _ := strconv.Atoi(p.VideoDetails.LengthSeconds)
	return n
}

// Format is one entry of formats or adaptiveFormats.
type Format struct {
	Itag             int    `json:"itag"`
	URL              string `json:"url"`
	MimeType         string `json:"mimeType"`
	Bitrate          int64  `json:"bitrate"`
	AverageBitrate   int64  `json:"averageBitrate"`
	ContentLength    string `json:"contentLength"`
	SignatureCipher  string `json:"signatureCipher"`
	Cipher           string `json:"cipher"`
	QualityLabel     string `json:"qualityLabel"`
	AudioQuality     string `json:"audioQuality"`
	AudioSampleRate  string `json:"audioSampleRate"`
	AudioChannels    int    `json:"audioChannels"`
	ApproxDurationMs string `json:"approxDurationMs"`
}

// ThumbnailList is the {"thumbnails":[...]} wrapper used by several fields.
type ThumbnailList struct {
	Thumbnails []Thumbnail `json:"thumbnails"`
}

// Thumbnail is one image option.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// PlayabilityStatus reports whether the video can be played.
type PlayabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Err maps a non-OK status to one of the errs platform errors. The reason
// text is kept in the message.
func (s PlayabilityStatus) Err() error {
	status := strings.ToUpper(strings.TrimSpace(s.Status))
	if status == "" || status == "OK" {
		return nil
	}
	reason := strings.ToLower(s.Reason)

	var kind error
	switch {
	case strings.Contains(reason, "private"):
		kind = errs.ErrPrivate
	case strings.HasPrefix(status, "AGE_") || strings.Contains(reason, "your age") ||
		strings.Contains(reason, "age-restricted") || strings.Contains(reason, "inappropriate"):
		kind = errs.ErrAgeRestricted
	case strings.Contains(reason, "not a bot") || strings.Contains(reason, "unusual traffic"):
		kind = errs.ErrRateLimited
	case strings.Contains(reason, "country") || strings.Contains(reason, "region"):
		kind = errs.ErrGeoBlocked
	case status == "LOGIN_REQUIRED":
		kind = errs.ErrPrivate
	default:
		kind = errs.ErrVideoUnavailable
	}
	if s.Reason == "" {
		return fmt.Errorf("%w (%s)", kind, status)
	}
	return fmt.Errorf("%w: %s", kind, s.Reason)
}
