package types

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidRef is returned when input cannot be parsed into a video reference.
var ErrInvalidRef = errors.New("invalid youtube url or id")

var videoIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

// pathPrefixes hold the URL path forms that carry the id as the next segment.
var pathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/"}

// ParseVideoRef accepts a raw 11-character id or a common YouTube URL shape.
// No network access is performed.
func ParseVideoRef(input string) (VideoRef, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrInvalidRef
	}
	if videoIDPattern.MatchString(s) {
		return VideoRef(s), nil
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", ErrInvalidRef
	}
	host := strings.ToLower(u.Hostname())

	var id string
	switch {
	case host == "youtu.be":
		id = strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
	case youtubeHosts[host]:
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		for _, p := range pathPrefixes {
			if strings.HasPrefix(u.Path, p) {
				id = strings.SplitN(strings.TrimPrefix(u.Path, p), "/", 2)[0]
				break
			}
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", ErrInvalidRef
	}
	return VideoRef(id), nil
}
