package types

import (
	"fmt"
	"strings"
)

// VideoRef is a validated YouTube video identifier (11 characters).
type VideoRef string

// String returns the raw identifier.
func (r VideoRef) String() string { return string(r) }

// WatchURL returns the canonical watch page URL for the reference.
func (r VideoRef) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + string(r)
}

// Thumbnail describes one cover image option.
type Thumbnail struct {
	URL    string
	Width  int
	Height int
}

// Area returns width multiplied by height.
func (t Thumbnail) Area() int {
	return t.Width * t.Height
}

// Resolution renders the thumbnail size as WxH.
func (t Thumbnail) Resolution() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

// Metadata is the read-only video information used by one pipeline run.
type Metadata struct {
	ID         VideoRef
	Title      string
	Author     string
	Duration   int
	Thumbnails []Thumbnail
}

// Bitrate is a stream bitrate in bits per second.
type Bitrate int64

// KiloBits returns the bitrate in Kbit/s.
func (b Bitrate) KiloBits() float64 {
	return float64(b) / 1024
}

// String renders the bitrate as "128.00 Kbit/s".
func (b Bitrate) String() string {
	return fmt.Sprintf("%.2f Kbit/s", b.KiloBits())
}

// StreamCandidate is one downloadable audio-only stream option.
type StreamCandidate struct {
	Itag            int
	URL             string
	MimeType        string
	Container       string
	Codecs          string
	Bitrate         Bitrate
	Size            int64
	SignatureCipher string
}

// IsAudioOnly reports whether the candidate carries audio without video.
func (c StreamCandidate) IsAudioOnly() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(c.MimeType)), "audio/")
}
