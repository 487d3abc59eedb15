// Package mimeext maps stream MIME types to staged file extensions.
package mimeext

import (
	"mime"
	"strings"
)

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "bin"

	// ExtM4A is the file extension for MP4 audio.
	ExtM4A = "m4a"
	// ExtMP4 is the file extension for MP4 video.
	ExtMP4 = "mp4"
	// ExtWebM is the file extension for WebM media.
	ExtWebM = "webm"
	// ExtOgg is the file extension for Ogg media.
	ExtOgg = "ogg"
	// ExtMP3 is the file extension for MPEG audio.
	ExtMP3 = "mp3"

	// MimeVideoMP4 is the MIME type for MP4 video.
	MimeVideoMP4 = "video/mp4"
	// MimeAudioMP4 is the MIME type for MP4 audio.
	MimeAudioMP4 = "audio/mp4"
	// MimeVideoWebM is the MIME type for WebM video.
	MimeVideoWebM = "video/webm"
	// MimeAudioWebM is the MIME type for WebM audio.
	MimeAudioWebM = "audio/webm"
	// MimeAudioOgg is the MIME type for Ogg audio.
	MimeAudioOgg = "audio/ogg"
	// MimeAudioMPEG is the MIME type for MPEG audio.
	MimeAudioMPEG = "audio/mpeg"
)

// baseType returns the lower-cased type/subtype without parameters.
func baseType(mimeType string) string {
	base := strings.TrimSpace(mimeType)
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	return strings.ToLower(strings.TrimSpace(base))
}

// ExtFromMime returns file extension (without dot) for given mime type.
// Falls back to the subtype, or DefaultExt if there is none.
func ExtFromMime(mimeType string) string {
	base := baseType(mimeType)
	switch base {
	case "":
		return DefaultExt
	case MimeVideoMP4:
		return ExtMP4
	case MimeAudioMP4:
		return ExtM4A
	case MimeVideoWebM, MimeAudioWebM:
		return ExtWebM
	case MimeAudioOgg:
		return ExtOgg
	case MimeAudioMPEG:
		return ExtMP3
	}
	parts := strings.Split(base, "/")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}
	return DefaultExt
}

// IsAudio reports whether the MIME type is an audio type.
func IsAudio(mimeType string) bool {
	return strings.HasPrefix(baseType(mimeType), "audio/")
}

// Codecs returns the codecs parameter, e.g. "opus" for
// `audio/webm; codecs="opus"`. It returns "" when absent or malformed.
func Codecs(mimeType string) string {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}
	return params["codecs"]
}
