package formats

import (
	"strings"

	"github.com/ytget/yt2ogg/internal/mimeext"
	"github.com/ytget/yt2ogg/types"
)

// hasDirectURL returns true when the candidate already contains a resolvable URL.
// Candidates without direct URLs need signature deciphering.
func hasDirectURL(c types.StreamCandidate) bool {
	return strings.TrimSpace(c.URL) != ""
}

// hasCipher returns true when the candidate carries a signatureCipher.
func hasCipher(c types.StreamCandidate) bool {
	return strings.TrimSpace(c.SignatureCipher) != ""
}

// isAudioOnly checks the MIME type for audio without a video track.
func isAudioOnly(c types.StreamCandidate) bool {
	return mimeext.IsAudio(c.MimeType)
}
