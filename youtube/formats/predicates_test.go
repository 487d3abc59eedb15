package formats

import (
	"testing"

	"github.com/ytget/yt2ogg/types"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name   string
		c      types.StreamCandidate
		direct bool
		cipher bool
		audio  bool
	}{
		{"direct audio", types.StreamCandidate{URL: "http://x", MimeType: `audio/webm; codecs="opus"`}, true, false, true},
		{"cipher audio", types.StreamCandidate{SignatureCipher: "s=1&url=x", MimeType: "AUDIO/MP4"}, false, true, true},
		{"blank", types.StreamCandidate{URL: "  ", MimeType: "video/mp4"}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasDirectURL(tt.c); got != tt.direct {
				t.Errorf("hasDirectURL = %v, want %v", got, tt.direct)
			}
			if got := hasCipher(tt.c); got != tt.cipher {
				t.Errorf("hasCipher = %v, want %v", got, tt.cipher)
			}
			if got := isAudioOnly(tt.c); got != tt.audio {
				t.Errorf("isAudioOnly = %v, want %v", got, tt.audio)
			}
		})
	}
}
