package yt2ogg

import "github.com/ytget/yt2ogg/types"

// SelectStream returns the audio-only candidate with the highest bitrate.
// The first of several equal maxima wins. ok is false when no audio-only
// candidate exists.
func SelectStream(cands []types.StreamCandidate) (best types.StreamCandidate, ok bool) {
	for _, c := range cands {
		if !c.IsAudioOnly() {
			continue
		}
		if !ok || c.Bitrate > best.Bitrate {
			best, ok = c, true
		}
	}
	return best, ok
}

// SelectThumbnail returns the thumbnail with the largest area, keeping the
// first one on ties.
func SelectThumbnail(thumbs []types.Thumbnail) (best types.Thumbnail, ok bool) {
	for _, t := range thumbs {
		if !ok || t.Area() > best.Area() {
			best, ok = t, true
		}
	}
	return best, ok
}
