// Package formats turns InnerTube player responses into stream candidates,
// thumbnails and metadata, and builds the final download URLs.
package formats

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ytget/yt2ogg/internal/logger"
	"github.com/ytget/yt2ogg/internal/mimeext"
	"github.com/ytget/yt2ogg/types"
	"github.com/ytget/yt2ogg/youtube/innertube"
)

const thumbnailBase = "https://i.ytimg.com/vi/"

// defaultThumbnails are the fixed-size images every video has.
var defaultThumbnails = []struct {
	name          string
	width, height int
}{
	{"default.jpg", 120, 90},
	{"mqdefault.jpg", 320, 180},
	{"hqdefault.jpg", 480, 360},
	{"sddefault.jpg", 640, 480},
	{"maxresdefault.jpg", 1280, 720},
}

// Decoder decodes signatures and n values. *cipher.Decoder satisfies it.
type Decoder interface {
	Decipher(ctx context.Context, playerJSURL, signature string) (string, error)
	DecipherN(ctx context.Context, playerJSURL, n string) (string, error)
}

// ParseStreams converts every progressive and adaptive format of the
// player response into a stream candidate.
func ParseStreams(pr *innertube.PlayerResponse) []types.StreamCandidate {
	all := make([]innertube.Format, 0, len(pr.StreamingData.Formats)+len(pr.StreamingData.AdaptiveFormats))
	all = append(all, pr.StreamingData.Formats...)
	all = append(all, pr.StreamingData.AdaptiveFormats...)

	out := make([]types.StreamCandidate, 0, len(all))
	for _, f := range all {
		bitrate := f.Bitrate
		if bitrate == 0 {
			bitrate = f.AverageBitrate
		}
		size, _ := strconv.ParseInt(f.ContentLength, 10, 64)
		sc := f.SignatureCipher
		if sc == "" {
			sc = f.Cipher
		}
		out = append(out, types.StreamCandidate{
			Itag:            f.Itag,
			URL:             f.URL,
			MimeType:        f.MimeType,
			Container:       mimeext.ExtFromMime(f.MimeType),
			Codecs:          mimeext.Codecs(f.MimeType),
			Bitrate:         types.Bitrate(bitrate),
			Size:            size,
			SignatureCipher: sc,
		})
	}
	return out
}

// AudioStreams returns the audio-only candidates that carry a URL or a
// signatureCipher.
func AudioStreams(pr *innertube.PlayerResponse) []types.StreamCandidate {
	var out []types.StreamCandidate
	for _, c := range ParseStreams(pr) {
		if isAudioOnly(c) && (hasDirectURL(c) || hasCipher(c)) {
			out = append(out, c)
		}
	}
	return out
}

// ParseThumbnails collects thumbnails from videoDetails and microformat in
// encounter order, dropping duplicate URLs. When the response lists none,
// the fixed i.ytimg.com images for the video are returned.
func ParseThumbnails(pr *innertube.PlayerResponse) []types.Thumbnail {
	seen := make(map[string]bool)
	var out []types.Thumbnail
	lists := [][]innertube.Thumbnail{
		pr.VideoDetails.Thumbnail.Thumbnails,
		pr.Microformat.Renderer.Thumbnail.Thumbnails,
	}
	for _, list := range lists {
		for _, t := range list {
			if t.URL == "" || seen[t.URL] {
				continue
			}
			seen[t.URL] = true
			out = append(out, types.Thumbnail{URL: t.URL, Width: t.Width, Height: t.Height})
		}
	}
	if len(out) == 0 && pr.VideoDetails.VideoID != "" {
		out = DefaultThumbnails(types.VideoRef(pr.VideoDetails.VideoID))
	}
	return out
}

// DefaultThumbnails lists the fixed-size images served for every video.
func DefaultThumbnails(ref types.VideoRef) []types.Thumbnail {
	out := make([]types.Thumbnail, 0, len(defaultThumbnails))
	for _, d := range defaultThumbnails {
		out = append(out, types.Thumbnail{
			URL:    thumbnailBase + ref.String() + "/" + d.name,
			Width:  d.width,
			Height: d.height,
		})
	}
	return out
}

// ParseMetadata builds the video metadata for ref.
func ParseMetadata(ref types.VideoRef, pr *innertube.PlayerResponse) *types.Metadata {
	thumbs := ParseThumbnails(pr)
	if len(thumbs) == 0 {
		thumbs = DefaultThumbnails(ref)
	}
	return &types.Metadata{
		ID:         ref,
		Title:      pr.VideoDetails.Title,
		Author:     pr.VideoDetails.Author,
		Duration:   pr.Duration(),
		Thumbnails: thumbs,
	}
}

// ResolveURL builds the final downloadable URL for a candidate. A direct
// URL only gets its n value decoded; a signatureCipher is deciphered first.
// ratebypass and alr are added when missing.
func ResolveURL(ctx context.Context, dec Decoder, c types.StreamCandidate, playerJSURL string) (string, error) {
	log := logger.WithComponent(logger.ComponentFormat).With(logger.Fields{"itag": c.Itag})

	var u *url.URL
	var err error
	switch {
	case hasDirectURL(c):
		u, err = url.Parse(strings.TrimSpace(c.URL))
		if err != nil {
			return "", fmt.Errorf("parse direct url failed: %w", err)
		}
	case hasCipher(c):
		parsed, err := url.ParseQuery(c.SignatureCipher)
		if err != nil {
			return "", fmt.Errorf("parse signatureCipher failed: %w", err)
		}
		sig := parsed.Get("s")
		sp := parsed.Get("sp")
		if sp == "" {
			sp = "signature"
		}
		cipherURL := parsed.Get("url")
		if cipherURL == "" || sig == "" {
			return "", fmt.Errorf("signatureCipher missing signature or url")
		}
		decoded, err := dec.Decipher(ctx, playerJSURL, sig)
		if err != nil {
			return "", fmt.Errorf("decipher signature failed: %w", err)
		}
		u, err = url.Parse(cipherURL)
		if err != nil {
			return "", fmt.Errorf("parse cipher url failed: %w", err)
		}
		q := u.Query()
		q.Set(sp, decoded)
		u.RawQuery = q.Encode()
		log.Debug("signature applied", logger.Fields{"param": sp})
	default:
		return "", fmt.Errorf("no url or signatureCipher for itag %d", c.Itag)
	}

	q := u.Query()
	if nval := q.Get("n"); nval != "" && playerJSURL != "" {
		nout, err := dec.DecipherN(ctx, playerJSURL, nval)
		if err != nil {
			log.Warn("n decode failed, download may be throttled", logger.Fields{"error": err.Error()})
		} else if nout != "" {
			q.Set("n", nout)
		}
	}
	// Ensure ratebypass for ranged requests
	if q.Get("ratebypass") == "" {
		q.Set("ratebypass", "yes")
	}
	// Encourage redirect behavior to non-alt hosts
	if q.Get("alr") == "" {
		q.Set("alr", "yes")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
