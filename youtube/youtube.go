// Package youtube is the video platform collaborator of the pipeline. It
// resolves a video reference into metadata and an audio stream manifest
// and downloads a selected stream to disk.
package youtube

import (
	"context"
	"fmt"
	"sync"

	"github.com/ytget/yt2ogg/client"
	"github.com/ytget/yt2ogg/downloader"
	"github.com/ytget/yt2ogg/errs"
	"github.com/ytget/yt2ogg/internal/botguard"
	"github.com/ytget/yt2ogg/internal/logger"
	"github.com/ytget/yt2ogg/types"
	"github.com/ytget/yt2ogg/youtube/cipher"
	"github.com/ytget/yt2ogg/youtube/formats"
	"github.com/ytget/yt2ogg/youtube/innertube"
)

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	// HTTP is shared by the InnerTube, player.js and media requests.
	HTTP *client.Client
	// RateLimitBps caps the stream download speed. Zero disables limiting.
	RateLimitBps int64
	// Attester adds a botguard token to player requests when set.
	Attester *botguard.Attester
	// ClientName and ClientVersion override the InnerTube client.
	ClientName    string
	ClientVersion string
	// Progress receives stream download progress.
	Progress func(downloader.Progress)
}

// Client talks to YouTube. A player response is fetched once per video and
// reused by Resolve and StreamManifest. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *client.Client
	it      *innertube.Client
	decoder *cipher.Decoder
	log     *logger.ComponentLogger

	mu      sync.Mutex
	players map[types.VideoRef]*innertube.PlayerResponse
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	hc := cfg.HTTP
	if hc == nil {
		hc = client.New()
	}
	it := innertube.New(hc).
		WithClient(cfg.ClientName, cfg.ClientVersion).
		WithBotguard(cfg.Attester)
	return &Client{
		cfg:     cfg,
		http:    hc,
		it:      it,
		decoder: cipher.NewDecoder(hc),
		log:     logger.WithComponent(logger.ComponentInnerTube),
		players: make(map[types.VideoRef]*innertube.PlayerResponse),
	}
}

// player returns the cached player response for ref, fetching it once.
func (c *Client) player(ctx context.Context, ref types.VideoRef) (*innertube.PlayerResponse, error) {
	c.mu.Lock()
	pr, ok := c.players[ref]
	c.mu.Unlock()
	if ok {
		return pr, nil
	}

	pr, err := c.it.GetPlayerResponse(ctx, ref.String())
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.players[ref] = pr
	c.mu.Unlock()
	return pr, nil
}

// Resolve returns the title, author, duration and thumbnails of ref.
func (c *Client) Resolve(ctx context.Context, ref types.VideoRef) (*types.Metadata, error) {
	pr, err := c.player(ctx, ref)
	if err != nil {
		return nil, err
	}
	md := formats.ParseMetadata(ref, pr)
	c.log.Debug("metadata resolved", logger.Fields{
		"video":      ref.String(),
		"title":      md.Title,
		"thumbnails": len(md.Thumbnails),
	})
	return md, nil
}

// StreamManifest returns the audio-only candidates of ref with their final
// download URLs. Candidates whose URL cannot be built are skipped; when every
// candidate fails the error matches errs.ErrCipherFailed. An empty result
// with a nil error means the video has no audio-only streams.
func (c *Client) StreamManifest(ctx context.Context, ref types.VideoRef) ([]types.StreamCandidate, error) {
	pr, err := c.player(ctx, ref)
	if err != nil {
		return nil, err
	}
	audio := formats.AudioStreams(pr)
	if len(audio) == 0 {
		return nil, nil
	}

	out := make([]types.StreamCandidate, 0, len(audio))
	var lastErr error
	for _, cand := range audio {
		u, err := formats.ResolveURL(ctx, c.decoder, cand, pr.PlayerJSURL)
		if err != nil {
			lastErr = err
			c.log.Warn("skipping stream", logger.Fields{"itag": cand.Itag, "error": err.Error()})
			continue
		}
		cand.URL = u
		cand.SignatureCipher = ""
		out = append(out, cand)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %v", errs.ErrCipherFailed, lastErr)
	}
	c.log.Debug("stream manifest", logger.Fields{"video": ref.String(), "audio": len(out)})
	return out, nil
}

// Download writes the candidate's bytes to dest and returns the byte count.
func (c *Client) Download(ctx context.Context, cand types.StreamCandidate, dest string) (int64, error) {
	if cand.URL == "" {
		return 0, fmt.Errorf("itag %d has no resolved url", cand.Itag)
	}
	dl := downloader.New(c.http, c.cfg.Progress, c.cfg.RateLimitBps)
	return dl.Download(ctx, cand.URL, dest)
}
