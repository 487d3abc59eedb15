package yt2ogg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ytget/yt2ogg/client"
	"github.com/ytget/yt2ogg/errs"
	"github.com/ytget/yt2ogg/indicator"
	"github.com/ytget/yt2ogg/internal/logger"
	"github.com/ytget/yt2ogg/internal/sanitize"
	"github.com/ytget/yt2ogg/transcoder"
	"github.com/ytget/yt2ogg/types"
	"github.com/ytget/yt2ogg/youtube"
)

// Staged and derived file names inside the output directory.
const (
	StagedAudioBase = "temp"
	StagedCoverName = "cover-temp"
	CoverName       = "cover.png"
)

// Platform resolves videos and downloads their streams. *youtube.Client
// satisfies it.
type Platform interface {
	Resolve(ctx context.Context, ref types.VideoRef) (*types.Metadata, error)
	StreamManifest(ctx context.Context, ref types.VideoRef) ([]types.StreamCandidate, error)
	Download(ctx context.Context, cand types.StreamCandidate, dest string) (int64, error)
}

// Fetcher saves a URL to a file. *client.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

// Transcoder converts in to out and returns the process exit status.
// *transcoder.FFmpeg satisfies it.
type Transcoder interface {
	Convert(ctx context.Context, in, out string, diag func(line string)) (int, error)
}

// Result describes a run. Fields are filled as stages complete, so a failed
// run still reports how far it got.
type Result struct {
	RunID     string
	Ref       types.VideoRef
	Title     string
	Stream    types.StreamCandidate
	Output    string
	Thumbnail *types.Thumbnail
	Cover     string
}

// Pipeline runs resolve, select, download and convert for one video.
// Configure it with the chainable setters before calling Run.
type Pipeline struct {
	platform   Platform
	fetcher    Fetcher
	transcoder Transcoder
	indicator  indicator.Indicator
	con        console
	debug      bool
	cover      bool
	log        *logger.ComponentLogger
}

// New returns a Pipeline backed by the YouTube client, a plain HTTP fetch
// for covers and ffmpeg from PATH. Console output goes to stdout without
// color or indicator.
func New() *Pipeline {
	hc := client.New()
	return &Pipeline{
		platform:   youtube.New(youtube.Config{HTTP: hc}),
		fetcher:    hc,
		transcoder: transcoder.New(""),
		indicator:  indicator.Nop{},
		con:        console{w: os.Stdout},
		log:        logger.WithComponent(logger.ComponentPipeline),
	}
}

// WithPlatform sets the video platform client.
func (p *Pipeline) WithPlatform(pl Platform) *Pipeline {
	p.platform = pl
	return p
}

// WithFetcher sets the HTTP fetch used for the cover thumbnail.
func (p *Pipeline) WithFetcher(f Fetcher) *Pipeline {
	p.fetcher = f
	return p
}

// WithTranscoder sets the converter.
func (p *Pipeline) WithTranscoder(t Transcoder) *Pipeline {
	p.transcoder = t
	return p
}

// WithIndicator sets the progress indicator shown during blocking stages.
// A nil indicator disables it.
func (p *Pipeline) WithIndicator(ind indicator.Indicator) *Pipeline {
	if ind == nil {
		ind = indicator.Nop{}
	}
	p.indicator = ind
	return p
}

// WithOutput sets where console messages are written.
func (p *Pipeline) WithOutput(w io.Writer) *Pipeline {
	if w == nil {
		w = io.Discard
	}
	p.con.w = w
	return p
}

// WithDebug echoes the transcoder diagnostics instead of showing the
// indicator while converting.
func (p *Pipeline) WithDebug(debug bool) *Pipeline {
	p.debug = debug
	return p
}

// WithCover also extracts the largest thumbnail as cover.png.
func (p *Pipeline) WithCover(cover bool) *Pipeline {
	p.cover = cover
	return p
}

// WithColor enables ANSI colors on console messages.
func (p *Pipeline) WithColor(color bool) *Pipeline {
	p.con.color = color
	return p
}

// WithLogger routes pipeline diagnostics to l.
func (p *Pipeline) WithLogger(l *logger.Logger) *Pipeline {
	if l != nil {
		p.log = l.WithComponent(logger.ComponentPipeline)
	}
	return p
}

// Run downloads the audio of the video named by input and converts it to
// output. When output is an existing directory, the file name is derived
// from the video title. The returned error is an *errs.StageError.
func (p *Pipeline) Run(ctx context.Context, input, output string) (*Result, error) {
	res := &Result{RunID: newRunID()}
	log := p.log.With(logger.Fields{"run": res.RunID})

	ref, err := types.ParseVideoRef(input)
	if err != nil {
		p.con.failure("Invalid Youtube URL or ID")
		return res, p.fail(log, errs.StageResolve, errs.ErrInvalidInput, err)
	}
	res.Ref = ref
	log = log.With(logger.Fields{"video": ref.String()})

	p.con.print("Obtaining video information... ")
	var (
		md       *types.Metadata
		manifest []types.StreamCandidate
	)
	err = p.blocking(func() error {
		var err error
		if md, err = p.platform.Resolve(ctx, ref); err != nil {
			return err
		}
		manifest, err = p.platform.StreamManifest(ctx, ref)
		return err
	})
	if err != nil {
		p.con.failure("Failed to obtain video information")
		p.con.failure(err.Error())
		return res, p.fail(log, errs.StageMetadata, errs.ErrMetadataFetch, err)
	}
	res.Title = md.Title
	log.Debug("metadata", logger.Fields{"title": md.Title, "streams": len(manifest), "thumbnails": len(md.Thumbnails)})

	stream, ok := SelectStream(manifest)
	if !ok {
		p.con.failure("No audio-only streams available")
		return res, p.fail(log, errs.StageSelect, errs.ErrNoAudioStreams, nil)
	}
	res.Stream = stream
	log.Debug("stream selected", logger.Fields{"itag": stream.Itag, "bitrate": stream.Bitrate.String(), "container": stream.Container})

	out, err := outputPath(output, md.Title)
	if err != nil {
		p.con.failure("Failed to prepare output " + output)
		p.con.failure(err.Error())
		return res, p.fail(log, errs.StageDownload, errs.ErrDownload, err)
	}
	res.Output = out
	dir := filepath.Dir(out)

	staged := filepath.Join(dir, StagedAudioBase+"."+stream.Container)
	p.con.print(fmt.Sprintf("Downloading %s [%s]", p.con.yellow(md.Title), stream.Bitrate))
	err = p.blocking(func() error {
		n, err := p.platform.Download(ctx, stream, staged)
		log.Debug("stream staged", logger.Fields{"path": staged, "bytes": n})
		return err
	})
	if err != nil {
		removeStaged(log, staged)
		p.con.failure("Failed to download " + md.Title)
		p.con.failure(err.Error())
		return res, p.fail(log, errs.StageDownload, errs.ErrDownload, err)
	}

	if err := p.convert(ctx, log, staged, out); err != nil {
		p.con.failure("Failed to convert video.")
		return res, p.fail(log, errs.StageConvert, errs.ErrConversion, err)
	}

	if p.cover {
		if err := p.extractCover(ctx, log, md, dir, res); err != nil {
			return res, err
		}
	}

	p.con.success("Finished!")
	log.Debug("run finished", logger.Fields{"output": res.Output, "cover": res.Cover})
	return res, nil
}

func (p *Pipeline) extractCover(ctx context.Context, log *logger.ComponentLogger, md *types.Metadata, dir string, res *Result) error {
	thumb, ok := SelectThumbnail(md.Thumbnails)
	if !ok {
		p.con.failure("No thumbnails available")
		return p.fail(log, errs.StageCover, errs.ErrNoThumbnails, nil)
	}
	res.Thumbnail = &thumb

	staged := filepath.Join(dir, StagedCoverName)
	cover := filepath.Join(dir, CoverName)
	p.con.print(fmt.Sprintf("Downloading cover [%s]", thumb.Resolution()))
	err := p.blocking(func() error {
		_, err := p.fetcher.Fetch(ctx, thumb.URL, staged)
		return err
	})
	if err != nil {
		removeStaged(log, staged)
		p.con.failure("Failed to download cover")
		p.con.failure(err.Error())
		return p.fail(log, errs.StageCover, errs.ErrDownload, err)
	}

	if err := p.convert(ctx, log, staged, cover); err != nil {
		p.con.failure("Failed to convert video.")
		return p.fail(log, errs.StageCover, errs.ErrConversion, err)
	}
	res.Cover = cover
	return nil
}

// convert runs the transcoder on staged and removes staged afterwards,
// whatever the outcome.
func (p *Pipeline) convert(ctx context.Context, log *logger.ComponentLogger, staged, out string) error {
	p.con.print(fmt.Sprintf("Converting %s to %s", p.con.yellow(filepath.Base(staged)), p.con.yellow(filepath.Base(out))))

	var (
		status int
		err    error
	)
	if p.debug {
		p.con.println("")
		status, err = p.transcoder.Convert(ctx, staged, out, p.con.println)
	} else {
		_ = p.blocking(func() error {
			status, err = p.transcoder.Convert(ctx, staged, out, nil)
			return err
		})
	}
	removeStaged(log, staged)

	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("transcoder exited with status %d", status)
	}
	return nil
}

// blocking runs fn with the indicator on. The indicator is stopped before
// blocking returns, so callers may write to the console right away.
func (p *Pipeline) blocking(fn func() error) error {
	p.indicator.Start()
	err := fn()
	p.indicator.Stop()
	if le, ok := p.indicator.(indicator.LineEnder); !ok || !le.EndsLine() {
		p.con.println("")
	}
	return err
}

func (p *Pipeline) fail(log *logger.ComponentLogger, stage errs.Stage, kind, cause error) error {
	serr := errs.NewStageError(stage, kind, cause)
	log.Debug("stage failed", logger.Fields{"stage": string(stage), "error": serr.Error()})
	return serr
}

// outputPath returns the file to write. A path naming an existing directory
// gets a file name derived from title. The parent directory is created.
func outputPath(output, title string) (string, error) {
	if output == "" {
		return "", errors.New("empty output path")
	}
	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		output = filepath.Join(output, sanitize.ToSafeFilename(title, sanitize.DefaultExt))
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", err
	}
	return output, nil
}

func removeStaged(log *logger.ComponentLogger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("staged file not removed", logger.Fields{"path": path, "error": err.Error()})
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
