package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/ytget/yt2ogg"
	"github.com/ytget/yt2ogg/client"
	"github.com/ytget/yt2ogg/errs"
	"github.com/ytget/yt2ogg/indicator"
	"github.com/ytget/yt2ogg/internal/botguard"
	"github.com/ytget/yt2ogg/internal/logger"
	"github.com/ytget/yt2ogg/transcoder"
	"github.com/ytget/yt2ogg/youtube"
)

const botguardTTL = 30 * time.Minute

type options struct {
	video          string
	cover          bool
	debugFFmpeg    bool
	ffmpeg         string
	proxy          string
	httpTimeout    time.Duration
	userAgent      string
	rateLimit      int64
	noColor        bool
	logConfig      string
	botguardScript string
	output         string
}

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// parseArgs reads flags and the single output argument. Flags may follow
// the output argument.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{
		ffmpeg: envOr("YT2OGG_FFMPEG", transcoder.DefaultBinary),
		proxy:  os.Getenv("YT2OGG_PROXY"),
	}
	var rate string

	fs := flag.NewFlagSet("yt2ogg", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.video, "v", "", "Video URL or ID (required)")
	fs.StringVar(&opts.video, "video", "", "Video URL or ID (required)")
	fs.BoolVar(&opts.cover, "c", false, "Also extract the largest thumbnail as cover.png")
	fs.BoolVar(&opts.cover, "cover", false, "Also extract the largest thumbnail as cover.png")
	fs.BoolVar(&opts.debugFFmpeg, "debug-ffmpeg", false, "Echo ffmpeg diagnostics instead of the progress indicator")
	fs.StringVar(&opts.ffmpeg, "ffmpeg", opts.ffmpeg, "Path to the ffmpeg binary (env YT2OGG_FFMPEG)")
	fs.StringVar(&opts.proxy, "proxy", opts.proxy, "Proxy URL (http/https/socks5, env YT2OGG_PROXY)")
	fs.DurationVar(&opts.httpTimeout, "http-timeout", 0, "HTTP request timeout, 0 disables it (e.g., 30s, 1m)")
	fs.StringVar(&opts.userAgent, "ua", "", "Override User-Agent header")
	fs.StringVar(&rate, "rate-limit", "", "Download rate limit (e.g., 2MiB/s, 500KiB/s)")
	fs.BoolVar(&opts.noColor, "no-color", false, "Disable colored output (env NO_COLOR)")
	fs.StringVar(&opts.logConfig, "log-config", "", "JSON logging configuration file")
	fs.StringVar(&opts.botguardScript, "botguard-script", "", "JS file defining bgAttest(input) for attestation tokens")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: yt2ogg -v <url|id> [flags] <output>\n")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}

	switch {
	case strings.TrimSpace(opts.video) == "":
		fmt.Fprintln(stderr, "missing required flag -v/--video")
	case len(positional) != 1:
		fmt.Fprintf(stderr, "expected exactly one output path, got %d\n", len(positional))
	default:
		opts.output = positional[0]
		bps, err := parseRate(rate)
		if err != nil {
			fmt.Fprintf(stderr, "invalid --rate-limit: %v\n", err)
			return nil, errUsage
		}
		opts.rateLimit = bps
		return opts, nil
	}
	fs.Usage()
	return nil, errUsage
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errs.ExitOK
		}
		return errs.ExitInvalidInput
	}

	logCfg := logger.EnvironmentConfig()
	if opts.logConfig != "" {
		if logCfg, err = logger.LoadConfigFromFile(opts.logConfig); err != nil {
			fmt.Fprintf(stderr, "log config: %v\n", err)
			return errs.ExitInvalidInput
		}
		logCfg.ApplyEnvironment()
	}
	lg, err := logger.CreateLoggerFromConfig(logCfg)
	if err != nil {
		fmt.Fprintf(stderr, "log config: %v\n", err)
		return errs.ExitInvalidInput
	}
	defer func() { _ = lg.Close() }()
	logger.SetGlobalLogger(lg)
	log := lg.WithComponent(logger.ComponentApp)

	console, tty := consoleWriter(stdout)
	color := tty && !opts.noColor && os.Getenv("NO_COLOR") == ""

	hc, err := client.NewWith(client.Config{
		Timeout:   opts.httpTimeout,
		UserAgent: opts.userAgent,
		ProxyURL:  opts.proxy,
	})
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return errs.ExitInvalidInput
	}

	var attester *botguard.Attester
	if opts.botguardScript != "" {
		solver, err := botguard.NewGojaSolver(opts.botguardScript)
		if err != nil {
			fmt.Fprintf(stderr, "botguard script: %v\n", err)
			return errs.ExitInvalidInput
		}
		attester = botguard.NewAttester(solver, botguardTTL)
	}

	ff := transcoder.New(opts.ffmpeg)
	if !ff.Available() {
		warn := fmt.Sprintf("Warning: %s was not found, conversion will fail", opts.ffmpeg)
		if color {
			warn = "\033[33m" + warn + "\033[0m"
		}
		fmt.Fprintln(console, warn)
	}

	var ind indicator.Indicator = indicator.Nop{}
	if tty {
		ind = indicator.NewSpinner(console)
	}

	p := yt2ogg.New().
		WithPlatform(youtube.New(youtube.Config{
			HTTP:         hc,
			RateLimitBps: opts.rateLimit,
			Attester:     attester,
		})).
		WithFetcher(hc).
		WithTranscoder(ff).
		WithIndicator(ind).
		WithOutput(console).
		WithDebug(opts.debugFFmpeg).
		WithCover(opts.cover).
		WithColor(color).
		WithLogger(lg)

	res, err := p.Run(ctx, opts.video, opts.output)
	code := errs.ExitCode(err)
	fields := logger.Fields{"run": res.RunID, "exit": code, "outcome": errs.Classify(err).String()}
	if err != nil {
		fields["error"] = err.Error()
	}
	log.Debug("done", fields)
	return code
}

// consoleWriter wraps stdout for ANSI sequences on Windows consoles and
// reports whether it is a terminal.
func consoleWriter(w io.Writer) (io.Writer, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return w, false
	}
	fd := f.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	if !tty {
		return w, false
	}
	return colorable.NewColorable(f), true
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parseRate parses strings like "2MiB/s", "500KiB/s" or "1000" into bytes
// per second. An empty string disables limiting.
func parseRate(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "/S"))

	mul := int64(1)
	for _, u := range []struct {
		sfx string
		mul int64
	}{
		{"KIB", 1 << 10}, {"MIB", 1 << 20}, {"GIB", 1 << 30},
		{"KB", 1e3}, {"MB", 1e6}, {"GB", 1e9}, {"B", 1},
	} {
		if strings.HasSuffix(s, u.sfx) {
			s, mul = strings.TrimSpace(strings.TrimSuffix(s, u.sfx)), u.mul
			break
		}
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if val <= 0 {
		return 0, fmt.Errorf("%q: must be positive", s)
	}
	return int64(val * float64(mul)), nil
}
