// Package transcoder runs the external ffmpeg process that turns staged
// downloads into the final output files.
package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/alessio/shellescape"

	"github.com/ytget/yt2ogg/internal/logger"
)

// DefaultBinary is looked up on PATH when no explicit path is configured.
const DefaultBinary = "ffmpeg"

// FFmpeg converts files by invoking `ffmpeg -i <in> -y <out>`. The output
// container is chosen by ffmpeg from the output extension.
type FFmpeg struct {
	Path string

	log *logger.ComponentLogger
}

// New returns an FFmpeg transcoder. If path is empty, "ffmpeg" is resolved
// from PATH at run time.
func New(path string) *FFmpeg {
	if path == "" {
		path = DefaultBinary
	}
	return &FFmpeg{Path: path, log: logger.WithComponent(logger.ComponentTranscoder)}
}

// Available reports whether the ffmpeg binary can be executed.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Args returns the ffmpeg argument list for converting in to out.
func (f *FFmpeg) Args(in, out string) []string {
	return []string{"-i", in, "-y", out}
}

// CommandLine returns the shell-quoted command that Convert runs.
func (f *FFmpeg) CommandLine(in, out string) string {
	return shellescape.QuoteCommand(append([]string{f.Path}, f.Args(in, out)...))
}

// Convert runs ffmpeg and waits for it to exit. Every diagnostic line ffmpeg
// writes to stderr is passed to diag; when diag is nil the lines go to the
// debug log instead.
//
// The returned status is the process exit code. A non-nil error means the
// process could not be run or waited on at all, in which case status is -1.
func (f *FFmpeg) Convert(ctx context.Context, in, out string, diag func(line string)) (int, error) {
	log := f.logger().With(logger.Fields{"in": in, "out": out})
	log.Debug("running ffmpeg", logger.Fields{"cmd": f.CommandLine(in, out)})

	cmd := exec.CommandContext(ctx, f.Path, f.Args(in, out)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start %s: %w", f.Path, err)
	}

	emit := diag
	if emit == nil {
		emit = func(line string) { log.Trace(line) }
	}
	scanErr := scanLines(stderr, emit)

	err = cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return -1, ctx.Err()
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		log.Debug("ffmpeg exited", logger.Fields{"status": code})
		return code, nil
	default:
		return -1, fmt.Errorf("wait %s: %w", f.Path, err)
	}

	if scanErr != nil {
		log.Warn("reading ffmpeg diagnostics", logger.Fields{"error": scanErr.Error()})
	}
	log.Debug("ffmpeg exited", logger.Fields{"status": 0})
	return 0, nil
}

func (f *FFmpeg) logger() *logger.ComponentLogger {
	if f.log == nil {
		return logger.WithComponent(logger.ComponentTranscoder)
	}
	return f.log
}

// scanLines reads r to EOF, emitting each non-empty line. ffmpeg rewrites its
// status line with carriage returns, so both '\r' and '\n' end a line.
func scanLines(r io.Reader, emit func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(splitCRLF)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			emit(line)
		}
	}
	if err := sc.Err(); err != nil {
		// Drain so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
