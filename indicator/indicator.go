// Package indicator draws an indeterminate progress glyph on the current
// terminal line while a blocking stage runs.
package indicator

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ytget/yt2ogg/internal/logger"
)

// Indicator is a start/stop controlled progress surface.
type Indicator interface {
	Start()
	Stop()
}

// LineEnder is implemented by indicators whose Stop finishes the current
// output line.
type LineEnder interface {
	EndsLine() bool
}

// DefaultInterval is the redraw period of the spinner.
const DefaultInterval = 100 * time.Millisecond

// Terminal control sequences used by the spinner.
const (
	hideCursor    = "\033[?25l"
	showCursor    = "\033[?25h"
	saveCursor    = "\0337"
	restoreCursor = "\0338"
)

var frames = [...]string{" /", " |", " \\", " |"}

// Spinner animates a four phase glyph at the column where Start was called.
// Stop blocks until the animation goroutine has drawn its last frame and
// cleaned up, so output written after Stop never races with the glyph.
type Spinner struct {
	w        io.Writer
	interval time.Duration
	log      *logger.ComponentLogger

	ctl     sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner returns an idle spinner drawing on w.
func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{
		w:        w,
		interval: DefaultInterval,
		log:      logger.WithComponent(logger.ComponentIndicator),
	}
}

// WithInterval overrides the redraw period. Non-positive values are ignored.
func (s *Spinner) WithInterval(d time.Duration) *Spinner {
	if d > 0 {
		s.interval = d
	}
	return s
}

// Running reports whether the animation goroutine is active.
func (s *Spinner) Running() bool {
	return s.running.Load()
}

// Start begins the animation. A spinner that is already running is fully
// stopped first.
func (s *Spinner) Start() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.running.Load() {
		s.stopLocked()
	}

	s.write(hideCursor + saveCursor)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)
	s.log.Trace("spinner started")

	go s.loop(s.stop, s.done)
}

// Stop ends the animation and waits for the goroutine to exit. It is a
// no-op on an idle spinner.
func (s *Spinner) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopLocked()
}

func (s *Spinner) stopLocked() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stop)
	<-s.done
	s.log.Trace("spinner stopped")
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	phase := 0
	for {
		select {
		case <-stop:
			s.write(restoreCursor + "  \n" + showCursor)
			return
		case <-ticker.C:
			s.write(restoreCursor + frames[phase])
			phase = (phase + 1) % len(frames)
		}
	}
}

// EndsLine reports true: Stop blanks the glyph and writes a newline.
func (s *Spinner) EndsLine() bool { return true }

// write ignores errors: a lost frame is cosmetic.
func (s *Spinner) write(seq string) {
	_, _ = io.WriteString(s.w, seq)
}

// Nop is an indicator that draws nothing. It is used when output is not a
// terminal and in tests.
type Nop struct{}

func (Nop) Start() {}
func (Nop) Stop()  {}

var (
	_ Indicator = (*Spinner)(nil)
	_ Indicator = Nop{}
	_ LineEnder = (*Spinner)(nil)
)
