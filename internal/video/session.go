// Package video decodes the picture of a stream with ffmpeg and renders it
// as terminal text.
package video

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

const defaultFPS = 15

// Session runs an ffmpeg subprocess that decodes a stream's video at a
// fixed frame rate. A reader goroutine keeps the latest frame; Frame
// renders it on demand.
type Session struct {
	ffmpeg    string
	inputArgs []string
	probe     Probe
	renderer  *Renderer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	scaleW, scaleH int
	outW, outH     int
	latest         []byte
	haveFrame      bool
	err            error

	firstOnce sync.Once
	first     chan struct{}
}

// startCommand launches ffmpeg and returns its stdout.
var startCommand = func(ctx context.Context, name string, args []string) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting ffmpeg video decode: %w", err)
	}
	return stdout, cmd.Wait, nil
}

// NewSession starts decoding. inputArgs are the ffmpeg input options
// ending with "-i URL"; termW and termH bound the picture in cells.
func NewSession(ffmpeg string, inputArgs []string, probe Probe, termW, termH int) (*Session, error) {
	if !probe.HasVideo {
		return nil, fmt.Errorf("stream has no video")
	}
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	s := &Session{
		ffmpeg:    ffmpeg,
		inputArgs: inputArgs,
		probe:     probe,
		renderer:  NewRenderer(),
		first:     make(chan struct{}),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(termW, termH); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) startLocked(termW, termH int) error {
	s.stopLocked()

	outW, outH, scaleW, scaleH := FitFrame(termW, termH, s.probe.Width, s.probe.Height, s.renderer.Color())
	if scaleW == 0 {
		return fmt.Errorf("no room to draw video")
	}
	s.outW, s.outH, s.scaleW, s.scaleH = outW, outH, scaleW, scaleH
	s.latest = make([]byte, scaleW*scaleH*3)
	s.haveFrame = false

	args := []string{"-v", "quiet", "-re"}
	args = append(args, s.inputArgs...)
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-vf", fmt.Sprintf("scale=%d:%d,fps=%d", scaleW, scaleH, defaultFPS),
		"-an",
		"pipe:1",
	)

	ctx, cancel := context.WithCancel(context.Background())
	stdout, wait, err := startCommand(ctx, s.ffmpeg, args)
	if err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.readFrames(ctx, stdout, wait, scaleW*scaleH*3, s.done)
	return nil
}

func (s *Session) readFrames(ctx context.Context, r io.ReadCloser, wait func() error, size int, done chan struct{}) {
	defer close(done)
	buf := make([]byte, size)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			_ = r.Close()
			werr := wait()
			s.mu.Lock()
			if s.err == nil && werr != nil && ctx.Err() == nil {
				s.err = werr
			}
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		if len(s.latest) == size {
			copy(s.latest, buf)
			s.haveFrame = true
		}
		s.mu.Unlock()
		s.firstOnce.Do(func() { close(s.first) })
	}
}

// stopLocked cancels the decoder and waits for the reader to exit.
func (s *Session) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	done := s.done
	s.mu.Unlock()
	<-done
	s.mu.Lock()
}

// FirstFrame is closed once the first frame has been decoded.
func (s *Session) FirstFrame() <-chan struct{} {
	return s.first
}

// Frame renders the most recent frame.
func (s *Session) Frame() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.haveFrame {
		return "", false
	}
	return s.renderer.Render(s.latest, s.scaleW, s.scaleH, s.outW, s.outH), true
}

// Err returns the decoder failure, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Resize restarts decoding for a new cell budget.
func (s *Session) Resize(termW, termH int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	return s.startLocked(termW, termH)
}

// Close stops decoding.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopLocked()
	return nil
}

// TickInterval is the recommended redraw interval.
func TickInterval() time.Duration {
	return time.Second / time.Duration(defaultFPS)
}

// Available reports whether ffmpeg is on PATH.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}
