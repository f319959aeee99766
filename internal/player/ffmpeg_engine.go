package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/video"
)

// EngineOptions configures an FFmpegEngine.
type EngineOptions struct {
	FFmpegPath   string
	FFprobePath  string
	ProbeTimeout time.Duration
	// Video enables the terminal picture alongside the audio.
	Video bool
}

// pcmProcess is a running decoder producing s16le PCM on its reader.
type pcmProcess interface {
	io.Reader
	Wait() error
}

var (
	lookPath    = exec.LookPath
	probeStream = video.ProbeStream
	startPCM    = startFFmpegPCM
	startVideo  = video.NewSession
)

// FFmpegEngine plays streams through an ffmpeg subprocess decoding audio
// to PCM for oto, with an optional second subprocess for the picture.
type FFmpegEngine struct {
	opts   EngineOptions
	logger zerolog.Logger

	mu    sync.Mutex
	cur   *engineRun
	play  bool
	viewW int
	viewH int
}

type engineRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	src    Source
	emit   func(Event)

	mu    sync.Mutex
	buf   *pcmBuffer
	sink  audioSink
	video *video.Session
}

// NewFFmpegEngine creates an engine. Missing binaries are reported when a
// source is prepared.
func NewFFmpegEngine(opts EngineOptions) *FFmpegEngine {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 15 * time.Second
	}
	return &FFmpegEngine{opts: opts, logger: log.WithComponent("engine")}
}

// Prepare stops the current source and opens src in the background.
func (e *FFmpegEngine) Prepare(src Source, emit func(Event)) error {
	ffmpeg, err := lookPath(e.opts.FFmpegPath)
	if err != nil {
		return fmt.Errorf("ffmpeg not found (required for stream playback)")
	}

	e.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	r := &engineRun{ctx: ctx, cancel: cancel, src: src, emit: emit}

	e.mu.Lock()
	e.cur = r
	w, h := e.viewW, e.viewH
	e.mu.Unlock()

	go e.run(r, ffmpeg, w, h)
	return nil
}

func (r *engineRun) send(ev Event) {
	if r.ctx.Err() == nil {
		r.emit(ev)
	}
}

func (r *engineRun) fail(err error) {
	r.send(PlaybackError{Err: fmt.Errorf("%w: %v", ErrPlayback, err)})
}

func (e *FFmpegEngine) run(r *engineRun, ffmpeg string, viewW, viewH int) {
	r.send(StateChanged{State: StateBuffering})

	probeSrc := r.src
	probeSrc.Start = 0
	probeCtx, cancel := context.WithTimeout(r.ctx, e.opts.ProbeTimeout)
	probe, err := probeStream(probeCtx, e.opts.FFprobePath, probeSrc.InputArgs())
	cancel()
	if r.ctx.Err() != nil {
		return
	}
	if err != nil {
		r.fail(err)
		return
	}

	if probe.HasVideo && e.opts.Video && viewW > 0 && viewH > 0 {
		vs, err := startVideo(ffmpeg, r.src.InputArgs(), probe, viewW, viewH)
		if err != nil {
			e.logger.Warn().Err(err).Msg("video output unavailable")
		} else {
			r.mu.Lock()
			r.video = vs
			r.mu.Unlock()
		}
	}

	if !probe.HasAudio {
		e.runVideoOnly(r)
		return
	}
	e.runAudio(r, ffmpeg)
}

func (e *FFmpegEngine) runVideoOnly(r *engineRun) {
	r.mu.Lock()
	vs := r.video
	r.mu.Unlock()
	if vs == nil {
		r.fail(errors.New("stream has no audio and video output is disabled"))
		return
	}
	select {
	case <-vs.FirstFrame():
	case <-r.ctx.Done():
		return
	}
	r.send(StateChanged{State: StateReady})
	r.send(RenderedFirstFrame{Position: r.src.Start})
}

func (e *FFmpegEngine) runAudio(r *engineRun, ffmpeg string) {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}
	args = append(args, r.src.InputArgs()...)
	args = append(args,
		"-vn",
		"-ac", "2",
		"-ar", "44100",
		"-f", "s16le",
		"pipe:1",
	)

	proc, err := startPCM(r.ctx, ffmpeg, args)
	if err != nil {
		r.fail(err)
		return
	}

	readAhead, preroll, rebuffer := r.src.Buffer.byteCounts(bytesPerSec, frameSize)
	buf := newPCMBuffer(proc, readAhead, rebuffer)
	if err := buf.Prime(preroll); err != nil {
		// A clip shorter than the preroll still plays.
		if !errors.Is(err, io.EOF) || buf.br.Buffered() == 0 {
			if werr := proc.Wait(); werr != nil {
				err = werr
			}
			if errors.Is(err, io.EOF) {
				err = errors.New("stream ended before any audio was decoded")
			}
			r.fail(err)
			return
		}
	}

	buf.onStall = func() { r.send(StateChanged{State: StateBuffering}) }
	buf.onResume = func() { r.send(StateChanged{State: StateReady}) }
	buf.onEOF = func(error) {
		go func() {
			werr := proc.Wait()
			if werr != nil {
				r.fail(werr)
				return
			}
			r.send(StateChanged{State: StateEnded})
		}()
	}

	sink, err := newAudioSink(buf)
	if err != nil {
		r.fail(fmt.Errorf("audio output: %w", err))
		return
	}

	e.mu.Lock()
	live := e.cur == r
	play := e.play
	e.mu.Unlock()
	if !live || r.ctx.Err() != nil {
		_ = sink.Close()
		return
	}

	r.mu.Lock()
	r.buf = buf
	r.sink = sink
	r.mu.Unlock()
	if play {
		sink.Play()
	}

	e.logger.Debug().Str(log.FieldURL, log.SafeURL(r.src.URL)).Msg("audio primed")
	r.send(StateChanged{State: StateReady})
	r.send(RenderedFirstFrame{Position: r.src.Start})
}

// SetPlayWhenReady starts or pauses output.
func (e *FFmpegEngine) SetPlayWhenReady(play bool) {
	e.mu.Lock()
	e.play = play
	r := e.cur
	e.mu.Unlock()
	if r == nil {
		return
	}
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink == nil {
		return
	}
	if play {
		sink.Play()
	} else {
		sink.Pause()
	}
}

// Position returns the start offset plus the audio handed to the output.
func (e *FFmpegEngine) Position() time.Duration {
	e.mu.Lock()
	r := e.cur
	e.mu.Unlock()
	if r == nil {
		return 0
	}
	r.mu.Lock()
	buf := r.buf
	r.mu.Unlock()
	if buf == nil {
		return r.src.Start
	}
	secs := float64(buf.Pos()) / float64(bytesPerSec)
	return r.src.Start + time.Duration(secs*float64(time.Second))
}

// Stop kills the decoders of the current source.
func (e *FFmpegEngine) Stop() {
	e.mu.Lock()
	r := e.cur
	e.cur = nil
	e.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	r.mu.Lock()
	sink, vs := r.sink, r.video
	r.sink, r.video = nil, nil
	r.mu.Unlock()
	if sink != nil {
		sink.Pause()
		_ = sink.Close()
	}
	if vs != nil {
		_ = vs.Close()
	}
}

// SetViewport sets the cell budget for the picture.
func (e *FFmpegEngine) SetViewport(w, h int) {
	e.mu.Lock()
	changed := w != e.viewW || h != e.viewH
	e.viewW, e.viewH = w, h
	r := e.cur
	e.mu.Unlock()
	if !changed || r == nil {
		return
	}
	r.mu.Lock()
	vs := r.video
	r.mu.Unlock()
	if vs != nil && w > 0 && h > 0 {
		if err := vs.Resize(w, h); err != nil {
			e.logger.Debug().Err(err).Msg("resizing video failed")
		}
	}
}

// Frame returns the latest rendered picture.
func (e *FFmpegEngine) Frame() (string, bool) {
	e.mu.Lock()
	r := e.cur
	e.mu.Unlock()
	if r == nil {
		return "", false
	}
	r.mu.Lock()
	vs := r.video
	r.mu.Unlock()
	if vs == nil {
		return "", false
	}
	return vs.Frame()
}

type ffmpegProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailWriter

	once sync.Once
	err  error
}

func startFFmpegPCM(ctx context.Context, ffmpeg string, args []string) (pcmProcess, error) {
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	cmd.Stdin = nil
	stderr := &tailWriter{limit: 4096}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("setting up ffmpeg stream: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg stream: %w", err)
	}
	return &ffmpegProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (p *ffmpegProcess) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Wait reaps the process once and reports its failure with the last line
// ffmpeg printed.
func (p *ffmpegProcess) Wait() error {
	p.once.Do(func() {
		err := p.cmd.Wait()
		if err == nil {
			return
		}
		if msg := p.stderr.LastLine(); msg != "" {
			p.err = errors.New(msg)
			return
		}
		p.err = fmt.Errorf("ffmpeg exited: %w", err)
	})
	return p.err
}

// tailWriter keeps the last limit bytes written to it.
type tailWriter struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.limit {
		w.buf = w.buf[len(w.buf)-w.limit:]
	}
	return len(p), nil
}

func (w *tailWriter) LastLine() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	lines := strings.Split(strings.TrimSpace(string(w.buf)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// formatSeekTime formats seconds into HH:MM:SS.mmm for ffmpeg -ss.
func formatSeekTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := int(seconds) / 3600
	m := (int(seconds) % 3600) / 60
	s := seconds - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
