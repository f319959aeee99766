package video

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"
)

func TestFitFrameKeepsAspect(t *testing.T) {
	outW, outH, scaleW, scaleH := FitFrame(80, 40, 1000, 500, true)
	if scaleW != 80 || scaleH != 40 || outW != 80 || outH != 20 {
		t.Fatalf("FitFrame(color) = %d %d %d %d", outW, outH, scaleW, scaleH)
	}

	outW, outH, scaleW, scaleH = FitFrame(80, 10, 1920, 1080, false)
	if outH != 10 || scaleH != 10 || scaleW >= 80 || outW != scaleW {
		t.Fatalf("FitFrame(ascii) height bound = %d %d %d %d", outW, outH, scaleW, scaleH)
	}

	if w, h, _, _ := FitFrame(0, 10, 1920, 1080, true); w != 0 || h != 0 {
		t.Fatal("expected zero geometry for empty terminal")
	}
}

func TestRenderASCII(t *testing.T) {
	r := NewRendererWithProfile(termenv.Ascii)
	frame := []byte{0, 0, 0, 255, 255, 255}
	got := r.Render(frame, 2, 1, 2, 1)
	if got != " @" {
		t.Fatalf("Render() = %q, want %q", got, " @")
	}
	if r.Render(frame[:3], 2, 1, 2, 1) != "" {
		t.Fatal("expected short frame to render nothing")
	}
}

func TestRenderHalfBlockTrueColor(t *testing.T) {
	r := NewRendererWithProfile(termenv.TrueColor)
	frame := []byte{255, 0, 0, 0, 0, 255} // red over blue
	got := r.Render(frame, 1, 2, 1, 1)
	if !strings.Contains(got, "38;2;255;0;0") || !strings.Contains(got, "48;2;0;0;255") || !strings.Contains(got, "▀") {
		t.Fatalf("Render() = %q", got)
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{"streams":[{"codec_type":"video","width":1280,"height":720,"avg_frame_rate":"30000/1001"},{"codec_type":"audio"}],"format":{"duration":"N/A"}}`)
	p, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if !p.HasVideo || !p.HasAudio || p.Width != 1280 || p.Height != 720 || p.Duration != 0 {
		t.Fatalf("parseProbe() = %+v", p)
	}
	if p.FPS < 29.9 || p.FPS > 30 {
		t.Fatalf("FPS = %v", p.FPS)
	}

	if _, err := parseProbe([]byte(`{"streams":[]}`)); err == nil {
		t.Fatal("expected error for stream without media")
	}
}

func TestSessionDeliversFrames(t *testing.T) {
	orig := startCommand
	defer func() { startCommand = orig }()

	var gotArgs []string
	startCommand = func(ctx context.Context, name string, args []string) (io.ReadCloser, func() error, error) {
		gotArgs = args
		// Two 4x2 rgb24 frames.
		frame := bytes.Repeat([]byte{200}, 4*2*3)
		return io.NopCloser(bytes.NewReader(append(frame, frame...))), func() error { return nil }, nil
	}

	probe := Probe{Width: 16, Height: 9, HasVideo: true}
	s, err := NewSession("ffmpeg", []string{"-i", "http://x/live.m3u8"}, probe, 4, 1)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer s.Close()

	select {
	case <-s.FirstFrame():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first frame")
	}
	if _, ok := s.Frame(); !ok {
		t.Fatal("expected a frame")
	}
	if !strings.Contains(strings.Join(gotArgs, " "), "-re -i http://x/live.m3u8") {
		t.Fatalf("unexpected args %v", gotArgs)
	}
	if s.Err() != nil {
		t.Fatalf("Err() = %v", s.Err())
	}
}

func TestNewSessionRequiresVideo(t *testing.T) {
	if _, err := NewSession("ffmpeg", nil, Probe{HasAudio: true}, 10, 10); err == nil {
		t.Fatal("expected error for audio-only stream")
	}
}
