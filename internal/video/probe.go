package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Probe holds stream metadata reported by ffprobe.
type Probe struct {
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration // zero for live streams
	HasVideo bool
	HasAudio bool
}

type ffprobeResult struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"` // e.g. "30/1" or "24000/1001"
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// probeRun executes ffprobe and returns its stdout.
var probeRun = func(ctx context.Context, ffprobe string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, ffprobe, args...)
	cmd.Stdin = nil
	return cmd.Output()
}

// ProbeStream inspects a stream. inputArgs are the ffmpeg input options
// ending with "-i URL".
func ProbeStream(ctx context.Context, ffprobe string, inputArgs []string) (Probe, error) {
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	bin, err := exec.LookPath(ffprobe)
	if err != nil {
		return Probe{}, fmt.Errorf("ffprobe not found (required for stream playback)")
	}

	args := []string{"-v", "error", "-print_format", "json", "-show_streams", "-show_format"}
	args = append(args, inputArgs...)

	output, err := probeRun(ctx, bin, args)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return Probe{}, fmt.Errorf("ffprobe failed: %s", lastLine(string(exitErr.Stderr)))
		}
		return Probe{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (Probe, error) {
	var result ffprobeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return Probe{}, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	durSec, _ := strconv.ParseFloat(result.Format.Duration, 64)
	p := Probe{Duration: time.Duration(durSec * float64(time.Second))}

	for _, s := range result.Streams {
		switch s.CodecType {
		case "audio":
			p.HasAudio = true
		case "video":
			if p.HasVideo {
				continue
			}
			fps := parseFraction(s.AvgFrameRate)
			if fps <= 0 {
				fps = parseFraction(s.RFrameRate)
			}
			if fps <= 0 {
				fps = 25
			}
			p.HasVideo = true
			p.Width, p.Height, p.FPS = s.Width, s.Height, fps
		}
	}
	if !p.HasAudio && !p.HasVideo {
		return p, fmt.Errorf("no audio or video stream found")
	}
	return p, nil
}

// parseFraction parses "num/den" into a float64.
func parseFraction(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
