package player

import (
	"fmt"
	"time"
)

// BufferConfig holds the engine buffering thresholds.
type BufferConfig struct {
	MinBuffer                      time.Duration
	MaxBuffer                      time.Duration
	BufferForPlayback              time.Duration
	BufferForPlaybackAfterRebuffer time.Duration
}

// DefaultBufferConfig returns the thresholds used for live TV streams.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MinBuffer:                      60 * time.Second,
		MaxBuffer:                      120 * time.Second,
		BufferForPlayback:              5 * time.Second,
		BufferForPlaybackAfterRebuffer: 10 * time.Second,
	}
}

// NewBufferConfig validates and returns a BufferConfig.
func NewBufferConfig(minBuf, maxBuf, forPlayback, afterRebuffer time.Duration) (BufferConfig, error) {
	b := BufferConfig{
		MinBuffer:                      minBuf,
		MaxBuffer:                      maxBuf,
		BufferForPlayback:              forPlayback,
		BufferForPlaybackAfterRebuffer: afterRebuffer,
	}
	if err := b.Validate(); err != nil {
		return BufferConfig{}, err
	}
	return b, nil
}

// Validate checks the ordering constraints between thresholds.
func (b BufferConfig) Validate() error {
	if b.BufferForPlayback < 0 || b.BufferForPlaybackAfterRebuffer < 0 {
		return fmt.Errorf("buffer thresholds must not be negative")
	}
	if b.MinBuffer < b.BufferForPlaybackAfterRebuffer {
		return fmt.Errorf("min buffer %s is below buffer for playback after rebuffer %s",
			b.MinBuffer, b.BufferForPlaybackAfterRebuffer)
	}
	if b.MinBuffer < b.BufferForPlayback {
		return fmt.Errorf("min buffer %s is below buffer for playback %s", b.MinBuffer, b.BufferForPlayback)
	}
	if b.MaxBuffer < b.MinBuffer {
		return fmt.Errorf("max buffer %s is below min buffer %s", b.MaxBuffer, b.MinBuffer)
	}
	return nil
}

// byteCounts converts the thresholds to PCM byte counts for the engine's
// read-ahead buffer, aligned to whole sample frames.
func (b BufferConfig) byteCounts(bytesPerSec, frameSize int) (readAhead, preroll, rebuffer int) {
	toBytes := func(d time.Duration) int {
		n := int(d.Seconds() * float64(bytesPerSec))
		return n - n%frameSize
	}
	readAhead = toBytes(b.MinBuffer)
	preroll = toBytes(b.BufferForPlayback)
	rebuffer = toBytes(b.BufferForPlaybackAfterRebuffer)
	if preroll < frameSize {
		preroll = frameSize
	}
	if rebuffer < frameSize {
		rebuffer = frameSize
	}
	if readAhead < preroll {
		readAhead = preroll
	}
	if readAhead < rebuffer {
		readAhead = rebuffer
	}
	return readAhead, preroll, rebuffer
}
