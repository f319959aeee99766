package player

import (
	"bufio"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

const (
	sampleRate   = 44100
	channelCount = 2
	bitDepth     = 2 // 16-bit = 2 bytes
	frameSize    = channelCount * bitDepth
	bytesPerSec  = sampleRate * frameSize
)

// audioSink plays PCM pulled from a reader.
type audioSink interface {
	Play()
	Pause()
	Close() error
}

var (
	globalOtoCtx *oto.Context
	otoOnce      sync.Once
	otoInitErr   error
)

func initOto() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		}
		var ready chan struct{}
		globalOtoCtx, ready, otoInitErr = oto.NewContext(op)
		if otoInitErr == nil {
			<-ready
		}
	})
	return globalOtoCtx, otoInitErr
}

// newAudioSink creates a paused oto player reading r.
var newAudioSink = func(r io.Reader) (audioSink, error) {
	ctx, err := initOto()
	if err != nil {
		return nil, err
	}
	return ctx.NewPlayer(r), nil
}

// pcmBuffer sits between the decoder pipe and the audio sink. It counts
// consumed bytes for position tracking and reports stalls: when the
// read-ahead buffer runs dry it signals a rebuffer and blocks until the
// rebuffer threshold is available again.
type pcmBuffer struct {
	br       *bufio.Reader
	rebuffer int

	onStall  func()
	onResume func()
	onEOF    func(error)

	mu      sync.Mutex
	pos     int64
	primed  bool
	eofOnce sync.Once
}

func newPCMBuffer(r io.Reader, readAhead, rebuffer int) *pcmBuffer {
	return &pcmBuffer{
		br:       bufio.NewReaderSize(r, readAhead),
		rebuffer: rebuffer,
	}
}

// Prime blocks until n bytes are buffered or the stream fails.
func (b *pcmBuffer) Prime(n int) error {
	if n > b.br.Size() {
		n = b.br.Size()
	}
	_, err := b.br.Peek(n)
	if err == nil {
		b.mu.Lock()
		b.primed = true
		b.mu.Unlock()
	}
	return err
}

func (b *pcmBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	primed := b.primed
	b.mu.Unlock()

	if primed && b.br.Buffered() == 0 {
		if b.onStall != nil {
			b.onStall()
		}
		_, err := b.br.Peek(b.rebuffer)
		if err == nil && b.onResume != nil {
			b.onResume()
		}
	}

	n, err := b.br.Read(p)
	b.mu.Lock()
	b.pos += int64(n)
	b.mu.Unlock()

	if err != nil {
		b.eofOnce.Do(func() {
			if b.onEOF != nil {
				b.onEOF(err)
			}
		})
	}
	return n, err
}

// Pos returns the number of PCM bytes handed to the sink.
func (b *pcmBuffer) Pos() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}
