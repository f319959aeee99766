package video

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// asciiRamp runs from darkest to brightest.
const asciiRamp = " .:-=+*#%@"

// Renderer turns RGB24 frames into terminal text. Color profiles pack two
// pixel rows per cell with the upper half block; the Ascii profile maps
// brightness to characters.
type Renderer struct {
	profile termenv.Profile
	cache   map[[3]uint8][2]string // fg, bg SGR parameters
	sb      strings.Builder
}

// NewRenderer uses the color profile of the current terminal.
func NewRenderer() *Renderer {
	return NewRendererWithProfile(termenv.ColorProfile())
}

// NewRendererWithProfile uses an explicit color profile.
func NewRendererWithProfile(p termenv.Profile) *Renderer {
	return &Renderer{profile: p, cache: make(map[[3]uint8][2]string)}
}

// Color reports whether frames are drawn with half blocks.
func (r *Renderer) Color() bool {
	return r.profile != termenv.Ascii
}

// Render draws frame (frameW x frameH pixels) into outW x outH cells.
func (r *Renderer) Render(frame []byte, frameW, frameH, outW, outH int) string {
	if len(frame) < frameW*frameH*3 || frameW <= 0 || frameH <= 0 || outW <= 0 || outH <= 0 {
		return ""
	}
	r.sb.Reset()
	if r.Color() {
		r.renderHalfBlock(frame, frameW, frameH, outW, outH)
	} else {
		r.renderASCII(frame, frameW, frameH, outW, outH)
	}
	return r.sb.String()
}

func (r *Renderer) renderHalfBlock(frame []byte, frameW, frameH, outW, outH int) {
	pixelRows := outH * 2
	for row := 0; row < outH; row++ {
		var lastFg, lastBg string
		for col := 0; col < outW; col++ {
			srcX := col * frameW / outW
			top := r.sequences(samplePixel(frame, frameW, srcX, row*2*frameH/pixelRows))[0]
			bottom := r.sequences(samplePixel(frame, frameW, srcX, (row*2+1)*frameH/pixelRows))[1]
			if top != lastFg || bottom != lastBg {
				r.sb.WriteString(termenv.CSI)
				r.sb.WriteString(top)
				r.sb.WriteByte(';')
				r.sb.WriteString(bottom)
				r.sb.WriteByte('m')
				lastFg, lastBg = top, bottom
			}
			r.sb.WriteString("▀")
		}
		r.sb.WriteString(termenv.CSI + termenv.ResetSeq + "m")
		if row < outH-1 {
			r.sb.WriteByte('\n')
		}
	}
}

// sequences returns the foreground and background SGR parameters for a
// pixel color.
func (r *Renderer) sequences(px [3]uint8) [2]string {
	if seq, ok := r.cache[px]; ok {
		return seq
	}
	c := r.profile.Color(fmt.Sprintf("#%02x%02x%02x", px[0], px[1], px[2]))
	seq := [2]string{c.Sequence(false), c.Sequence(true)}
	if len(r.cache) > 1<<14 {
		clear(r.cache)
	}
	r.cache[px] = seq
	return seq
}

func (r *Renderer) renderASCII(frame []byte, frameW, frameH, outW, outH int) {
	for row := 0; row < outH; row++ {
		for col := 0; col < outW; col++ {
			px := samplePixel(frame, frameW, col*frameW/outW, row*frameH/outH)
			r.sb.WriteByte(brightnessChar(luminance(px)))
		}
		if row < outH-1 {
			r.sb.WriteByte('\n')
		}
	}
}

func samplePixel(frame []byte, stride, x, y int) [3]uint8 {
	off := (y*stride + x) * 3
	if off < 0 || off+2 >= len(frame) {
		return [3]uint8{}
	}
	return [3]uint8{frame[off], frame[off+1], frame[off+2]}
}

// luminance uses ITU-R BT.601 weights.
func luminance(px [3]uint8) uint8 {
	return uint8((299*int(px[0]) + 587*int(px[1]) + 114*int(px[2])) / 1000)
}

func brightnessChar(lum uint8) byte {
	return asciiRamp[int(lum)*(len(asciiRamp)-1)/255]
}

// FitFrame computes the scaler output in pixels and the cell footprint for
// a source of srcW x srcH shown in termW x termH cells. Cells are assumed
// to be twice as tall as wide.
func FitFrame(termW, termH, srcW, srcH int, color bool) (outW, outH, scaleW, scaleH int) {
	if srcW <= 0 || srcH <= 0 || termW <= 0 || termH <= 0 {
		return 0, 0, 0, 0
	}
	rowsPerCell := 1
	if color {
		rowsPerCell = 2
	}
	pixelH := termH * rowsPerCell
	// Width in pixels of one cell relative to one pixel row.
	cellAspect := float64(rowsPerCell) / 2
	src := float64(srcW) / float64(srcH)

	scaleW = termW
	scaleH = int(float64(termW) * cellAspect / src)
	if scaleH > pixelH {
		scaleH = pixelH
		scaleW = int(float64(pixelH) * src / cellAspect)
		if scaleW > termW {
			scaleW = termW
		}
	}
	scaleW = max(scaleW, 4)
	scaleH = max(scaleH, 2)
	scaleH += scaleH % rowsPerCell

	outW = scaleW
	outH = scaleH / rowsPerCell
	return outW, outH, scaleW, scaleH
}
