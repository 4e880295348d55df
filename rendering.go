package dolly

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FrameConfig sizes the text frames rendered for backends without
// screenshots.
type FrameConfig struct {
	Width      int        // columns
	Height     int        // rows
	Background color.RGBA // background color
	Foreground color.RGBA // text color
}

// DefaultFrameConfig is a 100x30 black-on-white frame.
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		Width:      100,
		Height:     30,
		Background: color.RGBA{255, 255, 255, 255},
		Foreground: color.RGBA{0, 0, 0, 255},
	}
}

// RenderingStage renders page text into a PNG, a stand-in for a real
// screenshot that still diffs meaningfully against a baseline.
type RenderingStage struct {
	config     FrameConfig
	buffer     [][]rune
	charWidth  int
	charHeight int
	face       font.Face
}

// NewRenderingStage creates a renderer with an empty buffer.
func NewRenderingStage(config FrameConfig) *RenderingStage {
	rs := &RenderingStage{
		config:     config,
		buffer:     make([][]rune, config.Height),
		charWidth:  7,
		charHeight: 15,
		face:       basicfont.Face7x13,
	}
	for i := range rs.buffer {
		rs.buffer[i] = make([]rune, config.Width)
	}
	return rs
}

// RenderText lays text into the buffer, one line per row. Lines past the
// frame are dropped and long lines are cut at the frame width.
func (rs *RenderingStage) RenderText(text string) {
	for i := range rs.buffer {
		for j := range rs.buffer[i] {
			rs.buffer[i][j] = ' '
		}
	}

	for row, line := range strings.Split(text, "\n") {
		if row >= rs.config.Height {
			break
		}
		line = strings.Map(func(r rune) rune {
			if r == '\t' {
				return ' '
			}
			return r
		}, line)
		for col, r := range []rune(line) {
			if col >= rs.config.Width {
				break
			}
			rs.buffer[row][col] = r
		}
	}
}

// Image draws the buffer.
func (rs *RenderingStage) Image() *image.RGBA {
	width := rs.config.Width * rs.charWidth
	height := rs.config.Height * rs.charHeight

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(rs.config.Background), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(rs.config.Foreground),
		Face: rs.face,
	}

	for row, line := range rs.buffer {
		for col, r := range line {
			if r == ' ' || r == 0 {
				continue
			}
			drawer.Dot = fixed.P(col*rs.charWidth, (row+1)*rs.charHeight-3)
			drawer.DrawString(string(r))
		}
	}
	return img
}

// Encode writes the buffer as PNG.
func (rs *RenderingStage) Encode(w io.Writer) error {
	return png.Encode(w, rs.Image())
}

// PNG returns the buffer as PNG bytes.
func (rs *RenderingStage) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := rs.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
