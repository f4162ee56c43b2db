package render

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"

	"snakeql/internal/env"
)

// Colours of the classic pygame board
var (
	colorBackground = [3]float64{0, 0, 0}
	colorFood       = [3]float64{200 / 255.0, 0, 0}
	colorBodyOuter  = [3]float64{0, 0, 1}
	colorBodyInner  = [3]float64{0, 100 / 255.0, 1}
	colorText       = [3]float64{1, 1, 1}
)

// Image draws a frame at one pixel per board unit
func Image(f env.Frame) image.Image {
	dc := gg.NewContext(f.Width, f.Height)
	setRGB(dc, colorBackground)
	dc.Clear()

	b := float64(f.BlockSize)
	inset := b / 5
	for _, p := range f.Snake {
		x, y := float64(p.X), float64(p.Y)
		setRGB(dc, colorBodyOuter)
		dc.DrawRectangle(x, y, b, b)
		dc.Fill()
		setRGB(dc, colorBodyInner)
		dc.DrawRectangle(x+inset, y+inset, b-2*inset, b-2*inset)
		dc.Fill()
	}

	setRGB(dc, colorFood)
	dc.DrawRectangle(float64(f.Food.X), float64(f.Food.Y), b, b)
	dc.Fill()

	setRGB(dc, colorText)
	dc.DrawString(fmt.Sprintf("Score: %d", f.Score), 4, 14)

	return dc.Image()
}

func setRGB(dc *gg.Context, c [3]float64) {
	dc.SetRGB(c[0], c[1], c[2])
}

// SavePNG writes the frame to path
func SavePNG(f env.Frame, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return gg.SavePNG(path, Image(f))
}

// Sequence writes numbered PNG frames into a directory
type Sequence struct {
	dir string
	n   int
}

// NewSequence creates dir if needed
func NewSequence(dir string) (*Sequence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Sequence{dir: dir}, nil
}

// Write saves f as the next frame and returns its path
func (s *Sequence) Write(f env.Frame) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("frame_%05d.png", s.n))
	if err := SavePNG(f, path); err != nil {
		return "", fmt.Errorf("frame %d: %w", s.n, err)
	}
	s.n++
	return path, nil
}

// Len returns the number of frames written
func (s *Sequence) Len() int {
	return s.n
}
