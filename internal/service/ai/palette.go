package ai

import (
	"image/color"
	"math/rand/v2"
	"time"
)

// Palette assigns each class a random color the first time it is seen and keeps
// it for the rest of the run. A Palette belongs to one run; it is not safe for
// concurrent use.
type Palette struct {
	rng    *rand.Rand
	colors map[int]color.RGBA
}

func NewPalette() *Palette {
	return NewSeededPalette(uint64(time.Now().UnixNano()))
}

// NewSeededPalette returns a deterministic palette.
func NewSeededPalette(seed uint64) *Palette {
	return &Palette{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		colors: make(map[int]color.RGBA),
	}
}

// Color returns the color for classID, assigning one on first use.
func (p *Palette) Color(classID int) color.RGBA {
	if c, ok := p.colors[classID]; ok {
		return c
	}
	c := color.RGBA{
		R: uint8(p.rng.IntN(256)),
		G: uint8(p.rng.IntN(256)),
		B: uint8(p.rng.IntN(256)),
		A: 255,
	}
	p.colors[classID] = c
	return c
}

// Len is the number of classes seen so far.
func (p *Palette) Len() int {
	return len(p.colors)
}
