package imagery

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Tint is an RGB color with components in [0, 1].
type Tint struct {
	Name    string
	R, G, B float64
}

// IsBlack reports whether the tint is pure black. Black frames are copied
// unchanged instead of tinted.
func (t Tint) IsBlack() bool {
	return t.R == 0 && t.G == 0 && t.B == 0
}

// DefaultPalette is the set of cloak colors rendered by the colorize command.
var DefaultPalette = []Tint{
	{Name: "red", R: 0.8745, G: 0.1647, B: 0.1882},
	{Name: "green", R: 0, G: 0.5922, B: 0.2235},
	{Name: "blue", R: 0.2824, G: 0.4784, B: 0.9843},
	{Name: "yellow", R: 0.7, G: 0.7, B: 0.15},
	{Name: "pink", R: 0.8471, G: 0.3451, B: 0.9137},
	{Name: "white", R: 1, G: 1, B: 1},
	{Name: "black"},
}

// Colorize recolors a grayscale frame. Darker source pixels take on more of
// the tint; fully transparent pixels become transparent black.
func Colorize(img image.Image, t Tint) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if c.A == 0 {
			return color.NRGBA{}
		}
		avg := (int(c.R) + int(c.G) + int(c.B)) / 3
		s := 1 - float64(avg)/255
		return color.NRGBA{
			R: channel(s * t.R),
			G: channel(s * t.G),
			B: channel(s * t.B),
			A: c.A,
		}
	})
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
