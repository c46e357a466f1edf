package imagery

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// HasAlphaChannel reports whether img's color model can carry transparency.
func HasAlphaChannel(img image.Image) bool {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.YCbCrModel, color.CMYKModel:
		return false
	}
	if p, ok := img.(*image.Paletted); ok {
		for _, c := range p.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	}
	return true
}

// UsesAlpha reports whether any translucent pixel is not white. Transparent
// areas turn white when an image is flattened to JPEG, so an image whose only
// translucent pixels are white can drop its alpha channel without visible
// change.
func UsesAlpha(img image.Image) bool {
	if !HasAlphaChannel(img) {
		return false
	}
	n := imaging.Clone(img)
	for i := 0; i+3 < len(n.Pix); i += 4 {
		white := n.Pix[i] == 0xff && n.Pix[i+1] == 0xff && n.Pix[i+2] == 0xff
		if !white && n.Pix[i+3] != 0xff {
			return true
		}
	}
	return false
}

// DiscardAlpha makes every pixel opaque, keeping its straight color values.
func DiscardAlpha(img image.Image) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.A = 0xff
		return c
	})
}
