package imagery

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// p3ToSRGB maps linear Display P3 to linear sRGB (both D65).
var p3ToSRGB = [3][3]float64{
	{1.2249401, -0.2249404, 0},
	{-0.0420569, 1.0420571, 0},
	{-0.0196376, -0.0786361, 1.0982735},
}

// P3ToSRGB reinterprets img's pixels as Display P3 and converts them to sRGB.
// Out-of-gamut colors are clipped. Alpha is preserved.
func P3ToSRGB(img image.Image) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r := decodeSRGB(c.R)
		g := decodeSRGB(c.G)
		b := decodeSRGB(c.B)
		m := p3ToSRGB
		return color.NRGBA{
			R: encodeSRGB(m[0][0]*r + m[0][1]*g + m[0][2]*b),
			G: encodeSRGB(m[1][0]*r + m[1][1]*g + m[1][2]*b),
			B: encodeSRGB(m[2][0]*r + m[2][1]*g + m[2][2]*b),
			A: c.A,
		}
	})
}

// Display P3 shares the sRGB transfer curve.
func decodeSRGB(v uint8) float64 {
	f := float64(v) / 255
	if f <= 0.04045 {
		return f / 12.92
	}
	return math.Pow((f+0.055)/1.055, 2.4)
}

func encodeSRGB(linear float64) uint8 {
	if linear <= 0 {
		return 0
	}
	if linear >= 1 {
		return 255
	}
	var f float64
	if linear <= 0.0031308 {
		f = linear * 12.92
	} else {
		f = 1.055*math.Pow(linear, 1/2.4) - 0.055
	}
	return uint8(math.Round(f * 255))
}
