/*
DESCRIPTION
  stats.go provides brightness statistics over a sample of frame pixels.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package filter

import (
	"image"

	"gonum.org/v1/gonum/stat"
)

// lumaSamples bounds the number of pixels sampled per frame.
const lumaSamples = 256

// Luma returns the mean and standard deviation of luma, in the range [0, 1],
// over an evenly spaced grid of at most lumaSamples pixels of img.
func Luma(img *image.RGBA) (mean, std float64) {
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	if b.Empty() {
		return 0, 0
	}

	const side = 16 // side*side == lumaSamples.
	dx := max(b.Dx()/side, 1)
	dy := max(b.Dy()/side, 1)
	xs := make([]float64, 0, lumaSamples)
	for y := b.Min.Y + dy/2; y < b.Max.Y && len(xs) < lumaSamples; y += dy {
		for x := b.Min.X + dx/2; x < b.Max.X && len(xs) < lumaSamples; x += dx {
			xs = append(xs, luma(img.RGBAAt(x, y)))
		}
	}
	if len(xs) == 1 {
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}
