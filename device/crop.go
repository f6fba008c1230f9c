/*
DESCRIPTION
  crop.go provides digital zoom by cropping.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package device

import (
	"image"
	"image/draw"
)

// Crop returns the centre 1/zoom of img as an RGBA image with its origin at
// (0, 0). A zoom of 1 or less copies the whole image.
func Crop(img image.Image, zoom float64) *image.RGBA {
	zoom = max(zoom, 1)
	b := img.Bounds()
	w := int(float64(b.Dx()) / zoom)
	h := int(float64(b.Dy()) / zoom)
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return dst
}
