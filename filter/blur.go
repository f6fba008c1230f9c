//go:build withcv
// +build withcv

/*
DESCRIPTION
  A filter that applies a Gaussian blur using OpenCV.

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
	"image/draw"

	"gocv.io/x/gocv"
)

// GaussianBlur is a filter that blurs frames with a Gaussian kernel.
type GaussianBlur struct {
	sigma float64
}

// NewBlur returns a new GaussianBlur filter with the given standard deviation.
func NewBlur(sigma float64) Filter {
	if sigma <= 0 {
		return NoOp{}
	}
	return &GaussianBlur{sigma: sigma}
}

// Apply blurs src. If OpenCV fails the unblurred image is returned.
func (g *GaussianBlur) Apply(src *image.RGBA) *image.RGBA {
	mat, err := gocv.ImageToMatRGBA(src)
	if err != nil {
		return src
	}
	defer mat.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.GaussianBlur(mat, &dst, image.Pt(0, 0), g.sigma, g.sigma, gocv.BorderDefault)

	img, err := dst.ToImage()
	if err != nil {
		return src
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
