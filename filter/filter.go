/*
NAME
  filter.go

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package filter provides the interface and implementations of the filters
// applied to camera frames, and the Processor that turns raw camera frames
// into processed frames.
package filter

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/ausocean/lens/config"
)

// Kind names a filter.
type Kind string

// Filter kinds.
const (
	None       Kind = config.FilterNone
	Mono       Kind = config.FilterMono
	Sepia      Kind = config.FilterSepia
	Invert     Kind = config.FilterInvert
	Brightness Kind = config.FilterBrightness
	Blur       Kind = config.FilterBlur
)

// Parameter names.
const (
	ParamAmount = "amount" // Brightness offset in [-1, 1].
	ParamSigma  = "sigma"  // Blur standard deviation in pixels.
)

// Spec describes a filter and its parameters.
type Spec struct {
	Kind   Kind               `json:"kind"`
	Params map[string]float64 `json:"params,omitempty"`
}

func (s Spec) param(name string, def float64) float64 {
	if v, ok := s.Params[name]; ok {
		return v
	}
	return def
}

// Interface for all filters. Apply must not modify src; filters other than
// NoOp return a newly allocated image.
type Filter interface {
	Apply(src *image.RGBA) *image.RGBA
}

// New returns the filter described by s.
func New(s Spec) (Filter, error) {
	switch s.Kind {
	case None, "":
		return NoOp{}, nil
	case Mono:
		return pointwise(mono), nil
	case Sepia:
		return pointwise(sepia), nil
	case Invert:
		return pointwise(invert), nil
	case Brightness:
		return newBrightness(s.param(ParamAmount, 0.2)), nil
	case Blur:
		return NewBlur(s.param(ParamSigma, 3)), nil
	}
	return nil, fmt.Errorf("unknown filter kind: %q", s.Kind)
}

// The NoOp filter will perform no operation on the image, it is passed on
// unchanged.
type NoOp struct{}

func (NoOp) Apply(src *image.RGBA) *image.RGBA { return src }

// pointwise is a filter that maps each pixel independently.
type pointwise func(color.RGBA) color.RGBA

// Apply processes the image in horizontal bands, one goroutine per band.
func (fn pointwise) Apply(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)

	const bands = 4
	step := (b.Dy() + bands - 1) / bands
	var wg sync.WaitGroup
	for y0 := b.Min.Y; y0 < b.Max.Y; y0 += step {
		y1 := min(y0+step, b.Max.Y)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					dst.SetRGBA(x, y, fn(src.RGBAAt(x, y)))
				}
			}
		}(y0, y1)
	}
	wg.Wait()
	return dst
}

func mono(c color.RGBA) color.RGBA {
	y := uint8(luma(c) * 255)
	return color.RGBA{y, y, y, c.A}
}

func sepia(c color.RGBA) color.RGBA {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	return color.RGBA{
		R: clip(0.393*r + 0.769*g + 0.189*b),
		G: clip(0.349*r + 0.686*g + 0.168*b),
		B: clip(0.272*r + 0.534*g + 0.131*b),
		A: c.A,
	}
}

func invert(c color.RGBA) color.RGBA {
	return color.RGBA{255 - c.R, 255 - c.G, 255 - c.B, c.A}
}

func newBrightness(amount float64) pointwise {
	off := amount * 255
	return func(c color.RGBA) color.RGBA {
		return color.RGBA{
			R: clip(float64(c.R) + off),
			G: clip(float64(c.G) + off),
			B: clip(float64(c.B) + off),
			A: c.A,
		}
	}
}

// luma returns the Rec. 601 luma of c in the range [0, 1].
func luma(c color.RGBA) float64 {
	return (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255
}

func clip(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
