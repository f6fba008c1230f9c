/*
DESCRIPTION
  filter_test.go tests the frame filters and Processor.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package filter

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/lens/device"
	"github.com/ausocean/lens/frame"
	"github.com/ausocean/utils/logging"
)

func uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFilters(t *testing.T) {
	in := color.RGBA{R: 100, G: 150, B: 200, A: 255}
	tests := []struct {
		spec Spec
		want color.RGBA
	}{
		{spec: Spec{Kind: None}, want: in},
		{spec: Spec{Kind: Invert}, want: color.RGBA{155, 105, 55, 255}},
		{spec: Spec{Kind: Mono}, want: color.RGBA{140, 140, 140, 255}},
		{spec: Spec{Kind: Sepia}, want: color.RGBA{192, 171, 133, 255}},
		{spec: Spec{Kind: Brightness, Params: map[string]float64{ParamAmount: 1}}, want: color.RGBA{255, 255, 255, 255}},
		{spec: Spec{Kind: Brightness, Params: map[string]float64{ParamAmount: -1}}, want: color.RGBA{0, 0, 0, 255}},
	}

	for i, test := range tests {
		f, err := New(test.spec)
		if err != nil {
			t.Fatalf("did not expect error for test %d: %v", i, err)
		}
		src := uniform(5, 7, in)
		got := f.Apply(src)
		if got.Bounds() != src.Bounds() {
			t.Errorf("bounds changed for test %d", i)
		}
		for y := 0; y < 7; y++ {
			for x := 0; x < 5; x++ {
				if c := got.RGBAAt(x, y); c != test.want {
					t.Fatalf("unexpected pixel for test %d at (%d,%d): got %v want %v", i, x, y, c, test.want)
				}
				if src.RGBAAt(x, y) != in {
					t.Fatalf("source modified for test %d", i)
				}
			}
		}
	}
}

func TestNoOpIdentity(t *testing.T) {
	src := uniform(2, 2, color.RGBA{A: 255})
	if (NoOp{}).Apply(src) != src {
		t.Error("none filter should return the raw image")
	}
}

func TestUnknownKind(t *testing.T) {
	p := NewProcessor(logging.New(logging.Debug, &bytes.Buffer{}, true))
	if err := p.SetSpec(Spec{Kind: "vignette"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if p.Spec().Kind != None {
		t.Errorf("spec changed after rejected kind: %v", p.Spec())
	}
}

func TestProcessSepiaIntoCell(t *testing.T) {
	p := NewProcessor(logging.New(logging.Debug, &bytes.Buffer{}, true))
	if err := p.SetSpec(Spec{Kind: Sepia}); err != nil {
		t.Fatalf("could not set spec: %v", err)
	}

	var cell frame.Cell
	base := time.Unix(1700000000, 0)
	var raws []*image.RGBA
	for i := 0; i < 3; i++ {
		raw := uniform(4, 4, color.RGBA{R: 100, G: 150, B: 200, A: 255})
		raws = append(raws, raw)
		f := p.Process(device.Raw{Image: raw, Timestamp: base.Add(time.Duration(i) * time.Second)}, device.Back)
		cell.Store(f)
	}

	got, ok := cell.Load()
	if !ok {
		t.Fatal("expected frame in cell")
	}
	if got.Seq != 3 {
		t.Errorf("expected third frame, got seq %d", got.Seq)
	}
	if got.Orientation != frame.Right {
		t.Errorf("unexpected orientation: %v", got.Orientation)
	}
	if !got.Timestamp.Equal(base.Add(2 * time.Second)) {
		t.Errorf("unexpected timestamp: %v", got.Timestamp)
	}
	want := color.RGBA{192, 171, 133, 255}
	if c := got.Image.RGBAAt(1, 1); c != want {
		t.Errorf("unexpected pixel: got %v want %v", c, want)
	}
	if got.Image == raws[2] {
		t.Error("sepia frame shares raw image")
	}
	if _, dropped := cell.Stats(); dropped != 2 {
		t.Errorf("expected 2 dropped frames, got %d", dropped)
	}
}

func TestProcessFrontMirrored(t *testing.T) {
	p := NewProcessor(logging.New(logging.Debug, &bytes.Buffer{}, true))
	f := p.Process(device.Raw{Image: uniform(2, 2, color.RGBA{A: 255})}, device.Front)
	if f.Orientation != frame.UpMirrored || f.Position != device.Front {
		t.Errorf("unexpected tags: %v %v", f.Orientation, f.Position)
	}
}

func TestLuma(t *testing.T) {
	mean, std := Luma(uniform(64, 48, color.RGBA{255, 255, 255, 255}))
	if math.Abs(mean-1) > 1e-9 || std != 0 {
		t.Errorf("unexpected white luma: %v %v", mean, std)
	}

	half := uniform(32, 32, color.RGBA{A: 255})
	for y := 0; y < 32; y++ {
		for x := 16; x < 32; x++ {
			half.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	mean, _ = Luma(half)
	if !cmp.Equal(mean, 0.5, cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 0.01 })) {
		t.Errorf("unexpected half luma: %v", mean)
	}

	if m, s := Luma(nil); m != 0 || s != 0 {
		t.Error("expected zero stats for nil image")
	}
}
