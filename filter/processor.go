/*
DESCRIPTION
  processor.go provides Processor, which applies the current filter to raw
  camera frames and tags them with orientation and brightness statistics.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package filter

import (
	"sync/atomic"

	"github.com/ausocean/lens/device"
	"github.com/ausocean/lens/frame"
	"github.com/ausocean/utils/logging"
)

// Processor turns raw frames into processed frames. Process is called from
// the camera's capture goroutine and performs no I/O; SetSpec may be called
// concurrently from any goroutine.
type Processor struct {
	log     logging.Logger
	current atomic.Pointer[active]
	seq     atomic.Uint64
}

type active struct {
	spec Spec
	f    Filter
}

// NewProcessor returns a Processor applying no filter.
func NewProcessor(l logging.Logger) *Processor {
	p := &Processor{log: l}
	p.current.Store(&active{spec: Spec{Kind: None}, f: NoOp{}})
	return p
}

// SetSpec replaces the filter applied to subsequent frames. Unknown kinds are
// rejected and the current filter kept.
func (p *Processor) SetSpec(s Spec) error {
	f, err := New(s)
	if err != nil {
		return err
	}
	if s.Kind == "" {
		s.Kind = None
	}
	p.current.Store(&active{spec: s, f: f})
	p.log.Info("filter set", "kind", s.Kind, "params", s.Params)
	return nil
}

// Spec returns the current filter spec.
func (p *Processor) Spec() Spec { return p.current.Load().spec }

// Process applies the current filter to r. The raw image is never modified.
// Frames from the back camera are oriented right and frames from the front
// camera mirrored.
func (p *Processor) Process(r device.Raw, pos device.Position) frame.Frame {
	a := p.current.Load()
	img := a.f.Apply(r.Image)
	mean, std := Luma(img)

	o := frame.Right
	if pos == device.Front {
		o = frame.UpMirrored
	}

	return frame.Frame{
		Image:       img,
		Timestamp:   r.Timestamp,
		Orientation: o,
		Position:    pos,
		Seq:         p.seq.Add(1),
		Luma:        mean,
		LumaStdDev:  std,
	}
}
