/*
DESCRIPTION
  frame.go provides Frame, a processed camera image ready for preview or
  capture.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package frame provides processed frames and the single slot holder through
// which the most recent frame is shared between the capture goroutine and
// consumers.
package frame

import (
	"image"
	"time"

	"github.com/ausocean/lens/device"
)

// Orientation describes how a frame should be rotated for display.
type Orientation uint8

const (
	Up Orientation = iota
	Right
	UpMirrored
)

func (o Orientation) String() string {
	switch o {
	case Up:
		return "up"
	case Right:
		return "right"
	case UpMirrored:
		return "upMirrored"
	}
	return "unknown"
}

// Frame is a filtered image with its capture metadata. A Frame and its Image
// must not be modified once stored in a Cell.
type Frame struct {
	Image       *image.RGBA
	Timestamp   time.Time
	Orientation Orientation
	Position    device.Position
	Seq         uint64

	// Luma and LumaStdDev summarise the brightness of a sample of pixels,
	// in the range [0, 1].
	Luma       float64
	LumaStdDev float64
}
