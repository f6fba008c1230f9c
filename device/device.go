/*
DESCRIPTION
  device.go provides Camera, an interface that describes a configurable
  camera that can be opened, started and stopped and from which raw frames
  may be obtained.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package device provides an interface and implementations for cameras
// that can be started and stopped and from which raw frames can be obtained.
package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/ausocean/lens/config"
)

// Camera describes a configurable camera from which raw frames can be
// obtained. Frames are pushed to the deliver function given to Start from a
// goroutine owned by the Camera.
type Camera interface {
	// Info returns the identity, position and zoom capability of the camera.
	Info() Info

	// Name returns the name of the Camera.
	Name() string

	// Set allows for configuration of the Camera using a Config struct. All,
	// some or none of the fields of the Config struct may be used for
	// configuration by an implementation. An implementation should specify
	// what fields are considered.
	Set(c config.Config) error

	// Open acquires the underlying hardware. Open must be called before Start.
	Open() error

	// Close releases the underlying hardware. A closed Camera may be opened
	// again.
	Close() error

	// Start will start the Camera capturing frames, each of which is passed to
	// deliver. deliver must not block for long; it is called from the
	// camera's capture goroutine.
	Start(deliver func(Raw)) error

	// Stop will stop the Camera capturing frames. No calls to deliver are
	// made after Stop returns.
	Stop() error

	// IsRunning is used to determine if the camera is running.
	IsRunning() bool

	// Lock acquires the camera for reconfiguration. Lock returns ctx.Err()
	// if ctx is done before the lock could be obtained.
	Lock(ctx context.Context) error

	// Unlock releases a lock obtained by Lock.
	Unlock()

	// SetFlash, SetZoom and SetResolution mutate the camera and must only be
	// called while holding the lock.
	SetFlash(m FlashMode) error
	SetZoom(z float64) error
	SetResolution(r Resolution) error
}

// Info identifies a camera.
type Info struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	MaxZoom  float64  `json:"maxZoom"`
}

// Raw is a frame as delivered by a Camera, before any processing.
type Raw struct {
	Image     *image.RGBA
	Timestamp time.Time
}

// Position is the side of the body a camera faces.
type Position string

const (
	Back  Position = config.PositionBack
	Front Position = config.PositionFront
)

// Opposite returns the other position.
func (p Position) Opposite() Position {
	if p == Front {
		return Back
	}
	return Front
}

// ParsePosition returns the Position named by s.
func ParsePosition(s string) (Position, error) {
	switch Position(s) {
	case Back, Front:
		return Position(s), nil
	}
	return "", fmt.Errorf("invalid position: %q", s)
}

// FlashMode is the flash behaviour used while capturing.
type FlashMode string

const (
	FlashOff  FlashMode = config.FlashOff
	FlashOn   FlashMode = config.FlashOn
	FlashAuto FlashMode = config.FlashAuto
)

// ParseFlash returns the FlashMode named by s.
func ParseFlash(s string) (FlashMode, error) {
	switch FlashMode(s) {
	case FlashOff, FlashOn, FlashAuto:
		return FlashMode(s), nil
	}
	return "", fmt.Errorf("invalid flash mode: %q", s)
}

// Resolution is a named capture size preset.
type Resolution struct {
	Name   string
	Width  int
	Height int
}

func (r Resolution) String() string { return fmt.Sprintf("%s(%dx%d)", r.Name, r.Width, r.Height) }

// Resolutions holds the capture presets keyed by name.
var Resolutions = map[string]Resolution{
	config.ResolutionLow:    {config.ResolutionLow, 352, 288},
	config.ResolutionMedium: {config.ResolutionMedium, 640, 480},
	config.ResolutionHigh:   {config.ResolutionHigh, 1280, 720},
	config.ResolutionHD720:  {config.ResolutionHD720, 1280, 720},
	config.ResolutionHD1080: {config.ResolutionHD1080, 1920, 1080},
	config.ResolutionUHD:    {config.ResolutionUHD, 3840, 2160},
}

// ParseResolution returns the preset named by s.
func ParseResolution(s string) (Resolution, error) {
	r, ok := Resolutions[s]
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution preset: %q", s)
	}
	return r, nil
}

// ErrUnavailable is returned when no camera matches a requested position.
var ErrUnavailable = errors.New("device unavailable")

// MultiError implements the built in error interface. MultiError is used here
// to collect multi errors during validation of configuration parameters for
// Cameras.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("device: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}
