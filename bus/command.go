/*
DESCRIPTION
  command.go provides the commands accepted by the capture engine and their
  JSON decoding.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package bus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ausocean/lens/device"
	"github.com/ausocean/lens/filter"
)

// ErrInvalidCommand is returned by Decode for malformed commands.
var ErrInvalidCommand = errors.New("invalid command")

// Command is a request to the capture engine.
type Command interface {
	Name() string
}

// CaptureMode selects how a photo is taken.
type CaptureMode uint8

const (
	Immediate CaptureMode = iota
	Countdown
	Burst
)

func (m CaptureMode) String() string {
	switch m {
	case Immediate:
		return "immediate"
	case Countdown:
		return "countdown"
	case Burst:
		return "burst"
	}
	return "unknown"
}

// ParseCaptureMode returns the CaptureMode named by s. The empty string
// means Immediate.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch s {
	case "", "immediate":
		return Immediate, nil
	case "countdown":
		return Countdown, nil
	case "burst":
		return Burst, nil
	}
	return 0, fmt.Errorf("%w: capture mode %q", ErrInvalidCommand, s)
}

// SwitchCamera switches to the camera at Position, or to the opposite camera
// if Position is empty.
type SwitchCamera struct{ Position device.Position }

// SetFlashMode sets the flash mode.
type SetFlashMode struct{ Mode device.FlashMode }

// SetZoom sets the zoom factor. Out of range factors are clamped.
type SetZoom struct{ Factor float64 }

// SetFilter sets the live filter.
type SetFilter struct{ Spec filter.Spec }

// SetResolution sets the capture resolution preset.
type SetResolution struct{ Preset string }

// CapturePhoto takes a photo. Seconds is the countdown length in Countdown
// mode.
type CapturePhoto struct {
	Mode    CaptureMode
	Seconds int
}

// CancelCapture cancels a countdown or burst in progress.
type CancelCapture struct{}

// StartRecording starts a video recording.
type StartRecording struct{}

// StopRecording stops the video recording in progress.
type StopRecording struct{}

// SetShutterAudible selects the audible or silent shutter policy.
type SetShutterAudible struct{ Audible bool }

func (SwitchCamera) Name() string      { return "switchCamera" }
func (SetFlashMode) Name() string      { return "setFlashMode" }
func (SetZoom) Name() string           { return "setZoom" }
func (SetFilter) Name() string         { return "setFilter" }
func (SetResolution) Name() string     { return "setResolution" }
func (CapturePhoto) Name() string      { return "capturePhoto" }
func (CancelCapture) Name() string     { return "cancelCapture" }
func (StartRecording) Name() string    { return "startRecording" }
func (StopRecording) Name() string     { return "stopRecording" }
func (SetShutterAudible) Name() string { return "setShutterAudible" }

// wireCommand is the JSON form of every command, distinguished by Type.
type wireCommand struct {
	Type     string             `json:"type"`
	Position string             `json:"position"`
	Mode     string             `json:"mode"`
	Factor   float64            `json:"factor"`
	Kind     string             `json:"kind"`
	Params   map[string]float64 `json:"params"`
	Preset   string             `json:"preset"`
	Seconds  int                `json:"seconds"`
	Audible  *bool              `json:"audible"`
}

// Decode parses a command of the form {"type":"capturePhoto","mode":"burst"}.
// Field values are checked for form but not for applicability.
func Decode(data []byte) (Command, error) {
	var w wireCommand
	err := json.Unmarshal(data, &w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	switch w.Type {
	case SwitchCamera{}.Name():
		if w.Position == "" {
			return SwitchCamera{}, nil
		}
		p, err := device.ParsePosition(w.Position)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		return SwitchCamera{Position: p}, nil
	case SetFlashMode{}.Name():
		m, err := device.ParseFlash(w.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		return SetFlashMode{Mode: m}, nil
	case SetZoom{}.Name():
		return SetZoom{Factor: w.Factor}, nil
	case SetFilter{}.Name():
		return SetFilter{Spec: filter.Spec{Kind: filter.Kind(w.Kind), Params: w.Params}}, nil
	case SetResolution{}.Name():
		return SetResolution{Preset: w.Preset}, nil
	case CapturePhoto{}.Name():
		m, err := ParseCaptureMode(w.Mode)
		if err != nil {
			return nil, err
		}
		return CapturePhoto{Mode: m, Seconds: w.Seconds}, nil
	case CancelCapture{}.Name():
		return CancelCapture{}, nil
	case StartRecording{}.Name():
		return StartRecording{}, nil
	case StopRecording{}.Name():
		return StopRecording{}, nil
	case SetShutterAudible{}.Name():
		if w.Audible == nil {
			return nil, fmt.Errorf("%w: audible unset", ErrInvalidCommand)
		}
		return SetShutterAudible{Audible: *w.Audible}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, w.Type)
}
