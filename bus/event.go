/*
DESCRIPTION
  event.go provides the events published by the capture engine.

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
	"image"
	"time"

	"github.com/ausocean/lens/device"
)

// Event is a notification from the capture engine.
type Event interface {
	Name() string
}

// Kind classifies an Error event.
type Kind string

// Error kinds.
const (
	DeviceUnavailable   Kind = "DeviceUnavailable"
	ConfigurationError  Kind = "ConfigurationError"
	SwitchInProgress    Kind = "SwitchInProgress"
	AlreadyRecording    Kind = "AlreadyRecording"
	AlreadyCapturing    Kind = "AlreadyCapturing"
	NoFrameAvailable    Kind = "NoFrameAvailable"
	PersistenceFailure  Kind = "PersistenceFailure"
	AudioRoutingFailure Kind = "AudioRoutingFailure"
	InvalidCommand      Kind = "InvalidCommand"
)

// PhotoCaptured is published when an immediate or countdown photo is taken.
type PhotoCaptured struct {
	Image     *image.RGBA `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
}

// BurstPhotoCaptured is published for each photo of a burst. Index counts
// from zero.
type BurstPhotoCaptured struct {
	Image     *image.RGBA `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
	Index     int         `json:"index"`
}

// BurstFinished is published when a burst ends, with the number of photos
// taken.
type BurstFinished struct {
	Count     int  `json:"count"`
	Cancelled bool `json:"cancelled"`
}

// CountdownTick is published each second of a countdown with the number of
// seconds remaining.
type CountdownTick struct {
	Remaining int `json:"remaining"`
}

// RecordingTick is published each second of a recording with the elapsed
// whole seconds.
type RecordingTick struct {
	Elapsed int `json:"elapsed"`
}

// RecordingFinished is published when a recording file is finalized.
type RecordingFinished struct {
	Path    string `json:"path"`
	Elapsed int    `json:"elapsed"`
}

// CameraSwitched is published when a device switch completes.
type CameraSwitched struct {
	Position device.Position `json:"position"`
	ID       string          `json:"id"`
}

// Error is published when a command is rejected or an operation fails.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (PhotoCaptured) Name() string      { return "photoCaptured" }
func (BurstPhotoCaptured) Name() string { return "burstPhotoCaptured" }
func (BurstFinished) Name() string      { return "burstFinished" }
func (CountdownTick) Name() string      { return "countdownTick" }
func (RecordingTick) Name() string      { return "recordingTick" }
func (RecordingFinished) Name() string  { return "recordingFinished" }
func (CameraSwitched) Name() string     { return "cameraSwitched" }
func (Error) Name() string              { return "error" }

// Encode returns the JSON form of e. Images are omitted.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data Event  `json:"data"`
	}{e.Name(), e})
}
