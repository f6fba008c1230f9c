/*
DESCRIPTION
  config.go contains the configuration settings for a lens capture engine.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for the lens capture engine.
package config

import (
	"time"

	"github.com/ausocean/utils/logging"
)

// Enums to define inputs.
const (
	// Indicates no option has been set.
	NothingDefined = iota

	// Inputs.
	InputSim
	InputWebcam
	InputFile
)

// Camera positions.
const (
	PositionBack  = "back"
	PositionFront = "front"
)

// Flash modes.
const (
	FlashOff  = "off"
	FlashOn   = "on"
	FlashAuto = "auto"
)

// Config provides parameters relevant to a lens engine instance. A new config
// must be passed to the constructor. Default values for these fields are
// defined in variables.go.
type Config struct {
	// Input defines the camera source.
	//
	// Valid values are defined by enums:
	// InputSim:
	//		Generated frames from simulated front and back cameras.
	// InputWebcam:
	//		V4L webcams read through ffmpeg; FrontInputPath and BackInputPath
	//		select the device nodes.
	// InputFile:
	//		MJPEG files, such as lens recordings, replayed in a loop;
	//		FrontInputPath and BackInputPath select the files.
	Input uint8

	FrontInputPath string // Device node of the front camera e.g. /dev/video1.
	BackInputPath  string // Device node of the back camera e.g. /dev/video0.

	// Position is the initially selected camera, "front" or "back".
	Position string

	// Resolution is the capture preset name, see device.Resolutions.
	Resolution string

	// Flash is the flash mode, "off", "on" or "auto".
	Flash string

	// Zoom is the requested zoom factor. It is clamped to the range supported
	// by the selected device when applied.
	Zoom float64

	// Filter is the name of the live filter applied to every frame.
	Filter string

	// ShutterAudible selects the audible shutter policy when true and the
	// silent policy otherwise.
	ShutterAudible bool

	// ForceShutter models platforms where the shutter sound cannot be
	// suppressed.
	ForceShutter bool

	// ShutterSound is the path of a WAV or FLAC file used as the shutter
	// sound. A synthesized click is used when unset.
	ShutterSound string

	FrameRate uint // Frames per second requested from the camera.

	// LockTimeout bounds how long device reconfiguration may wait for the
	// device lock.
	LockTimeout time.Duration

	// OutputPath is the directory captured photos and videos are persisted to.
	OutputPath string

	// TempPath is the directory recordings are written to before handoff.
	TempPath string

	// JPEGQuality is a value 1-100 inclusive controlling compression of saved
	// photos and recorded frames.
	JPEGQuality int

	// MinFreeSpace is the number of bytes of disk space that must remain free
	// for a save to proceed.
	MinFreeSpace uint

	// HTTPAddress is the listen address of the HTTP control surface. The
	// surface is disabled when empty.
	HTTPAddress string

	// Schedule is a cron spec on which immediate photos are taken.
	Schedule string

	// TorchPin is the GPIO pin driving a flash LED for webcam input. Zero
	// means no torch.
	TorchPin uint

	// Logger holds an implementation of the Logger interface.
	// This must be set for lens to work correctly.
	Logger logging.Logger

	// LogLevel is the logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8

	Suppress bool // Holds logger suppression state.
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and converting into correct type, and then
// sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
