/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
)

// Config map Keys.
const (
	KeyBackInputPath  = "BackInputPath"
	KeyFilter         = "Filter"
	KeyFlash          = "Flash"
	KeyForceShutter   = "ForceShutter"
	KeyFrameRate      = "FrameRate"
	KeyFrontInputPath = "FrontInputPath"
	KeyHTTPAddress    = "HTTPAddress"
	KeyInput          = "Input"
	KeyJPEGQuality    = "JPEGQuality"
	KeyLockTimeout    = "LockTimeout"
	KeyLogging        = "logging"
	KeyMinFreeSpace   = "MinFreeSpace"
	KeyMode           = "mode"
	KeyOutputPath     = "OutputPath"
	KeyPosition       = "Position"
	KeyResolution     = "Resolution"
	KeySchedule       = "Schedule"
	KeyShutterAudible = "ShutterAudible"
	KeyShutterSound   = "ShutterSound"
	KeySuppress       = "Suppress"
	KeyTempPath       = "TempPath"
	KeyTorchPin       = "TorchPin"
	KeyZoom           = "Zoom"
)

// Config map parameter types.
const (
	typeString = "string"
	typeUint   = "uint"
	typeBool   = "bool"
	typeFloat  = "float"
)

// Resolution preset names.
const (
	ResolutionLow    = "low"
	ResolutionMedium = "medium"
	ResolutionHigh   = "high"
	ResolutionHD720  = "hd720"
	ResolutionHD1080 = "hd1080"
	ResolutionUHD    = "uhd"
)

// Filter names.
const (
	FilterNone       = "none"
	FilterMono       = "mono"
	FilterSepia      = "sepia"
	FilterInvert     = "invert"
	FilterBrightness = "brightness"
	FilterBlur       = "blur"
)

// Default variable values.
const (
	defaultInput        = InputSim
	defaultPosition     = PositionBack
	defaultResolution   = ResolutionHigh
	defaultFlash        = FlashOff
	defaultZoom         = 1.0
	defaultFilter       = FilterNone
	defaultFrameRate    = 25
	defaultLockTimeout  = 2 * time.Second
	defaultOutputPath   = "media"
	defaultJPEGQuality  = 90
	defaultMinFreeSpace = 50000000 // 50MB.
	defaultVerbosity    = logging.Error
	defaultFrontInput   = "/dev/video1"
	defaultBackInput    = "/dev/video0"
)

// Resolutions lists the valid resolution preset names.
var Resolutions = []string{ResolutionLow, ResolutionMedium, ResolutionHigh, ResolutionHD720, ResolutionHD1080, ResolutionUHD}

// Filters lists the valid filter names.
var Filters = []string{FilterNone, FilterMono, FilterSepia, FilterInvert, FilterBrightness, FilterBlur}

// Variables describes the variables that can be used for lens control.
// These structs provide the name and type of variable, a function for updating
// this variable in a Config, and a function for validating the value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyBackInputPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.BackInputPath = v },
		Validate: func(c *Config) {
			if c.Input == InputWebcam && c.BackInputPath == "" {
				c.LogInvalidField(KeyBackInputPath, defaultBackInput)
				c.BackInputPath = defaultBackInput
			}
		},
	},
	{
		Name:   KeyFilter,
		Type:   "enum:" + strings.Join(Filters, ","),
		Update: func(c *Config, v string) { c.Filter = strings.ToLower(v) },
		Validate: func(c *Config) {
			if !contains(Filters, c.Filter) {
				c.LogInvalidField(KeyFilter, defaultFilter)
				c.Filter = defaultFilter
			}
		},
	},
	{
		Name:   KeyFlash,
		Type:   "enum:off,on,auto",
		Update: func(c *Config, v string) { c.Flash = strings.ToLower(v) },
		Validate: func(c *Config) {
			switch c.Flash {
			case FlashOff, FlashOn, FlashAuto:
			default:
				c.LogInvalidField(KeyFlash, defaultFlash)
				c.Flash = defaultFlash
			}
		},
	},
	{
		Name:   KeyForceShutter,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.ForceShutter = parseBool(KeyForceShutter, v, c) },
	},
	{
		Name:   KeyFrameRate,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.FrameRate = parseUint(KeyFrameRate, v, c) },
		Validate: func(c *Config) {
			if c.FrameRate <= 0 || c.FrameRate > 60 {
				c.LogInvalidField(KeyFrameRate, defaultFrameRate)
				c.FrameRate = defaultFrameRate
			}
		},
	},
	{
		Name:   KeyFrontInputPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.FrontInputPath = v },
		Validate: func(c *Config) {
			if c.Input == InputWebcam && c.FrontInputPath == "" {
				c.LogInvalidField(KeyFrontInputPath, defaultFrontInput)
				c.FrontInputPath = defaultFrontInput
			}
		},
	},
	{
		Name:   KeyHTTPAddress,
		Type:   typeString,
		Update: func(c *Config, v string) { c.HTTPAddress = v },
	},
	{
		Name: KeyInput,
		Type: "enum:sim,webcam,file",
		Update: func(c *Config, v string) {
			c.Input = parseEnum(
				KeyInput,
				v,
				map[string]uint8{
					"sim":    InputSim,
					"webcam": InputWebcam,
					"file":   InputFile,
				},
				c,
			)
		},
		Validate: func(c *Config) {
			switch c.Input {
			case InputSim, InputWebcam, InputFile:
			default:
				c.LogInvalidField(KeyInput, defaultInput)
				c.Input = defaultInput
			}
		},
	},
	{
		Name: KeyJPEGQuality,
		Type: typeUint,
		Update: func(c *Config, v string) {
			_v, err := strconv.Atoi(v)
			if err != nil {
				c.Logger.Warning("invalid JPEGQuality param", "value", v)
			}
			c.JPEGQuality = _v
		},
		Validate: func(c *Config) {
			if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
				c.LogInvalidField(KeyJPEGQuality, defaultJPEGQuality)
				c.JPEGQuality = defaultJPEGQuality
			}
		},
	},
	{
		Name: KeyLockTimeout,
		Type: typeUint,
		Update: func(c *Config, v string) {
			_v, err := strconv.Atoi(v)
			if err != nil {
				c.Logger.Warning("invalid LockTimeout param", "value", v)
			}
			c.LockTimeout = time.Duration(_v) * time.Millisecond
		},
		Validate: func(c *Config) {
			if c.LockTimeout <= 0 {
				c.LogInvalidField(KeyLockTimeout, defaultLockTimeout)
				c.LockTimeout = defaultLockTimeout
			}
		},
	},
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning("invalid Logging param", "value", v)
			}
		},
		Validate: func(c *Config) {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
		},
	},
	{
		Name:   KeyMinFreeSpace,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MinFreeSpace = parseUint(KeyMinFreeSpace, v, c) },
		Validate: func(c *Config) {
			if c.MinFreeSpace == 0 {
				c.LogInvalidField(KeyMinFreeSpace, defaultMinFreeSpace)
				c.MinFreeSpace = defaultMinFreeSpace
			}
		},
	},
	{
		Name:   KeyMode,
		Type:   "enum:Normal,Paused",
		Update: func(c *Config, v string) {},
	},
	{
		Name:   KeyOutputPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.OutputPath = v },
		Validate: func(c *Config) {
			if c.OutputPath == "" {
				c.LogInvalidField(KeyOutputPath, defaultOutputPath)
				c.OutputPath = defaultOutputPath
			}
		},
	},
	{
		Name:   KeyPosition,
		Type:   "enum:front,back",
		Update: func(c *Config, v string) { c.Position = strings.ToLower(v) },
		Validate: func(c *Config) {
			switch c.Position {
			case PositionFront, PositionBack:
			default:
				c.LogInvalidField(KeyPosition, defaultPosition)
				c.Position = defaultPosition
			}
		},
	},
	{
		Name:   KeyResolution,
		Type:   "enum:" + strings.Join(Resolutions, ","),
		Update: func(c *Config, v string) { c.Resolution = strings.ToLower(v) },
		Validate: func(c *Config) {
			if !contains(Resolutions, c.Resolution) {
				c.LogInvalidField(KeyResolution, defaultResolution)
				c.Resolution = defaultResolution
			}
		},
	},
	{
		Name:   KeySchedule,
		Type:   typeString,
		Update: func(c *Config, v string) { c.Schedule = v },
	},
	{
		Name:   KeyShutterAudible,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.ShutterAudible = parseBool(KeyShutterAudible, v, c) },
	},
	{
		Name:   KeyShutterSound,
		Type:   typeString,
		Update: func(c *Config, v string) { c.ShutterSound = v },
	},
	{
		Name: KeySuppress,
		Type: typeBool,
		Update: func(c *Config, v string) {
			c.Suppress = parseBool(KeySuppress, v, c)
			if l, ok := c.Logger.(*logging.JSONLogger); ok {
				l.SetSuppress(c.Suppress)
			}
		},
	},
	{
		Name:   KeyTempPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.TempPath = v },
	},
	{
		Name:   KeyTorchPin,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.TorchPin = parseUint(KeyTorchPin, v, c) },
	},
	{
		Name: KeyZoom,
		Type: typeFloat,
		Update: func(c *Config, v string) {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				c.Logger.Warning("invalid Zoom param", "value", v)
			}
			c.Zoom = f
		},
		Validate: func(c *Config) {
			if c.Zoom < 1 {
				c.LogInvalidField(KeyZoom, defaultZoom)
				c.Zoom = defaultZoom
			}
		},
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expect bool for param %s", n), "value", v)
	}
	return
}

func parseEnum(n, v string, enums map[string]uint8, c *Config) uint8 {
	_v, ok := enums[strings.ToLower(v)]
	if !ok {
		c.Logger.Warning(fmt.Sprintf("invalid value for %s param", n), "value", v)
	}
	return _v
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
