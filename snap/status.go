/*
DESCRIPTION
  status.go provides Engine.Update, which applies configuration variable
  changes, and Engine.Status, which reports the engine state.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package snap

import (
	"errors"
	"fmt"

	"github.com/ausocean/lens/bus"
	"github.com/ausocean/lens/config"
	"github.com/ausocean/lens/device"
	"github.com/ausocean/lens/filter"
	"github.com/ausocean/lens/record"
)

// Status describes the engine.
type Status struct {
	Running    bool             `json:"running"`
	Switching  bool             `json:"switching"`
	Device     device.Info      `json:"device"`
	Resolution string           `json:"resolution"`
	Flash      device.FlashMode `json:"flash"`
	Zoom       float64          `json:"zoom"`
	Filter     filter.Spec      `json:"filter"`
	Photo      string           `json:"photo"`
	Recording  record.State     `json:"recording"`
	Shutter    string           `json:"shutter"`
	Forced     bool             `json:"shutterForced"`

	Frames     uint64  `json:"frames"`
	Dropped    uint64  `json:"droppedFrames"`
	Luma       float64 `json:"luma"`
	LumaStdDev float64 `json:"lumaStdDev"`
}

// Status returns the current state of the engine.
func (e *Engine) Status() (Status, error) {
	if !e.running.Load() {
		return Status{}, ErrNotRunning
	}

	var st Status
	ok := e.onLoop(func() {
		st.Photo = e.photo.State()
		st.Recording = e.rec.State()
	})
	if !ok {
		return Status{}, ErrNotRunning
	}

	sc := e.sess.Config()
	st.Running = e.sess.Running()
	st.Switching = e.sess.Switching()
	st.Device, _ = e.sess.Device()
	st.Resolution = sc.Resolution.Name
	st.Flash = sc.Flash
	st.Zoom = sc.Zoom
	st.Filter = e.sess.Filter()
	st.Shutter = e.audio.Policy().String()
	st.Forced = e.audio.Forced()
	st.Frames, st.Dropped = e.sess.FrameStats()
	if f, ok := e.sess.Latest(); ok {
		st.Luma, st.LumaStdDev = f.Luma, f.LumaStdDev
	}
	return st, nil
}

// Update takes a map of variables and their values and edits the current
// config. Changes to the camera position, flash, zoom, resolution, filter and
// shutter policy are sent as commands to a running engine; other changes take
// effect when the engine is next started.
func (e *Engine) Update(vars map[string]string) error {
	e.log.Debug("checking vars from server", "vars", vars)
	e.mu.Lock()
	prev := e.cfg
	e.cfg.Update(vars)
	e.cfg.Validate()
	c := e.cfg
	e.mu.Unlock()

	if c.LogLevel != prev.LogLevel {
		e.log.SetLevel(c.LogLevel)
		e.log.Info("log level changed", "level", c.LogLevel)
	}
	if restartRequired(prev, c) {
		e.log.Warning("config changed; some changes take effect on restart")
	}
	if !e.running.Load() {
		return nil
	}

	var cmds []bus.Command
	if c.Position != prev.Position {
		cmds = append(cmds, bus.SwitchCamera{Position: device.Position(c.Position)})
	}
	if c.Flash != prev.Flash {
		cmds = append(cmds, bus.SetFlashMode{Mode: device.FlashMode(c.Flash)})
	}
	if c.Zoom != prev.Zoom {
		cmds = append(cmds, bus.SetZoom{Factor: c.Zoom})
	}
	if c.Resolution != prev.Resolution {
		cmds = append(cmds, bus.SetResolution{Preset: c.Resolution})
	}
	if c.Filter != prev.Filter {
		cmds = append(cmds, bus.SetFilter{Spec: filter.Spec{Kind: filter.Kind(c.Filter)}})
	}
	if c.ShutterAudible != prev.ShutterAudible {
		cmds = append(cmds, bus.SetShutterAudible{Audible: c.ShutterAudible})
	}

	var errs []error
	for _, cmd := range cmds {
		err := e.bus.Send(cmd)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cmd.Name(), err))
		}
	}
	e.log.Info("finished reconfig", "commands", len(cmds))
	return errors.Join(errs...)
}

// restartRequired reports whether fields that are only read at start
// differ between a and b.
func restartRequired(a, b config.Config) bool {
	return a.Input != b.Input ||
		a.FrontInputPath != b.FrontInputPath ||
		a.BackInputPath != b.BackInputPath ||
		a.FrameRate != b.FrameRate ||
		a.LockTimeout != b.LockTimeout ||
		a.OutputPath != b.OutputPath ||
		a.TempPath != b.TempPath ||
		a.JPEGQuality != b.JPEGQuality ||
		a.MinFreeSpace != b.MinFreeSpace ||
		a.ShutterSound != b.ShutterSound ||
		a.ForceShutter != b.ForceShutter ||
		a.TorchPin != b.TorchPin
}
