/*
DESCRIPTION
  session.go provides Session, which controls the lifecycle and
  configuration of the active camera and routes its frames through the
  frame processor into the latest frame cell.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package session provides an API for controlling a capture session: the
// selection, configuration, starting and stopping of the active camera.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ausocean/lens/device"
	"github.com/ausocean/lens/filter"
	"github.com/ausocean/lens/frame"
	"github.com/ausocean/utils/logging"
)

// Defaults.
const (
	defaultLockTimeout = 2 * time.Second
	defaultJPEGQuality = 90
)

// Errors returned by Session.
var (
	ErrConfiguration    = errors.New("configuration failed")
	ErrSwitchInProgress = errors.New("device switch in progress")
	ErrNotConfigured    = errors.New("session not configured")
)

// Config is the configuration applied to the active camera.
type Config struct {
	Resolution device.Resolution
	Flash      device.FlashMode
	Zoom       float64
	Position   device.Position
}

// Options holds the parameters of a Session that do not change while it runs.
type Options struct {
	// LockTimeout bounds how long reconfiguration waits for the device lock.
	LockTimeout time.Duration

	// TempDir is where video outputs are created. os.TempDir is used if empty.
	TempDir string

	// JPEGQuality is used to encode frames written to video outputs.
	JPEGQuality int
}

// Session controls a capture session. Lifecycle and configuration methods
// are serialized and may be called from any goroutine.
type Session struct {
	log  logging.Logger
	reg  *device.Registry
	proc *filter.Processor
	opts Options
	cell frame.Cell

	// switching guards SwitchDevice; it is set for the whole switch sequence.
	switching atomic.Bool

	// video is the attached video output, if any.
	video atomic.Pointer[VideoOutput]

	mu      sync.Mutex // Serializes the methods below and protects the fields below.
	cfg     Config
	dev     device.Camera
	running bool
}

// New returns a new, unconfigured Session selecting cameras from reg and
// processing their frames with proc.
func New(l logging.Logger, reg *device.Registry, proc *filter.Processor, o Options) *Session {
	if o.LockTimeout <= 0 {
		o.LockTimeout = defaultLockTimeout
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = defaultJPEGQuality
	}
	return &Session{log: l, reg: reg, proc: proc, opts: o}
}

// Configure applies c, selecting the camera facing c.Position. If no camera
// faces that position an error wrapping device.ErrUnavailable is returned and
// the session is left as it was. If the camera cannot be locked within the
// lock timeout an error wrapping ErrConfiguration is returned and the previous
// configuration is kept. A new camera that cannot be locked is still selected
// with the requested configuration, and the error is returned alongside any
// error restarting the session.
func (s *Session) Configure(ctx context.Context, c Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, err := s.reg.Select(c.Position)
	if err != nil {
		s.log.Warning("no device for configuration", "position", c.Position, "error", err)
		return err
	}

	if dev == s.dev {
		err = s.apply(ctx, dev, &c, s.cfg)
		if err != nil {
			s.log.Warning("configuration not applied", "error", err)
			return err
		}
		s.cfg = c
		s.log.Info("session configured", "config", c)
		return nil
	}

	err = dev.Open()
	if err != nil {
		return fmt.Errorf("could not open %s: %w: %w", dev.Info().ID, device.ErrUnavailable, err)
	}

	wasRunning := s.running
	s.release()
	s.dev = dev

	err = s.apply(ctx, dev, &c, c)
	if err != nil {
		s.log.Warning("configuration of new device not applied", "id", dev.Info().ID, "error", err)
	}
	s.cfg = c
	s.log.Info("session configured", "device", dev.Info().ID, "config", c)

	if wasRunning {
		return errors.Join(err, s.start())
	}
	return err
}

// Start starts frame delivery from the configured camera. It is a no-op if
// the session is already running.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start()
}

func (s *Session) start() error {
	if s.running {
		return nil
	}
	if s.dev == nil {
		return ErrNotConfigured
	}
	pos := s.cfg.Position
	err := s.dev.Start(func(r device.Raw) { s.deliver(r, pos) })
	if err != nil {
		return fmt.Errorf("could not start %s: %w", s.dev.Info().ID, err)
	}
	s.running = true
	s.log.Info("session started", "device", s.dev.Info().ID)
	return nil
}

// Stop stops frame delivery. It is a no-op if the session is not running.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop()
}

func (s *Session) stop() {
	if !s.running {
		return
	}
	err := s.dev.Stop()
	if err != nil {
		s.log.Error("could not stop device", "error", err)
	}
	s.running = false
	s.log.Info("session stopped", "device", s.dev.Info().ID)
}

// release stops and closes the current device, if any, and empties the
// latest frame cell.
func (s *Session) release() {
	if s.dev == nil {
		return
	}
	s.stop()
	err := s.dev.Close()
	if err != nil {
		s.log.Error("could not close device", "id", s.dev.Info().ID, "error", err)
	}
	s.dev = nil
	s.cell.Reset()
}

// Close stops the session and releases the camera.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
}

// deliver is called on the camera's capture goroutine for every raw frame.
func (s *Session) deliver(r device.Raw, pos device.Position) {
	f := s.proc.Process(r, pos)
	s.cell.Store(f)
	if v := s.video.Load(); v != nil {
		v.push(f)
	}
}

// SwitchDevice stops the session, releases the current camera, selects the
// camera facing pos, or the opposite camera if pos is empty, and starts the
// session with it. Only one switch may be in progress; others fail
// immediately with ErrSwitchInProgress. If no camera is
// available for pos the session is left stopped.
func (s *Session) SwitchDevice(ctx context.Context, pos device.Position) (device.Info, error) {
	sw, err := s.BeginSwitch()
	if err != nil {
		return device.Info{}, err
	}
	return sw(ctx, pos)
}

// BeginSwitch claims the switch guard without blocking and returns the
// function performing the switch, as for SwitchDevice. The guard is held
// until that function returns, so it must be called exactly once.
func (s *Session) BeginSwitch() (func(context.Context, device.Position) (device.Info, error), error) {
	if !s.switching.CompareAndSwap(false, true) {
		return nil, ErrSwitchInProgress
	}
	return s.switchDevice, nil
}

func (s *Session) switchDevice(ctx context.Context, pos device.Position) (device.Info, error) {
	defer s.switching.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if pos == "" {
		pos = s.cfg.Position.Opposite()
	}
	s.log.Info("switching device", "position", pos)
	s.release()

	dev, err := s.reg.Select(pos)
	if err != nil {
		s.log.Error("no device to switch to, session stopped", "position", pos)
		return device.Info{}, err
	}
	err = dev.Open()
	if err != nil {
		s.log.Error("could not open device, session stopped", "id", dev.Info().ID, "error", err)
		return device.Info{}, fmt.Errorf("could not open %s: %w: %w", dev.Info().ID, device.ErrUnavailable, err)
	}
	s.dev = dev

	c := s.cfg
	c.Position = pos
	err = s.apply(ctx, dev, &c, c)
	if err != nil {
		s.log.Warning("configuration of switched device not applied", "id", dev.Info().ID, "error", err)
	}
	s.cfg = c

	err = s.start()
	if err != nil {
		return device.Info{}, err
	}
	return dev.Info(), nil
}

// Switching reports whether a device switch is in progress.
func (s *Session) Switching() bool { return s.switching.Load() }

// SetFlash sets the flash mode of the active camera.
func (s *Session) SetFlash(ctx context.Context, m device.FlashMode) error {
	return s.mutate(ctx, func(c *Config) { c.Flash = m })
}

// SetZoom sets the zoom of the active camera, clamped to [1, MaxZoom]. The
// applied value is returned.
func (s *Session) SetZoom(ctx context.Context, z float64) (float64, error) {
	var applied float64
	err := s.mutate(ctx, func(c *Config) { c.Zoom = z })
	s.mu.Lock()
	applied = s.cfg.Zoom
	s.mu.Unlock()
	return applied, err
}

// SetResolution sets the resolution of the active camera.
func (s *Session) SetResolution(ctx context.Context, r device.Resolution) error {
	return s.mutate(ctx, func(c *Config) { c.Resolution = r })
}

func (s *Session) mutate(ctx context.Context, fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return ErrNotConfigured
	}
	c := s.cfg
	fn(&c)
	err := s.apply(ctx, s.dev, &c, s.cfg)
	if err != nil {
		s.log.Warning("configuration not applied", "error", err)
		return err
	}
	s.cfg = c
	return nil
}

// apply locks dev, applies c to it and unlocks it. c.Zoom is clamped to the
// range dev supports. If a setter fails prev is restored.
func (s *Session) apply(ctx context.Context, dev device.Camera, c *Config, prev Config) error {
	c.Zoom = clampZoom(c.Zoom, dev.Info().MaxZoom)

	ctx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()
	err := dev.Lock(ctx)
	if err != nil {
		return fmt.Errorf("%w: could not lock %s: %v", ErrConfiguration, dev.Info().ID, err)
	}
	defer dev.Unlock()

	err = set(dev, *c)
	if err != nil {
		rerr := set(dev, prev)
		if rerr != nil {
			s.log.Error("could not restore configuration", "error", rerr)
		}
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

func set(dev device.Camera, c Config) error {
	var errs device.MultiError
	if c.Resolution.Width != 0 {
		if err := dev.SetResolution(c.Resolution); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Flash != "" {
		if err := dev.SetFlash(c.Flash); err != nil {
			errs = append(errs, err)
		}
	}
	if err := dev.SetZoom(c.Zoom); err != nil {
		errs = append(errs, err)
	}
	if len(errs) != 0 {
		return errs
	}
	return nil
}

func clampZoom(z, hi float64) float64 {
	if hi < 1 {
		hi = 1
	}
	switch {
	case z < 1:
		return 1
	case z > hi:
		return hi
	}
	return z
}

// Config returns the current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Device returns the identity of the active camera, and false if there is
// none.
func (s *Session) Device() (device.Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return device.Info{}, false
	}
	return s.dev.Info(), true
}

// Running reports whether frames are being delivered.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Latest returns the most recent processed frame, and false if no frame has
// been produced since the camera was selected.
func (s *Session) Latest() (frame.Frame, bool) { return s.cell.Load() }

// FrameStats returns the number of frames produced and the number replaced
// before being read.
func (s *Session) FrameStats() (stored, dropped uint64) { return s.cell.Stats() }

// SetFilter replaces the filter applied to frames.
func (s *Session) SetFilter(spec filter.Spec) error { return s.proc.SetSpec(spec) }

// Filter returns the filter applied to frames.
func (s *Session) Filter() filter.Spec { return s.proc.Spec() }
