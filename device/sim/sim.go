/*
DESCRIPTION
  sim.go provides a simulated Camera that generates frames on a ticker or has
  frames injected manually, with controllable lock and open behaviour.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sim provides a simulated camera for use where no capture hardware
// is available, and in testing.
package sim

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ausocean/lens/config"
	"github.com/ausocean/lens/device"
	"github.com/ausocean/utils/logging"
)

// Used to indicate package in logging.
const pkg = "sim: "

// Configuration defaults.
const (
	defaultMaxZoom = 4.0
	defaultRes     = config.ResolutionLow
)

// Configuration field errors.
var (
	errBadResolution = errors.New("resolution bad or unset, defaulting")
	errBadFlash      = errors.New("flash bad or unset, defaulting")
)

// Errors returned by the simulated camera.
var (
	ErrNotOpen    = errors.New("camera not open")
	ErrNotRunning = errors.New("camera not running")
)

// Options describes a simulated camera.
type Options struct {
	ID       string
	Position device.Position
	MaxZoom  float64

	// Clock drives frame generation and lock delays. The real clock is used
	// if nil.
	Clock clock.Clock

	// LockDelay is how long Lock waits before acquiring the camera.
	LockDelay time.Duration

	// LockErr, if not nil, is returned by every call to Lock.
	LockErr error

	// OpenErr, if not nil, is returned by every call to Open.
	OpenErr error
}

// Camera is a simulated device.Camera. If the configured frame rate is zero
// no frames are generated and frames must be injected using Deliver.
type Camera struct {
	info device.Info
	log  logging.Logger
	clk  clock.Clock
	sem  chan struct{} // Device lock.

	mu        sync.Mutex // Protects the fields below.
	opts      Options
	open      bool
	running   bool
	deliver   func(device.Raw)
	frameRate uint
	res       device.Resolution
	flash     device.FlashMode
	zoom      float64
	opens     int
	seq       uint64
	term      chan struct{}

	dmu sync.Mutex // Held while delivering a frame.
	wg  sync.WaitGroup
}

// New returns a new simulated Camera.
func New(l logging.Logger, o Options) *Camera {
	if o.MaxZoom < 1 {
		o.MaxZoom = defaultMaxZoom
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.ID == "" {
		o.ID = "sim-" + string(o.Position)
	}
	return &Camera{
		info:  device.Info{ID: o.ID, Position: o.Position, MaxZoom: o.MaxZoom},
		log:   l,
		clk:   o.Clock,
		sem:   make(chan struct{}, 1),
		opts:  o,
		res:   device.Resolutions[defaultRes],
		flash: device.FlashOff,
		zoom:  1,
	}
}

// Info implements device.Camera.
func (c *Camera) Info() device.Info { return c.info }

// Name returns the name of the device.
func (c *Camera) Name() string { return "Sim" }

// Set uses the FrameRate, Resolution, Flash and Zoom fields of the given
// Config. Bad fields are defaulted and reported in a device.MultiError.
func (c *Camera) Set(cfg config.Config) error {
	var errs device.MultiError
	res, err := device.ParseResolution(cfg.Resolution)
	if err != nil {
		errs = append(errs, errBadResolution)
		res = device.Resolutions[defaultRes]
	}
	flash, err := device.ParseFlash(cfg.Flash)
	if err != nil {
		errs = append(errs, errBadFlash)
		flash = device.FlashOff
	}

	c.mu.Lock()
	c.frameRate = cfg.FrameRate
	c.res = res
	c.flash = flash
	c.zoom = clamp(cfg.Zoom, c.info.MaxZoom)
	c.mu.Unlock()

	if len(errs) != 0 {
		return errs
	}
	return nil
}

// SetOptions replaces the failure injection and delay options.
func (c *Camera) SetOptions(lockDelay time.Duration, lockErr, openErr error) {
	c.mu.Lock()
	c.opts.LockDelay = lockDelay
	c.opts.LockErr = lockErr
	c.opts.OpenErr = openErr
	c.mu.Unlock()
}

// Open implements device.Camera.
func (c *Camera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.OpenErr != nil {
		return c.opts.OpenErr
	}
	if !c.open {
		c.open = true
		c.opens++
		c.log.Debug(pkg+"opened", "id", c.info.ID)
	}
	return nil
}

// Close implements device.Camera. A running camera is stopped first.
func (c *Camera) Close() error {
	c.Stop()
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.log.Debug(pkg+"closed", "id", c.info.ID)
	return nil
}

// IsOpen reports whether the camera is open.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Opens returns the number of times the camera has been opened.
func (c *Camera) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Start implements device.Camera.
func (c *Camera) Start(deliver func(device.Raw)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if c.running {
		return nil
	}
	c.deliver = deliver
	c.running = true
	c.term = make(chan struct{})
	if c.frameRate == 0 {
		c.log.Debug(pkg+"started in manual mode", "id", c.info.ID)
		return nil
	}

	t := c.clk.Ticker(time.Second / time.Duration(c.frameRate))
	c.wg.Add(1)
	go c.generate(t, c.term)
	c.log.Debug(pkg+"started", "id", c.info.ID, "frameRate", c.frameRate)
	return nil
}

func (c *Camera) generate(t *clock.Ticker, term chan struct{}) {
	defer c.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-term:
			return
		case <-t.C:
			c.mu.Lock()
			c.seq++
			n, res := c.seq, c.res
			c.mu.Unlock()
			c.Deliver(device.Raw{Image: Pattern(res.Width, res.Height, n), Timestamp: c.clk.Now()})
		}
	}
}

// Deliver passes r to the deliver function given to Start. It returns
// ErrNotRunning if the camera is not running.
func (c *Camera) Deliver(r device.Raw) error {
	c.dmu.Lock()
	defer c.dmu.Unlock()
	c.mu.Lock()
	running, deliver := c.running, c.deliver
	c.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	deliver(r)
	return nil
}

// Stop implements device.Camera. No frames are delivered after Stop returns.
func (c *Camera) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.term)
	c.mu.Unlock()

	c.wg.Wait()
	c.dmu.Lock()
	c.dmu.Unlock()
	c.log.Debug(pkg+"stopped", "id", c.info.ID)
	return nil
}

// IsRunning is used to determine if the camera is running.
func (c *Camera) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Lock implements device.Camera.
func (c *Camera) Lock(ctx context.Context) error {
	c.mu.Lock()
	delay, lockErr := c.opts.LockDelay, c.opts.LockErr
	c.mu.Unlock()
	if lockErr != nil {
		return lockErr
	}
	if delay > 0 {
		select {
		case <-c.clk.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock implements device.Camera.
func (c *Camera) Unlock() {
	select {
	case <-c.sem:
	default:
		c.log.Warning(pkg+"unlock of unlocked camera", "id", c.info.ID)
	}
}

// SetFlash implements device.Camera.
func (c *Camera) SetFlash(m device.FlashMode) error {
	c.mu.Lock()
	c.flash = m
	c.mu.Unlock()
	return nil
}

// SetZoom implements device.Camera.
func (c *Camera) SetZoom(z float64) error {
	c.mu.Lock()
	c.zoom = clamp(z, c.info.MaxZoom)
	c.mu.Unlock()
	return nil
}

// SetResolution implements device.Camera.
func (c *Camera) SetResolution(r device.Resolution) error {
	c.mu.Lock()
	c.res = r
	c.mu.Unlock()
	return nil
}

// Flash returns the current flash mode.
func (c *Camera) Flash() device.FlashMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flash
}

// Zoom returns the current zoom factor.
func (c *Camera) Zoom() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// Resolution returns the current resolution.
func (c *Camera) Resolution() device.Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res
}

// Pattern returns a w by h test image whose gradient shifts with n.
func Pattern(w, h int, n uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	off := int(n % 256)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x*255/max(w, 1) + off) % 256),
				G: uint8(y * 255 / max(h, 1)),
				B: uint8(off),
				A: 0xff,
			})
		}
	}
	return img
}

func clamp(z, hi float64) float64 {
	switch {
	case z < 1:
		return 1
	case z > hi:
		return hi
	}
	return z
}
