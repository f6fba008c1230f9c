/*
DESCRIPTION
  file.go provides an implementation of Camera that replays MJPEG files,
  such as lens recordings, in a loop.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package file provides an implementation of Camera for MJPEG files.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdjpeg "image/jpeg"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ausocean/lens/codec/jpeg"
	"github.com/ausocean/lens/config"
	"github.com/ausocean/lens/device"
	"github.com/ausocean/utils/logging"
)

// Used to indicate package in logging.
const pkg = "file: "

const (
	defaultFrameRate = 25
	defaultMaxZoom   = 4.0
)

// Errors.
var (
	ErrNotOpen      = errors.New("file camera not open")
	errBadFrameRate = errors.New("frame rate bad or unset, defaulting")
	errBadFlash     = errors.New("flash bad or unset, defaulting")
	errStopped      = errors.New("stopped")
)

// Camera is an implementation of the Camera interface replaying the JPEG
// images of an MJPEG file at the configured frame rate, from the start again
// once the end is reached.
type Camera struct {
	info device.Info
	path string
	log  logging.Logger
	clk  clock.Clock
	sem  chan struct{} // Device lock.

	mu        sync.Mutex // Protects the fields below.
	frameRate uint
	res       device.Resolution
	flash     device.FlashMode
	zoom      float64
	open      bool
	running   bool
	f         *os.File
	term      chan struct{}

	wg sync.WaitGroup
}

// New returns a new Camera replaying the file at path. The real clock is
// used if clk is nil.
func New(l logging.Logger, info device.Info, path string, clk clock.Clock) *Camera {
	if info.MaxZoom < 1 {
		info.MaxZoom = defaultMaxZoom
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Camera{
		info:      info,
		path:      path,
		log:       l,
		clk:       clk,
		sem:       make(chan struct{}, 1),
		frameRate: defaultFrameRate,
		flash:     device.FlashOff,
		zoom:      1,
	}
}

// Info implements device.Camera.
func (c *Camera) Info() device.Info { return c.info }

// Name returns the name of the device.
func (c *Camera) Name() string {
	return "File"
}

// Set uses the FrameRate, Flash and Zoom fields of the given Config. Frames
// are replayed at their recorded size whatever the resolution.
func (c *Camera) Set(cfg config.Config) error {
	var errs device.MultiError
	if cfg.FrameRate == 0 {
		errs = append(errs, errBadFrameRate)
		cfg.FrameRate = defaultFrameRate
	}
	flash, err := device.ParseFlash(cfg.Flash)
	if err != nil {
		errs = append(errs, errBadFlash)
		flash = device.FlashOff
	}

	c.mu.Lock()
	c.frameRate = cfg.FrameRate
	c.flash = flash
	c.zoom = clamp(cfg.Zoom, c.info.MaxZoom)
	c.mu.Unlock()

	if len(errs) != 0 {
		return errs
	}
	return nil
}

// Open checks that the file exists.
func (c *Camera) Open() error {
	_, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("%w: %v", device.ErrUnavailable, err)
	}
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	return nil
}

// Close implements device.Camera.
func (c *Camera) Close() error {
	err := c.Stop()
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return err
}

// Start opens the file and begins replaying it to deliver.
func (c *Camera) Start(deliver func(device.Raw)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if c.running {
		return nil
	}
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("could not open media file: %w", err)
	}
	c.f = f
	c.term = make(chan struct{})
	c.running = true

	t := c.clk.Ticker(time.Second / time.Duration(c.frameRate))
	c.wg.Add(1)
	go c.play(&loopReader{f: f, log: c.log}, t, c.term, deliver)
	c.log.Debug(pkg+"started", "path", c.path, "frameRate", c.frameRate)
	return nil
}

func (c *Camera) play(r io.Reader, t *clock.Ticker, term chan struct{}, deliver func(device.Raw)) {
	defer c.wg.Done()
	defer t.Stop()
	err := jpeg.Lex(r, func(b []byte) error {
		select {
		case <-term:
			return errStopped
		case <-t.C:
		}
		img, err := stdjpeg.Decode(bytes.NewReader(b))
		if err != nil {
			c.log.Warning(pkg+"could not decode frame", "error", err)
			return nil
		}
		c.mu.Lock()
		zoom := c.zoom
		c.mu.Unlock()
		deliver(device.Raw{Image: device.Crop(img, zoom), Timestamp: c.clk.Now()})
		return nil
	})
	if !errors.Is(err, errStopped) {
		c.log.Error(pkg+"replay ended", "path", c.path, "error", err)
	}
}

// Stop ends replay and closes the file. No frames are delivered after Stop
// returns.
func (c *Camera) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.term)
	f := c.f
	c.mu.Unlock()

	c.wg.Wait()
	return f.Close()
}

// IsRunning is used to determine if the file is being replayed.
func (c *Camera) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Lock implements device.Camera.
func (c *Camera) Lock(ctx context.Context) error {
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
	}
}

// SetFlash records the flash mode; files have no flash.
func (c *Camera) SetFlash(m device.FlashMode) error {
	c.mu.Lock()
	c.flash = m
	c.mu.Unlock()
	return nil
}

// SetZoom sets the digital zoom factor.
func (c *Camera) SetZoom(z float64) error {
	c.mu.Lock()
	c.zoom = clamp(z, c.info.MaxZoom)
	c.mu.Unlock()
	return nil
}

// SetResolution records the resolution.
func (c *Camera) SetResolution(r device.Resolution) error {
	c.mu.Lock()
	c.res = r
	c.mu.Unlock()
	return nil
}

func clamp(z, hi float64) float64 {
	return min(max(z, 1), hi)
}

// loopReader reads f, seeking back to its start at the end of the file.
type loopReader struct {
	f   *os.File
	log logging.Logger
}

// Read implements io.Reader. An empty file gives io.EOF.
func (r *loopReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if n > 0 || err != io.EOF {
		return n, err
	}

	r.log.Debug(pkg + "looping input file")
	_, err = r.f.Seek(0, io.SeekStart)
	if err != nil {
		return 0, fmt.Errorf("could not seek to start of file for input loop: %w", err)
	}
	return r.f.Read(p)
}
