/*
DESCRIPTION
  webcam.go provides an implementation of Camera for webcams.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package webcam provides an implementation of Camera for webcams.
package webcam

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	stdjpeg "image/jpeg"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	perrors "github.com/pkg/errors"

	"github.com/ausocean/lens/codec/jpeg"
	"github.com/ausocean/lens/config"
	"github.com/ausocean/lens/device"
	"github.com/ausocean/utils/logging"
)

// Used to indicate package in logging.
const pkg = "webcam: "

// Configuration defaults.
const (
	defaultFrameRate = 25
	defaultMaxZoom   = 4.0
	defaultRes       = config.ResolutionHigh
)

// Auto flash lights the torch when the mean brightness of the last frame,
// in the range [0, 255], falls below this.
const autoFlashThreshold = 60

// Configuration field errors.
var (
	errBadFrameRate  = errors.New("frame rate bad or unset, defaulting")
	errBadResolution = errors.New("resolution bad or unset, defaulting")
	errBadFlash      = errors.New("flash bad or unset, defaulting")
)

// Torch is a flash light that can be switched on and off.
type Torch interface {
	Set(on bool) error
}

// Webcam is an implementation of the Camera interface for a Webcam. Webcam
// uses an ffmpeg process to pipe MJPEG video from the webcam, which is split
// into JPEG images and decoded.
type Webcam struct {
	info  device.Info
	path  string
	log   logging.Logger
	torch Torch
	sem   chan struct{} // Device lock.

	mu        sync.Mutex // Protects the fields below.
	frameRate uint
	res       device.Resolution
	flash     device.FlashMode
	zoom      float64
	open      bool
	running   bool
	deliver   func(device.Raw)
	cmd       *exec.Cmd
	out       io.ReadCloser
	done      chan struct{}

	wg sync.WaitGroup
}

// New returns a new Webcam reading from the device node at path. torch may be
// nil if the camera has no flash.
func New(l logging.Logger, info device.Info, path string, torch Torch) *Webcam {
	if info.MaxZoom < 1 {
		info.MaxZoom = defaultMaxZoom
	}
	return &Webcam{
		info:      info,
		path:      path,
		log:       l,
		torch:     torch,
		sem:       make(chan struct{}, 1),
		frameRate: defaultFrameRate,
		res:       device.Resolutions[defaultRes],
		flash:     device.FlashOff,
		zoom:      1,
	}
}

// Info implements device.Camera.
func (w *Webcam) Info() device.Info { return w.info }

// Name returns the name of the device.
func (w *Webcam) Name() string {
	return "Webcam"
}

// Set will validate the FrameRate, Resolution, Flash and Zoom fields of the
// given Config struct. If fields are not valid, an error is added to the
// multiError and a default value is used.
func (w *Webcam) Set(c config.Config) error {
	var errs device.MultiError
	if c.FrameRate == 0 {
		errs = append(errs, errBadFrameRate)
		c.FrameRate = defaultFrameRate
	}

	res, err := device.ParseResolution(c.Resolution)
	if err != nil {
		errs = append(errs, errBadResolution)
		res = device.Resolutions[defaultRes]
	}

	flash, err := device.ParseFlash(c.Flash)
	if err != nil {
		errs = append(errs, errBadFlash)
		flash = device.FlashOff
	}

	w.mu.Lock()
	w.frameRate = c.FrameRate
	w.res = res
	w.flash = flash
	w.zoom = clampZoom(c.Zoom, w.info.MaxZoom)
	w.mu.Unlock()

	if len(errs) != 0 {
		return errs
	}
	return nil
}

// Open checks that the device node exists.
func (w *Webcam) Open() error {
	_, err := os.Stat(w.path)
	if err != nil {
		return perrors.Wrapf(device.ErrUnavailable, "could not stat %s: %v", w.path, err)
	}
	w.mu.Lock()
	w.open = true
	w.mu.Unlock()
	return nil
}

// Close stops the webcam and switches off the torch.
func (w *Webcam) Close() error {
	err := w.Stop()
	w.mu.Lock()
	w.open = false
	w.mu.Unlock()
	if w.torch != nil {
		w.torch.Set(false)
	}
	return err
}

// Start will build the required arguments for ffmpeg and then execute the
// command, reading and decoding the piped frames in a new goroutine.
func (w *Webcam) Start(deliver func(device.Raw)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return errors.New("webcam not open")
	}
	if w.running {
		return nil
	}
	w.deliver = deliver
	return w.start()
}

// start launches ffmpeg. w.mu must be held.
func (w *Webcam) start() error {
	args := []string{
		"-f", "v4l2",
		"-framerate", fmt.Sprint(w.frameRate),
		"-video_size", fmt.Sprintf("%dx%d", w.res.Width, w.res.Height),
		"-i", w.path,
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	}

	w.log.Info(pkg+"ffmpeg args", "args", strings.Join(args, " "))
	w.cmd = exec.Command("ffmpeg", args...)

	var err error
	w.out, err = w.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create pipe: %w", err)
	}

	stderr, err := w.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("could not pipe command error: %w", err)
	}

	w.log.Info(pkg + "starting webcam")
	err = w.cmd.Start()
	if err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	w.running = true
	w.done = make(chan struct{})

	w.wg.Add(2)
	go w.logStderr(stderr)
	go w.capture(w.out, w.done)
	w.log.Info(pkg + "webcam started")
	return nil
}

func (w *Webcam) logStderr(stderr io.Reader) {
	defer w.wg.Done()
	s := bufio.NewScanner(stderr)
	for s.Scan() {
		w.log.Debug(pkg+"ffmpeg", "stderr", s.Text())
	}
}

func (w *Webcam) capture(out io.Reader, done chan struct{}) {
	defer w.wg.Done()
	err := jpeg.Lex(out, func(b []byte) error {
		select {
		case <-done:
			return io.EOF
		default:
		}
		ts := time.Now()
		img, err := stdjpeg.Decode(bytes.NewReader(b))
		if err != nil {
			w.log.Warning(pkg+"could not decode frame", "error", err)
			return nil
		}
		w.mu.Lock()
		zoom, deliver := w.zoom, w.deliver
		w.mu.Unlock()
		rgba := device.Crop(img, zoom)
		w.autoFlash(rgba)
		deliver(device.Raw{Image: rgba, Timestamp: ts})
		return nil
	})
	select {
	case <-done:
	default:
		w.log.Error(pkg+"capture ended", "error", err)
	}
}

// Stop will kill the ffmpeg process and close the output pipe.
func (w *Webcam) Stop() error {
	w.mu.Lock()
	err := w.stop()
	w.mu.Unlock()
	w.wg.Wait()
	return err
}

// stop kills ffmpeg. w.mu must be held.
func (w *Webcam) stop() error {
	if !w.running {
		return nil
	}
	w.running = false
	close(w.done)
	if w.cmd == nil || w.cmd.Process == nil {
		return errors.New("ffmpeg process was never started")
	}
	err := w.cmd.Process.Kill()
	if err != nil {
		return fmt.Errorf("could not kill ffmpeg process: %w", err)
	}
	w.cmd.Wait()
	return nil
}

// IsRunning is used to determine if the webcam is running.
func (w *Webcam) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Lock implements device.Camera.
func (w *Webcam) Lock(ctx context.Context) error {
	select {
	case w.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock implements device.Camera.
func (w *Webcam) Unlock() {
	select {
	case <-w.sem:
	default:
	}
}

// SetFlash sets the flash mode, switching the torch if there is one.
func (w *Webcam) SetFlash(m device.FlashMode) error {
	w.mu.Lock()
	w.flash = m
	w.mu.Unlock()
	if w.torch == nil {
		return nil
	}
	switch m {
	case device.FlashOn:
		return w.torch.Set(true)
	case device.FlashOff:
		return w.torch.Set(false)
	}
	return nil
}

// SetZoom sets the digital zoom factor.
func (w *Webcam) SetZoom(z float64) error {
	w.mu.Lock()
	w.zoom = clampZoom(z, w.info.MaxZoom)
	w.mu.Unlock()
	return nil
}

// SetResolution sets the capture size. A running ffmpeg process is restarted
// with the new size.
func (w *Webcam) SetResolution(r device.Resolution) error {
	w.mu.Lock()
	w.res = r
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	err := w.stop()
	w.mu.Unlock()
	w.wg.Wait()
	if err != nil {
		return perrors.Wrap(err, "could not stop for resolution change")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return perrors.Wrap(w.start(), "could not restart for resolution change")
}

func (w *Webcam) autoFlash(img *image.RGBA) {
	w.mu.Lock()
	flash := w.flash
	w.mu.Unlock()
	if flash != device.FlashAuto || w.torch == nil {
		return
	}
	err := w.torch.Set(meanBrightness(img) < autoFlashThreshold)
	if err != nil {
		w.log.Warning(pkg+"could not set torch", "error", err)
	}
}

// meanBrightness returns the mean of the RGB channels over a sparse grid of
// pixels.
func meanBrightness(img *image.RGBA) float64 {
	b := img.Bounds()
	const grid = 16
	var sum, n float64
	for y := b.Min.Y; y < b.Max.Y; y += max(b.Dy()/grid, 1) {
		for x := b.Min.X; x < b.Max.X; x += max(b.Dx()/grid, 1) {
			c := img.RGBAAt(x, y)
			sum += (float64(c.R) + float64(c.G) + float64(c.B)) / 3
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

func clampZoom(z, hi float64) float64 {
	switch {
	case z < 1:
		return 1
	case z > hi:
		return hi
	}
	return z
}
