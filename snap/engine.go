/*
DESCRIPTION
  engine.go provides Engine, which runs the command loop wiring the capture
  session, photo and recording controllers, audio policy and store to the
  command and event bus.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package snap provides Engine, which runs a capture session and the photo
// and recording controllers behind a command/event bus.
package snap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/benbjohnson/clock"

	"github.com/ausocean/lens/audio"
	"github.com/ausocean/lens/bus"
	"github.com/ausocean/lens/config"
	"github.com/ausocean/lens/device"
	"github.com/ausocean/lens/filter"
	"github.com/ausocean/lens/frame"
	"github.com/ausocean/lens/photo"
	"github.com/ausocean/lens/record"
	"github.com/ausocean/lens/session"
	"github.com/ausocean/lens/store"
)

// Queue sizes and timeouts.
const (
	workerQueue = 16
	deviceQueue = 16
	saveTimeout = 30 * time.Second
)

// ErrNotRunning is returned by Status if the engine is not running.
var ErrNotRunning = errors.New("engine not running")

// Engine provides methods to control a capture engine; commands arrive on
// its bus and are handled by a single command loop, which owns the photo
// and recording controllers.
type Engine struct {
	log logging.Logger

	// cfg holds the Engine configuration.
	cfg config.Config

	// mu guards cfg.
	mu sync.Mutex

	bus   *bus.Bus
	sess  *session.Session
	audio *audio.Manager
	store store.Store
	clk   clock.Clock

	// photo and rec are owned by the command loop.
	photo *photo.Controller
	rec   *record.Controller
	work  *worker

	// post carries functions to be run on the command loop.
	post chan func()

	// devq orders flash, zoom and resolution changes.
	devq chan func(context.Context)

	// ctx is cancelled once the loop has stopped.
	ctx    context.Context
	cancel context.CancelFunc

	running  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	wg       sync.WaitGroup
	switches sync.WaitGroup
}

// New returns a new Engine with the given configuration, selecting cameras
// from reg and persisting media to st. The logger of c must be set.
func New(c config.Config, reg *device.Registry, st store.Store, am *audio.Manager, clk clock.Clock) (*Engine, error) {
	if c.Logger == nil {
		return nil, errors.New("no logger")
	}
	if clk == nil {
		clk = clock.New()
	}

	proc := filter.NewProcessor(c.Logger)
	err := proc.SetSpec(filter.Spec{Kind: filter.Kind(c.Filter)})
	if err != nil {
		return nil, fmt.Errorf("could not set filter: %w", err)
	}

	e := &Engine{
		log:   c.Logger,
		cfg:   c,
		bus:   bus.New(0),
		audio: am,
		store: st,
		clk:   clk,
		post:  make(chan func()),
	}
	e.sess = session.New(c.Logger, reg, proc, session.Options{
		LockTimeout: c.LockTimeout,
		TempDir:     c.TempPath,
		JPEGQuality: c.JPEGQuality,
	})
	return e, nil
}

// Bus returns the bus commands are sent to and events published on.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Config returns a copy of the current configuration.
func (e *Engine) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Latest returns the most recent processed frame.
func (e *Engine) Latest() (frame.Frame, bool) { return e.sess.Latest() }

// Running reports whether the engine is running.
func (e *Engine) Running() bool { return e.running.Load() }

// Start configures the camera at the configured position, starts the
// session and starts handling commands.
func (e *Engine) Start(ctx context.Context) error {
	if e.running.Load() {
		e.log.Warning("start called, but engine already running")
		return nil
	}

	c := e.Config()
	sc, err := sessionConfig(c)
	if err != nil {
		return err
	}
	e.log.Debug("configuring session", "config", sc)
	err = e.sess.Configure(ctx, sc)
	if err != nil {
		return fmt.Errorf("could not configure session: %w", err)
	}
	err = e.sess.Start()
	if err != nil {
		return fmt.Errorf("could not start session: %w", err)
	}
	e.log.Info("session started")

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.stop = make(chan struct{})
	e.stopped = make(chan struct{})
	e.devq = make(chan func(context.Context), deviceQueue)
	e.work = newWorker(workerQueue, func(fn func()) { e.post <- fn })
	e.photo = photo.New(e.log, e.clk, e.sess, e.work, e.savePhoto, e.bus)
	e.rec = record.New(e.log, e.clk, e.openVideo, e.work, e.saveVideo, e.bus)

	e.wg.Add(2)
	go e.loop()
	go e.deviceWork()

	e.running.Store(true)
	return nil
}

// Stop cancels any capture, stops any recording, waits for outstanding saves
// and stops the session.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		e.log.Warning("stop called but engine isn't running")
		return
	}

	e.log.Debug("stopping command loop")
	close(e.stop)
	<-e.stopped
	e.work.close()
	e.log.Info("command loop stopped")

	e.cancel()
	close(e.devq)
	e.switches.Wait()
	e.wg.Wait()

	e.sess.Close()
	e.log.Info("session closed")
}

// loop is the command loop.
func (e *Engine) loop() {
	defer e.wg.Done()
	defer close(e.stopped)
	for {
		select {
		case <-e.stop:
			e.shutdown()
			return
		case c := <-e.bus.Commands():
			e.handle(c)
		case now := <-e.photo.Timer():
			e.photo.Tick(now)
		case <-e.rec.Timer():
			e.rec.Tick()
		case fn := <-e.post:
			fn()
		}
	}
}

// shutdown ends capture and recording, then runs completions until the
// worker is idle.
func (e *Engine) shutdown() {
	e.photo.Cancel()
	e.rec.Stop()
	for e.work.busy() {
		fn := <-e.post
		fn()
	}
}

// handle runs a command on the loop. Rejected commands publish an Error.
func (e *Engine) handle(c bus.Command) {
	e.log.Debug("handling command", "command", c.Name())
	switch c := c.(type) {
	case bus.SwitchCamera:
		e.switchCamera(c.Position)

	case bus.SetFlashMode:
		e.device(c.Name(), func(ctx context.Context) error {
			return e.sess.SetFlash(ctx, c.Mode)
		})

	case bus.SetZoom:
		e.device(c.Name(), func(ctx context.Context) error {
			z, err := e.sess.SetZoom(ctx, c.Factor)
			if err == nil && z != c.Factor {
				e.log.Info("zoom clamped", "requested", c.Factor, "applied", z)
			}
			return err
		})

	case bus.SetResolution:
		r, err := device.ParseResolution(c.Preset)
		if err != nil {
			e.reject(c, fmt.Errorf("%w: %v", bus.ErrInvalidCommand, err))
			return
		}
		e.device(c.Name(), func(ctx context.Context) error {
			return e.sess.SetResolution(ctx, r)
		})

	case bus.SetFilter:
		err := e.sess.SetFilter(c.Spec)
		if err != nil {
			e.reject(c, fmt.Errorf("%w: %v", bus.ErrInvalidCommand, err))
		}

	case bus.CapturePhoto:
		if e.rec.Recording() {
			e.reject(c, record.ErrAlreadyRecording)
			return
		}
		err := e.photo.Request(c.Mode, c.Seconds)
		if err != nil {
			e.reject(c, err)
		}

	case bus.CancelCapture:
		e.photo.Cancel()

	case bus.StartRecording:
		if !e.photo.Idle() {
			e.reject(c, photo.ErrBusy)
			return
		}
		err := e.rec.Start()
		if err != nil {
			e.reject(c, err)
		}

	case bus.StopRecording:
		e.rec.Stop()

	case bus.SetShutterAudible:
		p := audio.Silent
		if c.Audible {
			p = audio.Audible
		}
		e.audio.SetPolicy(p)

	default:
		e.reject(c, bus.ErrInvalidCommand)
	}
}

// switchCamera claims the switch guard on the loop, so switches run in the
// order requested and a switch requested while another is in progress is
// rejected, then runs the switch on its own goroutine.
func (e *Engine) switchCamera(pos device.Position) {
	sw, err := e.sess.BeginSwitch()
	if err != nil {
		e.log.Warning("camera switch rejected", "position", pos, "error", err)
		e.publishErr(err, bus.SwitchInProgress)
		return
	}
	e.switches.Add(1)
	go func() {
		defer e.switches.Done()
		info, err := sw(e.ctx, pos)
		if err != nil {
			e.log.Warning("camera switch failed", "position", pos, "error", err)
			e.publishErr(err, bus.DeviceUnavailable)
			return
		}
		e.mu.Lock()
		e.cfg.Position = string(info.Position)
		e.mu.Unlock()
		e.bus.Publish(bus.CameraSwitched{Position: info.Position, ID: info.ID})
	}()
}

// device queues fn for the device goroutine.
func (e *Engine) device(name string, fn func(context.Context) error) {
	select {
	case e.devq <- func(ctx context.Context) {
		err := fn(ctx)
		if err != nil {
			e.log.Warning("device command failed", "command", name, "error", err)
			e.publishErr(err, bus.ConfigurationError)
		}
	}:
	default:
		e.log.Warning("device queue full", "command", name)
		e.bus.Publish(bus.Error{Kind: bus.ConfigurationError, Message: name + ": device queue full"})
	}
}

func (e *Engine) deviceWork() {
	defer e.wg.Done()
	for fn := range e.devq {
		fn(e.ctx)
	}
}

func (e *Engine) savePhoto(r photo.Result) error {
	err := e.audio.Prepare()
	if err != nil {
		e.publishErr(err, bus.AudioRoutingFailure)
	}
	ctx, cancel := context.WithTimeout(e.ctx, saveTimeout)
	defer cancel()
	path, err := e.store.Save(ctx, store.Item{Kind: store.Photo, Image: r.Image, Timestamp: r.Timestamp, Index: r.Index})
	if err != nil {
		return fmt.Errorf("could not save photo: %w", err)
	}
	e.log.Info("photo saved", "path", path)
	return nil
}

func (e *Engine) openVideo() (record.Output, error) {
	v, err := e.sess.OpenVideoOutput()
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) saveVideo(tmp string) error {
	ctx, cancel := context.WithTimeout(e.ctx, saveTimeout)
	defer cancel()
	path, err := e.store.Save(ctx, store.Item{Kind: store.Video, Path: tmp, Timestamp: e.clk.Now(), Index: -1})
	if err != nil {
		return fmt.Errorf("could not save video: %w", err)
	}
	e.log.Info("video saved", "path", path)
	return nil
}

func (e *Engine) reject(c bus.Command, err error) {
	e.log.Info("command rejected", "command", c.Name(), "error", err)
	e.publishErr(err, bus.InvalidCommand)
}

func (e *Engine) publishErr(err error, def bus.Kind) {
	e.bus.Publish(bus.Error{Kind: kindOf(err, def), Message: err.Error()})
}

// kindOf classifies err, returning def if it is not recognised.
func kindOf(err error, def bus.Kind) bus.Kind {
	switch {
	case errors.Is(err, session.ErrSwitchInProgress):
		return bus.SwitchInProgress
	case errors.Is(err, device.ErrUnavailable):
		return bus.DeviceUnavailable
	case errors.Is(err, session.ErrConfiguration), errors.Is(err, session.ErrNotConfigured):
		return bus.ConfigurationError
	case errors.Is(err, record.ErrAlreadyRecording):
		return bus.AlreadyRecording
	case errors.Is(err, photo.ErrBusy):
		return bus.AlreadyCapturing
	case errors.Is(err, photo.ErrNoFrame):
		return bus.NoFrameAvailable
	case errors.Is(err, audio.ErrRouting):
		return bus.AudioRoutingFailure
	case errors.Is(err, store.ErrNoSpace), errors.Is(err, session.ErrOutputOpen):
		return bus.PersistenceFailure
	case errors.Is(err, bus.ErrInvalidCommand):
		return bus.InvalidCommand
	}
	return def
}

// onLoop runs fn on the command loop and waits for it to return. It returns
// false if the loop has stopped.
func (e *Engine) onLoop(fn func()) bool {
	done := make(chan struct{})
	select {
	case e.post <- func() { fn(); close(done) }:
	case <-e.stopped:
		return false
	}
	<-done
	return true
}

// sessionConfig returns the session configuration described by c.
func sessionConfig(c config.Config) (session.Config, error) {
	pos, err := device.ParsePosition(c.Position)
	if err != nil {
		return session.Config{}, err
	}
	res, err := device.ParseResolution(c.Resolution)
	if err != nil {
		return session.Config{}, err
	}
	flash, err := device.ParseFlash(c.Flash)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{Resolution: res, Flash: flash, Zoom: c.Zoom, Position: pos}, nil
}
