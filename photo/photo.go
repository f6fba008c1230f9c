/*
DESCRIPTION
  photo.go provides Controller, the state machine for immediate, countdown
  and burst photo capture.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package photo provides the photo capture state machine.
package photo

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/looplab/fsm"

	"github.com/ausocean/lens/bus"
	"github.com/ausocean/lens/frame"
	"github.com/ausocean/utils/logging"
)

// Controller states.
const (
	StateIdle      = "idle"
	StateCountdown = "countdown"
	StateBurst     = "burst"
	StateCapturing = "capturing"
)

// State machine events.
const (
	evCountdown = "countdown"
	evBurst     = "burst"
	evCapture   = "capture"
	evFinish    = "finish"
	evCancel    = "cancel"
)

// Capture timing.
const (
	CountdownInterval = time.Second
	BurstInterval     = 200 * time.Millisecond
	BurstMax          = 10
	BurstMaxEmpty     = 10 // Consecutive frameless ticks before a burst is abandoned.
)

// Errors returned by Controller.
var (
	ErrNoFrame = errors.New("no frame available")
	ErrBusy    = errors.New("capture in progress")
)

// Result is a captured photo. Index is the position within a burst, or -1
// for a single photo.
type Result struct {
	Image     *image.RGBA
	Timestamp time.Time
	Index     int
}

// Source provides the latest processed frame.
type Source interface {
	Latest() (frame.Frame, bool)
}

// Worker runs jobs away from the caller and reports their completion. done
// must be called on the goroutine that owns the Controller.
type Worker interface {
	Do(job func() error, done func(error)) error
}

// Publisher receives the events emitted by the Controller.
type Publisher interface {
	Publish(bus.Event)
}

// Controller drives photo capture. Apart from State, its methods must be
// called from a single goroutine, which must also call Tick whenever the
// channel returned by Timer delivers.
type Controller struct {
	log  logging.Logger
	clk  clock.Clock
	src  Source
	work Worker
	save func(Result) error
	pub  Publisher
	fsm  *fsm.FSM

	ticker    *clock.Ticker
	remaining int      // Seconds left in a countdown.
	results   []Result // Photos of the current or last burst.
	pending   int      // Burst saves in flight.
	empty     int      // Consecutive burst ticks without a frame.
	gen       uint64   // Incremented whenever a capture ends.
}

// New returns a new idle Controller. save persists a photo and is run by w.
func New(l logging.Logger, clk clock.Clock, src Source, w Worker, save func(Result) error, pub Publisher) *Controller {
	c := &Controller{log: l, clk: clk, src: src, work: w, save: save, pub: pub}
	c.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evCountdown, Src: []string{StateIdle}, Dst: StateCountdown},
			{Name: evBurst, Src: []string{StateIdle}, Dst: StateBurst},
			{Name: evCapture, Src: []string{StateIdle, StateCountdown}, Dst: StateCapturing},
			{Name: evFinish, Src: []string{StateCapturing, StateBurst}, Dst: StateIdle},
			{Name: evCancel, Src: []string{StateCountdown, StateBurst}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				l.Debug("photo state changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
	return c
}

// State returns the current state. It is safe to call from any goroutine.
func (c *Controller) State() string { return c.fsm.Current() }

// Idle reports whether no capture is in progress.
func (c *Controller) Idle() bool { return c.fsm.Is(StateIdle) }

// Timer returns the channel of the active countdown or burst ticker, or nil
// if neither is active.
func (c *Controller) Timer() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C
}

// Request starts a capture. For Countdown, seconds is the countdown length;
// a length of zero or less captures immediately. Immediate capture and the
// first photo of a burst fail with ErrNoFrame if no frame has been produced.
// Any request while not idle fails with ErrBusy.
func (c *Controller) Request(mode bus.CaptureMode, seconds int) error {
	if !c.Idle() {
		return ErrBusy
	}

	switch mode {
	case bus.Countdown:
		if seconds <= 0 {
			return c.capture()
		}
		c.event(evCountdown)
		c.remaining = seconds
		c.startTicker(CountdownInterval)
		c.log.Info("countdown started", "seconds", seconds)
		return nil

	case bus.Burst:
		f, ok := c.src.Latest()
		if !ok {
			return ErrNoFrame
		}
		c.event(evBurst)
		c.results = c.results[:0]
		c.pending = 0
		c.empty = 0
		c.startTicker(BurstInterval)
		c.log.Info("burst started", "max", BurstMax, "interval", BurstInterval)
		c.burstShot(f)
		return nil

	default:
		return c.capture()
	}
}

// Cancel ends a countdown or burst. The ticker is stopped before Cancel
// returns, so no capture follows. Cancel does nothing in other states.
func (c *Controller) Cancel() {
	switch c.State() {
	case StateCountdown:
		c.stopTicker()
		c.gen++
		c.event(evCancel)
		c.log.Info("countdown cancelled", "remaining", c.remaining)
	case StateBurst:
		c.stopTicker()
		c.gen++
		c.event(evCancel)
		c.log.Info("burst cancelled", "count", len(c.results))
		c.pub.Publish(bus.BurstFinished{Count: len(c.results), Cancelled: true})
	}
}

// Tick advances the active countdown or burst.
func (c *Controller) Tick(now time.Time) {
	switch c.State() {
	case StateCountdown:
		c.remaining--
		c.pub.Publish(bus.CountdownTick{Remaining: c.remaining})
		if c.remaining > 0 {
			return
		}
		c.stopTicker()
		err := c.capture()
		if err != nil {
			c.log.Warning("countdown capture failed", "error", err)
			c.gen++
			c.event(evCancel)
			c.pub.Publish(bus.Error{Kind: bus.NoFrameAvailable, Message: err.Error()})
		}

	case StateBurst:
		if c.ticker == nil {
			return // Cap reached; waiting for saves.
		}
		if c.pending > 0 {
			c.log.Debug("burst tick skipped, save pending", "at", now)
			return
		}
		f, ok := c.src.Latest()
		if !ok {
			c.empty++
			c.log.Debug("burst tick skipped, no frame", "at", now, "empty", c.empty)
			if c.empty >= BurstMaxEmpty {
				c.abandonBurst()
			}
			return
		}
		c.empty = 0
		c.burstShot(f)
	}
}

// abandonBurst ends a burst whose source has stopped producing frames.
func (c *Controller) abandonBurst() {
	c.stopTicker()
	c.gen++
	c.event(evCancel)
	c.log.Warning("burst abandoned, no frames", "count", len(c.results))
	c.pub.Publish(bus.Error{Kind: bus.NoFrameAvailable, Message: "burst abandoned: " + ErrNoFrame.Error()})
	c.pub.Publish(bus.BurstFinished{Count: len(c.results), Cancelled: true})
}

// Results returns the photos of the current or most recent burst.
func (c *Controller) Results() []Result {
	return append([]Result(nil), c.results...)
}

// capture takes a single photo from the latest frame.
func (c *Controller) capture() error {
	f, ok := c.src.Latest()
	if !ok {
		return ErrNoFrame
	}
	c.event(evCapture)
	r := Result{Image: f.Image, Timestamp: f.Timestamp, Index: -1}
	c.pub.Publish(bus.PhotoCaptured{Image: r.Image, Timestamp: r.Timestamp})

	gen := c.gen
	err := c.work.Do(func() error { return c.save(r) }, func(err error) { c.saved(gen, err) })
	if err != nil {
		c.saved(gen, err)
	}
	return nil
}

func (c *Controller) saved(gen uint64, err error) {
	if err != nil {
		c.log.Error("could not save photo", "error", err)
		c.pub.Publish(bus.Error{Kind: bus.PersistenceFailure, Message: err.Error()})
	}
	if gen != c.gen || !c.fsm.Is(StateCapturing) {
		return
	}
	c.gen++
	c.event(evFinish)
}

func (c *Controller) burstShot(f frame.Frame) {
	r := Result{Image: f.Image, Timestamp: f.Timestamp, Index: len(c.results)}
	c.results = append(c.results, r)
	c.pending++
	if len(c.results) == BurstMax {
		c.stopTicker()
	}
	c.pub.Publish(bus.BurstPhotoCaptured{Image: r.Image, Timestamp: r.Timestamp, Index: r.Index})

	gen := c.gen
	err := c.work.Do(func() error { return c.save(r) }, func(err error) { c.burstSaved(gen, err) })
	if err != nil {
		c.burstSaved(gen, err)
	}
}

func (c *Controller) burstSaved(gen uint64, err error) {
	if err != nil {
		c.log.Error("could not save burst photo", "error", err)
		c.pub.Publish(bus.Error{Kind: bus.PersistenceFailure, Message: err.Error()})
	}
	if gen != c.gen {
		return
	}
	c.pending--
	if c.pending > 0 || len(c.results) < BurstMax {
		return
	}
	c.gen++
	c.event(evFinish)
	c.log.Info("burst finished", "count", len(c.results))
	c.pub.Publish(bus.BurstFinished{Count: len(c.results)})
}

func (c *Controller) startTicker(d time.Duration) {
	c.stopTicker()
	c.ticker = c.clk.Ticker(d)
}

func (c *Controller) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

// event fires a state machine event. Events are only fired from states the
// Controller has checked, so failure indicates a bug.
func (c *Controller) event(name string) {
	err := c.fsm.Event(context.Background(), name)
	if err != nil {
		c.log.Error("invalid photo state transition", "event", name, "state", c.State(), "error", err)
	}
}
