/*
DESCRIPTION
  record.go provides Controller, the state machine for bounded duration video
  recording.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package record provides the video recording state machine.
package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/looplab/fsm"

	"github.com/ausocean/lens/bus"
	"github.com/ausocean/utils/logging"
)

// Controller states.
const (
	StateIdle      = "idle"
	StateRecording = "recording"
)

// State machine events.
const (
	evStart = "start"
	evStop  = "stop"
)

// Recording timing.
const (
	TickInterval = time.Second
	MaxSeconds   = 7200
)

// ErrAlreadyRecording is returned by Start if a recording is in progress.
var ErrAlreadyRecording = errors.New("already recording")

// Output is a video file being written.
type Output interface {
	Path() string
	Close() error
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

// State describes the recording.
type State struct {
	Status  string `json:"status"`
	Elapsed int    `json:"elapsed"`
	Path    string `json:"path,omitempty"`
}

// Controller drives recording. Apart from Status, its methods must be called
// from a single goroutine, which must also call Tick whenever the channel
// returned by Timer delivers.
type Controller struct {
	log  logging.Logger
	clk  clock.Clock
	open func() (Output, error)
	work Worker
	save func(path string) error
	pub  Publisher
	fsm  *fsm.FSM

	ticker  *clock.Ticker
	out     Output
	start   time.Time
	elapsed int
	path    string
}

// New returns a new idle Controller. open creates the output for a new
// recording and save persists a finished recording; save is run by w.
func New(l logging.Logger, clk clock.Clock, open func() (Output, error), w Worker, save func(string) error, pub Publisher) *Controller {
	c := &Controller{log: l, clk: clk, open: open, work: w, save: save, pub: pub}
	c.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evStart, Src: []string{StateIdle}, Dst: StateRecording},
			{Name: evStop, Src: []string{StateRecording}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				l.Debug("recording state changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
	return c
}

// Status returns the current state name. It is safe to call from any
// goroutine.
func (c *Controller) Status() string { return c.fsm.Current() }

// Recording reports whether a recording is in progress.
func (c *Controller) Recording() bool { return c.fsm.Is(StateRecording) }

// State returns the state of the current or most recent recording.
func (c *Controller) State() State {
	return State{Status: c.Status(), Elapsed: c.elapsed, Path: c.path}
}

// Timer returns the channel of the recording ticker, or nil when idle.
func (c *Controller) Timer() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C
}

// Start opens a new output and starts recording.
func (c *Controller) Start() error {
	if !c.fsm.Is(StateIdle) {
		return ErrAlreadyRecording
	}
	out, err := c.open()
	if err != nil {
		return fmt.Errorf("could not open video output: %w", err)
	}
	c.out = out
	c.path = out.Path()
	c.start = c.clk.Now()
	c.elapsed = 0
	c.ticker = c.clk.Ticker(TickInterval)
	c.event(evStart)
	c.log.Info("recording started", "path", c.path)
	return nil
}

// Tick updates the elapsed time from the clock, stopping the recording once
// MaxSeconds is reached. Missed ticks do not affect the elapsed time.
func (c *Controller) Tick() {
	if !c.Recording() {
		return
	}
	c.elapsed = min(int(c.clk.Now().Sub(c.start)/time.Second), MaxSeconds)
	c.pub.Publish(bus.RecordingTick{Elapsed: c.elapsed})
	if c.elapsed >= MaxSeconds {
		c.log.Info("maximum recording duration reached")
		c.Stop()
	}
}

// Stop ends the recording. The output is finalized by the worker, after
// which RecordingFinished is published and the file handed to save. Stop
// does nothing if not recording.
func (c *Controller) Stop() {
	if !c.Recording() {
		return
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.elapsed = min(int(c.clk.Now().Sub(c.start)/time.Second), MaxSeconds)
	out, elapsed := c.out, c.elapsed
	c.out = nil
	c.event(evStop)
	c.log.Info("recording stopped", "path", out.Path(), "elapsed", elapsed)

	err := c.work.Do(out.Close, func(err error) { c.finalized(out.Path(), elapsed, err) })
	if err != nil {
		// Worker saturated; finalize synchronously.
		c.finalized(out.Path(), elapsed, out.Close())
	}
}

func (c *Controller) finalized(path string, elapsed int, err error) {
	if err != nil {
		c.log.Error("could not finalize recording", "path", path, "error", err)
		c.pub.Publish(bus.Error{Kind: bus.PersistenceFailure, Message: fmt.Sprintf("could not finalize recording %s: %v", path, err)})
		return
	}
	c.pub.Publish(bus.RecordingFinished{Path: path, Elapsed: elapsed})

	err = c.work.Do(func() error { return c.save(path) }, func(err error) { c.saved(path, err) })
	if err != nil {
		// Worker saturated; save synchronously so the file is not left behind.
		c.log.Warning("could not queue recording save, saving now", "path", path, "error", err)
		c.saved(path, c.save(path))
	}
}

func (c *Controller) saved(path string, err error) {
	if err != nil {
		c.log.Error("could not save recording", "path", path, "error", err)
		c.pub.Publish(bus.Error{Kind: bus.PersistenceFailure, Message: fmt.Sprintf("could not save recording %s: %v", path, err)})
	}
}

func (c *Controller) event(name string) {
	err := c.fsm.Event(context.Background(), name)
	if err != nil {
		c.log.Error("invalid recording state transition", "event", name, "state", c.Status(), "error", err)
	}
}
