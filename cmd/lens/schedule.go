/*
DESCRIPTION
  schedule.go provides scheduled photo capture using cron specs, and burst
  capture for the netsender Burst mode.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ausocean/lens/bus"
	"github.com/ausocean/lens/snap"
	"github.com/ausocean/utils/logging"
)

// Burst timeouts.
const (
	firstFrameWait = 5 * time.Second
	burstWait      = 10 * time.Second
)

// scheduler sends an immediate photo capture command on a cron schedule.
type scheduler struct {
	log  logging.Logger
	bus  *bus.Bus
	cron *cron.Cron

	mu   sync.Mutex
	spec string
	id   cron.EntryID
}

func newScheduler(l logging.Logger, b *bus.Bus) *scheduler {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Start()
	return &scheduler{log: l, bus: b, cron: c}
}

// Set replaces the schedule. An empty spec disables scheduled capture.
func (s *scheduler) Set(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.spec {
		return nil
	}
	if s.id != 0 {
		s.cron.Remove(s.id)
		s.id = 0
	}
	s.spec = spec
	if spec == "" {
		s.log.Info("capture schedule cleared")
		return nil
	}
	id, err := s.cron.AddFunc(spec, s.capture)
	if err != nil {
		s.spec = ""
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.id = id
	s.log.Info("capture schedule set", "schedule", spec)
	return nil
}

func (s *scheduler) capture() {
	s.log.Debug("scheduled capture")
	err := s.bus.Send(bus.CapturePhoto{Mode: bus.Immediate})
	if err != nil {
		s.log.Warning("could not send scheduled capture", "error", err)
	}
}

// Stop stops the scheduler, waiting for a running capture to be sent.
func (s *scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// burst captures a burst, starting the engine for the duration if it is not
// running.
func burst(ctx context.Context, eng *snap.Engine) error {
	if !eng.Running() {
		err := eng.Start(ctx)
		if err != nil {
			return fmt.Errorf("could not start engine: %w", err)
		}
		defer eng.Stop()
	}

	deadline := time.Now().Add(firstFrameWait)
	for {
		if _, ok := eng.Latest(); ok {
			break
		}
		if time.Now().After(deadline) {
			return errors.New("no frame before burst")
		}
		time.Sleep(50 * time.Millisecond)
	}

	events, unsub := eng.Bus().Subscribe(0)
	defer unsub()
	err := eng.Bus().Send(bus.CapturePhoto{Mode: bus.Burst})
	if err != nil {
		return err
	}

	timeout := time.After(burstWait)
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case bus.BurstFinished:
				return nil
			case bus.Error:
				if ev.Kind != bus.PersistenceFailure {
					return fmt.Errorf("burst failed: %s: %s", ev.Kind, ev.Message)
				}
			}
		case <-timeout:
			return errors.New("burst timed out")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
