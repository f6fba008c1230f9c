/*
DESCRIPTION
  torch.go provides a GPIO driven flash LED.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package torch drives a flash LED attached to a GPIO pin.
package torch

import (
	"fmt"
	"sync"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi"

	"github.com/ausocean/utils/logging"
)

// Torch is a flash LED on a GPIO pin.
type Torch struct {
	log logging.Logger
	mu  sync.Mutex
	pin embd.DigitalPin
	on  bool
}

// New initialises GPIO and returns a Torch on the given pin, switched off.
func New(l logging.Logger, pin uint) (*Torch, error) {
	err := embd.InitGPIO()
	if err != nil {
		return nil, fmt.Errorf("could not init GPIO: %w", err)
	}
	p, err := embd.NewDigitalPin(int(pin))
	if err != nil {
		embd.CloseGPIO()
		return nil, fmt.Errorf("could not get pin %d: %w", pin, err)
	}
	err = p.SetDirection(embd.Out)
	if err != nil {
		p.Close()
		embd.CloseGPIO()
		return nil, fmt.Errorf("could not set pin %d direction: %w", pin, err)
	}
	t := &Torch{log: l, pin: p}
	return t, t.Set(false)
}

// Set switches the torch on or off.
func (t *Torch) Set(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := embd.Low
	if on {
		v = embd.High
	}
	err := t.pin.Write(v)
	if err != nil {
		return fmt.Errorf("could not write torch pin: %w", err)
	}
	if on != t.on {
		t.log.Debug("torch switched", "on", on)
	}
	t.on = on
	return nil
}

// On reports whether the torch is lit.
func (t *Torch) On() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.on
}

// Close switches the torch off and releases GPIO.
func (t *Torch) Close() error {
	t.Set(false)
	err := t.pin.Close()
	if err != nil {
		return fmt.Errorf("could not close torch pin: %w", err)
	}
	return embd.CloseGPIO()
}
