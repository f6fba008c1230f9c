/*
DESCRIPTION
  registry.go provides Registry, the set of cameras available to a capture
  session.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package device

import (
	"fmt"
	"sync"
)

// Registry holds the cameras known to the process. It is safe for concurrent
// use.
type Registry struct {
	mu   sync.RWMutex
	cams []Camera
}

// NewRegistry returns a Registry holding cams. The first camera registered
// for a position is the one selected for it.
func NewRegistry(cams ...Camera) *Registry {
	return &Registry{cams: cams}
}

// Add registers c.
func (r *Registry) Add(c Camera) {
	r.mu.Lock()
	r.cams = append(r.cams, c)
	r.mu.Unlock()
}

// Select returns the camera facing pos, or an error wrapping ErrUnavailable.
func (r *Registry) Select(pos Position) (Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cams {
		if c.Info().Position == pos {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no %s camera: %w", pos, ErrUnavailable)
}

// Devices lists the registered cameras.
func (r *Registry) Devices() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.cams))
	for _, c := range r.cams {
		infos = append(infos, c.Info())
	}
	return infos
}
