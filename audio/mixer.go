/*
DESCRIPTION
  mixer.go provides Mixer, a Router that checks a playback device is present
  before routing sound to it.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package audio

import (
	"errors"
	"sync"

	"github.com/ausocean/utils/logging"
)

var errNoPlayback = errors.New("no playback device")

// Mixer is a Router for the host's sound system.
type Mixer struct {
	log   logging.Logger
	probe func() (string, error)

	mu    sync.Mutex
	route Route
	title string
}

// NewMixer returns a Mixer on the default route.
func NewMixer(l logging.Logger) *Mixer {
	return &Mixer{log: l, probe: probePlayback}
}

// SetRoute implements Router. The play and record route requires a playback
// device; on failure the route is left unchanged.
func (m *Mixer) SetRoute(r Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == m.route {
		return nil
	}
	if r == RoutePlayAndRecord {
		title, err := m.probe()
		if err != nil {
			return err
		}
		m.title = title
	}
	m.route = r
	m.log.Debug("audio route changed", "route", r, "device", m.title)
	return nil
}

// Route returns the current route.
func (m *Mixer) Route() Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.route
}
