/*
DESCRIPTION
  audio.go provides Manager, which applies the audible or silent shutter
  policy before each photo is saved.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package audio provides the shutter sound policy, audio routing and shutter
// sounds.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ausocean/utils/logging"
)

// Policy selects whether the shutter is heard.
type Policy uint8

const (
	Silent Policy = iota
	Audible
)

func (p Policy) String() string {
	if p == Audible {
		return "audible"
	}
	return "silent"
}

// Route is an audio output routing.
type Route uint8

const (
	RouteDefault Route = iota
	RoutePlayAndRecord
	RouteAmbient
)

func (r Route) String() string {
	switch r {
	case RoutePlayAndRecord:
		return "playAndRecord"
	case RouteAmbient:
		return "ambient"
	}
	return "default"
}

// ErrRouting is wrapped by errors returned from Prepare.
var ErrRouting = errors.New("audio routing failed")

// Router selects the audio route.
type Router interface {
	SetRoute(Route) error
}

// Player plays a sound to completion or returns an error.
type Player interface {
	Play(*Sound) error
}

// Manager applies the shutter policy. It is safe for concurrent use.
type Manager struct {
	log    logging.Logger
	router Router
	player Player
	sound  *Sound
	forced bool

	mu     sync.Mutex
	policy Policy
}

// NewManager returns a Manager with the given policy. player and sound may be
// nil, in which case the shutter is never played. If forced is true the
// shutter is always audible whatever the policy.
func NewManager(l logging.Logger, r Router, p Player, s *Sound, policy Policy, forced bool) *Manager {
	return &Manager{log: l, router: r, player: p, sound: s, policy: policy, forced: forced}
}

// SetPolicy sets the policy applied by subsequent calls to Prepare.
func (m *Manager) SetPolicy(p Policy) {
	m.mu.Lock()
	m.policy = p
	m.mu.Unlock()
	m.log.Info("shutter policy set", "policy", p)
}

// Policy returns the policy set, which may differ from the effective policy
// if the shutter is forced.
func (m *Manager) Policy() Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// Forced reports whether the shutter is always audible.
func (m *Manager) Forced() bool { return m.forced }

// Prepare applies the effective policy: the audible policy selects the play
// and record route and plays the shutter sound, the silent policy selects the
// ambient route. Errors wrap ErrRouting; the caller should proceed with the
// save regardless, on the platform default route.
func (m *Manager) Prepare() error {
	p := m.Policy()
	if m.forced {
		p = Audible
	}

	route := RouteAmbient
	if p == Audible {
		route = RoutePlayAndRecord
	}

	err := m.router.SetRoute(route)
	if err != nil {
		m.log.Warning("could not set audio route, using default", "route", route, "error", err)
		return fmt.Errorf("%w: route %s: %v", ErrRouting, route, err)
	}

	if p == Silent || m.player == nil || m.sound == nil {
		return nil
	}
	err = m.player.Play(m.sound)
	if err != nil {
		m.log.Warning("could not play shutter sound", "error", err)
		return fmt.Errorf("%w: shutter sound: %v", ErrRouting, err)
	}
	return nil
}
