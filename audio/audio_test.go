/*
DESCRIPTION
  audio_test.go provides testing for the shutter policy Manager, Mixer and
  sounds.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package audio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/utils/logging"
)

type router struct {
	routes []Route
	err    error
}

func (r *router) SetRoute(rt Route) error {
	if r.err != nil {
		return r.err
	}
	r.routes = append(r.routes, rt)
	return nil
}

type player struct {
	plays int
	err   error
}

func (p *player) Play(*Sound) error { p.plays++; return p.err }

func TestPrepare(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		forced    bool
		routeErr  error
		playErr   error
		wantRoute []Route
		wantPlays int
		wantErr   bool
	}{
		{name: "audible", policy: Audible, wantRoute: []Route{RoutePlayAndRecord}, wantPlays: 1},
		{name: "silent", policy: Silent, wantRoute: []Route{RouteAmbient}},
		{name: "forced", policy: Silent, forced: true, wantRoute: []Route{RoutePlayAndRecord}, wantPlays: 1},
		{name: "route failure", policy: Audible, routeErr: errors.New("busy"), wantErr: true},
		{name: "play failure", policy: Audible, playErr: errors.New("no sink"), wantRoute: []Route{RoutePlayAndRecord}, wantPlays: 1, wantErr: true},
	}

	for _, test := range tests {
		r := &router{err: test.routeErr}
		p := &player{err: test.playErr}
		m := NewManager((*logging.TestLogger)(t), r, p, Click(), test.policy, test.forced)
		err := m.Prepare()
		if test.wantErr != (err != nil) {
			t.Errorf("%s: unexpected error: %v", test.name, err)
		}
		if err != nil && !errors.Is(err, ErrRouting) {
			t.Errorf("%s: error does not wrap ErrRouting: %v", test.name, err)
		}
		if !cmp.Equal(r.routes, test.wantRoute) {
			t.Errorf("%s: unexpected routes: got %v want %v", test.name, r.routes, test.wantRoute)
		}
		if p.plays != test.wantPlays {
			t.Errorf("%s: unexpected plays: got %d want %d", test.name, p.plays, test.wantPlays)
		}
	}
}

func TestSetPolicy(t *testing.T) {
	r := &router{}
	p := &player{}
	m := NewManager((*logging.TestLogger)(t), r, p, Click(), Audible, false)
	m.SetPolicy(Silent)
	m.Prepare()
	if p.plays != 0 || m.Policy() != Silent {
		t.Errorf("silent policy played shutter")
	}
}

func TestMixer(t *testing.T) {
	m := NewMixer((*logging.TestLogger)(t))
	m.probe = func() (string, error) { return "", errNoPlayback }

	if err := m.SetRoute(RoutePlayAndRecord); !errors.Is(err, errNoPlayback) {
		t.Errorf("expected errNoPlayback, got %v", err)
	}
	if m.Route() != RouteDefault {
		t.Errorf("route changed after failure: %v", m.Route())
	}

	m.probe = func() (string, error) { return "bcm2835", nil }
	if err := m.SetRoute(RoutePlayAndRecord); err != nil {
		t.Errorf("did not expect error: %v", err)
	}
	if err := m.SetRoute(RouteAmbient); err != nil || m.Route() != RouteAmbient {
		t.Errorf("could not set ambient route: %v", err)
	}
}

func TestClickWAV(t *testing.T) {
	c := Click()
	if c.Duration() < 0.029 || c.Duration() > 0.031 {
		t.Errorf("unexpected click duration: %v", c.Duration())
	}

	b, err := c.WAV()
	if err != nil {
		t.Fatalf("could not encode WAV: %v", err)
	}
	got, err := DecodeWAV(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("could not decode WAV: %v", err)
	}
	if !cmp.Equal(got, c) {
		t.Error("decoded click differs from original")
	}

	path := filepath.Join(t.TempDir(), "click.wav")
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil || len(loaded.Data) != len(c.Data) {
		t.Errorf("could not load click from file: %v", err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "click.mp3")); err == nil {
		t.Error("expected error for unsupported file")
	}
}

func TestPCM16LE(t *testing.T) {
	tests := []struct {
		s    Sound
		want []byte
	}{
		{s: Sound{Data: []int{1, -1}, BitDepth: 16}, want: []byte{0x01, 0x00, 0xff, 0xff}},
		{s: Sound{Data: []int{0x1234 << 8}, BitDepth: 24}, want: []byte{0x34, 0x12}},
		{s: Sound{Data: []int{0x12}, BitDepth: 8}, want: []byte{0x00, 0x12}},
	}
	for i, test := range tests {
		if got := test.s.PCM16LE(); !bytes.Equal(got, test.want) {
			t.Errorf("test %d: got %#v want %#v", i, got, test.want)
		}
	}
}
