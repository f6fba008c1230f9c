/*
DESCRIPTION
  shutter.go provides playback of the shutter sound through oto, falling back
  to aplay when no oto context can be created.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"bytes"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ausocean/lens/audio"
	"github.com/ausocean/utils/logging"
)

const (
	audioCmd     = "aplay"
	playPollTime = 5 * time.Millisecond
)

// newPlayer returns a Player for sounds of the same format as s. Only one
// oto context may exist per process, so it is created here for the format of
// s.
func newPlayer(l logging.Logger, s *audio.Sound) audio.Player {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   s.SampleRate,
		ChannelCount: s.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		l.Warning(pkg+"could not create audio context, using "+audioCmd, "error", err)
		return &cmdPlayer{log: l}
	}
	<-ready
	return &otoPlayer{log: l, ctx: ctx, rate: s.SampleRate, channels: s.Channels}
}

// otoPlayer plays sounds through an oto context.
type otoPlayer struct {
	log      logging.Logger
	ctx      *oto.Context
	rate     int
	channels int
	mu       sync.Mutex
}

// Play implements audio.Player.
func (p *otoPlayer) Play(s *audio.Sound) error {
	if s.SampleRate != p.rate || s.Channels != p.channels {
		return fmt.Errorf("sound format %dHz/%dch does not match output %dHz/%dch", s.SampleRate, s.Channels, p.rate, p.channels)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pl := p.ctx.NewPlayer(bytes.NewReader(s.PCM16LE()))
	pl.Play()
	for pl.IsPlaying() {
		time.Sleep(playPollTime)
	}
	return pl.Close()
}

// cmdPlayer plays sounds by piping WAV data to aplay.
type cmdPlayer struct {
	log logging.Logger
	mu  sync.Mutex
}

// Play implements audio.Player.
func (p *cmdPlayer) Play(s *audio.Sound) error {
	b, err := s.WAV()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.Command(audioCmd, "-q", "-")
	cmd.Stdin = bytes.NewReader(b)
	out, err := cmd.CombinedOutput()
	if err != nil {
		p.log.Debug("playback output", "output", string(out))
		return fmt.Errorf("%s failed: %w", audioCmd, err)
	}
	return nil
}
