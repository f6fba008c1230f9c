//go:build !linux
// +build !linux

/*
DESCRIPTION
  alsa_other.go replaces the ALSA playback probe on platforms without ALSA.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package audio

// probePlayback assumes the platform default output is available.
func probePlayback() (string, error) { return "default", nil }
