/*
DESCRIPTION
  alsa_linux.go finds an ALSA playback device.

AUTHORS
  Alan Noble <alan@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package audio

import (
	"fmt"

	yalsa "github.com/yobert/alsa"
)

// probePlayback returns the title of the first ALSA PCM playback device.
func probePlayback() (string, error) {
	cards, err := yalsa.OpenCards()
	if err != nil {
		return "", fmt.Errorf("could not open sound cards: %w", err)
	}
	defer yalsa.CloseCards(cards)

	for _, card := range cards {
		devices, err := card.Devices()
		if err != nil {
			continue
		}
		for _, dev := range devices {
			if dev.Type != yalsa.PCM || !dev.Play {
				continue
			}
			return dev.Title, nil
		}
	}
	return "", errNoPlayback
}
