/*
DESCRIPTION
  webcam_test.go tests the webcam Camera.

AUTHORS
  Scott Barnard <scott@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package webcam

import (
	"bytes"
	"image"
	"os/exec"
	"reflect"
	"testing"
	"time"

	"github.com/ausocean/lens/config"
	"github.com/ausocean/lens/device"
	"github.com/ausocean/utils/logging"
)

type fakeTorch struct{ on []bool }

func (f *fakeTorch) Set(on bool) error { f.on = append(f.on, on); return nil }

func TestFlash(t *testing.T) {
	ft := &fakeTorch{}
	w := New((*logging.TestLogger)(t), device.Info{Position: device.Back}, "/dev/null", ft)
	w.SetFlash(device.FlashOn)
	w.SetFlash(device.FlashOff)

	w.SetFlash(device.FlashAuto)
	w.autoFlash(image.NewRGBA(image.Rect(0, 0, 4, 4))) // Black, so lit.

	want := []bool{true, false, true}
	if !reflect.DeepEqual(ft.on, want) {
		t.Errorf("unexpected torch states: got %v want %v", ft.on, want)
	}
}

func TestIsRunning(t *testing.T) {
	const dur = 250 * time.Millisecond

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}

	l := logging.New(logging.Debug, &bytes.Buffer{}, true) // Discard logs.
	d := New(l, device.Info{Position: device.Back}, "/dev/video0", nil)

	err := d.Set(config.Config{FrameRate: 25, Resolution: config.ResolutionLow, Flash: config.FlashOff, Zoom: 1})
	if err != nil {
		t.Fatalf("could not set device: %v", err)
	}

	err = d.Open()
	if err != nil {
		t.Skipf("no webcam: %v", err)
	}

	err = d.Start(func(device.Raw) {})
	if err != nil {
		t.Fatalf("could not start device %v", err)
	}

	time.Sleep(dur)

	if !d.IsRunning() {
		t.Error("device isn't running, when it should be")
	}

	err = d.Stop()
	if err != nil {
		t.Error(err.Error())
	}

	if d.IsRunning() {
		t.Error("device is running, when it should not be")
	}
}
