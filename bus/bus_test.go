/*
DESCRIPTION
  bus_test.go provides testing for the Bus and command decoding.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package bus

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/lens/device"
	"github.com/ausocean/lens/filter"
)

func TestSendFull(t *testing.T) {
	b := New(1)
	if err := b.Send(StartRecording{}); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if err := b.Send(StopRecording{}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if c := <-b.Commands(); c != (StartRecording{}) {
		t.Errorf("unexpected command: %v", c)
	}
}

func TestPublish(t *testing.T) {
	b := New(0)
	fast, unsubFast := b.Subscribe(4)
	slow, unsubSlow := b.Subscribe(1)
	defer unsubFast()

	b.Publish(CountdownTick{Remaining: 2})
	b.Publish(CountdownTick{Remaining: 1})

	for _, want := range []int{2, 1} {
		e := <-fast
		if got := e.(CountdownTick).Remaining; got != want {
			t.Errorf("unexpected event: got %d want %d", got, want)
		}
	}
	if e := <-slow; e.(CountdownTick).Remaining != 2 {
		t.Errorf("unexpected event for slow subscriber: %v", e)
	}
	if b.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", b.Dropped())
	}

	unsubSlow()
	unsubSlow()
	if _, ok := <-slow; ok {
		t.Error("expected closed channel after unsubscribe")
	}
	b.Publish(CountdownTick{Remaining: 0}) // Must not panic.
}

func TestDecode(t *testing.T) {
	tests := []struct {
		in      string
		want    Command
		wantErr bool
	}{
		{in: `{"type":"switchCamera"}`, want: SwitchCamera{}},
		{in: `{"type":"switchCamera","position":"front"}`, want: SwitchCamera{Position: device.Front}},
		{in: `{"type":"switchCamera","position":"up"}`, wantErr: true},
		{in: `{"type":"setFlashMode","mode":"auto"}`, want: SetFlashMode{Mode: device.FlashAuto}},
		{in: `{"type":"setZoom","factor":2.5}`, want: SetZoom{Factor: 2.5}},
		{
			in:   `{"type":"setFilter","kind":"brightness","params":{"amount":0.5}}`,
			want: SetFilter{Spec: filter.Spec{Kind: filter.Brightness, Params: map[string]float64{"amount": 0.5}}},
		},
		{in: `{"type":"setResolution","preset":"hd720"}`, want: SetResolution{Preset: "hd720"}},
		{in: `{"type":"capturePhoto"}`, want: CapturePhoto{Mode: Immediate}},
		{in: `{"type":"capturePhoto","mode":"countdown","seconds":3}`, want: CapturePhoto{Mode: Countdown, Seconds: 3}},
		{in: `{"type":"capturePhoto","mode":"panorama"}`, wantErr: true},
		{in: `{"type":"cancelCapture"}`, want: CancelCapture{}},
		{in: `{"type":"startRecording"}`, want: StartRecording{}},
		{in: `{"type":"stopRecording"}`, want: StopRecording{}},
		{in: `{"type":"setShutterAudible","audible":false}`, want: SetShutterAudible{Audible: false}},
		{in: `{"type":"setShutterAudible"}`, wantErr: true},
		{in: `{"type":"selfDestruct"}`, wantErr: true},
		{in: `not json`, wantErr: true},
	}

	for i, test := range tests {
		got, err := Decode([]byte(test.in))
		if test.wantErr {
			if !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("expected ErrInvalidCommand for test %d, got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("did not expect error for test %d: %v", i, err)
			continue
		}
		if !cmp.Equal(got, test.want) {
			t.Errorf("unexpected command for test %d\ngot: %v\nwant: %v", i, got, test.want)
		}
	}
}

func TestEncode(t *testing.T) {
	got, err := Encode(Error{Kind: NoFrameAvailable, Message: "no frame"})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	want := `{"type":"error","data":{"kind":"NoFrameAvailable","message":"no frame"}}`
	if string(got) != want {
		t.Errorf("unexpected encoding\ngot: %s\nwant: %s", got, want)
	}
}
