/*
DESCRIPTION
  engine_test.go provides testing of the Engine command loop using simulated
  cameras, an in-memory store and a mock clock.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package snap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ausocean/lens/audio"
	"github.com/ausocean/lens/bus"
	"github.com/ausocean/lens/config"
	"github.com/ausocean/lens/device"
	"github.com/ausocean/lens/device/sim"
	"github.com/ausocean/lens/filter"
	"github.com/ausocean/lens/photo"
	"github.com/ausocean/lens/record"
	"github.com/ausocean/lens/session"
	"github.com/ausocean/lens/store"
	"github.com/ausocean/utils/logging"
)

const waitTimeout = 2 * time.Second

type memStore struct {
	mu    sync.Mutex
	items []store.Item
}

func (s *memStore) Save(ctx context.Context, it store.Item) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, it)
	return fmt.Sprintf("%s-%d", it.Kind, len(s.items)), nil
}

func (s *memStore) saved() []store.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Item(nil), s.items...)
}

type router struct{ err error }

func (r router) SetRoute(audio.Route) error { return r.err }

type fixture struct {
	e      *Engine
	clk    *clock.Mock
	back   *sim.Camera
	front  *sim.Camera
	st     *memStore
	events <-chan bus.Event
}

func newFixture(t *testing.T, routeErr error, frontLockDelay time.Duration) *fixture {
	l := logging.New(logging.Debug, io.Discard, true)
	f := &fixture{clk: clock.NewMock(), st: &memStore{}}
	f.back = sim.New(l, sim.Options{Position: device.Back, MaxZoom: 5, Clock: f.clk})
	f.front = sim.New(l, sim.Options{Position: device.Front, MaxZoom: 2, Clock: f.clk, LockDelay: frontLockDelay})

	c := config.Config{
		Logger:      l,
		LogLevel:    logging.Debug,
		Input:       config.InputSim,
		Position:    config.PositionBack,
		Resolution:  config.ResolutionLow,
		Flash:       config.FlashOff,
		Zoom:        1,
		Filter:      config.FilterNone,
		LockTimeout: 200 * time.Millisecond,
		TempPath:    t.TempDir(),
		OutputPath:  t.TempDir(),
		JPEGQuality: 80,
	}
	am := audio.NewManager(l, router{routeErr}, nil, nil, audio.Silent, false)
	e, err := New(c, device.NewRegistry(f.back, f.front), f.st, am, f.clk)
	if err != nil {
		t.Fatalf("could not create engine: %v", err)
	}
	f.e = e

	events, unsub := e.Bus().Subscribe(1024)
	f.events = events
	t.Cleanup(unsub)

	err = e.Start(context.Background())
	if err != nil {
		t.Fatalf("could not start engine: %v", err)
	}
	t.Cleanup(e.Stop)
	return f
}

func (f *fixture) send(t *testing.T, c bus.Command) {
	t.Helper()
	err := f.e.Bus().Send(c)
	if err != nil {
		t.Fatalf("could not send %s: %v", c.Name(), err)
	}
}

// frame delivers a frame from the back camera.
func (f *fixture) frame(t *testing.T) {
	t.Helper()
	err := f.back.Deliver(device.Raw{Image: sim.Pattern(352, 288, 1), Timestamp: f.clk.Now()})
	if err != nil {
		t.Fatalf("could not deliver frame: %v", err)
	}
}

// wait returns the next event with the given name, discarding others.
func (f *fixture) wait(t *testing.T, name string) bus.Event {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev := <-f.events:
			if ev.Name() == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", name)
			return nil
		}
	}
}

// waitErr waits for an Error event of the given kind.
func (f *fixture) waitErr(t *testing.T, k bus.Kind) {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev := <-f.events:
			if e, ok := ev.(bus.Error); ok && e.Kind == k {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s error", k)
			return
		}
	}
}

// advance moves the clock on by d until an event with the given name is
// published.
func (f *fixture) advance(t *testing.T, d time.Duration, name string) bus.Event {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		f.clk.Add(d)
		select {
		case ev := <-f.events:
			if ev.Name() == name {
				return ev
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatalf("timed out advancing clock for %s event", name)
	return nil
}

// until polls the engine status until ok returns true.
func (f *fixture) until(t *testing.T, what string, ok func(Status) bool) Status {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		st, err := f.e.Status()
		if err != nil {
			t.Fatalf("could not get status: %v", err)
		}
		if ok(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, status: %+v", what, st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fixture) untilSaved(t *testing.T, n int) []store.Item {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		items := f.st.saved()
		if len(items) >= n {
			return items
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d saves, have %d", n, len(items))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCapturePhoto(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.frame(t)
	f.send(t, bus.CapturePhoto{Mode: bus.Immediate})
	f.wait(t, "photoCaptured")

	items := f.untilSaved(t, 1)
	if items[0].Kind != store.Photo || items[0].Index != -1 || items[0].Image == nil {
		t.Errorf("unexpected item: %+v", items[0])
	}
	f.until(t, "idle", func(st Status) bool { return st.Photo == photo.StateIdle })
}

func TestCaptureNoFrame(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.send(t, bus.CapturePhoto{Mode: bus.Immediate})
	f.waitErr(t, bus.NoFrameAvailable)
	if len(f.st.saved()) != 0 {
		t.Error("expected nothing saved")
	}
}

func TestAudioRoutingFailure(t *testing.T) {
	f := newFixture(t, errors.New("no route"), 0)
	f.frame(t)
	f.send(t, bus.CapturePhoto{Mode: bus.Immediate})
	f.waitErr(t, bus.AudioRoutingFailure)
	f.untilSaved(t, 1)
}

func TestCountdown(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.frame(t)
	f.send(t, bus.CapturePhoto{Mode: bus.Countdown, Seconds: 3})
	f.until(t, "countdown", func(st Status) bool { return st.Photo == photo.StateCountdown })

	for want := 2; want >= 0; want-- {
		f.clk.Add(time.Second)
		ev := f.wait(t, "countdownTick").(bus.CountdownTick)
		if ev.Remaining != want {
			t.Errorf("expected %d remaining, got %d", want, ev.Remaining)
		}
	}
	f.wait(t, "photoCaptured")
	f.untilSaved(t, 1)
}

func TestBurst(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.frame(t)
	f.send(t, bus.CapturePhoto{Mode: bus.Burst})
	ev := f.wait(t, "burstPhotoCaptured").(bus.BurstPhotoCaptured)
	if ev.Index != 0 {
		t.Errorf("expected first index 0, got %d", ev.Index)
	}
	for i := 1; i < photo.BurstMax; i++ {
		ev := f.advance(t, photo.BurstInterval, "burstPhotoCaptured").(bus.BurstPhotoCaptured)
		if ev.Index != i {
			t.Errorf("expected index %d, got %d", i, ev.Index)
		}
	}
	fin := f.wait(t, "burstFinished").(bus.BurstFinished)
	if fin.Count != photo.BurstMax || fin.Cancelled {
		t.Errorf("unexpected burst result: %+v", fin)
	}

	items := f.untilSaved(t, photo.BurstMax)
	for i, it := range items {
		if it.Index != i {
			t.Errorf("item %d has index %d", i, it.Index)
		}
	}
}

func TestRecording(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.frame(t)
	f.send(t, bus.StartRecording{})
	f.until(t, "recording", func(st Status) bool { return st.Recording.Status == record.StateRecording })

	f.send(t, bus.CapturePhoto{Mode: bus.Immediate})
	f.waitErr(t, bus.AlreadyRecording)
	f.send(t, bus.StartRecording{})
	f.waitErr(t, bus.AlreadyRecording)

	f.frame(t)
	f.clk.Add(time.Second)
	tick := f.wait(t, "recordingTick").(bus.RecordingTick)
	if tick.Elapsed != 1 {
		t.Errorf("expected 1s elapsed, got %d", tick.Elapsed)
	}

	f.send(t, bus.StopRecording{})
	fin := f.wait(t, "recordingFinished").(bus.RecordingFinished)
	if fin.Elapsed != 1 || fin.Path == "" {
		t.Errorf("unexpected recording result: %+v", fin)
	}
	items := f.untilSaved(t, 1)
	if items[0].Kind != store.Video || items[0].Path != fin.Path {
		t.Errorf("unexpected item: %+v", items[0])
	}

	// Stopping while idle does nothing.
	f.send(t, bus.StopRecording{})
	st := f.until(t, "idle", func(st Status) bool { return st.Recording.Status == record.StateIdle })
	if st.Recording.Elapsed != 1 {
		t.Errorf("expected last elapsed 1, got %d", st.Recording.Elapsed)
	}
}

func TestRecordingAutoStop(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.send(t, bus.StartRecording{})
	f.until(t, "recording", func(st Status) bool { return st.Recording.Status == record.StateRecording })

	f.clk.Add(record.MaxSeconds * time.Second)
	fin := f.wait(t, "recordingFinished").(bus.RecordingFinished)
	if fin.Elapsed != record.MaxSeconds {
		t.Errorf("expected %d elapsed, got %d", record.MaxSeconds, fin.Elapsed)
	}
}

func TestCaptureBlocksRecording(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.frame(t)
	f.send(t, bus.CapturePhoto{Mode: bus.Countdown, Seconds: 5})
	f.until(t, "countdown", func(st Status) bool { return st.Photo == photo.StateCountdown })

	f.send(t, bus.StartRecording{})
	f.waitErr(t, bus.AlreadyCapturing)
	f.send(t, bus.CapturePhoto{Mode: bus.Immediate})
	f.waitErr(t, bus.AlreadyCapturing)

	f.send(t, bus.CancelCapture{})
	f.until(t, "idle", func(st Status) bool { return st.Photo == photo.StateIdle })
	if len(f.st.saved()) != 0 {
		t.Error("expected nothing saved after cancel")
	}
}

func TestSwitchCamera(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.send(t, bus.SetZoom{Factor: 4})
	f.until(t, "zoom", func(st Status) bool { return st.Zoom == 4 })

	f.send(t, bus.SwitchCamera{})
	ev := f.wait(t, "cameraSwitched").(bus.CameraSwitched)
	if ev.Position != device.Front {
		t.Errorf("expected front, got %s", ev.Position)
	}
	st := f.until(t, "front", func(st Status) bool { return st.Running && st.Device.Position == device.Front })
	if st.Zoom != 2 {
		t.Errorf("expected zoom clamped to 2, got %v", st.Zoom)
	}
	if f.e.Config().Position != config.PositionFront {
		t.Errorf("expected config position front, got %s", f.e.Config().Position)
	}
}

func TestConcurrentSwitch(t *testing.T) {
	f := newFixture(t, nil, time.Hour)
	f.send(t, bus.SwitchCamera{Position: device.Front})

	// The front camera holds its lock until the lock timeout expires.
	deadline := time.Now().Add(waitTimeout)
	for !f.e.sess.Switching() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for switch to begin")
		}
		time.Sleep(time.Millisecond)
	}
	f.send(t, bus.SwitchCamera{Position: device.Back})
	f.waitErr(t, bus.SwitchInProgress)
	f.wait(t, "cameraSwitched")
}

func TestSwitchQueuedBackToBack(t *testing.T) {
	f := newFixture(t, nil, time.Hour)

	// Both commands are queued before the loop handles either.
	f.send(t, bus.SwitchCamera{Position: device.Front})
	f.send(t, bus.SwitchCamera{Position: device.Back})

	f.waitErr(t, bus.SwitchInProgress)
	ev := f.wait(t, "cameraSwitched").(bus.CameraSwitched)
	if ev.Position != device.Front {
		t.Errorf("expected switch to front, got %s", ev.Position)
	}
	st := f.until(t, "front", func(st Status) bool { return !st.Switching && st.Running })
	if st.Device.Position != device.Front {
		t.Errorf("expected front camera active, got %s", st.Device.Position)
	}
}

func TestZoomClamp(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.send(t, bus.SetZoom{Factor: 9})
	f.until(t, "zoom", func(st Status) bool { return st.Zoom == 5 })
	if f.back.Zoom() != 5 {
		t.Errorf("expected device zoom 5, got %v", f.back.Zoom())
	}
}

func TestInvalidCommands(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.send(t, bus.SetResolution{Preset: "8k"})
	f.waitErr(t, bus.InvalidCommand)
	f.send(t, bus.SetFilter{Spec: filter.Spec{Kind: "warp"}})
	f.waitErr(t, bus.InvalidCommand)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, nil, 0)
	err := f.e.Update(map[string]string{
		config.KeyFilter:         config.FilterMono,
		config.KeyZoom:           "2",
		config.KeyShutterAudible: "true",
		config.KeyResolution:     config.ResolutionMedium,
	})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	f.until(t, "update", func(st Status) bool {
		return st.Filter.Kind == filter.Mono && st.Zoom == 2 && st.Shutter == "audible" && st.Resolution == config.ResolutionMedium
	})
	if f.back.Resolution().Name != config.ResolutionMedium {
		t.Errorf("expected device resolution %s, got %s", config.ResolutionMedium, f.back.Resolution().Name)
	}
}

func TestStopDrains(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.frame(t)
	f.send(t, bus.CapturePhoto{Mode: bus.Immediate})
	f.wait(t, "photoCaptured")
	f.e.Stop()

	if n := len(f.st.saved()); n != 1 {
		t.Errorf("expected 1 save after stop, got %d", n)
	}
	if _, err := f.e.Status(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want bus.Kind
	}{
		{fmt.Errorf("select: %w", device.ErrUnavailable), bus.DeviceUnavailable},
		{session.ErrSwitchInProgress, bus.SwitchInProgress},
		{fmt.Errorf("%w: lock", session.ErrConfiguration), bus.ConfigurationError},
		{record.ErrAlreadyRecording, bus.AlreadyRecording},
		{photo.ErrBusy, bus.AlreadyCapturing},
		{photo.ErrNoFrame, bus.NoFrameAvailable},
		{fmt.Errorf("%w: route", audio.ErrRouting), bus.AudioRoutingFailure},
		{fmt.Errorf("save: %w", store.ErrNoSpace), bus.PersistenceFailure},
		{errors.New("other"), bus.ConfigurationError},
	}
	for i, test := range tests {
		got := kindOf(test.err, bus.ConfigurationError)
		if got != test.want {
			t.Errorf("did not get expected result for test %d\ngot: %s\nwant: %s", i, got, test.want)
		}
	}
}
