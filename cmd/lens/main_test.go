/*
DESCRIPTION
  main_test.go provides testing of config file loading, config reloading and
  scheduled capture.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/lens/bus"
	"github.com/ausocean/lens/config"
	"github.com/ausocean/utils/logging"
)

func TestLoadVars(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
		wantErr bool
	}{
		{
			name:    "scalars",
			content: "Position: front\nZoom: 2.5\nShutterAudible: true\nFrameRate: 25\nSchedule: \"@every 1m\"\n",
			want: map[string]string{
				"Position":       "front",
				"Zoom":           "2.5",
				"ShutterAudible": "true",
				"FrameRate":      "25",
				"Schedule":       "@every 1m",
			},
		},
		{
			name:    "nested",
			content: "Filter:\n  kind: mono\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			content: "Position: [front\n",
			wantErr: true,
		},
	}

	for _, test := range tests {
		path := filepath.Join(t.TempDir(), "lens.yaml")
		err := os.WriteFile(path, []byte(test.content), 0644)
		if err != nil {
			t.Fatalf("could not write config: %v", err)
		}
		got, err := loadVars(path)
		if (err != nil) != test.wantErr {
			t.Errorf("unexpected error for %s: %v", test.name, err)
			continue
		}
		if !cmp.Equal(got, test.want) && !test.wantErr {
			t.Errorf("unexpected vars for %s\n%s", test.name, cmp.Diff(test.want, got))
		}
	}
}

func TestLoadVarsUpdatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lens.yaml")
	err := os.WriteFile(path, []byte("Position: front\nZoom: 3\nFilter: sepia\n"), 0644)
	if err != nil {
		t.Fatalf("could not write config: %v", err)
	}
	vars, err := loadVars(path)
	if err != nil {
		t.Fatalf("could not load vars: %v", err)
	}

	c := config.Config{Logger: logging.New(logging.Debug, io.Discard, true)}
	c.Update(vars)
	c.Validate()
	if c.Position != config.PositionFront || c.Zoom != 3 || c.Filter != config.FilterSepia {
		t.Errorf("unexpected config: position %s zoom %v filter %s", c.Position, c.Zoom, c.Filter)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lens.yaml")
	err := os.WriteFile(path, []byte("Zoom: 1\n"), 0644)
	if err != nil {
		t.Fatalf("could not write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan map[string]string, 8)
	errc := make(chan error, 1)
	go func() {
		errc <- watch(ctx, logging.New(logging.Debug, io.Discard, true), path, func(vars map[string]string) { got <- vars })
	}()

	// Rewrite until the watcher, which starts asynchronously, sees a change.
	timeout := time.After(5 * time.Second)
	for {
		err = os.WriteFile(path, []byte("Zoom: 2\n"), 0644)
		if err != nil {
			t.Fatalf("could not rewrite config: %v", err)
		}
		select {
		case vars := <-got:
			if vars["Zoom"] != "2" {
				t.Errorf("unexpected vars: %v", vars)
			}
			cancel()
			if err := <-errc; err != nil {
				t.Errorf("unexpected watch error: %v", err)
			}
			return
		case err := <-errc:
			t.Fatalf("watch returned early: %v", err)
		case <-timeout:
			t.Fatal("timed out waiting for reload")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestScheduler(t *testing.T) {
	b := bus.New(4)
	s := newScheduler(logging.New(logging.Debug, io.Discard, true), b)
	defer s.Stop()

	if err := s.Set("not a schedule"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if err := s.Set("@every 1s"); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	select {
	case c := <-b.Commands():
		if c != (bus.CapturePhoto{Mode: bus.Immediate}) {
			t.Errorf("unexpected command: %#v", c)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no scheduled capture")
	}

	if err := s.Set(""); err != nil {
		t.Errorf("did not expect error clearing schedule: %v", err)
	}
	if len(s.cron.Entries()) != 0 {
		t.Errorf("expected no entries, got %d", len(s.cron.Entries()))
	}
}
