/*
DESCRIPTION
  cell_test.go tests the latest frame cell.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package frame

import (
	"sync"
	"testing"
)

func TestCell(t *testing.T) {
	var c Cell
	if _, ok := c.Load(); ok {
		t.Fatal("expected empty cell")
	}

	if c.Store(Frame{Seq: 1}) {
		t.Error("first store should not drop")
	}
	if !c.Store(Frame{Seq: 2}) {
		t.Error("overwrite of unread frame should drop")
	}
	f, ok := c.Load()
	if !ok || f.Seq != 2 {
		t.Fatalf("unexpected frame: %v %v", f.Seq, ok)
	}
	if c.Store(Frame{Seq: 3}) {
		t.Error("overwrite of read frame should not drop")
	}

	stored, dropped := c.Stats()
	if stored != 3 || dropped != 1 {
		t.Errorf("unexpected stats: stored %d dropped %d", stored, dropped)
	}

	c.Reset()
	if _, ok := c.Load(); ok {
		t.Error("expected empty cell after reset")
	}
}

func TestCellConcurrent(t *testing.T) {
	var c Cell
	const n = 1000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= n; i++ {
			c.Store(Frame{Seq: i})
		}
	}()
	go func() {
		defer wg.Done()
		var last uint64
		for i := 0; i < n; i++ {
			f, ok := c.Load()
			if !ok {
				continue
			}
			if f.Seq < last {
				t.Errorf("sequence went backwards: %d after %d", f.Seq, last)
				return
			}
			last = f.Seq
		}
	}()
	wg.Wait()

	f, _ := c.Load()
	if f.Seq != n {
		t.Errorf("expected last frame %d, got %d", n, f.Seq)
	}
}
