/*
DESCRIPTION
  bus.go provides Bus, which carries commands from control surfaces to the
  engine and fans events out to subscribers.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bus provides the typed commands and events exchanged between
// control surfaces and the capture engine, and the Bus that carries them.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Defaults.
const (
	defaultCommandQueue    = 32
	defaultSubscriberQueue = 64
)

// ErrQueueFull is returned by Send when the command queue is full.
var ErrQueueFull = errors.New("command queue full")

// Bus carries commands to a single consumer and distributes events to any
// number of subscribers. Neither Send nor Publish blocks.
type Bus struct {
	cmds chan Command

	mu   sync.RWMutex
	subs map[chan Event]struct{}

	dropped atomic.Uint64
}

// New returns a new Bus whose command queue holds n commands.
func New(n int) *Bus {
	if n <= 0 {
		n = defaultCommandQueue
	}
	return &Bus{
		cmds: make(chan Command, n),
		subs: make(map[chan Event]struct{}),
	}
}

// Send queues c for the consumer. If the queue is full ErrQueueFull is
// returned and c is discarded.
func (b *Bus) Send(c Command) error {
	select {
	case b.cmds <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Commands returns the channel the consumer receives commands on.
func (b *Bus) Commands() <-chan Command { return b.cmds }

// Subscribe returns a channel that receives published events and a cleanup
// function. The caller must call the returned cleanup when done. Events are
// dropped for a subscriber whose channel, buffered to hold n events, is full.
func (b *Bus) Subscribe(n int) (<-chan Event, func()) {
	if n <= 0 {
		n = defaultSubscriberQueue
	}
	ch := make(chan Event, n)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish sends e to every subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events not delivered to full subscribers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
