/*
DESCRIPTION
  video.go provides VideoOutput, an MJPEG file fed with processed frames
  while a recording is in progress.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package session

import (
	"bufio"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	perrors "github.com/pkg/errors"

	"github.com/ausocean/lens/frame"
	"github.com/ausocean/utils/logging"
)

// videoQueueLen is the number of frames that may wait to be encoded before
// new frames are dropped.
const videoQueueLen = 8

// ErrOutputOpen is returned by OpenVideoOutput if an output is already
// attached.
var ErrOutputOpen = errors.New("video output already open")

// VideoOutput is a temporary MJPEG file receiving every frame delivered while
// it is attached. Frames are encoded on a separate goroutine; if encoding
// falls behind, frames are dropped.
type VideoOutput struct {
	log     logging.Logger
	path    string
	file    *os.File
	quality int
	detach  func(*VideoOutput)

	mu     sync.Mutex // Protects frames and closed.
	frames chan frame.Frame
	closed bool

	once    sync.Once
	done    chan struct{}
	written atomic.Uint64
	dropped atomic.Uint64
	err     error // Set by the encoder before done is closed, then by close.
}

// OpenVideoOutput creates a uniquely named temporary file and attaches it to
// the session so that subsequent frames are written to it.
func (s *Session) OpenVideoOutput() (*VideoOutput, error) {
	path := filepath.Join(s.opts.TempDir, "lens-"+uuid.NewString()+".mjpeg")
	f, err := os.Create(path)
	if err != nil {
		return nil, perrors.Wrap(err, "could not create video output")
	}

	v := &VideoOutput{
		log:     s.log,
		path:    path,
		file:    f,
		quality: s.opts.JPEGQuality,
		detach:  func(v *VideoOutput) { s.video.CompareAndSwap(v, nil) },
		frames:  make(chan frame.Frame, videoQueueLen),
		done:    make(chan struct{}),
	}
	if !s.video.CompareAndSwap(nil, v) {
		f.Close()
		os.Remove(path)
		return nil, ErrOutputOpen
	}
	go v.encode()
	s.log.Info("video output opened", "path", path)
	return v, nil
}

// push queues f for encoding, dropping it if the queue is full.
func (v *VideoOutput) push(f frame.Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	select {
	case v.frames <- f:
	default:
		v.dropped.Add(1)
	}
}

func (v *VideoOutput) encode() {
	defer close(v.done)
	w := bufio.NewWriter(v.file)
	for f := range v.frames {
		if v.err != nil {
			continue
		}
		err := jpeg.Encode(w, f.Image, &jpeg.Options{Quality: v.quality})
		if err != nil {
			v.err = perrors.Wrap(err, "could not encode frame")
			continue
		}
		v.written.Add(1)
	}
	err := w.Flush()
	if err != nil && v.err == nil {
		v.err = perrors.Wrap(err, "could not flush video output")
	}
}

// Close detaches the output from the session, waits for queued frames to be
// written and closes the file. The file is left at Path.
func (v *VideoOutput) Close() error {
	v.once.Do(v.close)
	return v.err
}

func (v *VideoOutput) close() {
	v.detach(v)

	v.mu.Lock()
	v.closed = true
	close(v.frames)
	v.mu.Unlock()

	<-v.done
	err := v.file.Close()
	if err != nil && v.err == nil {
		v.err = perrors.Wrap(err, "could not close video output")
	}
	v.log.Info("video output closed", "path", v.path, "frames", v.written.Load(), "dropped", v.dropped.Load())
}

// Path returns the location of the output file.
func (v *VideoOutput) Path() string { return v.path }

// Frames returns the number of frames written and dropped.
func (v *VideoOutput) Frames() (written, dropped uint64) {
	return v.written.Load(), v.dropped.Load()
}
