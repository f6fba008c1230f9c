/*
DESCRIPTION
  web.go provides the HTTP control surface of a lens engine: a command
  endpoint, status, a JPEG preview, an MJPEG stream and an event stream.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package web provides an HTTP interface to a lens engine.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/gin-gonic/gin"

	"github.com/ausocean/lens/bus"
	"github.com/ausocean/lens/frame"
	"github.com/ausocean/lens/snap"
)

// Defaults.
const (
	defaultQuality = 80
	streamInterval = 40 * time.Millisecond
	eventQueue     = 64
	shutdownWait   = 5 * time.Second
)

// Engine is the engine controlled by the server.
type Engine interface {
	Bus() *bus.Bus
	Status() (snap.Status, error)
	Latest() (frame.Frame, bool)
}

// Server serves the HTTP interface.
type Server struct {
	log     logging.Logger
	eng     Engine
	quality int
	router  *gin.Engine
	srv     *http.Server
}

// New returns a Server for e. Preview images are encoded with the given JPEG
// quality.
func New(l logging.Logger, e Engine, quality int) *Server {
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}
	s := &Server{log: l, eng: e, quality: quality}

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	api := r.Group("/api")
	api.POST("/commands", s.command)
	api.GET("/status", s.status)
	api.GET("/preview.jpg", s.preview)
	api.GET("/stream", s.stream)
	api.GET("/events", s.events)
	s.router = r
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.router}
	errc := make(chan error, 1)
	go func() { errc <- s.srv.ListenAndServe() }()
	s.log.Info("http server listening", "address", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	err := s.srv.Shutdown(sctx)
	if err != nil {
		return fmt.Errorf("could not shut down http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
}

// command decodes a command and sends it to the engine bus.
func (s *Server) command(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd, err := bus.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err = s.eng.Bus().Send(cmd)
	if err != nil {
		s.log.Warning("could not send command", "command", cmd.Name(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"command": cmd.Name()})
}

func (s *Server) status(c *gin.Context) {
	st, err := s.eng.Status()
	if errors.Is(err, snap.ErrNotRunning) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// preview returns the latest frame as a JPEG.
func (s *Server) preview(c *gin.Context) {
	f, ok := s.eng.Latest()
	if !ok {
		c.String(http.StatusNotFound, "no frame available")
		return
	}
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: s.quality})
	if err != nil {
		c.String(http.StatusInternalServerError, "could not encode frame: %v", err)
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

// stream writes new frames as a multipart MJPEG stream until the client goes
// away.
func (s *Server) stream(c *gin.Context) {
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var (
		last uint64
		buf  bytes.Buffer
	)
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
		}
		f, ok := s.eng.Latest()
		if !ok || f.Seq == last {
			return true
		}
		last = f.Seq

		buf.Reset()
		err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: s.quality})
		if err != nil {
			s.log.Warning("could not encode stream frame", "error", err)
			return true
		}
		fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len())
		w.Write(buf.Bytes())
		fmt.Fprint(w, "\r\n")
		return true
	})
}

// events streams bus events as server-sent events until the client goes
// away.
func (s *Server) events(c *gin.Context) {
	events, unsub := s.eng.Bus().Subscribe(eventQueue)
	defer unsub()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev := <-events:
			b, err := bus.Encode(ev)
			if err != nil {
				s.log.Warning("could not encode event", "event", ev.Name(), "error", err)
				return true
			}
			c.SSEvent(ev.Name(), string(b))
			return true
		}
	})
}
