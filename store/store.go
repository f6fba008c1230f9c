/*
DESCRIPTION
  store.go provides the persistence of captured photos and finished
  recordings.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package store provides persistence for captured media.
package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	perrors "github.com/pkg/errors"

	"github.com/ausocean/utils/logging"
)

// Kind is the kind of media in an Item.
type Kind uint8

const (
	Photo Kind = iota
	Video
)

func (k Kind) String() string {
	if k == Video {
		return "video"
	}
	return "photo"
}

// Item is media handed over for persistence. Photos carry an Image; videos
// carry the Path of a finished file, which the store takes ownership of.
type Item struct {
	Kind      Kind
	Image     *image.RGBA
	Path      string
	Timestamp time.Time

	// Index is the position within a burst, or -1.
	Index int
}

// Store persists items, returning where each was stored.
type Store interface {
	Save(ctx context.Context, it Item) (string, error)
}

// ErrNoSpace is returned when saving would leave less than the configured
// free space.
var ErrNoSpace = errors.New("insufficient disk space")

// Defaults.
const (
	defaultQuality = 90
	timeFormat     = "2006-01-02_15-04-05.000"
	maxNameTries   = 1000
)

// File is a Store writing to a directory. Photos are encoded as JPEG and
// videos are moved into the directory.
type File struct {
	log     logging.Logger
	dir     string
	quality int
	minFree uint64
	space   func(dir string) (avail, total uint64, err error)
}

// NewFile returns a File storing into dir, creating it if necessary. Saves
// fail with ErrNoSpace if fewer than minFree bytes would remain.
func NewFile(l logging.Logger, dir string, quality int, minFree uint64) (*File, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, perrors.Wrap(err, "could not create output directory")
	}
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}
	return &File{log: l, dir: dir, quality: quality, minFree: minFree, space: diskSpace}, nil
}

// Save implements Store.
func (s *File) Save(ctx context.Context, it Item) (string, error) {
	err := ctx.Err()
	if err != nil {
		return "", err
	}

	s.log.Debug("checking disk space")
	avail, total, err := s.space(s.dir)
	if err != nil {
		return "", perrors.Wrap(err, "could not read system disk space, abandoning save")
	}
	s.log.Debug("available, total disk space in bytes", "availableSpace", avail, "totalSpace", total)
	if avail < s.minFree {
		return "", fmt.Errorf("%w: %d bytes available, %d required", ErrNoSpace, avail, s.minFree)
	}

	switch it.Kind {
	case Photo:
		return s.savePhoto(it)
	case Video:
		return s.saveVideo(it)
	}
	return "", perrors.Errorf("unknown item kind: %d", it.Kind)
}

// create creates a new file for it, named from its timestamp and burst
// index. A numeric suffix is added if the name is already taken; existing
// files are never replaced.
func (s *File) create(prefix, ext string, it Item) (*os.File, string, error) {
	base := prefix + it.Timestamp.Format(timeFormat)
	if it.Index >= 0 {
		base += fmt.Sprintf("_%02d", it.Index)
	}
	for i := 0; i < maxNameTries; i++ {
		n := base
		if i > 0 {
			n += fmt.Sprintf("-%d", i)
		}
		path := filepath.Join(s.dir, n+ext)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, path, nil
	}
	return nil, "", perrors.Errorf("no free file name for %s", base)
}

func (s *File) savePhoto(it Item) (string, error) {
	if it.Image == nil {
		return "", errors.New("photo has no image")
	}
	f, path, err := s.create("IMG_", ".jpg", it)
	if err != nil {
		return "", perrors.Wrap(err, "could not create photo file")
	}
	s.log.Debug("created photo file", "fileName", path)

	w := bufio.NewWriter(f)
	err = jpeg.Encode(w, it.Image, &jpeg.Options{Quality: s.quality})
	if err == nil {
		err = w.Flush()
	}
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", perrors.Wrap(err, "could not write photo")
	}
	s.log.Info("photo saved", "path", path)
	return path, nil
}

// saveVideo moves the finished recording over a newly created file, so a
// recording never replaces an earlier one.
func (s *File) saveVideo(it Item) (string, error) {
	f, path, err := s.create("VID_", filepath.Ext(it.Path), it)
	if err != nil {
		return "", perrors.Wrap(err, "could not create video file")
	}
	f.Close()

	err = os.Rename(it.Path, path)
	if err != nil {
		// Rename fails across file systems.
		s.log.Debug("could not rename video, copying", "error", err)
		err = copyFile(path, it.Path)
		if err != nil {
			os.Remove(path)
			return "", perrors.Wrap(err, "could not move video")
		}
		os.Remove(it.Path)
	}
	s.log.Info("video saved", "path", path)
	return path, nil
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	cerr := out.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
	}
	return err
}
