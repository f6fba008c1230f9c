/*
NAME
  sound.go

DESCRIPTION
  sound.go provides Sound, a PCM shutter sound loaded from WAV or FLAC or
  synthesized, and its encoding to raw PCM and WAV.

AUTHOR
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	perrors "github.com/pkg/errors"
)

const wavFormat = 1

// Click parameters.
const (
	clickRate     = 48000
	clickFreq     = 2000.0 // Hz.
	clickDuration = 0.03   // Seconds.
	clickDecay    = 150.0  // Per second.
)

// Sound is interleaved PCM audio.
type Sound struct {
	Data       []int
	SampleRate int
	Channels   int
	BitDepth   int
}

// Load reads a WAV or FLAC file, chosen by extension.
func Load(path string) (*Sound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perrors.Wrap(err, "could not open sound")
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return DecodeWAV(f)
	case ".flac":
		return DecodeFLAC(f)
	}
	return nil, perrors.Errorf("unsupported sound file: %s", path)
}

// DecodeWAV decodes a WAV stream.
func DecodeWAV(r io.ReadSeeker) (*Sound, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, perrors.Wrap(err, "could not decode WAV")
	}
	return &Sound{
		Data:       buf.Data,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}, nil
}

// DecodeFLAC decodes a FLAC stream.
func DecodeFLAC(r io.Reader) (*Sound, error) {
	stream, err := flac.Parse(r)
	if err != nil {
		return nil, perrors.Wrap(err, "could not parse FLAC")
	}
	defer stream.Close()

	s := &Sound{
		SampleRate: int(stream.Info.SampleRate),
		Channels:   int(stream.Info.NChannels),
		BitDepth:   int(stream.Info.BitsPerSample),
	}

	// Interleave the samples of each frame's subframes.
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			return s, nil
		} else if err != nil {
			return nil, perrors.Wrap(err, "could not parse FLAC frame")
		}
		for i := 0; i < frame.Subframes[0].NSamples; i++ {
			for _, subframe := range frame.Subframes {
				s.Data = append(s.Data, int(subframe.Samples[i]))
			}
		}
	}
}

// Click returns a short synthesized shutter click, 16 bit mono at 48kHz.
func Click() *Sound {
	n := int(clickRate * clickDuration)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: clickRate},
		SourceBitDepth: 16,
		Data:           make([]int, n),
	}
	for i := range buf.Data {
		t := float64(i) / clickRate
		v := math.Sin(2*math.Pi*clickFreq*t) * math.Exp(-clickDecay*t)
		buf.Data[i] = int(v * math.MaxInt16 * 0.8)
	}
	return fromBuffer(buf)
}

func fromBuffer(b *audio.IntBuffer) *Sound {
	return &Sound{
		Data:       b.Data,
		SampleRate: b.Format.SampleRate,
		Channels:   b.Format.NumChannels,
		BitDepth:   b.SourceBitDepth,
	}
}

func (s *Sound) buffer() *audio.IntBuffer {
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: s.Channels, SampleRate: s.SampleRate},
		SourceBitDepth: s.BitDepth,
		Data:           s.Data,
	}
}

// Duration returns the length of the sound in seconds.
func (s *Sound) Duration() float64 {
	if s.SampleRate == 0 || s.Channels == 0 {
		return 0
	}
	return float64(len(s.Data)/s.Channels) / float64(s.SampleRate)
}

// PCM16LE returns the sound as signed 16 bit little endian samples.
func (s *Sound) PCM16LE() []byte {
	shift := s.BitDepth - 16
	b := make([]byte, 2*len(s.Data))
	for i, v := range s.Data {
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(v)))
	}
	return b
}

// WAV returns the sound encoded as a WAV file.
func (s *Sound) WAV() ([]byte, error) {
	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, s.SampleRate, s.BitDepth, s.Channels, wavFormat)
	err := enc.Write(s.buffer())
	if err != nil {
		return nil, perrors.Wrap(err, "could not encode WAV")
	}
	err = enc.Close()
	if err != nil {
		return nil, perrors.Wrap(err, "could not finalize WAV")
	}
	return ws.Bytes(), nil
}

// writeSeeker implements a memory based io.WriteSeeker.
type writeSeeker struct {
	buf []byte
	pos int
}

// Bytes returns the bytes contained in the writeSeekers buffer.
func (ws *writeSeeker) Bytes() []byte {
	return ws.buf
}

// Write writes len(p) bytes from p to the writeSeeker's buf and returns the number
// of bytes written. If less than len(p) bytes are written, an error is returned.
func (ws *writeSeeker) Write(p []byte) (n int, err error) {
	minCap := ws.pos + len(p)
	if minCap > cap(ws.buf) { // Make sure buf has enough capacity:
		buf2 := make([]byte, len(ws.buf), minCap+len(p)) // add some extra
		copy(buf2, ws.buf)
		ws.buf = buf2
	}
	if minCap > len(ws.buf) {
		ws.buf = ws.buf[:minCap]
	}
	copy(ws.buf[ws.pos:], p)
	ws.pos += len(p)
	return len(p), nil
}

// Seek sets the offset for the next Read or Write to offset, interpreted according
// to whence: SeekStart means relative to the start of the file, SeekCurrent means
// relative to the current offset, and SeekEnd means relative to the end. Seek returns
// the new offset relative to the start of the file and an error, if any.
func (ws *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	newPos, offs := 0, int(offset)
	switch whence {
	case io.SeekStart:
		newPos = offs
	case io.SeekCurrent:
		newPos = ws.pos + offs
	case io.SeekEnd:
		newPos = len(ws.buf) + offs
	}
	if newPos < 0 {
		return 0, errors.New("negative result pos")
	}
	ws.pos = newPos
	return int64(newPos), nil
}
