/*
NAME
  lex.go

DESCRIPTION
  lex.go provides a lexer to extract separate JPEG images from a JPEG stream.
  This could either be a series of discrete JPEG images, or an MJPEG stream.

AUTHOR
  Dan Kortschak <dan@ausocean.org>
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package jpeg provides lexing of MJPEG streams.
package jpeg

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Lex parses JPEG images read from src, calling emit with each whole image.
// Each image is passed in a newly allocated slice. Lexing stops at the first
// error from src or emit.
func Lex(src io.Reader, emit func([]byte) error) error {
	r := bufio.NewReader(src)
	for {
		buf := make([]byte, 2, 64<<10)
		_, err := io.ReadFull(r, buf)
		if err != nil {
			return err
		}

		if !bytes.Equal(buf, []byte{0xff, 0xd8}) {
			return fmt.Errorf("lex: not JPEG frame start: %#v", buf)
		}

		nImg := 1

		var last byte
		for {
			b, err := r.ReadByte()
			if err != nil {
				if err == io.EOF {
					return io.ErrUnexpectedEOF
				}
				return err
			}

			buf = append(buf, b)

			if last == 0xff && b == 0xd8 {
				nImg++
			}

			if last == 0xff && b == 0xd9 {
				nImg--
			}

			if nImg == 0 {
				err = emit(buf)
				if err != nil {
					return err
				}
				break
			}

			last = b
		}
	}
}
