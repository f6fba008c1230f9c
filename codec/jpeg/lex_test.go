/*
NAME
  lex_test.go

DESCRIPTION
  lex_test.go provides testing for the JPEG lexer.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package jpeg

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
)

var lexTests = []struct {
	name  string
	input []byte
	want  [][]byte
	err   error
}{
	{
		name: "empty",
		err:  io.EOF,
	},
	{
		name:  "null",
		input: []byte{0xff, 0xd8, 0xff, 0xd9},
		want:  [][]byte{{0xff, 0xd8, 0xff, 0xd9}},
		err:   io.EOF,
	},
	{
		name: "full",
		input: []byte{
			0xff, 0xd8, 'f', 'u', 'l', 'l', 0xff, 0xd9,
			0xff, 0xd8, 'f', 'r', 'a', 'm', 'e', 0xff, 0xd9,
			0xff, 0xd8, 'w', 'i', 't', 'h', 0xff, 0xd9,
		},
		want: [][]byte{
			{0xff, 0xd8, 'f', 'u', 'l', 'l', 0xff, 0xd9},
			{0xff, 0xd8, 'f', 'r', 'a', 'm', 'e', 0xff, 0xd9},
			{0xff, 0xd8, 'w', 'i', 't', 'h', 0xff, 0xd9},
		},
		err: io.EOF,
	},
	{
		name:  "truncated",
		input: []byte{0xff, 0xd8, 'c', 'u', 't'},
		err:   io.ErrUnexpectedEOF,
	},
	{
		name:  "not jpeg",
		input: []byte{0x00, 0x01},
		err:   errors.New("lex: not JPEG frame start: []byte{0x0, 0x1}"),
	},
}

func TestLex(t *testing.T) {
	for _, test := range lexTests {
		var got [][]byte
		err := Lex(bytes.NewReader(test.input), func(b []byte) error {
			got = append(got, b)
			return nil
		})
		if err == nil || err.Error() != test.err.Error() {
			t.Errorf("unexpected error for %q: got:%v want:%v", test.name, err, test.err)
		}
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("unexpected result for %q:\ngot :%#v\nwant:%#v", test.name, got, test.want)
		}
	}
}
