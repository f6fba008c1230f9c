//go:build !withcv
// +build !withcv

/*
DESCRIPTION
  Replaces filters that use the gocv package when builds are made without
  Open CV installed.

AUTHORS
  Scott Barnard <scott@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package filter

// NewBlur returns a NoOp filter for testing purposes only.
func NewBlur(sigma float64) Filter {
	return NoOp{}
}
