/*
DESCRIPTION
  space_windows.go replaces the free space check on windows.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package store

import "math"

// diskSpace is not implemented on windows; space is reported as unlimited.
func diskSpace(dir string) (avail, total uint64, err error) {
	return math.MaxUint64, math.MaxUint64, nil
}
