//go:build !windows
// +build !windows

/*
DESCRIPTION
  space.go reads file system free space.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package store

import "syscall"

// diskSpace returns the bytes available to unprivileged users and the total
// size of the file system holding dir.
func diskSpace(dir string) (avail, total uint64, err error) {
	var stat syscall.Statfs_t
	err = syscall.Statfs(dir, &stat)
	if err != nil {
		return 0, 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), stat.Blocks * uint64(stat.Bsize), nil
}
