//go:build linux

package filestore

import "golang.org/x/sys/unix"

// punchHole deallocates [off, off+length) while keeping the file size,
// so the range reads back as zeroes.
func punchHole(fd int, off, length int64) error {
	return unix.Fallocate(fd,
		unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, off, length)
}
