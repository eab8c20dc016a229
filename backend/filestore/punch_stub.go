//go:build !linux

package filestore

import "golang.org/x/sys/unix"

// punchHole zero-fills [off, off+length) on platforms without
// FALLOC_FL_PUNCH_HOLE. The range still reads back as zeroes; the
// blocks just stay allocated.
func punchHole(fd int, off, length int64) error {
	zeroes := make([]byte, 64*1024)

	for length > 0 {
		chunk := zeroes
		if length < int64(len(chunk)) {
			chunk = chunk[:length]
		}
		n, err := unix.Pwrite(fd, chunk, off)
		if err != nil {
			return err
		}
		off += int64(n)
		length -= int64(n)
	}
	return nil
}
