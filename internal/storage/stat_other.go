//go:build !linux

package storage

import "os"

// statTimes falls back to mtime for both values on platforms where the
// raw stat fields are not portable.
func statTimes(info os.FileInfo) (created, accessed int64) {
	sec := info.ModTime().Unix()
	return sec, sec
}
