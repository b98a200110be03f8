//go:build linux

package storage

import (
	"os"
	"syscall"
)

// statTimes extracts creation and access times in epoch seconds.
// Linux has no true birth time in Stat_t, so ctime stands in for
// creation the way most tools treat it.
func statTimes(info os.FileInfo) (created, accessed int64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return st.Ctim.Sec, st.Atim.Sec
}
