package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Kind classifies a storage entry.
type Kind int

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDirectory is a directory.
	KindDirectory
	// KindUnsupported covers everything else: symlinks, sockets,
	// devices, fifos. They are listed but never opened or followed.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "none"
	}
}

// Descriptor is the metadata snapshot of a single entry. Size is only
// meaningful for files, Children only for directories. Timestamps are
// Unix epoch seconds; negative values are legal (pre-epoch mtimes do
// occur on restored archives) and 0 means the platform could not say.
type Descriptor struct {
	Filename     string
	Kind         Kind
	Size         int64
	Children     int
	Created      int64
	LastAccess   int64
	LastModified int64
}

// Describe builds a descriptor for the entry at the given host path.
// Lstat is used so a symlink describes itself (as unsupported) rather
// than its target. The children count for directories is a snapshot of
// the immediate entry count and may be stale by the time it is read.
func Describe(hostPath string) (Descriptor, error) {
	info, err := os.Lstat(hostPath)
	if err != nil {
		return Descriptor{}, fmt.Errorf("describe %s: %w", filepath.Base(hostPath), err)
	}
	return describeInfo(hostPath, info)
}

func describeInfo(hostPath string, info os.FileInfo) (Descriptor, error) {
	d := Descriptor{
		Filename:     info.Name(),
		LastModified: info.ModTime().Unix(),
	}
	d.Created, d.LastAccess = statTimes(info)

	switch {
	case info.Mode().IsRegular():
		d.Kind = KindFile
		d.Size = info.Size()
	case info.IsDir():
		d.Kind = KindDirectory
		entries, err := os.ReadDir(hostPath)
		if err != nil {
			return Descriptor{}, fmt.Errorf("count %s: %w", info.Name(), err)
		}
		d.Children = len(entries)
	default:
		d.Kind = KindUnsupported
	}
	return d, nil
}
