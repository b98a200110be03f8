package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/burrowfs/burrow/internal/logging"
	"github.com/burrowfs/burrow/internal/metrics"
)

// copyWindow is how much is copied between context checks. A cancelled
// upload stops within one window.
const copyWindow = 1 << 20

// UploadTimes carries optional client-supplied timestamps applied to
// the published file. Zero values mean "leave as written".
type UploadTimes struct {
	LastAccess   int64
	LastModified int64
}

// Upload streams a file into place. The bytes land in a temp file in
// the destination directory and are published with a single rename, so
// readers either see the old content or the complete new content,
// never a partial write. Overwriting an existing file is allowed; the
// last writer wins.
func (g *Gateway) Upload(ctx context.Context, tenant Tenant, parent VirtualPath, name string, r io.Reader, times UploadTimes) (Descriptor, error) {
	if err := ValidateName(name); err != nil {
		metrics.RecordStorageOp("upload", "invalid")
		return Descriptor{}, err
	}
	dir, leaf, err := g.resolver.ResolveParent(tenant, parent.Join(name))
	if err != nil {
		metrics.RecordStorageOp("upload", opStatus(err))
		return Descriptor{}, err
	}

	target := filepath.Join(dir, leaf)
	written, err := g.writeAtomic(ctx, target, r)
	if err != nil {
		metrics.RecordStorageOp("upload", "error")
		if ctx.Err() != nil {
			return Descriptor{}, ctx.Err()
		}
		return Descriptor{}, g.ioError("upload", tenant, parent.Join(name), err)
	}
	metrics.RecordStorageOp("upload", "ok")
	metrics.AddUploadBytes(written)

	if times.LastModified != 0 || times.LastAccess != 0 {
		g.applyTimes(target, times)
	}

	d, err := Describe(target)
	if err != nil {
		return Descriptor{}, g.ioError("upload", tenant, parent.Join(name), err)
	}
	return d, nil
}

// writeAtomic copies r into a temp file beside target and renames it
// into place. Every failure path removes the temp file.
func (g *Gateway) writeAtomic(ctx context.Context, target string, r io.Reader) (int64, error) {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".burrow-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	written, err := copyWindowed(ctx, tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("publish: %w", err)
	}
	return written, nil
}

// copyWindowed copies in fixed windows, checking the context between
// windows so a dropped client does not keep the copy running.
func copyWindowed(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyWindow)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := io.CopyBuffer(dst, io.LimitReader(src, copyWindow), buf)
		total += n
		if err != nil {
			return total, err
		}
		if n < copyWindow {
			return total, nil
		}
	}
}

func (g *Gateway) applyTimes(target string, times UploadTimes) {
	now := time.Now()
	atime, mtime := now, now
	if times.LastAccess != 0 {
		atime = time.Unix(times.LastAccess, 0)
	}
	if times.LastModified != 0 {
		mtime = time.Unix(times.LastModified, 0)
	}
	if err := os.Chtimes(target, atime, mtime); err != nil {
		logging.Warn("could not apply upload timestamps",
			zap.String("file", filepath.Base(target)),
			zap.Error(err))
	}
}
