package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/burrowfs/burrow/internal/logging"
	"github.com/burrowfs/burrow/internal/metrics"
)

// Gateway performs all tenant-scoped filesystem operations. Every
// entry point resolves and confines the path before touching disk,
// and every I/O failure is logged here so the raw OS error never
// travels past this package.
type Gateway struct {
	resolver *Resolver
}

// NewGateway opens a gateway over the given storage root.
func NewGateway(root string) (*Gateway, error) {
	r, err := NewResolver(root)
	if err != nil {
		return nil, err
	}
	return &Gateway{resolver: r}, nil
}

// Resolver exposes the underlying path resolver, mainly for the
// filesystem watcher which needs the canonical root.
func (g *Gateway) Resolver() *Resolver { return g.resolver }

// List returns descriptors for the immediate entries of a directory,
// directories first, in lexical order within each group. Entries that
// cannot be described are skipped and logged, never fatal.
func (g *Gateway) List(ctx context.Context, tenant Tenant, vp VirtualPath) ([]Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	host, err := g.resolver.Resolve(tenant, vp)
	if err != nil {
		metrics.RecordStorageOp("list", opStatus(err))
		return nil, err
	}
	info, err := os.Lstat(host)
	if err != nil {
		metrics.RecordStorageOp("list", "error")
		return nil, g.ioError("list", tenant, vp, err)
	}
	if !info.IsDir() {
		metrics.RecordStorageOp("list", "not_a_directory")
		return nil, fmt.Errorf("list %s: %w", vp, ErrNotADirectory)
	}

	entries, err := os.ReadDir(host)
	if err != nil {
		metrics.RecordStorageOp("list", "error")
		return nil, g.ioError("list", tenant, vp, err)
	}

	out := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		d, err := Describe(filepath.Join(host, entry.Name()))
		if err != nil {
			logging.Warn("skipping unreadable entry",
				zap.String("tenant", string(tenant)),
				zap.String("path", vp.String()),
				zap.String("entry", entry.Name()),
				zap.Error(err))
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Kind == KindDirectory, out[j].Kind == KindDirectory
		if di != dj {
			return di
		}
		return out[i].Filename < out[j].Filename
	})
	metrics.RecordStorageOp("list", "ok")
	return out, nil
}

// Stat describes a single entry.
func (g *Gateway) Stat(ctx context.Context, tenant Tenant, vp VirtualPath) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	host, err := g.resolver.Resolve(tenant, vp)
	if err != nil {
		return Descriptor{}, err
	}
	d, err := Describe(host)
	if err != nil {
		return Descriptor{}, g.ioError("stat", tenant, vp, err)
	}
	return d, nil
}

// CreateFolder creates a single directory under an existing parent.
// The create is one mkdir call, so two racing creators see exactly one
// success and one conflict.
func (g *Gateway) CreateFolder(ctx context.Context, tenant Tenant, parent VirtualPath, name string) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	if err := ValidateName(name); err != nil {
		metrics.RecordStorageOp("create_folder", "invalid")
		return Descriptor{}, err
	}
	dir, leaf, err := g.resolver.ResolveParent(tenant, parent.Join(name))
	if err != nil {
		metrics.RecordStorageOp("create_folder", opStatus(err))
		return Descriptor{}, err
	}
	target := filepath.Join(dir, leaf)
	if err := os.Mkdir(target, 0o750); err != nil {
		switch {
		case errors.Is(err, fs.ErrExist):
			metrics.RecordStorageOp("create_folder", "conflict")
			return Descriptor{}, fmt.Errorf("create folder %s: %w", name, ErrConflict)
		case errors.Is(err, fs.ErrNotExist):
			metrics.RecordStorageOp("create_folder", "not_found")
			return Descriptor{}, fmt.Errorf("create folder %s: %w", name, ErrNotFound)
		default:
			metrics.RecordStorageOp("create_folder", "error")
			return Descriptor{}, g.ioError("create folder", tenant, parent.Join(name), err)
		}
	}
	metrics.RecordStorageOp("create_folder", "ok")
	d, err := Describe(target)
	if err != nil {
		return Descriptor{}, g.ioError("create folder", tenant, parent.Join(name), err)
	}
	return d, nil
}

// Delete removes an entry recursively and permanently. The tenant root
// itself cannot be deleted.
func (g *Gateway) Delete(ctx context.Context, tenant Tenant, vp VirtualPath) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if vp.IsRoot() {
		metrics.RecordStorageOp("delete", "not_found")
		return fmt.Errorf("delete root: %w", ErrNotFound)
	}
	host, err := g.resolver.Resolve(tenant, vp)
	if err != nil {
		metrics.RecordStorageOp("delete", opStatus(err))
		return err
	}
	if err := os.RemoveAll(host); err != nil {
		metrics.RecordStorageOp("delete", "error")
		return g.ioError("delete", tenant, vp, err)
	}
	metrics.RecordStorageOp("delete", "ok")
	return nil
}

// Open returns a reader over a file's content plus its descriptor.
// The caller owns the reader.
func (g *Gateway) Open(ctx context.Context, tenant Tenant, vp VirtualPath) (io.ReadSeekCloser, Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, Descriptor{}, err
	}
	host, err := g.resolver.Resolve(tenant, vp)
	if err != nil {
		metrics.RecordStorageOp("open", opStatus(err))
		return nil, Descriptor{}, err
	}
	d, err := Describe(host)
	if err != nil {
		metrics.RecordStorageOp("open", "error")
		return nil, Descriptor{}, g.ioError("open", tenant, vp, err)
	}
	switch d.Kind {
	case KindDirectory:
		metrics.RecordStorageOp("open", "is_directory")
		return nil, d, fmt.Errorf("open %s: %w", vp, ErrIsDirectory)
	case KindUnsupported:
		metrics.RecordStorageOp("open", "not_found")
		return nil, d, fmt.Errorf("open %s: %w", vp, ErrNotFound)
	}
	f, err := os.Open(host)
	if err != nil {
		metrics.RecordStorageOp("open", "error")
		return nil, Descriptor{}, g.ioError("open", tenant, vp, err)
	}
	metrics.RecordStorageOp("open", "ok")
	return f, d, nil
}

// ioError logs the raw OS failure and returns a sanitized error that
// carries no OS detail.
func (g *Gateway) ioError(op string, tenant Tenant, vp VirtualPath, err error) error {
	logging.Error("storage i/o failure",
		zap.String("op", op),
		zap.String("tenant", string(tenant)),
		zap.String("path", vp.String()),
		zap.Error(err))
	return fmt.Errorf("%s %s: storage failure", op, vp)
}

func opStatus(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrEscape):
		return "escape"
	case errors.Is(err, ErrInvalidSegment):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotADirectory):
		return "not_a_directory"
	default:
		return "error"
	}
}
