package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// VirtualPath is a client-supplied path below a tenant root, already
// validated segment by segment. The zero value addresses the tenant
// root itself.
type VirtualPath struct {
	segments []string
}

// ParsePath validates a raw slash-separated path. Empty segments are
// dropped; "." and ".." segments and segments containing a separator
// are rejected outright, they are never collapsed.
func ParsePath(raw string) (VirtualPath, error) {
	var vp VirtualPath
	for _, seg := range strings.Split(raw, "/") {
		if seg == "" {
			continue
		}
		if err := ValidateName(seg); err != nil {
			return VirtualPath{}, err
		}
		vp.segments = append(vp.segments, seg)
	}
	return vp, nil
}

// ValidateName checks a single entry name: non-empty, no path
// separators, not "." or "..".
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("segment %q: %w", name, ErrInvalidSegment)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("segment %q: %w", name, ErrInvalidSegment)
	}
	return nil
}

// IsRoot reports whether vp addresses the tenant root.
func (vp VirtualPath) IsRoot() bool { return len(vp.segments) == 0 }

// Depth returns the number of segments below the tenant root.
func (vp VirtualPath) Depth() int { return len(vp.segments) }

// Base returns the final segment, or "" at the root.
func (vp VirtualPath) Base() string {
	if vp.IsRoot() {
		return ""
	}
	return vp.segments[len(vp.segments)-1]
}

// Parent returns the path one level up. The root is its own parent.
func (vp VirtualPath) Parent() VirtualPath {
	if vp.IsRoot() {
		return vp
	}
	return VirtualPath{segments: vp.segments[:len(vp.segments)-1]}
}

// Join appends a validated name. The caller validates name first.
func (vp VirtualPath) Join(name string) VirtualPath {
	segs := make([]string, 0, len(vp.segments)+1)
	segs = append(segs, vp.segments...)
	return VirtualPath{segments: append(segs, name)}
}

// String renders the path in wire form ("a/b/c", "" for the root).
func (vp VirtualPath) String() string { return path.Join(vp.segments...) }

// Resolver maps tenant-scoped virtual paths onto the host filesystem
// and enforces confinement below the tenant root.
type Resolver struct {
	root string // canonical storage root
}

// NewResolver canonicalizes the storage root. The root must exist.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return &Resolver{root: canonical}, nil
}

// Root returns the canonical storage root.
func (r *Resolver) Root() string { return r.root }

// TenantRoot returns the on-disk directory backing a tenant, creating
// it on first use.
func (r *Resolver) TenantRoot(tenant Tenant) (string, error) {
	dir := filepath.Join(r.root, string(tenant))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("tenant root %s: %w", tenant, err)
	}
	return dir, nil
}

// Resolve maps a virtual path to its canonical host path and verifies
// it still descends from the tenant root after symlinks are followed.
// The lexical join is safe by construction (segments are validated),
// but a symlink planted inside the tree could still point elsewhere,
// so the canonical form is checked again.
func (r *Resolver) Resolve(tenant Tenant, vp VirtualPath) (string, error) {
	tenantRoot, err := r.TenantRoot(tenant)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(append([]string{tenantRoot}, vp.segments...)...)

	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("resolve %s: %w", vp, ErrNotFound)
		}
		return "", fmt.Errorf("resolve %s: %w", vp, err)
	}
	if !descendsFrom(canonical, tenantRoot) {
		return "", fmt.Errorf("resolve %s: %w", vp, ErrEscape)
	}
	return canonical, nil
}

// ResolveParent resolves the parent directory of a virtual path for a
// mutating operation. The parent must exist and be confined; the leaf
// itself need not exist. Returns the canonical parent directory and
// the leaf name.
func (r *Resolver) ResolveParent(tenant Tenant, vp VirtualPath) (dir, name string, err error) {
	if vp.IsRoot() {
		return "", "", fmt.Errorf("resolve parent: %w", ErrNotFound)
	}
	dir, err = r.Resolve(tenant, vp.Parent())
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", "", fmt.Errorf("resolve parent %s: %w", vp.Parent(), ErrNotFound)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("resolve parent %s: %w", vp.Parent(), ErrNotADirectory)
	}
	return dir, vp.Base(), nil
}

func descendsFrom(p, root string) bool {
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}
