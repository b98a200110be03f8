package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"/", "", false},
		{"docs", "docs", false},
		{"docs/reports/2024", "docs/reports/2024", false},
		{"//docs///reports/", "docs/reports", false},
		{"docs/./reports", "", true},
		{"docs/../other", "", true},
		{"..", "", true},
		{".", "", true},
		{`docs\evil`, "", true},
	}

	for _, tt := range tests {
		vp, err := ParsePath(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSegment) {
				t.Errorf("ParsePath(%q): want ErrInvalidSegment, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePath(%q): %v", tt.raw, err)
			continue
		}
		if vp.String() != tt.want {
			t.Errorf("ParsePath(%q) = %q, want %q", tt.raw, vp.String(), tt.want)
		}
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidSegment) {
			t.Errorf("ValidateName(%q): want ErrInvalidSegment, got %v", name, err)
		}
	}
	for _, name := range []string{"report.txt", ".hidden", "...", "with space"} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q): %v", name, err)
		}
	}
}

func TestVirtualPathNavigation(t *testing.T) {
	vp, err := ParsePath("a/b/c")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}
	if vp.Depth() != 3 || vp.Base() != "c" {
		t.Errorf("depth/base = %d/%q, want 3/c", vp.Depth(), vp.Base())
	}
	if got := vp.Parent().String(); got != "a/b" {
		t.Errorf("Parent() = %q, want a/b", got)
	}
	if got := vp.Join("d").String(); got != "a/b/c/d" {
		t.Errorf("Join(d) = %q, want a/b/c/d", got)
	}

	root := VirtualPath{}
	if !root.IsRoot() || !root.Parent().IsRoot() {
		t.Error("root should be its own parent")
	}
}

func TestParseTenant(t *testing.T) {
	if _, err := ParseTenant("alice"); err != nil {
		t.Errorf("ParseTenant(alice): %v", err)
	}
	if tenant, err := ParseTenant(".public"); err != nil || !tenant.IsPublic() {
		t.Errorf("ParseTenant(.public) = %v, %v", tenant, err)
	}
	for _, raw := range []string{"", ".", "..", ".hidden", "a/b", `a\b`} {
		if _, err := ParseTenant(raw); !errors.Is(err, ErrInvalidSegment) {
			t.Errorf("ParseTenant(%q): want ErrInvalidSegment, got %v", raw, err)
		}
	}
}

func TestResolveConfinesToTenantRoot(t *testing.T) {
	root := t.TempDir()
	r, err := NewResolver(root)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	tenantRoot, err := r.TenantRoot("alice")
	if err != nil {
		t.Fatalf("TenantRoot: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(tenantRoot, "docs"), 0o750); err != nil {
		t.Fatal(err)
	}

	vp, _ := ParsePath("docs")
	host, err := r.Resolve("alice", vp)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want, _ := filepath.EvalSymlinks(filepath.Join(tenantRoot, "docs"))
	if host != want {
		t.Errorf("Resolve = %q, want %q", host, want)
	}
}

func TestResolveMissingPath(t *testing.T) {
	r, err := NewResolver(t.TempDir())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	vp, _ := ParsePath("nope")
	if _, err := r.Resolve("alice", vp); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	r, err := NewResolver(root)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	tenantRoot, err := r.TenantRoot("alice")
	if err != nil {
		t.Fatalf("TenantRoot: %v", err)
	}

	// A symlink inside the tenant tree pointing out of it. The lexical
	// join looks fine; only the canonical check catches it.
	if err := os.Symlink(outside, filepath.Join(tenantRoot, "exit")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	vp, _ := ParsePath("exit")
	if _, err := r.Resolve("alice", vp); !errors.Is(err, ErrEscape) {
		t.Errorf("want ErrEscape, got %v", err)
	}
}

func TestResolveCrossTenantSymlink(t *testing.T) {
	root := t.TempDir()
	r, err := NewResolver(root)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	aliceRoot, _ := r.TenantRoot("alice")
	bobRoot, _ := r.TenantRoot("bob")

	if err := os.Symlink(bobRoot, filepath.Join(aliceRoot, "peek")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	// Escaping into a sibling tenant is still an escape.
	vp, _ := ParsePath("peek")
	if _, err := r.Resolve("alice", vp); !errors.Is(err, ErrEscape) {
		t.Errorf("want ErrEscape, got %v", err)
	}
}

func TestResolveParent(t *testing.T) {
	r, err := NewResolver(t.TempDir())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := r.TenantRoot("alice"); err != nil {
		t.Fatal(err)
	}

	// Parent is the tenant root, leaf does not exist yet.
	vp, _ := ParsePath("newdir")
	dir, name, err := r.ResolveParent("alice", vp)
	if err != nil {
		t.Fatalf("ResolveParent: %v", err)
	}
	if name != "newdir" || dir == "" {
		t.Errorf("ResolveParent = %q, %q", dir, name)
	}

	// Missing intermediate directory.
	vp, _ = ParsePath("missing/child")
	if _, _, err := r.ResolveParent("alice", vp); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}

	// The tenant root has no parent to resolve.
	if _, _, err := r.ResolveParent("alice", VirtualPath{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("root: want ErrNotFound, got %v", err)
	}
}
