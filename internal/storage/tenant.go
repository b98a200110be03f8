package storage

import (
	"fmt"
	"strings"
)

// Tenant identifies a storage namespace: one per user, plus the shared
// public namespace every authenticated user can reach.
type Tenant string

// Public is the shared namespace. The leading dot keeps it out of the
// space of valid user tenants, which may not begin with a dot.
const Public Tenant = ".public"

// IsPublic reports whether t is the shared namespace.
func (t Tenant) IsPublic() bool { return t == Public }

// ParseTenant validates a raw tenant identifier. A tenant is a single
// path segment; user tenants may not begin with a dot, so the public
// token never collides with a username.
func ParseTenant(raw string) (Tenant, error) {
	if raw == string(Public) {
		return Public, nil
	}
	if raw == "" || raw == "." || raw == ".." {
		return "", fmt.Errorf("tenant %q: %w", raw, ErrInvalidSegment)
	}
	if strings.ContainsAny(raw, `/\`) || strings.HasPrefix(raw, ".") {
		return "", fmt.Errorf("tenant %q: %w", raw, ErrInvalidSegment)
	}
	return Tenant(raw), nil
}
