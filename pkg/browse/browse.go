// Package browse holds the client-side view model for walking a
// tenant's storage: navigation history, a lazily-populated directory
// tree, and the current selection. The types are single-threaded by
// design; they live on a UI loop and do no locking of their own.
package browse

import (
	"context"
	"strings"

	"github.com/burrowfs/burrow/pkg/protocol"
)

// Lister fetches directory listings. *client.Client implements it.
type Lister interface {
	List(ctx context.Context, tenant, path string) ([]protocol.Descriptor, error)
}

// Session identifies whose storage is being browsed. It is handed in
// explicitly when the view model is built; nothing here reads an
// ambient current-user.
type Session struct {
	Tenant   string
	Username string
}

// cleanPath normalizes a slash-separated path to the wire form used
// by the server: no leading or trailing slashes, no empty segments.
func cleanPath(path string) string {
	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// parentPath returns the path one level up, or "" at the root.
func parentPath(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}
