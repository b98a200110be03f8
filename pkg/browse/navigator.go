package browse

import (
	"context"

	"github.com/burrowfs/burrow/pkg/protocol"
)

// Navigator tracks the directory the user is looking at and the trail
// of directories they came through. History is a slice plus a cursor;
// going back never erases the forward trail until a fresh visit
// replaces it.
type Navigator struct {
	session Session
	lister  Lister

	history []string // paths within the session tenant
	cursor  int

	seq     uint64 // tags the newest fetch; stale responses are dropped
	listing []protocol.Descriptor
	loaded  bool // a fetch for the current view has completed cleanly
	loadErr error

	selection Selection
}

// NewNavigator builds a navigator positioned at the tenant root. The
// root listing is not fetched until the first Visit or Reload.
func NewNavigator(session Session, lister Lister) *Navigator {
	return &Navigator{
		session: session,
		lister:  lister,
		history: []string{""},
		cursor:  0,
	}
}

// Location returns the current path within the tenant ("" is the
// tenant root).
func (n *Navigator) Location() string { return n.history[n.cursor] }

// Listing returns the descriptors of the current directory, in
// display order. The slice is owned by the navigator.
func (n *Navigator) Listing() []protocol.Descriptor { return n.listing }

// Err returns the error of the most recent completed fetch, nil after
// a success.
func (n *Navigator) Err() error { return n.loadErr }

// Selection returns the selection over the current listing.
func (n *Navigator) Selection() *Selection { return &n.selection }

// Visit navigates to a path. Visiting the current location with a good
// listing already showing is a no-op, no refetch; Reload exists for
// that. Otherwise the forward trail is dropped and the new location
// appended.
func (n *Navigator) Visit(ctx context.Context, path string) error {
	path = cleanPath(path)
	if path == n.Location() {
		if n.loaded && n.loadErr == nil {
			return nil
		}
		return n.load(ctx)
	}
	n.history = append(n.history[:n.cursor+1], path)
	n.cursor = len(n.history) - 1
	return n.load(ctx)
}

// CanBack reports whether there is a location behind the cursor.
func (n *Navigator) CanBack() bool { return n.cursor > 0 }

// CanForward reports whether there is a location ahead of the cursor.
func (n *Navigator) CanForward() bool { return n.cursor < len(n.history)-1 }

// Back moves one step back in history. At the oldest entry it reloads
// in place rather than failing.
func (n *Navigator) Back(ctx context.Context) error {
	if n.CanBack() {
		n.cursor--
	}
	return n.load(ctx)
}

// Forward moves one step forward in history, clamped at the newest
// entry.
func (n *Navigator) Forward(ctx context.Context) error {
	if n.CanForward() {
		n.cursor++
	}
	return n.load(ctx)
}

// Up visits the parent directory. At the tenant root it is a no-op.
func (n *Navigator) Up(ctx context.Context) error {
	if n.Location() == "" {
		return nil
	}
	return n.Visit(ctx, parentPath(n.Location()))
}

// Reload fetches the current directory again without touching the
// history.
func (n *Navigator) Reload(ctx context.Context) error {
	return n.load(ctx)
}

// load fetches the current location. Each fetch is tagged; if another
// navigation started while this one was in flight, the result is
// stale and discarded so it cannot clobber the newer view.
func (n *Navigator) load(ctx context.Context) error {
	n.seq++
	tag := n.seq
	location := n.Location()

	listing, err := n.lister.List(ctx, n.session.Tenant, location)
	if tag != n.seq {
		return nil // a newer navigation owns the view now
	}

	if err != nil {
		n.loaded = false
		n.loadErr = err
		return err
	}
	SortListing(listing)
	n.listing = listing
	n.loaded = true
	n.loadErr = nil

	names := make([]string, len(listing))
	for i, d := range listing {
		names[i] = d.Filename
	}
	n.selection.Reset(names)
	return nil
}
