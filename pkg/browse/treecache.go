package browse

import (
	"context"
	"sort"

	"github.com/maruel/natural"
)

// Node is one directory in the cached tree. Only directories appear
// here; files belong to the navigator's listing, not the tree pane.
type Node struct {
	Name     string
	Path     string // wire form, "" for the tenant root
	expanded bool
	children []*Node
}

// Expanded reports whether the node's children have been fetched and
// are showing.
func (n *Node) Expanded() bool { return n.expanded }

// Children returns the node's directory children in display order.
func (n *Node) Children() []*Node { return n.children }

// TreeCache is a lazily-populated mirror of one tenant's directory
// hierarchy. Nodes are fetched when expanded, kept when collapsed,
// and re-walked on refresh only where the user had already expanded.
type TreeCache struct {
	session Session
	lister  Lister
	root    *Node
}

// NewTreeCache builds an empty tree for the session's tenant.
func NewTreeCache(session Session, lister Lister) *TreeCache {
	return &TreeCache{
		session: session,
		lister:  lister,
		root:    &Node{Name: session.Tenant, Path: ""},
	}
}

// Root returns the tenant root node.
func (t *TreeCache) Root() *Node { return t.root }

// Find returns the node at a path, or nil if it is not cached.
func (t *TreeCache) Find(path string) *Node {
	path = cleanPath(path)
	node := t.root
	if path == "" {
		return node
	}
	for node != nil {
		var next *Node
		for _, child := range node.children {
			if child.Path == path || hasPathPrefix(path, child.Path) {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		if next.Path == path {
			return next
		}
		node = next
	}
	return nil
}

// Expand fetches a node's listing and inserts its directory children.
// Files in the listing are ignored here. Expanding an already-expanded
// node refreshes just that node.
func (t *TreeCache) Expand(ctx context.Context, path string) error {
	node := t.Find(path)
	if node == nil {
		return &NotCachedError{Path: cleanPath(path)}
	}
	if err := t.populate(ctx, node); err != nil {
		return err
	}
	node.expanded = true
	return nil
}

// Collapse hides a node's children without discarding them, so the
// next expand is instant.
func (t *TreeCache) Collapse(path string) {
	if node := t.Find(path); node != nil {
		node.expanded = false
	}
}

// Refresh re-walks the tree depth-first, re-listing only nodes that
// are currently expanded. Directories that disappeared are pruned;
// new ones appear collapsed. Unexpanded subtrees cost nothing.
func (t *TreeCache) Refresh(ctx context.Context) error {
	return t.refreshNode(ctx, t.root)
}

func (t *TreeCache) refreshNode(ctx context.Context, node *Node) error {
	if !node.expanded {
		return nil
	}
	if err := t.populate(ctx, node); err != nil {
		return err
	}
	for _, child := range node.children {
		if err := t.refreshNode(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// populate lists a node and merges the directory entries into its
// children, preserving the nodes (and expanded state) of directories
// that are still present.
func (t *TreeCache) populate(ctx context.Context, node *Node) error {
	listing, err := t.lister.List(ctx, t.session.Tenant, node.Path)
	if err != nil {
		return err
	}

	existing := make(map[string]*Node, len(node.children))
	for _, child := range node.children {
		existing[child.Name] = child
	}

	next := make([]*Node, 0, len(listing))
	for _, d := range listing {
		if !d.IsDir() {
			continue
		}
		if child, ok := existing[d.Filename]; ok {
			next = append(next, child)
			continue
		}
		childPath := d.Filename
		if node.Path != "" {
			childPath = node.Path + "/" + d.Filename
		}
		next = append(next, &Node{Name: d.Filename, Path: childPath})
	}
	sort.SliceStable(next, func(i, j int) bool {
		return natural.Less(next[i].Name, next[j].Name)
	})
	node.children = next
	return nil
}

// NotCachedError reports an operation on a path the tree has not seen.
type NotCachedError struct{ Path string }

func (e *NotCachedError) Error() string { return "not in tree: " + e.Path }

func hasPathPrefix(path, prefix string) bool {
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}
