package browse

import (
	"context"
	"errors"
	"testing"

	"github.com/burrowfs/burrow/pkg/protocol"
)

func newTestTree(l *fakeLister) *TreeCache {
	return NewTreeCache(Session{Tenant: "alice"}, l)
}

func childNames(n *Node) []string {
	names := make([]string, len(n.Children()))
	for i, c := range n.Children() {
		names[i] = c.Name
	}
	return names
}

func TestTreeStartsEmpty(t *testing.T) {
	tr := newTestTree(newFakeLister())
	root := tr.Root()
	if root.Expanded() || len(root.Children()) != 0 {
		t.Errorf("fresh root: expanded=%v children=%v", root.Expanded(), root.Children())
	}
}

func TestTreeExpandKeepsOnlyDirectories(t *testing.T) {
	tr := newTestTree(newFakeLister())
	if err := tr.Expand(context.Background(), ""); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	root := tr.Root()
	if !root.Expanded() {
		t.Error("root not marked expanded")
	}
	got := childNames(root)
	want := []string{"docs", "music"} // readme.txt is a file, not a node
	if len(got) != len(want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("children = %v, want %v", got, want)
		}
	}
}

func TestTreeExpandNested(t *testing.T) {
	tr := newTestTree(newFakeLister())
	ctx := context.Background()

	tr.Expand(ctx, "")
	if err := tr.Expand(ctx, "docs"); err != nil {
		t.Fatalf("Expand docs: %v", err)
	}
	docs := tr.Find("docs")
	if docs == nil || !docs.Expanded() {
		t.Fatal("docs not expanded")
	}
	if got := childNames(docs); len(got) != 1 || got[0] != "old" {
		t.Errorf("docs children = %v", got)
	}
	if old := tr.Find("docs/old"); old == nil || old.Path != "docs/old" {
		t.Errorf("docs/old = %+v", old)
	}
}

func TestTreeExpandTwiceIsStable(t *testing.T) {
	l := newFakeLister()
	tr := newTestTree(l)
	ctx := context.Background()

	tr.Expand(ctx, "")
	if err := tr.Expand(ctx, "docs"); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	docsBefore := tr.Find("docs")
	oldBefore := tr.Find("docs/old")
	namesBefore := childNames(docsBefore)

	if err := tr.Expand(ctx, "docs"); err != nil {
		t.Fatalf("second Expand: %v", err)
	}
	docsAfter := tr.Find("docs")
	if docsAfter != docsBefore || !docsAfter.Expanded() {
		t.Error("re-expand rebuilt the node")
	}
	namesAfter := childNames(docsAfter)
	if len(namesAfter) != len(namesBefore) {
		t.Fatalf("children = %v, want %v", namesAfter, namesBefore)
	}
	for i := range namesBefore {
		if namesAfter[i] != namesBefore[i] {
			t.Errorf("children = %v, want %v", namesAfter, namesBefore)
		}
	}
	// Surviving child nodes keep their identity across the re-list.
	if tr.Find("docs/old") != oldBefore {
		t.Error("re-expand replaced an unchanged child node")
	}
}

func TestTreeExpandUnknownPath(t *testing.T) {
	tr := newTestTree(newFakeLister())
	err := tr.Expand(context.Background(), "never/seen")
	var nc *NotCachedError
	if !errors.As(err, &nc) {
		t.Fatalf("want NotCachedError, got %v", err)
	}
	if nc.Path != "never/seen" {
		t.Errorf("path = %q", nc.Path)
	}
}

func TestTreeCollapseKeepsChildren(t *testing.T) {
	tr := newTestTree(newFakeLister())
	ctx := context.Background()

	tr.Expand(ctx, "")
	tr.Collapse("")
	root := tr.Root()
	if root.Expanded() {
		t.Error("still expanded after collapse")
	}
	if len(root.Children()) == 0 {
		t.Error("collapse discarded the children")
	}
}

func TestTreeRefreshPrunesAndPreservesState(t *testing.T) {
	l := newFakeLister()
	tr := newTestTree(l)
	ctx := context.Background()

	tr.Expand(ctx, "")
	tr.Expand(ctx, "docs")
	docsBefore := tr.Find("docs")

	// Server-side change: music disappears, pictures arrives.
	l.dirs[""] = []protocol.Descriptor{dirEntry("docs"), dirEntry("pictures")}
	l.dirs["pictures"] = nil

	if err := tr.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	root := tr.Root()
	got := childNames(root)
	want := []string{"docs", "pictures"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("children = %v, want %v", got, want)
		}
	}
	if tr.Find("music") != nil {
		t.Error("vanished directory still cached")
	}
	// The docs node is the same object, still expanded.
	if docsAfter := tr.Find("docs"); docsAfter != docsBefore || !docsAfter.Expanded() {
		t.Error("refresh rebuilt an unchanged expanded node")
	}
	// New directories start collapsed.
	if pics := tr.Find("pictures"); pics == nil || pics.Expanded() {
		t.Error("new directory should appear collapsed")
	}
}

func TestTreeRefreshSkipsUnexpanded(t *testing.T) {
	l := newFakeLister()
	tr := newTestTree(l)
	ctx := context.Background()

	tr.Expand(ctx, "")
	tr.Collapse("")

	calls := len(l.calls)
	if err := tr.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(l.calls) != calls {
		t.Errorf("refresh listed %d collapsed directories", len(l.calls)-calls)
	}
}
