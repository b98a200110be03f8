package browse

import (
	"sort"

	"github.com/maruel/natural"

	"github.com/burrowfs/burrow/pkg/protocol"
)

// SortListing orders a listing for display: directories first, then
// natural order on filename, so "file2" sorts before "file10".
func SortListing(listing []protocol.Descriptor) {
	sort.SliceStable(listing, func(i, j int) bool {
		if di, dj := listing[i].IsDir(), listing[j].IsDir(); di != dj {
			return di
		}
		return natural.Less(listing[i].Filename, listing[j].Filename)
	})
}
