package browse

// Selection is the set of marked names within one directory listing.
// It only ever refers to the listing it was reset with; replacing the
// listing clears every mark.
type Selection struct {
	universe []string
	selected map[string]struct{}
}

// Reset replaces the universe with a new listing's names and clears
// all marks.
func (s *Selection) Reset(names []string) {
	s.universe = append(s.universe[:0:0], names...)
	s.selected = make(map[string]struct{})
}

// Toggle flips one name's mark. Names outside the universe are
// ignored. Returns the new state.
func (s *Selection) Toggle(name string) bool {
	if s.selected == nil {
		s.selected = make(map[string]struct{})
	}
	if !s.inUniverse(name) {
		return false
	}
	if _, ok := s.selected[name]; ok {
		delete(s.selected, name)
		return false
	}
	s.selected[name] = struct{}{}
	return true
}

// SelectAll marks every name in the universe.
func (s *Selection) SelectAll() {
	s.selected = make(map[string]struct{}, len(s.universe))
	for _, name := range s.universe {
		s.selected[name] = struct{}{}
	}
}

// Clear unmarks everything.
func (s *Selection) Clear() {
	s.selected = make(map[string]struct{})
}

// Invert swaps marked and unmarked across the universe.
func (s *Selection) Invert() {
	next := make(map[string]struct{}, len(s.universe))
	for _, name := range s.universe {
		if _, ok := s.selected[name]; !ok {
			next[name] = struct{}{}
		}
	}
	s.selected = next
}

// IsSelected reports whether a name is marked.
func (s *Selection) IsSelected(name string) bool {
	_, ok := s.selected[name]
	return ok
}

// Count returns the number of marked names.
func (s *Selection) Count() int { return len(s.selected) }

// Selected returns the marked names in universe order.
func (s *Selection) Selected() []string {
	out := make([]string, 0, len(s.selected))
	for _, name := range s.universe {
		if _, ok := s.selected[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (s *Selection) inUniverse(name string) bool {
	for _, u := range s.universe {
		if u == name {
			return true
		}
	}
	return false
}
