package selection

import "slices"

// Set is the ad hoc selection: ids the user picked explicitly. It is never
// derived from filter criteria. The zero value is ready to use.
type Set struct {
	ids map[string]struct{}
}

// NewSet returns a set containing ids.
func NewSet(ids ...string) *Set {
	s := &Set{}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

// Toggle flips membership of id and reports whether it is now selected.
func (s *Set) Toggle(id string) bool {
	if s.Contains(id) {
		delete(s.ids, id)
		return false
	}
	s.add(id)
	return true
}

// SelectAll selects exactly ids when checked, otherwise clears the set.
func (s *Set) SelectAll(ids []string, checked bool) {
	s.Clear()
	if !checked {
		return
	}
	for _, id := range ids {
		s.add(id)
	}
}

// Contains reports whether id is selected.
func (s *Set) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Remove drops ids from the set.
func (s *Set) Remove(ids ...string) {
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// Clear empties the set.
func (s *Set) Clear() {
	s.ids = nil
}

// Len is the number of selected ids.
func (s *Set) Len() int {
	return len(s.ids)
}

// IDs returns the selected ids sorted, so callers get a stable order.
func (s *Set) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *Set) add(id string) {
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
}
