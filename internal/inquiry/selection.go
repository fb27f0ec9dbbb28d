package inquiry

import "slices"

// Selection tracks which document types are included in the next inquiry. Types keep the order in
// which they were fetched. A Selection is not safe for concurrent use.
type Selection struct {
	types    []string
	included map[string]bool
}

// NewSelection returns a selection over types with every type included. Duplicates are dropped.
func NewSelection(types []string) *Selection {
	s := &Selection{included: make(map[string]bool, len(types))}
	for _, t := range types {
		if _, ok := s.included[t]; ok {
			continue
		}
		s.types = append(s.types, t)
		s.included[t] = true
	}
	return s
}

// Types returns every known type.
func (s *Selection) Types() []string {
	return slices.Clone(s.types)
}

// Included reports whether t is part of the selection.
func (s *Selection) Included(t string) bool {
	return s.included[t]
}

// Toggle flips t and returns its new state. Unknown types are ignored and report false.
func (s *Selection) Toggle(t string) bool {
	cur, ok := s.included[t]
	if !ok {
		return false
	}
	s.included[t] = !cur
	return !cur
}

// Selected returns the included types in fetch order.
func (s *Selection) Selected() []string {
	var res []string
	for _, t := range s.types {
		if s.included[t] {
			res = append(res, t)
		}
	}
	return res
}
