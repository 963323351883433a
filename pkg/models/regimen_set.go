package models

// RegimenSet is an insertion-ordered set of regimens
type RegimenSet struct {
	order []Regimen
	seen  map[Regimen]struct{}
}

// NewRegimenSet builds a set from rs, dropping duplicates
func NewRegimenSet(rs ...Regimen) *RegimenSet {
	s := &RegimenSet{seen: make(map[Regimen]struct{}, len(rs))}
	for _, r := range rs {
		s.Add(r)
	}
	return s
}

// Add inserts r and reports whether it was new
func (s *RegimenSet) Add(r Regimen) bool {
	if _, ok := s.seen[r]; ok {
		return false
	}
	s.seen[r] = struct{}{}
	s.order = append(s.order, r)
	return true
}

// Contains reports whether r is in the set
func (s *RegimenSet) Contains(r Regimen) bool {
	_, ok := s.seen[r]
	return ok
}

// Len returns the number of distinct regimens
func (s *RegimenSet) Len() int {
	return len(s.order)
}

// Regimens returns a copy of the regimens in insertion order
func (s *RegimenSet) Regimens() []Regimen {
	out := make([]Regimen, len(s.order))
	copy(out, s.order)
	return out
}
