package bonds

import (
	"slices"
	"sync"
)

// GroupStat is the mean yield of one rating group.
type GroupStat struct {
	Rating string  `json:"rating"`
	Mean   float64 `json:"mean"`
	Count  int     `json:"count"`
}

// Summary groups bond yields by rating. It is safe for concurrent use.
type Summary struct {
	mu     sync.Mutex
	groups map[string][]float64

	visited     int
	unavailable int
	noYield     int
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{groups: make(map[string][]float64)}
}

// Add records one detail. Unavailable details and details without a yield
// are counted but contribute to no group.
func (s *Summary) Add(d Detail) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.groups == nil {
		s.groups = make(map[string][]float64)
	}
	s.visited++
	switch {
	case !d.Available:
		s.unavailable++
		return
	case d.Yield == nil:
		s.noYield++
		return
	}

	rating := d.Rating
	if rating == "" {
		rating = Unrated
	}
	s.groups[rating] = append(s.groups[rating], *d.Yield)
}

// Counts returns how many details were added, how many were unavailable and
// how many had no yield.
func (s *Summary) Counts() (visited, unavailable, noYield int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visited, s.unavailable, s.noYield
}

// Finalize returns the mean yield per rating, sorted by rating.
func (s *Summary) Finalize() []GroupStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]GroupStat, 0, len(s.groups))
	for rating, yields := range s.groups {
		var sum float64
		for _, y := range yields {
			sum += y
		}
		out = append(out, GroupStat{
			Rating: rating,
			Mean:   sum / float64(len(yields)),
			Count:  len(yields),
		})
	}
	slices.SortFunc(out, func(a, b GroupStat) int {
		switch {
		case a.Rating < b.Rating:
			return -1
		case a.Rating > b.Rating:
			return 1
		}
		return 0
	})
	return out
}
