// Package shuffle maintains a random traversal order over the indices of a
// collection.
package shuffle

import (
	"math/rand/v2"
)

// Index is a permutation of [0, total) with a traversal position.
// It is not safe for concurrent use.
type Index struct {
	rng  *rand.Rand
	perm []int
	pos  int
}

// New creates an empty index. The same seed yields the same sequence of
// permutations.
func New(seed uint64) *Index {
	return &Index{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Rebuild discards the current permutation and shuffles [0, total) afresh.
func (s *Index) Rebuild(total int) {
	if total < 0 {
		total = 0
	}
	s.perm = s.rng.Perm(total)
	s.pos = 0
}

// Remove drops index i from the permutation after the element at rank i was
// deleted. Every value above i moves down by one, and indices not yet
// visited in this cycle stay unvisited.
func (s *Index) Remove(i int) {
	if i < 0 || i >= len(s.perm) {
		return
	}
	next := make([]int, 0, len(s.perm)-1)
	pos := s.pos
	for slot, v := range s.perm {
		switch {
		case v == i:
			if slot < s.pos {
				pos--
			}
			continue
		case v > i:
			v--
		}
		next = append(next, v)
	}
	s.perm = next
	s.pos = pos
}

// Next returns the next index in traversal order. Once every index has been
// visited the permutation is reshuffled. It reports false when empty.
func (s *Index) Next() (int, bool) {
	if len(s.perm) == 0 {
		return 0, false
	}
	if s.pos >= len(s.perm) {
		s.rng.Shuffle(len(s.perm), func(a, b int) {
			s.perm[a], s.perm[b] = s.perm[b], s.perm[a]
		})
		s.pos = 0
	}
	v := s.perm[s.pos]
	s.pos++
	return v, true
}

// Len returns the size of the permutation.
func (s *Index) Len() int {
	return len(s.perm)
}

// Remaining returns how many indices are left before the next reshuffle.
func (s *Index) Remaining() int {
	return len(s.perm) - s.pos
}

// Perm returns a copy of the current permutation.
func (s *Index) Perm() []int {
	out := make([]int, len(s.perm))
	copy(out, s.perm)
	return out
}
