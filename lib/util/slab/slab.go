// Package slab provides a dense slot table with stable integer keys.
//
// Freed slots are reused lowest index first so link handles stay small. Every
// slot carries a generation that is bumped on removal; a Key remembers the
// generation it was issued with, so a stale key can never address a slot that
// has since been reused.
package slab

// Key addresses one occupancy of a slot.
type Key struct {
	Index      uint32
	Generation uint32
}

type entry[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Slab is a slot table of T. The zero value is ready to use. It is not safe
// for concurrent use.
type Slab[T any] struct {
	entries []entry[T]
	free    []uint32
	len     int
}

// Insert stores v in the lowest free slot and returns its key.
func (s *Slab[T]) Insert(v T) Key {
	var idx uint32
	if n := len(s.free); n > 0 {
		best := 0
		for i := 1; i < n; i++ {
			if s.free[i] < s.free[best] {
				best = i
			}
		}
		idx = s.free[best]
		s.free[best] = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.entries))
		s.entries = append(s.entries, entry[T]{})
	}
	e := &s.entries[idx]
	e.value = v
	e.occupied = true
	s.len++
	return Key{Index: idx, Generation: e.generation}
}

// Get returns the value stored under key, if the key is still current.
func (s *Slab[T]) Get(key Key) (T, bool) {
	e := s.lookup(key.Index)
	if e == nil || e.generation != key.Generation {
		var zero T
		return zero, false
	}
	return e.value, true
}

// GetIndex returns the value stored at idx regardless of generation, along
// with the key of the current occupancy.
func (s *Slab[T]) GetIndex(idx uint32) (T, Key, bool) {
	e := s.lookup(idx)
	if e == nil {
		var zero T
		return zero, Key{}, false
	}
	return e.value, Key{Index: idx, Generation: e.generation}, true
}

// Replace overwrites the value under a current key.
func (s *Slab[T]) Replace(key Key, v T) bool {
	e := s.lookup(key.Index)
	if e == nil || e.generation != key.Generation {
		return false
	}
	e.value = v
	return true
}

// Remove frees the slot under key and returns the value it held.
func (s *Slab[T]) Remove(key Key) (T, bool) {
	e := s.lookup(key.Index)
	var zero T
	if e == nil || e.generation != key.Generation {
		return zero, false
	}
	v := e.value
	e.value = zero
	e.occupied = false
	e.generation++
	s.free = append(s.free, key.Index)
	s.len--
	return v, true
}

// Len returns the number of occupied slots.
func (s *Slab[T]) Len() int {
	return s.len
}

// Range calls fn for every occupied slot in index order until fn returns false.
func (s *Slab[T]) Range(fn func(key Key, v T) bool) {
	for i := range s.entries {
		e := &s.entries[i]
		if !e.occupied {
			continue
		}
		if !fn(Key{Index: uint32(i), Generation: e.generation}, e.value) {
			return
		}
	}
}

func (s *Slab[T]) lookup(idx uint32) *entry[T] {
	if int(idx) >= len(s.entries) {
		return nil
	}
	e := &s.entries[idx]
	if !e.occupied {
		return nil
	}
	return e
}
