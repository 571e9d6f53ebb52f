// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package setutil provides set types for the dense small-integer ids used
// throughout the context graph analyses. The hot path of the analyses is
// intersection/subtraction/union over these sets, so they are backed by
// sparse bitsets rather than Go maps.
package setutil

import (
	"strconv"
	"strings"

	"golang.org/x/tools/container/intsets"
)

// IDSet is a mutable set of uint32 ids backed by a sparse bitset.
// The zero value is an empty set ready for use, but IDSet must always be
// handled by pointer: the underlying representation cannot be copied by
// assignment. Iteration is in ascending id order.
type IDSet struct {
	s intsets.Sparse
}

// NewIDSet returns a set containing the given ids.
func NewIDSet(ids ...uint32) *IDSet {
	s := &IDSet{}
	for _, id := range ids {
		s.s.Insert(int(id))
	}
	return s
}

// Insert adds id to the set and reports whether the set changed.
func (s *IDSet) Insert(id uint32) bool { return s.s.Insert(int(id)) }

// Remove removes id from the set and reports whether the set changed.
func (s *IDSet) Remove(id uint32) bool { return s.s.Remove(int(id)) }

// Has reports whether id is in the set.
func (s *IDSet) Has(id uint32) bool { return s.s.Has(int(id)) }

// Len returns the number of ids in the set.
func (s *IDSet) Len() int { return s.s.Len() }

// Empty reports whether the set has no elements.
func (s *IDSet) Empty() bool { return s.s.IsEmpty() }

// Min returns the smallest id in the set. The set must be nonempty.
func (s *IDSet) Min() uint32 { return uint32(s.s.Min()) }

// Clear removes all elements.
func (s *IDSet) Clear() { s.s.Clear() }

// Clone returns an independent copy of the set.
func (s *IDSet) Clone() *IDSet {
	c := &IDSet{}
	c.s.Copy(&s.s)
	return c
}

// Equal reports whether s and o contain the same ids.
func (s *IDSet) Equal(o *IDSet) bool { return s.s.Equals(&o.s) }

// SubsetOf reports whether every id of s is in o.
func (s *IDSet) SubsetOf(o *IDSet) bool { return s.s.SubsetOf(&o.s) }

// Intersects reports whether s and o have an id in common.
func (s *IDSet) Intersects(o *IDSet) bool { return s.s.Intersects(&o.s) }

// InsertSet adds all ids of o to s and reports whether s changed.
func (s *IDSet) InsertSet(o *IDSet) bool { return s.s.UnionWith(&o.s) }

// IntersectWith removes from s every id not in o.
func (s *IDSet) IntersectWith(o *IDSet) { s.s.IntersectionWith(&o.s) }

// SubtractSet removes from s every id in o.
func (s *IDSet) SubtractSet(o *IDSet) { s.s.DifferenceWith(&o.s) }

// Intersection returns a new set with the ids common to a and b.
func Intersection(a, b *IDSet) *IDSet {
	c := a.Clone()
	c.IntersectWith(b)
	return c
}

// Subtract removes from a every id in b, returning the removed ids
// (a ∩ b) and the ids of b that were not present in a. This mirrors the
// partition needed when context ids are moved onto a new edge: the caller
// keeps working with the not-found remainder.
func Subtract(a, b *IDSet) (found, notFound *IDSet) {
	found = Intersection(a, b)
	a.SubtractSet(found)
	notFound = b.Clone()
	notFound.SubtractSet(found)
	return found, notFound
}

// Elems returns the ids in ascending order.
func (s *IDSet) Elems() []uint32 {
	tmp := s.s.AppendTo(nil)
	ids := make([]uint32, len(tmp))
	for i, v := range tmp {
		ids[i] = uint32(v)
	}
	return ids
}

// ForEach calls f for each id in ascending order.
func (s *IDSet) ForEach(f func(uint32)) {
	for _, v := range s.s.AppendTo(nil) {
		f(uint32(v))
	}
}

func (s *IDSet) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range s.Elems() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	b.WriteByte('}')
	return b.String()
}
