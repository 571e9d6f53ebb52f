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

package setutil

import (
	"reflect"
	"testing"
)

func checkElems(t *testing.T, s *IDSet, want []uint32) {
	t.Helper()
	if got := s.Elems(); !reflect.DeepEqual(got, want) {
		t.Errorf("Elems() = %v, want %v", got, want)
	}
}

func TestIDSet_basicOps(t *testing.T) {
	s := NewIDSet(3, 1, 2)
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	if !s.Has(2) || s.Has(4) {
		t.Errorf("membership wrong: %v", s)
	}
	if s.Min() != 1 {
		t.Errorf("Min() = %d, want 1", s.Min())
	}
	checkElems(t, s, []uint32{1, 2, 3})
	if !s.Remove(2) || s.Remove(2) {
		t.Errorf("Remove not idempotent-aware")
	}
	checkElems(t, s, []uint32{1, 3})
}

func TestIDSet_cloneIsIndependent(t *testing.T) {
	s := NewIDSet(1, 2)
	c := s.Clone()
	c.Insert(3)
	if s.Has(3) {
		t.Errorf("Clone shares storage with original")
	}
	if !s.SubsetOf(c) {
		t.Errorf("%v should be a subset of %v", s, c)
	}
}

func TestIDSet_algebra(t *testing.T) {
	a := NewIDSet(1, 2, 3, 4)
	b := NewIDSet(3, 4, 5)

	if got := Intersection(a, b); !got.Equal(NewIDSet(3, 4)) {
		t.Errorf("Intersection = %v", got)
	}

	u := a.Clone()
	u.InsertSet(b)
	checkElems(t, u, []uint32{1, 2, 3, 4, 5})

	d := a.Clone()
	d.SubtractSet(b)
	checkElems(t, d, []uint32{1, 2})

	if !a.Intersects(b) || NewIDSet(1).Intersects(NewIDSet(2)) {
		t.Errorf("Intersects wrong")
	}
}

func TestSubtract_partitions(t *testing.T) {
	// Subtract removes b's ids from a, and partitions b into the ids that
	// were found in a and those that were not.
	a := NewIDSet(1, 2, 3)
	b := NewIDSet(2, 3, 4)
	found, notFound := Subtract(a, b)
	checkElems(t, a, []uint32{1})
	checkElems(t, found, []uint32{2, 3})
	checkElems(t, notFound, []uint32{4})
}

func TestIDSet_zeroValue(t *testing.T) {
	var s IDSet
	if !s.Empty() {
		t.Errorf("zero IDSet should be empty")
	}
	s.Insert(7)
	checkElems(t, &s, []uint32{7})
	if s.String() != "{7}" {
		t.Errorf("String() = %q", s.String())
	}
}
