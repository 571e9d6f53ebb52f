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

package ccg

import (
	"testing"

	"github.com/awslabs/memprof-go-tools/internal/setutil"
)

func TestAllocTypeUse(t *testing.T) {
	if AllocCold.Use() != AllocCold || AllocNotCold.Use() != AllocNotCold {
		t.Errorf("single types must be preserved")
	}
	if allocBoth.Use() != AllocNotCold {
		t.Errorf("mixed behavior must collapse to NotCold")
	}
}

func TestAllocTypeIsSingle(t *testing.T) {
	for _, tc := range []struct {
		t    AllocType
		want bool
	}{
		{AllocNone, false},
		{AllocNotCold, true},
		{AllocCold, true},
		{allocBoth, false},
	} {
		if got := tc.t.IsSingle(); got != tc.want {
			t.Errorf("IsSingle(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestComputeAndIntersectAllocTypes(t *testing.T) {
	g, _ := testGraph(t)
	g.contextIDToAllocType[1] = AllocCold
	g.contextIDToAllocType[2] = AllocNotCold
	g.contextIDToAllocType[3] = AllocCold

	if got := g.computeAllocType(setutil.NewIDSet(1, 3)); got != AllocCold {
		t.Errorf("computeAllocType({1,3}) = %v, want Cold", got)
	}
	if got := g.computeAllocType(setutil.NewIDSet(1, 2)); got != allocBoth {
		t.Errorf("computeAllocType({1,2}) = %v, want NotColdCold", got)
	}
	if got := g.computeAllocType(setutil.NewIDSet()); got != AllocNone {
		t.Errorf("computeAllocType({}) = %v, want None", got)
	}

	if got := g.intersectAllocTypes(setutil.NewIDSet(1, 2), setutil.NewIDSet(2, 3)); got != AllocNotCold {
		t.Errorf("intersectAllocTypes = %v, want NotCold", got)
	}
	if got := g.intersectAllocTypes(setutil.NewIDSet(1), setutil.NewIDSet(2)); got != AllocNone {
		t.Errorf("disjoint sets should intersect to None, got %v", got)
	}
}

func TestAllocTypesMatch(t *testing.T) {
	mk := func(types ...AllocType) []*ContextEdge[*testFunc, *testCall] {
		var edges []*ContextEdge[*testFunc, *testCall]
		for _, at := range types {
			edges = append(edges, &ContextEdge[*testFunc, *testCall]{AllocTypes: at})
		}
		return edges
	}
	if !allocTypesMatch([]AllocType{AllocCold, AllocNotCold}, mk(AllocCold, AllocNotCold)) {
		t.Errorf("identical vectors must match")
	}
	// None acts as a wildcard on either side.
	if !allocTypesMatch([]AllocType{AllocNone, AllocNotCold}, mk(AllocCold, AllocNotCold)) {
		t.Errorf("None in the vector must match anything")
	}
	if !allocTypesMatch([]AllocType{AllocCold}, mk(AllocNone)) {
		t.Errorf("None on the edge must match anything")
	}
	// Mixed compares under the use collapse.
	if !allocTypesMatch([]AllocType{allocBoth}, mk(AllocNotCold)) {
		t.Errorf("mixed should compare equal to NotCold under use")
	}
	if allocTypesMatch([]AllocType{AllocCold}, mk(AllocNotCold)) {
		t.Errorf("cold must not match not-cold")
	}
	if allocTypesMatch([]AllocType{AllocCold}, mk(AllocCold, AllocCold)) {
		t.Errorf("length mismatch must not match")
	}
}

func TestCloningPriorityOrder(t *testing.T) {
	// Cold first, mixed second, not-cold last, so the original node keeps
	// the default behavior.
	if !(allocTypeCloningPriority[AllocCold] < allocTypeCloningPriority[allocBoth] &&
		allocTypeCloningPriority[allocBoth] < allocTypeCloningPriority[AllocNotCold]) {
		t.Errorf("priority order wrong: %v", allocTypeCloningPriority)
	}
}
