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

import "github.com/awslabs/memprof-go-tools/internal/setutil"

// AllocType is a bitmask over the profiled allocation behaviors of a set of
// contexts. AllocNone only occurs transiently: a live node or edge always
// carries at least one behavior bit.
type AllocType uint8

const (
	AllocNone    AllocType = 0
	AllocNotCold AllocType = 1 << 0
	AllocCold    AllocType = 1 << 1

	allocBoth = AllocNotCold | AllocCold
)

// Use maps the alloc types of a set of contexts (which may contain
// NotCold|Cold) to the type to actually use on the corresponding allocation.
// A node with both types cannot be disambiguated further and falls back to
// NotCold, so there is no point distinguishing NotCold|Cold from NotCold.
func (t AllocType) Use() AllocType {
	if t == allocBoth {
		return AllocNotCold
	}
	return t
}

// IsSingle reports whether exactly one behavior bit is set.
func (t AllocType) IsSingle() bool {
	return t == AllocNotCold || t == AllocCold
}

func (t AllocType) String() string {
	switch t {
	case AllocNone:
		return "None"
	case AllocNotCold:
		return "NotCold"
	case AllocCold:
		return "Cold"
	default:
		return "NotColdCold"
	}
}

// computeAllocType unions the recorded alloc types of the given context ids.
func (g *Graph[F, C]) computeAllocType(ids *setutil.IDSet) AllocType {
	t := AllocNone
	for _, id := range ids.Elems() {
		t |= g.contextIDToAllocType[id]
		if t == allocBoth {
			break
		}
	}
	return t
}

// intersectAllocTypes returns the union of the alloc types of the context
// ids common to the two sets, iterating the smaller set.
func (g *Graph[F, C]) intersectAllocTypes(ids1, ids2 *setutil.IDSet) AllocType {
	if ids2.Len() < ids1.Len() {
		ids1, ids2 = ids2, ids1
	}
	t := AllocNone
	for _, id := range ids1.Elems() {
		if !ids2.Has(id) {
			continue
		}
		t |= g.contextIDToAllocType[id]
		if t == allocBoth {
			break
		}
	}
	return t
}

// allocTypesMatch checks whether the alloc types recorded in want match the
// alloc types of the given edges pairwise under the Use collapse. A None on
// either side matches anything: the type does not exist for those context
// ids along that edge.
func allocTypesMatch[F, C comparable](want []AllocType, edges []*ContextEdge[F, C]) bool {
	if len(want) != len(edges) {
		return false
	}
	for i, t := range want {
		if t == AllocNone || edges[i].AllocTypes == AllocNone {
			continue
		}
		if t.Use() != edges[i].AllocTypes.Use() {
			return false
		}
	}
	return true
}
