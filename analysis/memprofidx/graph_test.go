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

package memprofidx

import (
	"reflect"
	"testing"

	"github.com/awslabs/memprof-go-tools/analysis/ccg"
	"github.com/awslabs/memprof-go-tools/analysis/config"
)

func testConfig() *config.Config {
	cfg := config.NewDefault()
	cfg.VerifyGraph = true
	cfg.VerifyNodes = true
	cfg.LogLevel = int(config.ErrLevel)
	return cfg
}

// coldHotIndex builds the summary form of the cold/hot split scenario: F
// allocates through two contexts that differ above the G -> F callsite.
// The summaries reference stack ids through the index table.
func coldHotIndex(t *testing.T) (*Index, *AllocInfo, *CallsiteInfo) {
	t.Helper()
	idx := NewIndex()
	i10 := idx.StackIDIndex(1010)
	i20 := idx.StackIDIndex(1020)
	i30 := idx.StackIDIndex(1030)

	gf := idx.AddFunc("G")
	ci := idx.AddCallsite(gf, "F", []uint64{i10})

	ff := idx.AddFunc("F")
	ai := idx.AddAlloc(ff,
		MIBInfo{AllocType: ccg.AllocCold, StackIDIndices: []uint64{i10, i20}},
		MIBInfo{AllocType: ccg.AllocNotCold, StackIDIndices: []uint64{i10, i30}})
	return idx, ai, ci
}

func TestIndexColdHotSplit(t *testing.T) {
	idx, ai, ci := coldHotIndex(t)
	g := BuildGraph(idx, testConfig(), nil)

	// Version 0 is seeded with the collapsed behavior before cloning.
	if !reflect.DeepEqual(ai.Versions, []ccg.AllocType{ccg.AllocNotCold}) {
		t.Fatalf("Versions seeded %v, want [NotCold]", ai.Versions)
	}
	// The callsite summary resolves through the stack id table.
	if g.NodeForCall(ccg.CallInfo[IndexCall]{Call: IndexCall{Callsite: ci}}) != g.NodeForStackID(1010) {
		t.Fatalf("callsite summary should bind to the node for stack id 1010")
	}

	if !g.Process() {
		t.Fatalf("expected cloning to happen")
	}
	// One clone of each function: the allocation gets a cold version, and
	// clone 1 of G calls clone 1 of F.
	if !reflect.DeepEqual(ai.Versions, []ccg.AllocType{ccg.AllocNotCold, ccg.AllocCold}) {
		t.Errorf("Versions = %v, want [NotCold Cold]", ai.Versions)
	}
	if !reflect.DeepEqual(ci.Clones, []int{0, 1}) {
		t.Errorf("Clones = %v, want [0 1]", ci.Clones)
	}
}

func TestIndexPlannerRerunIsStable(t *testing.T) {
	// Processing the same index built twice gives the same summary
	// contents.
	idx1, ai1, ci1 := coldHotIndex(t)
	BuildGraph(idx1, testConfig(), nil).Process()
	idx2, ai2, ci2 := coldHotIndex(t)
	BuildGraph(idx2, testConfig(), nil).Process()
	if !reflect.DeepEqual(ai1.Versions, ai2.Versions) {
		t.Errorf("Versions differ across runs: %v vs %v", ai1.Versions, ai2.Versions)
	}
	if !reflect.DeepEqual(ci1.Clones, ci2.Clones) {
		t.Errorf("Clones differ across runs: %v vs %v", ci1.Clones, ci2.Clones)
	}
}

func TestIndexAllocWithoutMIBsSkipped(t *testing.T) {
	// Recursion elimination during summary building can leave an alloc
	// with no MIBs; it takes no part in the analysis.
	idx := NewIndex()
	ff := idx.AddFunc("F")
	ai := idx.AddAlloc(ff)
	g := BuildGraph(idx, testConfig(), nil)
	if g.NodeForAlloc(ccg.CallInfo[IndexCall]{Call: IndexCall{Alloc: ai}}) != nil {
		t.Errorf("alloc without MIBs should not get a node")
	}
	if len(ai.Versions) != 0 {
		t.Errorf("alloc without MIBs should keep empty Versions, got %v", ai.Versions)
	}
	if g.Process() {
		t.Errorf("nothing to do for an empty index graph")
	}
}

func TestStackIDIndexInterns(t *testing.T) {
	idx := NewIndex()
	a := idx.StackIDIndex(7)
	b := idx.StackIDIndex(9)
	if idx.StackIDIndex(7) != a || idx.StackIDIndex(9) != b {
		t.Errorf("interning should return stable indices")
	}
	if !reflect.DeepEqual(idx.StackIDs, []uint64{7, 9}) {
		t.Errorf("stack id table = %v", idx.StackIDs)
	}
}
