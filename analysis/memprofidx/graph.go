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
	"github.com/awslabs/memprof-go-tools/analysis/ccg"
	"github.com/awslabs/memprof-go-tools/analysis/config"
)

// Graph is the context graph built from a summary index.
type Graph = ccg.Graph[*FuncSummary, IndexCall]

// backend implements the graph operations over the summary index.
type backend struct {
	idx *Index
}

// In the index case profile records hold indices into the stack id table.
func (b *backend) StackID(idOrIndex uint64) uint64 {
	return b.idx.StackIDs[idOrIndex]
}

func (b *backend) LastStackID(call IndexCall) uint64 {
	indices := call.Callsite.StackIDIndices
	return b.idx.StackIDs[indices[len(indices)-1]]
}

func (b *backend) CallsiteStackIDs(call IndexCall) []uint64 {
	return call.Callsite.StackIDIndices
}

func (b *backend) CalleeMatchesFunc(call IndexCall, fn *FuncSummary) bool {
	if call.Callsite.Callee == "" {
		return false
	}
	return b.idx.resolveCallee(call.Callsite.Callee) == fn
}

func (b *backend) UpdateAllocationCall(call ccg.CallInfo[IndexCall], allocType ccg.AllocType) {
	call.Call.Alloc.Versions[call.CloneNo] = allocType
}

func (b *backend) UpdateCall(callerCall ccg.CallInfo[IndexCall], calleeFunc ccg.FuncInfo[*FuncSummary]) {
	callerCall.Call.Callsite.Clones[callerCall.CloneNo] = calleeFunc.CloneNo
}

// CloneFunctionForCallsite versions the summaries: every call of interest
// in the function gets a new entry in its Versions/Clones array, filled in
// later when the calls are updated. The function handle itself is shared
// across clones; the clone number distinguishes them.
func (b *backend) CloneFunctionForCallsite(fn ccg.FuncInfo[*FuncSummary], _ ccg.CallInfo[IndexCall],
	callMap map[ccg.CallInfo[IndexCall]]ccg.CallInfo[IndexCall], callsWithMetadata []ccg.CallInfo[IndexCall],
	cloneNo int) ccg.FuncInfo[*FuncSummary] {
	for _, inst := range callsWithMetadata {
		if ai := inst.Call.Alloc; ai != nil {
			ai.Versions = append(ai.Versions, ccg.AllocNone)
		} else {
			ci := inst.Call.Callsite
			ci.Clones = append(ci.Clones, 0)
		}
		callMap[inst] = ccg.CallInfo[IndexCall]{Call: inst.Call, CloneNo: cloneNo}
	}
	return ccg.FuncInfo[*FuncSummary]{Func: fn.Func, CloneNo: cloneNo}
}

// BuildGraph builds the context graph from the summaries in the index,
// matches the callsite summaries onto it, and neutralizes callsites whose
// callee disagrees with the profiled one. The graph is then ready for
// Process.
func BuildGraph(idx *Index, cfg *config.Config, logger *config.LogGroup) *Graph {
	g := ccg.NewGraph[*FuncSummary, IndexCall](&backend{idx: idx}, cfg, logger)
	for _, fs := range idx.Funcs {
		var callsWithMetadata []ccg.CallInfo[IndexCall]
		for _, ai := range fs.Allocs {
			// Recursion elimination during summary building can leave an
			// alloc with no MIBs; it cannot take part in the analysis but
			// stays in the summary for correlation when applying.
			if len(ai.MIBs) == 0 {
				continue
			}
			callInfo := ccg.CallInfo[IndexCall]{Call: IndexCall{Alloc: ai}}
			callsWithMetadata = append(callsWithMetadata, callInfo)
			allocNode := g.AddAllocNode(callInfo, fs)
			// The inlined context of the allocation itself was already
			// collapsed out of the summary MIB stacks, so there is no
			// callsite prefix to skip.
			for _, mib := range ai.MIBs {
				g.AddStackNodesForMIB(allocNode, mib.StackIDIndices, nil, mib.AllocType)
			}
			// Initialize version 0 to the current behavior, collapsed in
			// case of a mix, so an original we end up unable to clone keeps
			// the default behavior.
			ai.Versions = []ccg.AllocType{allocNode.AllocTypes.Use()}
		}
		for _, ci := range fs.Callsites {
			ci.Clones = []int{0}
			callsWithMetadata = append(callsWithMetadata, ccg.CallInfo[IndexCall]{Call: IndexCall{Callsite: ci}})
		}
		g.AddFuncCalls(fs, callsWithMetadata)
	}
	g.Logger().Debugf("built context graph from index with %d function summaries", len(idx.Funcs))
	g.UpdateStackNodes()
	g.HandleCallsitesWithMultipleTargets()
	return g
}
