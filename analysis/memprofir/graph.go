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

package memprofir

import (
	"github.com/awslabs/memprof-go-tools/analysis/ccg"
	"github.com/awslabs/memprof-go-tools/analysis/config"
)

// Graph is the context graph built from a module.
type Graph = ccg.Graph[*Function, *Call]

// backend implements the graph operations over the module IR.
type backend struct {
	mod *Module
}

// In the module case a profile record already holds the stack id.
func (b *backend) StackID(idOrIndex uint64) uint64 { return idOrIndex }

func (b *backend) LastStackID(call *Call) uint64 {
	return call.CallsiteIDs[len(call.CallsiteIDs)-1]
}

func (b *backend) CallsiteStackIDs(call *Call) []uint64 {
	return call.CallsiteIDs
}

func (b *backend) CalleeMatchesFunc(call *Call, fn *Function) bool {
	if call.Callee == "" {
		return false
	}
	return b.mod.resolveCallee(call.Callee) == fn
}

func (b *backend) UpdateAllocationCall(call ccg.CallInfo[*Call], allocType ccg.AllocType) {
	call.Call.AllocType = allocType
}

func (b *backend) UpdateCall(callerCall ccg.CallInfo[*Call], calleeFunc ccg.FuncInfo[*Function]) {
	if calleeFunc.CloneNo > 0 {
		callerCall.Call.Callee = calleeFunc.Func.Name
	}
}

// CloneFunctionForCallsite materializes clone cloneNo of fn in the module,
// copying every call. The calls of interest (clone 0) are mapped to their
// copies in callMap.
func (b *backend) CloneFunctionForCallsite(fn ccg.FuncInfo[*Function], _ ccg.CallInfo[*Call],
	callMap map[ccg.CallInfo[*Call]]ccg.CallInfo[*Call], callsWithMetadata []ccg.CallInfo[*Call],
	cloneNo int) ccg.FuncInfo[*Function] {
	newFunc := b.mod.AddFunc(ccg.MemProfFuncName(fn.Func.Name, cloneNo))
	cloned := map[*Call]*Call{}
	for _, c := range fn.Func.Calls {
		nc := newFunc.AddCall(c.Name, c.Callee, c.CallsiteIDs, c.MIBs...)
		nc.AllocType = c.AllocType
		cloned[c] = nc
	}
	for _, inst := range callsWithMetadata {
		callMap[inst] = ccg.CallInfo[*Call]{Call: cloned[inst.Call], CloneNo: cloneNo}
	}
	return ccg.FuncInfo[*Function]{Func: newFunc, CloneNo: cloneNo}
}

// BuildGraph builds the context graph for the module from the memprof
// records on its allocation calls, matches the callsite records onto it,
// and neutralizes callsites whose static callee disagrees with the profiled
// one. The graph is then ready for Process.
func BuildGraph(m *Module, cfg *config.Config, logger *config.LogGroup) *Graph {
	g := ccg.NewGraph[*Function, *Call](&backend{mod: m}, cfg, logger)
	for _, fn := range m.Funcs {
		var callsWithMetadata []ccg.CallInfo[*Call]
		for _, call := range fn.Calls {
			if len(call.MIBs) > 0 {
				callInfo := ccg.CallInfo[*Call]{Call: call}
				callsWithMetadata = append(callsWithMetadata, callInfo)
				allocNode := g.AddAllocNode(callInfo, fn)
				for _, mib := range call.MIBs {
					g.AddStackNodesForMIB(allocNode, mib.StackIDs, call.CallsiteIDs, mib.AllocType)
				}
				continue
			}
			if len(call.CallsiteIDs) > 0 {
				callsWithMetadata = append(callsWithMetadata, ccg.CallInfo[*Call]{Call: call})
			}
		}
		g.AddFuncCalls(fn, callsWithMetadata)
	}
	g.Logger().Debugf("built context graph from module with %d functions", len(m.Funcs))
	g.UpdateStackNodes()
	g.HandleCallsitesWithMultipleTargets()
	return g
}
