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
	"github.com/awslabs/memprof-go-tools/analysis/config"
	"github.com/awslabs/memprof-go-tools/internal/funcutil"
	"github.com/awslabs/memprof-go-tools/internal/setutil"
)

// FuncCalls records the calls with profile metadata found in one function,
// in the order they appear in the function.
type FuncCalls[F, C comparable] struct {
	Func  F
	Calls []CallInfo[C]
}

// Graph is the callsite context graph. It owns all nodes and the context id
// registry; edges are shared between their two endpoint nodes. A graph is
// built by a backend-specific constructor (memprofir, memprofidx) feeding
// the builder operations, then driven through Process.
type Graph[F, C comparable] struct {
	be  Backend[F, C]
	cfg *config.Config
	log *config.LogGroup

	// funcCalls lists, per function, the calls carrying profile metadata,
	// preserving discovery order.
	funcCalls []FuncCalls[F, C]

	// nodes owns every node ever created, including removed ones and
	// clones.
	nodes []*ContextNode[F, C]

	// stackIDToNode identifies the node created for a stack id when adding
	// the MIB contexts, used to locate nodes when matching callsite records.
	stackIDToNode map[uint64]*ContextNode[F, C]

	// allocCallToNode and nonAllocCallToNode track calls (at clone 0) to
	// their nodes, in insertion order.
	allocCallToNode    *funcutil.OrderedMap[CallInfo[C], *ContextNode[F, C]]
	nonAllocCallToNode *funcutil.OrderedMap[CallInfo[C], *ContextNode[F, C]]

	// nodeToCallingFunc maps each bound node to its enclosing function.
	nodeToCallingFunc map[*ContextNode[F, C]]F

	// contextIDToAllocType records the behavior of each profiled context.
	contextIDToAllocType map[uint32]AllocType

	// lastContextID is the last context id minted. Ids are never reused.
	lastContextID uint32
}

// NewGraph returns an empty graph over the given backend. A nil cfg uses
// the default configuration; a nil logger builds one from cfg.
func NewGraph[F, C comparable](be Backend[F, C], cfg *config.Config, logger *config.LogGroup) *Graph[F, C] {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if logger == nil {
		logger = config.NewLogGroup(cfg)
	}
	return &Graph[F, C]{
		be:                   be,
		cfg:                  cfg,
		log:                  logger,
		stackIDToNode:        map[uint64]*ContextNode[F, C]{},
		allocCallToNode:      funcutil.NewOrderedMap[CallInfo[C], *ContextNode[F, C]](),
		nonAllocCallToNode:   funcutil.NewOrderedMap[CallInfo[C], *ContextNode[F, C]](),
		nodeToCallingFunc:    map[*ContextNode[F, C]]F{},
		contextIDToAllocType: map[uint32]AllocType{},
	}
}

// Logger returns the graph's log group.
func (g *Graph[F, C]) Logger() *config.LogGroup { return g.log }

// FuncsWithCalls returns, per function, the calls with profile metadata, in
// discovery order.
func (g *Graph[F, C]) FuncsWithCalls() []FuncCalls[F, C] { return g.funcCalls }

// AddFuncCalls records the calls carrying profile metadata in fn.
func (g *Graph[F, C]) AddFuncCalls(fn F, calls []CallInfo[C]) {
	if len(calls) == 0 {
		return
	}
	g.funcCalls = append(g.funcCalls, FuncCalls[F, C]{Func: fn, Calls: calls})
}

func (g *Graph[F, C]) newNode(isAllocation bool, call CallInfo[C]) *ContextNode[F, C] {
	n := &ContextNode[F, C]{
		IsAllocation: isAllocation,
		Call:         call,
		ContextIDs:   setutil.NewIDSet(),
		seq:          int64(len(g.nodes)),
	}
	g.nodes = append(g.nodes, n)
	return n
}

// NodeForAlloc returns the allocation node recorded for the given call, or
// nil.
func (g *Graph[F, C]) NodeForAlloc(c CallInfo[C]) *ContextNode[F, C] {
	n, _ := g.allocCallToNode.Get(c)
	return n
}

// NodeForCall returns the node recorded for the given allocation or
// interior call, or nil.
func (g *Graph[F, C]) NodeForCall(c CallInfo[C]) *ContextNode[F, C] {
	if n := g.NodeForAlloc(c); n != nil {
		return n
	}
	n, _ := g.nonAllocCallToNode.Get(c)
	return n
}

// NodeForStackID returns the node created for the given original stack id,
// or nil.
func (g *Graph[F, C]) NodeForStackID(stackID uint64) *ContextNode[F, C] {
	return g.stackIDToNode[stackID]
}

// mintContextID returns a fresh context id. Ids are minted monotonically
// starting at 1.
func (g *Graph[F, C]) mintContextID() uint32 {
	g.lastContextID++
	return g.lastContextID
}

// duplicateContextIDs mints a fresh id for each id in ids, copying the
// behavior of the source id, and records each old -> new pair in oldToNew.
func (g *Graph[F, C]) duplicateContextIDs(ids *setutil.IDSet, oldToNew map[uint32]*setutil.IDSet) *setutil.IDSet {
	newIDs := setutil.NewIDSet()
	ids.ForEach(func(oldID uint32) {
		newID := g.mintContextID()
		newIDs.Insert(newID)
		if oldToNew[oldID] == nil {
			oldToNew[oldID] = setutil.NewIDSet()
		}
		oldToNew[oldID].Insert(newID)
		g.contextIDToAllocType[newID] = g.contextIDToAllocType[oldID]
	})
	return newIDs
}

// removeNoneTypeCalleeEdges drops the callee edges of node left with
// behavior None (no context ids) after a transformation, detaching them on
// the callee side as well.
func (g *Graph[F, C]) removeNoneTypeCalleeEdges(node *ContextNode[F, C]) {
	for i := 0; i < len(node.CalleeEdges); {
		edge := node.CalleeEdges[i]
		if edge.AllocTypes == AllocNone {
			edge.Callee.eraseCallerEdge(edge)
			node.CalleeEdges = append(node.CalleeEdges[:i], node.CalleeEdges[i+1:]...)
			edge.markRemoved()
			continue
		}
		i++
	}
}

// removeEdge detaches edge from both endpoints.
func (g *Graph[F, C]) removeEdge(edge *ContextEdge[F, C]) {
	edge.Callee.eraseCallerEdge(edge)
	edge.Caller.eraseCalleeEdge(edge)
	edge.markRemoved()
}

// connectNewNode connects newNode to origNode's callees when towardsCallee
// is set, else to its callers, moving over the context ids of newNode found
// on origNode's edges. Edges drained of their context ids are removed.
func (g *Graph[F, C]) connectNewNode(newNode, origNode *ContextNode[F, C], towardsCallee bool) {
	// The remaining set shrinks as ids are found on successive edges.
	remaining := newNode.ContextIDs.Clone()
	edges := func() []*ContextEdge[F, C] {
		if towardsCallee {
			return origNode.CalleeEdges
		}
		return origNode.CallerEdges
	}
	for i := 0; i < len(edges()); {
		edge := edges()[i]
		newEdgeIDs, notFound := setutil.Subtract(edge.ContextIDs, remaining)
		remaining = notFound
		if newEdgeIDs.Empty() {
			i++
			continue
		}
		if towardsCallee {
			newEdge := &ContextEdge[F, C]{
				Callee:     edge.Callee,
				Caller:     newNode,
				AllocTypes: g.computeAllocType(newEdgeIDs),
				ContextIDs: newEdgeIDs,
			}
			newNode.CalleeEdges = append(newNode.CalleeEdges, newEdge)
			newEdge.Callee.CallerEdges = append(newEdge.Callee.CallerEdges, newEdge)
		} else {
			newEdge := &ContextEdge[F, C]{
				Callee:     newNode,
				Caller:     edge.Caller,
				AllocTypes: g.computeAllocType(newEdgeIDs),
				ContextIDs: newEdgeIDs,
			}
			newNode.CallerEdges = append(newNode.CallerEdges, newEdge)
			newEdge.Caller.CalleeEdges = append(newEdge.Caller.CalleeEdges, newEdge)
		}
		if edge.ContextIDs.Empty() {
			g.removeEdge(edge)
			continue
		}
		edge.AllocTypes = g.computeAllocType(edge.ContextIDs)
		i++
	}
}

// Process performs cloning on the graph to uniquely identify the behavior
// of each allocation through its contexts, then assigns the callsite clones
// to function clones. It reports whether any assignment changed a call.
func (g *Graph[F, C]) Process() bool {
	if g.cfg.VerifyGraph {
		g.mustCheck()
	}
	if g.cfg.ExportToDot {
		g.writeDotFile("postbuild")
	}
	g.IdentifyClones()
	if g.cfg.VerifyGraph {
		g.mustCheck()
	}
	if g.cfg.ExportToDot {
		g.writeDotFile("cloned")
	}
	changed := g.AssignFunctions()
	if g.cfg.ExportToDot {
		g.writeDotFile("clonefuncassign")
	}
	return changed
}
