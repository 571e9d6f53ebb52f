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

// AddAllocNode creates the node for an allocation call in fn. The alloc
// type stays None until MIBs are added with AddStackNodesForMIB.
func (g *Graph[F, C]) AddAllocNode(call CallInfo[C], fn F) *ContextNode[F, C] {
	node := g.newNode(true, call)
	g.allocCallToNode.Set(call, node)
	g.nodeToCallingFunc[node] = fn
	// The current context id counter doubles as a unique label for MIB
	// allocation nodes.
	node.OrigStackOrAllocID = uint64(g.lastContextID)
	return node
}

// AddStackNodesForMIB mints a context id for one MIB of allocNode and adds
// or updates the chain of stack nodes for the MIB's profiled stack,
// innermost frame first. Any shared prefix with callsiteIDs, the context of
// the (possibly inlined) allocation call itself, is skipped. Stack ids
// repeating within the chain mark the node Recursive; such mutual recursion
// is excluded from cloning later.
func (g *Graph[F, C]) AddStackNodesForMIB(allocNode *ContextNode[F, C], stackIDs, callsiteIDs []uint64, allocType AllocType) {
	cid := g.mintContextID()
	g.contextIDToAllocType[cid] = allocType

	allocNode.AllocTypes |= allocType
	allocNode.ContextIDs.Insert(cid)

	shared := 0
	for shared < len(stackIDs) && shared < len(callsiteIDs) && stackIDs[shared] == callsiteIDs[shared] {
		shared++
	}

	prev := allocNode
	seen := map[uint64]bool{}
	for _, idOrIndex := range stackIDs[shared:] {
		stackID := g.be.StackID(idOrIndex)
		stackNode := g.stackIDToNode[stackID]
		if stackNode == nil {
			stackNode = g.newNode(false, CallInfo[C]{})
			stackNode.OrigStackOrAllocID = stackID
			g.stackIDToNode[stackID] = stackNode
		}
		if seen[stackID] {
			stackNode.Recursive = true
		}
		seen[stackID] = true
		stackNode.ContextIDs.Insert(cid)
		stackNode.AllocTypes |= allocType
		prev.addOrUpdateCallerEdge(stackNode, allocType, cid)
		prev = stackNode
	}
}

// stackIDsWithContextNodes returns the prefix of call's stack id sequence
// whose stack nodes exist in the graph, innermost first. The sequence stops
// at the first id without a node: its outer part was in the unambiguous
// portion of the MIB stacks pruned during profile matching.
func (g *Graph[F, C]) stackIDsWithContextNodes(call C) []uint64 {
	var stackIDs []uint64
	for _, idOrIndex := range g.be.CallsiteStackIDs(call) {
		stackID := g.be.StackID(idOrIndex)
		if g.stackIDToNode[stackID] == nil {
			break
		}
		stackIDs = append(stackIDs, stackID)
	}
	return stackIDs
}
