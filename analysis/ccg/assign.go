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
	"github.com/awslabs/memprof-go-tools/internal/funcutil"
	"golang.org/x/exp/slices"
)

// AssignFunctions assigns cloned callsites to functions, cloning the
// functions as needed, and finally updates all calls with the decisions.
// The assignment is greedy and proceeds roughly as follows:
//
//	For each function F:
//	  For each call with graph node N having clones:
//	    Initialize the worklist to N and its clones
//	    While the worklist is not empty:
//	      Clone = pop front
//	      If F has fewer clones than callsite clones handled so far:
//	        If Clone is the first: assign it to the original F
//	        Else create a new function clone; if no caller is assigned to
//	        a function clone yet, move them all to the new one, else
//	        reassign the callers of the previously assigned clone (cloning
//	        their other callees in F along)
//	      For each caller of Clone:
//	        If the caller already calls a specific function clone:
//	          If Clone cannot live in that clone, spin off a new callsite
//	          clone and push it on the worklist
//	          Else keep them together
//	        Else assign the caller to Clone's function clone (picking the
//	        first function clone still without a clone of N)
//
// It reports whether any function was cloned or call updated.
func (g *Graph[F, C]) AssignFunctions() bool {
	changed := false

	// The assignment of callsite nodes to the function clones they call.
	callsiteToCalleeFuncClone := map[*ContextNode[F, C]]FuncInfo[F]{}
	recordCalleeFunc := func(caller *ContextNode[F, C], calleeFunc FuncInfo[F]) {
		if !caller.HasCall() {
			panic("ccg: assigning callee function to unbound caller")
		}
		callsiteToCalleeFuncClone[caller] = calleeFunc
	}

	for fi := range g.funcCalls {
		fc := &g.funcCalls[fi]
		origFunc := FuncInfo[F]{Func: fc.Func}
		// Per clone of origFunc, the remapping from each original call of
		// interest to the call in that clone. Insertion order is clone
		// number order, which keeps "first free clone" searches stable.
		funcClonesToCallMap := funcutil.NewOrderedMap[FuncInfo[F], map[CallInfo[C]]CallInfo[C]]()

		for _, call := range fc.Calls {
			node := g.NodeForCall(call)
			// Skip the call if it has no node (its stack ids were all on
			// inlined chains or pruned from the MIBs), or nothing was
			// cloned for it.
			if node == nil || len(node.Clones) == 0 {
				continue
			}

			// Which clone of node each function clone received.
			funcCloneToCurNodeClone := map[FuncInfo[F]]*ContextNode[F, C]{}

			assignCallsiteCloneToFuncClone := func(funcClone FuncInfo[F], callsiteClone *ContextNode[F, C]) {
				funcCloneToCurNodeClone[funcClone] = callsiteClone
				callMap, _ := funcClonesToCallMap.Get(funcClone)
				callClone := call
				if mapped, ok := callMap[call]; ok {
					callClone = mapped
				}
				callsiteClone.SetCall(callClone)
			}

			// The clones of node to assign, in order. Skip the original
			// node if all of its contexts moved to clones.
			var worklist []*ContextNode[F, C]
			if !node.ContextIDs.Empty() {
				worklist = append(worklist, node)
			}
			worklist = append(worklist, node.Clones...)

			nodeCloneCount := 0
			for len(worklist) > 0 {
				clone := worklist[0]
				worklist = worklist[1:]
				nodeCloneCount++
				if g.cfg.VerifyNodes {
					g.mustCheckNode(clone, true)
				}

				// More callsite clones than function clones so far: the
				// earlier function clones were all taken greedily.
				if funcClonesToCallMap.Len() < nodeCloneCount {
					// The first callsite copy lives in the original
					// function.
					if nodeCloneCount == 1 {
						funcClonesToCallMap.Set(origFunc, map[CallInfo[C]]CallInfo[C]{})
						assignCallsiteCloneToFuncClone(origFunc, clone)
						for _, ce := range clone.CallerEdges {
							if !ce.Caller.HasCall() {
								continue
							}
							recordCalleeFunc(ce.Caller, origFunc)
						}
						continue
					}

					// Locate which copy of origFunc to clone again: if a
					// caller of this callsite clone was already assigned a
					// function clone, all of those callers move to the new
					// function clone, and their other callees within this
					// function move with them.
					var previouslyAssignedFuncClone FuncInfo[F]
					callerAssignedToCloneOfFunc := false
					for _, e := range clone.CallerEdges {
						if fcc, ok := callsiteToCalleeFuncClone[e.Caller]; ok {
							previouslyAssignedFuncClone = fcc
							callerAssignedToCloneOfFunc = true
							break
						}
					}

					newCallMap := map[CallInfo[C]]CallInfo[C]{}
					cloneNo := funcClonesToCallMap.Len()
					newFuncClone := g.be.CloneFunctionForCallsite(origFunc, call, newCallMap, fc.Calls, cloneNo)
					funcClonesToCallMap.Set(newFuncClone, newCallMap)
					changed = true
					g.log.Debugf("created function clone %v for %v", newFuncClone.CloneNo, call)

					// If no caller was assigned to a clone of this function
					// yet, simply assign this callsite clone and all its
					// callers to the new function clone.
					if !callerAssignedToCloneOfFunc {
						assignCallsiteCloneToFuncClone(newFuncClone, clone)
						for _, ce := range clone.CallerEdges {
							if !ce.Caller.HasCall() {
								continue
							}
							recordCalleeFunc(ce.Caller, newFuncClone)
						}
						continue
					}

					// Move the callers previously assigned to call
					// previouslyAssignedFuncClone over to the new function
					// clone, cloning their other callees along. Callers
					// assigned to other clones of the function are handled
					// by the later caller edge walk.
					for _, ce := range clone.CallerEdges {
						if !ce.Caller.HasCall() {
							continue
						}
						if fcc, ok := callsiteToCalleeFuncClone[ce.Caller]; !ok || fcc != previouslyAssignedFuncClone {
							continue
						}
						recordCalleeFunc(ce.Caller, newFuncClone)

						// Cloning a function that already had assigned
						// callers effectively creates new callsite clones
						// of the other callsites those callers reach in it.
						calleeEdges := slices.Clone(ce.Caller.CalleeEdges)
						for _, calleeEdge := range calleeEdges {
							if calleeEdge.isRemoved() {
								continue
							}
							callee := calleeEdge.Callee
							if callee == clone || !callee.HasCall() {
								continue
							}
							newClone := g.moveEdgeToNewCalleeClone(calleeEdge, nil)
							g.removeNoneTypeCalleeEdges(newClone)
							// Moving the edge may have left none type
							// callee edges on the original callee too.
							g.removeNoneTypeCalleeEdges(callee)
							// A callee already assigned a function clone
							// keeps calling the same one from its new
							// clone.
							if fcc, ok := callsiteToCalleeFuncClone[callee]; ok {
								recordCalleeFunc(newClone, fcc)
							}
							// Rebind the new clone to the cloned call in
							// the new function clone. Each caller only
							// calls callsites within its own function, so
							// the callee's call is in origFunc; the call
							// map is indexed by the original call at
							// clone 0.
							origCall := callee.OrigNode().Call
							origCall.CloneNo = 0
							if newCall, ok := newCallMap[origCall]; ok {
								newClone.SetCall(newCall)
							}
						}
					}
					// Fall through to record the function for this
					// callsite clone: the callers may have been assigned
					// to different clones of the function.
				}

				// Walk the caller edges to see whether any caller was
				// already assigned a clone of this function. Different
				// callers may need versions of this function containing
				// different mixes of callsite clones; when a function clone
				// already owns a different clone of node, the conflicting
				// callers are split onto a new callsite clone handled in a
				// later worklist iteration.
				funcCloneToNewCallsiteClone := map[FuncInfo[F]]*ContextNode[F, C]{}
				var funcCloneAssignedToCurCallsiteClone FuncInfo[F]
				haveAssigned := false
				i := 0
				for i < len(clone.CallerEdges) {
					edge := clone.CallerEdges[i]
					if !edge.Caller.HasCall() {
						i++
						continue
					}
					if funcCloneCalledByCaller, ok := callsiteToCalleeFuncClone[edge.Caller]; ok {
						// The function clone called by the caller might not
						// be available for this callsite clone: another
						// clone of node may already live there, or this
						// clone may already be pinned to a different
						// function clone by an earlier caller.
						if (funcCloneToCurNodeClone[funcCloneCalledByCaller] != nil &&
							funcCloneToCurNodeClone[funcCloneCalledByCaller] != clone) ||
							(haveAssigned && funcCloneAssignedToCurCallsiteClone != funcCloneCalledByCaller) {
							// Split this caller off onto a callsite clone
							// to be assigned on a later iteration. Reuse a
							// clone already created for the same function
							// clone during this walk. The caller keeps its
							// assignment, recording which version of the
							// function to copy from later.
							if newClone, ok := funcCloneToNewCallsiteClone[funcCloneCalledByCaller]; ok {
								g.moveEdgeToExistingCalleeClone(edge, newClone, &i, false)
								g.removeNoneTypeCalleeEdges(newClone)
							} else {
								newClone := g.moveEdgeToNewCalleeClone(edge, &i)
								g.removeNoneTypeCalleeEdges(newClone)
								funcCloneToNewCallsiteClone[funcCloneCalledByCaller] = newClone
								worklist = append(worklist, newClone)
							}
							// Moving the caller edge may have left none
							// type callee edges.
							g.removeNoneTypeCalleeEdges(clone)
							// The index was already adjusted by the move.
							continue
						}

						// Otherwise use the function clone the caller
						// already calls.
						if !haveAssigned {
							funcCloneAssignedToCurCallsiteClone = funcCloneCalledByCaller
							haveAssigned = true
							assignCallsiteCloneToFuncClone(funcCloneCalledByCaller, clone)
						}
					} else {
						// The caller has no assignment yet; pin this
						// callsite clone to a function clone first if
						// needed, then assign the caller to it.
						if !haveAssigned {
							for _, fcc := range funcClonesToCallMap.Keys() {
								if funcCloneToCurNodeClone[fcc] == nil {
									funcCloneAssignedToCurCallsiteClone = fcc
									haveAssigned = true
									break
								}
							}
							if !haveAssigned {
								panic("ccg: no function clone available for callsite clone")
							}
							assignCallsiteCloneToFuncClone(funcCloneAssignedToCurCallsiteClone, clone)
						}
						recordCalleeFunc(edge.Caller, funcCloneAssignedToCurCallsiteClone)
					}
					i++
				}
			}
			if g.cfg.VerifyGraph {
				g.mustCheckNode(node, true)
				for _, e := range node.CalleeEdges {
					g.mustCheckNode(e.Callee, true)
				}
				for _, e := range node.CallerEdges {
					g.mustCheckNode(e.Caller, true)
				}
				for _, clone := range node.Clones {
					g.mustCheckNode(clone, true)
					for _, e := range clone.CalleeEdges {
						g.mustCheckNode(e.Callee, true)
					}
					for _, e := range clone.CallerEdges {
						g.mustCheckNode(e.Caller, true)
					}
				}
			}
		}
	}

	// Update all calls to reflect the decisions, walking from the
	// allocation nodes towards callers so every (cloned) context is
	// visited. The IR backend rewrites calls, the summary backend records
	// the versions in the summary entries.
	visited := map[*ContextNode[F, C]]bool{}
	var updateCalls func(node *ContextNode[F, C])
	updateCalls = func(node *ContextNode[F, C]) {
		if visited[node] {
			return
		}
		visited[node] = true
		for _, clone := range node.Clones {
			updateCalls(clone)
		}
		for _, edge := range node.CallerEdges {
			updateCalls(edge.Caller)
		}
		// Skip if there is no call to update, or all contexts moved onto
		// other clones.
		if !node.HasCall() || node.ContextIDs.Empty() {
			return
		}
		if node.IsAllocation {
			g.be.UpdateAllocationCall(node.Call, node.AllocTypes.Use())
			changed = true
			return
		}
		calleeFunc, ok := callsiteToCalleeFuncClone[node]
		if !ok {
			return
		}
		g.be.UpdateCall(node.Call, calleeFunc)
	}
	g.allocCallToNode.Range(func(_ CallInfo[C], node *ContextNode[F, C]) bool {
		updateCalls(node)
		return true
	})

	return changed
}
