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

// HandleCallsitesWithMultipleTargets neutralizes callsite nodes whose call
// targets a function other than the profiled callee. This happens for
// indirect calls, and in rarer cases such as macro expansion. The node is
// unbound so it is skipped during cloning; the function assignment data
// structures are not designed to handle the disagreement.
func (g *Graph[F, C]) HandleCallsitesWithMultipleTargets() {
	g.nonAllocCallToNode.Range(func(call CallInfo[C], node *ContextNode[F, C]) bool {
		for _, edge := range node.CalleeEdges {
			if !edge.Callee.HasCall() {
				continue
			}
			if g.be.CalleeMatchesFunc(call.Call, g.nodeToCallingFunc[edge.Callee]) {
				continue
			}
			g.nonAllocCallToNode.Delete(call)
			node.SetCall(CallInfo[C]{})
			break
		}
		return true
	})
}
