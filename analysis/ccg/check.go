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
	"fmt"

	"github.com/awslabs/memprof-go-tools/internal/setutil"
)

// CheckEdge verifies the live edge invariants: an edge carries at least one
// context id, its behavior is not None and equals the union of the
// behaviors of its context ids.
func (g *Graph[F, C]) CheckEdge(edge *ContextEdge[F, C]) error {
	if edge.AllocTypes == AllocNone {
		return fmt.Errorf("edge from %v to %v has no alloc type", edge.Callee.Label(), edge.Caller.Label())
	}
	if edge.ContextIDs.Empty() {
		return fmt.Errorf("edge from %v to %v has no context ids", edge.Callee.Label(), edge.Caller.Label())
	}
	if got := g.computeAllocType(edge.ContextIDs); got != edge.AllocTypes {
		return fmt.Errorf("edge from %v to %v has alloc types %v, context ids imply %v",
			edge.Callee.Label(), edge.Caller.Label(), edge.AllocTypes, got)
	}
	return nil
}

// CheckNode verifies the live node invariants: the node's context ids are
// the union of its callee edges' ids, and a superset of its caller edges'
// union. The caller side may be a strict superset: some contexts terminate
// at the node while others extend further. When checkEdges is set, each
// edge is verified too.
func (g *Graph[F, C]) CheckNode(node *ContextNode[F, C], checkEdges bool) error {
	if node.IsRemoved() {
		return nil
	}
	if got := g.computeAllocType(node.ContextIDs); got != node.AllocTypes {
		return fmt.Errorf("node %v has alloc types %v, context ids imply %v", node.Label(), node.AllocTypes, got)
	}
	if len(node.CallerEdges) > 0 {
		callerIDs := setutil.NewIDSet()
		for _, edge := range node.CallerEdges {
			if checkEdges {
				if err := g.CheckEdge(edge); err != nil {
					return err
				}
			}
			callerIDs.InsertSet(edge.ContextIDs)
		}
		if !callerIDs.SubsetOf(node.ContextIDs) {
			return fmt.Errorf("node %v caller edges carry ids %v outside the node's %v",
				node.Label(), callerIDs, node.ContextIDs)
		}
	}
	if len(node.CalleeEdges) > 0 {
		calleeIDs := setutil.NewIDSet()
		for _, edge := range node.CalleeEdges {
			if checkEdges {
				if err := g.CheckEdge(edge); err != nil {
					return err
				}
			}
			calleeIDs.InsertSet(edge.ContextIDs)
		}
		if !calleeIDs.Equal(node.ContextIDs) {
			return fmt.Errorf("node %v has ids %v but callee edges carry %v",
				node.Label(), node.ContextIDs, calleeIDs)
		}
	}
	return nil
}

// Check verifies the whole graph.
func (g *Graph[F, C]) Check() error {
	for _, node := range g.nodes {
		if err := g.CheckNode(node, false); err != nil {
			return err
		}
		for _, edge := range node.CallerEdges {
			if err := g.CheckEdge(edge); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph[F, C]) mustCheck() {
	if err := g.Check(); err != nil {
		panic("ccg: " + err.Error())
	}
}

func (g *Graph[F, C]) mustCheckNode(node *ContextNode[F, C], checkEdges bool) {
	if err := g.CheckNode(node, checkEdges); err != nil {
		panic("ccg: " + err.Error())
	}
}
