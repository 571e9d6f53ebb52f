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
	"io"
	"strings"

	"github.com/awslabs/memprof-go-tools/internal/funcutil"
)

// Label returns a short identifier for the node, stable across a run.
func (n *ContextNode[F, C]) Label() string {
	kind := "stack"
	if n.IsAllocation {
		kind = "alloc"
	}
	if n.CloneOf != nil {
		return fmt.Sprintf("N%d (%s, clone of N%d)", n.seq, kind, n.CloneOf.seq)
	}
	return fmt.Sprintf("N%d (%s %d)", n.seq, kind, n.OrigStackOrAllocID)
}

func (e *ContextEdge[F, C]) String() string {
	if e.isRemoved() {
		return "removed edge"
	}
	return fmt.Sprintf("edge from callee %s to caller %s AllocTypes: %v ContextIds: %v",
		e.Callee.Label(), e.Caller.Label(), e.AllocTypes, e.ContextIDs)
}

func (n *ContextNode[F, C]) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Node %s\n", n.Label())
	fmt.Fprintf(&b, "\t%v", n.Call)
	if n.Recursive {
		b.WriteString(" (recursive)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "\tAllocTypes: %v\n", n.AllocTypes)
	fmt.Fprintf(&b, "\tContextIds: %v\n", n.ContextIDs)
	b.WriteString("\tCalleeEdges:\n")
	for _, e := range n.CalleeEdges {
		fmt.Fprintf(&b, "\t\t%v\n", e)
	}
	b.WriteString("\tCallerEdges:\n")
	for _, e := range n.CallerEdges {
		fmt.Fprintf(&b, "\t\t%v\n", e)
	}
	if len(n.Clones) > 0 {
		labels := funcutil.Map(n.Clones, (*ContextNode[F, C]).Label)
		fmt.Fprintf(&b, "\tClones: %s\n", strings.Join(labels, ", "))
	} else if n.CloneOf != nil {
		fmt.Fprintf(&b, "\tClone of %s\n", n.CloneOf.Label())
	}
	return b.String()
}

// Print writes a textual dump of the live graph to w.
func (g *Graph[F, C]) Print(w io.Writer) {
	fmt.Fprintln(w, "Callsite Context Graph:")
	for _, node := range g.nodes {
		if node.IsRemoved() {
			continue
		}
		fmt.Fprintln(w, node)
	}
}
