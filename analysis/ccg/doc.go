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

// Package ccg implements the callsite context graph used to disambiguate
// allocation call contexts with distinct memory behavior (cold vs not-cold),
// based on memory allocation profiles.
//
// The graph represents the call contexts in all memprof records on allocation
// calls, with nodes for the allocations themselves as well as for the calls
// in each context. It is initially built from the allocation MIB records,
// then updated to match calls carrying callsite records onto the nodes,
// reflecting any inlining performed on those calls. Cloning is then performed
// along caller edges until each (possibly cloned) allocation is reached only
// by contexts with a single behavior, and finally callsite clones are
// assigned to function clones.
//
// Each MIB (an allocation's call context with its allocation behavior) is
// assigned a unique context id during the graph build. Edges and nodes are
// decorated with the context ids they carry, which is what keeps the graph
// consistent while cloning uniquifies the context for a single allocation.
//
// The graph is generic over the representation it is built from: Backend
// supplies the handful of operations that differ between building directly
// from a module IR (package memprofir) and from a summary index
// (package memprofidx).
package ccg
