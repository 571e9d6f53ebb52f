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

// Package memprofidx builds the callsite context graph from a summary
// index, for the distributed link-time pipeline. Cloning decisions are not
// materialized: they are recorded in the per-summary Versions and Clones
// arrays, which the backends later apply when compiling each module.
package memprofidx

import (
	"fmt"

	"github.com/awslabs/memprof-go-tools/analysis/ccg"
)

// Index is the combined summary of a program: the stack id table the
// summaries index into, and one summary per prevailing function.
type Index struct {
	// StackIDs translates the stack id indices stored in summaries to
	// stack ids.
	StackIDs []uint64

	Funcs []*FuncSummary

	// Aliases maps an alias symbol to the function symbol it stands for.
	Aliases map[string]string

	funcsByName map[string]*FuncSummary
}

// FuncSummary summarizes one function: its allocations with memprof
// records and its callsites on profiled paths, in body order.
type FuncSummary struct {
	Name      string
	Allocs    []*AllocInfo
	Callsites []*CallsiteInfo
}

// MIBInfo is one profiled allocation context in summary form: indices into
// the index's stack id table, innermost frame first.
type MIBInfo struct {
	AllocType      ccg.AllocType
	StackIDIndices []uint64
}

// AllocInfo summarizes an allocation call. Versions holds the behavior to
// use per function clone; entry 0 is the original function. The planner
// appends an entry per clone and fills it when updating the call.
type AllocInfo struct {
	Func     *FuncSummary
	MIBs     []MIBInfo
	Versions []ccg.AllocType
}

// CallsiteInfo summarizes a callsite on a profiled path. Clones[i] is the
// callee function clone that clone i of this function must call; entry 0 is
// the original.
type CallsiteInfo struct {
	Func           *FuncSummary
	Callee         string
	StackIDIndices []uint64
	Clones         []int
}

func (a *AllocInfo) String() string {
	return fmt.Sprintf("%s alloc (versions %v)", a.Func.Name, a.Versions)
}

func (c *CallsiteInfo) String() string {
	return fmt.Sprintf("%s -> %s (clones %v)", c.Func.Name, c.Callee, c.Clones)
}

// IndexCall is a call in the summary graph: either an allocation or an
// interior callsite. Exactly one of the fields is set.
type IndexCall struct {
	Alloc    *AllocInfo
	Callsite *CallsiteInfo
}

func (c IndexCall) String() string {
	if c.Alloc != nil {
		return c.Alloc.String()
	}
	if c.Callsite != nil {
		return c.Callsite.String()
	}
	return "<nil>"
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{Aliases: map[string]string{}, funcsByName: map[string]*FuncSummary{}}
}

// AddFunc creates and registers an empty function summary.
func (idx *Index) AddFunc(name string) *FuncSummary {
	fs := &FuncSummary{Name: name}
	idx.Funcs = append(idx.Funcs, fs)
	if idx.funcsByName == nil {
		idx.funcsByName = map[string]*FuncSummary{}
	}
	idx.funcsByName[name] = fs
	return fs
}

// FuncByName returns the summary for the given symbol name, or nil.
func (idx *Index) FuncByName(name string) *FuncSummary {
	return idx.funcsByName[name]
}

// StackIDIndex interns a stack id in the table, returning its index.
func (idx *Index) StackIDIndex(stackID uint64) uint64 {
	for i, id := range idx.StackIDs {
		if id == stackID {
			return uint64(i)
		}
	}
	idx.StackIDs = append(idx.StackIDs, stackID)
	return uint64(len(idx.StackIDs) - 1)
}

// AddAlloc appends an allocation summary to fs.
func (idx *Index) AddAlloc(fs *FuncSummary, mibs ...MIBInfo) *AllocInfo {
	a := &AllocInfo{Func: fs, MIBs: mibs}
	fs.Allocs = append(fs.Allocs, a)
	return a
}

// AddCallsite appends a callsite summary to fs.
func (idx *Index) AddCallsite(fs *FuncSummary, callee string, stackIDIndices []uint64) *CallsiteInfo {
	c := &CallsiteInfo{Func: fs, Callee: callee, StackIDIndices: stackIDIndices}
	fs.Callsites = append(fs.Callsites, c)
	return c
}

func (idx *Index) resolveCallee(symbol string) *FuncSummary {
	if fs := idx.funcsByName[symbol]; fs != nil {
		return fs
	}
	if target, ok := idx.Aliases[symbol]; ok {
		return idx.funcsByName[target]
	}
	return nil
}
