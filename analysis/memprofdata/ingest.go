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

// Package memprofdata synthesizes a memprof module from a pprof heap
// profile: every sampled allocation context becomes a MIB on an allocation
// call, and every interior stack frame becomes a callsite record. Locations
// with several line entries are inlined sequences and yield callsite
// records spanning several stack ids, which is exactly what the stack node
// matching in the context graph reconciles.
package memprofdata

import (
	"fmt"
	"os"

	"github.com/awslabs/memprof-go-tools/analysis/ccg"
	"github.com/awslabs/memprof-go-tools/analysis/memprofir"
	"github.com/google/pprof/profile"
)

type frameKey struct {
	locID   uint64
	lineIdx int
}

type ingester struct {
	mod           *memprofir.Module
	coldByteRatio float64

	allocIdx, inuseIdx int

	stackIDs    map[frameKey]uint64
	nextStackID uint64

	// calls tracks the call synthesized for each location, so samples
	// sharing a location share the call. conflictingCallee marks calls
	// observed to enter different functions (indirect calls).
	calls             map[uint64]*memprofir.Call
	conflictingCallee map[uint64]bool
}

// Load reads a pprof heap profile from path and synthesizes the module.
// Contexts whose retained/allocated byte ratio is at or below coldByteRatio
// are classified cold.
func Load(path string, coldByteRatio float64) (*memprofir.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open profile %s: %w", path, err)
	}
	defer f.Close()
	p, err := profile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("could not parse profile %s: %w", path, err)
	}
	return Ingest(p, coldByteRatio)
}

// Ingest synthesizes a module from an already parsed heap profile.
func Ingest(p *profile.Profile, coldByteRatio float64) (*memprofir.Module, error) {
	ing := &ingester{
		mod:               memprofir.NewModule(),
		coldByteRatio:     coldByteRatio,
		allocIdx:          -1,
		inuseIdx:          -1,
		stackIDs:          map[frameKey]uint64{},
		calls:             map[uint64]*memprofir.Call{},
		conflictingCallee: map[uint64]bool{},
	}
	for i, st := range p.SampleType {
		switch st.Type {
		case "alloc_space":
			ing.allocIdx = i
		case "inuse_space":
			ing.inuseIdx = i
		}
	}
	if ing.allocIdx < 0 || ing.inuseIdx < 0 {
		return nil, fmt.Errorf("profile is not a heap profile: no alloc_space/inuse_space sample values")
	}
	for _, s := range p.Sample {
		if len(s.Location) == 0 {
			continue
		}
		ing.addSample(s)
	}
	return ing.mod, nil
}

func (ing *ingester) stackID(k frameKey) uint64 {
	if id, ok := ing.stackIDs[k]; ok {
		return id
	}
	ing.nextStackID++
	ing.stackIDs[k] = ing.nextStackID
	return ing.nextStackID
}

func (ing *ingester) funcFor(name string) *memprofir.Function {
	if fn := ing.mod.FuncByName(name); fn != nil {
		return fn
	}
	return ing.mod.AddFunc(name)
}

// frameFuncName returns the function name of one line of a location,
// falling back to the address for missing symbols.
func frameFuncName(loc *profile.Location, lineIdx int) string {
	if lineIdx < len(loc.Line) && loc.Line[lineIdx].Function != nil && loc.Line[lineIdx].Function.Name != "" {
		return loc.Line[lineIdx].Function.Name
	}
	return fmt.Sprintf("0x%x", loc.Address)
}

// locFrameIDs returns the stack ids of a location's frames, innermost line
// first. A location without line info still gets one frame.
func (ing *ingester) locFrameIDs(loc *profile.Location) []uint64 {
	n := len(loc.Line)
	if n == 0 {
		n = 1
	}
	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		ids[i] = ing.stackID(frameKey{locID: loc.ID, lineIdx: i})
	}
	return ids
}

// enclosingFunc returns the function physically containing a location's
// instruction: the function of its outermost line.
func (ing *ingester) enclosingFunc(loc *profile.Location) *memprofir.Function {
	lineIdx := len(loc.Line) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	return ing.funcFor(frameFuncName(loc, lineIdx))
}

// enteredFuncName returns the function a call into this location enters.
// Inlined code lives in the body of the function it was inlined into, so
// this is the function of the outermost line, same as the enclosing
// function.
func enteredFuncName(loc *profile.Location) string {
	return frameFuncName(loc, maxInt(len(loc.Line)-1, 0))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (ing *ingester) addSample(s *profile.Sample) {
	// The full profiled stack of the allocation, innermost frame first.
	var stackIDs []uint64
	for _, loc := range s.Location {
		stackIDs = append(stackIDs, ing.locFrameIDs(loc)...)
	}

	allocBytes := s.Value[ing.allocIdx]
	inuseBytes := s.Value[ing.inuseIdx]
	allocType := ccg.AllocNotCold
	if allocBytes > 0 && float64(inuseBytes)/float64(allocBytes) <= ing.coldByteRatio {
		allocType = ccg.AllocCold
	}

	// The leaf location is the allocation call.
	leaf := s.Location[0]
	call := ing.calls[leaf.ID]
	if call == nil {
		fn := ing.enclosingFunc(leaf)
		call = fn.AddCall(fmt.Sprintf("alloc@%d", leaf.ID), "", ing.locFrameIDs(leaf))
		ing.calls[leaf.ID] = call
	}
	call.MIBs = append(call.MIBs, memprofir.MIB{StackIDs: stackIDs, AllocType: allocType})

	// Interior locations become callsite records, each calling into the
	// location below it.
	for i := 1; i < len(s.Location); i++ {
		loc := s.Location[i]
		callee := enteredFuncName(s.Location[i-1])
		interior := ing.calls[loc.ID]
		if interior == nil {
			fn := ing.enclosingFunc(loc)
			interior = fn.AddCall(fmt.Sprintf("call@%d", loc.ID), callee, ing.locFrameIDs(loc))
			ing.calls[loc.ID] = interior
			continue
		}
		// The same callsite entering different functions across samples is
		// an indirect call; clear the callee so the multi target
		// handling neutralizes it.
		if !ing.conflictingCallee[loc.ID] && interior.Callee != callee {
			interior.Callee = ""
			ing.conflictingCallee[loc.ID] = true
		}
	}
}
