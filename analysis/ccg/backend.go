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

import "fmt"

// FuncInfo identifies a function clone as the pair of a function handle and
// a clone number. Clone 0 is the original function.
type FuncInfo[F comparable] struct {
	Func    F
	CloneNo int
}

// IsNil reports whether the info holds no function.
func (f FuncInfo[F]) IsNil() bool {
	var zero F
	return f.Func == zero
}

// CallInfo identifies a callsite clone as the pair of a call handle and a
// clone number. Clone 0 is the original call.
type CallInfo[C comparable] struct {
	Call    C
	CloneNo int
}

// IsNil reports whether the info holds no call.
func (c CallInfo[C]) IsNil() bool {
	var zero C
	return c.Call == zero
}

func (c CallInfo[C]) String() string {
	if c.IsNil() {
		return "null call"
	}
	return fmt.Sprintf("%v (clone %d)", c.Call, c.CloneNo)
}

// Backend supplies the operations that differ between the representations a
// context graph can be built from: directly from module IR, or from a
// summary index. Everything else the graph does is representation agnostic.
type Backend[F, C comparable] interface {
	// StackID resolves a raw stack id or index from a profile record to the
	// stack id. For IR this is the identity, for a summary index it is a
	// table lookup.
	StackID(idOrIndex uint64) uint64

	// LastStackID returns the last (outermost caller) stack id in the
	// callsite context of call.
	LastStackID(call C) uint64

	// CallsiteStackIDs returns the raw stack id sequence of the callsite
	// context of call, innermost first.
	CallsiteStackIDs(call C) []uint64

	// CalleeMatchesFunc reports whether call statically targets fn,
	// resolving aliases.
	CalleeMatchesFunc(call C, fn F) bool

	// UpdateAllocationCall records the behavior class to use for the given
	// (possibly cloned) allocation call.
	UpdateAllocationCall(call CallInfo[C], allocType AllocType)

	// UpdateCall rebinds the given (possibly cloned) call to target the
	// given function clone.
	UpdateCall(callerCall CallInfo[C], calleeFunc FuncInfo[F])

	// CloneFunctionForCallsite materializes clone number cloneNo of fn,
	// recording in callMap the mapping from each original call of interest
	// (the calls with profile records in fn, at clone 0) to its new version.
	CloneFunctionForCallsite(fn FuncInfo[F], call CallInfo[C],
		callMap map[CallInfo[C]]CallInfo[C], callsWithMetadata []CallInfo[C],
		cloneNo int) FuncInfo[F]
}

// MemProfCloneSuffix separates a base symbol name from a clone number.
const MemProfCloneSuffix = ".memprof."

// MemProfFuncName returns the symbol name of clone cloneNo of base. Clone 0
// is the original version, which keeps its name.
func MemProfFuncName(base string, cloneNo int) string {
	if cloneNo == 0 {
		return base
	}
	return fmt.Sprintf("%s%s%d", base, MemProfCloneSuffix, cloneNo)
}
