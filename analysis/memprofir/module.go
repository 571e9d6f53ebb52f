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

// Package memprofir builds the callsite context graph directly from a
// whole-module IR carrying memprof and callsite records, and materializes
// the cloning decisions on that module: cloned functions and calls are real
// objects, and calls are rewritten to target the clones.
package memprofir

import (
	"fmt"

	"github.com/awslabs/memprof-go-tools/analysis/ccg"
)

// Module is a whole program: the functions, and any aliases to them that
// calls may target.
type Module struct {
	Funcs []*Function

	// Aliases maps an alias symbol to the function symbol it stands for.
	Aliases map[string]string

	funcsByName map[string]*Function
}

// Function is a function body, reduced to the calls that matter to the
// analysis, in body order.
type Function struct {
	Name  string
	Calls []*Call
}

// Call is a call instruction. An allocation call carries the MIBs profiled
// for it; any call additionally carries the stack ids of its own callsite
// context, innermost frame first, spanning several ids when inlining merged
// frames into it.
type Call struct {
	Func *Function

	// Name labels the call within its function, e.g. "call2".
	Name string

	// Callee is the statically called symbol, possibly an alias. Empty for
	// indirect calls.
	Callee string

	// CallsiteIDs is the call's own stack id sequence, innermost first.
	CallsiteIDs []uint64

	// MIBs holds the profiled allocation contexts when the call is an
	// allocation.
	MIBs []MIB

	// AllocType is the behavior annotation attached to an allocation call
	// by the analysis. None until annotated.
	AllocType ccg.AllocType
}

// MIB is one profiled allocation context: the full stack of the allocation,
// innermost frame first, and the behavior observed for it.
type MIB struct {
	StackIDs  []uint64
	AllocType ccg.AllocType
}

func (c *Call) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s.%s", c.Func.Name, c.Name)
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{Aliases: map[string]string{}, funcsByName: map[string]*Function{}}
}

// AddFunc creates and registers an empty function.
func (m *Module) AddFunc(name string) *Function {
	fn := &Function{Name: name}
	m.Funcs = append(m.Funcs, fn)
	if m.funcsByName == nil {
		m.funcsByName = map[string]*Function{}
	}
	m.funcsByName[name] = fn
	return fn
}

// FuncByName returns the function with the given symbol name, or nil.
func (m *Module) FuncByName(name string) *Function {
	return m.funcsByName[name]
}

// AddCall appends a call to fn.
func (fn *Function) AddCall(name, callee string, callsiteIDs []uint64, mibs ...MIB) *Call {
	c := &Call{Func: fn, Name: name, Callee: callee, CallsiteIDs: callsiteIDs, MIBs: mibs}
	fn.Calls = append(fn.Calls, c)
	return c
}

// resolveCallee returns the function a symbol refers to, looking through
// one level of aliasing.
func (m *Module) resolveCallee(symbol string) *Function {
	if fn := m.funcsByName[symbol]; fn != nil {
		return fn
	}
	if target, ok := m.Aliases[symbol]; ok {
		return m.funcsByName[target]
	}
	return nil
}
