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

package memprofir

import (
	"testing"

	"github.com/awslabs/memprof-go-tools/analysis/ccg"
	"github.com/awslabs/memprof-go-tools/analysis/config"
)

func testConfig() *config.Config {
	cfg := config.NewDefault()
	cfg.VerifyGraph = true
	cfg.VerifyNodes = true
	cfg.LogLevel = int(config.ErrLevel)
	return cfg
}

func loadTestModule(t *testing.T, spec string) *Module {
	t.Helper()
	m, err := LoadModuleBytes("test.yaml", []byte(spec))
	if err != nil {
		t.Fatalf("could not load module: %v", err)
	}
	return m
}

func callByName(t *testing.T, m *Module, fnName, callName string) *Call {
	t.Helper()
	fn := m.FuncByName(fnName)
	if fn == nil {
		t.Fatalf("no function %s", fnName)
	}
	for _, c := range fn.Calls {
		if c.Name == callName {
			return c
		}
	}
	t.Fatalf("no call %s in %s", callName, fnName)
	return nil
}

const trivialColdModule = `
functions:
  - name: F
    calls:
      - name: A
        mibs:
          - stack-ids: [100]
            alloc-type: cold
`

func TestTrivialColdAlloc(t *testing.T) {
	m := loadTestModule(t, trivialColdModule)
	g := BuildGraph(m, testConfig(), nil)
	g.Process()

	if len(m.Funcs) != 1 {
		t.Errorf("no function clones expected, got %d functions", len(m.Funcs))
	}
	if got := callByName(t, m, "F", "A").AllocType; got != ccg.AllocCold {
		t.Errorf("allocation annotated %v, want Cold", got)
	}
}

const coldHotSplitModule = `
functions:
  - name: G
    calls:
      - name: call1
        callee: F
        stack-ids: [10]
  - name: F
    calls:
      - name: A
        mibs:
          - stack-ids: [10, 20]
            alloc-type: cold
          - stack-ids: [10, 30]
            alloc-type: notcold
`

func TestColdHotSplitThroughOneCaller(t *testing.T) {
	m := loadTestModule(t, coldHotSplitModule)
	g := BuildGraph(m, testConfig(), nil)
	if !g.Process() {
		t.Fatalf("expected cloning to happen")
	}

	fClone := m.FuncByName("F.memprof.1")
	gClone := m.FuncByName("G.memprof.1")
	if fClone == nil || gClone == nil {
		t.Fatalf("expected clones of F and G, have %d functions", len(m.Funcs))
	}
	// The original keeps the default behavior, the clone carries the cold
	// context.
	if got := callByName(t, m, "F", "A").AllocType; got != ccg.AllocNotCold {
		t.Errorf("original allocation annotated %v, want NotCold", got)
	}
	if got := callByName(t, m, "F.memprof.1", "A").AllocType; got != ccg.AllocCold {
		t.Errorf("cloned allocation annotated %v, want Cold", got)
	}
	// The original call still targets F; the cloned call is rebound to the
	// cold clone of F.
	if got := callByName(t, m, "G", "call1").Callee; got != "F" {
		t.Errorf("original call targets %s, want F", got)
	}
	if got := callByName(t, m, "G.memprof.1", "call1").Callee; got != "F.memprof.1" {
		t.Errorf("cloned call targets %s, want F.memprof.1", got)
	}
}

func TestDeterministicAcrossRuns(t *testing.T) {
	run := func() ([]string, []ccg.AllocType) {
		m := loadTestModule(t, coldHotSplitModule)
		BuildGraph(m, testConfig(), nil).Process()
		var names []string
		var types []ccg.AllocType
		for _, fn := range m.Funcs {
			names = append(names, fn.Name)
			for _, c := range fn.Calls {
				types = append(types, c.AllocType)
			}
		}
		return names, types
	}
	names1, types1 := run()
	names2, types2 := run()
	if len(names1) != len(names2) || len(types1) != len(types2) {
		t.Fatalf("runs disagree: %v vs %v", names1, names2)
	}
	for i := range names1 {
		if names1[i] != names2[i] {
			t.Errorf("function %d: %s vs %s", i, names1[i], names2[i])
		}
	}
	for i := range types1 {
		if types1[i] != types2[i] {
			t.Errorf("annotation %d: %v vs %v", i, types1[i], types2[i])
		}
	}
}

func TestAliasedCalleeMatches(t *testing.T) {
	m := loadTestModule(t, `
aliases:
  F_alias: F
functions:
  - name: G
    calls:
      - name: call1
        callee: F_alias
        stack-ids: [10]
  - name: F
    calls:
      - name: A
        mibs:
          - stack-ids: [10, 20]
            alloc-type: cold
`)
	g := BuildGraph(m, testConfig(), nil)
	call := callByName(t, m, "G", "call1")
	if g.NodeForCall(ccg.CallInfo[*Call]{Call: call}) == nil {
		t.Errorf("call through alias should stay bound")
	}
}

func TestIndirectCallsiteNeutralized(t *testing.T) {
	m := loadTestModule(t, `
functions:
  - name: G
    calls:
      - name: call1
        stack-ids: [10]
  - name: F
    calls:
      - name: A
        mibs:
          - stack-ids: [10, 20]
            alloc-type: cold
          - stack-ids: [10, 30]
            alloc-type: notcold
`)
	g := BuildGraph(m, testConfig(), nil)
	call := callByName(t, m, "G", "call1")
	if g.NodeForCall(ccg.CallInfo[*Call]{Call: call}) != nil {
		t.Fatalf("indirect call should have been neutralized")
	}
	g.Process()
	if len(m.Funcs) != 2 {
		t.Errorf("no cloning should happen through a neutralized callsite, got %d functions", len(m.Funcs))
	}
	if got := callByName(t, m, "F", "A").AllocType; got != ccg.AllocNotCold {
		t.Errorf("allocation annotated %v, want the collapsed NotCold", got)
	}
	if got := call.Callee; got != "" {
		t.Errorf("neutralized call should not be rewritten, targets %s", got)
	}
}

func TestRecursiveContextNotCloned(t *testing.T) {
	m := loadTestModule(t, `
functions:
  - name: H
    calls:
      - name: call1
        callee: F
        stack-ids: [40]
  - name: F
    calls:
      - name: A
        mibs:
          - stack-ids: [40, 41, 40]
            alloc-type: cold
          - stack-ids: [40, 42]
            alloc-type: notcold
`)
	g := BuildGraph(m, testConfig(), nil)
	call := callByName(t, m, "H", "call1")
	if g.NodeForCall(ccg.CallInfo[*Call]{Call: call}) != nil {
		t.Fatalf("recursive node should not be bound")
	}
	g.Process()
	if len(m.Funcs) != 2 {
		t.Errorf("no cloning expected through a recursive node, got %d functions", len(m.Funcs))
	}
}

func TestLoadModuleRejectsBadInput(t *testing.T) {
	if _, err := LoadModuleBytes("bad.yaml", []byte("functions:\n  - calls: []\n")); err == nil {
		t.Errorf("function without name should be rejected")
	}
	if _, err := LoadModuleBytes("bad.yaml", []byte(`
functions:
  - name: F
    calls:
      - name: A
        mibs:
          - stack-ids: [1]
            alloc-type: lukewarm
`)); err == nil {
		t.Errorf("unknown alloc-type should be rejected")
	}
	if _, err := LoadModuleBytes("bad.yaml", []byte("functions:\n  - name: F\n  - name: F\n")); err == nil {
		t.Errorf("duplicate function should be rejected")
	}
}
