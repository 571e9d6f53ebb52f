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
	"fmt"
	"os"

	"github.com/awslabs/memprof-go-tools/analysis/ccg"
	"gopkg.in/yaml.v3"
)

// The yaml description of a module, for the CLI and tests:
//
//	aliases:
//	  F_alias: F
//	functions:
//	  - name: G
//	    calls:
//	      - name: call1
//	        callee: F
//	        stack-ids: [10]
//	  - name: F
//	    calls:
//	      - name: alloc1
//	        mibs:
//	          - stack-ids: [10, 20]
//	            alloc-type: cold

type moduleSpec struct {
	Aliases   map[string]string `yaml:"aliases"`
	Functions []funcSpec        `yaml:"functions"`
}

type funcSpec struct {
	Name  string     `yaml:"name"`
	Calls []callSpec `yaml:"calls"`
}

type callSpec struct {
	Name     string    `yaml:"name"`
	Callee   string    `yaml:"callee"`
	StackIDs []uint64  `yaml:"stack-ids"`
	MIBs     []mibSpec `yaml:"mibs"`
}

type mibSpec struct {
	StackIDs  []uint64 `yaml:"stack-ids"`
	AllocType string   `yaml:"alloc-type"`
}

func parseAllocType(s string) (ccg.AllocType, error) {
	switch s {
	case "notcold", "":
		return ccg.AllocNotCold, nil
	case "cold":
		return ccg.AllocCold, nil
	default:
		return ccg.AllocNone, fmt.Errorf("unknown alloc-type %q", s)
	}
}

// LoadModule reads a module description from the yaml file at filename.
func LoadModule(filename string) (*Module, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read module file %s: %w", filename, err)
	}
	return LoadModuleBytes(filename, b)
}

// LoadModuleBytes parses a module description from b.
func LoadModuleBytes(filename string, b []byte) (*Module, error) {
	var spec moduleSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("could not parse module file %s: %w", filename, err)
	}
	m := NewModule()
	for alias, target := range spec.Aliases {
		m.Aliases[alias] = target
	}
	for _, fs := range spec.Functions {
		if fs.Name == "" {
			return nil, fmt.Errorf("module file %s: function without a name", filename)
		}
		if m.FuncByName(fs.Name) != nil {
			return nil, fmt.Errorf("module file %s: duplicate function %s", filename, fs.Name)
		}
		fn := m.AddFunc(fs.Name)
		for _, cs := range fs.Calls {
			call := fn.AddCall(cs.Name, cs.Callee, cs.StackIDs)
			for _, ms := range cs.MIBs {
				at, err := parseAllocType(ms.AllocType)
				if err != nil {
					return nil, fmt.Errorf("module file %s: call %s: %w", filename, call, err)
				}
				call.MIBs = append(call.MIBs, MIB{StackIDs: ms.StackIDs, AllocType: at})
			}
		}
	}
	return m, nil
}
