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

// memprofclone: plan memprof context disambiguation for a module.
// Given a module description (or a pprof heap profile to synthesize one
// from), it builds the callsite context graph, clones callsites and
// functions until each allocation context has a single behavior, and
// reports the resulting plan.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/awslabs/memprof-go-tools/analysis/ccg"
	"github.com/awslabs/memprof-go-tools/analysis/config"
	"github.com/awslabs/memprof-go-tools/analysis/memprofdata"
	"github.com/awslabs/memprof-go-tools/analysis/memprofir"
	"github.com/awslabs/memprof-go-tools/internal/funcutil"
	"golang.org/x/term"
)

var (
	configPath  = flag.String("config", "", "config file path")
	modulePath  = flag.String("module", "", "module description (yaml)")
	profilePath = flag.String("profile", "", "pprof heap profile to synthesize a module from")
	dumpGraph   = flag.Bool("dump-ccg", false, "dump the context graph after processing")
)

const usage = ` Plan memprof context disambiguation cloning.
Usage:
    memprofclone [options] -module module.yaml
    memprofclone [options] -profile heap.pb.gz
`

func bold(s string) string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return "\033[1m" + s + "\033[0m"
	}
	return s
}

func main() {
	flag.Parse()
	if *modulePath == "" && *profilePath == "" {
		_, _ = fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.NewDefault()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	logger := config.NewLogGroup(cfg)

	var (
		mod *memprofir.Module
		err error
	)
	if *modulePath != "" {
		mod, err = memprofir.LoadModule(*modulePath)
	} else {
		mod, err = memprofdata.Load(*profilePath, cfg.ColdByteRatio)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load module: %v\n", err)
		os.Exit(1)
	}
	numOrigFuncs := len(mod.Funcs)

	start := time.Now()
	g := memprofir.BuildGraph(mod, cfg, logger)
	for _, comp := range g.StronglyConnectedStackNodes() {
		labels := funcutil.Map(comp, (*ccg.ContextNode[*memprofir.Function, *memprofir.Call]).Label)
		logger.Warnf("recursive profiled call cycle, not cloned: %s", strings.Join(labels, " <-> "))
	}
	changed := g.Process()
	logger.Infof("analysis took %.4fs", time.Since(start).Seconds())

	if *dumpGraph {
		g.Print(os.Stdout)
	}

	if !changed {
		fmt.Println("no cloning performed")
		return
	}
	fmt.Println(bold("Cloning plan:"))
	for _, fn := range mod.Funcs[numOrigFuncs:] {
		fmt.Printf("  new function clone %s\n", fn.Name)
	}
	for _, fn := range mod.Funcs {
		for _, call := range fn.Calls {
			if call.AllocType != ccg.AllocNone {
				fmt.Printf("  %s: allocation %v\n", call, call.AllocType)
			}
		}
	}
}
