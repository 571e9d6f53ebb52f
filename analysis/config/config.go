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

// Package config implements the configuration of the memprof context
// disambiguation tools. Configuration files are written in yaml.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the options of the context disambiguation pipeline.
// If some field is not defined in the config file, it will be empty/zero in
// the struct.
type Config struct {
	// LogLevel controls the verbosity of the LogGroup built from this config
	// (see logging.go).
	LogLevel int `yaml:"log-level"`

	// VerifyGraph runs the graph invariant checker after each pipeline
	// stage. Intended for testing; a violation panics.
	VerifyGraph bool `yaml:"verify-graph"`

	// VerifyNodes runs the per-node invariant checks at cloning decision
	// points. Much more frequent than VerifyGraph.
	VerifyNodes bool `yaml:"verify-nodes"`

	// ExportToDot writes the graph in dot format after each pipeline stage.
	ExportToDot bool `yaml:"export-to-dot"`

	// DotFilePathPrefix is the path prefix for exported dot files.
	DotFilePathPrefix string `yaml:"dot-file-path-prefix"`

	// ColdByteRatio is the retained/allocated byte ratio at or below which a
	// profiled allocation context is classified cold during heap profile
	// ingestion.
	ColdByteRatio float64 `yaml:"cold-byte-ratio"`

	sourceFile string
}

// Default values for options that are not zero when unset.
const (
	DefaultLogLevel      = int(InfoLevel)
	DefaultColdByteRatio = 0.05
)

// NewDefault returns a config with the default option values.
func NewDefault() *Config {
	return &Config{
		LogLevel:      DefaultLogLevel,
		ColdByteRatio: DefaultColdByteRatio,
	}
}

// Load reads a config from the yaml file at filename.
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %s: %w", filename, err)
	}
	return LoadBytes(filename, b)
}

// LoadBytes parses a config from b. The filename is recorded for reporting
// only.
func LoadBytes(filename string, b []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", filename, err)
	}
	if cfg.ColdByteRatio < 0 || cfg.ColdByteRatio > 1 {
		return nil, fmt.Errorf("config file %s: cold-byte-ratio must be in [0,1], got %v",
			filename, cfg.ColdByteRatio)
	}
	cfg.sourceFile = filename
	return cfg, nil
}

// SourceFile returns the file the config was loaded from, if any.
func (c *Config) SourceFile() string { return c.sourceFile }
