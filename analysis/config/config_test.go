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

package config

import (
	"embed"
	"testing"
)

//go:embed testdata
var testfsys embed.FS

func loadFromTestDir(t *testing.T, filename string) *Config {
	t.Helper()
	b, err := testfsys.ReadFile("testdata/" + filename)
	if err != nil {
		t.Fatalf("failed to read file %v: %v", filename, err)
	}
	cfg, err := LoadBytes(filename, b)
	if err != nil {
		t.Fatalf("failed to load file %v: %v", filename, err)
	}
	return cfg
}

func TestLoadConfig(t *testing.T) {
	cfg := loadFromTestDir(t, "config.yaml")
	if cfg.LogLevel != int(DebugLevel) {
		t.Errorf("LogLevel = %d, want %d", cfg.LogLevel, DebugLevel)
	}
	if !cfg.VerifyGraph || cfg.VerifyNodes {
		t.Errorf("verify flags wrong: %+v", cfg)
	}
	if !cfg.ExportToDot || cfg.DotFilePathPrefix != "/tmp/ccg-" {
		t.Errorf("dot options wrong: %+v", cfg)
	}
	if cfg.ColdByteRatio != 0.1 {
		t.Errorf("ColdByteRatio = %v, want 0.1", cfg.ColdByteRatio)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadBytes("empty.yaml", nil)
	if err != nil {
		t.Fatalf("empty config should load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel default = %d", cfg.LogLevel)
	}
	if cfg.ColdByteRatio != DefaultColdByteRatio {
		t.Errorf("ColdByteRatio default = %v", cfg.ColdByteRatio)
	}
	if cfg.VerifyGraph || cfg.ExportToDot {
		t.Errorf("bool defaults should be false")
	}
}

func TestBadColdByteRatio(t *testing.T) {
	if _, err := LoadBytes("bad.yaml", []byte("cold-byte-ratio: 2.0\n")); err == nil {
		t.Errorf("out of range cold-byte-ratio should be rejected")
	}
}
