//
// Copyright (c) SAS Institute Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	Version = "unknown"
	Commit  = "unknown"
)

// Config holds user defaults for building packages. Command-line flags take
// precedence over every value here.
type Config struct {
	Key         string `yaml:"key,omitempty"`         // Path to PEM private key used for signing
	Certificate string `yaml:"certificate,omitempty"` // developer, 1k, 2k or a number
	TempDir     string `yaml:"tempdir,omitempty"`     // Scratch directory, default is the system temp dir
	IndexName   string `yaml:"indexname,omitempty"`   // Name of the archive index
	LogLevel    string `yaml:"loglevel,omitempty"`    // trace, debug, info, warn or error
	Compression int    `yaml:"compression,omitempty"` // gzip level for directory payloads

	path string
}

func ReadFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes a YAML configuration. Unknown keys are rejected.
func Parse(blob []byte) (*Config, error) {
	cfg := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.Compression < -1 || cfg.Compression > 9 {
		return nil, fmt.Errorf("compression level %d is out of range -1..9", cfg.Compression)
	}
	return cfg, nil
}

// Path returns the file the configuration was loaded from, if any.
func (cfg *Config) Path() string {
	return cfg.path
}
