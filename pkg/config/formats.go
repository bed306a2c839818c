// Copyright 2025 walteh LLC
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

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// 🔧 JSONParser implements the Parser interface for JSON files
type JSONParser struct{}

// 🔧 YAMLParser implements the Parser interface for YAML files
type YAMLParser struct{}

func init() {
	Register(&JSONParser{})
	Register(&YAMLParser{})
}

func hasExt(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// 🔍 CanParse checks if this parser can handle the given file
func (p *JSONParser) CanParse(filename string) bool {
	return hasExt(filename, ".json")
}

// 📝 Parse parses the config from JSON bytes, rejecting unknown fields
func (p *JSONParser) Parse(ctx context.Context, filename string, data []byte) (*Config, error) {
	var cfg Config
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}
	return &cfg, nil
}

func (p *YAMLParser) CanParse(filename string) bool {
	return hasExt(filename, ".yaml", ".yml")
}

func (p *YAMLParser) Parse(ctx context.Context, filename string, data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return &cfg, nil
}
