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
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/fetcher"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, filename string, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 📦 SourceConfig selects the repository to read, either by url or by provider and repo
type SourceConfig struct {
	URL         string `json:"url,omitempty" yaml:"url,omitempty" hcl:"url,optional"`
	Provider    string `json:"provider,omitempty" yaml:"provider,omitempty" hcl:"provider,optional"`
	Repo        string `json:"repo,omitempty" yaml:"repo,omitempty" hcl:"repo,optional"`
	Directory   string `json:"directory,omitempty" yaml:"directory,omitempty" hcl:"directory,optional"`
	Branch      string `json:"branch,omitempty" yaml:"branch,omitempty" hcl:"branch,optional"`
	Commit      string `json:"commit,omitempty" yaml:"commit,omitempty" hcl:"commit,optional"`
	Hostname    string `json:"hostname,omitempty" yaml:"hostname,omitempty" hcl:"hostname,optional"`
	APIEndpoint string `json:"api_endpoint,omitempty" yaml:"api_endpoint,omitempty" hcl:"api_endpoint,optional"`
}

// 🔑 CredentialConfig is one entry of the credential list handed to providers
type CredentialConfig struct {
	Type     string `json:"type,omitempty" yaml:"type,omitempty" hcl:"type,optional"`
	Host     string `json:"host" yaml:"host" hcl:"host"`
	Username string `json:"username,omitempty" yaml:"username,omitempty" hcl:"username,optional"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" hcl:"password,optional"`
}

// 🔧 FetchConfig tunes the resolver session
type FetchConfig struct {
	FollowIndirections bool   `json:"follow_indirections,omitempty" yaml:"follow_indirections,omitempty" hcl:"follow_indirections,optional"`
	AncestorErrors     string `json:"ancestor_errors,omitempty" yaml:"ancestor_errors,omitempty" hcl:"ancestor_errors,optional"`
	ListingCacheSize   int    `json:"listing_cache_size,omitempty" yaml:"listing_cache_size,omitempty" hcl:"listing_cache_size,optional"`
	FileCacheSize      int    `json:"file_cache_size,omitempty" yaml:"file_cache_size,omitempty" hcl:"file_cache_size,optional"`
}

// 📚 Config represents the complete configuration
type Config struct {
	Source      SourceConfig       `json:"source" yaml:"source" hcl:"source,block"`
	Credentials []CredentialConfig `json:"credentials,omitempty" yaml:"credentials,omitempty" hcl:"credential,block"`
	Fetch       *FetchConfig       `json:"fetch,omitempty" yaml:"fetch,omitempty" hcl:"fetch,block"`

	location string
}

// 🎯 LoadConfig loads and validates the configuration file at path. The format is
// picked from the extension: .json, .yaml/.yml or .hcl.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	cfg, err := p.Parse(ctx, path, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}
	cfg.location = path

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Location is the file the config was loaded from, empty for configs built in code.
func (cfg *Config) Location() string {
	return cfg.location
}

// 🔍 Validate checks if the configuration is valid
func (cfg *Config) Validate() error {
	s := cfg.Source
	switch {
	case s.URL != "" && (s.Provider != "" || s.Repo != ""):
		return errors.Errorf("source.url cannot be combined with source.provider or source.repo")
	case s.URL == "" && (s.Provider == "" || s.Repo == ""):
		return errors.Errorf("source.url or both source.provider and source.repo are required")
	}

	if _, err := cfg.Source.Build(); err != nil {
		return errors.Errorf("invalid source: %w", err)
	}

	for i, c := range cfg.Credentials {
		if strings.TrimSpace(c.Host) == "" {
			return errors.Errorf("credentials[%d].host is required", i)
		}
	}

	if cfg.Fetch != nil {
		if _, err := fetcher.ParseAncestorErrorPolicy(cfg.Fetch.AncestorErrors); err != nil {
			return errors.Errorf("fetch.ancestor_errors: %w", err)
		}
		if cfg.Fetch.ListingCacheSize < 0 || cfg.Fetch.FileCacheSize < 0 {
			return errors.Errorf("fetch cache sizes must not be negative")
		}
	}

	return nil
}

// 🏭 Build turns the source section into a normalized source.Source. Branch, commit
// and directory given next to a url override what the url encodes.
func (s SourceConfig) Build() (source.Source, error) {
	provider, repo := s.Provider, s.Repo
	opts := []source.Option{}

	if s.URL != "" {
		parsed, ok := source.FromURL(s.URL)
		if !ok {
			return source.Source{}, errors.Errorf("unrecognized repository url %q", s.URL)
		}
		provider, repo = string(parsed.Provider()), parsed.Repo()
		opts = append(opts,
			source.WithDirectory(parsed.Directory()),
			source.WithBranch(parsed.Branch()),
		)
	}

	p, err := source.ParseProvider(provider)
	if err != nil {
		return source.Source{}, err
	}

	if s.Directory != "" {
		opts = append(opts, source.WithDirectory(s.Directory))
	}
	if s.Branch != "" {
		opts = append(opts, source.WithBranch(s.Branch))
	}
	opts = append(opts,
		source.WithCommit(s.Commit),
		source.WithHostname(s.Hostname),
		source.WithAPIEndpoint(s.APIEndpoint),
	)

	return source.New(p, repo, opts...)
}

// 🔑 CredentialList converts the configured credentials into the provider credential
// format, followed by any credentials found in the environment.
func (cfg *Config) CredentialList() []credentials.Credential {
	out := make([]credentials.Credential, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		cred := credentials.GitSource(c.Host, c.Username, c.Password)
		if c.Type != "" {
			cred[credentials.KeyType] = c.Type
		}
		out = append(out, cred)
	}
	return append(out, credentials.FromEnv()...)
}

// ⚙️ FetchOptions maps the fetch section onto session options
func (cfg *Config) FetchOptions() []fetcher.Option {
	if cfg.Fetch == nil {
		return nil
	}

	var opts []fetcher.Option
	if cfg.Fetch.AncestorErrors != "" {
		opts = append(opts, fetcher.WithAncestorErrors(fetcher.AncestorErrorPolicy(cfg.Fetch.AncestorErrors)))
	}
	if cfg.Fetch.ListingCacheSize > 0 {
		opts = append(opts, fetcher.WithListingCacheSize(cfg.Fetch.ListingCacheSize))
	}
	if cfg.Fetch.FileCacheSize > 0 {
		opts = append(opts, fetcher.WithFileCacheSize(cfg.Fetch.FileCacheSize))
	}
	return opts
}

// FollowIndirections reports whether reads should cross submodule boundaries by default.
func (cfg *Config) FollowIndirections() bool {
	return cfg.Fetch != nil && cfg.Fetch.FollowIndirections
}

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	s := cfg.Source
	if s.URL != "" {
		return s.URL
	}
	ref := s.Commit
	if ref == "" {
		ref = s.Branch
	}
	if ref == "" {
		ref = "HEAD"
	}
	return fmt.Sprintf("%s:%s@%s:%s", s.Provider, s.Repo, ref, source.NormalizeDirectory(s.Directory))
}
